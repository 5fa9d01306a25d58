package onnx

import "strconv"

// ModelProto is the top-level ONNX model.
type ModelProto struct {
	IRVersion       int64
	OpsetImport     []OperatorSetID
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	MetadataProps   []StringStringEntry
	TrainingInfo    []TrainingInfoProto
	Functions       []FunctionProto
}

// GraphProto is the computation graph of a model.
type GraphProto struct {
	Name                   string
	Nodes                  []NodeProto
	Initializers           []TensorProto
	SparseInitializers     []SparseTensorProto
	DocString              string
	Inputs                 []ValueInfoProto
	Outputs                []ValueInfoProto
	ValueInfo              []ValueInfoProto
	QuantizationAnnotation []TensorAnnotation
	MetadataProps          []StringStringEntry
}

// DeclaredInputs returns the graph inputs that are not backed by an
// initializer. Older exporters list every weight as a graph input too.
func (g *GraphProto) DeclaredInputs() []ValueInfoProto {
	if g == nil {
		return nil
	}
	weights := make(map[string]struct{}, len(g.Initializers)+len(g.SparseInitializers))
	for _, init := range g.Initializers {
		weights[init.Name] = struct{}{}
	}
	for _, init := range g.SparseInitializers {
		if init.Values != nil {
			weights[init.Values.Name] = struct{}{}
		}
	}
	out := make([]ValueInfoProto, 0, len(g.Inputs))
	for _, in := range g.Inputs {
		if _, ok := weights[in.Name]; ok {
			continue
		}
		out = append(out, in)
	}
	return out
}

// NodeProto is a single operator invocation.
type NodeProto struct {
	Inputs        []string
	Outputs       []string
	Name          string
	OpType        string
	Domain        string
	Overload      string
	Attributes    []AttributeProto
	DocString     string
	MetadataProps []StringStringEntry
}

// AttributeProto is a named operator attribute. Type says which of the
// value fields is meaningful.
type AttributeProto struct {
	Name          string
	RefAttrName   string
	DocString     string
	Type          int32
	F             float32
	I             int64
	S             []byte
	T             *TensorProto
	G             *GraphProto
	SparseTensor  *SparseTensorProto
	TP            *TypeProto
	Floats        []float32
	Ints          []int64
	Strings       [][]byte
	Tensors       []TensorProto
	Graphs        []GraphProto
	SparseTensors []SparseTensorProto
	TypeProtos    []TypeProto
}

// TensorProto is a typed tensor, either inline or stored externally.
type TensorProto struct {
	Dims          []int64
	DataType      int32
	Segment       *TensorSegment
	FloatData     []float32
	Int32Data     []int32
	StringData    [][]byte
	Int64Data     []int64
	Name          string
	DocString     string
	RawData       []byte
	ExternalData  []StringStringEntry
	DataLocation  int32
	DoubleData    []float64
	Uint64Data    []uint64
	MetadataProps []StringStringEntry
}

// TensorSegment marks the slice of a larger tensor a chunk holds.
type TensorSegment struct {
	Begin int64
	End   int64
}

// SparseTensorProto stores the non-default values of a tensor.
type SparseTensorProto struct {
	Values  *TensorProto
	Indices *TensorProto
	Dims    []int64
}

// TensorAnnotation links a tensor to its quantization parameters.
type TensorAnnotation struct {
	TensorName               string
	QuantParameterTensorName []StringStringEntry
}

// TrainingInfoProto carries the graphs used to train a model.
type TrainingInfoProto struct {
	Initialization        *GraphProto
	Algorithm             *GraphProto
	InitializationBinding []StringStringEntry
	UpdateBinding         []StringStringEntry
}

// FunctionProto is a model-local operator definition.
type FunctionProto struct {
	Name           string
	Inputs         []string
	Outputs        []string
	Attributes     []string
	AttributeProto []AttributeProto
	Nodes          []NodeProto
	DocString      string
	OpsetImport    []OperatorSetID
	Domain         string
	Overload       string
	ValueInfo      []ValueInfoProto
	MetadataProps  []StringStringEntry
}

// ValueInfoProto describes a named graph value.
type ValueInfoProto struct {
	Name          string
	Type          *TypeProto
	DocString     string
	MetadataProps []StringStringEntry
}

// TypeProto describes the type of a graph value. Kind names the variant
// that is set; tensor and sparse tensor types carry an element type and
// shape, container types carry their element types.
type TypeProto struct {
	TensorType       *TensorTypeProto
	SparseTensorType *TensorTypeProto
	SequenceElem     *TypeProto
	MapType          *MapTypeProto
	OptionalElem     *TypeProto
	Kind             string
	Denotation       string
}

// TensorTypeProto holds a tensor's element type and optional shape.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// MapTypeProto is the type of a map value.
type MapTypeProto struct {
	KeyType   int32
	ValueType *TypeProto
}

// TensorShapeProto is an ordered list of dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto is either a fixed size or a symbolic parameter. Both unset
// means the axis is unknown.
type DimensionProto struct {
	Value      int64
	Param      string
	HasValue   bool
	Denotation string
}

// OperatorSetID names an imported operator set.
type OperatorSetID struct {
	Domain  string
	Version int64
}

// StringStringEntry is one metadata property.
type StringStringEntry struct {
	Key   string
	Value string
}

// Value kinds other than plain tensors.
const (
	KindTensor       = "tensor"
	KindSequence     = "seq"
	KindMap          = "map"
	KindSparseTensor = "sparse_tensor"
	KindOptional     = "optional"
)

// Tensor element types, numbered as in TensorProto.DataType.
const (
	DataTypeUndefined  int32 = 0
	DataTypeFloat      int32 = 1
	DataTypeUint8      int32 = 2
	DataTypeInt8       int32 = 3
	DataTypeUint16     int32 = 4
	DataTypeInt16      int32 = 5
	DataTypeInt32      int32 = 6
	DataTypeInt64      int32 = 7
	DataTypeString     int32 = 8
	DataTypeBool       int32 = 9
	DataTypeFloat16    int32 = 10
	DataTypeDouble     int32 = 11
	DataTypeUint32     int32 = 12
	DataTypeUint64     int32 = 13
	DataTypeComplex64  int32 = 14
	DataTypeComplex128 int32 = 15
	DataTypeBfloat16   int32 = 16
)

// Attribute value kinds, numbered as in AttributeProto.Type.
const (
	AttributeFloat         int32 = 1
	AttributeInt           int32 = 2
	AttributeString        int32 = 3
	AttributeTensor        int32 = 4
	AttributeGraph         int32 = 5
	AttributeFloats        int32 = 6
	AttributeInts          int32 = 7
	AttributeStrings       int32 = 8
	AttributeTensors       int32 = 9
	AttributeGraphs        int32 = 10
	AttributeSparseTensor  int32 = 11
	AttributeSparseTensors int32 = 12
	AttributeTypeProto     int32 = 13
	AttributeTypeProtos    int32 = 14
)

var elemTypeNames = map[int32]string{
	DataTypeFloat:      "float",
	DataTypeUint8:      "uint8",
	DataTypeInt8:       "int8",
	DataTypeUint16:     "uint16",
	DataTypeInt16:      "int16",
	DataTypeInt32:      "int32",
	DataTypeInt64:      "int64",
	DataTypeString:     "string",
	DataTypeBool:       "bool",
	DataTypeFloat16:    "float16",
	DataTypeDouble:     "double",
	DataTypeUint32:     "uint32",
	DataTypeUint64:     "uint64",
	DataTypeComplex64:  "complex64",
	DataTypeComplex128: "complex128",
	DataTypeBfloat16:   "bfloat16",
}

// ElemTypeName returns the ONNX spelling of a tensor element type, e.g.
// "float" for 1. Unknown codes are rendered as "undefined(<code>)".
func ElemTypeName(code int32) string {
	if name, ok := elemTypeNames[code]; ok {
		return name
	}
	if code == DataTypeUndefined {
		return "undefined"
	}
	return "undefined(" + strconv.Itoa(int(code)) + ")"
}

// Describe renders the value type the way ONNX Runtime reports it, e.g.
// "tensor(float)" or "seq".
func (t *TypeProto) Describe() string {
	switch {
	case t == nil:
		return "unknown"
	case t.TensorType != nil:
		return "tensor(" + ElemTypeName(t.TensorType.ElemType) + ")"
	case t.Kind != "":
		return t.Kind
	default:
		return "unknown"
	}
}

// ElemType returns the tensor element type code, or DataTypeUndefined for
// non-tensor values.
func (t *TypeProto) ElemType() int32 {
	if t == nil || t.TensorType == nil {
		return DataTypeUndefined
	}
	return t.TensorType.ElemType
}

// Dims returns the declared tensor dimensions. A nil result means the shape
// itself is unknown, as opposed to a scalar.
func (t *TypeProto) Dims() []DimensionProto {
	if t == nil || t.TensorType == nil || t.TensorType.Shape == nil {
		return nil
	}
	return t.TensorType.Shape.Dims
}
