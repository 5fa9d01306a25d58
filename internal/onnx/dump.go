package onnx

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dump renders the decoded model as a nested YAML mapping. Keys follow the
// protobuf JSON names (irVersion, opsetImport, ...) and appear in schema
// order; fields holding their zero value are left out. Bytes fields are
// base64 encoded, as in the protobuf JSON mapping.
func (m *ModelProto) Dump() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.node()); err != nil {
		return nil, fmt.Errorf("onnx: dump model: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("onnx: dump model: %w", err)
	}
	return buf.Bytes(), nil
}

// mapping builds a yaml mapping node while skipping empty values.
type mapping struct {
	node *yaml.Node
}

func newMapping() *mapping {
	return &mapping{node: &yaml.Node{Kind: yaml.MappingNode}}
}

func (m *mapping) set(key string, value *yaml.Node) {
	if value == nil {
		return
	}
	m.node.Content = append(m.node.Content, scalar("!!str", key), value)
}

func (m *mapping) str(key, value string) {
	if value != "" {
		m.set(key, scalar("!!str", value))
	}
}

func (m *mapping) int(key string, value int64) {
	if value != 0 {
		m.set(key, intScalar(value))
	}
}

func (m *mapping) raw(key string, value []byte) {
	if len(value) > 0 {
		m.set(key, bytesScalar(value))
	}
}

func (m *mapping) list(key string, items []*yaml.Node) {
	if len(items) > 0 {
		m.set(key, &yaml.Node{Kind: yaml.SequenceNode, Content: items})
	}
}

func (m *mapping) entries(key string, items []StringStringEntry) {
	m.list(key, eachNode(items, entryNode))
}

func (m *mapping) result() *yaml.Node {
	if len(m.node.Content) == 0 {
		return nil
	}
	return m.node
}

// orEmpty renders messages present on the wire with no fields set as {}.
func (m *mapping) orEmpty() *yaml.Node {
	if n := m.result(); n != nil {
		return n
	}
	return emptyMapping()
}

func emptyMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func intScalar(v int64) *yaml.Node {
	return scalar("!!int", strconv.FormatInt(v, 10))
}

func uintScalar(v uint64) *yaml.Node {
	return scalar("!!int", strconv.FormatUint(v, 10))
}

func bytesScalar(v []byte) *yaml.Node {
	return scalar("!!str", base64.StdEncoding.EncodeToString(v))
}

// floatScalar prints the shortest form that reads back as a float.
func floatScalar(v float64, bitSize int) *yaml.Node {
	var text string
	switch {
	case math.IsNaN(v):
		text = ".nan"
	case math.IsInf(v, 1):
		text = ".inf"
	case math.IsInf(v, -1):
		text = "-.inf"
	default:
		text = strconv.FormatFloat(v, 'g', -1, bitSize)
		if !strings.ContainsAny(text, ".eE") {
			text += ".0"
		}
	}
	return scalar("!!float", text)
}

func eachNode[T any](items []T, fn func(T) *yaml.Node) []*yaml.Node {
	out := make([]*yaml.Node, 0, len(items))
	for _, item := range items {
		if n := fn(item); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func textNode(s string) *yaml.Node { return scalar("!!str", s) }

func entryNode(e StringStringEntry) *yaml.Node {
	entry := newMapping()
	entry.str("key", e.Key)
	entry.str("value", e.Value)
	return entry.orEmpty()
}

func opsetNode(o OperatorSetID) *yaml.Node {
	entry := newMapping()
	entry.str("domain", o.Domain)
	entry.int("version", o.Version)
	return entry.orEmpty()
}

func (m *ModelProto) node() *yaml.Node {
	out := newMapping()
	out.int("irVersion", m.IRVersion)
	out.list("opsetImport", eachNode(m.OpsetImport, opsetNode))
	out.str("producerName", m.ProducerName)
	out.str("producerVersion", m.ProducerVersion)
	out.str("domain", m.Domain)
	out.int("modelVersion", m.ModelVersion)
	out.str("docString", m.DocString)
	if m.Graph != nil {
		out.set("graph", m.Graph.node())
	}
	out.entries("metadataProps", m.MetadataProps)
	out.list("trainingInfo", eachNode(m.TrainingInfo, trainingInfoNode))
	out.list("functions", eachNode(m.Functions, functionNode))
	return out.orEmpty()
}

func (g *GraphProto) node() *yaml.Node {
	out := newMapping()
	out.list("node", eachNode(g.Nodes, nodeNode))
	out.str("name", g.Name)
	out.list("initializer", eachNode(g.Initializers, tensorNode))
	out.list("sparseInitializer", eachNode(g.SparseInitializers, sparseTensorNode))
	out.str("docString", g.DocString)
	out.list("input", eachNode(g.Inputs, valueInfoNode))
	out.list("output", eachNode(g.Outputs, valueInfoNode))
	out.list("valueInfo", eachNode(g.ValueInfo, valueInfoNode))
	out.list("quantizationAnnotation", eachNode(g.QuantizationAnnotation, func(a TensorAnnotation) *yaml.Node {
		entry := newMapping()
		entry.str("tensorName", a.TensorName)
		entry.entries("quantParameterTensorNames", a.QuantParameterTensorName)
		return entry.orEmpty()
	}))
	out.entries("metadataProps", g.MetadataProps)
	return out.orEmpty()
}

func graphNode(g GraphProto) *yaml.Node { return g.node() }

func nodeNode(n NodeProto) *yaml.Node {
	out := newMapping()
	out.list("input", eachNode(n.Inputs, textNode))
	out.list("output", eachNode(n.Outputs, textNode))
	out.str("name", n.Name)
	out.str("opType", n.OpType)
	out.str("domain", n.Domain)
	out.str("overload", n.Overload)
	out.list("attribute", eachNode(n.Attributes, attributeNode))
	out.str("docString", n.DocString)
	out.entries("metadataProps", n.MetadataProps)
	return out.orEmpty()
}

func attributeNode(a AttributeProto) *yaml.Node {
	out := newMapping()
	out.str("name", a.Name)
	out.str("refAttrName", a.RefAttrName)
	out.str("docString", a.DocString)
	out.str("type", attributeTypeName(a.Type))
	// Scalars of the declared type are kept even when zero.
	if a.Type == AttributeFloat || a.F != 0 {
		out.set("f", floatScalar(float64(a.F), 32))
	}
	if a.Type == AttributeInt || a.I != 0 {
		out.set("i", intScalar(a.I))
	}
	if a.Type == AttributeString || len(a.S) > 0 {
		out.set("s", bytesScalar(a.S))
	}
	if a.T != nil {
		out.set("t", tensorNode(*a.T))
	}
	if a.G != nil {
		out.set("g", a.G.node())
	}
	if a.SparseTensor != nil {
		out.set("sparseTensor", sparseTensorNode(*a.SparseTensor))
	}
	if a.TP != nil {
		out.set("tp", typeNode(*a.TP))
	}
	out.list("floats", eachNode(a.Floats, func(v float32) *yaml.Node { return floatScalar(float64(v), 32) }))
	out.list("ints", eachNode(a.Ints, intScalar))
	out.list("strings", eachNode(a.Strings, bytesScalar))
	out.list("tensors", eachNode(a.Tensors, tensorNode))
	out.list("graphs", eachNode(a.Graphs, graphNode))
	out.list("sparseTensors", eachNode(a.SparseTensors, sparseTensorNode))
	out.list("typeProtos", eachNode(a.TypeProtos, typeNode))
	return out.orEmpty()
}

func tensorNode(t TensorProto) *yaml.Node {
	out := newMapping()
	out.list("dims", eachNode(t.Dims, intScalar))
	out.int("dataType", int64(t.DataType))
	if t.Segment != nil {
		segment := newMapping()
		segment.int("begin", t.Segment.Begin)
		segment.int("end", t.Segment.End)
		out.set("segment", segment.orEmpty())
	}
	out.list("floatData", eachNode(t.FloatData, func(v float32) *yaml.Node { return floatScalar(float64(v), 32) }))
	out.list("int32Data", eachNode(t.Int32Data, func(v int32) *yaml.Node { return intScalar(int64(v)) }))
	out.list("stringData", eachNode(t.StringData, bytesScalar))
	out.list("int64Data", eachNode(t.Int64Data, intScalar))
	out.str("name", t.Name)
	out.str("docString", t.DocString)
	out.raw("rawData", t.RawData)
	out.entries("externalData", t.ExternalData)
	if t.DataLocation == 1 {
		out.str("dataLocation", "EXTERNAL")
	}
	out.list("doubleData", eachNode(t.DoubleData, func(v float64) *yaml.Node { return floatScalar(v, 64) }))
	out.list("uint64Data", eachNode(t.Uint64Data, uintScalar))
	out.entries("metadataProps", t.MetadataProps)
	return out.orEmpty()
}

func sparseTensorNode(s SparseTensorProto) *yaml.Node {
	out := newMapping()
	if s.Values != nil {
		out.set("values", tensorNode(*s.Values))
	}
	if s.Indices != nil {
		out.set("indices", tensorNode(*s.Indices))
	}
	out.list("dims", eachNode(s.Dims, intScalar))
	return out.orEmpty()
}

func trainingInfoNode(t TrainingInfoProto) *yaml.Node {
	out := newMapping()
	if t.Initialization != nil {
		out.set("initialization", t.Initialization.node())
	}
	if t.Algorithm != nil {
		out.set("algorithm", t.Algorithm.node())
	}
	out.entries("initializationBinding", t.InitializationBinding)
	out.entries("updateBinding", t.UpdateBinding)
	return out.orEmpty()
}

func functionNode(fn FunctionProto) *yaml.Node {
	out := newMapping()
	out.str("name", fn.Name)
	out.list("input", eachNode(fn.Inputs, textNode))
	out.list("output", eachNode(fn.Outputs, textNode))
	out.list("attribute", eachNode(fn.Attributes, textNode))
	out.list("attributeProto", eachNode(fn.AttributeProto, attributeNode))
	out.list("node", eachNode(fn.Nodes, nodeNode))
	out.str("docString", fn.DocString)
	out.list("opsetImport", eachNode(fn.OpsetImport, opsetNode))
	out.str("domain", fn.Domain)
	out.str("overload", fn.Overload)
	out.list("valueInfo", eachNode(fn.ValueInfo, valueInfoNode))
	out.entries("metadataProps", fn.MetadataProps)
	return out.orEmpty()
}

func valueInfoNode(v ValueInfoProto) *yaml.Node {
	out := newMapping()
	out.str("name", v.Name)
	if v.Type != nil {
		out.set("type", typeNode(*v.Type))
	}
	out.str("docString", v.DocString)
	out.entries("metadataProps", v.MetadataProps)
	return out.orEmpty()
}

func typeNode(t TypeProto) *yaml.Node {
	out := newMapping()
	switch t.Kind {
	case KindTensor:
		out.set("tensorType", tensorTypeNode(t.TensorType))
	case KindSequence:
		seq := newMapping()
		if t.SequenceElem != nil {
			seq.set("elemType", typeNode(*t.SequenceElem))
		}
		out.set("sequenceType", seq.orEmpty())
	case KindMap:
		m := newMapping()
		if t.MapType != nil {
			m.int("keyType", int64(t.MapType.KeyType))
			if t.MapType.ValueType != nil {
				m.set("valueType", typeNode(*t.MapType.ValueType))
			}
		}
		out.set("mapType", m.orEmpty())
	case KindSparseTensor:
		out.set("sparseTensorType", tensorTypeNode(t.SparseTensorType))
	case KindOptional:
		opt := newMapping()
		if t.OptionalElem != nil {
			opt.set("elemType", typeNode(*t.OptionalElem))
		}
		out.set("optionalType", opt.orEmpty())
	}
	out.str("denotation", t.Denotation)
	return out.orEmpty()
}

func tensorTypeNode(t *TensorTypeProto) *yaml.Node {
	out := newMapping()
	if t == nil {
		return out.orEmpty()
	}
	out.int("elemType", int64(t.ElemType))
	if t.Shape != nil {
		shape := newMapping()
		shape.list("dim", eachNode(t.Shape.Dims, func(d DimensionProto) *yaml.Node {
			dim := newMapping()
			if d.HasValue {
				dim.set("dimValue", intScalar(d.Value))
			}
			dim.str("dimParam", d.Param)
			dim.str("denotation", d.Denotation)
			return dim.orEmpty()
		}))
		out.set("shape", shape.orEmpty())
	}
	return out.orEmpty()
}

var attributeTypeNames = map[int32]string{
	AttributeFloat:         "FLOAT",
	AttributeInt:           "INT",
	AttributeString:        "STRING",
	AttributeTensor:        "TENSOR",
	AttributeGraph:         "GRAPH",
	AttributeFloats:        "FLOATS",
	AttributeInts:          "INTS",
	AttributeStrings:       "STRINGS",
	AttributeTensors:       "TENSORS",
	AttributeGraphs:        "GRAPHS",
	AttributeSparseTensor:  "SPARSE_TENSOR",
	AttributeSparseTensors: "SPARSE_TENSORS",
	AttributeTypeProto:     "TYPE_PROTO",
	AttributeTypeProtos:    "TYPE_PROTOS",
}

func attributeTypeName(code int32) string {
	if code == 0 {
		return ""
	}
	if name, ok := attributeTypeNames[code]; ok {
		return name
	}
	return strconv.Itoa(int(code))
}
