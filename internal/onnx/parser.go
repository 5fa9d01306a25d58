package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNoGraph is returned for input that decodes cleanly but carries no
// graph, which is what most non-ONNX files look like to a protobuf decoder.
var ErrNoGraph = errors.New("onnx: model has no graph")

// DecodeError reports malformed protobuf input.
type DecodeError struct {
	// Offset is the byte offset of the field that failed to decode.
	Offset  int
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("onnx: offset %d: %s: %v", e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("onnx: offset %d: %s", e.Offset, e.Message)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ParseFile reads and decodes the model stored at path.
//
//nolint:gosec // G304: the model path is supplied by the user on purpose
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read %s: %w", path, err)
	}
	model, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("onnx: parse %s: %w", path, err)
	}
	return model, nil
}

// Parse decodes a serialized ModelProto.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := walk(data, 0, model.decodeField); err != nil {
		return nil, err
	}
	if model.Graph == nil {
		return nil, ErrNoGraph
	}
	return model, nil
}

// field is one decoded tag/value pair. Which of varint, fixed or bytes is
// meaningful depends on typ.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	fixed  uint64
	bytes  []byte
	offset int
}

func (f field) fail(message string) error {
	return &DecodeError{Offset: f.offset, Message: fmt.Sprintf("field %d: %s", f.num, message)}
}

func (f field) text() (string, error) {
	if f.typ != protowire.BytesType {
		return "", f.fail("expected length-delimited string")
	}
	return string(f.bytes), nil
}

func (f field) raw() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, f.fail("expected length-delimited bytes")
	}
	return f.bytes, nil
}

func (f field) varint64() (int64, error) {
	if f.typ != protowire.VarintType {
		return 0, f.fail("expected varint")
	}
	return int64(f.varint), nil
}

func (f field) varint32() (int32, error) {
	v, err := f.varint64()
	return int32(v), err
}

func (f field) float32() (float32, error) {
	if f.typ != protowire.Fixed32Type {
		return 0, f.fail("expected fixed32")
	}
	return math.Float32frombits(uint32(f.fixed)), nil
}

// message decodes an embedded message, keeping offsets absolute.
func (f field) message(visit func(field) error) error {
	if f.typ != protowire.BytesType {
		return f.fail("expected embedded message")
	}
	return walk(f.bytes, f.offset, visit)
}

// uint64s decodes a repeated varint in either packed or unpacked form.
func (f field) uint64s() ([]uint64, error) {
	switch f.typ {
	case protowire.VarintType:
		return []uint64{f.varint}, nil
	case protowire.BytesType:
		var out []uint64
		for pos := 0; pos < len(f.bytes); {
			v, n := protowire.ConsumeVarint(f.bytes[pos:])
			if n < 0 {
				return nil, &DecodeError{Offset: f.offset + pos, Message: "packed varint", Err: protowire.ParseError(n)}
			}
			out = append(out, v)
			pos += n
		}
		return out, nil
	default:
		return nil, f.fail("expected varint or packed varints")
	}
}

func (f field) int64s() ([]int64, error) {
	values, err := f.uint64s()
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out, nil
}

func (f field) int32s() ([]int32, error) {
	values, err := f.uint64s()
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(values))
	for i, v := range values {
		out[i] = int32(v)
	}
	return out, nil
}

// float32s decodes a repeated float in either packed or unpacked form.
func (f field) float32s() ([]float32, error) {
	switch f.typ {
	case protowire.Fixed32Type:
		return []float32{math.Float32frombits(uint32(f.fixed))}, nil
	case protowire.BytesType:
		if len(f.bytes)%4 != 0 {
			return nil, f.fail("packed floats are not a multiple of 4 bytes")
		}
		out := make([]float32, 0, len(f.bytes)/4)
		for pos := 0; pos < len(f.bytes); pos += 4 {
			out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(f.bytes[pos:])))
		}
		return out, nil
	default:
		return nil, f.fail("expected fixed32 or packed floats")
	}
}

// float64s decodes a repeated double in either packed or unpacked form.
func (f field) float64s() ([]float64, error) {
	switch f.typ {
	case protowire.Fixed64Type:
		return []float64{math.Float64frombits(f.fixed)}, nil
	case protowire.BytesType:
		if len(f.bytes)%8 != 0 {
			return nil, f.fail("packed doubles are not a multiple of 8 bytes")
		}
		out := make([]float64, 0, len(f.bytes)/8)
		for pos := 0; pos < len(f.bytes); pos += 8 {
			out = append(out, math.Float64frombits(binary.LittleEndian.Uint64(f.bytes[pos:])))
		}
		return out, nil
	default:
		return nil, f.fail("expected fixed64 or packed doubles")
	}
}

// walk visits every field of the message encoded in buf. base is the
// absolute offset of buf within the original input.
func walk(buf []byte, base int, visit func(field) error) error {
	for pos := 0; pos < len(buf); {
		num, typ, n := protowire.ConsumeTag(buf[pos:])
		if n < 0 {
			return &DecodeError{Offset: base + pos, Message: "invalid tag", Err: protowire.ParseError(n)}
		}
		f := field{num: num, typ: typ, offset: base + pos + n}

		var m int
		switch typ {
		case protowire.VarintType:
			f.varint, m = protowire.ConsumeVarint(buf[pos+n:])
		case protowire.Fixed32Type:
			var v uint32
			v, m = protowire.ConsumeFixed32(buf[pos+n:])
			f.fixed = uint64(v)
		case protowire.Fixed64Type:
			f.fixed, m = protowire.ConsumeFixed64(buf[pos+n:])
		case protowire.BytesType:
			f.bytes, m = protowire.ConsumeBytes(buf[pos+n:])
			if m >= 0 {
				// Point nested offsets at the payload, past the length prefix.
				f.offset += m - len(f.bytes)
			}
		default:
			m = protowire.ConsumeFieldValue(num, typ, buf[pos+n:])
		}
		if m < 0 {
			return &DecodeError{Offset: base + pos, Message: fmt.Sprintf("field %d", num), Err: protowire.ParseError(m)}
		}
		if err := visit(f); err != nil {
			return err
		}
		pos += n + m
	}
	return nil
}

// appendMessage decodes an embedded message of type T onto list.
func appendMessage[T any](list []T, f field, decode func(*T) func(field) error) ([]T, error) {
	var item T
	if err := f.message(decode(&item)); err != nil {
		return list, err
	}
	return append(list, item), nil
}

func appendText(list []string, f field) ([]string, error) {
	value, err := f.text()
	if err != nil {
		return list, err
	}
	return append(list, value), nil
}

func appendRaw(list [][]byte, f field) ([][]byte, error) {
	value, err := f.raw()
	if err != nil {
		return list, err
	}
	return append(list, value), nil
}

func (m *ModelProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // ir_version
		m.IRVersion, err = f.varint64()
	case 2: // producer_name
		m.ProducerName, err = f.text()
	case 3: // producer_version
		m.ProducerVersion, err = f.text()
	case 4: // domain
		m.Domain, err = f.text()
	case 5: // model_version
		m.ModelVersion, err = f.varint64()
	case 6: // doc_string
		m.DocString, err = f.text()
	case 7: // graph
		m.Graph = &GraphProto{}
		err = f.message(m.Graph.decodeField)
	case 8: // opset_import
		m.OpsetImport, err = appendMessage(m.OpsetImport, f, (*OperatorSetID).fields)
	case 14: // metadata_props
		m.MetadataProps, err = appendMessage(m.MetadataProps, f, (*StringStringEntry).fields)
	case 20: // training_info
		m.TrainingInfo, err = appendMessage(m.TrainingInfo, f, (*TrainingInfoProto).fields)
	case 25: // functions
		m.Functions, err = appendMessage(m.Functions, f, (*FunctionProto).fields)
	}
	return err
}

func (g *GraphProto) fields() func(field) error { return g.decodeField }

func (g *GraphProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // node
		g.Nodes, err = appendMessage(g.Nodes, f, (*NodeProto).fields)
	case 2: // name
		g.Name, err = f.text()
	case 5: // initializer
		g.Initializers, err = appendMessage(g.Initializers, f, (*TensorProto).fields)
	case 10: // doc_string
		g.DocString, err = f.text()
	case 11: // input
		g.Inputs, err = appendMessage(g.Inputs, f, (*ValueInfoProto).fields)
	case 12: // output
		g.Outputs, err = appendMessage(g.Outputs, f, (*ValueInfoProto).fields)
	case 13: // value_info
		g.ValueInfo, err = appendMessage(g.ValueInfo, f, (*ValueInfoProto).fields)
	case 14: // quantization_annotation
		g.QuantizationAnnotation, err = appendMessage(g.QuantizationAnnotation, f, (*TensorAnnotation).fields)
	case 15: // sparse_initializer
		g.SparseInitializers, err = appendMessage(g.SparseInitializers, f, (*SparseTensorProto).fields)
	case 16: // metadata_props
		g.MetadataProps, err = appendMessage(g.MetadataProps, f, (*StringStringEntry).fields)
	}
	return err
}

func (n *NodeProto) fields() func(field) error { return n.decodeField }

func (n *NodeProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // input
		n.Inputs, err = appendText(n.Inputs, f)
	case 2: // output
		n.Outputs, err = appendText(n.Outputs, f)
	case 3: // name
		n.Name, err = f.text()
	case 4: // op_type
		n.OpType, err = f.text()
	case 5: // attribute
		n.Attributes, err = appendMessage(n.Attributes, f, (*AttributeProto).fields)
	case 6: // doc_string
		n.DocString, err = f.text()
	case 7: // domain
		n.Domain, err = f.text()
	case 8: // overload
		n.Overload, err = f.text()
	case 9: // metadata_props
		n.MetadataProps, err = appendMessage(n.MetadataProps, f, (*StringStringEntry).fields)
	}
	return err
}

func (a *AttributeProto) fields() func(field) error { return a.decodeField }

func (a *AttributeProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // name
		a.Name, err = f.text()
	case 2: // f
		a.F, err = f.float32()
	case 3: // i
		a.I, err = f.varint64()
	case 4: // s
		a.S, err = f.raw()
	case 5: // t
		a.T = &TensorProto{}
		err = f.message(a.T.decodeField)
	case 6: // g
		a.G = &GraphProto{}
		err = f.message(a.G.decodeField)
	case 7: // floats
		var values []float32
		if values, err = f.float32s(); err == nil {
			a.Floats = append(a.Floats, values...)
		}
	case 8: // ints
		var values []int64
		if values, err = f.int64s(); err == nil {
			a.Ints = append(a.Ints, values...)
		}
	case 9: // strings
		a.Strings, err = appendRaw(a.Strings, f)
	case 10: // tensors
		a.Tensors, err = appendMessage(a.Tensors, f, (*TensorProto).fields)
	case 11: // graphs
		a.Graphs, err = appendMessage(a.Graphs, f, (*GraphProto).fields)
	case 13: // doc_string
		a.DocString, err = f.text()
	case 14: // tp
		a.TP = &TypeProto{}
		err = f.message(a.TP.decodeField)
	case 15: // type_protos
		a.TypeProtos, err = appendMessage(a.TypeProtos, f, (*TypeProto).fields)
	case 20: // type
		a.Type, err = f.varint32()
	case 21: // ref_attr_name
		a.RefAttrName, err = f.text()
	case 22: // sparse_tensor
		a.SparseTensor = &SparseTensorProto{}
		err = f.message(a.SparseTensor.decodeField)
	case 23: // sparse_tensors
		a.SparseTensors, err = appendMessage(a.SparseTensors, f, (*SparseTensorProto).fields)
	}
	return err
}

func (t *TensorProto) fields() func(field) error { return t.decodeField }

func (t *TensorProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // dims
		var dims []int64
		if dims, err = f.int64s(); err == nil {
			t.Dims = append(t.Dims, dims...)
		}
	case 2: // data_type
		t.DataType, err = f.varint32()
	case 3: // segment
		t.Segment = &TensorSegment{}
		err = f.message(t.Segment.decodeField)
	case 4: // float_data
		var values []float32
		if values, err = f.float32s(); err == nil {
			t.FloatData = append(t.FloatData, values...)
		}
	case 5: // int32_data
		var values []int32
		if values, err = f.int32s(); err == nil {
			t.Int32Data = append(t.Int32Data, values...)
		}
	case 6: // string_data
		t.StringData, err = appendRaw(t.StringData, f)
	case 7: // int64_data
		var values []int64
		if values, err = f.int64s(); err == nil {
			t.Int64Data = append(t.Int64Data, values...)
		}
	case 8: // name
		t.Name, err = f.text()
	case 9: // raw_data
		t.RawData, err = f.raw()
	case 10: // double_data
		var values []float64
		if values, err = f.float64s(); err == nil {
			t.DoubleData = append(t.DoubleData, values...)
		}
	case 11: // uint64_data
		var values []uint64
		if values, err = f.uint64s(); err == nil {
			t.Uint64Data = append(t.Uint64Data, values...)
		}
	case 12: // doc_string
		t.DocString, err = f.text()
	case 13: // external_data
		t.ExternalData, err = appendMessage(t.ExternalData, f, (*StringStringEntry).fields)
	case 14: // data_location
		t.DataLocation, err = f.varint32()
	case 16: // metadata_props
		t.MetadataProps, err = appendMessage(t.MetadataProps, f, (*StringStringEntry).fields)
	}
	return err
}

func (s *TensorSegment) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // begin
		s.Begin, err = f.varint64()
	case 2: // end
		s.End, err = f.varint64()
	}
	return err
}

func (s *SparseTensorProto) fields() func(field) error { return s.decodeField }

func (s *SparseTensorProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // values
		s.Values = &TensorProto{}
		err = f.message(s.Values.decodeField)
	case 2: // indices
		s.Indices = &TensorProto{}
		err = f.message(s.Indices.decodeField)
	case 3: // dims
		var dims []int64
		if dims, err = f.int64s(); err == nil {
			s.Dims = append(s.Dims, dims...)
		}
	}
	return err
}

func (a *TensorAnnotation) fields() func(field) error { return a.decodeField }

func (a *TensorAnnotation) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // tensor_name
		a.TensorName, err = f.text()
	case 2: // quant_parameter_tensor_names
		a.QuantParameterTensorName, err = appendMessage(a.QuantParameterTensorName, f, (*StringStringEntry).fields)
	}
	return err
}

func (t *TrainingInfoProto) fields() func(field) error { return t.decodeField }

func (t *TrainingInfoProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // initialization
		t.Initialization = &GraphProto{}
		err = f.message(t.Initialization.decodeField)
	case 2: // algorithm
		t.Algorithm = &GraphProto{}
		err = f.message(t.Algorithm.decodeField)
	case 3: // initialization_binding
		t.InitializationBinding, err = appendMessage(t.InitializationBinding, f, (*StringStringEntry).fields)
	case 4: // update_binding
		t.UpdateBinding, err = appendMessage(t.UpdateBinding, f, (*StringStringEntry).fields)
	}
	return err
}

func (fn *FunctionProto) fields() func(field) error { return fn.decodeField }

func (fn *FunctionProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // name
		fn.Name, err = f.text()
	case 4: // input
		fn.Inputs, err = appendText(fn.Inputs, f)
	case 5: // output
		fn.Outputs, err = appendText(fn.Outputs, f)
	case 6: // attribute
		fn.Attributes, err = appendText(fn.Attributes, f)
	case 7: // node
		fn.Nodes, err = appendMessage(fn.Nodes, f, (*NodeProto).fields)
	case 8: // doc_string
		fn.DocString, err = f.text()
	case 9: // opset_import
		fn.OpsetImport, err = appendMessage(fn.OpsetImport, f, (*OperatorSetID).fields)
	case 10: // domain
		fn.Domain, err = f.text()
	case 11: // attribute_proto
		fn.AttributeProto, err = appendMessage(fn.AttributeProto, f, (*AttributeProto).fields)
	case 12: // value_info
		fn.ValueInfo, err = appendMessage(fn.ValueInfo, f, (*ValueInfoProto).fields)
	case 13: // overload
		fn.Overload, err = f.text()
	case 14: // metadata_props
		fn.MetadataProps, err = appendMessage(fn.MetadataProps, f, (*StringStringEntry).fields)
	}
	return err
}

func (v *ValueInfoProto) fields() func(field) error { return v.decodeField }

func (v *ValueInfoProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // name
		v.Name, err = f.text()
	case 2: // type
		v.Type = &TypeProto{}
		err = f.message(v.Type.decodeField)
	case 3: // doc_string
		v.DocString, err = f.text()
	case 4: // metadata_props
		v.MetadataProps, err = appendMessage(v.MetadataProps, f, (*StringStringEntry).fields)
	}
	return err
}

func (t *TypeProto) fields() func(field) error { return t.decodeField }

func (t *TypeProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // tensor_type
		t.TensorType = &TensorTypeProto{}
		t.Kind = KindTensor
		err = f.message(t.TensorType.decodeField)
	case 4: // sequence_type
		t.Kind = KindSequence
		err = f.message(func(f field) error {
			if f.num != 1 { // elem_type
				return nil
			}
			t.SequenceElem = &TypeProto{}
			return f.message(t.SequenceElem.decodeField)
		})
	case 5: // map_type
		t.Kind = KindMap
		t.MapType = &MapTypeProto{}
		err = f.message(t.MapType.decodeField)
	case 6: // denotation
		t.Denotation, err = f.text()
	case 8: // sparse_tensor_type
		t.Kind = KindSparseTensor
		t.SparseTensorType = &TensorTypeProto{}
		err = f.message(t.SparseTensorType.decodeField)
	case 9: // optional_type
		t.Kind = KindOptional
		err = f.message(func(f field) error {
			if f.num != 1 { // elem_type
				return nil
			}
			t.OptionalElem = &TypeProto{}
			return f.message(t.OptionalElem.decodeField)
		})
	}
	return err
}

func (m *MapTypeProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // key_type
		m.KeyType, err = f.varint32()
	case 2: // value_type
		m.ValueType = &TypeProto{}
		err = f.message(m.ValueType.decodeField)
	}
	return err
}

func (t *TensorTypeProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // elem_type
		t.ElemType, err = f.varint32()
	case 2: // shape
		t.Shape = &TensorShapeProto{}
		err = f.message(t.Shape.decodeField)
	}
	return err
}

func (s *TensorShapeProto) decodeField(f field) error {
	if f.num != 1 { // dim
		return nil
	}
	var dim DimensionProto
	if err := f.message(dim.decodeField); err != nil {
		return err
	}
	s.Dims = append(s.Dims, dim)
	return nil
}

func (d *DimensionProto) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // dim_value
		d.Value, err = f.varint64()
		d.HasValue = err == nil
	case 2: // dim_param
		d.Param, err = f.text()
	case 3: // denotation
		d.Denotation, err = f.text()
	}
	return err
}

func (o *OperatorSetID) fields() func(field) error { return o.decodeField }

func (o *OperatorSetID) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // domain
		o.Domain, err = f.text()
	case 2: // version
		o.Version, err = f.varint64()
	}
	return err
}

func (e *StringStringEntry) fields() func(field) error { return e.decodeField }

func (e *StringStringEntry) decodeField(f field) error {
	var err error
	switch f.num {
	case 1: // key
		e.Key, err = f.text()
	case 2: // value
		e.Value, err = f.text()
	}
	return err
}
