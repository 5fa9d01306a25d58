// Package onnxtest synthesizes small ONNX models for tests.
package onnxtest

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/datalpia/modelship/internal/onnx"
)

// Dim is a fixed size when Value > 0, a symbolic axis when Param is set and
// an unknown axis otherwise.
type Dim struct {
	Value int64
	Param string
}

// Tensor describes a graph input or output.
type Tensor struct {
	Name      string
	ElemType  int32
	Dims      []Dim
	DocString string
}

// Node is a single operator.
type Node struct {
	Name       string
	OpType     string
	Inputs     []string
	Outputs    []string
	Attributes []Attribute
}

// Attribute is a node attribute. Only the value matching Type is encoded,
// zero or not.
type Attribute struct {
	Name   string
	Type   int32
	F      float32
	I      int64
	S      string
	Floats []float32
	Ints   []int64
}

// Model is the subset of ModelProto the tests need to control.
type Model struct {
	IRVersion       int64
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Opset           int64
	GraphName       string
	GraphDoc        string
	Nodes           []Node
	// Initializers are float tensors of shape [1]; names listed here are
	// also declared as graph inputs, as older exporters do.
	Initializers []string
	Inputs       []Tensor
	Outputs      []Tensor
	Props        [][2]string
}

// Iris is a classifier with a dynamic batch axis, a string side input and
// one weight that is also listed among the graph inputs.
func Iris() Model {
	return Model{
		IRVersion:       8,
		ProducerName:    "skl2onnx",
		ProducerVersion: "1.16.0",
		Domain:          "ai.onnx",
		ModelVersion:    3,
		DocString:       "Iris species classifier",
		Opset:           17,
		GraphName:       "iris_graph",
		GraphDoc:        "logistic regression",
		Nodes: []Node{
			{Name: "linear", OpType: "MatMul", Inputs: []string{"float_input", "coef"}, Outputs: []string{"probabilities"}},
		},
		Initializers: []string{"coef"},
		Inputs: []Tensor{
			{Name: "float_input", ElemType: 1, Dims: []Dim{{Param: "batch_size"}, {Value: 4}}},
			{Name: "label", ElemType: 8, Dims: []Dim{{Value: 1}}},
		},
		Outputs: []Tensor{
			{Name: "probabilities", ElemType: 1, Dims: []Dim{{}, {Value: 3}}},
		},
		Props: [][2]string{{"author", "datalpia"}},
	}
}

// Bytes encodes the model in the protobuf wire format.
func (m Model) Bytes() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.IRVersion))
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	b = appendVarint(b, 5, uint64(m.ModelVersion))
	b = appendString(b, 6, m.DocString)
	b = appendMessage(b, 7, m.graph())
	if m.Opset > 0 {
		b = appendMessage(b, 8, appendVarint(nil, 2, uint64(m.Opset)))
	}
	for _, prop := range m.Props {
		entry := appendString(nil, 1, prop[0])
		entry = appendString(entry, 2, prop[1])
		b = appendMessage(b, 14, entry)
	}
	return b
}

// WriteFile stores the encoded model under dir and returns its path.
func (m Model) WriteFile(tb testing.TB, dir, name string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, m.Bytes(), 0o644); err != nil {
		tb.Fatalf("write model %s: %v", path, err)
	}
	return path
}

func (m Model) graph() []byte {
	var g []byte
	for _, node := range m.Nodes {
		var n []byte
		for _, in := range node.Inputs {
			n = appendString(n, 1, in)
		}
		for _, out := range node.Outputs {
			n = appendString(n, 2, out)
		}
		n = appendString(n, 3, node.Name)
		n = appendString(n, 4, node.OpType)
		for _, attr := range node.Attributes {
			n = appendMessage(n, 5, attr.bytes())
		}
		g = appendMessage(g, 1, n)
	}
	g = appendString(g, 2, m.GraphName)
	for _, name := range m.Initializers {
		var t []byte
		t = appendVarint(t, 1, 1)
		t = appendVarint(t, 2, 1)
		t = appendString(t, 8, name)
		t = protowire.AppendTag(t, 9, protowire.BytesType)
		t = protowire.AppendBytes(t, []byte{0, 0, 0x80, 0x3f})
		g = appendMessage(g, 5, t)
	}
	g = appendString(g, 10, m.GraphDoc)
	for _, in := range m.Inputs {
		g = appendMessage(g, 11, in.valueInfo())
	}
	for _, name := range m.Initializers {
		g = appendMessage(g, 11, Tensor{Name: name, ElemType: 1, Dims: []Dim{{Value: 1}}}.valueInfo())
	}
	for _, out := range m.Outputs {
		g = appendMessage(g, 12, out.valueInfo())
	}
	return g
}

func (t Tensor) valueInfo() []byte {
	var shape []byte
	for _, dim := range t.Dims {
		var d []byte
		switch {
		case dim.Value > 0:
			d = appendVarint(d, 1, uint64(dim.Value))
		case dim.Param != "":
			d = appendString(d, 2, dim.Param)
		}
		shape = appendMessage(shape, 1, d)
	}
	tensor := appendVarint(nil, 1, uint64(t.ElemType))
	tensor = appendMessage(tensor, 2, shape)

	v := appendString(nil, 1, t.Name)
	v = appendMessage(v, 2, appendMessage(nil, 1, tensor))
	v = appendString(v, 3, t.DocString)
	return v
}

func (a Attribute) bytes() []byte {
	b := appendString(nil, 1, a.Name)
	switch a.Type {
	case onnx.AttributeFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case onnx.AttributeInt:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.I))
	case onnx.AttributeString:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, a.S)
	case onnx.AttributeFloats:
		var packed []byte
		for _, v := range a.Floats {
			packed = binary.LittleEndian.AppendUint32(packed, math.Float32bits(v))
		}
		b = appendMessage(b, 7, packed)
	case onnx.AttributeInts:
		var packed []byte
		for _, v := range a.Ints {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		b = appendMessage(b, 8, packed)
	}
	return appendVarint(b, 20, uint64(a.Type))
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
