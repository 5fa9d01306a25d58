// Package scaffold drafts metadata descriptions from a model's declared
// inputs and outputs, so users have a starting point for the static site.
//
// A draft is only a starting point: it is validated before it is written and
// the generator always trusts the file the user ends up with.
package scaffold

import (
	"strconv"
	"strings"

	"github.com/datalpia/modelship/internal/onnx"
	"github.com/datalpia/modelship/pkg/metadata"
)

// Draft describes model with one entry per declared graph input (weights
// excluded) and output. Text tensors become string entries and every other
// element type becomes float32. The display name is name, or the graph name
// when name is empty.
func Draft(model *onnx.ModelProto, name string) metadata.Model {
	draft := metadata.Model{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(model.DocString),
		Inputs:      map[string]metadata.Input{},
		Outputs:     map[string]metadata.Output{},
	}
	graph := model.Graph
	if graph == nil {
		return draft
	}
	if graph.Name != "" && draft.Name == "" {
		draft.Name = graph.Name
	}
	if draft.Description == "" {
		draft.Description = strings.TrimSpace(graph.DocString)
	}

	for _, in := range graph.DeclaredInputs() {
		draft.Inputs[keyFor(in.Name, draft.Inputs)] = metadata.Input{
			Name:  in.Name,
			Type:  ioType(in.Type),
			Shape: shapeOf(in.Type),
		}
	}
	for _, out := range graph.Outputs {
		draft.Outputs[keyFor(out.Name, draft.Outputs)] = metadata.Output{
			Name:  out.Name,
			Type:  ioType(out.Type),
			Shape: shapeOf(out.Type),
		}
	}
	return draft
}

func ioType(t *onnx.TypeProto) metadata.IOType {
	if t.ElemType() == onnx.DataTypeString {
		return metadata.TypeString
	}
	return metadata.TypeFloat32
}

func shapeOf(t *onnx.TypeProto) metadata.Shape {
	dims := t.Dims()
	shape := make(metadata.Shape, len(dims))
	for i, d := range dims {
		if d.HasValue && d.Value > 0 {
			shape[i] = metadata.Dimension(d.Value)
			continue
		}
		shape[i] = metadata.UnknownDimension
	}
	return shape
}

// keyFor derives a display key from a tensor name: lower case, separators
// folded to underscores, made unique within taken.
func keyFor[V any](tensor string, taken map[string]V) string {
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(tensor))
	if key == "" {
		key = "tensor"
	}
	candidate := key
	for n := 2; ; n++ {
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
		candidate = key + "_" + strconv.Itoa(n)
	}
}
