package inference

import (
	"context"

	"github.com/datalpia/modelship/internal/onnx"
)

// ParserOpener is the built-in backend. It never executes the model.
type ParserOpener struct{}

// Open decodes the model at path.
func (ParserOpener) Open(ctx context.Context, path string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := onnx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return NewParsedSession(model), nil
}

// NewParsedSession wraps an already decoded model.
func NewParsedSession(model *onnx.ModelProto) Session {
	s := &parsedSession{}
	s.info = ModelInfo{
		Description:  model.DocString,
		Domain:       model.Domain,
		Version:      model.ModelVersion,
		ProducerName: model.ProducerName,
	}
	if len(model.MetadataProps) > 0 {
		s.info.Custom = make(map[string]string, len(model.MetadataProps))
		for _, prop := range model.MetadataProps {
			s.info.Custom[prop.Key] = prop.Value
		}
	}
	if g := model.Graph; g != nil {
		s.info.GraphName = g.Name
		s.info.GraphDescription = g.DocString
		s.inputs = tensorInfos(g.DeclaredInputs())
		s.outputs = tensorInfos(g.Outputs)
	}
	return s
}

type parsedSession struct {
	info    ModelInfo
	inputs  []TensorInfo
	outputs []TensorInfo
}

func (s *parsedSession) Metadata() ModelInfo   { return s.info }
func (s *parsedSession) Inputs() []TensorInfo  { return s.inputs }
func (s *parsedSession) Outputs() []TensorInfo { return s.outputs }
func (s *parsedSession) Close() error          { return nil }

func tensorInfos(values []onnx.ValueInfoProto) []TensorInfo {
	out := make([]TensorInfo, 0, len(values))
	for _, v := range values {
		out = append(out, TensorInfo{
			Name:  v.Name,
			Type:  v.Type.Describe(),
			Shape: shapeOf(v.Type.Dims()),
		})
	}
	return out
}

func shapeOf(dims []onnx.DimensionProto) Shape {
	shape := make(Shape, len(dims))
	for i, d := range dims {
		if d.HasValue && d.Value > 0 {
			shape[i] = Dim{Size: d.Value}
			continue
		}
		shape[i] = Dim{Param: d.Param}
	}
	return shape
}
