// Package inference opens model sessions that report a model's metadata and
// its input/output signatures.
//
// Two backends exist. The built-in backend reads the declared structure with
// the internal ONNX decoder and needs nothing else. The runtime backend loads
// the model through ONNX Runtime (github.com/yalue/onnxruntime_go), which
// requires cgo and the onnxruntime shared library; it reports what the
// runtime itself resolved for the model.
package inference

import (
	"context"
	"strconv"
	"strings"
)

// Dim is one tensor axis. Size is zero or negative for dynamic axes, in which
// case Param may hold the symbolic name declared by the model.
type Dim struct {
	Size  int64
	Param string
}

// Dynamic reports whether the axis has no fixed size.
func (d Dim) Dynamic() bool {
	return d.Size <= 0
}

// String renders fixed sizes as numbers, symbolic axes by name and other
// dynamic axes as None.
func (d Dim) String() string {
	switch {
	case !d.Dynamic():
		return strconv.FormatInt(d.Size, 10)
	case d.Param != "":
		return d.Param
	default:
		return "None"
	}
}

// Shape is an ordered list of axes.
type Shape []Dim

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = dim.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// TensorInfo describes one model input or output.
type TensorInfo struct {
	Name string
	// Type is spelled the way ONNX Runtime reports it, e.g. "tensor(float)".
	Type  string
	Shape Shape
}

// ModelInfo is the metadata a session reports for its model.
type ModelInfo struct {
	Description      string
	Domain           string
	Version          int64
	ProducerName     string
	GraphName        string
	GraphDescription string
	Custom           map[string]string
}

// Session is an opened model.
type Session interface {
	Metadata() ModelInfo
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	Close() error
}

// Opener opens sessions for model files.
type Opener interface {
	Open(ctx context.Context, path string) (Session, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) (Session, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, path string) (Session, error) {
	return f(ctx, path)
}

// NewOpener returns the runtime backend when libraryPath names an
// onnxruntime shared library and the built-in backend otherwise.
func NewOpener(libraryPath string) Opener {
	if strings.TrimSpace(libraryPath) == "" {
		return ParserOpener{}
	}
	return RuntimeOpener{LibraryPath: libraryPath}
}
