package inference_test

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/datalpia/modelship/internal/onnx/onnxtest"
	"github.com/datalpia/modelship/pkg/inference"
)

func TestParserOpener_Iris(t *testing.T) {
	path := onnxtest.Iris().WriteFile(t, t.TempDir(), "iris.onnx")

	session, err := inference.ParserOpener{}.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer session.Close()

	wantInfo := inference.ModelInfo{
		Description:      "Iris species classifier",
		Domain:           "ai.onnx",
		Version:          3,
		ProducerName:     "skl2onnx",
		GraphName:        "iris_graph",
		GraphDescription: "logistic regression",
		Custom:           map[string]string{"author": "datalpia"},
	}
	if diff := cmp.Diff(wantInfo, session.Metadata()); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}

	wantInputs := []inference.TensorInfo{
		{Name: "float_input", Type: "tensor(float)", Shape: inference.Shape{{Param: "batch_size"}, {Size: 4}}},
		{Name: "label", Type: "tensor(string)", Shape: inference.Shape{{Size: 1}}},
	}
	if diff := cmp.Diff(wantInputs, session.Inputs()); diff != "" {
		t.Fatalf("inputs mismatch (-want +got):\n%s", diff)
	}

	wantOutputs := []inference.TensorInfo{
		{Name: "probabilities", Type: "tensor(float)", Shape: inference.Shape{{}, {Size: 3}}},
	}
	if diff := cmp.Diff(wantOutputs, session.Outputs()); diff != "" {
		t.Fatalf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestParserOpener_MissingFile(t *testing.T) {
	_, err := inference.ParserOpener{}.Open(context.Background(), filepath.Join(t.TempDir(), "absent.onnx"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestParserOpener_CanceledContext(t *testing.T) {
	path := onnxtest.Iris().WriteFile(t, t.TempDir(), "iris.onnx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (inference.ParserOpener{}).Open(ctx, path); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewOpener(t *testing.T) {
	if _, ok := inference.NewOpener("").(inference.ParserOpener); !ok {
		t.Fatalf("expected the built-in backend without a library path")
	}
	if _, ok := inference.NewOpener("  ").(inference.ParserOpener); !ok {
		t.Fatalf("expected the built-in backend for a blank library path")
	}
	got, ok := inference.NewOpener("/opt/onnxruntime/lib/libonnxruntime.so").(inference.RuntimeOpener)
	if !ok {
		t.Fatalf("expected the runtime backend when a library path is set")
	}
	if got.LibraryPath != "/opt/onnxruntime/lib/libonnxruntime.so" {
		t.Fatalf("library path not kept: %q", got.LibraryPath)
	}
}

func TestShapeString(t *testing.T) {
	shape := inference.Shape{{Param: "batch_size"}, {Size: -1}, {Size: 224}}
	if got := shape.String(); got != "[batch_size, None, 224]" {
		t.Fatalf("unexpected shape rendering %q", got)
	}
	if got := (inference.Shape{}).String(); got != "[]" {
		t.Fatalf("unexpected scalar rendering %q", got)
	}
}
