package metadata_test

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/datalpia/modelship/pkg/metadata"
)

func ptr(f float64) *float64 { return &f }

func valuePtr(v metadata.Value) *metadata.Value { return &v }

func TestLoad_DemoExample(t *testing.T) {
	model, err := metadata.Load(filepath.Join("testdata", "demo.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := metadata.Model{
		Name: "demo",
		Inputs: map[string]metadata.Input{
			"x": {Name: "x", Type: metadata.TypeFloat32, Shape: metadata.Shape{1, 224, 224, 3}},
		},
		Outputs: map[string]metadata.Output{
			"y": {Name: "y", Type: metadata.TypeFloat32, Shape: metadata.Shape{1, 1000}},
		},
	}
	if diff := cmp.Diff(want, model); diff != "" {
		t.Fatalf("model mismatch (-want +got):\n%s", diff)
	}

	encoded, err := model.JSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(encoded), &got); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	wantJSON := map[string]any{
		"name": "demo",
		"inputs": map[string]any{
			"x": map[string]any{"name": "x", "type": "float32", "shape": []any{1.0, 224.0, 224.0, 3.0}},
		},
		"outputs": map[string]any{
			"y": map[string]any{"name": "y", "type": "float32", "shape": []any{1.0, 1000.0}},
		},
	}
	if diff := cmp.Diff(wantJSON, got); diff != "" {
		t.Fatalf("serialised form mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_JSONDocument(t *testing.T) {
	fromJSON, err := metadata.Load(filepath.Join("testdata", "demo.json"))
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	fromYAML, err := metadata.Load(filepath.Join("testdata", "demo.yaml"))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if diff := cmp.Diff(fromYAML, fromJSON); diff != "" {
		t.Fatalf("json and yaml descriptions differ (-yaml +json):\n%s", diff)
	}
}

func TestLoad_OptionalFields(t *testing.T) {
	model, err := metadata.Load(filepath.Join("testdata", "iris.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := metadata.Model{
		Name:        "Iris classifier",
		Description: "Predicts the <em>species</em> of an iris flower.",
		Inputs: map[string]metadata.Input{
			"features": {
				Name:    "float_input",
				Type:    metadata.TypeFloat32,
				Shape:   metadata.Shape{metadata.UnknownDimension, 4},
				Min:     ptr(0),
				Max:     ptr(10),
				Step:    ptr(0.1),
				Default: valuePtr(metadata.NumberValue(5.5)),
			},
			"label": {
				Name:    "label",
				Type:    metadata.TypeString,
				Shape:   metadata.Shape{1},
				Default: valuePtr(metadata.TextValue("setosa")),
			},
		},
		Outputs: map[string]metadata.Output{
			"probabilities": {
				Name:  "probabilities",
				Type:  metadata.TypeFloat32,
				Shape: metadata.Shape{metadata.UnknownDimension, 3},
			},
		},
	}
	if diff := cmp.Diff(want, model); diff != "" {
		t.Fatalf("model mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"features", "label"}, model.InputKeys()); diff != "" {
		t.Fatalf("input keys mismatch (-want +got):\n%s", diff)
	}
}

func TestModelJSON_RoundTrip(t *testing.T) {
	for _, name := range []string{"demo.yaml", "iris.yaml"} {
		t.Run(name, func(t *testing.T) {
			original, err := metadata.Load(filepath.Join("testdata", name))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			encoded, err := original.JSON()
			if err != nil {
				t.Fatalf("json: %v", err)
			}
			reparsed, err := metadata.Parse([]byte(encoded), "roundtrip.json")
			if err != nil {
				t.Fatalf("reparse: %v", err)
			}
			if diff := cmp.Diff(original, reparsed); diff != "" {
				t.Fatalf("round trip mismatch (-original +reparsed):\n%s", diff)
			}
		})
	}
}

func TestModelJSON_EscapesMarkup(t *testing.T) {
	model, err := metadata.Parse([]byte(`
name: "</script><script>alert(1)</script>"
inputs: {}
outputs: {}
`), "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	encoded, err := model.JSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if strings.Contains(encoded, "</script>") {
		t.Fatalf("expected markup to be escaped, got %s", encoded)
	}
}

func TestParse_MissingRequiredField(t *testing.T) {
	_, err := metadata.Parse([]byte(`
name: demo
inputs:
  x:
    type: float32
    shape: [1]
outputs: {}
`), "missing.yaml")

	var verr *metadata.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !verr.HasField("inputs.x.name") {
		t.Fatalf("expected issue for inputs.x.name, got %v", verr.Issues())
	}
	if !strings.Contains(err.Error(), "inputs.x.name: field is required") {
		t.Fatalf("error should name the field, got %q", err.Error())
	}
}

func TestParse_MissingModelFields(t *testing.T) {
	_, err := metadata.Parse([]byte(`description: nothing else`), "")

	var verr *metadata.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	var fields []string
	for _, issue := range verr.Issues() {
		fields = append(fields, issue.Field)
	}
	want := []string{"inputs", "name", "outputs"}
	if diff := cmp.Diff(want, fields, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("issue fields mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_TextInputRejectsNumericDefault(t *testing.T) {
	_, err := metadata.Parse([]byte(`
name: demo
inputs:
  prompt:
    name: prompt
    type: string
    shape: [1]
    default: 0.5
outputs: {}
`), "")

	var verr *metadata.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !verr.HasField("inputs.prompt.default") {
		t.Fatalf("expected issue for inputs.prompt.default, got %v", verr.Issues())
	}
}

func TestParse_NumericInputRejectsTextDefault(t *testing.T) {
	_, err := metadata.Parse([]byte(`
name: demo
inputs:
  x:
    name: x
    type: float32
    shape: [1]
    default: "high"
outputs: {}
`), "")

	var verr *metadata.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !verr.HasField("inputs.x.default") {
		t.Fatalf("expected issue for inputs.x.default, got %v", verr.Issues())
	}
}

func TestParse_ReportsEveryIssue(t *testing.T) {
	_, err := metadata.Load(filepath.Join("testdata", "broken.yaml"))

	var verr *metadata.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	got := verr.Issues()
	want := []metadata.Issue{
		{Path: "/extra", Field: "extra", Message: "unknown field"},
		{Path: "/inputs/prompt/default", Field: "inputs.prompt.default", Message: "must be a string for string inputs"},
		{Path: "/inputs/prompt/name", Field: "inputs.prompt.name", Message: "field is required"},
		{Path: "/inputs/prompt/shape/1", Field: "inputs.prompt.shape.1", Message: `must be a positive integer, null or "unknown"`},
		{Path: "/inputs/x/min", Field: "inputs.x.min", Message: "must not exceed max (5 > 1)"},
		{Path: "/inputs/x/type", Field: "inputs.x.type", Message: `must be one of "float32" or "string"`},
		{Path: "/outputs/y/shape", Field: "outputs.y.shape", Message: "field is required"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "7 validation issues") {
		t.Fatalf("expected issue count in message, got %q", err.Error())
	}
}

func TestParse_ShapeEntries(t *testing.T) {
	tests := []struct {
		name    string
		shape   string
		want    metadata.Shape
		wantErr bool
	}{
		{name: "fixed", shape: "[1, 3]", want: metadata.Shape{1, 3}},
		{name: "null", shape: "[~, 3]", want: metadata.Shape{metadata.UnknownDimension, 3}},
		{name: "unknown keyword", shape: `["unknown", 3]`, want: metadata.Shape{metadata.UnknownDimension, 3}},
		{name: "empty", shape: "[]", want: metadata.Shape{}},
		{name: "zero", shape: "[0]", wantErr: true},
		{name: "negative", shape: "[-1]", wantErr: true},
		{name: "fraction", shape: "[1.5]", wantErr: true},
		{name: "other text", shape: `["batch"]`, wantErr: true},
		{name: "not a list", shape: "3", wantErr: true},
		{name: "largest exact integer", shape: "[9007199254740992]", want: metadata.Shape{9007199254740992}},
		{name: "beyond exact integers", shape: "[9007199254740993]", wantErr: true},
		{name: "max int64", shape: "[9223372036854775807]", wantErr: true},
		{name: "huge float", shape: "[9.223372036854775808e18]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "name: m\ninputs: {}\noutputs:\n  y:\n    name: y\n    type: float32\n    shape: " + tt.shape + "\n"
			model, err := metadata.Parse([]byte(doc), "")
			if tt.wantErr {
				var verr *metadata.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected *ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, model.Outputs["y"].Shape); diff != "" {
				t.Fatalf("shape mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_DuplicateTensorNames(t *testing.T) {
	_, err := metadata.Parse([]byte(`
name: demo
inputs:
  a: {name: x, type: float32, shape: [1]}
  b: {name: x, type: float32, shape: [1]}
outputs: {}
`), "")

	var verr *metadata.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !verr.HasField("inputs.b.name") {
		t.Fatalf("expected duplicate name reported on inputs.b.name, got %v", verr.Issues())
	}
}

func TestParse_MalformedDocuments(t *testing.T) {
	tests := map[string]string{
		"empty":         "   \n",
		"syntax":        "name: [unterminated",
		"scalar":        "just text",
		"list":          "- a\n- b\n",
		"duplicate key": "name: a\nname: b\ninputs: {}\noutputs: {}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := metadata.Parse([]byte(doc), "bad.yaml")
			var verr *metadata.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if len(verr.Issues()) == 0 {
				t.Fatalf("expected at least one issue")
			}
		})
	}
}

func TestParse_ValuesWithoutJSONForm(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{
			name:  "integer mapping key",
			doc:   "name: m\ninputs:\n  0: {name: x, type: float32, shape: [1]}\noutputs: {}\n",
			field: "inputs.0",
		},
		{
			name:  "infinite default",
			doc:   "name: m\ninputs:\n  x: {name: x, type: float32, shape: [1], default: .inf}\noutputs: {}\n",
			field: "inputs.x.default",
		},
		{
			name:  "integer beyond float64 precision",
			doc:   "name: m\ninputs:\n  x: {name: x, type: int64, shape: [1], default: 9007199254740993}\noutputs: {}\n",
			field: "inputs.x.default",
		},
		{
			name:  "nan bound",
			doc:   "name: m\ninputs:\n  x: {name: x, type: float32, shape: [1], min: .nan}\noutputs: {}\n",
			field: "inputs.x.min",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := metadata.Parse([]byte(tt.doc), "odd.yaml")
			var verr *metadata.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !verr.HasField(tt.field) {
				t.Fatalf("expected an issue on %s, got %v", tt.field, verr.Issues())
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := metadata.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
	var verr *metadata.ValidationError
	if errors.As(err, &verr) {
		t.Fatalf("filesystem errors must not be reported as validation errors")
	}
}

func TestDimensionJSON(t *testing.T) {
	var shape metadata.Shape
	if err := json.Unmarshal([]byte(`[null, "unknown", 7]`), &shape); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(metadata.Shape{0, 0, 7}, shape); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	encoded, err := json.Marshal(shape)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != "[null,null,7]" {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	if shape.String() != "[?, ?, 7]" {
		t.Fatalf("unexpected string form %s", shape.String())
	}
	if err := json.Unmarshal([]byte(`[0]`), &shape); err == nil {
		t.Fatalf("expected zero dimension to be rejected")
	}
}
