package modelship

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datalpia/modelship/internal/onnx/onnxtest"
	"github.com/datalpia/modelship/pkg/inference"
	"github.com/datalpia/modelship/pkg/site"
	"github.com/datalpia/modelship/pkg/testsupport"
)

func TestAppInfo(t *testing.T) {
	info := AppInfo()
	if info.Name != "🚢 Modelship" || info.Version != Version || info.RepositoryURL != RepositoryURL {
		t.Fatalf("unexpected app info %+v", info)
	}
}

func TestEmbeddedAssets(t *testing.T) {
	if _, err := fs.ReadFile(EmbeddedTemplates(), site.DefaultTemplate); err != nil {
		t.Fatalf("expected the page template to be readable: %v", err)
	}
	data, err := fs.ReadFile(VendorFS(), "VERSION")
	if err != nil {
		t.Fatalf("expected the vendor version to be readable: %v", err)
	}
	if !strings.HasPrefix(string(data), "onnxruntime-web ") {
		t.Fatalf("unexpected vendor version %q", data)
	}
}

func TestNewOpener(t *testing.T) {
	if _, ok := NewOpener("").(inference.ParserOpener); !ok {
		t.Fatalf("expected the parser backend without a library path")
	}
}

func TestDraftMetadata(t *testing.T) {
	path := onnxtest.Iris().WriteFile(t, t.TempDir(), "iris.onnx")

	draft, err := DraftMetadata(testsupport.Context(), path)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Name != "iris" {
		t.Fatalf("expected the file stem as name, got %q", draft.Name)
	}
	if keys := strings.Join(draft.InputKeys(), ","); keys != "float_input,label" {
		t.Fatalf("unexpected input keys %s", keys)
	}
}

func TestInspect(t *testing.T) {
	path := onnxtest.Iris().WriteFile(t, t.TempDir(), "iris.onnx")

	var buf bytes.Buffer
	if err := Inspect(testsupport.Context(), &buf, path); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(buf.String(), "Model file: "+path+"\n") {
		t.Fatalf("report does not name the model:\n%s", buf.String())
	}
}

func TestGenerateStatic(t *testing.T) {
	dir := t.TempDir()
	modelPath := onnxtest.Iris().WriteFile(t, dir, "iris.onnx")
	metadataPath := filepath.Join("pkg", "site", "testdata", "iris.yaml")
	out := filepath.Join(dir, "site")

	vendor := testsupport.MustWriteVendorBundle(t, filepath.Join(dir, "vendor"))

	result, err := GenerateStatic(testsupport.Context(), StaticRequest{
		ModelPath:    modelPath,
		MetadataPath: metadataPath,
		OutputDir:    out,
	}, site.WithVendorDir(vendor))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.OutputDir != out {
		t.Fatalf("unexpected output dir %q", result.OutputDir)
	}

	page, err := os.ReadFile(filepath.Join(out, site.IndexFileName))
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if !strings.Contains(string(page), ">🚢 Modelship</a> "+Version) {
		t.Fatalf("page footer does not carry the app info")
	}

	loaded, err := LoadMetadata(metadataPath)
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	if loaded.Name != result.Metadata.Name {
		t.Fatalf("result metadata %q, want %q", result.Metadata.Name, loaded.Name)
	}
}
