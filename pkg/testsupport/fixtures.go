package testsupport

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/datalpia/modelship/pkg/metadata"
	"github.com/datalpia/modelship/pkg/site"
)

// MustLoadMetadata loads and validates a metadata fixture.
func MustLoadMetadata(t *testing.T, path string) metadata.Model {
	t.Helper()

	model, err := metadata.Load(path)
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	return model
}

// MustWriteFile writes data to path, creating parent directories.
func MustWriteFile(t *testing.T, path string, data []byte) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// MustReadGolden reads a golden file and returns its raw bytes.
func MustReadGolden(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}

// MustReadGoldenString reads a golden file and returns its string content.
func MustReadGoldenString(t *testing.T, path string) string {
	t.Helper()
	return string(MustReadGolden(t, path))
}

// WriteMaybeGolden updates a golden file when UPDATE_GOLDENS is set. Returns
// true if the golden was written (test should exit early).
func WriteMaybeGolden(t *testing.T, path string, data []byte) bool {
	t.Helper()
	if os.Getenv("UPDATE_GOLDENS") == "" {
		return false
	}
	MustWriteFile(t, path, data)
	return true
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// CaptureTemplateOutput executes a render function that writes to an io.Writer,
// returning both the string result and the writer contents. Tests can assert
// the renderer returns and writes the same payload without duplicating buffer
// setup.
func CaptureTemplateOutput(t *testing.T, render func(io.Writer) (string, error)) (string, string) {
	t.Helper()

	var buf bytes.Buffer
	out, err := render(&buf)
	if err != nil {
		t.Fatalf("render template: %v", err)
	}

	return out, buf.String()
}

// TreeFiles lists the regular files below root as slash-separated relative
// paths, in walk order.
func TreeFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}

// VendorBundle returns a stand-in browser runtime holding every file a
// generated page loads, plus a VERSION marker.
func VendorBundle() fstest.MapFS {
	bundle := fstest.MapFS{
		"VERSION": &fstest.MapFile{Data: []byte("onnxruntime-web test\n")},
	}
	for _, name := range site.RuntimeFiles {
		bundle[name] = &fstest.MapFile{Data: []byte("// " + name + "\n")}
	}
	return bundle
}

// MustWriteVendorBundle writes VendorBundle below dir and returns dir.
func MustWriteVendorBundle(t *testing.T, dir string) string {
	t.Helper()
	for name, file := range VendorBundle() {
		MustWriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), file.Data)
	}
	return dir
}
