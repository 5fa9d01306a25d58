package site_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/datalpia/modelship/pkg/metadata"
	"github.com/datalpia/modelship/pkg/site"
	"github.com/datalpia/modelship/pkg/testsupport"
)

var modelBytes = []byte("\x08\x08\x12\x08skl2onnx\x00\xff binary model payload")

func TestGenerate_WritesSiteLayout(t *testing.T) {
	gen := newGenerator(t)
	req := newRequest(t)

	result, err := gen.Generate(testsupport.Context(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := []string{
		"index.html",
		"model.onnx",
		"vendor/VERSION",
		"vendor/ort-wasm-simd-threaded.mjs",
		"vendor/ort-wasm-simd-threaded.wasm",
		"vendor/ort.min.js",
	}
	if diff := cmp.Diff(want, testsupport.TreeFiles(t, req.OutputDir)); diff != "" {
		t.Fatalf("site layout mismatch (-want +got):\n%s", diff)
	}
	wantFiles := []string{
		"index.html",
		"vendor/VERSION",
		"vendor/ort-wasm-simd-threaded.mjs",
		"vendor/ort-wasm-simd-threaded.wasm",
		"vendor/ort.min.js",
		"model.onnx",
	}
	if diff := cmp.Diff(wantFiles, result.Files); diff != "" {
		t.Fatalf("result files mismatch (-want +got):\n%s", diff)
	}
	if result.Metadata.Name != "Iris classifier" {
		t.Fatalf("unexpected metadata in result: %q", result.Metadata.Name)
	}

	copied, err := os.ReadFile(filepath.Join(req.OutputDir, site.ModelFileName))
	if err != nil {
		t.Fatalf("read model copy: %v", err)
	}
	if !bytes.Equal(copied, modelBytes) {
		t.Fatalf("model copy differs from the source")
	}

	runtime, err := os.ReadFile(filepath.Join(req.OutputDir, "vendor", "ort.min.js"))
	if err != nil {
		t.Fatalf("read vendor copy: %v", err)
	}
	if !bytes.Equal(runtime, testsupport.VendorBundle()["ort.min.js"].Data) {
		t.Fatalf("vendor copy differs from the bundle")
	}
}

func TestGenerate_RequiresRuntimeBundle(t *testing.T) {
	gen := newGenerator(t, site.WithVendorFS(fstest.MapFS{
		"VERSION":    &fstest.MapFile{Data: []byte("onnxruntime-web test\n")},
		"ort.min.js": &fstest.MapFile{Data: []byte("// runtime")},
	}))
	req := newRequest(t)

	_, err := gen.Generate(testsupport.Context(), req)
	if !errors.Is(err, site.ErrIncompleteBundle) {
		t.Fatalf("expected ErrIncompleteBundle, got %v", err)
	}
	if !strings.Contains(err.Error(), "ort-wasm-simd-threaded.mjs, ort-wasm-simd-threaded.wasm") {
		t.Fatalf("error should name the missing files, got %v", err)
	}
	assertAbsent(t, req.OutputDir)
}

func TestGenerate_MissingVendorDir(t *testing.T) {
	gen := newGenerator(t, site.WithVendorDir(filepath.Join(t.TempDir(), "absent")))
	req := newRequest(t)

	if _, err := gen.Generate(testsupport.Context(), req); !errors.Is(err, site.ErrIncompleteBundle) {
		t.Fatalf("expected ErrIncompleteBundle, got %v", err)
	}
	assertAbsent(t, req.OutputDir)
}

func TestGenerate_PageContent(t *testing.T) {
	gen := newGenerator(t, site.WithApp(site.App{
		Name:          "Modelship",
		Version:       "1.2.3",
		RepositoryURL: "https://github.com/datalpia/modelship",
	}))
	req := newRequest(t)

	if _, err := gen.Generate(testsupport.Context(), req); err != nil {
		t.Fatalf("generate: %v", err)
	}
	page := readPage(t, req.OutputDir)

	for _, want := range []string{
		"<title>Iris classifier</title>",
		`ort.InferenceSession.create("model.onnx")`,
		`<script src="vendor/ort.min.js"></script>`,
		"Predicts the <em>species</em> of an iris flower.",
		`<input type="number" id="input-features" name="features"`,
		`step="0.1" min="0" max="10" value="5.5" required>`,
		`<input type="text" id="input-label" name="label" value="setosa">`,
		"float_input: float32 [?, 4]",
		"probabilities: float32 [?, 3]",
		`Generated by <a href="https://github.com/datalpia/modelship">Modelship</a> 1.2.3`,
		`data-theme="modelship" data-variant="light"`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page is missing %q", want)
		}
	}
}

func TestGenerate_EmbedsParsableMetadata(t *testing.T) {
	gen := newGenerator(t)
	req := newRequest(t)

	if _, err := gen.Generate(testsupport.Context(), req); err != nil {
		t.Fatalf("generate: %v", err)
	}

	block := metadataBlock(t, readPage(t, req.OutputDir))
	if !json.Valid([]byte(block)) {
		t.Fatalf("metadata block is not valid JSON: %s", block)
	}
	embedded, err := metadata.Parse([]byte(block), "page")
	if err != nil {
		t.Fatalf("re-parse embedded metadata: %v", err)
	}
	want := testsupport.MustLoadMetadata(t, filepath.Join("testdata", "iris.yaml"))
	if diff := cmp.Diff(want, embedded); diff != "" {
		t.Fatalf("embedded metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_EscapesUserText(t *testing.T) {
	dir := t.TempDir()
	metadataPath := testsupport.MustWriteFile(t, filepath.Join(dir, "meta.yaml"), []byte(`name: "<script>alert(1)</script>"
description: "Uses <b>bold</b> text<script>alert(2)</script>"
inputs:
  x:
    name: x
    type: float32
    shape: [1]
outputs:
  y:
    name: y
    type: float32
    shape: [1]
`))
	req := site.Request{
		ModelPath:    testsupport.MustWriteFile(t, filepath.Join(dir, "in.onnx"), modelBytes),
		MetadataPath: metadataPath,
		OutputDir:    filepath.Join(dir, "site"),
	}

	if _, err := newGenerator(t).Generate(testsupport.Context(), req); err != nil {
		t.Fatalf("generate: %v", err)
	}
	page := readPage(t, req.OutputDir)

	if strings.Contains(page, "<script>alert(") {
		t.Fatalf("page contains unescaped user markup:\n%s", page)
	}
	if !strings.Contains(page, "<title>&lt;script&gt;alert(1)&lt;/script&gt;</title>") {
		t.Errorf("model name was not escaped in the title")
	}
	if !strings.Contains(page, "Uses <b>bold</b> text") {
		t.Errorf("description formatting was not kept")
	}
	if !strings.Contains(metadataBlock(t, page), `\u003cscript\u003e`) {
		t.Errorf("metadata JSON does not escape markup")
	}
}

func TestGenerate_OverlaysExistingDirectory(t *testing.T) {
	gen := newGenerator(t)
	req := newRequest(t)

	if _, err := gen.Generate(testsupport.Context(), req); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	notes := testsupport.MustWriteFile(t, filepath.Join(req.OutputDir, "notes.txt"), []byte("keep me"))
	stale := testsupport.MustWriteFile(t, filepath.Join(req.OutputDir, "vendor", "old.js"), []byte("old"))

	updated := []byte("a newer model")
	testsupport.MustWriteFile(t, req.ModelPath, updated)
	if _, err := gen.Generate(testsupport.Context(), req); err != nil {
		t.Fatalf("second generate: %v", err)
	}

	copied, err := os.ReadFile(filepath.Join(req.OutputDir, site.ModelFileName))
	if err != nil {
		t.Fatalf("read model copy: %v", err)
	}
	if !bytes.Equal(copied, updated) {
		t.Fatalf("model copy was not overwritten")
	}
	for _, path := range []string{notes, stale} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("unrelated file %s should be left alone: %v", path, err)
		}
	}
}

func TestGenerate_InvalidMetadataWritesNothing(t *testing.T) {
	req := newRequest(t)
	req.MetadataPath = filepath.Join("..", "metadata", "testdata", "broken.yaml")

	_, err := newGenerator(t).Generate(testsupport.Context(), req)

	var verr *metadata.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if len(verr.Issues()) < 2 {
		t.Fatalf("expected every issue to be reported, got %v", verr.Issues())
	}
	assertAbsent(t, req.OutputDir)
}

func TestGenerate_MissingMetadataFile(t *testing.T) {
	req := newRequest(t)
	req.MetadataPath = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := newGenerator(t).Generate(testsupport.Context(), req)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
	assertAbsent(t, req.OutputDir)
}

func TestGenerate_MissingModelFile(t *testing.T) {
	req := newRequest(t)
	req.ModelPath = filepath.Join(t.TempDir(), "absent.onnx")

	_, err := newGenerator(t).Generate(testsupport.Context(), req)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestGenerate_RequiresPaths(t *testing.T) {
	_, err := newGenerator(t).Generate(testsupport.Context(), site.Request{ModelPath: "m.onnx"})
	if err == nil {
		t.Fatalf("expected an error for an incomplete request")
	}
	if !strings.Contains(err.Error(), "metadata path, output dir") {
		t.Fatalf("error should name the missing fields, got %v", err)
	}
}

func TestGenerate_ThemeVariants(t *testing.T) {
	cases := []struct {
		name    string
		variant string
		want    string
	}{
		{name: "default", variant: "", want: "--color-background: #f6f7f9;"},
		{name: "light", variant: "light", want: "--color-background: #f6f7f9;"},
		{name: "dark", variant: "dark", want: "--color-background: #0f141c;"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := newRequest(t)
			req.Variant = tc.variant

			if _, err := newGenerator(t).Generate(testsupport.Context(), req); err != nil {
				t.Fatalf("generate: %v", err)
			}
			page := readPage(t, req.OutputDir)
			if !strings.Contains(page, tc.want) {
				t.Fatalf("page is missing %q", tc.want)
			}
			if !strings.Contains(page, "--font-mono: ") {
				t.Fatalf("base tokens should be kept for every variant")
			}
		})
	}
}

func TestGenerate_UnknownThemeOrVariant(t *testing.T) {
	cases := []struct {
		name    string
		theme   string
		variant string
	}{
		{name: "theme", theme: "neon"},
		{name: "variant", variant: "sepia"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := newRequest(t)
			req.Theme, req.Variant = tc.theme, tc.variant

			if _, err := newGenerator(t).Generate(testsupport.Context(), req); err == nil {
				t.Fatalf("expected an error")
			}
			assertAbsent(t, req.OutputDir)
		})
	}
}

func TestGenerate_ThemeDir(t *testing.T) {
	dir := t.TempDir()
	testsupport.MustWriteFile(t, filepath.Join(dir, "paper", "theme.yaml"), []byte(`name: paper
version: 0.1.0
tokens:
  color-background: "#fffdf5"
variants:
  light: {}
`))
	gen := newGenerator(t, site.WithThemeDir(dir))
	req := newRequest(t)
	req.Theme = "paper"

	if _, err := gen.Generate(testsupport.Context(), req); err != nil {
		t.Fatalf("generate: %v", err)
	}
	page := readPage(t, req.OutputDir)
	if !strings.Contains(page, "--color-background: #fffdf5;") {
		t.Fatalf("custom theme tokens missing from page")
	}
	if !strings.Contains(page, `data-theme="paper"`) {
		t.Fatalf("custom theme not selected")
	}
}

func TestGenerate_RejectsUnsafeThemeTokens(t *testing.T) {
	dir := t.TempDir()
	testsupport.MustWriteFile(t, filepath.Join(dir, "theme.yaml"), []byte(`name: sneaky
version: 0.1.0
tokens:
  color-background: "red;}</style><script>alert(1)</script>"
variants:
  light: {}
`))
	gen := newGenerator(t, site.WithThemeDir(dir))
	req := newRequest(t)
	req.Theme = "sneaky"

	_, err := gen.Generate(testsupport.Context(), req)
	if err == nil || !strings.Contains(err.Error(), "unsafe value") {
		t.Fatalf("expected an unsafe token error, got %v", err)
	}
	assertAbsent(t, req.OutputDir)
}

func TestGenerate_CustomTemplateDir(t *testing.T) {
	dir := t.TempDir()
	testsupport.MustWriteFile(t, filepath.Join(dir, site.DefaultTemplate), []byte(
		`<h1>{{ model_metadata.name }}</h1>
<script type="application/json" id="model-metadata">{{ model_metadata_json|safe }}</script>
<script>load("{{ model_path }}")</script>
`))
	gen := newGenerator(t, site.WithTemplateDir(dir))
	req := newRequest(t)

	if _, err := gen.Generate(testsupport.Context(), req); err != nil {
		t.Fatalf("generate: %v", err)
	}
	page := readPage(t, req.OutputDir)
	if !strings.HasPrefix(page, "<h1>Iris classifier</h1>\n") {
		t.Fatalf("custom template not used:\n%s", page)
	}
}

func TestGenerate_TemplateWithoutMarkersIsRejected(t *testing.T) {
	cases := map[string]string{
		"no model":    `<p>{{ model_metadata.name }}</p><script id="model-metadata"></script>`,
		"no metadata": `<p>{{ model_path }}</p>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			gen := newGenerator(t, site.WithTemplateFS(fstest.MapFS{
				site.DefaultTemplate: &fstest.MapFile{Data: []byte(body)},
			}))
			req := newRequest(t)

			if _, err := gen.Generate(testsupport.Context(), req); err == nil {
				t.Fatalf("expected the page to be rejected")
			}
			assertAbsent(t, req.OutputDir)
		})
	}
}

func TestGenerate_CustomVendorDir(t *testing.T) {
	vendorDir := testsupport.MustWriteVendorBundle(t, t.TempDir())
	testsupport.MustWriteFile(t, filepath.Join(vendorDir, "extra", "notes.txt"), []byte("kept"))

	gen := newGenerator(t, site.WithVendorDir(vendorDir))
	req := newRequest(t)

	if _, err := gen.Generate(testsupport.Context(), req); err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := []string{
		"index.html",
		"model.onnx",
		"vendor/VERSION",
		"vendor/extra/notes.txt",
		"vendor/ort-wasm-simd-threaded.mjs",
		"vendor/ort-wasm-simd-threaded.wasm",
		"vendor/ort.min.js",
	}
	if diff := cmp.Diff(want, testsupport.TreeFiles(t, req.OutputDir)); diff != "" {
		t.Fatalf("site layout mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(testsupport.Context())
	cancel()
	req := newRequest(t)

	if _, err := newGenerator(t).Generate(ctx, req); err == nil {
		t.Fatalf("expected a cancellation error")
	}
	assertAbsent(t, req.OutputDir)
}

// newGenerator uses the stand-in runtime bundle unless opts replace it.
func newGenerator(t *testing.T, opts ...site.Option) *site.Generator {
	t.Helper()
	opts = append([]site.Option{site.WithVendorFS(testsupport.VendorBundle())}, opts...)
	gen, err := site.New(opts...)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return gen
}

func newRequest(t *testing.T) site.Request {
	t.Helper()
	dir := t.TempDir()
	return site.Request{
		ModelPath:    testsupport.MustWriteFile(t, filepath.Join(dir, "iris.onnx"), modelBytes),
		MetadataPath: filepath.Join("testdata", "iris.yaml"),
		OutputDir:    filepath.Join(dir, "out"),
	}
}

func readPage(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, site.IndexFileName))
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	return string(data)
}

func metadataBlock(t *testing.T, page string) string {
	t.Helper()
	const open = `<script type="application/json" id="model-metadata">`
	start := strings.Index(page, open)
	if start < 0 {
		t.Fatalf("page has no metadata block")
	}
	rest := page[start+len(open):]
	end := strings.Index(rest, "</script>")
	if end < 0 {
		t.Fatalf("metadata block is not closed")
	}
	return rest[:end]
}

func assertAbsent(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("%s should not exist, stat error: %v", path, err)
	}
}
