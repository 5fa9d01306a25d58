package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/flosch/pongo2/v6"
	gotemplatepkg "github.com/goliatone/go-template"
	theme "github.com/goliatone/go-theme"
	"github.com/sirupsen/logrus"

	"github.com/datalpia/modelship/internal/logging"
	"github.com/datalpia/modelship/pkg/metadata"
	"github.com/datalpia/modelship/pkg/render/template"
	"github.com/datalpia/modelship/pkg/render/template/gotemplate"
)

const (
	// DefaultTemplate is the built-in page template.
	DefaultTemplate = "onnx_runtime_web.html"
	// ModelFileName is the name the model is copied to.
	ModelFileName = "model.onnx"
	// IndexFileName is the rendered page.
	IndexFileName = "index.html"
	// VendorDirName holds the browser runtime bundle.
	VendorDirName = "vendor"

	metadataBlockMarker = `id="model-metadata"`
)

// RuntimeFiles are the browser runtime files the page loads from vendor/.
var RuntimeFiles = []string{
	"ort.min.js",
	"ort-wasm-simd-threaded.mjs",
	"ort-wasm-simd-threaded.wasm",
}

// ErrIncompleteBundle is returned when the vendor bundle lacks one of the
// RuntimeFiles.
var ErrIncompleteBundle = errors.New("site: vendor bundle is incomplete")

// App identifies the tool in the generated page footer.
type App struct {
	Name          string
	Version       string
	RepositoryURL string
}

// Request describes one site generation.
type Request struct {
	ModelPath    string
	MetadataPath string
	OutputDir    string
	// Theme and Variant select the page colours. Empty values pick the
	// defaults; unknown values are errors.
	Theme   string
	Variant string
}

// Result lists what a generation wrote.
type Result struct {
	OutputDir string
	// Files holds the written paths relative to OutputDir, slash separated.
	Files    []string
	Metadata metadata.Model
}

// Option customises a Generator.
type Option func(*Generator)

// WithTemplateFS replaces the embedded page templates.
func WithTemplateFS(fsys fs.FS) Option {
	return func(g *Generator) {
		if fsys != nil {
			g.templates = fsys
		}
	}
}

// WithTemplateDir loads templates from dir first, falling back to the
// embedded ones for names dir does not hold.
func WithTemplateDir(dir string) Option {
	return func(g *Generator) {
		g.templateDir = strings.TrimSpace(dir)
	}
}

// WithVendorFS replaces the embedded browser runtime bundle.
func WithVendorFS(fsys fs.FS) Option {
	return func(g *Generator) {
		if fsys != nil {
			g.vendor = fsys
		}
	}
}

// WithVendorDir copies the browser runtime bundle from dir.
func WithVendorDir(dir string) Option {
	return func(g *Generator) {
		if dir = strings.TrimSpace(dir); dir != "" {
			g.vendor = os.DirFS(dir)
		}
	}
}

// WithApp sets the tool identity printed in the page.
func WithApp(app App) Option {
	return func(g *Generator) {
		g.app = app
	}
}

// WithThemeProvider replaces the built-in theme registry.
func WithThemeProvider(provider theme.ThemeProvider) Option {
	return func(g *Generator) {
		if provider != nil {
			g.themes = provider
		}
	}
}

// WithThemeDir registers the theme manifests found in dir next to the
// built-in ones.
func WithThemeDir(dir string) Option {
	return func(g *Generator) {
		g.themeDir = strings.TrimSpace(dir)
	}
}

// WithLogger routes progress messages to logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Generator renders static inference sites.
type Generator struct {
	templates   fs.FS
	templateDir string
	vendor      fs.FS
	app         App
	themes      theme.ThemeProvider
	themeDir    string
	logger      logrus.FieldLogger

	renderer template.TemplateRenderer
}

// New builds a Generator. The embedded templates, vendor bundle and themes
// are used unless options replace them.
func New(options ...Option) (*Generator, error) {
	g := &Generator{
		templates: TemplatesFS(),
		vendor:    VendorFS(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.Discard()
	}

	if g.themes == nil {
		registry, err := BuiltinThemes()
		if err != nil {
			return nil, err
		}
		g.themes = registry
	}
	if g.themeDir != "" {
		registry, ok := g.themes.(theme.Registry)
		if !ok {
			return nil, errors.New("site: theme provider does not accept additional themes")
		}
		if err := LoadThemeDir(registry, g.themeDir); err != nil {
			return nil, err
		}
	}

	renderer, err := gotemplate.New(
		gotemplate.WithBaseDir(g.templateDir),
		gotemplate.WithFS(g.templates),
		gotemplate.WithGlobalData(map[string]any{
			"app_metadata": map[string]any{
				"name":           g.app.Name,
				"version":        g.app.Version,
				"repository_url": g.app.RepositoryURL,
			},
		}),
		gotemplate.WithTemplateFunc(map[string]any{
			"shape": pongo2.FilterFunction(filterShape),
		}),
		gotemplate.WithPostHook(requirePageMarkers),
	)
	if err != nil {
		return nil, fmt.Errorf("site: create renderer: %w", err)
	}
	g.renderer = renderer
	return g, nil
}

// requirePageMarkers rejects pages that would not load the model or expose
// the metadata to the inline script.
func requirePageMarkers(ctx *gotemplatepkg.HookContext) (string, error) {
	if !strings.Contains(ctx.Output, ModelFileName) {
		return "", fmt.Errorf("page does not reference %s", ModelFileName)
	}
	if !strings.Contains(ctx.Output, metadataBlockMarker) {
		return "", fmt.Errorf("page does not embed the %s script block", metadataBlockMarker)
	}
	return ctx.Output, nil
}

// Generate validates the metadata, renders the page and writes the site.
// Nothing is written when the request or the metadata is invalid.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	log := g.logger.WithFields(logrus.Fields{
		"model":  req.ModelPath,
		"output": req.OutputDir,
	})

	model, err := metadata.Load(req.MetadataPath)
	if err != nil {
		return Result{}, err
	}
	log.WithField("inputs", len(model.Inputs)).Debug("metadata validated")

	selected, err := selectTheme(g.themes, req.Theme, req.Variant)
	if err != nil {
		return Result{}, err
	}
	if err := checkBundle(g.vendor); err != nil {
		return Result{}, err
	}

	data, err := g.viewData(model, selected)
	if err != nil {
		return Result{}, err
	}
	page, err := g.renderer.RenderTemplate(selected.Template, data)
	if err != nil {
		return Result{}, fmt.Errorf("site: render %s: %w", selected.Template, err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("site: create output dir: %w", err)
	}

	result := Result{OutputDir: req.OutputDir, Metadata: model}

	if err := os.WriteFile(filepath.Join(req.OutputDir, IndexFileName), []byte(page), 0o644); err != nil {
		return result, fmt.Errorf("site: write %s: %w", IndexFileName, err)
	}
	result.Files = append(result.Files, IndexFileName)
	log.WithField("file", IndexFileName).Info("wrote page")

	vendored, err := copyTree(ctx, g.vendor, filepath.Join(req.OutputDir, VendorDirName))
	if err != nil {
		return result, fmt.Errorf("site: copy vendor bundle: %w", err)
	}
	for _, name := range vendored {
		result.Files = append(result.Files, path.Join(VendorDirName, name))
	}
	log.WithField("files", len(vendored)).Info("copied vendor bundle")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := copyFile(req.ModelPath, filepath.Join(req.OutputDir, ModelFileName)); err != nil {
		return result, fmt.Errorf("site: copy model: %w", err)
	}
	result.Files = append(result.Files, ModelFileName)
	log.WithField("file", ModelFileName).Info("copied model")

	return result, nil
}

func (r Request) validate() error {
	var missing []string
	if strings.TrimSpace(r.ModelPath) == "" {
		missing = append(missing, "model path")
	}
	if strings.TrimSpace(r.MetadataPath) == "" {
		missing = append(missing, "metadata path")
	}
	if strings.TrimSpace(r.OutputDir) == "" {
		missing = append(missing, "output dir")
	}
	if len(missing) > 0 {
		return fmt.Errorf("site: request is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (g *Generator) viewData(model metadata.Model, selected pageTheme) (map[string]any, error) {
	payload, err := model.JSON()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"model_path":          ModelFileName,
		"model_metadata":      model,
		"model_metadata_json": payload,
		"description_html":    sanitizeDescription(model.Description),
		"input_fields":        inputFields(model),
		"output_fields":       outputFields(model),
		"theme": map[string]any{
			"name":    selected.Name,
			"variant": selected.Variant,
		},
		"theme_css": selected.css(),
	}, nil
}

// checkBundle makes sure the page will find its runtime.
func checkBundle(fsys fs.FS) error {
	var missing []string
	for _, name := range RuntimeFiles {
		if _, err := fs.Stat(fsys, name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s (run go run ./scripts/fetch-vendor or pass a vendor directory)",
			ErrIncompleteBundle, strings.Join(missing, ", "))
	}
	return nil
}

// copyTree copies every regular file of fsys below dst, overwriting files
// that already exist. It returns the copied names relative to dst.
func copyTree(ctx context.Context, fsys fs.FS, dst string) ([]string, error) {
	var copied []string
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(dst, filepath.FromSlash(name))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		src, err := fsys.Open(name)
		if err != nil {
			return err
		}
		defer src.Close()
		if err := writeFrom(target, src); err != nil {
			return err
		}
		copied = append(copied, name)
		return nil
	})
	return copied, err
}

//nolint:gosec // G304: the model path is supplied by the user on purpose
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFrom(dst, in)
}

func writeFrom(dst string, src io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
