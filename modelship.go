// Package modelship inspects ONNX models and generates static web pages that
// run them in the browser.
//
// The root package is a thin facade over pkg/inspect, pkg/site and
// pkg/scaffold for callers that only need the common entry points.
package modelship

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/datalpia/modelship/internal/onnx"
	"github.com/datalpia/modelship/pkg/inference"
	"github.com/datalpia/modelship/pkg/inspect"
	"github.com/datalpia/modelship/pkg/metadata"
	"github.com/datalpia/modelship/pkg/scaffold"
	"github.com/datalpia/modelship/pkg/site"
)

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/datalpia/modelship.Version=...".
var Version = "0.1.0"

const (
	// Name is the display name printed in generated pages.
	Name = "🚢 Modelship"
	// RepositoryURL links generated pages back to the project.
	RepositoryURL = "https://github.com/datalpia/modelship"
)

// StaticRequest aliases site.Request for callers of GenerateStatic.
type StaticRequest = site.Request

// StaticResult aliases site.Result.
type StaticResult = site.Result

// AppInfo identifies this build of the tool.
func AppInfo() site.App {
	return site.App{
		Name:          Name,
		Version:       Version,
		RepositoryURL: RepositoryURL,
	}
}

// NewOpener returns the ONNX Runtime backend when libraryPath names the
// shared library and the built-in parser backend otherwise.
func NewOpener(libraryPath string) inference.Opener {
	return inference.NewOpener(libraryPath)
}

// LoadMetadata reads and validates a metadata description.
func LoadMetadata(path string) (metadata.Model, error) {
	return metadata.Load(path)
}

// Inspect writes the report for the model at path to w.
func Inspect(ctx context.Context, w io.Writer, path string, options ...inspect.Option) error {
	return inspect.Run(ctx, w, path, options...)
}

// GenerateStatic writes the static site described by req. The generator is
// stamped with AppInfo unless options override it.
func GenerateStatic(ctx context.Context, req StaticRequest, options ...site.Option) (StaticResult, error) {
	opts := append([]site.Option{site.WithApp(AppInfo())}, options...)
	gen, err := site.New(opts...)
	if err != nil {
		return StaticResult{}, err
	}
	return gen.Generate(ctx, req)
}

// DraftMetadata drafts a metadata description from the model at path. The
// display name defaults to the file name without its extension.
func DraftMetadata(ctx context.Context, path string) (metadata.Model, error) {
	if err := ctx.Err(); err != nil {
		return metadata.Model{}, err
	}
	model, err := onnx.ParseFile(path)
	if err != nil {
		return metadata.Model{}, err
	}
	base := filepath.Base(path)
	return scaffold.Draft(model, strings.TrimSuffix(base, filepath.Ext(base))), nil
}
