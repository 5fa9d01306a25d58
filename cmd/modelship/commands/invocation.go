package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/sirupsen/logrus"

	"github.com/datalpia/modelship"
	"github.com/datalpia/modelship/internal/config"
	"github.com/datalpia/modelship/pkg/inference"
	"github.com/datalpia/modelship/pkg/inspect"
	"github.com/datalpia/modelship/pkg/scaffold"
	"github.com/datalpia/modelship/pkg/site"
)

// Invocation is one parsed command line. The concrete types below are the
// only implementations.
type Invocation interface {
	invocation()
}

// InspectInvocation prints the report for a model.
type InspectInvocation struct {
	ModelPath string
}

// StaticInvocation generates the static site for a model.
type StaticInvocation struct {
	ModelPath    string
	MetadataPath string
	OutputDir    string
	Theme        string
	Variant      string
	TemplatesDir string
	VendorDir    string
	ThemeDir     string
}

// MetadataInvocation drafts a metadata description for a model. An empty
// OutputPath writes to stdout.
type MetadataInvocation struct {
	ModelPath   string
	OutputPath  string
	Interactive bool
}

// VersionInvocation prints the version.
type VersionInvocation struct{}

func (InspectInvocation) invocation()  {}
func (StaticInvocation) invocation()   {}
func (MetadataInvocation) invocation() {}
func (VersionInvocation) invocation()  {}

// Env carries what the operations need from the process.
type Env struct {
	Config *config.Config
	Logger logrus.FieldLogger
	Stdout io.Writer
	Stderr io.Writer
	// Driver answers the interactive metadata prompts. A survey driver
	// drawing on Stderr is used when nil.
	Driver scaffold.PromptDriver
}

// Dispatch runs inv to completion.
func Dispatch(ctx context.Context, env Env, inv Invocation) error {
	switch inv := inv.(type) {
	case InspectInvocation:
		return runInspect(ctx, env, inv)
	case StaticInvocation:
		return runStatic(ctx, env, inv)
	case MetadataInvocation:
		return runMetadata(ctx, env, inv)
	case VersionInvocation:
		_, err := fmt.Fprintln(env.Stdout, modelship.Version)
		return err
	default:
		return fmt.Errorf("unsupported invocation %T", inv)
	}
}

func runInspect(ctx context.Context, env Env, inv InspectInvocation) error {
	return inspect.Run(ctx, env.Stdout, inv.ModelPath,
		inspect.WithOpener(inference.NewOpener(env.Config.Runtime.LibraryPath)),
		inspect.WithLogger(env.Logger),
	)
}

func runStatic(ctx context.Context, env Env, inv StaticInvocation) error {
	gen, err := site.New(
		site.WithApp(modelship.AppInfo()),
		site.WithLogger(env.Logger),
		site.WithTemplateDir(inv.TemplatesDir),
		site.WithVendorDir(inv.VendorDir),
		site.WithThemeDir(inv.ThemeDir),
	)
	if err != nil {
		return err
	}
	result, err := gen.Generate(ctx, site.Request{
		ModelPath:    inv.ModelPath,
		MetadataPath: inv.MetadataPath,
		OutputDir:    inv.OutputDir,
		Theme:        inv.Theme,
		Variant:      inv.Variant,
	})
	if err != nil {
		return err
	}
	env.Logger.WithField("files", len(result.Files)).Infof("site written to %s", result.OutputDir)
	return nil
}

func runMetadata(ctx context.Context, env Env, inv MetadataInvocation) error {
	draft, err := modelship.DraftMetadata(ctx, inv.ModelPath)
	if err != nil {
		return err
	}
	if inv.Interactive {
		if draft, err = scaffold.Refine(ctx, promptDriver(env), draft); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if err := scaffold.Write(&buf, draft); err != nil {
		return err
	}
	if inv.OutputPath == "" {
		_, err := env.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(inv.OutputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	env.Logger.Infof("metadata written to %s", inv.OutputPath)
	return nil
}

// promptDriver draws prompts on Stderr when it is a terminal-capable file
// and on the process stderr otherwise, never on Stdout.
func promptDriver(env Env) scaffold.PromptDriver {
	if env.Driver != nil {
		return env.Driver
	}
	out, ok := env.Stderr.(terminal.FileWriter)
	if !ok {
		out = os.Stderr
	}
	return scaffold.NewSurveyDriver(os.Stdin, out)
}
