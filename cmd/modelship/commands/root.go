// Package commands builds the modelship command tree. Each command turns its
// arguments into an Invocation and hands it to Dispatch.
package commands

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/datalpia/modelship"
	"github.com/datalpia/modelship/internal/config"
	"github.com/datalpia/modelship/internal/logging"
)

// flagKeys maps command-line flags to configuration keys. Flags a command
// does not define are skipped.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"ort-lib":   "runtime.library_path",
	"theme":     "static.theme",
	"variant":   "static.variant",
	"templates": "static.templates_dir",
	"vendor":    "static.vendor_dir",
	"theme-dir": "static.theme_dir",
}

// Execute runs the command tree against os.Args. Interrupts cancel the
// running operation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree writing reports to stdout and
// diagnostics to stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	return newRootCommand(&Env{Stdout: stdout, Stderr: stderr})
}

func newRootCommand(env *Env) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "modelship",
		Short: "Inspect ONNX models and ship them as static web pages",
		Long: `Modelship inspects ONNX models and generates static web pages that run
them in the browser with onnxruntime-web.`,
		Version:       modelship.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var bindings []config.Binding
			for name, key := range flagKeys {
				if flag := cmd.Flags().Lookup(name); flag != nil {
					bindings = append(bindings, config.Binding{Key: key, Flag: flag})
				}
			}
			cfg, err := config.Load(cfgFile, bindings...)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, env.Stderr)
			if err != nil {
				return err
			}
			env.Config = cfg
			env.Logger = logger
			return nil
		},
	}
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.modelship/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (default warn)")
	root.PersistentFlags().String("ort-lib", "", "path to the onnxruntime shared library; the built-in parser is used when empty")

	root.AddCommand(
		newInspectCommand(env),
		newStaticCommand(env),
		newMetadataCommand(env),
		newVersionCommand(env),
	)
	return root
}

func newInspectCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model>",
		Short: "Inspect a model for metadata and I/O",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Dispatch(cmd.Context(), *env, InspectInvocation{ModelPath: args[0]})
		},
	}
}

func newStaticCommand(env *Env) *cobra.Command {
	var inv StaticInvocation

	cmd := &cobra.Command{
		Use:   "static --output <dir> --metadata <metadata.yaml> <model>",
		Short: "Generate a static web application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.ModelPath = args[0]
			inv.Theme = env.Config.Static.Theme
			inv.Variant = env.Config.Static.Variant
			inv.TemplatesDir = env.Config.Static.TemplatesDir
			inv.VendorDir = env.Config.Static.VendorDir
			inv.ThemeDir = env.Config.Static.ThemeDir
			return Dispatch(cmd.Context(), *env, inv)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&inv.OutputDir, "output", "o", "", "output path for the static web application")
	flags.StringVarP(&inv.MetadataPath, "metadata", "m", "", "model metadata path (YAML or JSON)")
	flags.String("theme", "", "page theme (default modelship)")
	flags.String("variant", "", "theme variant, e.g. light or dark (default light)")
	flags.String("templates", "", "directory with templates overriding the built-in page")
	flags.String("vendor", "", "directory copied to vendor/ instead of the bundled onnxruntime-web")
	flags.String("theme-dir", "", "directory with additional theme manifests")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("metadata")
	return cmd
}

func newMetadataCommand(env *Env) *cobra.Command {
	var inv MetadataInvocation

	cmd := &cobra.Command{
		Use:   "metadata <model>",
		Short: "Draft a metadata file from a model's inputs and outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.ModelPath = args[0]
			return Dispatch(cmd.Context(), *env, inv)
		},
	}
	cmd.Flags().StringVarP(&inv.OutputPath, "output", "o", "", "write the draft to a file instead of stdout")
	cmd.Flags().BoolVarP(&inv.Interactive, "interactive", "i", false, "refine the draft through prompts")
	return cmd
}

func newVersionCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Dispatch(cmd.Context(), *env, VersionInvocation{})
		},
	}
}
