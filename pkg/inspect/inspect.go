// Package inspect prints a model's declared structure, metadata and
// input/output signatures.
package inspect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/datalpia/modelship/internal/logging"
	"github.com/datalpia/modelship/internal/onnx"
	"github.com/datalpia/modelship/pkg/inference"
)

// Option customises a Run.
type Option func(*options)

type options struct {
	opener inference.Opener
	logger logrus.FieldLogger
	dump   bool
}

// WithOpener selects the session backend. The built-in parser backend is
// used by default.
func WithOpener(opener inference.Opener) Option {
	return func(o *options) {
		if opener != nil {
			o.opener = opener
		}
	}
}

// WithLogger routes diagnostics to logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDump toggles the nested structure dump printed before the report.
// It is on by default.
func WithDump(enabled bool) Option {
	return func(o *options) {
		o.dump = enabled
	}
}

// Run inspects the model at path and writes the report to w. Nothing is
// written unless the model decodes and a session opens.
func Run(ctx context.Context, w io.Writer, path string, opts ...Option) error {
	cfg := options{
		opener: inference.ParserOpener{},
		logger: logging.Discard(),
		dump:   true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	log := cfg.logger.WithField("model", path)

	model, err := onnx.ParseFile(path)
	if err != nil {
		return err
	}
	log.WithField("ir_version", model.IRVersion).Debug("decoded model")

	if err := ctx.Err(); err != nil {
		return err
	}
	session, err := cfg.opener.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.WithError(cerr).Warn("close session")
		}
	}()

	var buf bytes.Buffer
	if cfg.dump {
		dump, err := model.Dump()
		if err != nil {
			return err
		}
		buf.Write(dump)
	}
	writeReport(&buf, path, session)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("inspect: write report: %w", err)
	}
	return nil
}

func writeReport(buf *bytes.Buffer, path string, session inference.Session) {
	info := session.Metadata()
	fmt.Fprintf(buf, "Model file: %s\n", path)

	fmt.Fprintln(buf, "Metadata:")
	fmt.Fprintf(buf, "  description: %s\n", info.Description)
	fmt.Fprintf(buf, "  domain: %s\n", info.Domain)
	fmt.Fprintf(buf, "  version: %d\n", info.Version)
	fmt.Fprintf(buf, "  producer name: %s\n", info.ProducerName)
	fmt.Fprintf(buf, "  graph name: %s\n", info.GraphName)
	fmt.Fprintf(buf, "  graph description: %s\n", info.GraphDescription)

	if len(info.Custom) > 0 {
		fmt.Fprintln(buf, "Custom metadata:")
		keys := make([]string, 0, len(info.Custom))
		for key := range info.Custom {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(buf, "  %s: %s\n", key, info.Custom[key])
		}
	}

	fmt.Fprintln(buf, "Inputs:")
	writeTensors(buf, session.Inputs())
	fmt.Fprintln(buf, "Outputs:")
	writeTensors(buf, session.Outputs())
}

func writeTensors(buf *bytes.Buffer, tensors []inference.TensorInfo) {
	for _, t := range tensors {
		fmt.Fprintf(buf, "  %s: type=%s, shape=%s\n", t.Name, t.Type, t.Shape)
	}
}

