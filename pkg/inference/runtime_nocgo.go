//go:build !cgo

package inference

import (
	"context"
	"errors"
)

// ErrRuntimeUnavailable is returned by RuntimeOpener in builds without cgo.
var ErrRuntimeUnavailable = errors.New("inference: onnxruntime backend requires a cgo-enabled build")

// RuntimeOpener opens sessions through ONNX Runtime. This build has no cgo,
// so every Open fails.
type RuntimeOpener struct {
	LibraryPath string
}

// Open always fails with ErrRuntimeUnavailable.
func (o RuntimeOpener) Open(ctx context.Context, path string) (Session, error) {
	return nil, ErrRuntimeUnavailable
}
