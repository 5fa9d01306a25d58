// Package site generates the static inference page for a model.
//
// A generated site is a directory holding index.html (rendered from a pongo2
// template), vendor/ (the browser runtime bundle) and model.onnx (a byte copy
// of the model). Generation overlays an existing directory: the three
// artefacts are overwritten and unrelated files are left alone. Metadata is
// validated before anything is written, but a later failure may leave a
// partially written directory behind.
package site
