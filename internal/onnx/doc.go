// Package onnx decodes the declared structure of ONNX model files.
//
// The whole ModelProto is read: model-level metadata, opset imports, the
// graph with its nodes, attribute values, dense and sparse initializers and
// input/output signatures, plus local functions and training graphs. Tensor
// payloads reference the input buffer instead of being copied. Decoding uses
// the protowire primitives so unknown fields are tolerated and malformed
// input is rejected with the byte offset of the failing field.
//
//	model, err := onnx.ParseFile("iris.onnx")
//	if err != nil {
//	    return err
//	}
//	for _, in := range model.Graph.DeclaredInputs() {
//	    fmt.Println(in.Name, in.Type.Describe())
//	}
package onnx
