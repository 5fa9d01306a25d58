//go:build cgo

package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/datalpia/modelship/internal/onnx"
)

// RuntimeOpener opens sessions through ONNX Runtime. LibraryPath names the
// onnxruntime shared library to load.
type RuntimeOpener struct {
	LibraryPath string
}

// The runtime environment is process wide; sessions share it and the last
// one to close tears it down.
var environment struct {
	sync.Mutex
	refs int
}

func acquireEnvironment(libraryPath string) error {
	environment.Lock()
	defer environment.Unlock()
	if environment.refs == 0 {
		ort.SetSharedLibraryPath(libraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("inference: initialize onnxruntime from %s: %w", libraryPath, err)
		}
	}
	environment.refs++
	return nil
}

func releaseEnvironment() error {
	environment.Lock()
	defer environment.Unlock()
	if environment.refs == 0 {
		return nil
	}
	environment.refs--
	if environment.refs > 0 {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("inference: destroy onnxruntime environment: %w", err)
	}
	return nil
}

// Open loads the model at path with ONNX Runtime.
func (o RuntimeOpener) Open(ctx context.Context, path string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := acquireEnvironment(o.LibraryPath); err != nil {
		return nil, err
	}

	s, err := openRuntimeSession(path)
	if err != nil {
		return nil, errors.Join(err, releaseEnvironment())
	}
	return s, nil
}

func openRuntimeSession(path string) (*runtimeSession, error) {
	meta, err := ort.GetModelMetadata(path)
	if err != nil {
		return nil, fmt.Errorf("inference: load %s: %w", path, err)
	}
	defer meta.Destroy()

	info, err := modelInfo(meta)
	if err != nil {
		return nil, fmt.Errorf("inference: read metadata of %s: %w", path, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read inputs and outputs of %s: %w", path, err)
	}

	// The runtime API exposes neither the graph description nor symbolic
	// axis names, so both come from the declared structure when it decodes.
	var declared *onnx.GraphProto
	if model, err := onnx.ParseFile(path); err == nil {
		declared = model.Graph
		info.GraphDescription = declared.DocString
	}

	return &runtimeSession{
		info:    info,
		inputs:  runtimeTensors(inputs, declaredShapes(declared, true)),
		outputs: runtimeTensors(outputs, declaredShapes(declared, false)),
	}, nil
}

func modelInfo(meta *ort.ModelMetadata) (ModelInfo, error) {
	var (
		info ModelInfo
		errs []error
	)
	text := func(get func() (string, error)) string {
		v, err := get()
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	info.Description = text(meta.GetDescription)
	info.Domain = text(meta.GetDomain)
	info.ProducerName = text(meta.GetProducerName)
	info.GraphName = text(meta.GetGraphName)

	version, err := meta.GetVersion()
	if err != nil {
		errs = append(errs, err)
	}
	info.Version = version

	keys, err := meta.GetCustomMetadataMapKeys()
	if err != nil {
		errs = append(errs, err)
	}
	for _, key := range keys {
		value, ok, err := meta.LookupCustomMetadataMap(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if info.Custom == nil {
			info.Custom = make(map[string]string, len(keys))
		}
		info.Custom[key] = value
	}
	return info, errors.Join(errs...)
}

func declaredShapes(graph *onnx.GraphProto, inputs bool) map[string]Shape {
	if graph == nil {
		return nil
	}
	values := graph.Outputs
	if inputs {
		values = graph.Inputs
	}
	shapes := make(map[string]Shape, len(values))
	for _, v := range values {
		shapes[v.Name] = shapeOf(v.Type.Dims())
	}
	return shapes
}

func runtimeTensors(infos []ort.InputOutputInfo, declared map[string]Shape) []TensorInfo {
	out := make([]TensorInfo, 0, len(infos))
	for _, info := range infos {
		tensor := TensorInfo{Name: info.Name, Type: runtimeType(info)}
		if info.OrtValueType == ort.ONNXTypeTensor {
			known := declared[info.Name]
			tensor.Shape = make(Shape, len(info.Dimensions))
			for i, size := range info.Dimensions {
				tensor.Shape[i] = Dim{Size: size}
				if size <= 0 && i < len(known) {
					tensor.Shape[i].Param = known[i].Param
				}
			}
		}
		out = append(out, tensor)
	}
	return out
}

func runtimeType(info ort.InputOutputInfo) string {
	switch info.OrtValueType {
	case ort.ONNXTypeTensor:
		return "tensor(" + onnx.ElemTypeName(int32(info.DataType)) + ")"
	case ort.ONNXTypeSequence:
		return onnx.KindSequence
	case ort.ONNXTypeMap:
		return onnx.KindMap
	case ort.ONNXTypeSparseTensor:
		return onnx.KindSparseTensor
	case ort.ONNXTypeOptional:
		return onnx.KindOptional
	default:
		return strings.ToLower(strings.TrimPrefix(info.OrtValueType.String(), "ONNX_TYPE_"))
	}
}

type runtimeSession struct {
	info    ModelInfo
	inputs  []TensorInfo
	outputs []TensorInfo
	once    sync.Once
	err     error
}

func (s *runtimeSession) Metadata() ModelInfo   { return s.info }
func (s *runtimeSession) Inputs() []TensorInfo  { return s.inputs }
func (s *runtimeSession) Outputs() []TensorInfo { return s.outputs }

// Close releases the session's hold on the runtime environment.
func (s *runtimeSession) Close() error {
	s.once.Do(func() {
		s.err = releaseEnvironment()
	})
	return s.err
}
