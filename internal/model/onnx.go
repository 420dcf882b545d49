package model

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Session runs the forward pass of a loaded model on one input batch.
type Session interface {
	InputShape() []int64
	OutputShape() []int64
	Run(input []float32) ([]float32, error)
	Close() error
}

type onnxSession struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	// dynamic replaces session and outputTensor when the model does not
	// declare how many scores it emits; onnxruntime then allocates the
	// output on every run.
	dynamic     *ort.DynamicAdvancedSession
	inputShape  []int64
	outputShape []int64
	holdsEnv    bool
}

// The onnxruntime environment is process wide. Sessions share it and the
// last one to close tears it down, unless something else initialised it.
var env struct {
	sync.Mutex
	refs  int
	owned bool
}

func acquireEnv() error {
	env.Lock()
	defer env.Unlock()
	if env.refs == 0 && !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return err
		}
		env.owned = true
	}
	env.refs++
	return nil
}

func releaseEnv() error {
	env.Lock()
	defer env.Unlock()
	if env.refs == 0 {
		return nil
	}
	env.refs--
	if env.refs == 0 && env.owned {
		env.owned = false
		return ort.DestroyEnvironment()
	}
	return nil
}

// SetSharedLibraryPath points the runtime at a specific onnxruntime library.
// It must be called before the first model is opened.
func SetSharedLibraryPath(path string) {
	if path != "" {
		ort.SetSharedLibraryPath(path)
	}
}

// OpenONNX loads the model at modelPath into an ONNX Runtime session with
// a pre-allocated input tensor. Dynamic input dimensions are pinned to a batch
// of one and the configured resize target. The output tensor is pre-allocated
// too when the model declares its class dimension.
func OpenONNX(modelPath string, meta Metadata) (Session, error) {
	opts, err := meta.Options()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrModelLoad, modelPath)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrModelLoad, modelPath)
	}

	if err := acquireEnv(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %v", ErrModelLoad, err)
	}
	s := &onnxSession{holdsEnv: true}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %s is not a readable ONNX model: %v", ErrModelLoad, modelPath, err)
	}

	in, err := pickTensor(inputs, meta.InputName, "input")
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, modelPath, err)
	}
	out, err := pickTensor(outputs, meta.OutputName, "output")
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, modelPath, err)
	}

	s.inputShape = declaredShape(in.Dimensions, meta.InputShape)
	s.outputShape = declaredShape(out.Dimensions, meta.OutputShape)

	inputShape := ort.NewShape(concrete(s.inputShape, opts.Shape())...)

	s.inputTensor, err = ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: failed to create input tensor %v: %v", ErrModelLoad, inputShape, err)
	}

	if classDim(s.outputShape) == 0 {
		s.dynamic, err = ort.NewDynamicAdvancedSession(modelPath,
			[]string{in.Name}, []string{out.Name}, nil)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: failed to create ONNX session: %v", ErrModelLoad, err)
		}
		return s, nil
	}

	outputShape := ort.NewShape(concrete(s.outputShape, []int64{1, 1})...)
	s.outputTensor, err = ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: failed to create output tensor %v: %v", ErrModelLoad, outputShape, err)
	}

	s.session, err = ort.NewAdvancedSession(modelPath,
		[]string{in.Name}, []string{out.Name},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.outputTensor},
		nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %v", ErrModelLoad, err)
	}

	return s, nil
}

func (s *onnxSession) InputShape() []int64  { return s.inputShape }
func (s *onnxSession) OutputShape() []int64 { return s.outputShape }

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	dst := s.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("%w: got %d values, input tensor holds %d", ErrShapeMismatch, len(input), len(dst))
	}
	copy(dst, input)

	if s.dynamic != nil {
		return s.runDynamic()
	}

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// The output tensor is reused across runs.
	out := s.outputTensor.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

func (s *onnxSession) runDynamic() ([]float32, error) {
	outputs := []ort.ArbitraryTensor{nil}
	if err := s.dynamic.Run([]ort.ArbitraryTensor{s.inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("inference failed: no output allocated")
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("inference failed: output is %T, want float32 tensor", outputs[0])
	}
	return append([]float32(nil), tensor.GetData()...), nil
}

func (s *onnxSession) Close() error {
	if s.dynamic != nil {
		s.dynamic.Destroy()
		s.dynamic = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.holdsEnv {
		s.holdsEnv = false
		return releaseEnv()
	}
	return nil
}

func pickTensor(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("model declares no %s tensors", kind)
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("model has no %s tensor named %q", kind, name)
}

// declaredShape prefers the shape stored in the model and falls back to the
// metadata sidecar when the model carries none.
func declaredShape(fromModel ort.Shape, fromMeta []int64) []int64 {
	if len(fromModel) > 0 {
		return append([]int64(nil), fromModel...)
	}
	return append([]int64(nil), fromMeta...)
}

// concrete replaces dynamic dimensions in shape with the matching dimension
// of fill, aligned from the right, or 1 when fill has none. An empty shape
// becomes fill.
func concrete(shape, fill []int64) []int64 {
	if len(shape) == 0 {
		return append([]int64(nil), fill...)
	}
	out := make([]int64, len(shape))
	offset := len(fill) - len(shape)
	for i, d := range shape {
		switch {
		case d > 0:
			out[i] = d
		case i > 0 && i+offset >= 0 && i+offset < len(fill):
			out[i] = fill[i+offset]
		default:
			out[i] = 1
		}
	}
	return out
}
