package inference

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-hdrnet/bgu"
	"github.com/nvr-ai/go-hdrnet/images"
	"github.com/nvr-ai/go-hdrnet/profile"
)

// DefaultModelFile is the model file name inside a profile directory.
const DefaultModelFile = "model.onnx"

// Options configures ONNX coefficient sources.
type Options struct {
	// Backend selects the execution provider.
	Backend Backend `json:"backend" yaml:"backend"`
	// IntraOpThreads parallelizes work inside graph nodes; 0 lets the runtime decide.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads"`
	// InterOpThreads parallelizes independent graph nodes; 0 lets the runtime decide.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads"`
	// ModelFile is the model file name inside each profile directory.
	ModelFile string `json:"modelFile" yaml:"modelFile"`
	// LibraryPath is the ONNX Runtime shared library; empty selects GetSharedLibPath.
	LibraryPath string `json:"libraryPath" yaml:"libraryPath"`
	// CUDA configures BackendCUDA.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// CoreML configures BackendCoreML.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
}

// DefaultOptions returns CPU inference on model.onnx.
func DefaultOptions() Options {
	return Options{
		Backend:   BackendCPU,
		ModelFile: DefaultModelFile,
	}
}

// ONNXSource predicts coefficient grids with an ONNX model stored in the profile directory.
//
// LoadProfile runs one inference on a black frame to learn the grid dimensions the model
// produces, mirroring how the grid size is discovered from the graph's first output.
type ONNXSource struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	input   *ort.Tensor[float32]
	layout  InputLayout
	dims    bgu.GridDimensions
	model   string
}

var _ profile.CoefficientSource = (*ONNXSource)(nil)

// NewONNXSource creates an unloaded source.
func NewONNXSource(opts Options, logger *slog.Logger) *ONNXSource {
	if opts.ModelFile == "" {
		opts.ModelFile = DefaultModelFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ONNXSource{opts: opts, logger: logger}
}

// Factory returns a profile.SourceFactory producing ONNX sources with opts.
func Factory(opts Options, logger *slog.Logger) profile.SourceFactory {
	return func() profile.CoefficientSource {
		return NewONNXSource(opts, logger)
	}
}

// LoadProfile opens <path>/<ModelFile> and runs a warm-up inference.
//
// Arguments:
//   - ctx: Checked before the warm-up inference.
//   - path: The profile directory.
//
// Returns:
//   - bgu.GridDimensions: The grid dimensions of the model output.
//   - error: An error if the model is missing, has unsupported inputs or outputs, or fails to run.
func (s *ONNXSource) LoadProfile(ctx context.Context, path string) (bgu.GridDimensions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return bgu.GridDimensions{}, errors.New("coefficient source already loaded")
	}

	modelPath := filepath.Join(path, s.opts.ModelFile)
	if _, err := os.Stat(modelPath); err != nil {
		return bgu.GridDimensions{}, errors.Wrap(err, "coefficient model")
	}
	if err := InitializeRuntime(s.opts.LibraryPath); err != nil {
		return bgu.GridDimensions{}, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return bgu.GridDimensions{}, errors.Wrapf(err, "reading model signature of %s", modelPath)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return bgu.GridDimensions{}, errors.Errorf("%s has %d inputs and %d outputs, want 1 and at least 1",
			modelPath, len(inputs), len(outputs))
	}
	layout, err := inputLayout(inputs[0].Dimensions)
	if err != nil {
		return bgu.GridDimensions{}, errors.Wrap(err, modelPath)
	}

	options, err := newSessionOptions(s.opts)
	if err != nil {
		return bgu.GridDimensions{}, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		options,
	)
	if err != nil {
		return bgu.GridDimensions{}, errors.Wrapf(err, "creating session for %s", modelPath)
	}

	shape := ort.NewShape(1, images.DownscaledSize, images.DownscaledSize, 3)
	if layout == NCHW {
		shape = ort.NewShape(1, 3, images.DownscaledSize, images.DownscaledSize)
	}
	input, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		session.Destroy()
		return bgu.GridDimensions{}, errors.Wrap(err, "allocating input tensor")
	}

	s.session = session
	s.input = input
	s.layout = layout
	s.model = modelPath

	if err := ctx.Err(); err != nil {
		s.release()
		return bgu.GridDimensions{}, err
	}
	warmup, err := s.run()
	if err != nil {
		s.release()
		return bgu.GridDimensions{}, errors.Wrap(err, "warm-up inference")
	}
	if err := warmup.Dims.Validate(); err != nil {
		s.release()
		return bgu.GridDimensions{}, err
	}
	s.dims = warmup.Dims

	s.logger.Info("coefficient model loaded",
		"model", modelPath,
		"backend", string(s.opts.Backend),
		"input", inputs[0].Dimensions.String(),
		"grid", s.dims.String(),
	)
	return s.dims, nil
}

// Predict runs the model on a 256x256 frame.
func (s *ONNXSource) Predict(ctx context.Context, frame *images.Image) (bgu.GridData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return bgu.GridData{}, errors.New("coefficient source not loaded")
	}
	if err := ctx.Err(); err != nil {
		return bgu.GridData{}, err
	}
	if err := PrepareInput(frame, s.layout, s.input.GetData()); err != nil {
		return bgu.GridData{}, err
	}
	return s.run()
}

// run executes the session on the current input and returns the normalized output.
func (s *ONNXSource) run() (bgu.GridData, error) {
	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{s.input}, outputs); err != nil {
		return bgu.GridData{}, errors.Wrapf(err, "running %s", s.model)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return bgu.GridData{}, errors.Errorf("%s output is %T, want a float32 tensor", s.model, outputs[0])
	}
	return normalizeLayout(out.GetShape(), out.GetData())
}

// Close releases the session and its input tensor.
func (s *ONNXSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

func (s *ONNXSource) release() error {
	var err error
	if s.input != nil {
		err = s.input.Destroy()
		s.input = nil
	}
	if s.session != nil {
		if destroyErr := s.session.Destroy(); destroyErr != nil {
			err = errors.Wrap(destroyErr, "destroying ONNX session")
		}
		s.session = nil
	}
	return err
}
