// Package inference - ONNX Runtime coefficient prediction.
package inference

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Backend is an ONNX Runtime execution provider.
type Backend string

const (
	// BackendCPU runs on the default CPU provider.
	BackendCPU Backend = "cpu"
	// BackendCUDA uses NVIDIA CUDA.
	BackendCUDA Backend = "cuda"
	// BackendCoreML uses Apple CoreML.
	BackendCoreML Backend = "coreml"
)

// ParseBackend parses a backend name. The empty string selects the CPU.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendCPU, nil
	case BackendCPU, BackendCUDA, BackendCoreML:
		return b, nil
	}
	return "", errors.Errorf("unknown inference backend %q", s)
}

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID" yaml:"deviceID"`
	// The size limit of the device memory arena in bytes; 0 leaves it unlimited.
	GPUMemLimit int64 `json:"gpuMemLimit" yaml:"gpuMemLimit"`
	// kNextPowerOfTwo or kSameAsRequested.
	ArenaExtendStrategy string `json:"arenaExtendStrategy" yaml:"arenaExtendStrategy"`
	// EXHAUSTIVE, HEURISTIC or DEFAULT.
	CudnnConvAlgoSearch string `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch"`
}

// providerOptions converts the options to the runtime's string map.
func (o CUDAOptions) providerOptions() map[string]string {
	m := map[string]string{
		"device_id": fmt.Sprintf("%d", o.DeviceID),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = fmt.Sprintf("%d", o.GPUMemLimit)
	}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		m["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}
	return m
}

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Flags is the COREML_FLAG_* bit set passed to the provider.
	Flags uint32 `json:"flags" yaml:"flags"`
}

// newSessionOptions builds session options for the configured threads and backend.
//
// Arguments:
//   - opts: The inference options.
//
// Returns:
//   - *ort.SessionOptions: Options the caller must destroy.
//   - error: An error if an option or provider cannot be applied.
func newSessionOptions(opts Options) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}

	if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "setting inter-op threads")
	}

	switch opts.Backend {
	case BackendCPU, "":
	case BackendCoreML:
		if err := options.AppendExecutionProviderCoreML(opts.CoreML.Flags); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "enabling CoreML")
		}
	case BackendCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "creating CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(opts.CUDA.providerOptions()); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "configuring CUDA")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "enabling CUDA")
		}
	default:
		options.Destroy()
		return nil, errors.Errorf("unknown inference backend %q", opts.Backend)
	}
	return options, nil
}
