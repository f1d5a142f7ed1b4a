package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var environment struct {
	sync.Mutex
	libPath string
}

// GetSharedLibPath returns the default path to the ONNX Runtime shared library for the current
// platform.
//
// Returns:
//   - string: The path to the shared library.
func GetSharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}

// InitializeRuntime loads the ONNX Runtime shared library and prepares the environment. It is
// safe to call more than once; later calls with a different path are an error.
//
// Arguments:
//   - libPath: The shared library; empty selects GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeRuntime(libPath string) error {
	if libPath == "" {
		libPath = GetSharedLibPath()
	}

	environment.Lock()
	defer environment.Unlock()

	if ort.IsInitialized() {
		if environment.libPath != "" && environment.libPath != libPath {
			return errors.Errorf("ONNX Runtime already initialized from %s", environment.libPath)
		}
		return nil
	}

	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initializing ONNX Runtime environment")
	}
	environment.libPath = libPath
	return nil
}

// ShutdownRuntime releases the ONNX Runtime environment. Sessions must be closed first.
func ShutdownRuntime() error {
	environment.Lock()
	defer environment.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	environment.libPath = ""
	return errors.Wrap(ort.DestroyEnvironment(), "destroying ONNX Runtime environment")
}
