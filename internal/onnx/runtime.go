// Package onnx wraps onnxruntime_go for the model-backed engines: shared
// library discovery, environment initialisation, GPU provider options and a
// small session type that runs one float32 tensor through a model.
package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"
)

// EnvLibraryPath overrides library discovery when set.
const EnvLibraryPath = "ONNXRUNTIME_LIB"

// ErrLibraryNotFound is returned when no ONNX Runtime shared library exists
// at any of the probed locations.
var ErrLibraryNotFound = errors.New("onnxruntime shared library not found")

var initMu sync.Mutex

// libraryName returns the shared library filename for goos.
func libraryName(goos string) (string, error) {
	switch goos {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// candidatePaths lists where the library is looked for, most specific first.
func candidatePaths(explicit string, useGPU bool) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	if env := os.Getenv(EnvLibraryPath); env != "" {
		paths = append(paths, env)
	}
	if useGPU {
		paths = append(paths, "/opt/onnxruntime/gpu/lib/libonnxruntime.so")
	}
	paths = append(paths,
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
	)
	if name, err := libraryName(runtime.GOOS); err == nil {
		if exe, err := os.Executable(); err == nil {
			dir := filepath.Dir(exe)
			if useGPU {
				paths = append(paths, filepath.Join(dir, "onnxruntime", "gpu", "lib", name))
			}
			paths = append(paths, filepath.Join(dir, "onnxruntime", "lib", name))
		}
	}
	return paths
}

// ResolveLibraryPath returns the first existing candidate library path.
func ResolveLibraryPath(explicit string, useGPU bool) (string, error) {
	for _, p := range candidatePaths(explicit, useGPU) {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", ErrLibraryNotFound
}

// Init points onnxruntime_go at the shared library and initialises the
// process-wide environment once.
func Init(explicit string, useGPU bool) error {
	initMu.Lock()
	defer initMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	path, err := ResolveLibraryPath(explicit, useGPU)
	if err != nil {
		return err
	}
	onnxruntime_go.SetSharedLibraryPath(path)
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %s: %w", path, err)
	}
	return nil
}

// Shutdown tears the environment down. Only the CLI calls this, once, on exit.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()
	if !onnxruntime_go.IsInitialized() {
		return nil
	}
	return onnxruntime_go.DestroyEnvironment()
}
