package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/example/go-hertz-dev/internal/config"
)

// RuntimeInfo describes the detected ONNX Runtime shared library.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
	Initialized bool
}

const envORTLibrary = "HERTZDEV_ORT_LIB"

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

var (
	bootstrapOnce sync.Once
	bootstrapInfo RuntimeInfo
	errBootstrap  error
	shutdownDone  atomic.Bool
)

// Bootstrap detects the runtime once per process and exports its path in
// HERTZDEV_ORT_LIB for child lookups.
func Bootstrap(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	bootstrapOnce.Do(func() {
		info, err := DetectRuntime(cfg)
		if err != nil {
			errBootstrap = err
			return
		}

		if err := os.Setenv(envORTLibrary, info.LibraryPath); err != nil {
			errBootstrap = fmt.Errorf("set %s: %w", envORTLibrary, err)
			return
		}

		bootstrapInfo = info
		bootstrapInfo.Initialized = true
	})

	if errBootstrap != nil {
		return RuntimeInfo{}, errBootstrap
	}

	return bootstrapInfo, nil
}

// RunnerConfigFor bootstraps the runtime and returns the settings for
// NewEngine.
func RunnerConfigFor(cfg config.RuntimeConfig) (RunnerConfig, error) {
	info, err := Bootstrap(cfg)
	if err != nil {
		return RunnerConfig{}, fmt.Errorf("bootstrap onnx runtime: %w", err)
	}

	return RunnerConfig{LibraryPath: info.LibraryPath, APIVersion: cfg.ORTAPIVersion}, nil
}

// Shutdown releases any ORT runtime still held by unclosed runners. It runs
// once per process; later calls are no-ops.
func Shutdown() error {
	if shutdownDone.Swap(true) {
		return nil
	}

	if leaked := closeAllRuntimes(); leaked > 0 {
		slog.Warn("onnx runtime released with open graphs", "graphs", leaked)
	}

	bootstrapInfo.Initialized = false

	return nil
}

// DetectRuntime resolves the library from config, HERTZDEV_ORT_LIB,
// ORT_LIBRARY_PATH or well-known install locations, in that order.
func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	path := cfg.ORTLibraryPath
	if path == "" {
		path = os.Getenv(envORTLibrary)
	}

	if path == "" {
		path = os.Getenv("ORT_LIBRARY_PATH")
	}

	if path == "" {
		candidates := []string{
			"/usr/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"C:/onnxruntime/lib/onnxruntime.dll",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return RuntimeInfo{LibraryPath: "not found", Version: "unknown"}, errors.New("unable to detect ONNX Runtime library path")
	}

	if _, err := os.Stat(path); err != nil {
		return RuntimeInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("onnx runtime library path check failed: %w", err)
	}

	version := cfg.ORTVersion
	if version == "" {
		version = os.Getenv("ORT_VERSION")
	}

	if version == "" {
		version = inferVersionFromPath(path)
	}

	if version == "" {
		version = "unknown"
	}

	return RuntimeInfo{LibraryPath: path, Version: version}, nil
}

func inferVersionFromPath(path string) string {
	if m := versionPattern.FindStringSubmatch(filepath.Base(path)); len(m) == 2 {
		return m[1]
	}

	return ""
}
