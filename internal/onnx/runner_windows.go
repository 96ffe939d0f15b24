//go:build windows

package onnx

import (
	"context"
	"errors"
	"fmt"
)

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// errNoWindowsRuntime is returned by every Runner on windows, where the
// purego ORT binding is not available.
var errNoWindowsRuntime = errors.New("onnxruntime is not supported on windows builds")

// Runner is a placeholder so the package builds on windows. Manifest
// parsing and input checks still work; only execution is unavailable.
type Runner struct {
	meta Session
}

func NewRunner(meta Session, _ RunnerConfig) (*Runner, error) {
	return nil, fmt.Errorf("graph %q: %w", meta.Name, errNoWindowsRuntime)
}

func (r *Runner) Run(_ context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if err := checkInputs(r.meta, inputs); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("graph %q: %w", r.meta.Name, errNoWindowsRuntime)
}

func (r *Runner) Close() {}

func closeAllRuntimes() int { return 0 }

func (r *Runner) Name() string { return r.meta.Name }
