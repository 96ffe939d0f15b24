//go:build !windows

package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

const defaultAPIVersion = 23

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.APIVersion == 0 {
		c.APIVersion = defaultAPIVersion
	}
	return c
}

// sharedRuntime is one loaded ORT library plus its environment, shared by
// every graph opened with the same RunnerConfig. The tokenizer and the
// generator graphs of a process all hang off a single instance.
type sharedRuntime struct {
	runtime *ort.Runtime
	env     *ort.Env
	refs    int
}

var (
	runtimesMu sync.Mutex
	runtimes   = map[RunnerConfig]*sharedRuntime{}
)

func acquireRuntime(cfg RunnerConfig) (*sharedRuntime, error) {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()

	if rt, ok := runtimes[cfg]; ok {
		rt.refs++
		return rt, nil
	}

	runtime, err := ort.NewRuntime(cfg.LibraryPath, cfg.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("load onnxruntime %q (api %d): %w", cfg.LibraryPath, cfg.APIVersion, err)
	}

	env, err := runtime.NewEnv("hertzdev", ort.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()
		return nil, fmt.Errorf("ort env: %w", err)
	}

	rt := &sharedRuntime{runtime: runtime, env: env, refs: 1}
	runtimes[cfg] = rt

	return rt, nil
}

func releaseRuntime(cfg RunnerConfig) {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()

	rt, ok := runtimes[cfg]
	if !ok {
		return
	}

	rt.refs--
	if rt.refs > 0 {
		return
	}

	delete(runtimes, cfg)
	rt.env.Close()
	_ = rt.runtime.Close()
}

// closeAllRuntimes tears down every registered runtime regardless of its
// reference count and reports how many references were still open.
func closeAllRuntimes() int {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()

	leaked := 0
	for cfg, rt := range runtimes {
		leaked += rt.refs
		rt.env.Close()
		_ = rt.runtime.Close()
		delete(runtimes, cfg)
	}

	return leaked
}

// Runner executes one manifest graph on a shared ORT runtime.
type Runner struct {
	meta    Session
	cfg     RunnerConfig
	rt      *sharedRuntime
	session *ort.Session
	once    sync.Once
}

// NewRunner opens the graph described by meta.
func NewRunner(meta Session, cfg RunnerConfig) (*Runner, error) {
	cfg = cfg.withDefaults()

	rt, err := acquireRuntime(cfg)
	if err != nil {
		return nil, fmt.Errorf("graph %q: %w", meta.Name, err)
	}

	session, err := rt.runtime.NewSession(rt.env, meta.Path, nil)
	if err != nil {
		releaseRuntime(cfg)
		return nil, fmt.Errorf("open graph %q (%s): %w", meta.Name, meta.Path, err)
	}

	return &Runner{meta: meta, cfg: cfg, rt: rt, session: session}, nil
}

// Run feeds inputs to the graph and returns the outputs the manifest
// declares. Graphs without declared outputs return everything ORT produced.
func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if r.session == nil {
		return nil, fmt.Errorf("graph %q is closed", r.meta.Name)
	}

	if err := checkInputs(r.meta, inputs); err != nil {
		return nil, err
	}

	values := make(map[string]*ort.Value, len(inputs))
	defer closeORTValues(values)

	for name, t := range inputs {
		v, err := tensorToORT(r.rt.runtime, t)
		if err != nil {
			return nil, fmt.Errorf("graph %q input %q: %w", r.meta.Name, name, err)
		}

		values[name] = v
	}

	raw, err := r.session.Run(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("run graph %q: %w", r.meta.Name, err)
	}
	defer closeORTValues(raw)

	results := make(map[string]*Tensor, len(raw))

	for name, v := range raw {
		if !r.declaresOutput(name) {
			continue
		}

		t, err := ortToTensor(v)
		if err != nil {
			return nil, fmt.Errorf("graph %q output %q: %w", r.meta.Name, name, err)
		}

		results[name] = t
	}

	return results, nil
}

func (r *Runner) declaresOutput(name string) bool {
	if len(r.meta.Outputs) == 0 {
		return true
	}

	for _, o := range r.meta.Outputs {
		if o.Name == name {
			return true
		}
	}

	return false
}

// Close releases the session and drops this graph's hold on the runtime.
func (r *Runner) Close() {
	r.once.Do(func() {
		if r.session != nil {
			r.session.Close()
			r.session = nil
		}

		releaseRuntime(r.cfg)
		r.rt = nil
	})
}

// Name returns the graph name from the manifest.
func (r *Runner) Name() string {
	return r.meta.Name
}

func tensorToORT(runtime *ort.Runtime, t *Tensor) (*ort.Value, error) {
	switch data := t.Data().(type) {
	case []float32:
		return ort.NewTensorValue(runtime, data, t.Shape())
	case []int64:
		return ort.NewTensorValue(runtime, data, t.Shape())
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %T", data)
	}
}

func ortToTensor(v *ort.Value) (*Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("element type: %w", err)
	}

	switch elemType {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}

		return NewTensor(data, shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}

		return NewTensor(data, shape)
	default:
		return nil, fmt.Errorf("unsupported ORT element type %d", elemType)
	}
}

func closeORTValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
