package onnx

import (
	"context"
	"errors"
	"testing"
)

// fakeRunner implements GraphRunner with an injected Run function.
type fakeRunner struct {
	name   string
	fn     func(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	calls  int
	closed bool
}

func (f *fakeRunner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	f.calls++
	return f.fn(ctx, inputs)
}

func (f *fakeRunner) Name() string { return f.name }

func (f *fakeRunner) Close() { f.closed = true }

func engineWithFakeRunners(runners ...*fakeRunner) *Engine {
	m := make(map[string]GraphRunner, len(runners))
	for _, r := range runners {
		m[r.name] = r
	}

	return NewEngineWithRunners(m)
}

func mustTensor[T ~int64 | ~float32](t *testing.T, data []T, shape ...int64) *Tensor {
	t.Helper()

	out, err := NewTensor(data, shape)
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	return out
}

func failingRunner(name string) *fakeRunner {
	return &fakeRunner{
		name: name,
		fn: func(context.Context, map[string]*Tensor) (map[string]*Tensor, error) {
			return nil, errors.New("boom")
		},
	}
}
