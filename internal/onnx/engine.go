package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Engine owns one runner per graph of a manifest.
type Engine struct {
	runners map[string]GraphRunner
	variant string
}

// NewEngine loads every graph listed in manifestPath into an ORT session.
func NewEngine(manifestPath string, cfg RunnerConfig) (*Engine, error) {
	sm, err := NewSessionManager(manifestPath)
	if err != nil {
		return nil, err
	}

	runners := make(map[string]GraphRunner, len(sm.Sessions()))
	for _, s := range sm.Sessions() {
		r, err := NewRunner(s, cfg)
		if err != nil {
			for _, loaded := range runners {
				loaded.Close()
			}

			return nil, fmt.Errorf("load graph %q: %w", s.Name, err)
		}

		runners[s.Name] = r
	}

	slog.Debug("onnx engine ready", "manifest", manifestPath, "graphs", len(runners))

	return &Engine{runners: runners, variant: sm.Variant()}, nil
}

// Variant is the generator variant named by the manifest, if any.
func (e *Engine) Variant() string { return e.variant }

// HasGraph reports whether the engine loaded a graph with this name.
func (e *Engine) HasGraph(name string) bool {
	_, ok := e.runners[name]
	return ok
}

// Graphs lists the loaded graph names in sorted order.
func (e *Engine) Graphs() []string {
	names := make([]string, 0, len(e.runners))
	for name := range e.runners {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Close releases every runner. Safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}

	for name, r := range e.runners {
		r.Close()
		delete(e.runners, name)
	}
}

// Run executes one graph by name.
func (e *Engine) Run(ctx context.Context, graph string, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	r, err := e.runner(graph)
	if err != nil {
		return nil, err
	}

	return r.Run(ctx, inputs)
}

// ErrGraphMissing is returned when a bundle lacks a required graph.
var ErrGraphMissing = errors.New("graph not found in manifest")

func (e *Engine) runner(name string) (GraphRunner, error) {
	r, ok := e.runners[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrGraphMissing)
	}

	return r, nil
}

func requireOutput(graph string, outputs map[string]*Tensor, name string) (*Tensor, error) {
	t, ok := outputs[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("%s: missing %q in output", graph, name)
	}

	return t, nil
}
