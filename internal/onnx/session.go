package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-hertz-dev/internal/config"
)

// NodeInfo is one graph input or output as declared in manifest.json.
// Shape entries are JSON numbers or symbolic dimension names. Optional
// inputs, such as an empty KV cache on the first step, may be omitted.
type NodeInfo struct {
	Name     string `json:"name"`
	DType    string `json:"dtype"`
	Shape    []any  `json:"shape"`
	Optional bool   `json:"optional,omitempty"`
}

// Session is a manifest graph resolved to an .onnx file on disk.
type Session struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// SessionManager is the parsed form of one bundle manifest. It is immutable
// after NewSessionManager returns.
type SessionManager struct {
	variant  string
	sessions map[string]Session
	order    []string
}

// manifestFile is the on-disk layout written by the export tooling:
//
//	{"variant": "split", "graphs": [{"name": ..., "filename": ..., ...}]}
type manifestFile struct {
	Variant string          `json:"variant,omitempty"`
	Graphs  []manifestGraph `json:"graphs"`
}

type manifestGraph struct {
	Name     string     `json:"name"`
	Filename string     `json:"filename"`
	Inputs   []NodeInfo `json:"inputs"`
	Outputs  []NodeInfo `json:"outputs"`
}

// NewSessionManager parses manifestPath and checks that every graph file
// exists. Relative filenames resolve against the manifest directory.
func NewSessionManager(manifestPath string) (*SessionManager, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read ONNX manifest: %w", err)
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("decode ONNX manifest %s: %w", manifestPath, err)
	}

	if len(mf.Graphs) == 0 {
		return nil, fmt.Errorf("ONNX manifest %s lists no graphs", manifestPath)
	}

	base := filepath.Dir(manifestPath)
	sm := &SessionManager{
		variant:  mf.Variant,
		sessions: make(map[string]Session, len(mf.Graphs)),
	}

	for i, g := range mf.Graphs {
		s, err := resolveGraph(base, g)
		if err != nil {
			return nil, fmt.Errorf("manifest graph %d: %w", i, err)
		}

		if _, dup := sm.sessions[s.Name]; dup {
			return nil, fmt.Errorf("duplicate session name %q in manifest", s.Name)
		}

		sm.sessions[s.Name] = s
		sm.order = append(sm.order, s.Name)

		slog.Debug("registered onnx graph",
			"name", s.Name,
			"path", s.Path,
			"inputs", nodeNames(s.Inputs),
			"outputs", nodeNames(s.Outputs),
		)
	}

	return sm, nil
}

func resolveGraph(base string, g manifestGraph) (Session, error) {
	switch {
	case g.Name == "":
		return Session{}, errors.New("empty graph name")
	case g.Filename == "":
		return Session{}, fmt.Errorf("graph %q has empty filename", g.Name)
	}

	for _, in := range g.Inputs {
		if _, err := canonicalDType(in.DType); err != nil {
			return Session{}, fmt.Errorf("graph %q input %q: %w", g.Name, in.Name, err)
		}
	}

	path := g.Filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return Session{}, fmt.Errorf("session file for %q: %w", g.Name, err)
	}

	return Session{
		Name:    g.Name,
		Path:    path,
		Inputs:  append([]NodeInfo(nil), g.Inputs...),
		Outputs: append([]NodeInfo(nil), g.Outputs...),
	}, nil
}

// VariantManifest returns <modelDir>/<variant>/manifest.json for mode.
func VariantManifest(modelDir string, mode config.SpeakerMode) string {
	return filepath.Join(modelDir, mode.Variant(), "manifest.json")
}

// Variant is the generator variant the manifest was exported for, or ""
// when the manifest does not say.
func (m *SessionManager) Variant() string { return m.variant }

func (m *SessionManager) Session(name string) (Session, bool) {
	s, ok := m.sessions[name]
	return s, ok
}

// Sessions returns copies of every graph in manifest order.
func (m *SessionManager) Sessions() []Session {
	out := make([]Session, 0, len(m.order))
	for _, name := range m.order {
		s := m.sessions[name]
		s.Inputs = append([]NodeInfo(nil), s.Inputs...)
		s.Outputs = append([]NodeInfo(nil), s.Outputs...)
		out = append(out, s)
	}

	return out
}

// checkInputs matches a feed against the declared graph inputs: every
// required input must be present with the declared dtype and no undeclared
// input may be passed. Graphs with no declared inputs accept anything.
func checkInputs(s Session, inputs map[string]*Tensor) error {
	if len(s.Inputs) == 0 {
		return nil
	}

	declared := make(map[string]NodeInfo, len(s.Inputs))
	for _, in := range s.Inputs {
		declared[in.Name] = in
	}

	for name, t := range inputs {
		node, ok := declared[name]
		if !ok {
			return fmt.Errorf("graph %q: unexpected input %q", s.Name, name)
		}

		want, _ := canonicalDType(node.DType)
		if t == nil || t.DType() != want {
			return fmt.Errorf("graph %q input %q: want %s tensor", s.Name, name, want)
		}
	}

	var missing []string
	for _, in := range s.Inputs {
		if _, ok := inputs[in.Name]; !ok && !in.Optional {
			missing = append(missing, in.Name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("graph %q: missing input(s) %s", s.Name, strings.Join(missing, ","))
	}

	return nil
}

func nodeNames(nodes []NodeInfo) string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}
