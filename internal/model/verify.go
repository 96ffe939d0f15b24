// Package model checks that an exported hertz-dev bundle is complete and
// that every graph runs under the installed ONNX Runtime.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/onnx"
)

// VerifyOptions selects the manifests to check.
type VerifyOptions struct {
	TokenizerManifest string
	ModelDir          string
	Mode              config.SpeakerMode
	Runner            onnx.RunnerConfig

	// SkipRun only validates manifests and graph contracts.
	SkipRun bool

	Stdout io.Writer
	Stderr io.Writer
}

// Bundle is one manifest and the contract its graphs must satisfy.
type Bundle struct {
	Role     string
	Manifest string
	check    func(has func(string) bool) error
}

// Bundles lists the tokenizer manifest and the generator manifest for the
// configured speaker mode.
func Bundles(opts VerifyOptions) []Bundle {
	tokenizer := opts.TokenizerManifest
	if tokenizer == "" {
		tokenizer = filepath.Join(opts.ModelDir, "tokenizer", "manifest.json")
	}

	return []Bundle{
		{Role: "tokenizer", Manifest: tokenizer, check: onnx.CheckTokenizerGraphs},
		{Role: "generator/" + opts.Mode.Variant(), Manifest: onnx.VariantManifest(opts.ModelDir, opts.Mode), check: onnx.CheckGeneratorGraphs},
	}
}

// graphSmoke runs every session of a manifest with zero-filled inputs.
var graphSmoke = runGraphSmoke

// Verify validates both bundles and smoke-runs every graph. All failures
// are printed before the combined error is returned.
func Verify(ctx context.Context, opts VerifyOptions) error {
	if opts.ModelDir == "" && opts.TokenizerManifest == "" {
		return errors.New("model dir is required")
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	var failures []string

	for _, b := range Bundles(opts) {
		sessions, err := checkBundle(b)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", b.Role, err)
			failures = append(failures, b.Role)

			continue
		}

		if opts.SkipRun {
			_, _ = fmt.Fprintf(opts.Stdout, "PASS %s (%d graphs, not run)\n", b.Role, len(sessions))
			continue
		}

		for _, s := range sessions {
			if err := graphSmoke(ctx, s, opts.Runner); err != nil {
				_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s/%s: %v\n", b.Role, s.Name, err)
				failures = append(failures, b.Role+"/"+s.Name)

				continue
			}

			_, _ = fmt.Fprintf(opts.Stdout, "PASS %s/%s\n", b.Role, s.Name)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("verify failed for %d check(s): %s", len(failures), strings.Join(failures, ", "))
	}

	return nil
}

func checkBundle(b Bundle) ([]onnx.Session, error) {
	sm, err := onnx.NewSessionManager(b.Manifest)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	has := func(name string) bool {
		_, ok := sm.Session(name)
		return ok
	}

	if err := b.check(has); err != nil {
		return nil, err
	}

	for _, s := range sm.Sessions() {
		for _, in := range s.Inputs {
			if _, err := onnx.NewZeroTensor(in.DType, in.Shape); err != nil {
				return nil, fmt.Errorf("graph %q input %q invalid: %w", s.Name, in.Name, err)
			}
		}
	}

	return sm.Sessions(), nil
}

func runGraphSmoke(ctx context.Context, s onnx.Session, cfg onnx.RunnerConfig) error {
	r, err := onnx.NewRunner(s, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	inputs := make(map[string]*onnx.Tensor, len(s.Inputs))
	for _, in := range s.Inputs {
		t, err := onnx.NewZeroTensor(in.DType, in.Shape)
		if err != nil {
			return fmt.Errorf("build input %q: %w", in.Name, err)
		}

		inputs[in.Name] = t
	}

	outputs, err := r.Run(ctx, inputs)
	if err != nil {
		return fmt.Errorf("run inference: %w", err)
	}

	for _, want := range s.Outputs {
		if _, ok := outputs[want.Name]; !ok {
			return fmt.Errorf("missing output %q", want.Name)
		}
	}

	return nil
}
