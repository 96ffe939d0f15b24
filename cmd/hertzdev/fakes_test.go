package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/hertz"
)

const testHop = audio.ModelSampleRate / hertz.StepsPerSecond

// stubTokenizer turns each 2000-sample chunk into one frame and back.
type stubTokenizer struct{ closed bool }

func (s *stubTokenizer) LatentFromData(_ context.Context, _ hertz.ExecContext, samples []float32) (hertz.Latents, error) {
	steps := len(samples) / testHop
	return hertz.NewLatents(make([]float32, steps*hertz.LatentDim), steps, hertz.LatentDim)
}

func (s *stubTokenizer) DataFromLatent(_ context.Context, _ hertz.ExecContext, l hertz.Latents) ([]float32, error) {
	return make([]float32, l.Steps*testHop), nil
}

// stubGenerator appends MaxSteps zero frames.
type stubGenerator struct {
	calls  int
	mode   config.SpeakerMode
	closed bool
}

func (s *stubGenerator) Completion(_ context.Context, _ hertz.ExecContext, prompt hertz.Latents, params hertz.CompletionParams) (hertz.Latents, error) {
	s.calls++

	out := prompt.Clone()
	out.Data = append(out.Data, make([]float32, params.MaxSteps*prompt.Dim)...)
	out.Steps += params.MaxSteps

	return out, nil
}

// stubModels replaces the ONNX builders for the duration of the test.
func stubModels(t *testing.T) (*stubTokenizer, *stubGenerator) {
	t.Helper()

	tok := &stubTokenizer{}
	gen := &stubGenerator{}

	origTok, origGen := buildTokenizer, buildGenerator
	t.Cleanup(func() { buildTokenizer, buildGenerator = origTok, origGen })

	buildTokenizer = func(config.Config) (hertz.Tokenizer, closer, error) {
		return tok, func() { tok.closed = true }, nil
	}
	buildGenerator = func(_ config.Config, mode config.SpeakerMode) (hertz.Generator, closer, error) {
		gen.mode = mode
		return gen, func() { gen.closed = true }, nil
	}

	return tok, gen
}

func writePrompt(t *testing.T, dir string, rate, seconds int) string {
	t.Helper()

	path := filepath.Join(dir, "prompt.wav")
	if _, err := audio.WriteWAVFile(path, audio.NewWaveform(rate, make([]float32, rate*seconds)), audio.FormatPCM16); err != nil {
		t.Fatal(err)
	}

	return path
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	origCfg, origFile := activeCfg, cfgFile
	t.Cleanup(func() { activeCfg, cfgFile = origCfg, origFile })

	var out, errOut bytes.Buffer

	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level=error"))

	err := cmd.Execute()

	return out.String(), err
}
