package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/hertz"
)

func TestEncodeThenComplete(t *testing.T) {
	_, gen := stubModels(t)
	dir := t.TempDir()
	prompt := writePrompt(t, dir, 48000, 4)
	latents := filepath.Join(dir, "prompt.safetensors")

	stdout, err := execute(t, "encode", prompt, "--latents-out", latents, "--prompt-seconds", "2")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if !strings.Contains(stdout, "[1 32 32]") {
		t.Errorf("stdout = %q; want shape [1 32 32]", stdout)
	}

	l, meta, err := hertz.LoadLatents(latents)
	if err != nil {
		t.Fatalf("LoadLatents: %v", err)
	}

	if l.Steps != 32 || meta.Mode != config.SpeakerSingle || meta.PromptSeconds != 2 {
		t.Errorf("latents %v meta %+v", l.Shape(), meta)
	}

	out := filepath.Join(dir, "output.wav")
	if _, err := execute(t, "complete", "--latents", latents, "--out", out, "--num-completions", "2", "--max-steps", "4"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if gen.calls != 2 {
		t.Errorf("completion calls = %d; want 2", gen.calls)
	}
}

func TestComplete_KeepsZeroPromptSecondsFromFile(t *testing.T) {
	stubModels(t)
	dir := t.TempDir()
	prompt := writePrompt(t, dir, 16000, 4)
	latents := filepath.Join(dir, "prompt.safetensors")

	if _, err := execute(t, "encode", prompt, "--latents-out", latents, "--prompt-seconds", "0"); err != nil {
		t.Fatalf("encode: %v", err)
	}

	out := filepath.Join(dir, "output.wav")
	if _, err := execute(t, "complete", "--latents", latents, "--out", out, "--num-completions", "1", "--max-steps", "4"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	w, err := audio.ReadWAVFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	// 32 prompt + 4 generated steps, nothing trimmed for a 0 s prompt.
	if w.Len() != 36*testHop {
		t.Errorf("output samples = %d; want %d", w.Len(), 36*testHop)
	}
}

func TestEncode_RequiresOutput(t *testing.T) {
	stubModels(t)

	_, err := execute(t, "encode", "prompt.wav")
	if err == nil || !strings.Contains(err.Error(), "--latents-out") {
		t.Fatalf("err = %v; want --latents-out error", err)
	}
}

func TestComplete_ModeMismatch(t *testing.T) {
	stubModels(t)
	dir := t.TempDir()
	latents := filepath.Join(dir, "p.safetensors")

	l, _ := hertz.NewLatents(make([]float32, 4*hertz.LatentDim), 4, hertz.LatentDim)
	if err := hertz.SaveLatents(latents, l, hertz.LatentFile{Mode: config.SpeakerSingle}); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "complete", "--latents", latents, "--two-speaker")
	if err == nil || !strings.Contains(err.Error(), "encoded for single") {
		t.Fatalf("err = %v; want mode mismatch", err)
	}
}

func TestComplete_RequiresLatents(t *testing.T) {
	stubModels(t)

	if _, err := execute(t, "complete"); err == nil || !strings.Contains(err.Error(), "--latents") {
		t.Fatalf("err = %v", err)
	}
}
