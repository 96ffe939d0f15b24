package hertz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/config"
)

const (
	// samplesPerPromptStep converts prompt steps to output samples for
	// trimming.
	samplesPerPromptStep = 2000

	// trimLead keeps one second of prompt audio before the continuation.
	trimLead = 16000
)

// TrimOffset is the number of leading samples dropped from a decoded
// completion: max(promptLen*2000 - 16000, 0).
func TrimOffset(promptLen int) int {
	return max(promptLen*samplesPerPromptStep-trimLead, 0)
}

// Driver completes an encoded prompt and decodes the result.
type Driver struct {
	Generator Generator
	Tokenizer Tokenizer
	Mode      config.SpeakerMode
	Exec      ExecContext
}

// Complete runs one completion, decodes it, normalizes the peak and drops
// TrimOffset(params.PromptLen) leading samples.
func (d *Driver) Complete(ctx context.Context, prompt Latents, params CompletionParams) (*audio.Waveform, error) {
	slog.Info("completing audio",
		"prompt_seconds", float64(params.PromptLen)/StepsPerSecond,
		"token_temp", params.TokenTemp,
		"categorical_temp", params.CategoricalTemp,
		"gaussian_temp", params.GaussianTemp,
		"use_cache", params.UseCache,
	)

	completed, err := d.Generator.Completion(ctx, d.Exec, prompt, params)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	if completed.Steps < prompt.Steps {
		return nil, fmt.Errorf("%w: %d steps for a %d-step prompt", ErrShortCompletion, completed.Steps, prompt.Steps)
	}

	if completed.Dim != prompt.Dim {
		return nil, fmt.Errorf("%w: completion has %d features, prompt has %d", ErrShapeMismatch, completed.Dim, prompt.Dim)
	}

	slog.Info("decoding completion", "steps", completed.Steps)

	decoded, err := d.Decode(ctx, completed)
	if err != nil {
		return nil, err
	}

	slog.Debug("decoded completion", "shape", decoded.Shape())

	out := audio.DropHead(audio.PreventClipping(decoded), TrimOffset(params.PromptLen))

	return out, nil
}

// Decode converts latents to a 16 kHz waveform. Two-speaker latents are
// split at LatentDim and decoded per channel.
func (d *Driver) Decode(ctx context.Context, latents Latents) (*audio.Waveform, error) {
	if !d.Mode.Split() {
		samples, err := d.Tokenizer.DataFromLatent(ctx, d.Exec, latents)
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}

		return audio.NewWaveform(audio.ModelSampleRate, samples), nil
	}

	first, second, err := latents.SplitFeatures(LatentDim)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	ch1, err := d.Tokenizer.DataFromLatent(ctx, d.Exec, first)
	if err != nil {
		return nil, fmt.Errorf("decode channel 1: %w", err)
	}

	ch2, err := d.Tokenizer.DataFromLatent(ctx, d.Exec, second)
	if err != nil {
		return nil, fmt.Errorf("decode channel 2: %w", err)
	}

	if len(ch1) != len(ch2) {
		return nil, fmt.Errorf("%w: decoded channels have %d and %d samples", ErrShapeMismatch, len(ch1), len(ch2))
	}

	return audio.NewWaveform(audio.ModelSampleRate, ch1, ch2), nil
}
