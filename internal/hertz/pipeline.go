package hertz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/config"
)

// Pipeline wires preprocessing, encoding and the batch runner around one
// tokenizer and generator.
type Pipeline struct {
	Mode      config.SpeakerMode
	Exec      ExecContext
	Tokenizer Tokenizer
	Generator Generator
	Cache     LatentCache
	Sink      Sink
	NameFor   NameFunc

	NumCompletions int
	Params         CompletionParams

	// SavePrompt writes the preprocessed prompt through Sink before the
	// completions start.
	SavePrompt bool
}

// Run loads the prompt at path, encodes it and generates the batch.
func (p *Pipeline) Run(ctx context.Context, path string) (BatchResult, error) {
	w, err := LoadPrompt(path, p.Mode)
	if err != nil {
		return BatchResult{}, err
	}

	if p.SavePrompt {
		name := p.NameFor(PromptIteration)

		n, err := p.Sink.Save(ctx, name, w)
		if err != nil {
			return BatchResult{}, fmt.Errorf("save prompt %s: %w", name, err)
		}

		slog.Info("saved preprocessed prompt", "path", name, "size", humanize.Bytes(uint64(n)))
	}

	latents, err := p.EncodePrompt(ctx, w)
	if err != nil {
		return BatchResult{}, err
	}

	return p.RunLatents(ctx, latents)
}

// EncodePrompt encodes an already preprocessed prompt.
func (p *Pipeline) EncodePrompt(ctx context.Context, w *audio.Waveform) (Latents, error) {
	enc := &Encoder{Tokenizer: p.Tokenizer, Mode: p.Mode, Exec: p.Exec, Cache: p.Cache}
	return enc.Encode(ctx, w)
}

// RunLatents generates the batch from encoded prompt latents.
func (p *Pipeline) RunLatents(ctx context.Context, prompt Latents) (BatchResult, error) {
	if want := LatentDim * p.Mode.Channels(); prompt.Dim != want {
		return BatchResult{}, fmt.Errorf("%w: %s prompt needs %d features, got %d", ErrShapeMismatch, p.Mode, want, prompt.Dim)
	}

	runner := &BatchRunner{
		Completer: &Driver{Generator: p.Generator, Tokenizer: p.Tokenizer, Mode: p.Mode, Exec: p.Exec},
		Sink:      p.Sink,
		NameFor:   p.NameFor,
		N:         p.NumCompletions,
	}

	return runner.Run(ctx, prompt, p.Params)
}
