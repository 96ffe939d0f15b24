package onnx

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/go-hertz-dev/internal/hertz"
)

// Graph names of the latent tokenizer bundle.
const (
	graphLatentEncoder = "latent_encoder"
	graphLatentDecoder = "latent_decoder"
)

// Codec runs the latent tokenizer graphs and implements hertz.Tokenizer.
type Codec struct {
	engine *Engine
}

// CheckTokenizerGraphs reports the first tokenizer graph has lacks.
func CheckTokenizerGraphs(has func(graph string) bool) error {
	for _, g := range []string{graphLatentEncoder, graphLatentDecoder} {
		if !has(g) {
			return fmt.Errorf("tokenizer: %s: %w", g, ErrGraphMissing)
		}
	}

	return nil
}

// NewCodec checks that e carries both tokenizer graphs.
func NewCodec(e *Engine) (*Codec, error) {
	if err := CheckTokenizerGraphs(e.HasGraph); err != nil {
		return nil, err
	}

	return &Codec{engine: e}, nil
}

// LatentFromData encodes mono 16 kHz audio [1, 1, N] into latents [1, T, 32].
func (c *Codec) LatentFromData(ctx context.Context, ec hertz.ExecContext, samples []float32) (hertz.Latents, error) {
	if len(samples) == 0 {
		return hertz.Latents{}, errors.New("latent_encoder: audio must not be empty")
	}

	r, err := c.engine.runner(graphLatentEncoder)
	if err != nil {
		return hertz.Latents{}, err
	}

	audio, err := NewTensor(ec.Round(samples), []int64{1, 1, int64(len(samples))})
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("latent_encoder: %w", err)
	}

	outputs, err := r.Run(ctx, map[string]*Tensor{"audio": audio})
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("latent_encoder: run: %w", err)
	}

	latent, err := requireOutput(graphLatentEncoder, outputs, "latent")
	if err != nil {
		return hertz.Latents{}, err
	}

	return latentsFromTensor(ec, latent)
}

// DataFromLatent decodes one channel's latents [1, T, 32] into audio.
func (c *Codec) DataFromLatent(ctx context.Context, ec hertz.ExecContext, latents hertz.Latents) ([]float32, error) {
	if latents.Steps == 0 {
		return nil, errors.New("latent_decoder: latents must not be empty")
	}

	r, err := c.engine.runner(graphLatentDecoder)
	if err != nil {
		return nil, err
	}

	in, err := NewTensor(ec.Round(latents.Data), latents.Shape())
	if err != nil {
		return nil, fmt.Errorf("latent_decoder: %w", err)
	}

	outputs, err := r.Run(ctx, map[string]*Tensor{"latent": in})
	if err != nil {
		return nil, fmt.Errorf("latent_decoder: run: %w", err)
	}

	audio, err := requireOutput(graphLatentDecoder, outputs, "audio")
	if err != nil {
		return nil, err
	}

	samples, err := ExtractFloat32(audio)
	if err != nil {
		return nil, fmt.Errorf("latent_decoder: %w", err)
	}

	return ec.Round(samples), nil
}

// latentsFromTensor accepts [1, T, D] or [T, D].
func latentsFromTensor(ec hertz.ExecContext, t *Tensor) (hertz.Latents, error) {
	shape := t.Shape()

	var steps, dim int64
	switch {
	case len(shape) == 3 && shape[0] == 1:
		steps, dim = shape[1], shape[2]
	case len(shape) == 2:
		steps, dim = shape[0], shape[1]
	default:
		return hertz.Latents{}, fmt.Errorf("%w: latent tensor shape %v, want [1, T, D]", hertz.ErrShapeMismatch, shape)
	}

	data, err := ExtractFloat32(t)
	if err != nil {
		return hertz.Latents{}, err
	}

	return hertz.NewLatents(ec.Round(data), int(steps), int(dim))
}
