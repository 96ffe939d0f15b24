// Package hertz orchestrates prompt preprocessing, latent encoding, latent
// completion and decoding for the hertz-dev audio model. The neural network
// and the latent tokenizer are reached through the Tokenizer and Generator
// interfaces.
package hertz

import (
	"context"
	"errors"
)

const (
	// LatentDim is the feature width of one channel's latents.
	LatentDim = 32

	// StepsPerSecond is the latent frame rate of the tokenizer.
	StepsPerSecond = 8

	// MaxPromptSamples bounds the preprocessed prompt to five minutes.
	MaxPromptSamples = 16000 * 60 * 5
)

var (
	// ErrShapeMismatch reports tensors whose dimensions cannot be combined.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrShortCompletion reports a completed sequence shorter than its prompt.
	ErrShortCompletion = errors.New("completion shorter than prompt")
)

// Tokenizer converts mono audio at 16 kHz to latents and back.
type Tokenizer interface {
	LatentFromData(ctx context.Context, ec ExecContext, samples []float32) (Latents, error)
	DataFromLatent(ctx context.Context, ec ExecContext, latents Latents) ([]float32, error)
}

// Generator extends an encoded prompt autoregressively. The returned
// sequence starts with the prompt.
type Generator interface {
	Completion(ctx context.Context, ec ExecContext, prompt Latents, params CompletionParams) (Latents, error)
}

// CompletionParams controls one completion call.
type CompletionParams struct {
	// PromptLen is the prompt length in latent steps. It only drives the
	// trim offset of the decoded output.
	PromptLen int

	TokenTemp       float64
	CategoricalTemp float64
	GaussianTemp    float64

	// UseCache selects the incremental KV-cache path when available.
	UseCache bool

	// MaxSteps is the number of latent steps generated after the prompt.
	MaxSteps int
}

// DefaultCompletionParams returns the sampling settings the model was
// published with: token temperature 0.8, categorical 0.5, gaussian 0.1.
func DefaultCompletionParams(promptLen int) CompletionParams {
	return CompletionParams{
		PromptLen:       promptLen,
		TokenTemp:       0.8,
		CategoricalTemp: 0.5,
		GaussianTemp:    0.1,
		UseCache:        true,
		MaxSteps:        160,
	}
}

// PromptLenFromSeconds converts a prompt duration to latent steps.
func PromptLenFromSeconds(seconds float64) int {
	if seconds <= 0 {
		return 0
	}

	return int(seconds*StepsPerSecond + 0.5)
}
