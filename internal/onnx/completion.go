package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/hertz"
)

// Graph names of a hertz model bundle.
const (
	graphMain    = "hertz_main"
	graphPrefill = "hertz_prefill"
	graphStep    = "hertz_step"
	graphHead    = "hertz_head"
)

// Generator runs the hertz transformer graphs and implements
// hertz.Generator.
type Generator struct {
	engine  *Engine
	mode    config.SpeakerMode
	dim     int
	sampler *sampler
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSeed makes sampling reproducible. Seed 0 keeps a random seed.
func WithSeed(seed uint64) GeneratorOption {
	return func(g *Generator) {
		g.sampler = newSampler(seed)
	}
}

// NewGenerator binds e to the model variant for mode. The bundle must carry
// hertz_head plus either hertz_main or the hertz_prefill/hertz_step pair.
func NewGenerator(e *Engine, mode config.SpeakerMode, opts ...GeneratorOption) (*Generator, error) {
	if err := CheckGeneratorGraphs(e.HasGraph); err != nil {
		return nil, err
	}

	if v := e.Variant(); v != "" && v != mode.Variant() {
		return nil, fmt.Errorf("generator bundle is the %q variant but %s needs %q", v, mode, mode.Variant())
	}

	g := &Generator{
		engine:  e,
		mode:    mode,
		dim:     hertz.LatentDim * mode.Channels(),
		sampler: newSampler(0),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// CheckGeneratorGraphs reports whether a bundle whose graphs satisfy has
// can drive a Generator.
func CheckGeneratorGraphs(has func(graph string) bool) error {
	if !has(graphHead) {
		return fmt.Errorf("generator: %s: %w", graphHead, ErrGraphMissing)
	}

	stateful := has(graphPrefill) && has(graphStep)
	if !stateful && !has(graphMain) {
		return fmt.Errorf("generator: %s: %w", graphMain, ErrGraphMissing)
	}

	return nil
}

// Completion extends prompt by params.MaxSteps latent frames. The KV-cache
// path is used when params.UseCache is set and the bundle exports it;
// both paths sample from the same distribution.
func (g *Generator) Completion(ctx context.Context, ec hertz.ExecContext, prompt hertz.Latents, params hertz.CompletionParams) (hertz.Latents, error) {
	if prompt.Steps == 0 {
		return hertz.Latents{}, errors.New("completion: prompt must not be empty")
	}

	if prompt.Dim != g.dim {
		return hertz.Latents{}, fmt.Errorf(
			"%w: %s model expects %d latent features, prompt has %d",
			hertz.ErrShapeMismatch, g.mode, g.dim, prompt.Dim,
		)
	}

	if params.MaxSteps <= 0 {
		return prompt.Clone(), nil
	}

	stateful := g.engine.HasGraph(graphPrefill) && g.engine.HasGraph(graphStep)
	if stateful && (params.UseCache || !g.engine.HasGraph(graphMain)) {
		return g.completeStateful(ctx, ec, prompt, params)
	}

	return g.completeStateless(ctx, ec, prompt, params)
}

// completeStateless re-runs hertz_main over the whole growing sequence.
func (g *Generator) completeStateless(ctx context.Context, ec hertz.ExecContext, prompt hertz.Latents, params hertz.CompletionParams) (hertz.Latents, error) {
	sequence, err := NewTensor(ec.Round(prompt.Data), prompt.Shape())
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("completion: %w", err)
	}

	for step := range params.MaxSteps {
		if err := ctx.Err(); err != nil {
			return hertz.Latents{}, fmt.Errorf("completion step %d: %w", step, err)
		}

		hidden, logits, err := g.mainStep(ctx, sequence)
		if err != nil {
			return hertz.Latents{}, fmt.Errorf("completion step %d: %w", step, err)
		}

		frame, err := g.sampleFrame(ctx, ec, hidden, logits, params)
		if err != nil {
			return hertz.Latents{}, fmt.Errorf("completion step %d: %w", step, err)
		}

		sequence, err = ConcatTensorsDim1(sequence, frame)
		if err != nil {
			return hertz.Latents{}, fmt.Errorf("completion step %d append: %w", step, err)
		}
	}

	slog.Debug("completion finished", "path", "stateless", "steps", params.MaxSteps)

	return g.toLatents(sequence)
}

// completeStateful runs hertz_prefill once and then one hertz_step per
// generated frame, carrying the KV-cache between calls.
func (g *Generator) completeStateful(ctx context.Context, ec hertz.ExecContext, prompt hertz.Latents, params hertz.CompletionParams) (hertz.Latents, error) {
	in, err := NewTensor(ec.Round(prompt.Data), prompt.Shape())
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("completion: %w", err)
	}

	state, err := g.prefill(ctx, in)
	if err != nil {
		return hertz.Latents{}, fmt.Errorf("completion: prefill: %w", err)
	}

	out := append(make([]float32, 0, (prompt.Steps+params.MaxSteps)*g.dim), in.data.([]float32)...)

	for step := range params.MaxSteps {
		if err := ctx.Err(); err != nil {
			return hertz.Latents{}, fmt.Errorf("completion step %d: %w", step, err)
		}

		frame, err := g.sampleFrame(ctx, ec, state.lastHidden, state.logits, params)
		if err != nil {
			return hertz.Latents{}, fmt.Errorf("completion step %d: %w", step, err)
		}

		out = append(out, frame.data.([]float32)...)

		if step == params.MaxSteps-1 {
			break
		}

		state, err = g.step(ctx, frame, state)
		if err != nil {
			return hertz.Latents{}, fmt.Errorf("completion step %d: %w", step, err)
		}
	}

	slog.Debug("completion finished", "path", "stateful", "steps", params.MaxSteps)

	return hertz.NewLatents(out, prompt.Steps+params.MaxSteps, g.dim)
}

// kvState is the transformer cache returned by hertz_prefill and hertz_step.
// kv[i] is passed back as kv_i; offset counts the processed frames.
type kvState struct {
	kv         []*Tensor
	offset     int64
	lastHidden *Tensor
	logits     *Tensor
}

func (g *Generator) mainStep(ctx context.Context, sequence *Tensor) (lastHidden, logits *Tensor, err error) {
	r, err := g.engine.runner(graphMain)
	if err != nil {
		return nil, nil, err
	}

	outputs, err := r.Run(ctx, map[string]*Tensor{"latents": sequence})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: run: %w", graphMain, err)
	}

	if lastHidden, err = requireOutput(graphMain, outputs, "last_hidden"); err != nil {
		return nil, nil, err
	}

	if logits, err = requireOutput(graphMain, outputs, "token_logits"); err != nil {
		return nil, nil, err
	}

	return lastHidden, logits, nil
}

func (g *Generator) prefill(ctx context.Context, latents *Tensor) (*kvState, error) {
	r, err := g.engine.runner(graphPrefill)
	if err != nil {
		return nil, err
	}

	outputs, err := r.Run(ctx, map[string]*Tensor{"latents": latents})
	if err != nil {
		return nil, fmt.Errorf("%s: run: %w", graphPrefill, err)
	}

	return unpackKVState(graphPrefill, outputs)
}

func (g *Generator) step(ctx context.Context, frame *Tensor, state *kvState) (*kvState, error) {
	r, err := g.engine.runner(graphStep)
	if err != nil {
		return nil, err
	}

	offset, err := NewTensor([]int64{state.offset}, []int64{1})
	if err != nil {
		return nil, err
	}

	inputs := map[string]*Tensor{
		"latent": frame,
		"offset": offset,
	}
	for i, kv := range state.kv {
		inputs[fmt.Sprintf("kv_%d", i)] = kv
	}

	outputs, err := r.Run(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("%s: run: %w", graphStep, err)
	}

	next, err := unpackKVState(graphStep, outputs)
	if err != nil {
		return nil, err
	}

	if len(next.kv) != len(state.kv) {
		return nil, fmt.Errorf("%s: returned %d cache layers, want %d", graphStep, len(next.kv), len(state.kv))
	}

	return next, nil
}

func unpackKVState(graph string, outputs map[string]*Tensor) (*kvState, error) {
	state := &kvState{}

	// kv_0, kv_1, ... until a key is missing.
	for i := 0; ; i++ {
		kv, ok := outputs[fmt.Sprintf("kv_%d", i)]
		if !ok {
			break
		}

		state.kv = append(state.kv, kv)
	}

	if len(state.kv) == 0 {
		return nil, fmt.Errorf("%s: no kv_N outputs in result", graph)
	}

	offsetTensor, err := requireOutput(graph, outputs, "offset")
	if err != nil {
		return nil, err
	}

	offset, err := ExtractInt64(offsetTensor)
	if err != nil {
		return nil, fmt.Errorf("%s: extract offset: %w", graph, err)
	}

	if len(offset) == 0 {
		return nil, fmt.Errorf("%s: offset tensor is empty", graph)
	}

	state.offset = offset[0]

	if state.lastHidden, err = requireOutput(graph, outputs, "last_hidden"); err != nil {
		return nil, err
	}

	if state.logits, err = requireOutput(graph, outputs, "token_logits"); err != nil {
		return nil, err
	}

	return state, nil
}

// sampleFrame draws a token from the transformer logits, runs hertz_head for
// that token and samples one [1, 1, D] latent frame from the mixture.
func (g *Generator) sampleFrame(ctx context.Context, ec hertz.ExecContext, lastHidden, logits *Tensor, params hertz.CompletionParams) (*Tensor, error) {
	logitData, err := ExtractFloat32(logits)
	if err != nil {
		return nil, fmt.Errorf("token logits: %w", err)
	}

	token := g.sampler.categorical(logitData, params.TokenTemp)
	if token < 0 {
		return nil, errors.New("token logits are empty")
	}

	tokenTensor, err := NewTensor([]int64{int64(token)}, []int64{1, 1})
	if err != nil {
		return nil, err
	}

	r, err := g.engine.runner(graphHead)
	if err != nil {
		return nil, err
	}

	outputs, err := r.Run(ctx, map[string]*Tensor{
		"last_hidden": lastHidden,
		"token":       tokenTensor,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: run: %w", graphHead, err)
	}

	var mix [3][]float32
	for i, name := range []string{"mixture_logits", "mixture_means", "mixture_log_scales"} {
		t, err := requireOutput(graphHead, outputs, name)
		if err != nil {
			return nil, err
		}

		if mix[i], err = ExtractFloat32(t); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", graphHead, name, err)
		}
	}

	frame, err := g.sampler.gaussianMixture(mix[0], mix[1], mix[2], g.dim, params.CategoricalTemp, params.GaussianTemp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", graphHead, err)
	}

	return NewTensor(ec.Round(frame), []int64{1, 1, int64(g.dim)})
}

func (g *Generator) toLatents(sequence *Tensor) (hertz.Latents, error) {
	shape := sequence.Shape()

	data, err := ExtractFloat32(sequence)
	if err != nil {
		return hertz.Latents{}, err
	}

	return hertz.NewLatents(data, int(shape[1]), int(shape[2]))
}
