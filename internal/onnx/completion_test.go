package onnx

import (
	"context"
	"errors"
	"testing"

	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/hertz"
)

const (
	fakeHidden = 4
	fakeVocab  = 3
	fakeMix    = 2
)

// fakeModel wires the four hertz graphs. last_hidden[0] carries the number of
// frames the transformer has seen, so with zero temperatures every frame
// equals seen*10 + 1 regardless of the graph path.
type fakeModel struct {
	main, prefill, step, head *fakeRunner
	tokens                    []int64
}

func newFakeModel(t *testing.T, dim int) *fakeModel {
	t.Helper()

	m := &fakeModel{}

	outputs := func(seen int64) map[string]*Tensor {
		hidden := make([]float32, fakeHidden)
		hidden[0] = float32(seen)

		return map[string]*Tensor{
			"last_hidden":  mustTensor(t, hidden, 1, fakeHidden),
			"token_logits": mustTensor(t, []float32{0, 5, 1}, 1, fakeVocab),
		}
	}

	m.main = &fakeRunner{
		name: graphMain,
		fn: func(_ context.Context, in map[string]*Tensor) (map[string]*Tensor, error) {
			shape := in["latents"].Shape()
			if shape[2] != int64(dim) {
				return nil, errors.New("bad feature dim")
			}

			return outputs(shape[1]), nil
		},
	}

	withCache := func(seen int64) map[string]*Tensor {
		out := outputs(seen)
		out["kv_0"] = mustTensor(t, []float32{float32(seen)}, 1)
		out["kv_1"] = mustTensor(t, []float32{float32(seen)}, 1)
		out["offset"] = mustTensor(t, []int64{seen}, 1)

		return out
	}

	m.prefill = &fakeRunner{
		name: graphPrefill,
		fn: func(_ context.Context, in map[string]*Tensor) (map[string]*Tensor, error) {
			return withCache(in["latents"].Shape()[1]), nil
		},
	}

	m.step = &fakeRunner{
		name: graphStep,
		fn: func(_ context.Context, in map[string]*Tensor) (map[string]*Tensor, error) {
			if in["kv_0"] == nil || in["kv_1"] == nil {
				return nil, errors.New("missing kv input")
			}

			if got := in["latent"].Shape(); got[1] != 1 || got[2] != int64(dim) {
				return nil, errors.New("bad latent frame shape")
			}

			offset, err := ExtractInt64(in["offset"])
			if err != nil {
				return nil, err
			}

			return withCache(offset[0] + 1), nil
		},
	}

	m.head = &fakeRunner{
		name: graphHead,
		fn: func(_ context.Context, in map[string]*Tensor) (map[string]*Tensor, error) {
			hidden, _ := ExtractFloat32(in["last_hidden"])
			token, _ := ExtractInt64(in["token"])
			m.tokens = append(m.tokens, token[0])

			means := make([]float32, fakeMix*dim)
			for c := range fakeMix {
				for j := range dim {
					means[c*dim+j] = hidden[0]*10 + float32(c)
				}
			}

			return map[string]*Tensor{
				"mixture_logits":     mustTensor(t, []float32{0, 3}, 1, fakeMix),
				"mixture_means":      mustTensor(t, means, 1, fakeMix, int64(dim)),
				"mixture_log_scales": mustTensor(t, make([]float32, fakeMix*dim), 1, fakeMix, int64(dim)),
			}, nil
		},
	}

	return m
}

func (m *fakeModel) engine(graphs ...*fakeRunner) *Engine {
	return engineWithFakeRunners(graphs...)
}

func greedyParams(steps int, useCache bool) hertz.CompletionParams {
	return hertz.CompletionParams{PromptLen: 2, MaxSteps: steps, UseCache: useCache}
}

func testPrompt(steps, dim int) hertz.Latents {
	l, _ := hertz.NewLatents(make([]float32, steps*dim), steps, dim)
	return l
}

func checkGreedyFrames(t *testing.T, got hertz.Latents, promptSteps, steps int) {
	t.Helper()

	if got.Steps != promptSteps+steps {
		t.Fatalf("steps = %d; want %d", got.Steps, promptSteps+steps)
	}

	for k := range steps {
		want := float32((promptSteps+k)*10 + 1)
		if f := got.Frame(promptSteps + k); f[0] != want || f[len(f)-1] != want {
			t.Fatalf("frame %d = %v; want %v", promptSteps+k, f[0], want)
		}
	}
}

func TestCompletionStatelessGreedy(t *testing.T) {
	m := newFakeModel(t, hertz.LatentDim)
	g, err := NewGenerator(m.engine(m.main, m.head), config.SpeakerSingle)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	got, err := g.Completion(context.Background(), hertz.FullPrecision, testPrompt(3, hertz.LatentDim), greedyParams(4, true))
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}

	checkGreedyFrames(t, got, 3, 4)

	if m.main.calls != 4 || m.head.calls != 4 {
		t.Fatalf("calls main=%d head=%d; want 4 each", m.main.calls, m.head.calls)
	}

	for _, tok := range m.tokens {
		if tok != 1 {
			t.Fatalf("token = %d; want argmax 1", tok)
		}
	}
}

func TestCompletionStatefulMatchesStateless(t *testing.T) {
	m := newFakeModel(t, 2*hertz.LatentDim)
	g, err := NewGenerator(m.engine(m.main, m.prefill, m.step, m.head), config.SpeakerTwo)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	prompt := testPrompt(2, 2*hertz.LatentDim)

	cached, err := g.Completion(context.Background(), hertz.FullPrecision, prompt, greedyParams(5, true))
	if err != nil {
		t.Fatalf("cached Completion: %v", err)
	}

	if m.prefill.calls != 1 || m.step.calls != 4 || m.main.calls != 0 {
		t.Fatalf("calls prefill=%d step=%d main=%d; want 1, 4, 0", m.prefill.calls, m.step.calls, m.main.calls)
	}

	uncached, err := g.Completion(context.Background(), hertz.FullPrecision, prompt, greedyParams(5, false))
	if err != nil {
		t.Fatalf("uncached Completion: %v", err)
	}

	if m.main.calls != 5 {
		t.Fatalf("main calls = %d; want 5", m.main.calls)
	}

	checkGreedyFrames(t, cached, 2, 5)
	checkGreedyFrames(t, uncached, 2, 5)
}

func TestCompletionStatefulOnlyBundle(t *testing.T) {
	m := newFakeModel(t, hertz.LatentDim)
	g, err := NewGenerator(m.engine(m.prefill, m.step, m.head), config.SpeakerPureAudioAblation)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	got, err := g.Completion(context.Background(), hertz.FullPrecision, testPrompt(1, hertz.LatentDim), greedyParams(3, false))
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}

	checkGreedyFrames(t, got, 1, 3)
}

func TestCompletionPromptIsPreserved(t *testing.T) {
	m := newFakeModel(t, hertz.LatentDim)
	g, _ := NewGenerator(m.engine(m.main, m.head), config.SpeakerSingle)

	prompt := testPrompt(2, hertz.LatentDim)
	for i := range prompt.Data {
		prompt.Data[i] = float32(i)
	}

	got, err := g.Completion(context.Background(), hertz.FullPrecision, prompt, greedyParams(1, false))
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}

	for i := range prompt.Data {
		if got.Data[i] != prompt.Data[i] {
			t.Fatalf("prompt value %d changed: %v -> %v", i, prompt.Data[i], got.Data[i])
		}
	}
}

func TestCompletionErrors(t *testing.T) {
	ctx := context.Background()
	m := newFakeModel(t, hertz.LatentDim)
	g, _ := NewGenerator(m.engine(m.main, m.head), config.SpeakerSingle)

	t.Run("empty prompt", func(t *testing.T) {
		if _, err := g.Completion(ctx, hertz.FullPrecision, hertz.Latents{Dim: hertz.LatentDim}, greedyParams(1, false)); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("feature width", func(t *testing.T) {
		_, err := g.Completion(ctx, hertz.FullPrecision, testPrompt(2, 2*hertz.LatentDim), greedyParams(1, false))
		if !errors.Is(err, hertz.ErrShapeMismatch) {
			t.Fatalf("err = %v; want ErrShapeMismatch", err)
		}
	})

	t.Run("zero steps returns prompt", func(t *testing.T) {
		got, err := g.Completion(ctx, hertz.FullPrecision, testPrompt(2, hertz.LatentDim), greedyParams(0, false))
		if err != nil || got.Steps != 2 {
			t.Fatalf("got %v, %v", got.Shape(), err)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := g.Completion(cctx, hertz.FullPrecision, testPrompt(2, hertz.LatentDim), greedyParams(3, false))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v; want context.Canceled", err)
		}
	})

	t.Run("head failure", func(t *testing.T) {
		broken, _ := NewGenerator(engineWithFakeRunners(m.main, failingRunner(graphHead)), config.SpeakerSingle)
		if _, err := broken.Completion(ctx, hertz.FullPrecision, testPrompt(1, hertz.LatentDim), greedyParams(1, false)); err == nil {
			t.Fatal("expected head error to propagate")
		}
	})
}

func TestNewGeneratorRequiresGraphs(t *testing.T) {
	m := newFakeModel(t, hertz.LatentDim)

	tests := []struct {
		name   string
		graphs []*fakeRunner
	}{
		{"no head", []*fakeRunner{m.main}},
		{"no transformer", []*fakeRunner{m.head}},
		{"prefill without step", []*fakeRunner{m.prefill, m.head}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGenerator(engineWithFakeRunners(tt.graphs...), config.SpeakerSingle); !errors.Is(err, ErrGraphMissing) {
				t.Fatalf("err = %v; want ErrGraphMissing", err)
			}
		})
	}
}

func TestNewGeneratorRejectsWrongVariant(t *testing.T) {
	m := newFakeModel(t, hertz.LatentDim)

	e := m.engine(m.main, m.head)
	e.variant = "split"

	if _, err := NewGenerator(e, config.SpeakerSingle); err == nil {
		t.Fatal("expected error for split bundle in single-speaker mode")
	}

	e.variant = "base"
	if _, err := NewGenerator(e, config.SpeakerSingle); err != nil {
		t.Fatalf("matching variant rejected: %v", err)
	}
}

func TestCompletionSeededSamplingIsReproducible(t *testing.T) {
	run := func() hertz.Latents {
		m := newFakeModel(t, hertz.LatentDim)
		g, _ := NewGenerator(m.engine(m.main, m.head), config.SpeakerSingle, WithSeed(42))

		got, err := g.Completion(context.Background(), hertz.FullPrecision, testPrompt(1, hertz.LatentDim), hertz.DefaultCompletionParams(8))
		if err != nil {
			t.Fatalf("Completion: %v", err)
		}

		return got
	}

	a, b := run(), run()
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("value %d differs between seeded runs: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
}
