package hertz

import (
	"context"
	"errors"
	"sync"

	"github.com/example/go-hertz-dev/internal/audio"
)

const fakeHop = audio.ModelSampleRate / StepsPerSecond

// fakeTokenizer maps every 2000-sample chunk to one LatentDim frame filled
// with the chunk's first sample, and decodes each frame back to 2000 copies
// of its first feature.
type fakeTokenizer struct {
	mu      sync.Mutex
	encoded int
	decoded int
	encErr  error
	decErr  error
	lastEC  ExecContext
}

func (f *fakeTokenizer) LatentFromData(_ context.Context, ec ExecContext, samples []float32) (Latents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.encoded++
	f.lastEC = ec

	if f.encErr != nil {
		return Latents{}, f.encErr
	}

	steps := len(samples) / fakeHop
	data := make([]float32, 0, steps*LatentDim)

	for i := range steps {
		v := samples[i*fakeHop]
		for range LatentDim {
			data = append(data, v)
		}
	}

	return NewLatents(data, steps, LatentDim)
}

func (f *fakeTokenizer) DataFromLatent(_ context.Context, ec ExecContext, l Latents) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.decoded++
	f.lastEC = ec

	if f.decErr != nil {
		return nil, f.decErr
	}

	if l.Dim != LatentDim {
		return nil, errors.New("fake tokenizer decodes one channel at a time")
	}

	out := make([]float32, 0, l.Steps*fakeHop)
	for i := range l.Steps {
		v := l.Frame(i)[0]
		for range fakeHop {
			out = append(out, v)
		}
	}

	return out, nil
}

type completionCall struct {
	prompt Latents
	params CompletionParams
}

// fakeGenerator appends MaxSteps frames of value fill.
type fakeGenerator struct {
	mu    sync.Mutex
	calls []completionCall
	fill  float32
	err   error

	// truncate, when set, returns only that many steps.
	truncate int
}

func (g *fakeGenerator) Completion(_ context.Context, _ ExecContext, prompt Latents, params CompletionParams) (Latents, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, completionCall{prompt: prompt.Clone(), params: params})

	if g.err != nil {
		return Latents{}, g.err
	}

	out := prompt.Clone()
	for range params.MaxSteps {
		for range prompt.Dim {
			out.Data = append(out.Data, g.fill)
		}
		out.Steps++
	}

	if g.truncate > 0 {
		return Latents{Data: out.Data[:g.truncate*out.Dim], Steps: g.truncate, Dim: out.Dim}, nil
	}

	return out, nil
}

// memSink records saved waveforms in order.
type memSink struct {
	names []string
	waves []*audio.Waveform
	err   error
}

func (s *memSink) Save(_ context.Context, name string, w *audio.Waveform) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	s.names = append(s.names, name)
	s.waves = append(s.waves, w)

	return w.Len() * w.NumChannels() * 4, nil
}

type memCache struct {
	entries map[string]Latents
	gets    int
	puts    int
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]Latents{}}
}

func (c *memCache) Get(key string) (Latents, bool, error) {
	c.gets++
	if c.getErr != nil {
		return Latents{}, false, c.getErr
	}

	l, ok := c.entries[key]

	return l, ok, nil
}

func (c *memCache) Put(key string, l Latents) error {
	c.puts++
	c.entries[key] = l.Clone()

	return nil
}

func constSamples(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}

	return out
}
