package onnx

import (
	"context"
	"errors"
	"testing"

	"github.com/example/go-hertz-dev/internal/hertz"
)

const fakeHop = 2000

// fakeCodecEngine encodes every fakeHop samples into one 32-wide frame
// holding the chunk's first sample, and decodes each frame back to fakeHop
// samples.
func fakeCodecEngine(t *testing.T) *Engine {
	t.Helper()

	enc := &fakeRunner{
		name: graphLatentEncoder,
		fn: func(_ context.Context, in map[string]*Tensor) (map[string]*Tensor, error) {
			audio, err := ExtractFloat32(in["audio"])
			if err != nil {
				return nil, err
			}

			steps := len(audio) / fakeHop
			out := make([]float32, steps*hertz.LatentDim)
			for s := range steps {
				for j := range hertz.LatentDim {
					out[s*hertz.LatentDim+j] = audio[s*fakeHop]
				}
			}

			return map[string]*Tensor{"latent": mustTensor(t, out, 1, int64(steps), hertz.LatentDim)}, nil
		},
	}

	dec := &fakeRunner{
		name: graphLatentDecoder,
		fn: func(_ context.Context, in map[string]*Tensor) (map[string]*Tensor, error) {
			shape := in["latent"].Shape()
			latent, _ := ExtractFloat32(in["latent"])

			audio := make([]float32, int(shape[1])*fakeHop)
			for s := range int(shape[1]) {
				for i := range fakeHop {
					audio[s*fakeHop+i] = latent[s*int(shape[2])]
				}
			}

			return map[string]*Tensor{"audio": mustTensor(t, audio, 1, 1, int64(len(audio)))}, nil
		},
	}

	return engineWithFakeRunners(enc, dec)
}

func TestNewCodecRequiresGraphs(t *testing.T) {
	e := engineWithFakeRunners(&fakeRunner{name: graphLatentEncoder})

	if _, err := NewCodec(e); !errors.Is(err, ErrGraphMissing) {
		t.Fatalf("err = %v; want ErrGraphMissing", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec(fakeCodecEngine(t))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(i/fakeHop) * 0.1
	}

	latents, err := codec.LatentFromData(context.Background(), hertz.FullPrecision, samples)
	if err != nil {
		t.Fatalf("LatentFromData: %v", err)
	}

	if latents.Steps != 8 || latents.Dim != hertz.LatentDim {
		t.Fatalf("latents shape = %v; want [1 8 32]", latents.Shape())
	}

	audio, err := codec.DataFromLatent(context.Background(), hertz.FullPrecision, latents)
	if err != nil {
		t.Fatalf("DataFromLatent: %v", err)
	}

	if len(audio) != len(samples) {
		t.Fatalf("decoded %d samples; want %d", len(audio), len(samples))
	}

	for i := range audio {
		if audio[i] != samples[i] {
			t.Fatalf("sample %d = %v; want %v", i, audio[i], samples[i])
		}
	}
}

func TestCodecBF16RoundsBoundary(t *testing.T) {
	codec, _ := NewCodec(fakeCodecEngine(t))

	samples := make([]float32, fakeHop)
	for i := range samples {
		samples[i] = 0.1234567
	}

	ec := hertz.ExecContext{Precision: hertz.PrecisionBF16}

	latents, err := codec.LatentFromData(context.Background(), ec, samples)
	if err != nil {
		t.Fatalf("LatentFromData: %v", err)
	}

	if got, want := latents.Data[0], hertz.RoundBF16(0.1234567); got != want {
		t.Fatalf("latent = %v; want bf16 value %v", got, want)
	}
}

func TestCodecErrors(t *testing.T) {
	codec, _ := NewCodec(fakeCodecEngine(t))
	ctx := context.Background()

	if _, err := codec.LatentFromData(ctx, hertz.FullPrecision, nil); err == nil {
		t.Error("expected error for empty audio")
	}

	if _, err := codec.DataFromLatent(ctx, hertz.FullPrecision, hertz.Latents{Dim: hertz.LatentDim}); err == nil {
		t.Error("expected error for empty latents")
	}

	broken, _ := NewCodec(engineWithFakeRunners(failingRunner(graphLatentEncoder), failingRunner(graphLatentDecoder)))
	if _, err := broken.LatentFromData(ctx, hertz.FullPrecision, []float32{0}); err == nil {
		t.Error("expected runner error to propagate")
	}

	noOutput := &fakeRunner{
		name: graphLatentEncoder,
		fn: func(context.Context, map[string]*Tensor) (map[string]*Tensor, error) {
			return map[string]*Tensor{}, nil
		},
	}
	missing, _ := NewCodec(engineWithFakeRunners(noOutput, failingRunner(graphLatentDecoder)))
	if _, err := missing.LatentFromData(ctx, hertz.FullPrecision, []float32{0}); err == nil {
		t.Error("expected error for missing latent output")
	}
}

func TestLatentsFromTensorShapes(t *testing.T) {
	flat := mustTensor(t, make([]float32, 64), 2, 32)

	l, err := latentsFromTensor(hertz.FullPrecision, flat)
	if err != nil || l.Steps != 2 || l.Dim != 32 {
		t.Fatalf("2D tensor: %+v, %v", l.Shape(), err)
	}

	batched := mustTensor(t, make([]float32, 64), 2, 1, 32)
	if _, err := latentsFromTensor(hertz.FullPrecision, batched); !errors.Is(err, hertz.ErrShapeMismatch) {
		t.Fatalf("batch 2: err = %v; want ErrShapeMismatch", err)
	}
}
