package hertz

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/config"
)

// LatentCache stores encoded prompts by content key.
type LatentCache interface {
	Get(key string) (Latents, bool, error)
	Put(key string, latents Latents) error
}

// Encoder turns a preprocessed prompt into latents.
type Encoder struct {
	Tokenizer Tokenizer
	Mode      config.SpeakerMode
	Exec      ExecContext

	// Cache is optional.
	Cache LatentCache
}

// Encode tokenizes w. In two-speaker mode each channel is encoded on its
// own and the results are concatenated along the feature axis.
func (e *Encoder) Encode(ctx context.Context, w *audio.Waveform) (Latents, error) {
	if w.SampleRate != audio.ModelSampleRate {
		return Latents{}, fmt.Errorf("encode: prompt is %d Hz, want %d", w.SampleRate, audio.ModelSampleRate)
	}

	if w.NumChannels() != e.Mode.Channels() {
		return Latents{}, fmt.Errorf("%w: %s mode needs %d channels, prompt has %d",
			ErrShapeMismatch, e.Mode, e.Mode.Channels(), w.NumChannels())
	}

	var key string
	if e.Cache != nil {
		key = CacheKey(w, e.Mode, e.Exec)

		cached, ok, err := e.Cache.Get(key)
		if err != nil {
			slog.Warn("prompt cache read failed", "error", err)
		} else if ok {
			slog.Info("prompt loaded from cache", "shape", cached.Shape())
			return cached, nil
		}
	}

	slog.Info("encoding prompt")

	latents, err := e.encode(ctx, w)
	if err != nil {
		return Latents{}, err
	}

	slog.Info("prompt encoded", "shape", latents.Shape())

	if e.Cache != nil {
		if err := e.Cache.Put(key, latents); err != nil {
			slog.Warn("prompt cache write failed", "error", err)
		}
	}

	return latents, nil
}

func (e *Encoder) encode(ctx context.Context, w *audio.Waveform) (Latents, error) {
	first, err := e.Tokenizer.LatentFromData(ctx, e.Exec, w.Channels[0])
	if err != nil {
		return Latents{}, fmt.Errorf("encode channel 1: %w", err)
	}

	if !e.Mode.Split() {
		return first, nil
	}

	second, err := e.Tokenizer.LatentFromData(ctx, e.Exec, w.Channels[1])
	if err != nil {
		return Latents{}, fmt.Errorf("encode channel 2: %w", err)
	}

	out, err := ConcatFeatures(first, second)
	if err != nil {
		return Latents{}, fmt.Errorf("encode: %w", err)
	}

	return out, nil
}

// CacheKey hashes the prompt samples together with everything that changes
// the encoded result.
func CacheKey(w *audio.Waveform, mode config.SpeakerMode, ec ExecContext) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|", mode, ec.Precision, w.SampleRate, w.NumChannels())

	buf := make([]byte, 4)
	for _, ch := range w.Channels {
		binary.LittleEndian.PutUint32(buf, uint32(len(ch)))
		h.Write(buf)

		for _, s := range ch {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(s))
			h.Write(buf)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
