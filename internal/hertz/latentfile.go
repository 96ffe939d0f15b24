package hertz

import (
	"fmt"
	"strconv"

	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/safetensors"
)

const latentTensorName = "latents"

// LatentFile is the metadata stored next to encoded prompt latents.
// HasPromptSeconds reports whether the file recorded PromptSeconds, so an
// explicit 0 is distinguishable from an absent value.
type LatentFile struct {
	Mode             config.SpeakerMode
	PromptSeconds    float64
	HasPromptSeconds bool
	Precision        Precision
}

// SaveLatents writes latents as a [1, T, D] safetensors tensor. bf16
// precision stores BF16 elements.
func SaveLatents(path string, latents Latents, meta LatentFile) error {
	dtype := safetensors.DTypeF32
	if meta.Precision == PrecisionBF16 {
		dtype = safetensors.DTypeBF16
	}

	return safetensors.WriteFile(path, []safetensors.Tensor{{
		Name:  latentTensorName,
		Shape: latents.Shape(),
		Data:  latents.Data,
	}}, safetensors.Options{
		DType: dtype,
		Metadata: map[string]string{
			"speaker_mode":   meta.Mode.String(),
			"prompt_seconds": strconv.FormatFloat(meta.PromptSeconds, 'f', -1, 64),
			"precision":      meta.Precision.String(),
			"steps_per_sec":  strconv.Itoa(StepsPerSecond),
		},
	})
}

// LoadLatents reads a file written by SaveLatents. Files without metadata
// load as single-speaker, full precision. A file holding exactly one tensor
// under another name is read as the latents.
func LoadLatents(path string) (Latents, LatentFile, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return Latents{}, LatentFile{}, err
	}
	defer store.Close()

	name := latentTensorName
	if names := store.Names(); !store.Has(name) && len(names) == 1 {
		name = names[0]
	}

	t, err := store.Tensor(name)
	if err != nil {
		return Latents{}, LatentFile{}, err
	}

	var steps, dim int64
	switch len(t.Shape) {
	case 2:
		steps, dim = t.Shape[0], t.Shape[1]
	case 3:
		if t.Shape[0] != 1 {
			return Latents{}, LatentFile{}, fmt.Errorf("%w: latents batch %d, want 1", ErrShapeMismatch, t.Shape[0])
		}

		steps, dim = t.Shape[1], t.Shape[2]
	default:
		return Latents{}, LatentFile{}, fmt.Errorf("%w: latents shape %v, want [1, T, D]", ErrShapeMismatch, t.Shape)
	}

	latents, err := NewLatents(t.Data, int(steps), int(dim))
	if err != nil {
		return Latents{}, LatentFile{}, err
	}

	var meta LatentFile

	md := store.Metadata()
	if raw, ok := md["speaker_mode"]; ok {
		if meta.Mode, err = config.ParseSpeakerMode(raw); err != nil {
			return Latents{}, LatentFile{}, fmt.Errorf("latents metadata: %w", err)
		}
	}

	if raw, ok := md["prompt_seconds"]; ok {
		if meta.PromptSeconds, err = strconv.ParseFloat(raw, 64); err != nil {
			return Latents{}, LatentFile{}, fmt.Errorf("latents metadata: prompt_seconds: %w", err)
		}

		meta.HasPromptSeconds = true
	}

	if raw, ok := md["precision"]; ok {
		if meta.Precision, err = ParsePrecision(raw); err != nil {
			return Latents{}, LatentFile{}, fmt.Errorf("latents metadata: %w", err)
		}
	}

	return latents, meta, nil
}
