package hertz

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/config"
)

// LoadPrompt reads a WAV file and preprocesses it for mode.
func LoadPrompt(path string, mode config.SpeakerMode) (*audio.Waveform, error) {
	slog.Info("loading and preprocessing audio", "path", path, "mode", mode.String())

	w, err := audio.ReadWAVFile(path)
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}

	slog.Debug("loaded audio", "shape", w.Shape(), "sample_rate", w.SampleRate)

	return Preprocess(w, mode)
}

// Preprocess matches the channel count to mode, resamples to 16 kHz and
// truncates to MaxPromptSamples. The result has shape [1, C, N].
func Preprocess(w *audio.Waveform, mode config.SpeakerMode) (*audio.Waveform, error) {
	if w.NumChannels() == 0 {
		return nil, errors.New("preprocess: audio has no channels")
	}

	if w.SampleRate < 1 {
		return nil, fmt.Errorf("preprocess: invalid sample rate %d", w.SampleRate)
	}

	switch {
	case mode.Channels() == 2 && w.NumChannels() != 2:
		w = audio.ToStereo(w)
		slog.Debug("converted to stereo", "shape", w.Shape())
	case mode.Channels() == 1 && w.NumChannels() != 1:
		w = audio.MixToMono(w)
		slog.Debug("converted to mono", "shape", w.Shape())
	}

	if w.SampleRate != audio.ModelSampleRate {
		slog.Debug("resampling", "from_hz", w.SampleRate, "to_hz", audio.ModelSampleRate)

		resampled, err := audio.ResampleWaveform(w, audio.ModelSampleRate)
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}

		w = resampled
	}

	if w.Len() > MaxPromptSamples {
		slog.Debug("clipping audio to 5 minutes", "samples", w.Len())
		w = audio.Truncate(w, MaxPromptSamples)
	}

	slog.Info("audio preprocessing complete", "shape", w.Shape(), "duration", w.Duration())

	return w, nil
}
