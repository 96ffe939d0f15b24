package hertz

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/config"
)

func sine(n, rate int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}

	return out
}

func TestPreprocess_ChannelsMatchMode(t *testing.T) {
	mono := audio.NewWaveform(16000, sine(1600, 16000, 220, 0.5))
	stereo := audio.NewWaveform(16000, sine(1600, 16000, 220, 0.5), sine(1600, 16000, 330, 0.5))
	quad := audio.NewWaveform(16000, constSamples(100, 1), constSamples(100, 0), constSamples(100, 0), constSamples(100, 0))

	modes := []config.SpeakerMode{config.SpeakerSingle, config.SpeakerTwo, config.SpeakerPureAudioAblation}
	inputs := map[string]*audio.Waveform{"mono": mono, "stereo": stereo, "quad": quad}

	for _, mode := range modes {
		for name, in := range inputs {
			got, err := Preprocess(in, mode)
			if err != nil {
				t.Fatalf("%s/%s: %v", mode, name, err)
			}

			if got.NumChannels() != mode.Channels() {
				t.Errorf("%s/%s: channels = %d; want %d", mode, name, got.NumChannels(), mode.Channels())
			}

			if got.SampleRate != audio.ModelSampleRate {
				t.Errorf("%s/%s: rate = %d; want %d", mode, name, got.SampleRate, audio.ModelSampleRate)
			}
		}
	}
}

func TestPreprocess_MonoDuplicatedForTwoSpeaker(t *testing.T) {
	in := audio.NewWaveform(16000, []float32{0.1, 0.2, 0.3})

	got, err := Preprocess(in, config.SpeakerTwo)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	for i := range got.Channels[0] {
		if got.Channels[0][i] != got.Channels[1][i] {
			t.Fatalf("channels differ at %d: %v vs %v", i, got.Channels[0], got.Channels[1])
		}
	}
}

func TestPreprocess_StereoAveragedForSingle(t *testing.T) {
	in := audio.NewWaveform(16000, []float32{1, 0}, []float32{0, 1})

	got, err := Preprocess(in, config.SpeakerSingle)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	if got.Channels[0][0] != 0.5 || got.Channels[0][1] != 0.5 {
		t.Errorf("mono = %v; want [0.5 0.5]", got.Channels[0])
	}
}

func TestPreprocess_ResamplesTo16k(t *testing.T) {
	const rate = 44100

	in := audio.NewWaveform(rate, sine(rate*10, rate, 440, 0.3))

	got, err := Preprocess(in, config.SpeakerSingle)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	if got.Len() != 160000 {
		t.Errorf("Len = %d; want 160000", got.Len())
	}

	if got.Shape()[0] != 1 {
		t.Errorf("batch dim = %d; want 1", got.Shape()[0])
	}
}

func TestPreprocess_TruncatesToFiveMinutes(t *testing.T) {
	in := audio.NewWaveform(16000, make([]float32, MaxPromptSamples+16000))

	got, err := Preprocess(in, config.SpeakerSingle)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	if got.Len() != MaxPromptSamples {
		t.Errorf("Len = %d; want %d", got.Len(), MaxPromptSamples)
	}
}

func TestPreprocess_RejectsEmptyInput(t *testing.T) {
	if _, err := Preprocess(audio.NewWaveform(16000), config.SpeakerSingle); err == nil {
		t.Error("expected error for zero channels")
	}

	if _, err := Preprocess(audio.NewWaveform(0, []float32{0}), config.SpeakerSingle); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestLoadPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.wav")

	if _, err := audio.WriteWAVFile(path, audio.NewWaveform(48000, sine(48000, 48000, 100, 0.4)), audio.FormatPCM16); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	got, err := LoadPrompt(path, config.SpeakerTwo)
	if err != nil {
		t.Fatalf("LoadPrompt: %v", err)
	}

	if got.NumChannels() != 2 || got.Len() != 16000 || got.SampleRate != 16000 {
		t.Errorf("shape = %v @ %d Hz; want [1 2 16000] @ 16000 Hz", got.Shape(), got.SampleRate)
	}

	if _, err := LoadPrompt(filepath.Join(t.TempDir(), "missing.wav"), config.SpeakerSingle); err == nil {
		t.Error("expected error for missing prompt")
	}
}

func TestPreprocess_EmptyAndSilentPassThrough(t *testing.T) {
	tests := []struct {
		name    string
		in      func() *audio.Waveform
		wantLen int
	}{
		{"zero-length mono 44.1k", func() *audio.Waveform { return audio.NewWaveform(44100, []float32{}) }, 0},
		{"silent stereo 22.05k", func() *audio.Waveform {
			return audio.NewWaveform(22050, make([]float32, 22050), make([]float32, 22050))
		}, audio.ModelSampleRate},
	}

	for _, mode := range []config.SpeakerMode{config.SpeakerSingle, config.SpeakerTwo} {
		for _, tt := range tests {
			t.Run(mode.String()+"/"+tt.name, func(t *testing.T) {
				got, err := Preprocess(tt.in(), mode)
				if err != nil {
					t.Fatalf("Preprocess: %v", err)
				}

				shape := got.Shape()
				if shape[0] != 1 || shape[1] != int64(mode.Channels()) || shape[2] != int64(tt.wantLen) {
					t.Errorf("shape = %v; want [1 %d %d]", shape, mode.Channels(), tt.wantLen)
				}

				if got.SampleRate != audio.ModelSampleRate {
					t.Errorf("rate = %d; want %d", got.SampleRate, audio.ModelSampleRate)
				}

				if p := audio.Peak(got); p != 0 {
					t.Errorf("peak = %v; want 0", p)
				}
			})
		}
	}
}
