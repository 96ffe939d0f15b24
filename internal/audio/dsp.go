package audio

import (
	"fmt"
	"math"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
)

// Peak returns the largest absolute sample value across all channels.
func Peak(w *Waveform) float32 {
	var peak float32
	for _, ch := range w.Channels {
		for _, s := range ch {
			if a := float32(math.Abs(float64(s))); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// PreventClipping divides every sample by the peak when the peak exceeds
// 1.0. Quieter signals are returned untouched, so applying it twice is the
// same as applying it once.
func PreventClipping(w *Waveform) *Waveform {
	peak := Peak(w)
	if peak <= 1 {
		return w
	}
	out := w.Clone()
	for _, ch := range out.Channels {
		for i := range ch {
			ch[i] /= peak
		}
	}
	return out
}

// MixToMono averages all channels into one.
func MixToMono(w *Waveform) *Waveform {
	if w.NumChannels() <= 1 {
		return w
	}
	n := w.Len()
	mono := make([]float32, n)
	scale := 1 / float64(w.NumChannels())
	for i := range n {
		var sum float64
		for _, ch := range w.Channels {
			sum += float64(ch[i])
		}
		mono[i] = float32(sum * scale)
	}
	return NewWaveform(w.SampleRate, mono)
}

// ToStereo duplicates a mono channel to both sides. Buffers with more than
// two channels keep the first two.
func ToStereo(w *Waveform) *Waveform {
	switch w.NumChannels() {
	case 0:
		return NewWaveform(w.SampleRate, nil, nil)
	case 1:
		dup := append([]float32(nil), w.Channels[0]...)
		return NewWaveform(w.SampleRate, w.Channels[0], dup)
	case 2:
		return w
	default:
		return NewWaveform(w.SampleRate, w.Channels[0], w.Channels[1])
	}
}

// Truncate limits every channel to at most maxSamples.
func Truncate(w *Waveform, maxSamples int) *Waveform {
	if w.Len() <= maxSamples {
		return w
	}
	out := &Waveform{SampleRate: w.SampleRate, Channels: make([][]float32, len(w.Channels))}
	for i, ch := range w.Channels {
		out.Channels[i] = ch[:maxSamples]
	}
	return out
}

// DropHead removes the first n samples of every channel. An offset past the
// end leaves empty channels.
func DropHead(w *Waveform, n int) *Waveform {
	n = max(n, 0)
	out := &Waveform{SampleRate: w.SampleRate, Channels: make([][]float32, len(w.Channels))}
	for i, ch := range w.Channels {
		out.Channels[i] = ch[min(n, len(ch)):]
	}
	return out
}

// ResampledLength is the number of output samples for n input samples,
// ceil(n * toRate / fromRate).
func ResampledLength(n, fromRate, toRate int) int {
	if n <= 0 || fromRate <= 0 {
		return 0
	}
	return int((int64(n)*int64(toRate) + int64(fromRate) - 1) / int64(fromRate))
}

// Resample converts samples between rates with a band-limited polyphase
// filter and fits the result to exactly ResampledLength samples. The
// filter's group delay is removed and its tail flushed with zeros, so output
// sample j lines up with input time j*fromRate/toRate.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, fmt.Errorf("resampler %d -> %d: %w", fromRate, toRate, err)
	}

	up, down := r.Ratio()
	taps := r.TapsPerPhase()
	delay := groupDelay(taps, up, down)

	// Enough trailing zeros to push delay more outputs past the last input.
	pad := taps + (down+up-1)/up + 1

	in64 := make([]float64, len(samples)+pad)
	for i, v := range samples {
		in64[i] = float64(v)
	}
	out64 := r.Process(in64)

	want := ResampledLength(len(samples), fromRate, toRate)
	out := make([]float32, want)
	for i := range min(want, max(len(out64)-delay, 0)) {
		out[i] = float32(out64[i+delay])
	}
	return out, nil
}

// groupDelay is the latency, in output samples, of a linear-phase prototype
// of taps*up coefficients decimated by down.
func groupDelay(taps, up, down int) int {
	if up <= 0 || down <= 0 {
		return 0
	}
	return int(math.Round(float64(taps*up-1) / (2 * float64(down))))
}

// ResampleWaveform resamples every channel to toRate.
func ResampleWaveform(w *Waveform, toRate int) (*Waveform, error) {
	if w.SampleRate == toRate {
		return w, nil
	}
	out := &Waveform{SampleRate: toRate, Channels: make([][]float32, len(w.Channels))}
	for i, ch := range w.Channels {
		rs, err := Resample(ch, w.SampleRate, toRate)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		out.Channels[i] = rs
	}
	return out, nil
}
