// Package audio holds the planar waveform buffer used across the pipeline
// together with WAV I/O, resampling and the small amount of DSP the
// completion pipeline needs.
package audio

import (
	"time"
)

// ModelSampleRate is the rate the latent tokenizer operates at.
const ModelSampleRate = 16000

// Waveform is a planar multi-channel sample buffer. Its logical tensor shape
// is [1, channels, samples]: the leading batch dimension is always 1.
type Waveform struct {
	Channels   [][]float32
	SampleRate int
}

// NewWaveform builds a waveform from per-channel sample slices. The slices
// are used as-is.
func NewWaveform(sampleRate int, channels ...[]float32) *Waveform {
	return &Waveform{Channels: channels, SampleRate: sampleRate}
}

// NumChannels returns the channel count.
func (w *Waveform) NumChannels() int {
	return len(w.Channels)
}

// Len returns the number of samples per channel.
func (w *Waveform) Len() int {
	if len(w.Channels) == 0 {
		return 0
	}
	n := len(w.Channels[0])
	for _, ch := range w.Channels[1:] {
		n = min(n, len(ch))
	}
	return n
}

// Shape returns the logical tensor shape [1, C, N].
func (w *Waveform) Shape() []int64 {
	return []int64{1, int64(w.NumChannels()), int64(w.Len())}
}

func (w *Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(w.Len()) * time.Second / time.Duration(w.SampleRate)
}

// Clone returns a deep copy.
func (w *Waveform) Clone() *Waveform {
	out := &Waveform{SampleRate: w.SampleRate, Channels: make([][]float32, len(w.Channels))}
	for i, ch := range w.Channels {
		out.Channels[i] = append([]float32(nil), ch...)
	}
	return out
}

// Interleaved returns the samples frame by frame (L R L R ...).
func (w *Waveform) Interleaved() []float32 {
	nch := w.NumChannels()
	n := w.Len()
	out := make([]float32, n*nch)
	for c, ch := range w.Channels {
		for i := range n {
			out[i*nch+c] = ch[i]
		}
	}
	return out
}

// Deinterleave splits frame-ordered samples into numChannels planar slices.
// Trailing samples that do not fill a whole frame are dropped.
func Deinterleave(data []float32, numChannels int) [][]float32 {
	if numChannels < 1 {
		return nil
	}
	frames := len(data) / numChannels
	out := make([][]float32, numChannels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range numChannels {
			out[c][i] = data[i*numChannels+c]
		}
	}
	return out
}
