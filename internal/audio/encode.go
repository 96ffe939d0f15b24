package audio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// Sample formats accepted by EncodeWAV.
const (
	FormatFloat32 = "float32"
	FormatPCM16   = "pcm16"
)

// EncodeWAV encodes a waveform in the requested sample format.
func EncodeWAV(w *Waveform, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatFloat32:
		return EncodeWAVFloat32(w)
	case FormatPCM16:
		return EncodeWAVPCM16(w)
	default:
		return nil, fmt.Errorf("unsupported WAV format %q", format)
	}
}

// EncodeWAVPCM16 encodes a waveform as 16-bit PCM.
func EncodeWAVPCM16(w *Waveform) ([]byte, error) {
	if w.SampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", w.SampleRate)
	}
	channels := w.NumChannels()
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	var buf bytes.Buffer

	// wav.NewEncoder requires an io.WriteSeeker; bytes.Buffer is not one.
	sw := &seekBuffer{buf: &buf}

	enc := wav.NewEncoder(sw, w.SampleRate, 16, channels, wavFormatPCM)

	pcmBuf := &goaudio.Float32Buffer{
		Data:           w.Interleaved(),
		Format:         &goaudio.Format{SampleRate: w.SampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteWAVFile encodes w and writes it to path, creating parent directories.
func WriteWAVFile(path string, w *Waveform, format string) (int, error) {
	data, err := EncodeWAV(w, format)
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(data), nil
}

// seekBuffer wraps a bytes.Buffer to satisfy io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n
		return n, err
	}
	// Writing in the middle: overwrite existing bytes.
	data := s.buf.Bytes()
	n := copy(data[s.pos:], p)
	if n < len(p) {
		data = append(data, p[n:]...)
		s.buf.Reset()
		s.buf.Write(data)
		n = len(p)
	}
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int
	switch whence {
	case 0: // io.SeekStart
		newPos = int(offset)
	case 1: // io.SeekCurrent
		newPos = s.pos + int(offset)
	case 2: // io.SeekEnd
		newPos = s.buf.Len() + int(offset)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("seek before start")
	}
	s.pos = newPos
	return int64(newPos), nil
}
