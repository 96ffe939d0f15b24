package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/wav"
)

// ErrInvalidWAV is returned for input that is not a decodable WAV file.
var ErrInvalidWAV = errors.New("invalid WAV file")

// DecodeWAV decodes WAV bytes of any sample rate and channel count into a
// planar waveform. Integer PCM goes through cwbudde/wav; 32-bit IEEE float
// files (which this tool writes by default) are parsed directly.
func DecodeWAV(data []byte) (*Waveform, error) {
	if len(data) == 0 {
		return nil, errors.New("empty WAV input")
	}

	if hdr, ok := parseFloatHeader(data); ok {
		return decodeFloat32WAV(data, hdr)
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM data: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("%w: missing format", ErrInvalidWAV)
	}
	if buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidWAV, buf.Format.SampleRate)
	}

	return &Waveform{
		Channels:   Deinterleave(buf.Data, buf.Format.NumChannels),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// ReadWAVFile reads and decodes a WAV file from disk.
func ReadWAVFile(path string) (*Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio %s: %w", path, err)
	}
	w, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", path, err)
	}
	return w, nil
}
