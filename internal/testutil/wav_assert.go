package testutil

import (
	"encoding/binary"
	"errors"
	"testing"
)

// WAV format tags.
const (
	FormatPCM       = 1
	FormatIEEEFloat = 3
)

// WAVInfo is the subset of a WAV header the assertions check.
type WAVInfo struct {
	Format        uint16
	Channels      int
	SampleRate    int
	BitsPerSample int
	Frames        int
}

// AssertValidWAV checks the RIFF/WAVE layout of data and that it matches
// the expected format tag, channel count and sample rate. It returns the
// parsed header.
func AssertValidWAV(tb testing.TB, data []byte, format uint16, channels, sampleRate int) WAVInfo {
	tb.Helper()

	if len(data) < 44 {
		tb.Fatalf("WAV data too short: %d bytes", len(data))
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		tb.Fatalf("WAV: missing RIFF/WAVE header (got %q/%q)", string(data[0:4]), string(data[8:12]))
	}

	if string(data[12:16]) != "fmt " {
		tb.Fatalf("WAV: missing fmt chunk (got %q)", string(data[12:16]))
	}

	info := WAVInfo{
		Format:        binary.LittleEndian.Uint16(data[20:22]),
		Channels:      int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
	}

	if info.Format != format {
		tb.Fatalf("WAV: format tag = %d; want %d", info.Format, format)
	}

	if info.Channels != channels {
		tb.Fatalf("WAV: channels = %d; want %d", info.Channels, channels)
	}

	if info.SampleRate != sampleRate {
		tb.Fatalf("WAV: sample rate = %d; want %d", info.SampleRate, sampleRate)
	}

	dataSize, err := findDataChunkSize(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}

	frameBytes := info.Channels * info.BitsPerSample / 8
	if frameBytes == 0 {
		tb.Fatalf("WAV: invalid frame size for %+v", info)
	}

	info.Frames = int(dataSize) / frameBytes

	return info
}

// findDataChunkSize walks the chunk list after the 12-byte RIFF header and
// returns the size of the "data" chunk.
func findDataChunkSize(data []byte) (uint32, error) {
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])

		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if id == "data" {
			return size, nil
		}

		offset += 8 + int(size) + int(size%2)
	}

	return 0, errors.New("data chunk not found in WAV")
}
