package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// EncodeWAVFloat32 writes interleaved IEEE float samples with a fact chunk,
// the layout torchaudio and most DAWs produce for 32-bit float WAV.
func EncodeWAVFloat32(w *Waveform) ([]byte, error) {
	if w.SampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", w.SampleRate)
	}
	channels := w.NumChannels()
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	const bitsPerSample = 32
	frames := w.Len()
	byteRate := w.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := frames * blockAlign
	riffSize := 4 + (8 + 18) + (8 + 4) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.Grow(8 + riffSize)
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(18))
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavFormatIEEEFloat))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(w.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // cbSize
	buf.WriteString("fact")
	_ = binary.Write(buf, binary.LittleEndian, uint32(4))
	_ = binary.Write(buf, binary.LittleEndian, uint32(frames))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	raw := make([]byte, 4)
	for _, s := range w.Interleaved() {
		binary.LittleEndian.PutUint32(raw, math.Float32bits(s))
		buf.Write(raw)
	}

	return buf.Bytes(), nil
}

type floatHeader struct {
	channels   int
	sampleRate int
	dataStart  int
	dataLen    int
}

// parseFloatHeader walks the RIFF chunks and reports whether data is a
// 32-bit IEEE float WAV. Anything else is left to the PCM decoder.
func parseFloatHeader(data []byte) (floatHeader, bool) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return floatHeader{}, false
	}

	var hdr floatHeader
	var format, bits uint16
	haveFmt := false

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return floatHeader{}, false
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			hdr.channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			hdr.sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			if !haveFmt || format != wavFormatIEEEFloat || bits != 32 {
				return floatHeader{}, false
			}
			hdr.dataStart = body
			hdr.dataLen = size
			return hdr, hdr.channels > 0 && hdr.sampleRate > 0
		}

		// Chunks are word aligned.
		pos = body + size + size%2
	}

	return floatHeader{}, false
}

func decodeFloat32WAV(data []byte, hdr floatHeader) (*Waveform, error) {
	n := hdr.dataLen / 4
	samples := make([]float32, n)
	for i := range n {
		off := hdr.dataStart + i*4
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
	}
	return &Waveform{
		Channels:   Deinterleave(samples, hdr.channels),
		SampleRate: hdr.sampleRate,
	}, nil
}
