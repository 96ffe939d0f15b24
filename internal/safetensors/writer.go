// Package safetensors reads and writes the safetensors container format:
// an 8-byte little-endian header length, a JSON header, then raw tensor
// bytes.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Tensor is a named float32 tensor.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Options controls encoding. DType is DTypeF32 (default) or DTypeBF16.
// Metadata is stored under the __metadata__ header key.
type Options struct {
	DType    string
	Metadata map[string]string
}

const metadataKey = "__metadata__"

// Encode serializes tensors sorted by name.
func Encode(tensors []Tensor, opts Options) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	dtype := strings.ToUpper(opts.DType)
	if dtype == "" {
		dtype = DTypeF32
	}

	elemBytes, err := dtypeBytes(dtype)
	if err != nil || dtype == DTypeF16 {
		return nil, fmt.Errorf("safetensors: cannot encode dtype %q", opts.DType)
	}

	sorted := make([]Tensor, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	if len(opts.Metadata) > 0 {
		header[metadataKey] = opts.Metadata
	}

	var raw []byte

	for _, tensor := range sorted {
		name := strings.TrimSpace(tensor.Name)
		if name == "" || name == metadataKey {
			return nil, fmt.Errorf("safetensors: invalid tensor name %q", tensor.Name)
		}

		if _, exists := header[name]; exists {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		elemCount, err := shapeElementCount(tensor.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if int64(len(tensor.Data)) != elemCount {
			return nil, fmt.Errorf(
				"safetensors: tensor %q shape %v expects %d elements, got %d",
				name, tensor.Shape, elemCount, len(tensor.Data),
			)
		}

		start := len(raw)
		raw = append(raw, make([]byte, len(tensor.Data)*elemBytes)...)

		for i, v := range tensor.Data {
			bits := math.Float32bits(v)
			if dtype == DTypeBF16 {
				binary.LittleEndian.PutUint16(raw[start+i*2:], bf16Bits(bits))
			} else {
				binary.LittleEndian.PutUint32(raw[start+i*4:], bits)
			}
		}

		header[name] = storeHeaderEntry{
			DType:   dtype,
			Shape:   append([]int64(nil), tensor.Shape...),
			Offsets: [2]int{start, len(raw)},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 8, 8+len(headerJSON)+len(raw))
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out, nil
}

// WriteFile encodes tensors into path, creating parent directories.
func WriteFile(path string, tensors []Tensor, opts Options) error {
	data, err := Encode(tensors, opts)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("safetensors: create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}

// bf16Bits rounds float32 bits to the upper 16 bits, ties to even.
func bf16Bits(bits uint32) uint16 {
	if bits&0x7f800000 == 0x7f800000 && bits&0x007fffff != 0 {
		return uint16(bits>>16) | 0x40
	}

	return uint16((bits + 0x7fff + (bits>>16)&1) >> 16)
}
