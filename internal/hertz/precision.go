package hertz

import (
	"fmt"
	"math"
	"strings"
)

// Precision is the numeric precision applied to tensors crossing the model
// boundary.
type Precision int

const (
	PrecisionFull Precision = iota
	PrecisionBF16
)

func (p Precision) String() string {
	if p == PrecisionBF16 {
		return "bf16"
	}

	return "fp32"
}

// ParsePrecision accepts fp32/float32/full and bf16/bfloat16.
func ParsePrecision(raw string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "fp32", "float32", "full":
		return PrecisionFull, nil
	case "bf16", "bfloat16":
		return PrecisionBF16, nil
	default:
		return PrecisionFull, fmt.Errorf("invalid precision %q (expected fp32|bf16)", raw)
	}
}

// ExecContext is passed to every tokenizer and generator call.
type ExecContext struct {
	Precision Precision
}

// FullPrecision is the context used for exact comparisons.
var FullPrecision = ExecContext{Precision: PrecisionFull}

// Round returns xs at the context's precision. Full precision returns xs
// unchanged; bf16 returns a rounded copy.
func (ec ExecContext) Round(xs []float32) []float32 {
	if ec.Precision != PrecisionBF16 {
		return xs
	}

	out := make([]float32, len(xs))
	for i, x := range xs {
		out[i] = RoundBF16(x)
	}

	return out
}

// RoundBF16 rounds x to the nearest bfloat16 value, ties to even.
func RoundBF16(x float32) float32 {
	bits := math.Float32bits(x)
	if bits&0x7f800000 == 0x7f800000 {
		// Inf and NaN keep their payload high bits.
		if bits&0x007fffff != 0 {
			bits |= 0x00400000
		}

		return math.Float32frombits(bits &^ 0xffff)
	}

	bits += 0x7fff + (bits>>16)&1

	return math.Float32frombits(bits &^ 0xffff)
}
