package onnx

import (
	"fmt"
	"math"
	"strings"
)

type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
)

// Tensor is a dense row-major tensor passed to and returned from graphs.
type Tensor struct {
	dtype TensorDType
	shape []int64
	data  any
}

func NewTensor[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	count, err := elementCount(shape)
	if err != nil {
		return nil, err
	}

	if count != len(data) {
		return nil, fmt.Errorf("shape %v expects %d elements, got %d", shape, count, len(data))
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}

	var zero T
	switch any(zero).(type) {
	case float32:
		converted := make([]float32, len(data))
		for i, v := range data {
			converted[i] = float32(v)
		}

		t.dtype, t.data = DTypeFloat32, converted
	case int64:
		converted := make([]int64, len(data))
		for i, v := range data {
			converted[i] = int64(v)
		}

		t.dtype, t.data = DTypeInt64, converted
	default:
		return nil, fmt.Errorf("unsupported tensor data type %T", zero)
	}

	return t, nil
}

// NewZeroTensor builds a zero-filled tensor from manifest metadata. Symbolic
// dimensions resolve to 1.
func NewZeroTensor(dtype string, shape []any) (*Tensor, error) {
	canonical, err := canonicalDType(dtype)
	if err != nil {
		return nil, err
	}

	resolved, err := resolveShape(shape)
	if err != nil {
		return nil, err
	}

	count, err := elementCount(resolved)
	if err != nil {
		return nil, err
	}

	if canonical == DTypeInt64 {
		return NewTensor(make([]int64, count), resolved)
	}

	return NewTensor(make([]float32, count), resolved)
}

func (t *Tensor) DType() TensorDType {
	return t.dtype
}

func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Data returns a copy of the backing slice.
func (t *Tensor) Data() any {
	switch v := t.data.(type) {
	case []float32:
		return append([]float32(nil), v...)
	case []int64:
		return append([]int64(nil), v...)
	default:
		return nil
	}
}

// ExtractFloat32 copies the values of a float32 tensor.
func ExtractFloat32(t *Tensor) ([]float32, error) {
	return extract[float32](t, DTypeFloat32)
}

// ExtractInt64 copies the values of an int64 tensor.
func ExtractInt64(t *Tensor) ([]int64, error) {
	return extract[int64](t, DTypeInt64)
}

func extract[T float32 | int64](t *Tensor, want TensorDType) ([]T, error) {
	if t == nil {
		return nil, fmt.Errorf("expected %s tensor, got nil", want)
	}

	if t.dtype != want {
		return nil, fmt.Errorf("expected %s tensor, got %s", want, t.dtype)
	}

	data, ok := t.data.([]T)
	if !ok {
		return nil, fmt.Errorf("%s tensor has unexpected backing type %T", want, t.data)
	}

	return append([]T(nil), data...), nil
}

func canonicalDType(raw string) (TensorDType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.TrimPrefix(normalized, "tensor(")
	normalized = strings.TrimSuffix(normalized, ")")

	switch normalized {
	case "float", "float32":
		return DTypeFloat32, nil
	case "int64", "long":
		return DTypeInt64, nil
	default:
		return "", fmt.Errorf("unsupported tensor dtype %q", raw)
	}
}

// resolveShape converts JSON manifest dimensions. Strings are symbolic
// dimensions such as "steps" and become 1.
func resolveShape(shape []any) ([]int64, error) {
	out := make([]int64, len(shape))

	for i, dim := range shape {
		var v int64

		switch d := dim.(type) {
		case float64:
			if d != math.Trunc(d) {
				return nil, fmt.Errorf("shape[%d]=%v is not an integer", i, d)
			}

			v = int64(d)
		case int:
			v = int64(d)
		case int64:
			v = d
		case string:
			if strings.TrimSpace(d) == "" {
				return nil, fmt.Errorf("shape[%d] has empty symbolic dimension", i)
			}

			v = 1
		default:
			return nil, fmt.Errorf("shape[%d] has unsupported type %T", i, dim)
		}

		if v < 1 {
			return nil, fmt.Errorf("shape[%d]=%v is not positive", i, dim)
		}

		out[i] = v
	}

	return out, nil
}

func elementCount(shape []int64) (int, error) {
	count := int64(1)

	for i, dim := range shape {
		if dim < 1 {
			return 0, fmt.Errorf("shape[%d]=%d is not positive", i, dim)
		}

		if count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		count *= dim
	}

	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}

	return int(count), nil
}

// ConcatTensorsDim1 concatenates two [1, T, D] float32 tensors along the
// time axis.
func ConcatTensorsDim1(a, b *Tensor) (*Tensor, error) {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 3 || len(bShape) != 3 {
		return nil, fmt.Errorf("concat: both tensors must be 3D, got %v and %v", aShape, bShape)
	}

	if aShape[0] != bShape[0] || aShape[2] != bShape[2] {
		return nil, fmt.Errorf("concat: shapes %v and %v differ outside dim 1", aShape, bShape)
	}

	aData, err := ExtractFloat32(a)
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}

	bData, err := ExtractFloat32(b)
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}

	return NewTensor(append(aData, bData...), []int64{aShape[0], aShape[1] + bShape[1], aShape[2]})
}
