package hertz

import "fmt"

// Latents is a row-major [1, Steps, Dim] latent sequence.
type Latents struct {
	Data  []float32
	Steps int
	Dim   int
}

// NewLatents validates data against steps*dim.
func NewLatents(data []float32, steps, dim int) (Latents, error) {
	if steps < 0 || dim < 1 {
		return Latents{}, fmt.Errorf("%w: invalid latent shape [1 %d %d]", ErrShapeMismatch, steps, dim)
	}

	if len(data) != steps*dim {
		return Latents{}, fmt.Errorf("%w: [1 %d %d] expects %d values, got %d", ErrShapeMismatch, steps, dim, steps*dim, len(data))
	}

	return Latents{Data: data, Steps: steps, Dim: dim}, nil
}

// Shape returns the tensor shape including the batch dimension.
func (l Latents) Shape() []int64 {
	return []int64{1, int64(l.Steps), int64(l.Dim)}
}

// Frame returns the features of step i.
func (l Latents) Frame(i int) []float32 {
	return l.Data[i*l.Dim : (i+1)*l.Dim]
}

// Clone returns a deep copy.
func (l Latents) Clone() Latents {
	return Latents{Data: append([]float32(nil), l.Data...), Steps: l.Steps, Dim: l.Dim}
}

// ConcatFeatures joins two time-aligned sequences along the feature axis.
func ConcatFeatures(a, b Latents) (Latents, error) {
	if a.Steps != b.Steps {
		return Latents{}, fmt.Errorf("%w: cannot concat features of %d and %d steps", ErrShapeMismatch, a.Steps, b.Steps)
	}

	dim := a.Dim + b.Dim
	out := make([]float32, 0, a.Steps*dim)

	for i := range a.Steps {
		out = append(out, a.Frame(i)...)
		out = append(out, b.Frame(i)...)
	}

	return Latents{Data: out, Steps: a.Steps, Dim: dim}, nil
}

// SplitFeatures cuts every frame at feature index at.
func (l Latents) SplitFeatures(at int) (Latents, Latents, error) {
	if at <= 0 || at >= l.Dim {
		return Latents{}, Latents{}, fmt.Errorf("%w: split at %d of dim %d", ErrShapeMismatch, at, l.Dim)
	}

	left := make([]float32, 0, l.Steps*at)
	right := make([]float32, 0, l.Steps*(l.Dim-at))

	for i := range l.Steps {
		f := l.Frame(i)
		left = append(left, f[:at]...)
		right = append(right, f[at:]...)
	}

	return Latents{Data: left, Steps: l.Steps, Dim: at},
		Latents{Data: right, Steps: l.Steps, Dim: l.Dim - at},
		nil
}
