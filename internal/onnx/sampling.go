package onnx

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// sampler draws tokens and latent frames from model outputs.
type sampler struct {
	rng *rand.Rand
}

// newSampler seeds a PCG source. Seed 0 draws a random seed.
func newSampler(seed uint64) *sampler {
	if seed == 0 {
		return &sampler{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}

	return &sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// categorical samples an index from softmax(logits / temp). A temperature of
// zero picks the argmax.
func (s *sampler) categorical(logits []float32, temp float64) int {
	if len(logits) == 0 {
		return -1
	}

	if temp <= 0 {
		return argmax(logits)
	}

	probs := softmax(logits, temp)
	u := s.rng.Float64()

	var acc float64
	for i, p := range probs {
		acc += p
		if u < acc {
			return i
		}
	}

	return len(probs) - 1
}

// gaussianMixture picks a component with categorical temperature catTemp and
// returns mean + exp(logScale) * N(0, 1) * gaussTemp for that component.
// means and logScales are [K, dim] row-major.
func (s *sampler) gaussianMixture(logits, means, logScales []float32, dim int, catTemp, gaussTemp float64) ([]float32, error) {
	k := len(logits)
	if k == 0 {
		return nil, fmt.Errorf("mixture has no components")
	}

	if len(means) != k*dim || len(logScales) != k*dim {
		return nil, fmt.Errorf(
			"mixture expects %d means and scales for %d components of dim %d, got %d and %d",
			k*dim, k, dim, len(means), len(logScales),
		)
	}

	c := s.categorical(logits, catTemp)
	mean := means[c*dim : (c+1)*dim]
	logScale := logScales[c*dim : (c+1)*dim]

	out := make([]float32, dim)
	for i := range out {
		x := float64(mean[i])
		if gaussTemp > 0 {
			x += math.Exp(float64(logScale[i])) * s.rng.NormFloat64() * gaussTemp
		}

		out[i] = float32(x)
	}

	return out, nil
}

func softmax(logits []float32, temp float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, float64(l))
	}

	probs := make([]float64, len(logits))

	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp((float64(l) - maxLogit) / temp)
		sum += probs[i]
	}

	for i := range probs {
		probs[i] /= sum
	}

	return probs
}

func argmax(xs []float32) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}

	return best
}
