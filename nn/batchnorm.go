package nn

import (
	"fmt"
	"math"
)

// BatchNorm2D normalizes a [batch][C][H][W] volume per channel using
// running statistics. Inference form only: the running mean/variance
// are treated as frozen configuration.
type BatchNorm2D struct {
	NumFeatures int
	Eps         float32

	Gamma       []float32 // scale, [C]
	Beta        []float32 // shift, [C]
	RunningMean []float32 // [C]
	RunningVar  []float32 // [C]
}

// NewBatchNorm2D creates a batch norm layer with identity parameters
// (gamma 1, beta 0, mean 0, variance 1).
func NewBatchNorm2D(numFeatures int) *BatchNorm2D {
	gamma := make([]float32, numFeatures)
	runningVar := make([]float32, numFeatures)
	for i := range gamma {
		gamma[i] = 1
		runningVar[i] = 1
	}

	return &BatchNorm2D{
		NumFeatures: numFeatures,
		Eps:         1e-5,
		Gamma:       gamma,
		Beta:        make([]float32, numFeatures),
		RunningMean: make([]float32, numFeatures),
		RunningVar:  runningVar,
	}
}

// Forward applies the normalization.
// input shape: [batch][C][h][w] (flattened), returns the same shape.
func (bn *BatchNorm2D) Forward(input []float32, batch, h, w int) []float32 {
	plane := h * w
	out := make([]float32, len(input))

	for c := 0; c < bn.NumFeatures; c++ {
		invStd := float32(1.0 / math.Sqrt(float64(bn.RunningVar[c]+bn.Eps)))
		scale := bn.Gamma[c] * invStd
		shift := bn.Beta[c] - bn.RunningMean[c]*scale

		for b := 0; b < batch; b++ {
			base := b*bn.NumFeatures*plane + c*plane
			for p := 0; p < plane; p++ {
				out[base+p] = input[base+p]*scale + shift
			}
		}
	}

	return out
}

// LoadState restores the affine parameters and running statistics from
// a named tensor map.
func (bn *BatchNorm2D) LoadState(tensors map[string][]float32, prefix string) error {
	fields := []struct {
		name string
		dst  []float32
	}{
		{".weight", bn.Gamma},
		{".bias", bn.Beta},
		{".running_mean", bn.RunningMean},
		{".running_var", bn.RunningVar},
	}

	for _, f := range fields {
		src, ok := tensors[prefix+f.name]
		if !ok {
			return fmt.Errorf("missing tensor %s%s", prefix, f.name)
		}
		if len(src) != len(f.dst) {
			return fmt.Errorf("tensor %s%s: size %d, expected %d", prefix, f.name, len(src), len(f.dst))
		}
		copy(f.dst, src)
	}
	return nil
}
