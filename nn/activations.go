package nn

import (
	"math"
)

// ApplyReLU applies max(0, v) to every element in place.
func ApplyReLU(v []float32) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

// ApplySigmoid applies 1/(1+exp(-v)) to every element in place.
func ApplySigmoid(v []float32) {
	for i, x := range v {
		v[i] = sigmoid(x)
	}
}

// sigmoid computes the logistic function for a single value
func sigmoid(v float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-v))))
}
