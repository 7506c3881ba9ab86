package nn

import (
	"math"
)

// ChannelSoftmax normalizes a [batch][channels][h][w] volume across the
// channel axis independently at every spatial location. The result is
// non-negative and sums to 1 over the channels of each pixel.
func ChannelSoftmax(input []float32, batch, channels, h, w int) []float32 {
	out := make([]float32, len(input))
	plane := h * w

	for b := 0; b < batch; b++ {
		base := b * channels * plane
		for p := 0; p < plane; p++ {
			// Numerical stability: subtract the per-pixel max
			maxLogit := input[base+p]
			for c := 1; c < channels; c++ {
				v := input[base+c*plane+p]
				if v > maxLogit {
					maxLogit = v
				}
			}

			sum := float32(0)
			for c := 0; c < channels; c++ {
				e := float32(math.Exp(float64(input[base+c*plane+p] - maxLogit)))
				out[base+c*plane+p] = e
				sum += e
			}

			for c := 0; c < channels; c++ {
				out[base+c*plane+p] /= sum
			}
		}
	}

	return out
}
