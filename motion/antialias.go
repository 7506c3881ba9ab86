package motion

import (
	"fmt"
	"math"
)

// AntiAliasDownsampler blurs an image with a Gaussian kernel and then
// subsamples it, so reduced-scale processing does not alias. The blur
// kernel is fixed at construction from the scale factor.
type AntiAliasDownsampler struct {
	Channels int
	Scale    float32

	kernel     []float32 // [k][k], normalized
	kernelSize int
	pad        int
	step       int
}

// NewAntiAliasDownsampler creates a downsampler for the given channel
// count and scale factor in (0, 1].
func NewAntiAliasDownsampler(channels int, scale float32) (*AntiAliasDownsampler, error) {
	if scale <= 0 || scale > 1 {
		return nil, fmt.Errorf("antialias: scale %g outside (0, 1]", scale)
	}

	d := &AntiAliasDownsampler{
		Channels: channels,
		Scale:    scale,
	}
	if scale == 1 {
		return d, nil
	}

	sigma := (1/float64(scale) - 1) / 2
	d.kernelSize = 2*int(math.Round(4*sigma)) + 1
	d.pad = d.kernelSize / 2
	d.step = int(math.Round(1 / float64(scale)))

	// Separable Gaussian, built as an outer product and normalized.
	mean := float64(d.kernelSize-1) / 2
	line := make([]float64, d.kernelSize)
	for i := range line {
		line[i] = math.Exp(-(float64(i) - mean) * (float64(i) - mean) / (2 * sigma * sigma))
	}

	d.kernel = make([]float32, d.kernelSize*d.kernelSize)
	sum := 0.0
	for i := 0; i < d.kernelSize; i++ {
		for j := 0; j < d.kernelSize; j++ {
			v := line[i] * line[j]
			d.kernel[i*d.kernelSize+j] = float32(v)
			sum += v
		}
	}
	for i := range d.kernel {
		d.kernel[i] = float32(float64(d.kernel[i]) / sum)
	}

	return d, nil
}

// OutputSize returns the spatial dimensions after downsampling. The
// size follows from the subsample stride: every step-th pixel survives,
// starting at 0, so the output spans ceil(size/step).
func (d *AntiAliasDownsampler) OutputSize(h, w int) (int, int) {
	if d.Scale == 1 {
		return h, w
	}
	return (h + d.step - 1) / d.step, (w + d.step - 1) / d.step
}

// Forward blurs each channel independently (depthwise, zero padding)
// and picks every step-th pixel. Scale 1 passes the input through
// untouched.
func (d *AntiAliasDownsampler) Forward(src *Image) *Image {
	if d.Scale == 1 {
		return src
	}

	h := src.Height
	w := src.Width
	outH, outW := d.OutputSize(h, w)
	out := NewImage(src.Batch, src.Channels, outH, outW)

	for b := 0; b < src.Batch; b++ {
		for c := 0; c < src.Channels; c++ {
			inBase := (b*src.Channels + c) * h * w
			outBase := (b*src.Channels + c) * outH * outW

			for oi := 0; oi < outH; oi++ {
				for oj := 0; oj < outW; oj++ {
					ci := oi * d.step
					cj := oj * d.step

					sum := float32(0)
					for ki := 0; ki < d.kernelSize; ki++ {
						for kj := 0; kj < d.kernelSize; kj++ {
							ii := ci + ki - d.pad
							jj := cj + kj - d.pad
							if ii >= 0 && ii < h && jj >= 0 && jj < w {
								sum += src.Data[inBase+ii*w+jj] * d.kernel[ki*d.kernelSize+kj]
							}
						}
					}
					out.Data[outBase+oi*outW+oj] = sum
				}
			}
		}
	}

	return out
}
