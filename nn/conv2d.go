package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// Conv2D is a 2D convolution layer with zero padding.
type Conv2D struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int

	Weights []float32 // [outC][inC][kH][kW]
	Bias    []float32 // [outC]

	// UseGPU routes Forward through the WebGPU compute path when set.
	// The CPU path remains the reference implementation and the
	// fallback when the GPU dispatch fails.
	UseGPU bool
}

// NewConv2D creates a convolution layer with He-initialized weights and
// zero biases.
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding int) *Conv2D {
	total := outChannels * inChannels * kernelSize * kernelSize
	weights := make([]float32, total)
	stddev := float32(math.Sqrt(2.0 / float64(inChannels*kernelSize*kernelSize)))
	for i := range weights {
		weights[i] = float32(rand.NormFloat64()) * stddev
	}

	return &Conv2D{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelSize:  kernelSize,
		Stride:      stride,
		Padding:     padding,
		Weights:     weights,
		Bias:        make([]float32, outChannels),
	}
}

// OutputSize returns the spatial output dimensions for an input of the
// given size.
func (c *Conv2D) OutputSize(inH, inW int) (int, int) {
	stride := c.Stride
	if stride < 1 {
		stride = 1
	}
	outH := (inH+2*c.Padding-c.KernelSize)/stride + 1
	outW := (inW+2*c.Padding-c.KernelSize)/stride + 1
	return outH, outW
}

// Forward runs the convolution.
// input shape: [batch][inC][inH][inW] (flattened)
// output shape: [batch][outC][outH][outW] (flattened)
func (c *Conv2D) Forward(input []float32, batch, inH, inW int) []float32 {
	if c.UseGPU {
		out, err := c.forwardGPU(input, batch, inH, inW)
		if err == nil {
			return out
		}
		fmt.Printf("conv2d: gpu forward failed (%v), falling back to cpu\n", err)
	}
	return c.forwardCPU(input, batch, inH, inW)
}

func (c *Conv2D) forwardCPU(input []float32, batch, inH, inW int) []float32 {
	stride := c.Stride
	if stride < 1 {
		stride = 1
	}
	inC := c.InChannels
	outC := c.OutChannels
	kSize := c.KernelSize
	padding := c.Padding
	outH, outW := c.OutputSize(inH, inW)

	output := make([]float32, batch*outC*outH*outW)

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outC; oc++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					sum := c.Bias[oc]

					for ic := 0; ic < inC; ic++ {
						for kh := 0; kh < kSize; kh++ {
							for kw := 0; kw < kSize; kw++ {
								ih := oh*stride + kh - padding
								iw := ow*stride + kw - padding

								if ih >= 0 && ih < inH && iw >= 0 && iw < inW {
									inputIdx := b*inC*inH*inW + ic*inH*inW + ih*inW + iw
									kernelIdx := oc*inC*kSize*kSize + ic*kSize*kSize + kh*kSize + kw
									sum += input[inputIdx] * c.Weights[kernelIdx]
								}
							}
						}
					}

					output[b*outC*outH*outW+oc*outH*outW+oh*outW+ow] = sum
				}
			}
		}
	}

	return output
}

// LoadState restores weights and biases from a named tensor map using
// prefix+".weight" and prefix+".bias".
func (c *Conv2D) LoadState(tensors map[string][]float32, prefix string) error {
	weights, ok := tensors[prefix+".weight"]
	if !ok {
		return fmt.Errorf("missing tensor %s.weight", prefix)
	}
	if len(weights) != len(c.Weights) {
		return fmt.Errorf("tensor %s.weight: size %d, expected %d", prefix, len(weights), len(c.Weights))
	}
	bias, ok := tensors[prefix+".bias"]
	if !ok {
		return fmt.Errorf("missing tensor %s.bias", prefix)
	}
	if len(bias) != len(c.Bias) {
		return fmt.Errorf("tensor %s.bias: size %d, expected %d", prefix, len(bias), len(c.Bias))
	}

	copy(c.Weights, weights)
	copy(c.Bias, bias)
	return nil
}
