package nn

import (
	"github.com/openfluke/drift/gpu"
)

// forwardGPU dispatches the convolution to the WebGPU compute shader.
func (c *Conv2D) forwardGPU(input []float32, batch, inH, inW int) ([]float32, error) {
	stride := c.Stride
	if stride < 1 {
		stride = 1
	}
	return gpu.Conv2DForward(gpu.Conv2DSpec{
		Batch:       batch,
		InChannels:  c.InChannels,
		OutChannels: c.OutChannels,
		KernelSize:  c.KernelSize,
		Stride:      stride,
		Padding:     c.Padding,
		InputHeight: inH,
		InputWidth:  inW,
		Weights:     c.Weights,
		Bias:        c.Bias,
	}, input)
}
