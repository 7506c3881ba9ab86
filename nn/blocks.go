package nn

// AvgPool2D halves the spatial resolution with 2x2 average pooling,
// stride 2. Input height and width must be even.
// input shape: [batch][C][h][w], output shape: [batch][C][h/2][w/2].
func AvgPool2D(input []float32, batch, channels, h, w int) []float32 {
	outH := h / 2
	outW := w / 2
	out := make([]float32, batch*channels*outH*outW)

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			inBase := b*channels*h*w + c*h*w
			outBase := b*channels*outH*outW + c*outH*outW
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					ih := oh * 2
					iw := ow * 2
					sum := input[inBase+ih*w+iw] +
						input[inBase+ih*w+iw+1] +
						input[inBase+(ih+1)*w+iw] +
						input[inBase+(ih+1)*w+iw+1]
					out[outBase+oh*outW+ow] = sum / 4
				}
			}
		}
	}

	return out
}

// UpsampleNearest2x doubles the spatial resolution by nearest-neighbor
// interpolation.
// input shape: [batch][C][h][w], output shape: [batch][C][2h][2w].
func UpsampleNearest2x(input []float32, batch, channels, h, w int) []float32 {
	outH := h * 2
	outW := w * 2
	out := make([]float32, batch*channels*outH*outW)

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			inBase := b*channels*h*w + c*h*w
			outBase := b*channels*outH*outW + c*outH*outW
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					out[outBase+oh*outW+ow] = input[inBase+(oh/2)*w+ow/2]
				}
			}
		}
	}

	return out
}

// ConcatChannels concatenates two [batch][*][h][w] volumes along the
// channel axis.
func ConcatChannels(a, b []float32, batch, channelsA, channelsB, h, w int) []float32 {
	plane := h * w
	out := make([]float32, batch*(channelsA+channelsB)*plane)

	for n := 0; n < batch; n++ {
		dst := n * (channelsA + channelsB) * plane
		copy(out[dst:dst+channelsA*plane], a[n*channelsA*plane:(n+1)*channelsA*plane])
		copy(out[dst+channelsA*plane:dst+(channelsA+channelsB)*plane], b[n*channelsB*plane:(n+1)*channelsB*plane])
	}

	return out
}

// DownBlock2D is one encoder stage: conv 3x3 -> batch norm -> ReLU ->
// 2x2 average pool.
type DownBlock2D struct {
	Conv *Conv2D
	Norm *BatchNorm2D
}

// NewDownBlock2D creates an encoder stage mapping inChannels to
// outChannels and halving the spatial resolution.
func NewDownBlock2D(inChannels, outChannels int) *DownBlock2D {
	return &DownBlock2D{
		Conv: NewConv2D(inChannels, outChannels, 3, 1, 1),
		Norm: NewBatchNorm2D(outChannels),
	}
}

// Forward runs the stage and returns the output with its halved
// spatial dimensions.
func (blk *DownBlock2D) Forward(input []float32, batch, h, w int) ([]float32, int, int) {
	out := blk.Conv.Forward(input, batch, h, w)
	out = blk.Norm.Forward(out, batch, h, w)
	ApplyReLU(out)
	out = AvgPool2D(out, batch, blk.Conv.OutChannels, h, w)
	return out, h / 2, w / 2
}

// LoadState restores the stage parameters from a named tensor map.
func (blk *DownBlock2D) LoadState(tensors map[string][]float32, prefix string) error {
	if err := blk.Conv.LoadState(tensors, prefix+".conv"); err != nil {
		return err
	}
	return blk.Norm.LoadState(tensors, prefix+".norm")
}

// UpBlock2D is one decoder stage: nearest 2x upsample -> conv 3x3 ->
// batch norm -> ReLU.
type UpBlock2D struct {
	Conv *Conv2D
	Norm *BatchNorm2D
}

// NewUpBlock2D creates a decoder stage mapping inChannels to
// outChannels and doubling the spatial resolution.
func NewUpBlock2D(inChannels, outChannels int) *UpBlock2D {
	return &UpBlock2D{
		Conv: NewConv2D(inChannels, outChannels, 3, 1, 1),
		Norm: NewBatchNorm2D(outChannels),
	}
}

// Forward runs the stage and returns the output with its doubled
// spatial dimensions.
func (blk *UpBlock2D) Forward(input []float32, batch, h, w int) ([]float32, int, int) {
	out := UpsampleNearest2x(input, batch, blk.Conv.InChannels, h, w)
	out = blk.Conv.Forward(out, batch, h*2, w*2)
	out = blk.Norm.Forward(out, batch, h*2, w*2)
	ApplyReLU(out)
	return out, h * 2, w * 2
}

// LoadState restores the stage parameters from a named tensor map.
func (blk *UpBlock2D) LoadState(tensors map[string][]float32, prefix string) error {
	if err := blk.Conv.LoadState(tensors, prefix+".conv"); err != nil {
		return err
	}
	return blk.Norm.LoadState(tensors, prefix+".norm")
}
