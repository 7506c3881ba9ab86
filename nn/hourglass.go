package nn

import (
	"fmt"
)

// FeatureTransformer maps a [batch][C][H][W] feature volume to another
// volume at the same spatial resolution. The output channel count is
// fixed at construction and reported by OutFilters.
type FeatureTransformer interface {
	Transform(input []float32, batch, h, w int) ([]float32, error)
	OutFilters() int
}

// Encoder is a chain of DownBlock2D stages. Forward keeps every
// intermediate output so the decoder can concatenate skips.
type Encoder struct {
	Blocks []*DownBlock2D
}

// Decoder mirrors the encoder with UpBlock2D stages, concatenating the
// matching encoder output after each upsample.
type Decoder struct {
	Blocks []*UpBlock2D
}

// Hourglass is a multi-scale encoder/decoder with skip connections.
// Output channels: blockExpansion + inFeatures.
type Hourglass struct {
	encoder Encoder
	decoder Decoder

	inFeatures     int
	blockExpansion int
	numBlocks      int
	maxFeatures    int
}

// NewHourglass builds the encoder/decoder pair. Channel widths grow by
// powers of two from blockExpansion, capped at maxFeatures.
func NewHourglass(blockExpansion, inFeatures, numBlocks, maxFeatures int) *Hourglass {
	hg := &Hourglass{
		inFeatures:     inFeatures,
		blockExpansion: blockExpansion,
		numBlocks:      numBlocks,
		maxFeatures:    maxFeatures,
	}

	for i := 0; i < numBlocks; i++ {
		in := inFeatures
		if i > 0 {
			in = min(maxFeatures, blockExpansion<<i)
		}
		out := min(maxFeatures, blockExpansion<<(i+1))
		hg.encoder.Blocks = append(hg.encoder.Blocks, NewDownBlock2D(in, out))
	}

	// Decoder stages run deepest-first. Every stage after the first
	// also consumes the skip concatenated by its predecessor.
	for i := numBlocks - 1; i >= 0; i-- {
		in := min(maxFeatures, blockExpansion<<(i+1))
		if i != numBlocks-1 {
			in *= 2
		}
		out := min(maxFeatures, blockExpansion<<i)
		hg.decoder.Blocks = append(hg.decoder.Blocks, NewUpBlock2D(in, out))
	}

	return hg
}

// OutFilters returns the channel count of Transform's output.
func (hg *Hourglass) OutFilters() int {
	return hg.blockExpansion + hg.inFeatures
}

// SetGPU toggles the GPU compute path on every convolution in the
// hourglass.
func (hg *Hourglass) SetGPU(enabled bool) {
	for _, blk := range hg.encoder.Blocks {
		blk.Conv.UseGPU = enabled
	}
	for _, blk := range hg.decoder.Blocks {
		blk.Conv.UseGPU = enabled
	}
}

// Transform runs the full encoder/decoder pass. The spatial dimensions
// must be divisible by 2^numBlocks so every pooling stage stays exact.
func (hg *Hourglass) Transform(input []float32, batch, h, w int) ([]float32, error) {
	factor := 1 << hg.numBlocks
	if h%factor != 0 || w%factor != 0 {
		return nil, fmt.Errorf("hourglass: spatial size %dx%d not divisible by %d", h, w, factor)
	}
	if len(input) != batch*hg.inFeatures*h*w {
		return nil, fmt.Errorf("hourglass: input size %d, expected %d", len(input), batch*hg.inFeatures*h*w)
	}

	// Encoder: keep every scale for the skip connections.
	type scale struct {
		data     []float32
		channels int
		h, w     int
	}
	scales := []scale{{input, hg.inFeatures, h, w}}
	cur := input
	curH, curW := h, w
	for _, blk := range hg.encoder.Blocks {
		cur, curH, curW = blk.Forward(cur, batch, curH, curW)
		scales = append(scales, scale{cur, blk.Conv.OutChannels, curH, curW})
	}

	// Decoder: upsample, then concatenate the matching encoder output.
	out := scales[len(scales)-1]
	for i, blk := range hg.decoder.Blocks {
		data, upH, upW := blk.Forward(out.data, batch, out.h, out.w)
		skip := scales[len(scales)-2-i]
		merged := ConcatChannels(data, skip.data, batch, blk.Conv.OutChannels, skip.channels, upH, upW)
		out = scale{merged, blk.Conv.OutChannels + skip.channels, upH, upW}
	}

	return out.data, nil
}

// LoadState restores every block's parameters from a named tensor map.
// Names follow prefix+".encoder.down_blocks.N" and
// prefix+".decoder.up_blocks.N".
func (hg *Hourglass) LoadState(tensors map[string][]float32, prefix string) error {
	for i, blk := range hg.encoder.Blocks {
		if err := blk.LoadState(tensors, fmt.Sprintf("%s.encoder.down_blocks.%d", prefix, i)); err != nil {
			return err
		}
	}
	for i, blk := range hg.decoder.Blocks {
		if err := blk.LoadState(tensors, fmt.Sprintf("%s.decoder.up_blocks.%d", prefix, i)); err != nil {
			return err
		}
	}
	return nil
}
