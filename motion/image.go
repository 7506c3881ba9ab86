package motion

import (
	"fmt"
)

// Image is a batch of channel-first floating point images.
// Data layout: [batch][channels][height][width], flattened.
type Image struct {
	Batch    int
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// NewImage allocates a zero image of the given shape.
func NewImage(batch, channels, height, width int) *Image {
	return &Image{
		Batch:    batch,
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, batch*channels*height*width),
	}
}

// Validate checks that the data length matches the declared shape.
func (im *Image) Validate() error {
	if im.Batch <= 0 || im.Channels <= 0 || im.Height <= 0 || im.Width <= 0 {
		return fmt.Errorf("image: non-positive shape (%d, %d, %d, %d)",
			im.Batch, im.Channels, im.Height, im.Width)
	}
	want := im.Batch * im.Channels * im.Height * im.Width
	if len(im.Data) != want {
		return fmt.Errorf("image: data length %d, shape wants %d", len(im.Data), want)
	}
	return nil
}
