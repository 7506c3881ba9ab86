package motion

import (
	"math"
)

// GridSample bilinearly samples n images of shape [channels][h][w] at
// the normalized coordinates given by grid ([n][h][w][2], (x, y) in
// [-1, 1]). Align-corners convention: -1 and +1 map exactly to the
// first and last pixel centers. Samples falling outside the image
// contribute zero (zeros padding).
func GridSample(input, grid []float32, n, channels, h, w int) []float32 {
	out := make([]float32, n*channels*h*w)
	plane := h * w

	for img := 0; img < n; img++ {
		gridBase := img * plane * 2
		for p := 0; p < plane; p++ {
			fx := (grid[gridBase+p*2] + 1) * 0.5 * float32(w-1)
			fy := (grid[gridBase+p*2+1] + 1) * 0.5 * float32(h-1)

			x0 := int(math.Floor(float64(fx)))
			y0 := int(math.Floor(float64(fy)))
			x1 := x0 + 1
			y1 := y0 + 1
			wx := fx - float32(x0)
			wy := fy - float32(y0)

			for c := 0; c < channels; c++ {
				base := img*channels*plane + c*plane
				sum := float32(0)

				if y0 >= 0 && y0 < h && x0 >= 0 && x0 < w {
					sum += input[base+y0*w+x0] * (1 - wy) * (1 - wx)
				}
				if y0 >= 0 && y0 < h && x1 >= 0 && x1 < w {
					sum += input[base+y0*w+x1] * (1 - wy) * wx
				}
				if y1 >= 0 && y1 < h && x0 >= 0 && x0 < w {
					sum += input[base+y1*w+x0] * wy * (1 - wx)
				}
				if y1 >= 0 && y1 < h && x1 >= 0 && x1 < w {
					sum += input[base+y1*w+x1] * wy * wx
				}

				out[base+p] = sum
			}
		}
	}

	return out
}

// CreateDeformedSource warps the source image once per sparse motion
// entry. The source is replicated entries times so every field warps
// independently; this is the peak-memory hot spot of the pipeline.
// sparseMotions layout: [batch][entries][h][w][2]; output layout:
// [batch][entries][channels][h][w].
func CreateDeformedSource(src *Image, sparseMotions []float32, entries int) []float32 {
	n := src.Batch * entries
	plane := src.Height * src.Width

	replicated := make([]float32, n*src.Channels*plane)
	for b := 0; b < src.Batch; b++ {
		frame := src.Data[b*src.Channels*plane : (b+1)*src.Channels*plane]
		for e := 0; e < entries; e++ {
			copy(replicated[(b*entries+e)*src.Channels*plane:], frame)
		}
	}

	return GridSample(replicated, sparseMotions, n, src.Channels, src.Height, src.Width)
}
