package motion

import (
	"fmt"
	"math"
)

// KeypointsToGaussian renders each keypoint as a 2D Gaussian density
// over the normalized coordinate grid:
// exp(-0.5 * ||grid - keypoint||^2 / variance).
// Output layout: [batch][count][h][w], flattened. A keypoint sitting
// exactly on a grid cell produces 1.0 at that cell.
func KeypointsToGaussian(kp *KeypointSet, h, w int, variance float32) ([]float32, error) {
	if err := kp.Validate(); err != nil {
		return nil, err
	}
	if variance <= 0 {
		return nil, fmt.Errorf("gaussian: non-positive variance %g", variance)
	}
	grid, err := MakeCoordinateGrid(h, w)
	if err != nil {
		return nil, err
	}

	out := make([]float32, kp.Batch*kp.Count*h*w)
	for b := 0; b < kp.Batch; b++ {
		for k := 0; k < kp.Count; k++ {
			kx := kp.Value[(b*kp.Count+k)*2]
			ky := kp.Value[(b*kp.Count+k)*2+1]
			base := (b*kp.Count + k) * h * w

			for p := 0; p < h*w; p++ {
				dx := grid[p*2] - kx
				dy := grid[p*2+1] - ky
				out[base+p] = float32(math.Exp(float64(-0.5 * (dx*dx + dy*dy) / variance)))
			}
		}
	}

	return out, nil
}

// CreateHeatmapRepresentations builds the difference heatmap
// Gaussian(driving) - Gaussian(source) per keypoint and prepends an
// all-zero background channel.
// Output layout: [batch][count+1][1][h][w], flattened (the singleton
// axis aligns the heatmaps with the per-channel image dimension for
// later concatenation).
func CreateHeatmapRepresentations(kpDriving, kpSource *KeypointSet, h, w int, variance float32) ([]float32, error) {
	if kpDriving.Batch != kpSource.Batch || kpDriving.Count != kpSource.Count {
		return nil, fmt.Errorf("heatmap: keypoint shape mismatch (%d, %d) vs (%d, %d)",
			kpDriving.Batch, kpDriving.Count, kpSource.Batch, kpSource.Count)
	}

	gaussianDriving, err := KeypointsToGaussian(kpDriving, h, w, variance)
	if err != nil {
		return nil, err
	}
	gaussianSource, err := KeypointsToGaussian(kpSource, h, w, variance)
	if err != nil {
		return nil, err
	}

	batch := kpDriving.Batch
	count := kpDriving.Count
	plane := h * w
	out := make([]float32, batch*(count+1)*plane)

	for b := 0; b < batch; b++ {
		// Channel 0 stays zero: the background does not move.
		for k := 0; k < count; k++ {
			src := (b*count + k) * plane
			dst := (b*(count+1) + k + 1) * plane
			for p := 0; p < plane; p++ {
				out[dst+p] = gaussianDriving[src+p] - gaussianSource[src+p]
			}
		}
	}

	return out, nil
}
