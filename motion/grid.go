package motion

import (
	"fmt"
	"sync"
)

// gridCache holds one identity grid per spatial resolution. Cached
// grids are shared and must be treated as read-only.
var gridCache sync.Map

// MakeCoordinateGrid returns the normalized identity grid for the
// given spatial size: shape [h][w][2] (flattened), where element (i, j)
// is (x_j, y_i) with x spanning [-1, 1] across the columns and y
// spanning [-1, 1] across the rows. With align-corners semantics the
// first and last entries land exactly on -1 and +1.
func MakeCoordinateGrid(h, w int) ([]float32, error) {
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("coordinate grid: non-positive size %dx%d", h, w)
	}

	key := [2]int{h, w}
	if cached, ok := gridCache.Load(key); ok {
		return cached.([]float32), nil
	}

	grid := make([]float32, h*w*2)
	for i := 0; i < h; i++ {
		y := float32(0)
		if h > 1 {
			y = 2*float32(i)/float32(h-1) - 1
		}
		for j := 0; j < w; j++ {
			x := float32(0)
			if w > 1 {
				x = 2*float32(j)/float32(w-1) - 1
			}
			grid[(i*w+j)*2] = x
			grid[(i*w+j)*2+1] = y
		}
	}

	gridCache.Store(key, grid)
	return grid, nil
}
