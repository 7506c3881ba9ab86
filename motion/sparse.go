package motion

import (
	"fmt"
)

// CreateSparseMotions builds one coordinate-mapping field per keypoint
// plus an identity field for the background. Each keypoint field tells
// the warp, for every driving-pose pixel, which source-image coordinate
// it corresponds to:
//
//	T(z) = J_src * inv(J_drv) * (z - p_drv) + p_src
//
// The jacobian correction runs only when both keypoint sets carry
// jacobians; asymmetric presence fails with ErrJacobianMismatch.
// Output layout: [batch][count+1][h][w][2], flattened; entry 0 is the
// identity grid.
func CreateSparseMotions(kpDriving, kpSource *KeypointSet, h, w int) ([]float32, error) {
	if err := kpDriving.Validate(); err != nil {
		return nil, err
	}
	if err := kpSource.Validate(); err != nil {
		return nil, err
	}
	if kpDriving.Batch != kpSource.Batch || kpDriving.Count != kpSource.Count {
		return nil, fmt.Errorf("sparse motions: keypoint shape mismatch (%d, %d) vs (%d, %d)",
			kpDriving.Batch, kpDriving.Count, kpSource.Batch, kpSource.Count)
	}
	if kpDriving.HasJacobian() != kpSource.HasJacobian() {
		return nil, ErrJacobianMismatch
	}

	grid, err := MakeCoordinateGrid(h, w)
	if err != nil {
		return nil, err
	}

	batch := kpDriving.Batch
	count := kpDriving.Count
	useJacobian := kpDriving.HasJacobian()
	plane := h * w
	out := make([]float32, batch*(count+1)*plane*2)

	for b := 0; b < batch; b++ {
		// Entry 0: the untouched identity grid.
		copy(out[b*(count+1)*plane*2:], grid)

		for k := 0; k < count; k++ {
			dx := kpDriving.Value[(b*count+k)*2]
			dy := kpDriving.Value[(b*count+k)*2+1]
			sx := kpSource.Value[(b*count+k)*2]
			sy := kpSource.Value[(b*count+k)*2+1]

			// J = J_src * inv(J_drv), constant over the grid.
			jac := [4]float32{1, 0, 0, 1}
			if useJacobian {
				inv, err := invert2x2(kpDriving.jacobianAt(b, k))
				if err != nil {
					return nil, fmt.Errorf("keypoint %d, batch %d: %w", k, b, err)
				}
				jac = matmul2x2(kpSource.jacobianAt(b, k), inv)
			}

			base := (b*(count+1) + k + 1) * plane * 2
			for p := 0; p < plane; p++ {
				// Offset of this driving-pose pixel from the keypoint
				ox := grid[p*2] - dx
				oy := grid[p*2+1] - dy

				if useJacobian {
					ox, oy = jac[0]*ox+jac[1]*oy, jac[2]*ox+jac[3]*oy
				}

				out[base+p*2] = ox + sx
				out[base+p*2+1] = oy + sy
			}
		}
	}

	return out, nil
}
