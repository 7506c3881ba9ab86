package motion

import (
	"errors"
	"fmt"
	"math"
)

// ErrSingularJacobian is returned when a driving jacobian cannot be
// inverted. Degenerate jacobians are a caller contract violation; no
// regularization is attempted.
var ErrSingularJacobian = errors.New("motion: singular driving jacobian")

// ErrJacobianMismatch is returned when jacobians are present on one
// keypoint set of a driving/source pair but not the other.
var ErrJacobianMismatch = errors.New("motion: jacobian present on only one keypoint set")

// KeypointSet holds normalized keypoint locations for a batch, with
// optional per-keypoint 2x2 jacobians describing local affine
// deformation.
type KeypointSet struct {
	Batch int
	Count int

	// Value holds (x, y) coordinates in [-1, 1].
	// Layout: [batch][count][2], flattened.
	Value []float32

	// Jacobian holds row-major 2x2 matrices, or nil when absent.
	// Layout: [batch][count][2][2], flattened.
	Jacobian []float32
}

// HasJacobian reports whether local affine estimates are present.
func (kp *KeypointSet) HasJacobian() bool {
	return kp.Jacobian != nil
}

// Validate checks that the slice lengths match the declared batch and
// keypoint count.
func (kp *KeypointSet) Validate() error {
	if kp.Batch <= 0 || kp.Count <= 0 {
		return fmt.Errorf("keypoints: non-positive shape (%d, %d)", kp.Batch, kp.Count)
	}
	if len(kp.Value) != kp.Batch*kp.Count*2 {
		return fmt.Errorf("keypoints: value length %d, shape wants %d", len(kp.Value), kp.Batch*kp.Count*2)
	}
	if kp.Jacobian != nil && len(kp.Jacobian) != kp.Batch*kp.Count*4 {
		return fmt.Errorf("keypoints: jacobian length %d, shape wants %d", len(kp.Jacobian), kp.Batch*kp.Count*4)
	}
	return nil
}

// jacobianAt returns the row-major 2x2 jacobian of keypoint k in batch b.
func (kp *KeypointSet) jacobianAt(b, k int) [4]float32 {
	base := (b*kp.Count + k) * 4
	return [4]float32{kp.Jacobian[base], kp.Jacobian[base+1], kp.Jacobian[base+2], kp.Jacobian[base+3]}
}

// invert2x2 inverts a row-major 2x2 matrix, failing on a determinant
// too close to zero.
func invert2x2(m [4]float32) ([4]float32, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(float64(det)) < 1e-8 {
		return [4]float32{}, ErrSingularJacobian
	}
	inv := 1 / det
	return [4]float32{m[3] * inv, -m[1] * inv, -m[2] * inv, m[0] * inv}, nil
}

// matmul2x2 multiplies two row-major 2x2 matrices.
func matmul2x2(a, b [4]float32) [4]float32 {
	return [4]float32{
		a[0]*b[0] + a[1]*b[2],
		a[0]*b[1] + a[1]*b[3],
		a[2]*b[0] + a[3]*b[2],
		a[2]*b[1] + a[3]*b[3],
	}
}
