package motion

import (
	"errors"
	"math/rand"
	"testing"
)

func randomKeypointSet(batch, count int, seed int64) *KeypointSet {
	rng := rand.New(rand.NewSource(seed))
	value := make([]float32, batch*count*2)
	for i := range value {
		value[i] = rng.Float32()*2 - 1
	}
	return &KeypointSet{Batch: batch, Count: count, Value: value}
}

// TestSparseMotionBackground verifies entry 0 always equals the
// identity grid, whatever the keypoints are
func TestSparseMotionBackground(t *testing.T) {
	kpDriving := randomKeypointSet(2, 3, 1)
	kpSource := randomKeypointSet(2, 3, 2)

	h, w := 6, 8
	motions, err := CreateSparseMotions(kpDriving, kpSource, h, w)
	if err != nil {
		t.Fatalf("CreateSparseMotions failed: %v", err)
	}

	grid, _ := MakeCoordinateGrid(h, w)
	entries := 4
	for b := 0; b < 2; b++ {
		base := b * entries * h * w * 2
		for i := 0; i < h*w*2; i++ {
			if motions[base+i] != grid[i] {
				t.Fatalf("Batch %d background differs from identity at %d", b, i)
			}
		}
	}
}

// TestSparseMotionIdentity verifies identical driving and source
// keypoints reduce every field to the identity grid
func TestSparseMotionIdentity(t *testing.T) {
	kp := randomKeypointSet(1, 4, 3)

	h, w := 8, 8
	motions, err := CreateSparseMotions(kp, kp, h, w)
	if err != nil {
		t.Fatalf("CreateSparseMotions failed: %v", err)
	}

	grid, _ := MakeCoordinateGrid(h, w)
	for e := 0; e < 5; e++ {
		base := e * h * w * 2
		for i := 0; i < h*w*2; i++ {
			if diff := motions[base+i] - grid[i]; diff > 1e-6 || diff < -1e-6 {
				t.Fatalf("Entry %d differs from identity at %d: %f", e, i, diff)
			}
		}
	}
}

// TestSparseMotionIdentityJacobian verifies identity jacobians give
// output numerically identical to the no-jacobian path
func TestSparseMotionIdentityJacobian(t *testing.T) {
	kpDriving := randomKeypointSet(1, 3, 4)
	kpSource := randomKeypointSet(1, 3, 5)

	h, w := 10, 10
	plain, err := CreateSparseMotions(kpDriving, kpSource, h, w)
	if err != nil {
		t.Fatalf("No-jacobian path failed: %v", err)
	}

	identity := make([]float32, 3*4)
	for k := 0; k < 3; k++ {
		identity[k*4] = 1
		identity[k*4+3] = 1
	}
	kpDriving.Jacobian = identity
	kpSource.Jacobian = append([]float32(nil), identity...)

	corrected, err := CreateSparseMotions(kpDriving, kpSource, h, w)
	if err != nil {
		t.Fatalf("Jacobian path failed: %v", err)
	}

	for i := range plain {
		if plain[i] != corrected[i] {
			t.Fatalf("Identity jacobian changed output at %d: %f vs %f", i, plain[i], corrected[i])
		}
	}
}

// TestSparseMotionSingularJacobian verifies degenerate driving
// jacobians fail fast
func TestSparseMotionSingularJacobian(t *testing.T) {
	kpDriving := randomKeypointSet(1, 1, 6)
	kpSource := randomKeypointSet(1, 1, 7)
	kpDriving.Jacobian = []float32{1, 2, 2, 4} // det 0
	kpSource.Jacobian = []float32{1, 0, 0, 1}

	_, err := CreateSparseMotions(kpDriving, kpSource, 4, 4)
	if !errors.Is(err, ErrSingularJacobian) {
		t.Errorf("Expected ErrSingularJacobian, got %v", err)
	}
}

// TestSparseMotionJacobianMismatch verifies asymmetric jacobian
// presence fails fast
func TestSparseMotionJacobianMismatch(t *testing.T) {
	kpDriving := randomKeypointSet(1, 2, 8)
	kpSource := randomKeypointSet(1, 2, 9)
	kpDriving.Jacobian = []float32{1, 0, 0, 1, 1, 0, 0, 1}

	_, err := CreateSparseMotions(kpDriving, kpSource, 4, 4)
	if !errors.Is(err, ErrJacobianMismatch) {
		t.Errorf("Expected ErrJacobianMismatch, got %v", err)
	}
}

// TestSparseMotionTranslation checks a pure translation keypoint pair
// against the closed form
func TestSparseMotionTranslation(t *testing.T) {
	// One keypoint moving by (+0.5, -0.25) from source to driving
	kpDriving := &KeypointSet{Batch: 1, Count: 1, Value: []float32{0.5, -0.25}}
	kpSource := &KeypointSet{Batch: 1, Count: 1, Value: []float32{0, 0}}

	h, w := 4, 4
	motions, err := CreateSparseMotions(kpDriving, kpSource, h, w)
	if err != nil {
		t.Fatalf("CreateSparseMotions failed: %v", err)
	}

	grid, _ := MakeCoordinateGrid(h, w)
	base := h * w * 2 // entry 1
	for p := 0; p < h*w; p++ {
		wantX := grid[p*2] - 0.5
		wantY := grid[p*2+1] + 0.25
		if d := motions[base+p*2] - wantX; d > 1e-6 || d < -1e-6 {
			t.Fatalf("x at %d: got %f, want %f", p, motions[base+p*2], wantX)
		}
		if d := motions[base+p*2+1] - wantY; d > 1e-6 || d < -1e-6 {
			t.Fatalf("y at %d: got %f, want %f", p, motions[base+p*2+1], wantY)
		}
	}
}
