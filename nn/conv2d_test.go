package nn

import (
	"math"
	"testing"
)

// TestConv2DKnownResult checks a 3x3 ones kernel against hand-computed
// sums
func TestConv2DKnownResult(t *testing.T) {
	conv := NewConv2D(1, 1, 3, 1, 1)
	for i := range conv.Weights {
		conv.Weights[i] = 1
	}
	conv.Bias[0] = 0

	input := []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	out := conv.Forward(input, 1, 3, 3)
	if len(out) != 9 {
		t.Fatalf("Expected 9 outputs, got %d", len(out))
	}

	// Center sums the whole image; corner (0,0) sums its 2x2 window
	if out[4] != 45 {
		t.Errorf("Center: expected 45, got %f", out[4])
	}
	if out[0] != 12 {
		t.Errorf("Corner: expected 12, got %f", out[0])
	}
}

// TestConv2DBias verifies the bias term is added once per output
func TestConv2DBias(t *testing.T) {
	conv := NewConv2D(1, 2, 1, 1, 0)
	conv.Weights[0] = 1 // filter 0: identity
	conv.Weights[1] = 0 // filter 1: zero
	conv.Bias[0] = 0.5
	conv.Bias[1] = -1

	out := conv.Forward([]float32{2, 4}, 1, 1, 2)
	want := []float32{2.5, 4.5, -1, -1}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("out[%d]: expected %f, got %f", i, want[i], out[i])
		}
	}
}

// TestConv2DOutputSize verifies stride and padding arithmetic
func TestConv2DOutputSize(t *testing.T) {
	conv := NewConv2D(3, 8, 7, 1, 3)
	h, w := conv.OutputSize(64, 48)
	if h != 64 || w != 48 {
		t.Errorf("7x7 pad 3: expected 64x48, got %dx%d", h, w)
	}

	strided := NewConv2D(3, 8, 3, 2, 1)
	h, w = strided.OutputSize(8, 8)
	if h != 4 || w != 4 {
		t.Errorf("3x3 stride 2 pad 1: expected 4x4, got %dx%d", h, w)
	}
}

// TestConv2DLoadState verifies state loading and its error paths
func TestConv2DLoadState(t *testing.T) {
	conv := NewConv2D(1, 1, 1, 1, 0)
	err := conv.LoadState(map[string][]float32{
		"head.weight": {3},
		"head.bias":   {-2},
	}, "head")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if conv.Weights[0] != 3 || conv.Bias[0] != -2 {
		t.Error("Parameters not restored")
	}

	if err := conv.LoadState(map[string][]float32{"head.weight": {3}}, "head"); err == nil {
		t.Error("Expected error for missing bias")
	}
	if err := conv.LoadState(map[string][]float32{
		"head.weight": {1, 2},
		"head.bias":   {0},
	}, "head"); err == nil {
		t.Error("Expected error for missized weight")
	}
}

// TestBatchNormInference checks the running-statistics form against
// the closed formula
func TestBatchNormInference(t *testing.T) {
	bn := NewBatchNorm2D(1)
	bn.RunningMean[0] = 1
	bn.RunningVar[0] = 4
	bn.Gamma[0] = 2
	bn.Beta[0] = 3

	input := []float32{1, 3, 5, -1}
	out := bn.Forward(input, 1, 2, 2)

	for i, x := range input {
		want := 2*(x-1)/float32(math.Sqrt(4+1e-5)) + 3
		if math.Abs(float64(out[i]-want)) > 1e-4 {
			t.Errorf("out[%d]: expected %f, got %f", i, want, out[i])
		}
	}
}

// TestBatchNormIdentityDefaults verifies fresh layers are near-identity
func TestBatchNormIdentityDefaults(t *testing.T) {
	bn := NewBatchNorm2D(2)
	input := []float32{0.5, -0.5, 2, -2, 1, 0, 3, -3}
	out := bn.Forward(input, 1, 2, 2)
	if diff := MaxAbsDiff(out, input); diff > 1e-4 {
		t.Errorf("Default batch norm should be near-identity, max diff %g", diff)
	}
}
