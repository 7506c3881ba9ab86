package nn

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"
)

// buildSafetensors assembles an in-memory safetensors blob from a
// header map and raw payload bytes
func buildSafetensors(t *testing.T, header map[string]TensorInfo, payload []byte) []byte {
	t.Helper()
	raw, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	data := make([]byte, 8, 8+len(raw)+len(payload))
	binary.LittleEndian.PutUint64(data, uint64(len(raw)))
	data = append(data, raw...)
	return append(data, payload...)
}

// TestParseSafetensorsF32 verifies the float32 fast path
func TestParseSafetensorsF32(t *testing.T) {
	values := []float32{1.5, -2.25, 0, 42}
	payload := make([]byte, 16)
	for i, v := range values {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}

	data := buildSafetensors(t, map[string]TensorInfo{
		"mask.weight": {DType: "F32", Shape: []int{2, 2}, Offsets: []int{0, 16}},
	}, payload)

	tensors, err := ParseSafetensors(data)
	if err != nil {
		t.Fatalf("ParseSafetensors failed: %v", err)
	}
	got, ok := tensors["mask.weight"]
	if !ok {
		t.Fatal("Tensor mask.weight missing")
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("got[%d]: expected %f, got %f", i, values[i], got[i])
		}
	}
}

// TestParseSafetensorsHalfPrecision verifies F16 and BF16 widening
func TestParseSafetensorsHalfPrecision(t *testing.T) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint16(payload[0:], 0x3C00) // f16 1.0
	binary.LittleEndian.PutUint16(payload[2:], 0xC000) // f16 -2.0
	binary.LittleEndian.PutUint16(payload[4:], 0x3F80) // bf16 1.0
	binary.LittleEndian.PutUint16(payload[6:], 0xC0A0) // bf16 -5.0

	data := buildSafetensors(t, map[string]TensorInfo{
		"a": {DType: "F16", Shape: []int{2}, Offsets: []int{0, 4}},
		"b": {DType: "BF16", Shape: []int{2}, Offsets: []int{4, 8}},
	}, payload)

	tensors, err := ParseSafetensors(data)
	if err != nil {
		t.Fatalf("ParseSafetensors failed: %v", err)
	}
	if a := tensors["a"]; a[0] != 1 || a[1] != -2 {
		t.Errorf("F16 tensor: expected [1, -2], got %v", a)
	}
	if b := tensors["b"]; b[0] != 1 || b[1] != -5 {
		t.Errorf("BF16 tensor: expected [1, -5], got %v", b)
	}
}

// TestParseSafetensorsErrors verifies malformed inputs fail cleanly
func TestParseSafetensorsErrors(t *testing.T) {
	if _, err := ParseSafetensors([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated header size")
	}

	data := buildSafetensors(t, map[string]TensorInfo{
		"a": {DType: "I64", Shape: []int{1}, Offsets: []int{0, 8}},
	}, make([]byte, 8))
	if _, err := ParseSafetensors(data); err == nil {
		t.Error("Expected error for unsupported dtype")
	}

	data = buildSafetensors(t, map[string]TensorInfo{
		"a": {DType: "F32", Shape: []int{4}, Offsets: []int{0, 16}},
	}, make([]byte, 4))
	if _, err := ParseSafetensors(data); err == nil {
		t.Error("Expected error for out-of-bounds data")
	}
}

// TestFloat16Subnormal verifies the subnormal widening branch
func TestFloat16Subnormal(t *testing.T) {
	// Smallest positive f16 subnormal: 2^-24
	got := float16ToFloat32(0x0001)
	want := float32(math.Ldexp(1, -24))
	if got != want {
		t.Errorf("Subnormal: expected %g, got %g", want, got)
	}

	if float16ToFloat32(0x8000) != 0 {
		t.Error("Negative zero should widen to zero")
	}
}
