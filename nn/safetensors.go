package nn

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// TensorInfo describes one tensor in a safetensors header.
type TensorInfo struct {
	DType   string `json:"dtype"`
	Shape   []int  `json:"shape"`
	Offsets []int  `json:"data_offsets"`
}

// LoadSafetensors reads a safetensors file and returns every tensor as
// float32, keyed by name. F32, F16 and BF16 tensors are supported.
func LoadSafetensors(path string) (map[string][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseSafetensors(data)
}

// ParseSafetensors decodes safetensors data from a byte slice.
func ParseSafetensors(data []byte) (map[string][]float32, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short: need at least 8 bytes for header size")
	}

	headerSize := binary.LittleEndian.Uint64(data[0:8])
	if uint64(len(data)-8) < headerSize {
		return nil, fmt.Errorf("data too short: header size %d but only %d bytes available", headerSize, len(data)-8)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerSize], &header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	payload := data[8+headerSize:]
	tensors := make(map[string][]float32)

	for name, raw := range header {
		if name == "__metadata__" {
			continue
		}

		var info TensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("tensor %s: malformed header entry: %w", name, err)
		}

		count := 1
		for _, dim := range info.Shape {
			count *= dim
		}

		if len(info.Offsets) != 2 {
			return nil, fmt.Errorf("tensor %s: malformed data_offsets", name)
		}
		start := info.Offsets[0]

		values, err := decodeTensorData(payload, start, count, info.DType)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		tensors[name] = values
	}

	return tensors, nil
}

// decodeTensorData converts count elements of the given dtype starting
// at byte offset start into float32.
func decodeTensorData(payload []byte, start, count int, dtype string) ([]float32, error) {
	var width int
	switch dtype {
	case "F32":
		width = 4
	case "F16", "BF16":
		width = 2
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}

	if start < 0 || start+count*width > len(payload) {
		return nil, fmt.Errorf("data out of bounds")
	}

	values := make([]float32, count)
	for i := 0; i < count; i++ {
		off := start + i*width
		switch dtype {
		case "F32":
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off : off+4]))
		case "F16":
			values[i] = float16ToFloat32(binary.LittleEndian.Uint16(payload[off : off+2]))
		case "BF16":
			values[i] = bfloat16ToFloat32(binary.LittleEndian.Uint16(payload[off : off+2]))
		}
	}
	return values, nil
}

// float16ToFloat32 converts a half-precision value to float32.
func float16ToFloat32(f16 uint16) float32 {
	sign := uint32(f16>>15) & 0x1
	exponent := uint32(f16>>10) & 0x1F
	mantissa := uint32(f16) & 0x3FF

	var f32bits uint32
	switch {
	case exponent == 0 && mantissa == 0:
		f32bits = sign << 31
	case exponent == 0:
		// Subnormal: renormalize
		exponent = 1
		for mantissa&0x400 == 0 {
			mantissa <<= 1
			exponent--
		}
		mantissa &= 0x3FF
		f32bits = (sign << 31) | ((exponent + 127 - 15) << 23) | (mantissa << 13)
	case exponent == 0x1F:
		// Inf or NaN
		f32bits = (sign << 31) | (0xFF << 23) | (mantissa << 13)
	default:
		f32bits = (sign << 31) | ((exponent + 127 - 15) << 23) | (mantissa << 13)
	}

	return math.Float32frombits(f32bits)
}

// bfloat16ToFloat32 converts a bfloat16 value to float32.
func bfloat16ToFloat32(bf16 uint16) float32 {
	// bfloat16 is the top 16 bits of float32
	return math.Float32frombits(uint32(bf16) << 16)
}
