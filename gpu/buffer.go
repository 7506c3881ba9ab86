package gpu

import (
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// readbackTimeout bounds how long a staging-buffer map may take before
// the readback is abandoned.
const readbackTimeout = 2 * time.Second

// NewFloatBuffer creates a storage buffer initialized with float32 data.
func NewFloatBuffer(data []float32, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}

	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: wgpu.ToBytes(data),
		Usage:    usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %v", err)
	}
	return buf, nil
}

// ReadBuffer copies a device buffer through a staging buffer and
// returns its contents as float32 values.
func ReadBuffer(buffer *wgpu.Buffer, size int) ([]float32, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}

	sizeBytes := uint64(size * 4)
	stagingBuf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ReadStaging",
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create staging buffer: %v", err)
	}
	defer stagingBuf.Destroy()

	encoder, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %v", err)
	}
	encoder.CopyBufferToBuffer(buffer, 0, stagingBuf, 0, sizeBytes)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish command: %v", err)
	}
	c.Queue.Submit(cmd)

	if err := awaitMap(c, stagingBuf, sizeBytes); err != nil {
		return nil, err
	}

	data := stagingBuf.GetMappedRange(0, uint(sizeBytes))
	if data == nil {
		return nil, fmt.Errorf("failed to get mapped range")
	}

	result := make([]float32, size)
	copy(result, wgpu.FromBytes[float32](data))
	stagingBuf.Unmap()

	return result, nil
}

// awaitMap maps buf for reading and polls the device until the mapping
// callback fires or readbackTimeout expires.
func awaitMap(c *Context, buf *wgpu.Buffer, sizeBytes uint64) error {
	done := make(chan struct{})
	var mapErr error
	err := buf.MapAsync(wgpu.MapModeRead, 0, sizeBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return fmt.Errorf("MapAsync failed: %v", err)
	}

	deadline := time.Now().Add(readbackTimeout)
	for {
		c.Device.Poll(false, nil)
		select {
		case <-done:
			return mapErr
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("buffer readback timed out after %s", readbackTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}
