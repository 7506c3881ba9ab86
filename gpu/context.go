package gpu

import (
	"fmt"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// Context holds the single WebGPU context for the process.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
}

var (
	ctx     Context
	ctxOnce sync.Once
)

// GetContext returns the singleton GPU context, initializing it on the
// first call. Adapter selection tries high-performance first, then low
// power, then whatever the platform offers.
func GetContext() (*Context, error) {
	var initErr error
	ctxOnce.Do(func() {
		ctx.Instance = wgpu.CreateInstance(nil)
		if ctx.Instance == nil {
			initErr = fmt.Errorf("failed to create WebGPU instance")
			return
		}

		opts := []*wgpu.RequestAdapterOptions{
			{PowerPreference: wgpu.PowerPreferenceHighPerformance},
			{PowerPreference: wgpu.PowerPreferenceLowPower},
			nil,
		}
		for _, opt := range opts {
			adapter, err := ctx.Instance.RequestAdapter(opt)
			if err == nil && adapter != nil {
				ctx.Adapter = adapter
				break
			}
			initErr = err
		}
		if ctx.Adapter == nil {
			initErr = fmt.Errorf("all adapter attempts failed: %v", initErr)
			return
		}

		info := ctx.Adapter.GetInfo()
		fmt.Printf("Using GPU Adapter: %s (Vendor: %s)\n", info.Name, info.VendorName)

		var err error
		ctx.Device, err = ctx.Adapter.RequestDevice(nil)
		if err != nil {
			initErr = err
			return
		}
		ctx.Queue = ctx.Device.GetQueue()
		initErr = nil
	})

	if initErr != nil {
		return nil, initErr
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, fmt.Errorf("WebGPU device or queue not initialized")
	}
	return &ctx, nil
}

// EnsureGPU initializes the GPU context if necessary.
func EnsureGPU() error {
	_, err := GetContext()
	return err
}
