package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// generateGridSampleShader creates the WGSL shader for bilinear grid
// sampling with align-corners coordinates and zero padding, matching
// the CPU sampler exactly.
func generateGridSampleShader(n, channels, h, w int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<f32>;       // [n][C][h][w]
@group(0) @binding(1) var<storage, read> grid: array<f32>;        // [n][h][w][2], (x, y) in [-1, 1]
@group(0) @binding(2) var<storage, read_write> output: array<f32>; // [n][C][h][w]

const N: u32 = %du;
const C: u32 = %du;
const H: u32 = %du;
const W: u32 = %du;

@compute @workgroup_size(256, 1, 1)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    let total = N * C * H * W;
    if (idx >= total) { return; }

    // Decode indices: [n][c][i][j]
    let n = idx / (C * H * W);
    let remainder1 = idx %% (C * H * W);
    let c = remainder1 / (H * W);
    let remainder2 = remainder1 %% (H * W);
    let i = remainder2 / W;
    let j = remainder2 %% W;

    let g = n * H * W * 2u + i * W * 2u + j * 2u;
    // Align corners: -1/+1 map to the first/last pixel centers
    let fx = (grid[g] + 1.0) * 0.5 * f32(W - 1u);
    let fy = (grid[g + 1u] + 1.0) * 0.5 * f32(H - 1u);

    let x0 = i32(floor(fx));
    let y0 = i32(floor(fy));
    let x1 = x0 + 1;
    let y1 = y0 + 1;
    let wx = fx - f32(x0);
    let wy = fy - f32(y0);

    let base = n * C * H * W + c * H * W;
    var sum: f32 = 0.0;

    if (y0 >= 0 && y0 < i32(H) && x0 >= 0 && x0 < i32(W)) {
        sum = sum + input[base + u32(y0) * W + u32(x0)] * (1.0 - wy) * (1.0 - wx);
    }
    if (y0 >= 0 && y0 < i32(H) && x1 >= 0 && x1 < i32(W)) {
        sum = sum + input[base + u32(y0) * W + u32(x1)] * (1.0 - wy) * wx;
    }
    if (y1 >= 0 && y1 < i32(H) && x0 >= 0 && x0 < i32(W)) {
        sum = sum + input[base + u32(y1) * W + u32(x0)] * wy * (1.0 - wx);
    }
    if (y1 >= 0 && y1 < i32(H) && x1 >= 0 && x1 < i32(W)) {
        sum = sum + input[base + u32(y1) * W + u32(x1)] * wy * wx;
    }

    output[idx] = sum;
}
`, n, channels, h, w)
}

// GridSample bilinearly samples n images of shape [C][h][w] at the
// normalized coordinates given by grid ([n][h][w][2]) on the GPU.
func GridSample(input, grid []float32, n, channels, h, w int) ([]float32, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}

	inputSize := n * channels * h * w
	gridSize := n * h * w * 2
	if len(input) != inputSize {
		return nil, fmt.Errorf("input size mismatch: got %d, expected %d", len(input), inputSize)
	}
	if len(grid) != gridSize {
		return nil, fmt.Errorf("grid size mismatch: got %d, expected %d", len(grid), gridSize)
	}

	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "grid_sample_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: generateGridSampleShader(n, channels, h, w)},
	})
	if err != nil {
		return nil, fmt.Errorf("CreateShaderModule: %w", err)
	}
	defer module.Release()

	pipeline, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "grid_sample_pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return nil, err
	}
	defer pipeline.Release()

	inputBuf, err := NewFloatBuffer(input, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer inputBuf.Destroy()

	gridBuf, err := NewFloatBuffer(grid, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer gridBuf.Destroy()

	outputBuf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "grid_sample_output",
		Size:  uint64(inputSize * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	defer outputBuf.Destroy()

	bg, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "grid_sample_bg",
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: inputBuf, Size: inputBuf.GetSize()},
			{Binding: 1, Buffer: gridBuf, Size: gridBuf.GetSize()},
			{Binding: 2, Buffer: outputBuf, Size: outputBuf.GetSize()},
		},
	})
	if err != nil {
		return nil, err
	}
	defer bg.Release()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(uint32((inputSize+255)/256), 1, 1)
	pass.End()
	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, err
	}
	c.Queue.Submit(cmd)

	return ReadBuffer(outputBuf, inputSize)
}
