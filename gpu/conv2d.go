package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Conv2DSpec defines one batched 2D convolution dispatch.
type Conv2DSpec struct {
	Batch       int
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	InputHeight int
	InputWidth  int
	Weights     []float32 // [outC][inC][k][k]
	Bias        []float32 // [outC]
}

// generateConv2DShader creates the WGSL shader for the convolution
// forward pass. Layouts are NCHW, matching the CPU path.
func generateConv2DShader(s Conv2DSpec, outH, outW int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<f32>;      // [batch][inC][inH][inW]
@group(0) @binding(1) var<storage, read> kernel: array<f32>;     // [outC][inC][kH][kW]
@group(0) @binding(2) var<storage, read> bias: array<f32>;       // [outC]
@group(0) @binding(3) var<storage, read_write> output: array<f32>; // [batch][outC][outH][outW]

const BATCH: u32 = %du;
const IN_C: u32 = %du;
const OUT_C: u32 = %du;
const IN_H: u32 = %du;
const IN_W: u32 = %du;
const OUT_H: u32 = %du;
const OUT_W: u32 = %du;
const K_SIZE: u32 = %du;
const STRIDE: u32 = %du;
const PADDING: i32 = %d;

@compute @workgroup_size(256, 1, 1)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    let total = BATCH * OUT_C * OUT_H * OUT_W;
    if (idx >= total) { return; }

    // Decode indices: [b][oc][oh][ow]
    let b = idx / (OUT_C * OUT_H * OUT_W);
    let remainder1 = idx %% (OUT_C * OUT_H * OUT_W);
    let oc = remainder1 / (OUT_H * OUT_W);
    let remainder2 = remainder1 %% (OUT_H * OUT_W);
    let oh = remainder2 / OUT_W;
    let ow = remainder2 %% OUT_W;

    var sum = bias[oc];

    for (var ic: u32 = 0u; ic < IN_C; ic = ic + 1u) {
        for (var kh: u32 = 0u; kh < K_SIZE; kh = kh + 1u) {
            for (var kw: u32 = 0u; kw < K_SIZE; kw = kw + 1u) {
                let ih = i32(oh * STRIDE) + i32(kh) - PADDING;
                let iw = i32(ow * STRIDE) + i32(kw) - PADDING;

                if (ih >= 0 && ih < i32(IN_H) && iw >= 0 && iw < i32(IN_W)) {
                    let input_idx = b * IN_C * IN_H * IN_W +
                                   ic * IN_H * IN_W +
                                   u32(ih) * IN_W +
                                   u32(iw);
                    let kernel_idx = oc * IN_C * K_SIZE * K_SIZE +
                                    ic * K_SIZE * K_SIZE +
                                    kh * K_SIZE +
                                    kw;
                    sum = sum + input[input_idx] * kernel[kernel_idx];
                }
            }
        }
    }

    output[idx] = sum;
}
`, s.Batch, s.InChannels, s.OutChannels, s.InputHeight, s.InputWidth, outH, outW,
		s.KernelSize, s.Stride, s.Padding)
}

// Conv2DForward runs a batched convolution on the GPU and reads the
// result back to host memory.
func Conv2DForward(s Conv2DSpec, input []float32) ([]float32, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}

	outH := (s.InputHeight+2*s.Padding-s.KernelSize)/s.Stride + 1
	outW := (s.InputWidth+2*s.Padding-s.KernelSize)/s.Stride + 1

	inputSize := s.Batch * s.InChannels * s.InputHeight * s.InputWidth
	kernelSize := s.OutChannels * s.InChannels * s.KernelSize * s.KernelSize
	outputSize := s.Batch * s.OutChannels * outH * outW

	if len(input) != inputSize {
		return nil, fmt.Errorf("input size mismatch: got %d, expected %d", len(input), inputSize)
	}
	if len(s.Weights) != kernelSize {
		return nil, fmt.Errorf("kernel size mismatch: got %d, expected %d", len(s.Weights), kernelSize)
	}
	if len(s.Bias) != s.OutChannels {
		return nil, fmt.Errorf("bias size mismatch: got %d, expected %d", len(s.Bias), s.OutChannels)
	}

	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "conv2d_fwd_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: generateConv2DShader(s, outH, outW)},
	})
	if err != nil {
		return nil, fmt.Errorf("CreateShaderModule: %w", err)
	}
	defer module.Release()

	pipeline, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "conv2d_fwd_pipeline",
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

	kernelBuf, err := NewFloatBuffer(s.Weights, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer kernelBuf.Destroy()

	biasBuf, err := NewFloatBuffer(s.Bias, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer biasBuf.Destroy()

	outputBuf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "conv2d_output",
		Size:  uint64(outputSize * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	defer outputBuf.Destroy()

	bg, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "conv2d_fwd_bg",
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: inputBuf, Size: inputBuf.GetSize()},
			{Binding: 1, Buffer: kernelBuf, Size: kernelBuf.GetSize()},
			{Binding: 2, Buffer: biasBuf, Size: biasBuf.GetSize()},
			{Binding: 3, Buffer: outputBuf, Size: outputBuf.GetSize()},
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
	pass.DispatchWorkgroups(uint32((outputSize+255)/256), 1, 1)
	pass.End()
	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, err
	}
	c.Queue.Submit(cmd)

	return ReadBuffer(outputBuf, outputSize)
}
