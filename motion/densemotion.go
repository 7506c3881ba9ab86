package motion

import (
	"fmt"

	"github.com/openfluke/drift/gpu"
	"github.com/openfluke/drift/nn"
)

// Config fixes the construction-time parameters of a
// DenseMotionNetwork.
type Config struct {
	NumKeypoints int
	NumChannels  int

	// EstimateOcclusionMap adds the occlusion head. When false the
	// output carries no occlusion information at all.
	EstimateOcclusionMap bool

	// ScaleFactor below 1 runs the pipeline on an anti-alias
	// downsampled copy of the source image. Zero defaults to 1.
	ScaleFactor float32

	// KPVariance is the Gaussian heatmap variance. Zero defaults to
	// 0.01.
	KPVariance float32

	// Hourglass sizing.
	BlockExpansion int
	NumBlocks      int
	MaxFeatures    int
}

// Output is the result of one forward pass. All tensors are built
// fresh per call.
type Output struct {
	// SparseDeformed is the source image warped once per motion field.
	// Layout: [batch][K+1][channels][h][w].
	SparseDeformed []float32

	// Mask holds the per-keypoint combination weights; non-negative
	// and summing to 1 over the K+1 axis at every pixel.
	// Layout: [batch][K+1][h][w].
	Mask []float32

	// Deformation is the mask-weighted sum of the sparse motion
	// fields, the field used downstream to warp the full-resolution
	// source. Layout: [batch][h][w][2].
	Deformation []float32

	// OcclusionMap holds per-pixel warp confidence in (0, 1), or nil
	// when the occlusion head is disabled.
	// Layout: [batch][1][h][w].
	OcclusionMap []float32

	Batch  int
	Height int
	Width  int
}

// DenseMotionNetwork turns sparse keypoint correspondences into a
// dense deformation field and a combination mask. Learned parameters
// are fixed at construction; Forward holds no state across calls, so
// concurrent calls with different inputs are safe.
type DenseMotionNetwork struct {
	cfg Config

	hourglass nn.FeatureTransformer
	mask      *nn.Conv2D
	occlusion *nn.Conv2D
	down      *AntiAliasDownsampler

	useGPU bool
}

// NewDenseMotionNetwork constructs the network with randomly
// initialized parameters. Use LoadState or LoadCheckpoint to restore
// trained weights.
func NewDenseMotionNetwork(cfg Config) (*DenseMotionNetwork, error) {
	if cfg.NumKeypoints <= 0 || cfg.NumChannels <= 0 {
		return nil, fmt.Errorf("dense motion: non-positive keypoint or channel count")
	}
	if cfg.BlockExpansion <= 0 || cfg.NumBlocks <= 0 || cfg.MaxFeatures <= 0 {
		return nil, fmt.Errorf("dense motion: hourglass sizing must be positive")
	}
	if cfg.ScaleFactor == 0 {
		cfg.ScaleFactor = 1
	}
	if cfg.KPVariance == 0 {
		cfg.KPVariance = 0.01
	}

	inFeatures := (cfg.NumKeypoints + 1) * (cfg.NumChannels + 1)
	hourglass := nn.NewHourglass(cfg.BlockExpansion, inFeatures, cfg.NumBlocks, cfg.MaxFeatures)

	net := &DenseMotionNetwork{
		cfg:       cfg,
		hourglass: hourglass,
		mask:      nn.NewConv2D(hourglass.OutFilters(), cfg.NumKeypoints+1, 7, 1, 3),
	}
	if cfg.EstimateOcclusionMap {
		net.occlusion = nn.NewConv2D(hourglass.OutFilters(), 1, 7, 1, 3)
	}
	if cfg.ScaleFactor != 1 {
		down, err := NewAntiAliasDownsampler(cfg.NumChannels, cfg.ScaleFactor)
		if err != nil {
			return nil, err
		}
		net.down = down
	}

	return net, nil
}

// Config returns the construction-time configuration.
func (net *DenseMotionNetwork) Config() Config {
	return net.cfg
}

// EnableGPU initializes the WebGPU context and routes the hourglass,
// head convolutions and the warping sampler through it. Forward falls
// back to the CPU path per operation if a dispatch fails.
func (net *DenseMotionNetwork) EnableGPU() error {
	if err := gpu.EnsureGPU(); err != nil {
		return err
	}
	net.useGPU = true
	net.mask.UseGPU = true
	if net.occlusion != nil {
		net.occlusion.UseGPU = true
	}
	if hg, ok := net.hourglass.(*nn.Hourglass); ok {
		hg.SetGPU(true)
	}
	return nil
}

// LoadState restores all learned parameters from a named tensor map
// (safetensors naming: hourglass.encoder.down_blocks.N.conv.weight,
// mask.weight, occlusion.bias, ...).
func (net *DenseMotionNetwork) LoadState(tensors map[string][]float32) error {
	if hg, ok := net.hourglass.(*nn.Hourglass); ok {
		if err := hg.LoadState(tensors, "hourglass"); err != nil {
			return err
		}
	}
	if err := net.mask.LoadState(tensors, "mask"); err != nil {
		return err
	}
	if net.occlusion != nil {
		if err := net.occlusion.LoadState(tensors, "occlusion"); err != nil {
			return err
		}
	}
	return nil
}

// LoadCheckpoint restores all learned parameters from a safetensors
// file.
func (net *DenseMotionNetwork) LoadCheckpoint(path string) error {
	tensors, err := nn.LoadSafetensors(path)
	if err != nil {
		return err
	}
	return net.LoadState(tensors)
}

// validate enforces the call contract before any computation runs.
func (net *DenseMotionNetwork) validate(source *Image, kpDriving, kpSource *KeypointSet) error {
	if err := source.Validate(); err != nil {
		return err
	}
	if source.Channels != net.cfg.NumChannels {
		return fmt.Errorf("dense motion: source has %d channels, network expects %d",
			source.Channels, net.cfg.NumChannels)
	}
	if err := kpDriving.Validate(); err != nil {
		return err
	}
	if err := kpSource.Validate(); err != nil {
		return err
	}
	if kpDriving.Batch != source.Batch || kpSource.Batch != source.Batch {
		return fmt.Errorf("dense motion: batch mismatch (image %d, driving %d, source %d)",
			source.Batch, kpDriving.Batch, kpSource.Batch)
	}
	if kpDriving.Count != net.cfg.NumKeypoints || kpSource.Count != net.cfg.NumKeypoints {
		return fmt.Errorf("dense motion: keypoint count mismatch (driving %d, source %d, network expects %d)",
			kpDriving.Count, kpSource.Count, net.cfg.NumKeypoints)
	}
	if kpDriving.HasJacobian() != kpSource.HasJacobian() {
		return ErrJacobianMismatch
	}
	return nil
}

// Forward computes the dense motion field for one (source image,
// driving keypoints, source keypoints) triple.
func (net *DenseMotionNetwork) Forward(source *Image, kpDriving, kpSource *KeypointSet) (*Output, error) {
	if err := net.validate(source, kpDriving, kpSource); err != nil {
		return nil, err
	}

	if net.down != nil {
		source = net.down.Forward(source)
	}

	batch := source.Batch
	h := source.Height
	w := source.Width
	numKP := net.cfg.NumKeypoints
	entries := numKP + 1
	plane := h * w

	heatmaps, err := CreateHeatmapRepresentations(kpDriving, kpSource, h, w, net.cfg.KPVariance)
	if err != nil {
		return nil, err
	}
	sparseMotions, err := CreateSparseMotions(kpDriving, kpSource, h, w)
	if err != nil {
		return nil, err
	}
	deformed := net.deformSource(source, sparseMotions, entries)

	// Per entry, stack the heatmap channel on top of the warped image
	// channels, then fold the entry axis into the channel axis:
	// [batch][(K+1)*(C+1)][h][w].
	channels := source.Channels
	buf := make([]float32, batch*entries*(channels+1)*plane)
	for b := 0; b < batch; b++ {
		for e := 0; e < entries; e++ {
			dst := (b*entries + e) * (channels + 1) * plane
			copy(buf[dst:dst+plane], heatmaps[(b*entries+e)*plane:(b*entries+e+1)*plane])
			copy(buf[dst+plane:dst+(channels+1)*plane],
				deformed[(b*entries+e)*channels*plane:(b*entries+e+1)*channels*plane])
		}
	}

	prediction, err := net.hourglass.Transform(buf, batch, h, w)
	if err != nil {
		return nil, err
	}

	maskLogits := net.mask.Forward(prediction, batch, h, w)
	mask := nn.ChannelSoftmax(maskLogits, batch, entries, h, w)

	// Final deformation: per-pixel weighted sum of the sparse motion
	// fields under the mask.
	deformation := make([]float32, batch*plane*2)
	for b := 0; b < batch; b++ {
		for e := 0; e < entries; e++ {
			motionBase := (b*entries + e) * plane * 2
			maskBase := (b*entries + e) * plane
			outBase := b * plane * 2
			for p := 0; p < plane; p++ {
				m := mask[maskBase+p]
				deformation[outBase+p*2] += sparseMotions[motionBase+p*2] * m
				deformation[outBase+p*2+1] += sparseMotions[motionBase+p*2+1] * m
			}
		}
	}

	out := &Output{
		SparseDeformed: deformed,
		Mask:           mask,
		Deformation:    deformation,
		Batch:          batch,
		Height:         h,
		Width:          w,
	}

	if net.occlusion != nil {
		occlusion := net.occlusion.Forward(prediction, batch, h, w)
		nn.ApplySigmoid(occlusion)
		out.OcclusionMap = occlusion
	}

	return out, nil
}

// deformSource warps the source per motion field, on the GPU when
// enabled.
func (net *DenseMotionNetwork) deformSource(source *Image, sparseMotions []float32, entries int) []float32 {
	if net.useGPU {
		n := source.Batch * entries
		plane := source.Height * source.Width
		replicated := make([]float32, n*source.Channels*plane)
		for b := 0; b < source.Batch; b++ {
			frame := source.Data[b*source.Channels*plane : (b+1)*source.Channels*plane]
			for e := 0; e < entries; e++ {
				copy(replicated[(b*entries+e)*source.Channels*plane:], frame)
			}
		}
		out, err := gpu.GridSample(replicated, sparseMotions, n, source.Channels, source.Height, source.Width)
		if err == nil {
			return out
		}
		fmt.Printf("dense motion: gpu warp failed (%v), falling back to cpu\n", err)
	}
	return CreateDeformedSource(source, sparseMotions, entries)
}
