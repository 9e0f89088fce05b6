package vae

import (
	"fmt"

	"github.com/born-ml/vae/internal/errs"
)

// Final layer geometry. The transposed convolution overshoots by one pixel
// and the k2 convolution trims it back.
const (
	FinalStride  = 2
	FinalPadding = 1
	TrimKernel   = 2
)

// CNNConfig sizes a convolutional VAE.
type CNNConfig struct {
	ChannelIn  int
	LatentDim  int
	HiddenDims []int // encoder channels

	DecoderDims []int // decoder channels, DecoderDims[0] is the seed depth
	SeedSize    int   // spatial size decoder_input is reshaped to
	FinalKernel int   // kernel of the final transposed convolution
}

// DefaultCNNConfig returns the architecture that reconstructs 90x90 inputs.
func DefaultCNNConfig(channelIn, latentDim int) CNNConfig {
	return CNNConfig{
		ChannelIn:   channelIn,
		LatentDim:   latentDim,
		HiddenDims:  []int{32, 64, 128, 256},
		DecoderDims: []int{256, 128, 64, 64, 64},
		SeedSize:    2,
		FinalKernel: 31,
	}
}

// Size is a spatial height and width.
type Size struct{ H, W int }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.H, s.W) }

// Plan is the shape of every stage of a CNN VAE for one input size.
type Plan struct {
	Input   Size
	Encoder []Size // after each encoder block
	Flat    int    // encoder output flattened per sample
	Seed    Size   // decoder_input reshaped spatial size
	Decoder []Size // after each decoder block
	Final   Size   // after the final transposed convolution
	Output  Size   // reconstruction
}

// Validate checks the configuration values themselves.
func (c CNNConfig) Validate() error {
	switch {
	case c.ChannelIn <= 0:
		return fmt.Errorf("%w: channel_in must be positive, got %d", errs.ErrConfiguration, c.ChannelIn)
	case c.LatentDim <= 0:
		return fmt.Errorf("%w: latent_dim must be positive, got %d", errs.ErrConfiguration, c.LatentDim)
	case len(c.HiddenDims) == 0:
		return fmt.Errorf("%w: hidden_dims must not be empty", errs.ErrConfiguration)
	case len(c.DecoderDims) == 0:
		return fmt.Errorf("%w: decoder dims must not be empty", errs.ErrConfiguration)
	case c.SeedSize <= 0:
		return fmt.Errorf("%w: seed size must be positive, got %d", errs.ErrConfiguration, c.SeedSize)
	case c.FinalKernel <= 0:
		return fmt.Errorf("%w: final kernel must be positive, got %d", errs.ErrConfiguration, c.FinalKernel)
	}
	for _, dims := range [][]int{c.HiddenDims, c.DecoderDims} {
		for _, d := range dims {
			if d <= 0 {
				return fmt.Errorf("%w: channel counts must be positive, got %v", errs.ErrConfiguration, dims)
			}
		}
	}
	return nil
}

// PlanCNN computes every stage's spatial size for an inputH x inputW
// input. It fails with errs.ErrShapeMismatch when a stage collapses, when
// the encoder does not end at the decoder seed area, or when the
// reconstruction size differs from the input.
func PlanCNN(cfg CNNConfig, inputH, inputW int) (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}
	p := Plan{Input: Size{inputH, inputW}}

	cur := p.Input
	for i, b := range EncoderBlocks(cfg.ChannelIn, cfg.HiddenDims) {
		cur = Size{b.OutputSize(cur.H), b.OutputSize(cur.W)}
		if cur.H <= 0 || cur.W <= 0 {
			return Plan{}, fmt.Errorf("%w: encoder block %d collapses %v input to %v",
				errs.ErrShapeMismatch, i, p.Input, cur)
		}
		p.Encoder = append(p.Encoder, cur)
	}
	p.Flat = cfg.HiddenDims[len(cfg.HiddenDims)-1] * cur.H * cur.W

	p.Seed = Size{cfg.SeedSize, cfg.SeedSize}
	if cur.H*cur.W != p.Seed.H*p.Seed.W {
		return Plan{}, fmt.Errorf("%w: encoder output %v does not match decoder seed %v for %v input",
			errs.ErrShapeMismatch, cur, p.Seed, p.Input)
	}

	cur = p.Seed
	for _, b := range DecoderBlocks(cfg.DecoderDims) {
		cur = Size{b.OutputSize(cur.H), b.OutputSize(cur.W)}
		p.Decoder = append(p.Decoder, cur)
	}

	final := DeconvBlock{Kernel: cfg.FinalKernel, Stride: FinalStride, Padding: FinalPadding}
	p.Final = Size{final.OutputSize(cur.H), final.OutputSize(cur.W)}
	trim := ConvBlock{Kernel: TrimKernel, Stride: 1}
	p.Output = Size{trim.OutputSize(p.Final.H), trim.OutputSize(p.Final.W)}

	if p.Output != p.Input {
		return Plan{}, fmt.Errorf("%w: decoder reconstructs %v, input is %v",
			errs.ErrShapeMismatch, p.Output, p.Input)
	}
	return p, nil
}
