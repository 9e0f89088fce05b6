package vae

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// CNNVAE is a convolutional VAE.
//
//	encoder:       [Conv2D(k7, s2, p1) -> BatchNorm2D -> LeakyReLU] per hidden dim
//	fc_mu:         Linear(flat, latent)
//	fc_logvar:     Linear(flat, latent)
//	decoder_input: Linear(latent, DecoderDims[0] * seed²), reshaped to (DecoderDims[0], seed, seed)
//	decoder:       [ConvTranspose2D(k3, s2, p1, op1) -> BatchNorm2D -> LeakyReLU] per dim pair
//	final_layer:   ConvTranspose2D(k, s2, p1) -> BatchNorm2D -> LeakyReLU -> Conv2D(k2) -> Sigmoid
//
// The input size is fixed at construction and checked against the
// decoder output there; see PlanCNN.
type CNNVAE[B tensor.Backend] struct {
	cfg  CNNConfig
	plan Plan

	encoder      *nn.Sequential[B]
	fcMu         *nn.Linear[B]
	fcLogvar     *nn.Linear[B]
	decoderInput *nn.Linear[B]
	decoder      *nn.Sequential[B]
	finalLayer   *nn.Sequential[B]

	noise *rand.Rand
}

// NewCNNVAE creates a CNN VAE for inputH x inputW inputs. It fails with
// errs.ErrShapeMismatch when the architecture cannot reconstruct that size.
func NewCNNVAE[B tensor.Backend](cfg CNNConfig, inputH, inputW int, rng *rand.Rand, backend B) (*CNNVAE[B], error) {
	plan, err := PlanCNN(cfg, inputH, inputW)
	if err != nil {
		return nil, err
	}

	seedDepth := cfg.DecoderDims[0]
	last := cfg.DecoderDims[len(cfg.DecoderDims)-1]
	seedArea := cfg.SeedSize * cfg.SeedSize

	return &CNNVAE[B]{
		cfg:          cfg,
		plan:         plan,
		encoder:      buildEncoder(EncoderBlocks(cfg.ChannelIn, cfg.HiddenDims), rng, backend),
		fcMu:         nn.NewLinear(plan.Flat, cfg.LatentDim, rng, backend),
		fcLogvar:     nn.NewLinear(plan.Flat, cfg.LatentDim, rng, backend),
		decoderInput: nn.NewLinear(cfg.LatentDim, seedDepth*seedArea, rng, backend),
		decoder:      buildDecoder(DecoderBlocks(cfg.DecoderDims), rng, backend),
		finalLayer: nn.NewSequential[B](
			nn.NewConvTranspose2D(last, last, cfg.FinalKernel, FinalStride, FinalPadding, 0, rng, backend),
			nn.NewBatchNorm2D(last, backend),
			nn.NewLeakyReLU[B](nn.LeakyReLUSlope),
			nn.NewConv2D(last, cfg.ChannelIn, TrimKernel, 1, 0, rng, backend),
			nn.NewSigmoid[B](),
		),
		noise: rng,
	}, nil
}

func (m *CNNVAE[B]) parts() []part[B] {
	return []part[B]{
		{"encoder", m.encoder},
		{"fc_mu", m.fcMu},
		{"fc_logvar", m.fcLogvar},
		{"decoder_input", m.decoderInput},
		{"decoder", m.decoder},
		{"final_layer", m.finalLayer},
	}
}

// Encode maps [batch, C, H, W] inputs to (mu, logvar).
func (m *CNNVAE[B]) Encode(x *tensor.Tensor[float32, B], mode nn.Mode) (mu, logvar *tensor.Tensor[float32, B]) {
	shape := x.Shape()
	in := m.plan.Input
	if len(shape) != 4 || shape[1] != m.cfg.ChannelIn || shape[2] != in.H || shape[3] != in.W {
		panic(fmt.Sprintf("CNNVAE.Encode: expected [N,%d,%d,%d] input, got %v", m.cfg.ChannelIn, in.H, in.W, shape))
	}
	h := m.encoder.Forward(x, mode).Reshape(shape[0], m.plan.Flat)
	return m.fcMu.Forward(h, mode), m.fcLogvar.Forward(h, mode)
}

// Decode maps [batch, latent] vectors to [batch, C, H, W] reconstructions.
func (m *CNNVAE[B]) Decode(z *tensor.Tensor[float32, B], mode nn.Mode) *tensor.Tensor[float32, B] {
	seed := m.decoderInput.Forward(z, mode).Reshape(-1, m.cfg.DecoderDims[0], m.cfg.SeedSize, m.cfg.SeedSize)
	return m.finalLayer.Forward(m.decoder.Forward(seed, mode), mode)
}

// Forward returns (reconstruction, mu, logvar).
func (m *CNNVAE[B]) Forward(x *tensor.Tensor[float32, B], mode nn.Mode) (xHat, mu, logvar *tensor.Tensor[float32, B]) {
	mu, logvar = m.Encode(x, mode)
	z := Reparameterize(mu, logvar, mode, m.noise)
	return m.Decode(z, mode), mu, logvar
}

// Plan returns the shape plan computed at construction.
func (m *CNNVAE[B]) Plan() Plan { return m.plan }

// Config returns the architecture configuration.
func (m *CNNVAE[B]) Config() CNNConfig { return m.cfg }

// Parameters returns all trainable parameters in state dict part order.
func (m *CNNVAE[B]) Parameters() []*nn.Parameter[B] { return partsParameters(m.parts()) }

// StateDict returns parameters and batch norm buffers.
func (m *CNNVAE[B]) StateDict() map[string]*tensor.RawTensor { return partsState(m.parts()) }

// LoadStateDict loads a state dict produced by StateDict.
func (m *CNNVAE[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParts(m.parts(), stateDict)
}

// SetNoise replaces the reparameterization noise source.
func (m *CNNVAE[B]) SetNoise(rng *rand.Rand) { m.noise = rng }

// LatentDim returns the latent dimension.
func (m *CNNVAE[B]) LatentDim() int { return m.cfg.LatentDim }

// Kind returns config.ModelCNN.
func (m *CNNVAE[B]) Kind() string { return config.ModelCNN }
