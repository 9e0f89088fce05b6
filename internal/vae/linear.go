package vae

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// LinearVAE is a fully connected VAE.
//
//	encoder: Linear(D, d²) -> ReLU, then heads fc_mu and fc_logvar (d², d)
//	decoder: Linear(d, d²) -> ReLU -> Linear(d², D) -> Sigmoid
//
// where d is the latent dimension (d² = 400 for the default d = 20). The
// two heads together are the single Linear(d², 2d) whose output halves
// are mu and logvar.
type LinearVAE[B tensor.Backend] struct {
	inputDim  int
	latentDim int

	encoder  *nn.Sequential[B]
	fcMu     *nn.Linear[B]
	fcLogvar *nn.Linear[B]
	decoder  *nn.Sequential[B]

	noise *rand.Rand
}

// NewLinearVAE creates a linear VAE for inputDim-sized samples.
func NewLinearVAE[B tensor.Backend](inputDim, latentDim int, rng *rand.Rand, backend B) (*LinearVAE[B], error) {
	if inputDim <= 0 || latentDim <= 0 {
		return nil, fmt.Errorf("%w: linear vae needs positive sizes, got input %d latent %d",
			errs.ErrConfiguration, inputDim, latentDim)
	}
	hidden := latentDim * latentDim

	return &LinearVAE[B]{
		inputDim:  inputDim,
		latentDim: latentDim,
		encoder: nn.NewSequential[B](
			nn.NewLinear(inputDim, hidden, rng, backend),
			nn.NewReLU[B](),
		),
		fcMu:     nn.NewLinear(hidden, latentDim, rng, backend),
		fcLogvar: nn.NewLinear(hidden, latentDim, rng, backend),
		decoder: nn.NewSequential[B](
			nn.NewLinear(latentDim, hidden, rng, backend),
			nn.NewReLU[B](),
			nn.NewLinear(hidden, inputDim, rng, backend),
			nn.NewSigmoid[B](),
		),
		noise: rng,
	}, nil
}

func (m *LinearVAE[B]) parts() []part[B] {
	return []part[B]{
		{"encoder", m.encoder},
		{"fc_mu", m.fcMu},
		{"fc_logvar", m.fcLogvar},
		{"decoder", m.decoder},
	}
}

// Encode flattens x to [batch, D] and returns (mu, logvar).
func (m *LinearVAE[B]) Encode(x *tensor.Tensor[float32, B], mode nn.Mode) (mu, logvar *tensor.Tensor[float32, B]) {
	if x.NumElements()%m.inputDim != 0 {
		panic(fmt.Sprintf("LinearVAE.Encode: input %v is not a batch of %d-element samples", x.Shape(), m.inputDim))
	}
	h := m.encoder.Forward(x.Reshape(-1, m.inputDim), mode)
	return m.fcMu.Forward(h, mode), m.fcLogvar.Forward(h, mode)
}

// Decode returns [batch, D] reconstructions.
func (m *LinearVAE[B]) Decode(z *tensor.Tensor[float32, B], mode nn.Mode) *tensor.Tensor[float32, B] {
	return m.decoder.Forward(z, mode)
}

// Forward returns (reconstruction, mu, logvar).
func (m *LinearVAE[B]) Forward(x *tensor.Tensor[float32, B], mode nn.Mode) (xHat, mu, logvar *tensor.Tensor[float32, B]) {
	mu, logvar = m.Encode(x, mode)
	z := Reparameterize(mu, logvar, mode, m.noise)
	return m.Decode(z, mode), mu, logvar
}

// Parameters returns encoder, heads and decoder parameters in order.
func (m *LinearVAE[B]) Parameters() []*nn.Parameter[B] { return partsParameters(m.parts()) }

// StateDict returns all parameters under encoder., fc_mu., fc_logvar. and decoder.
func (m *LinearVAE[B]) StateDict() map[string]*tensor.RawTensor { return partsState(m.parts()) }

// LoadStateDict loads a state dict produced by StateDict.
func (m *LinearVAE[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParts(m.parts(), stateDict)
}

// SetNoise replaces the reparameterization noise source.
func (m *LinearVAE[B]) SetNoise(rng *rand.Rand) { m.noise = rng }

// LatentDim returns the latent dimension.
func (m *LinearVAE[B]) LatentDim() int { return m.latentDim }

// InputDim returns the flattened sample size.
func (m *LinearVAE[B]) InputDim() int { return m.inputDim }

// Kind returns config.ModelLinear.
func (m *LinearVAE[B]) Kind() string { return config.ModelLinear }
