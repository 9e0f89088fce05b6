// Package vae implements variational autoencoders on the nn layers: a
// fully connected VAE and a convolutional VAE, the reparameterization
// trick and the beta-weighted VAE loss.
package vae

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// Model is a VAE: an encoder to (mu, logvar), reparameterization and a
// decoder back to the input space.
type Model[B tensor.Backend] interface {
	nn.Stateful

	// Encode returns mu and logvar, each [batch, latent].
	Encode(x *tensor.Tensor[float32, B], mode nn.Mode) (mu, logvar *tensor.Tensor[float32, B])
	// Decode maps latent vectors to reconstructions in (0, 1).
	Decode(z *tensor.Tensor[float32, B], mode nn.Mode) *tensor.Tensor[float32, B]
	// Forward returns (reconstruction, mu, logvar).
	Forward(x *tensor.Tensor[float32, B], mode nn.Mode) (xHat, mu, logvar *tensor.Tensor[float32, B])

	// Parameters returns trainable parameters in a fixed order.
	Parameters() []*nn.Parameter[B]
	// SetNoise replaces the source of reparameterization noise.
	SetNoise(rng *rand.Rand)
	LatentDim() int
	// Kind is config.ModelCNN or config.ModelLinear.
	Kind() string
}

// New builds the model selected by params for samples of sampleShape
// ((C, H, W), or (D) for flattened samples).
func New[B tensor.Backend](params config.ModelParams, sampleShape tensor.Shape, rng *rand.Rand, backend B) (Model[B], error) {
	switch params.Model {
	case config.ModelCNN:
		if len(sampleShape) != 3 {
			return nil, fmt.Errorf("%w: cnn model needs (C, H, W) samples, got %v", errs.ErrShapeMismatch, sampleShape)
		}
		if sampleShape[0] != params.ChannelIn {
			return nil, fmt.Errorf("%w: data has %d channels, channel_in is %d",
				errs.ErrShapeMismatch, sampleShape[0], params.ChannelIn)
		}
		cfg := DefaultCNNConfig(params.ChannelIn, params.LatentDim)
		cfg.HiddenDims = append([]int(nil), params.HiddenDims...)
		if len(params.DecoderDims) > 0 {
			cfg.DecoderDims = append([]int(nil), params.DecoderDims...)
		}
		if params.FinalKernel > 0 {
			cfg.FinalKernel = params.FinalKernel
		}
		return NewCNNVAE(cfg, sampleShape[1], sampleShape[2], rng, backend)
	case config.ModelLinear:
		return NewLinearVAE(sampleShape.NumElements(), params.LatentDim, rng, backend)
	default:
		return nil, fmt.Errorf("%w: unknown model %q", errs.ErrConfiguration, params.Model)
	}
}

// part names a sub-module in the state dict.
type part[B tensor.Backend] struct {
	name   string
	module nn.Module[B]
}

func partsState[B tensor.Backend](parts []part[B]) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for _, p := range parts {
		nn.Prefix(state, p.name, p.module.StateDict())
	}
	return state
}

func loadParts[B tensor.Backend](parts []part[B], stateDict map[string]*tensor.RawTensor) error {
	for _, p := range parts {
		if err := p.module.LoadStateDict(nn.Sub(stateDict, p.name)); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}

func partsParameters[B tensor.Backend](parts []part[B]) []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, p := range parts {
		params = append(params, p.module.Parameters()...)
	}
	return params
}
