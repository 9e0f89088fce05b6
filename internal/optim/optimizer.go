// Package optim implements optimization algorithms for training neural networks.
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.001}, backend)
//
//	backend.Tape().StartRecording()
//	terms, _ := vae.Loss(x, xHat, mu, logvar, beta)
//	grads := autodiff.Backward(terms.Total, backend)
//	optimizer.Step(grads)
//	backend.Tape().Clear()
package optim

import (
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters in place.
	//
	// Takes the gradient map returned by autodiff.Backward. Parameters
	// without an entry are left unchanged.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// GetLR returns the current learning rate.
	GetLR() float32
}

// getGradient retrieves the gradient for a parameter, or nil when the
// parameter was not part of the computation.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Raw()]
}
