// Package nn implements the neural network layers of the VAE engine.
//
// This package provides building blocks for constructing networks:
//   - Module interface: Base interface for all layers
//   - Mode: Train/Eval switch passed to every forward pass
//   - Parameter: Trainable parameters
//   - Linear, Conv2D, ConvTranspose2D, BatchNorm2D
//   - Activations: ReLU, LeakyReLU, Sigmoid
//   - Sequential: Container for stacking layers
//   - Checkpoint: Model and optimizer snapshot in .born format
package nn

import (
	"github.com/born-ml/vae/internal/tensor"
)

// Mode selects training or inference behavior.
//
// BatchNorm2D uses batch statistics and updates its running averages in
// Train mode; in Eval mode it normalizes with the running averages.
type Mode int

// Modes.
const (
	Train Mode = iota
	Eval
)

// String returns "train" or "eval".
func (m Mode) String() string {
	if m == Eval {
		return "eval"
	}
	return "train"
}

// Stateful is implemented by anything that can be saved to and restored
// from a flat map of named tensors.
type Stateful interface {
	// StateDict returns every parameter and buffer by name. The tensors
	// are shared with the module, not copies.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values into the module. Missing names and
	// shape mismatches are errors.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	block := nn.NewSequential[B](
//	    nn.NewConv2D(2, 32, 7, 2, 1, rng, backend),
//	    nn.NewBatchNorm2D(32, backend),
//	    nn.NewLeakyReLU[B](0.01),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	Stateful

	// Forward computes the output of the module for the given mode.
	Forward(input *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module,
	// including nested module parameters. Buffers such as running
	// statistics are not parameters.
	Parameters() []*Parameter[B]
}
