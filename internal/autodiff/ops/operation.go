// Package ops defines the differentiable operations recorded by the
// autodiff tape.
//
// Each operation keeps references to its inputs and output from the forward
// pass and turns an output gradient into input gradients:
//   - AddOp, SubOp, MulOp, DivOp: element-wise arithmetic with broadcasting
//   - MatMulOp: d(A@B)/dA = grad@B^T, d(A@B)/dB = A^T@grad
//   - ReshapeOp, TransposeOp: layout changes
//   - ExpOp, LogOp, ClampOp, ScalarOp: element-wise math
//   - ReLUOp, LeakyReLUOp, SigmoidOp: activations
//   - SumOp, SumDimOp: reductions
//   - Conv2DOp, ConvTranspose2DOp, BatchNorm2DOp: convolutional layers
//   - BCEOp: summed binary cross-entropy
package ops

import "github.com/born-ml/vae/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The result is aligned with Inputs; a nil entry means no gradient
	// flows to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
