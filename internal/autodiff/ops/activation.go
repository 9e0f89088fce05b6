package ops

import "github.com/born-ml/vae/internal/tensor"

// LeakyReLUOp represents output = x if x > 0 else slope*x.
// ReLU is the slope 0 case.
//
// Backward pass:
//   - d/dx = 1 if x > 0, else slope
type LeakyReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	slope  float32
}

// NewLeakyReLUOp creates a new LeakyReLUOp.
func NewLeakyReLUOp(input, output *tensor.RawTensor, slope float32) *LeakyReLUOp {
	return &LeakyReLUOp{input: input, output: output, slope: slope}
}

// NewReLUOp creates a LeakyReLUOp with slope 0.
func NewReLUOp(input, output *tensor.RawTensor) *LeakyReLUOp {
	return NewLeakyReLUOp(input, output, 0)
}

// Backward computes the input gradient.
func (op *LeakyReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	m := mask("leaky_relu", op.input, func(v float32) float32 {
		if v > 0 {
			return 1
		}
		return op.slope
	})
	return []*tensor.RawTensor{backend.Mul(outputGrad, m)}
}

// Inputs returns [x].
func (op *LeakyReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the activation.
func (op *LeakyReLUOp) Output() *tensor.RawTensor { return op.output }

// SigmoidOp represents output = 1 / (1 + e^-x).
//
// Backward pass:
//   - d/dx = output * (1 - output)
type SigmoidOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(input, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{input: input, output: output}
}

// Backward computes the input gradient from the saved output.
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	// 1 - s
	oneMinus := backend.AddScalar(backend.MulScalar(op.output, -1), 1)
	local := backend.Mul(op.output, oneMinus)
	return []*tensor.RawTensor{backend.Mul(outputGrad, local)}
}

// Inputs returns [x].
func (op *SigmoidOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns sigmoid(x).
func (op *SigmoidOp) Output() *tensor.RawTensor { return op.output }
