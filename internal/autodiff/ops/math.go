package ops

import "github.com/born-ml/vae/internal/tensor"

// ExpOp represents output = exp(x). grad_x = outputGrad * output.
type ExpOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewExpOp creates a new ExpOp.
func NewExpOp(input, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{input: input, output: output}
}

// Backward computes the input gradient for exp.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// Inputs returns [x].
func (op *ExpOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns exp(x).
func (op *ExpOp) Output() *tensor.RawTensor { return op.output }

// LogOp represents output = ln(x). grad_x = outputGrad / x.
type LogOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLogOp creates a new LogOp.
func NewLogOp(input, output *tensor.RawTensor) *LogOp {
	return &LogOp{input: input, output: output}
}

// Backward computes the input gradient for log.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, op.input)}
}

// Inputs returns [x].
func (op *LogOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns ln(x).
func (op *LogOp) Output() *tensor.RawTensor { return op.output }

// ScalarOp represents output = x*scale + shift for constant scale and
// shift. grad_x = outputGrad * scale.
type ScalarOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	scale  float32
}

// NewScalarOp creates a new ScalarOp. Shifts do not affect the gradient,
// so only the scale is kept.
func NewScalarOp(input, output *tensor.RawTensor, scale float32) *ScalarOp {
	return &ScalarOp{input: input, output: output, scale: scale}
}

// Backward computes the input gradient.
func (op *ScalarOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if op.scale == 1 {
		return []*tensor.RawTensor{outputGrad}
	}
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scale)}
}

// Inputs returns [x].
func (op *ScalarOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the scaled tensor.
func (op *ScalarOp) Output() *tensor.RawTensor { return op.output }

// ClampOp represents output = clamp(x, lo, hi).
//
// The gradient passes through where lo <= x <= hi and is zero where the
// value was clipped.
type ClampOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	lo, hi float32
}

// NewClampOp creates a new ClampOp.
func NewClampOp(input, output *tensor.RawTensor, lo, hi float32) *ClampOp {
	return &ClampOp{input: input, output: output, lo: lo, hi: hi}
}

// Backward computes the input gradient for clamp.
func (op *ClampOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	m := mask("clamp", op.input, func(v float32) float32 {
		if v >= op.lo && v <= op.hi {
			return 1
		}
		return 0
	})
	return []*tensor.RawTensor{backend.Mul(outputGrad, m)}
}

// Inputs returns [x].
func (op *ClampOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the clamped tensor.
func (op *ClampOp) Output() *tensor.RawTensor { return op.output }
