package ops

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// SumOp represents output = sum(x) as a scalar. Every input element
// receives the scalar output gradient.
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a new SumOp.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: input, output: output}
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{broadcastTo(outputGrad, op.input.Shape(), backend)}
}

// Inputs returns [x].
func (op *SumOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns sum(x).
func (op *SumOp) Output() *tensor.RawTensor { return op.output }

// SumDimOp represents a sum along one dimension.
//
// Backward pass: the gradient is expanded back along the reduced dimension.
type SumDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	if dim < 0 {
		dim += len(input.Shape())
	}
	return &SumDimOp{input: input, output: output, dim: dim, keepDim: keepDim}
}

// Backward expands outputGrad to the input shape.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		kept := op.input.Shape().Clone()
		kept[op.dim] = 1
		grad = backend.Reshape(grad, kept)
	}
	return []*tensor.RawTensor{broadcastTo(grad, op.input.Shape(), backend)}
}

// Inputs returns [x].
func (op *SumDimOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the reduced tensor.
func (op *SumDimOp) Output() *tensor.RawTensor { return op.output }

// broadcastTo expands grad to shape by adding it to zeros.
func broadcastTo(grad *tensor.RawTensor, shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	zeros, err := tensor.NewRaw(shape, grad.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("broadcastTo: failed to create result: %v", err))
	}
	if len(grad.Shape()) == 0 {
		grad = backend.Reshape(grad, tensor.Shape{1})
	}
	return backend.Add(zeros, grad)
}
