package ops

import "github.com/born-ml/vae/internal/tensor"

// BCEOp records the summed binary cross-entropy between pred and target.
// The target is data, so it receives no gradient.
type BCEOp struct {
	pred, target *tensor.RawTensor
	output       *tensor.RawTensor
}

// NewBCEOp creates a new BCEOp.
func NewBCEOp(pred, target, output *tensor.RawTensor) *BCEOp {
	return &BCEOp{pred: pred, target: target, output: output}
}

// Backward returns [dpred, nil].
func (op *BCEOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.BinaryCrossEntropyBackward(op.pred, op.target, outputGrad), nil}
}

// Inputs returns [pred, target].
func (op *BCEOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.pred, op.target}
}

// Output returns the scalar loss.
func (op *BCEOp) Output() *tensor.RawTensor {
	return op.output
}
