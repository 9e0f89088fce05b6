package ops

import "github.com/born-ml/vae/internal/tensor"

// BatchNorm2DOp records per-channel batch normalization of [N, C, H, W].
//
// mean and variance are constants captured at forward time. When they were
// computed from the batch itself (training), batchStats is set and the
// input gradient includes the terms through the statistics.
type BatchNorm2DOp struct {
	x, gamma, beta *tensor.RawTensor
	mean, variance *tensor.RawTensor
	output         *tensor.RawTensor
	eps            float32
	batchStats     bool
}

// NewBatchNorm2DOp creates a new BatchNorm2DOp.
func NewBatchNorm2DOp(x, gamma, beta, mean, variance, output *tensor.RawTensor, eps float32, batchStats bool) *BatchNorm2DOp {
	return &BatchNorm2DOp{
		x:          x,
		gamma:      gamma,
		beta:       beta,
		mean:       mean,
		variance:   variance,
		output:     output,
		eps:        eps,
		batchStats: batchStats,
	}
}

// Backward returns [dx, dgamma, dbeta].
func (op *BatchNorm2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dx, dgamma, dbeta := backend.BatchNorm2DBackward(op.x, op.gamma, op.mean, op.variance, outputGrad, op.eps, op.batchStats)
	return []*tensor.RawTensor{dx, dgamma, dbeta}
}

// Inputs returns [x, gamma, beta].
func (op *BatchNorm2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.x, op.gamma, op.beta}
}

// Output returns the normalized tensor.
func (op *BatchNorm2DOp) Output() *tensor.RawTensor {
	return op.output
}
