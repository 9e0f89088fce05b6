// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient
// tracking through a GradientTape.
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x, _ := tensor.FromSlice([]float32{2}, tensor.Shape{1}, backend)
//	y := x.Mul(x).Sum()
//	grads := autodiff.Backward(y, backend)
//	fmt.Println(grads[x.Raw()]) // dy/dx = 2x = 4
package autodiff

import (
	"github.com/born-ml/vae/internal/autodiff/ops"
	"github.com/born-ml/vae/internal/tensor"
)

// AutodiffBackend wraps a Backend and records differentiable operations
// on a GradientTape. It implements tensor.Backend.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

func (b *AutodiffBackend[B]) record(op ops.Operation) {
	b.tape.Record(op)
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.record(ops.NewAddOp(a, c, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(a, c)
	b.record(ops.NewSubOp(a, c, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(a, c)
	b.record(ops.NewMulOp(a, c, result))
	return result
}

// Div performs element-wise division and records the operation.
func (b *AutodiffBackend[B]) Div(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Div(a, c)
	b.record(ops.NewDivOp(a, c, result))
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(a, c)
	b.record(ops.NewMatMulOp(a, c, result))
	return result
}

// Reshape reshapes a tensor and records the operation.
//
// The result is a new header even when it shares the buffer, so the
// reshape must be on the tape for gradients to reach the source tensor.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	b.record(ops.NewReshapeOp(t, result))
	return result
}

// Transpose permutes axes and records the operation.
//
// Linear layers use weight.Transpose(); without TransposeOp the gradient
// would be computed for the transposed copy and never reach the weight.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	result := b.inner.Transpose(t, axes...)
	b.record(ops.NewTransposeOp(t, result, axes))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result := b.inner.MulScalar(x, scalar)
	b.record(ops.NewScalarOp(x, result, scalar))
	return result
}

// AddScalar adds a constant and records the operation.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result := b.inner.AddScalar(x, scalar)
	b.record(ops.NewScalarOp(x, result, 1))
	return result
}

// Exp computes e^x and records the operation.
func (b *AutodiffBackend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Exp(x)
	b.record(ops.NewExpOp(x, result))
	return result
}

// Log computes ln(x) and records the operation.
func (b *AutodiffBackend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Log(x)
	b.record(ops.NewLogOp(x, result))
	return result
}

// Clamp limits x to [lo, hi] and records the operation.
func (b *AutodiffBackend[B]) Clamp(x *tensor.RawTensor, lo, hi float32) *tensor.RawTensor {
	result := b.inner.Clamp(x, lo, hi)
	b.record(ops.NewClampOp(x, result, lo, hi))
	return result
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.record(ops.NewReLUOp(x, result))
	return result
}

// LeakyReLU applies a leaky rectifier and records the operation.
func (b *AutodiffBackend[B]) LeakyReLU(x *tensor.RawTensor, slope float32) *tensor.RawTensor {
	result := b.inner.LeakyReLU(x, slope)
	b.record(ops.NewLeakyReLUOp(x, result, slope))
	return result
}

// Sigmoid applies the logistic function and records the operation.
func (b *AutodiffBackend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sigmoid(x)
	b.record(ops.NewSigmoidOp(x, result))
	return result
}

// Sum reduces to a scalar and records the operation.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sum(x)
	b.record(ops.NewSumOp(x, result))
	return result
}

// SumDim sums along dim and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.SumDim(x, dim, keepDim)
	b.record(ops.NewSumDimOp(x, result, dim, keepDim))
	return result
}

// Conv2D performs a convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	return result
}

// Conv2DInputBackward delegates to the inner backend without recording.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, stride, padding)
}

// Conv2DKernelBackward delegates to the inner backend without recording.
func (b *AutodiffBackend[B]) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, grad, stride, padding)
}

// ConvTranspose2D performs a transposed convolution and records the operation.
func (b *AutodiffBackend[B]) ConvTranspose2D(input, kernel *tensor.RawTensor, stride, padding, outputPadding int) *tensor.RawTensor {
	result := b.inner.ConvTranspose2D(input, kernel, stride, padding, outputPadding)
	b.record(ops.NewConvTranspose2DOp(input, kernel, result, stride, padding, outputPadding))
	return result
}

// ChannelMoments computes batch statistics. They are not differentiated
// directly; BatchNorm2D accounts for them when normalizing the same input.
func (b *AutodiffBackend[B]) ChannelMoments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	mean, variance = b.inner.ChannelMoments(x)
	b.tape.markMoments(x, mean, variance)
	return mean, variance
}

// BatchNorm2D normalizes x and records the operation.
func (b *AutodiffBackend[B]) BatchNorm2D(x, gamma, beta, mean, variance *tensor.RawTensor, eps float32) *tensor.RawTensor {
	result := b.inner.BatchNorm2D(x, gamma, beta, mean, variance, eps)
	if b.tape.IsRecording() {
		batchStats := b.tape.fromBatch(x, mean, variance)
		b.record(ops.NewBatchNorm2DOp(x, gamma, beta, mean, variance, result, eps, batchStats))
	}
	return result
}

// BatchNorm2DBackward delegates to the inner backend without recording.
func (b *AutodiffBackend[B]) BatchNorm2DBackward(
	x, gamma, mean, variance, grad *tensor.RawTensor,
	eps float32,
	batchStats bool,
) (dx, dgamma, dbeta *tensor.RawTensor) {
	return b.inner.BatchNorm2DBackward(x, gamma, mean, variance, grad, eps, batchStats)
}

// BinaryCrossEntropy computes the summed BCE and records the operation.
func (b *AutodiffBackend[B]) BinaryCrossEntropy(pred, target *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.BinaryCrossEntropy(pred, target)
	b.record(ops.NewBCEOp(pred, target, result))
	return result
}

// BinaryCrossEntropyBackward delegates to the inner backend without recording.
func (b *AutodiffBackend[B]) BinaryCrossEntropyBackward(pred, target, grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.BinaryCrossEntropyBackward(pred, target, grad)
}
