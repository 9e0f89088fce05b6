package ops

import "github.com/born-ml/vae/internal/tensor"

// Conv2DOp records a 2D convolution.
//
// Forward: output = Conv2D(input, kernel, stride, padding)
//
// Backward:
//   - d_input:  transposed convolution of d_output with kernel
//   - d_kernel: correlation of input with d_output
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{input: input, kernel: kernel, output: output, stride: stride, padding: padding}
}

// Backward delegates both gradients to the backend.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	kernelGrad := backend.Conv2DKernelBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	return []*tensor.RawTensor{inputGrad, kernelGrad}
}

// Inputs returns [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the convolution result.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// ConvTranspose2DOp records a transposed convolution with kernel
// [C_in, C_out, K, K].
//
// A transposed convolution Y = T(X, W) is the input gradient of the
// convolution Z = Conv2D(Y, W), which maps [C_out, H_out] back to
// [C_in, H]. Its gradients are therefore expressed with that convolution:
//   - d_input  = Conv2D(d_output, W)
//   - d_kernel = Conv2DKernelBackward(input=d_output, grad=X)
type ConvTranspose2DOp struct {
	input         *tensor.RawTensor
	kernel        *tensor.RawTensor
	output        *tensor.RawTensor
	stride        int
	padding       int
	outputPadding int
}

// NewConvTranspose2DOp creates a new ConvTranspose2D operation.
func NewConvTranspose2DOp(input, kernel, output *tensor.RawTensor, stride, padding, outputPadding int) *ConvTranspose2DOp {
	return &ConvTranspose2DOp{
		input:         input,
		kernel:        kernel,
		output:        output,
		stride:        stride,
		padding:       padding,
		outputPadding: outputPadding,
	}
}

// Backward computes gradients for input and kernel.
//
// Output padding only adds trailing rows that no convolution window
// starting inside the input reaches, so the forward convolution over
// d_output recovers the input shape.
func (op *ConvTranspose2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2D(outputGrad, op.kernel, op.stride, op.padding)
	kernelGrad := backend.Conv2DKernelBackward(outputGrad, op.kernel, op.input, op.stride, op.padding)
	return []*tensor.RawTensor{inputGrad, kernelGrad}
}

// Inputs returns [input, kernel].
func (op *ConvTranspose2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the upsampled tensor.
func (op *ConvTranspose2DOp) Output() *tensor.RawTensor {
	return op.output
}
