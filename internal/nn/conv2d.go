package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vae/internal/tensor"
)

// Conv2D is a 2D convolutional layer with square kernels and bias.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel) / stride + 1
//	out_w = (width + 2*padding - kernel) / stride + 1
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernel      int
	stride      int
	padding     int

	weight *Parameter[B]
	bias   *Parameter[B]
}

// NewConv2D creates a convolution with Xavier-initialized weights.
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernel, stride, padding int, rng *rand.Rand, backend B) *Conv2D[B] {
	checkConvArgs("conv2d", inChannels, outChannels, kernel, stride, padding)

	fanIn := inChannels * kernel * kernel
	fanOut := outChannels * kernel * kernel
	weight := Xavier(fanIn, fanOut, tensor.Shape{outChannels, inChannels, kernel, kernel}, rng, backend)

	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernel:      kernel,
		stride:      stride,
		padding:     padding,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", Zeros(tensor.Shape{outChannels}, backend)),
	}
}

func checkConvArgs(name string, inChannels, outChannels, kernel, stride, padding int) {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("%s: invalid channels in=%d, out=%d", name, inChannels, outChannels))
	}
	if kernel <= 0 {
		panic(fmt.Sprintf("%s: invalid kernel size %d", name, kernel))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %d", name, stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("%s: invalid padding %d", name, padding))
	}
}

// Forward performs the convolution and adds the bias.
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	backend := input.Backend()
	out := tensor.New[float32, B](backend.Conv2D(input.Raw(), c.weight.Raw(), c.stride, c.padding), backend)
	return out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns [weight, bias].
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.bias}
}

// StateDict returns {"weight", "bias"}.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": c.weight.Raw(),
		"bias":   c.bias.Raw(),
	}
}

// LoadStateDict loads weight and bias.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadInto(c.weight.Raw(), stateDict, "weight"); err != nil {
		return err
	}
	return loadInto(c.bias.Raw(), stateDict, "bias")
}

// OutputSize returns the spatial output size for an h x w input.
func (c *Conv2D[B]) OutputSize(h, w int) (int, int) {
	return Conv2DOutputSize(h, c.kernel, c.stride, c.padding), Conv2DOutputSize(w, c.kernel, c.stride, c.padding)
}

// String returns a string representation of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(%d, %d, kernel_size=%d, stride=%d, padding=%d)",
		c.inChannels, c.outChannels, c.kernel, c.stride, c.padding)
}

// Conv2DOutputSize is (size + 2*padding - kernel) / stride + 1.
func Conv2DOutputSize(size, kernel, stride, padding int) int {
	return (size+2*padding-kernel)/stride + 1
}

// ConvTranspose2DOutputSize is (size-1)*stride - 2*padding + kernel + outputPadding.
func ConvTranspose2DOutputSize(size, kernel, stride, padding, outputPadding int) int {
	return (size-1)*stride - 2*padding + kernel + outputPadding
}

// ConvTranspose2D is a transposed 2D convolution with bias.
//
// Weight shape: [in_channels, out_channels, kernel, kernel]
// Output size:  (size-1)*stride - 2*padding + kernel + output_padding
type ConvTranspose2D[B tensor.Backend] struct {
	inChannels    int
	outChannels   int
	kernel        int
	stride        int
	padding       int
	outputPadding int

	weight *Parameter[B]
	bias   *Parameter[B]
}

// NewConvTranspose2D creates a transposed convolution with Xavier-initialized weights.
func NewConvTranspose2D[B tensor.Backend](
	inChannels, outChannels int,
	kernel, stride, padding, outputPadding int,
	rng *rand.Rand,
	backend B,
) *ConvTranspose2D[B] {
	checkConvArgs("conv_transpose2d", inChannels, outChannels, kernel, stride, padding)
	if outputPadding < 0 || outputPadding >= stride {
		panic(fmt.Sprintf("conv_transpose2d: output padding %d must be in [0, stride=%d)", outputPadding, stride))
	}

	fanIn := outChannels * kernel * kernel
	fanOut := inChannels * kernel * kernel
	weight := Xavier(fanIn, fanOut, tensor.Shape{inChannels, outChannels, kernel, kernel}, rng, backend)

	return &ConvTranspose2D[B]{
		inChannels:    inChannels,
		outChannels:   outChannels,
		kernel:        kernel,
		stride:        stride,
		padding:       padding,
		outputPadding: outputPadding,
		weight:        NewParameter("weight", weight),
		bias:          NewParameter("bias", Zeros(tensor.Shape{outChannels}, backend)),
	}
}

// Forward performs the transposed convolution and adds the bias.
func (c *ConvTranspose2D[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	backend := input.Backend()
	raw := backend.ConvTranspose2D(input.Raw(), c.weight.Raw(), c.stride, c.padding, c.outputPadding)
	out := tensor.New[float32, B](raw, backend)
	return out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns [weight, bias].
func (c *ConvTranspose2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.bias}
}

// StateDict returns {"weight", "bias"}.
func (c *ConvTranspose2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": c.weight.Raw(),
		"bias":   c.bias.Raw(),
	}
}

// LoadStateDict loads weight and bias.
func (c *ConvTranspose2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadInto(c.weight.Raw(), stateDict, "weight"); err != nil {
		return err
	}
	return loadInto(c.bias.Raw(), stateDict, "bias")
}

// OutputSize returns the spatial output size for an h x w input.
func (c *ConvTranspose2D[B]) OutputSize(h, w int) (int, int) {
	return ConvTranspose2DOutputSize(h, c.kernel, c.stride, c.padding, c.outputPadding),
		ConvTranspose2DOutputSize(w, c.kernel, c.stride, c.padding, c.outputPadding)
}

// String returns a string representation of the layer.
func (c *ConvTranspose2D[B]) String() string {
	return fmt.Sprintf("ConvTranspose2D(%d, %d, kernel_size=%d, stride=%d, padding=%d, output_padding=%d)",
		c.inChannels, c.outChannels, c.kernel, c.stride, c.padding, c.outputPadding)
}
