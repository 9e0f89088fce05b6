package vae

import (
	"math/rand"

	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// Encoder and decoder block geometry.
const (
	EncoderKernel  = 7
	EncoderStride  = 2
	EncoderPadding = 1

	DecoderKernel        = 3
	DecoderStride        = 2
	DecoderPadding       = 1
	DecoderOutputPadding = 1
)

// ConvBlock describes Conv2D -> BatchNorm2D -> LeakyReLU.
type ConvBlock struct {
	In, Out                 int
	Kernel, Stride, Padding int
}

// OutputSize returns the spatial size after the block.
func (b ConvBlock) OutputSize(size int) int {
	return nn.Conv2DOutputSize(size, b.Kernel, b.Stride, b.Padding)
}

// DeconvBlock describes ConvTranspose2D -> BatchNorm2D -> LeakyReLU.
type DeconvBlock struct {
	In, Out                                int
	Kernel, Stride, Padding, OutputPadding int
}

// OutputSize returns the spatial size after the block.
func (b DeconvBlock) OutputSize(size int) int {
	return nn.ConvTranspose2DOutputSize(size, b.Kernel, b.Stride, b.Padding, b.OutputPadding)
}

// EncoderBlocks returns one k7/s2/p1 block per hidden dim, chaining
// channels from channelIn.
func EncoderBlocks(channelIn int, hidden []int) []ConvBlock {
	blocks := make([]ConvBlock, 0, len(hidden))
	in := channelIn
	for _, h := range hidden {
		blocks = append(blocks, ConvBlock{
			In: in, Out: h,
			Kernel: EncoderKernel, Stride: EncoderStride, Padding: EncoderPadding,
		})
		in = h
	}
	return blocks
}

// DecoderBlocks returns one k3/s2/p1/op1 block per consecutive pair of
// dims, so each block doubles the spatial size.
func DecoderBlocks(dims []int) []DeconvBlock {
	if len(dims) < 2 {
		return nil
	}
	blocks := make([]DeconvBlock, 0, len(dims)-1)
	for i := 0; i+1 < len(dims); i++ {
		blocks = append(blocks, DeconvBlock{
			In: dims[i], Out: dims[i+1],
			Kernel: DecoderKernel, Stride: DecoderStride,
			Padding: DecoderPadding, OutputPadding: DecoderOutputPadding,
		})
	}
	return blocks
}

func buildConvBlock[B tensor.Backend](b ConvBlock, rng *rand.Rand, backend B) *nn.Sequential[B] {
	return nn.NewSequential[B](
		nn.NewConv2D(b.In, b.Out, b.Kernel, b.Stride, b.Padding, rng, backend),
		nn.NewBatchNorm2D(b.Out, backend),
		nn.NewLeakyReLU[B](nn.LeakyReLUSlope),
	)
}

func buildDeconvBlock[B tensor.Backend](b DeconvBlock, rng *rand.Rand, backend B) []nn.Module[B] {
	return []nn.Module[B]{
		nn.NewConvTranspose2D(b.In, b.Out, b.Kernel, b.Stride, b.Padding, b.OutputPadding, rng, backend),
		nn.NewBatchNorm2D(b.Out, backend),
		nn.NewLeakyReLU[B](nn.LeakyReLUSlope),
	}
}

// buildEncoder turns descriptors into a Sequential of block Sequentials.
func buildEncoder[B tensor.Backend](blocks []ConvBlock, rng *rand.Rand, backend B) *nn.Sequential[B] {
	enc := nn.NewSequential[B]()
	for _, b := range blocks {
		enc.Add(buildConvBlock(b, rng, backend))
	}
	return enc
}

// buildDecoder turns descriptors into a Sequential of block Sequentials.
func buildDecoder[B tensor.Backend](blocks []DeconvBlock, rng *rand.Rand, backend B) *nn.Sequential[B] {
	dec := nn.NewSequential[B]()
	for _, b := range blocks {
		dec.Add(nn.NewSequential(buildDeconvBlock(b, rng, backend)...))
	}
	return dec
}
