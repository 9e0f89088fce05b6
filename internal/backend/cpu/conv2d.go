package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/vae/internal/parallel"
	"github.com/born-ml/vae/internal/tensor"
)

// convGeometry describes one sample of a 2D convolution in im2col form.
//
// A convolution over a [C, H, W] input with a K x K window, stride S and
// padding P produces an [HOut, WOut] grid. The column buffer has one row
// per (c, kh, kw) and one column per output position.
type convGeometry struct {
	C, H, W    int
	K          int
	Stride     int
	Padding    int
	HOut, WOut int
}

func (g convGeometry) colRows() int { return g.C * g.K * g.K }
func (g convGeometry) colCols() int { return g.HOut * g.WOut }

// im2col expands one sample into the column buffer. Out-of-bounds taps
// read as zero.
func im2col(cols, src []float32, g convGeometry) {
	for c := 0; c < g.C; c++ {
		for kh := 0; kh < g.K; kh++ {
			for kw := 0; kw < g.K; kw++ {
				row := ((c*g.K+kh)*g.K + kw) * g.colCols()
				for oh := 0; oh < g.HOut; oh++ {
					ih := oh*g.Stride - g.Padding + kh
					for ow := 0; ow < g.WOut; ow++ {
						iw := ow*g.Stride - g.Padding + kw
						v := float32(0)
						if ih >= 0 && ih < g.H && iw >= 0 && iw < g.W {
							v = src[(c*g.H+ih)*g.W+iw]
						}
						cols[row+oh*g.WOut+ow] = v
					}
				}
			}
		}
	}
}

// col2im scatters a column buffer back into one [C, H, W] sample,
// accumulating overlapping taps. dst must be zeroed by the caller.
func col2im(dst, cols []float32, g convGeometry) {
	for c := 0; c < g.C; c++ {
		for kh := 0; kh < g.K; kh++ {
			for kw := 0; kw < g.K; kw++ {
				row := ((c*g.K+kh)*g.K + kw) * g.colCols()
				for oh := 0; oh < g.HOut; oh++ {
					ih := oh*g.Stride - g.Padding + kh
					if ih < 0 || ih >= g.H {
						continue
					}
					for ow := 0; ow < g.WOut; ow++ {
						iw := ow*g.Stride - g.Padding + kw
						if iw < 0 || iw >= g.W {
							continue
						}
						dst[(c*g.H+ih)*g.W+iw] += cols[row+oh*g.WOut+ow]
					}
				}
			}
		}
	}
}

// conv2dShapes validates a Conv2D call and returns its geometry.
func conv2dShapes(name string, input, kernel *tensor.RawTensor, stride, padding int) (n, cOut int, g convGeometry) {
	inputShape, kernelShape := input.Shape(), kernel.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", name, len(inputShape)))
	}
	if len(kernelShape) != 4 || kernelShape[2] != kernelShape[3] {
		panic(fmt.Sprintf("%s: kernel must be square 4D [C_out,C_in,K,K], got %v", name, kernelShape))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", name, inputShape[1], kernelShape[1]))
	}

	g = convGeometry{
		C: inputShape[1], H: inputShape[2], W: inputShape[3],
		K: kernelShape[2], Stride: stride, Padding: padding,
	}
	g.HOut = (g.H+2*padding-g.K)/stride + 1
	g.WOut = (g.W+2*padding-g.K)/stride + 1
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", name, g.HOut, g.WOut))
	}
	return inputShape[0], kernelShape[0], g
}

// Conv2D performs 2D convolution using im2col and SGEMM.
//
// Input [N, C_in, H, W], kernel [C_out, C_in, K, K], output
// [N, C_out, H_out, W_out] with H_out = (H + 2P - K)/S + 1.
// Per sample: out[n] = kernel[C_out, C_in*K*K] @ cols[C_in*K*K, H_out*W_out].
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d", input, kernel)
	n, cOut, g := conv2dShapes("conv2d", input, kernel, stride, padding)

	output := cpu.alloc("conv2d", tensor.Shape{n, cOut, g.HOut, g.WOut})
	in, k, out := input.AsFloat32(), kernel.AsFloat32(), output.AsFloat32()

	inSize := g.C * g.H * g.W
	outSize := cOut * g.colCols()
	parallel.Ranges(n, cpu.par, func(lo, hi int) {
		cols := make([]float32, g.colRows()*g.colCols())
		for b := lo; b < hi; b++ {
			im2col(cols, in[b*inSize:(b+1)*inSize], g)
			gemm(blas.NoTrans, blas.NoTrans, cOut, g.colCols(), g.colRows(), k, cols, 0, out[b*outSize:(b+1)*outSize])
		}
	})
	return output
}

// Conv2DInputBackward computes dL/dinput for Conv2D:
// cols = kernel^T @ grad[n], then col2im.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d_input_backward", input, kernel, grad)
	n, cOut, g := conv2dShapes("conv2d_input_backward", input, kernel, stride, padding)
	checkGradShape("conv2d_input_backward", grad, tensor.Shape{n, cOut, g.HOut, g.WOut})

	dx := cpu.alloc("conv2d_input_backward", input.Shape())
	k, gr, out := kernel.AsFloat32(), grad.AsFloat32(), dx.AsFloat32()

	inSize := g.C * g.H * g.W
	gradSize := cOut * g.colCols()
	parallel.Ranges(n, cpu.par, func(lo, hi int) {
		cols := make([]float32, g.colRows()*g.colCols())
		for b := lo; b < hi; b++ {
			gemm(blas.Trans, blas.NoTrans, g.colRows(), g.colCols(), cOut, k, gr[b*gradSize:(b+1)*gradSize], 0, cols)
			col2im(out[b*inSize:(b+1)*inSize], cols, g)
		}
	})
	return dx
}

// Conv2DKernelBackward computes dL/dkernel for Conv2D:
// dK += grad[n] @ cols^T summed over the batch in sample order.
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d_kernel_backward", input, kernel, grad)
	n, cOut, g := conv2dShapes("conv2d_kernel_backward", input, kernel, stride, padding)
	checkGradShape("conv2d_kernel_backward", grad, tensor.Shape{n, cOut, g.HOut, g.WOut})

	dk := cpu.alloc("conv2d_kernel_backward", kernel.Shape())
	in, gr, out := input.AsFloat32(), grad.AsFloat32(), dk.AsFloat32()

	cols := make([]float32, g.colRows()*g.colCols())
	inSize := g.C * g.H * g.W
	gradSize := cOut * g.colCols()
	for b := 0; b < n; b++ {
		im2col(cols, in[b*inSize:(b+1)*inSize], g)
		gemm(blas.NoTrans, blas.Trans, cOut, g.colRows(), g.colCols(), gr[b*gradSize:(b+1)*gradSize], cols, 1, out)
	}
	return dk
}

// ConvTranspose2D performs a transposed convolution.
//
// Input [N, C_in, H, W], kernel [C_in, C_out, K, K], output
// [N, C_out, H_out, W_out] with H_out = (H-1)S - 2P + K + outputPadding.
// It is the input gradient of a Conv2D from [C_out, H_out, W_out] to
// [C_in, H, W] with the same kernel, so the geometry is that convolution's.
func (cpu *CPUBackend) ConvTranspose2D(input, kernel *tensor.RawTensor, stride, padding, outputPadding int) *tensor.RawTensor {
	requireFloat32("conv_transpose2d", input, kernel)

	inputShape, kernelShape := input.Shape(), kernel.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 || kernelShape[2] != kernelShape[3] {
		panic(fmt.Sprintf("conv_transpose2d: kernel must be square 4D [C_in,C_out,K,K], got %v", kernelShape))
	}
	if inputShape[1] != kernelShape[0] {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != kernel channels %d", inputShape[1], kernelShape[0]))
	}
	if outputPadding < 0 || outputPadding >= stride {
		panic(fmt.Sprintf("conv_transpose2d: output padding %d must be in [0, stride=%d)", outputPadding, stride))
	}

	n, cIn, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	cOut, k := kernelShape[1], kernelShape[2]
	hOut := (h-1)*stride - 2*padding + k + outputPadding
	wOut := (w-1)*stride - 2*padding + k + outputPadding
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("conv_transpose2d: invalid output dimensions: out_h=%d, out_w=%d", hOut, wOut))
	}

	g := convGeometry{C: cOut, H: hOut, W: wOut, K: k, Stride: stride, Padding: padding, HOut: h, WOut: w}

	output := cpu.alloc("conv_transpose2d", tensor.Shape{n, cOut, hOut, wOut})
	in, kd, out := input.AsFloat32(), kernel.AsFloat32(), output.AsFloat32()

	inSize := cIn * h * w
	outSize := cOut * hOut * wOut
	parallel.Ranges(n, cpu.par, func(lo, hi int) {
		cols := make([]float32, g.colRows()*g.colCols())
		for b := lo; b < hi; b++ {
			gemm(blas.Trans, blas.NoTrans, g.colRows(), g.colCols(), cIn, kd, in[b*inSize:(b+1)*inSize], 0, cols)
			col2im(out[b*outSize:(b+1)*outSize], cols, g)
		}
	})
	return output
}

func checkGradShape(name string, grad *tensor.RawTensor, want tensor.Shape) {
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("%s: grad shape %v, expected %v", name, grad.Shape(), want))
	}
}
