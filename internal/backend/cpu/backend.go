// Package cpu implements the CPU backend on top of gonum BLAS and vecf32.
//
// The backend computes in float32. Every operation allocates its result,
// which keeps recorded autodiff inputs intact.
package cpu

import (
	"fmt"

	"gorgonia.org/vecf32"

	"github.com/born-ml/vae/internal/parallel"
	"github.com/born-ml/vae/internal/tensor"
)

// CPUBackend implements tensor.Backend on the CPU.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config // splits convolutions over the batch
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{device: tensor.CPU, par: parallel.DefaultConfig()}
}

// SetParallel replaces the batch splitting of convolutions.
func (cpu *CPUBackend) SetParallel(cfg parallel.Config) {
	cpu.par = cfg
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, vecf32.Add, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, vecf32.Sub, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, vecf32.Mul, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, vecf32.Div, func(x, y float32) float32 { return x / y })
}

// binary dispatches a binary op. Same-shape operands take the vectorised
// in-place kernel on a copy of a; everything else walks broadcast strides.
func (cpu *CPUBackend) binary(
	name string,
	a, b *tensor.RawTensor,
	vec func(dst, src []float32),
	scalar func(x, y float32) float32,
) *tensor.RawTensor {
	requireFloat32(name, a, b)

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	if !needsBroadcast {
		result := a.Clone()
		vec(result.AsFloat32(), b.AsFloat32())
		return result
	}

	result := cpu.alloc(name, outShape)
	out := result.AsFloat32()
	aData, bData := a.AsFloat32(), b.AsFloat32()
	aIdx := broadcastIndex(a.Shape(), outShape)
	bIdx := broadcastIndex(b.Shape(), outShape)
	for i := range out {
		out[i] = scalar(aData[aIdx[i]], bData[bIdx[i]])
	}
	return result
}

// broadcastIndex maps each flat index of outShape to the flat index of the
// broadcast source with shape in.
func broadcastIndex(in, outShape tensor.Shape) []int {
	rank := len(outShape)
	inStrides := make([]int, rank)
	srcStrides := in.ComputeStrides()
	offset := rank - len(in)
	for i := range in {
		if in[i] != 1 {
			inStrides[offset+i] = srcStrides[i]
		}
	}

	index := make([]int, outShape.NumElements())
	counter := make([]int, rank)
	src := 0
	for i := range index {
		index[i] = src
		for d := rank - 1; d >= 0; d-- {
			counter[d]++
			src += inStrides[d]
			if counter[d] < outShape[d] {
				break
			}
			src -= inStrides[d] * counter[d]
			counter[d] = 0
		}
	}
	return index
}

func (cpu *CPUBackend) alloc(name string, shape tensor.Shape) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}
	return result
}

func requireFloat32(name string, ts ...*tensor.RawTensor) {
	for _, t := range ts {
		if t.DType() != tensor.Float32 {
			panic(fmt.Sprintf("%s: unsupported dtype %s", name, t.DType()))
		}
	}
}
