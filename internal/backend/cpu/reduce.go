package cpu

import (
	"fmt"

	"gorgonia.org/vecf32"

	"github.com/born-ml/vae/internal/tensor"
)

// Sum reduces all elements to a scalar (shape []).
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("sum", x)
	result := cpu.alloc("sum", tensor.Shape{})
	result.AsFloat32()[0] = vecf32.Sum(x.AsFloat32())
	return result
}

// SumDim sums along dim. With keepDim the reduced dimension stays as 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	requireFloat32("sum_dim", x)

	shape := x.Shape()
	if dim < 0 {
		dim += len(shape)
	}
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("sum_dim: dim %d out of range for shape %v", dim, shape))
	}

	outer := 1
	for _, d := range shape[:dim] {
		outer *= d
	}
	inner := 1
	for _, d := range shape[dim+1:] {
		inner *= d
	}
	size := shape[dim]

	outShape := make(tensor.Shape, 0, len(shape))
	outShape = append(outShape, shape[:dim]...)
	if keepDim {
		outShape = append(outShape, 1)
	}
	outShape = append(outShape, shape[dim+1:]...)

	result := cpu.alloc("sum_dim", outShape)
	src := x.AsFloat32()
	dst := result.AsFloat32()
	for o := 0; o < outer; o++ {
		row := dst[o*inner : (o+1)*inner]
		for s := 0; s < size; s++ {
			base := (o*size + s) * inner
			vecf32.Add(row, src[base:base+inner])
		}
	}
	return result
}
