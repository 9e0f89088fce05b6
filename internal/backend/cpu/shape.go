package cpu

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// Reshape returns a tensor with a new shape over the same elements.
// The result shares the input buffer but is a distinct tensor.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	view, err := t.View(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

// Transpose permutes dimensions according to axes. With no axes the
// dimension order is reversed.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	requireFloat32("transpose", t)

	shape := t.Shape()
	ndim := len(shape)
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: expected %d axes, got %d", ndim, len(axes)))
	}

	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for %dD tensor", axes, ndim))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	result := cpu.alloc("transpose", outShape)
	src := t.AsFloat32()
	dst := result.AsFloat32()
	inStrides := t.Strides()

	// permuted source strides in output order
	strides := make([]int, ndim)
	for i, ax := range axes {
		strides[i] = inStrides[ax]
	}

	counter := make([]int, ndim)
	off := 0
	for i := range dst {
		dst[i] = src[off]
		for d := ndim - 1; d >= 0; d-- {
			counter[d]++
			off += strides[d]
			if counter[d] < outShape[d] {
				break
			}
			off -= strides[d] * counter[d]
			counter[d] = 0
		}
	}
	return result
}
