package ops

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(targetShape) {
		return grad
	}
	if len(targetShape) == 0 {
		return backend.Sum(grad)
	}
	if len(targetShape) > len(gradShape) {
		panic(fmt.Sprintf("reduceBroadcast: target %v has more dims than gradient %v", targetShape, gradShape))
	}

	// Shapes align from the right: leading extra dims are summed away.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}
	for i, d := range targetShape {
		if d == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// mask returns a tensor shaped like x holding fn(x) element-wise.
// It is used for piecewise derivatives that the backend does not expose.
func mask(name string, x *tensor.RawTensor, fn func(float32) float32) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: unsupported dtype %s (only float32 supported)", name, x.DType()))
	}
	m, err := tensor.NewRaw(x.Shape(), tensor.Float32, x.Device())
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create mask: %v", name, err))
	}
	out := m.AsFloat32()
	for i, v := range x.AsFloat32() {
		out[i] = fn(v)
	}
	return m
}
