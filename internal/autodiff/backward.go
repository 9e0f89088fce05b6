package autodiff

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// Backward computes gradients of t with respect to every tensor that
// contributed to it on the backend's tape.
//
// The seed gradient is ones with t's shape, so for a scalar loss the
// result holds dL/dx for each recorded input. Returns a map from RawTensor
// to its gradient.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.Ones[float32](tensor.Shape{2}, backend)
//	y := x.Mul(x).Sum()
//	grads := autodiff.Backward(y, backend)
//	grad := grads[x.Raw()] // 2x
func Backward[T tensor.DType, B tensor.Backend](t *tensor.Tensor[T, *AutodiffBackend[B]], backend *AutodiffBackend[B]) map[*tensor.RawTensor]*tensor.RawTensor {
	if backend.tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if t.DType() != tensor.Float32 {
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32 supported)", t.DType()))
	}

	outputGrad, err := tensor.NewRaw(t.Shape(), t.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("backward: failed to create output gradient: %v", err))
	}
	seed := outputGrad.AsFloat32()
	for i := range seed {
		seed[i] = 1
	}

	return backend.tape.Backward(t.Raw(), outputGrad, backend.inner)
}
