package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/vae/internal/tensor"
)

const (
	// bceLogFloor bounds log terms so that predictions of exactly 0 or 1
	// keep the loss finite.
	bceLogFloor = -100
	bceGradEps  = 1e-12
)

// BinaryCrossEntropy returns
// -sum(t*log(p) + (1-t)*log(1-p)) as a scalar, with each log clamped
// at -100.
func (cpu *CPUBackend) BinaryCrossEntropy(pred, target *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("binary_cross_entropy", pred, target)
	if !pred.Shape().Equal(target.Shape()) {
		panic(fmt.Sprintf("binary_cross_entropy: prediction shape %v != target shape %v", pred.Shape(), target.Shape()))
	}

	p, t := pred.AsFloat32(), target.AsFloat32()
	var sum float64
	for i := range p {
		logP := max(math32.Log(p[i]), bceLogFloor)
		log1mP := max(math32.Log(1-p[i]), bceLogFloor)
		sum -= float64(t[i]*logP + (1-t[i])*log1mP)
	}

	result := cpu.alloc("binary_cross_entropy", tensor.Shape{})
	result.AsFloat32()[0] = float32(sum)
	return result
}

// BinaryCrossEntropyBackward returns dL/dpred = grad * (p - t) / max(p(1-p), eps).
func (cpu *CPUBackend) BinaryCrossEntropyBackward(pred, target, grad *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("binary_cross_entropy_backward", pred, target, grad)
	if grad.NumElements() != 1 {
		panic(fmt.Sprintf("binary_cross_entropy_backward: expected scalar grad, got %v", grad.Shape()))
	}

	g := grad.AsFloat32()[0]
	result := cpu.alloc("binary_cross_entropy_backward", pred.Shape())
	p, t, out := pred.AsFloat32(), target.AsFloat32(), result.AsFloat32()
	for i := range p {
		out[i] = g * (p[i] - t[i]) / max(p[i]*(1-p[i]), bceGradEps)
	}
	return result
}
