package cpu

import (
	"github.com/chewxy/math32"
	"gorgonia.org/vecf32"

	"github.com/born-ml/vae/internal/tensor"
)

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	requireFloat32("mul_scalar", x)
	result := x.Clone()
	vecf32.Scale(result.AsFloat32(), scalar)
	return result
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	requireFloat32("add_scalar", x)
	result := x.Clone()
	vecf32.Trans(result.AsFloat32(), scalar)
	return result
}

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("exp", x, math32.Exp)
}

// Log computes ln(x) element-wise.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("log", x, math32.Log)
}

// Clamp limits every element to [lo, hi]. NaN stays NaN.
func (cpu *CPUBackend) Clamp(x *tensor.RawTensor, lo, hi float32) *tensor.RawTensor {
	return cpu.unary("clamp", x, func(v float32) float32 {
		switch {
		case v < lo:
			return lo
		case v > hi:
			return hi
		default:
			return v
		}
	})
}

// ReLU computes max(0, x).
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.LeakyReLU(x, 0)
}

// LeakyReLU computes x for x > 0 and slope*x otherwise.
func (cpu *CPUBackend) LeakyReLU(x *tensor.RawTensor, slope float32) *tensor.RawTensor {
	return cpu.unary("leaky_relu", x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return slope * v
	})
}

// Sigmoid computes 1 / (1 + e^-x) without overflow for large |x|.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sigmoid", x, func(v float32) float32 {
		if v >= 0 {
			return 1 / (1 + math32.Exp(-v))
		}
		e := math32.Exp(v)
		return e / (1 + e)
	})
}

func (cpu *CPUBackend) unary(name string, x *tensor.RawTensor, fn func(float32) float32) *tensor.RawTensor {
	requireFloat32(name, x)
	result := cpu.alloc(name, x.Shape())
	out := result.AsFloat32()
	for i, v := range x.AsFloat32() {
		out[i] = fn(v)
	}
	return result
}
