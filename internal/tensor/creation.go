package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a zero-filled tensor.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	raw, err := NewRaw(shape, inferDataType(dummy), b.Device())
	if err != nil {
		panic(fmt.Sprintf("zeros: %v", err))
	}
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T](shape, T(1), b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1) using rng.
//
// All randomness in the engine flows through explicit *rand.Rand values so
// that a seed reproduces a run exactly.
func Randn[T DType, B Backend](shape Shape, rng *rand.Rand, b B) *Tensor[T, B] {
	t := Zeros[T](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = T(rng.NormFloat64())
	}
	return t
}

// Uniform creates a tensor with values drawn from U(lo, hi) using rng.
func Uniform[T DType, B Backend](shape Shape, lo, hi float64, rng *rand.Rand, b B) *Tensor[T, B] {
	t := Zeros[T](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = T(lo + rng.Float64()*(hi-lo))
	}
	return t
}
