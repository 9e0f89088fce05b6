package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/vae/internal/tensor"
)

// MatMul performs matrix multiplication (M, K) @ (K, N) -> (M, N) with SGEMM.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("matmul", a, b)

	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result := cpu.alloc("matmul", tensor.Shape{m, n})
	gemm(blas.NoTrans, blas.NoTrans, m, n, k, a.AsFloat32(), b.AsFloat32(), 0, result.AsFloat32())
	return result
}

// gemm computes c = op(a) @ op(b) + beta*c for row-major buffers, where
// op(a) is m x k and op(b) is k x n.
func gemm(tA, tB blas.Transpose, m, n, k int, a, b []float32, beta float32, c []float32) {
	aRows, aCols := m, k
	if tA == blas.Trans {
		aRows, aCols = k, m
	}
	bRows, bCols := k, n
	if tB == blas.Trans {
		bRows, bCols = n, k
	}

	blas32.Gemm(tA, tB, 1,
		blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: a},
		blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: b},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}
