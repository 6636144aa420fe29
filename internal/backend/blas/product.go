// Package blas holds the providers backed by gonum's BLAS implementation.
//
// Only float32 and float64 element types are accepted; the selector never
// routes anything else here. Transposed views are passed to BLAS as
// transpose flags, without copies.
package blas

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

func flag(trans bool) blas.Transpose {
	if trans {
		return blas.Trans
	}
	return blas.NoTrans
}

func general64(m tensor.Mat[float64]) blas64.General {
	return blas64.General{Rows: m.Rows, Cols: m.Cols, Stride: max(m.Cols, 1), Data: m.Data}
}

func general32(m tensor.Mat[float32]) blas32.General {
	return blas32.General{Rows: m.Rows, Cols: m.Cols, Stride: max(m.Cols, 1), Data: m.Data}
}

func as32[T tensor.Numeric](m tensor.Mat[T]) tensor.Mat[float32] {
	return tensor.Mat[float32]{Data: tensor.AsFloat32(m.Data), Rows: m.Rows, Cols: m.Cols, Trans: m.Trans}
}

func as64[T tensor.Numeric](m tensor.Mat[T]) tensor.Mat[float64] {
	return tensor.Mat[float64]{Data: tensor.AsFloat64(m.Data), Rows: m.Rows, Cols: m.Cols, Trans: m.Trans}
}

func unsupported(op string, dt tensor.DataType) string {
	return fmt.Sprintf("%s: unsupported dtype %s", op, dt)
}

// Gemm computes c = a * b, with c row-major.
func Gemm[T tensor.Numeric](a, b tensor.Mat[T], c []T) {
	m, k := a.Dims()
	kb, n := b.Dims()
	if k != kb {
		panic(fmt.Sprintf("gemm: shape mismatch [%d,%d] @ [%d,%d]", m, k, kb, n))
	}
	if len(c) != m*n {
		panic(fmt.Sprintf("gemm: output has %d elements, expected %d", len(c), m*n))
	}

	switch dt := tensor.TypeOf[T](); dt {
	case tensor.Float32:
		out := blas32.General{Rows: m, Cols: n, Stride: max(n, 1), Data: tensor.AsFloat32(c)}
		blas32.Gemm(flag(a.Trans), flag(b.Trans), 1, general32(as32(a)), general32(as32(b)), 0, out)
	case tensor.Float64:
		out := blas64.General{Rows: m, Cols: n, Stride: max(n, 1), Data: tensor.AsFloat64(c)}
		blas64.Gemm(flag(a.Trans), flag(b.Trans), 1, general64(as64(a)), general64(as64(b)), 0, out)
	default:
		panic(unsupported("gemm", dt))
	}
}

// Gemv computes y = a * x.
func Gemv[T tensor.Numeric](a tensor.Mat[T], x, y []T) {
	m, n := a.Dims()
	if len(x) != n || len(y) != m {
		panic(fmt.Sprintf("gemv: shape mismatch [%d,%d] * [%d] -> [%d]", m, n, len(x), len(y)))
	}

	switch dt := tensor.TypeOf[T](); dt {
	case tensor.Float32:
		blas32.Gemv(flag(a.Trans), 1, general32(as32(a)),
			blas32.Vector{N: len(x), Inc: 1, Data: tensor.AsFloat32(x)},
			0, blas32.Vector{N: len(y), Inc: 1, Data: tensor.AsFloat32(y)})
	case tensor.Float64:
		blas64.Gemv(flag(a.Trans), 1, general64(as64(a)),
			blas64.Vector{N: len(x), Inc: 1, Data: tensor.AsFloat64(x)},
			0, blas64.Vector{N: len(y), Inc: 1, Data: tensor.AsFloat64(y)})
	default:
		panic(unsupported("gemv", dt))
	}
}

// Gevm computes y = x * b as b^T * x.
func Gevm[T tensor.Numeric](x []T, b tensor.Mat[T], y []T) {
	Gemv(b.T(), x, y)
}

// Outer computes the len(a) x len(b) outer product into c.
func Outer[T tensor.Numeric](a, b, c []T) {
	m, n := len(a), len(b)
	if len(c) != m*n {
		panic(fmt.Sprintf("outer: output has %d elements, expected %d", len(c), m*n))
	}
	clear(c)

	switch dt := tensor.TypeOf[T](); dt {
	case tensor.Float32:
		blas32.Ger(1,
			blas32.Vector{N: m, Inc: 1, Data: tensor.AsFloat32(a)},
			blas32.Vector{N: n, Inc: 1, Data: tensor.AsFloat32(b)},
			blas32.General{Rows: m, Cols: n, Stride: max(n, 1), Data: tensor.AsFloat32(c)})
	case tensor.Float64:
		blas64.Ger(1,
			blas64.Vector{N: m, Inc: 1, Data: tensor.AsFloat64(a)},
			blas64.Vector{N: n, Inc: 1, Data: tensor.AsFloat64(b)},
			blas64.General{Rows: m, Cols: n, Stride: max(n, 1), Data: tensor.AsFloat64(c)})
	default:
		panic(unsupported("outer", dt))
	}
}

// Asum returns the sum of the absolute values of x.
func Asum[T tensor.Numeric](x []T) T {
	switch dt := tensor.TypeOf[T](); dt {
	case tensor.Float32:
		return T(blas32.Asum(blas32.Vector{N: len(x), Inc: 1, Data: tensor.AsFloat32(x)}))
	case tensor.Float64:
		return T(blas64.Asum(blas64.Vector{N: len(x), Inc: 1, Data: tensor.AsFloat64(x)}))
	default:
		panic(unsupported("asum", dt))
	}
}
