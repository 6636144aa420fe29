// Package std holds the reference providers: plain loops over any element
// type. Every other provider is checked against them.
package std

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Gemm computes c = a * b, with c row-major.
func Gemm[T tensor.Numeric](ctx context.Context, a, b tensor.Mat[T], c []T) {
	m, k := a.Dims()
	kb, n := b.Dims()
	if k != kb {
		panic(fmt.Sprintf("gemm: shape mismatch [%d,%d] @ [%d,%d]", m, k, kb, n))
	}
	if len(c) != m*n {
		panic(fmt.Sprintf("gemm: output has %d elements, expected %d", len(c), m*n))
	}

	cfg := parallel.DefaultConfig().ForWork(k * n)
	parallel.Dispatch1D(ctx, 0, m, func(first, last int) {
		for i := first; i < last; i++ {
			row := c[i*n : (i+1)*n]
			clear(row)
			for kk := range k {
				aik := a.At(i, kk)
				for j := range row {
					row[j] += aik * b.At(kk, j)
				}
			}
		}
	}, cfg)
}

// Gemv computes y = a * x.
func Gemv[T tensor.Numeric](ctx context.Context, a tensor.Mat[T], x, y []T) {
	m, n := a.Dims()
	if len(x) != n || len(y) != m {
		panic(fmt.Sprintf("gemv: shape mismatch [%d,%d] * [%d] -> [%d]", m, n, len(x), len(y)))
	}

	cfg := parallel.DefaultConfig().ForWork(n)
	parallel.Dispatch1D(ctx, 0, m, func(first, last int) {
		for i := first; i < last; i++ {
			var sum T
			for j, v := range x {
				sum += a.At(i, j) * v
			}
			y[i] = sum
		}
	}, cfg)
}

// Gevm computes y = x * b.
func Gevm[T tensor.Numeric](ctx context.Context, x []T, b tensor.Mat[T], y []T) {
	m, n := b.Dims()
	if len(x) != m || len(y) != n {
		panic(fmt.Sprintf("gevm: shape mismatch [%d] * [%d,%d] -> [%d]", len(x), m, n, len(y)))
	}

	cfg := parallel.DefaultConfig().ForWork(m)
	parallel.Dispatch1D(ctx, 0, n, func(first, last int) {
		for j := first; j < last; j++ {
			var sum T
			for i, v := range x {
				sum += v * b.At(i, j)
			}
			y[j] = sum
		}
	}, cfg)
}

// Outer computes the len(a) x len(b) outer product into c.
func Outer[T tensor.Numeric](a, b, c []T) {
	if len(c) != len(a)*len(b) {
		panic(fmt.Sprintf("outer: output has %d elements, expected %d", len(c), len(a)*len(b)))
	}
	n := len(b)
	for i, av := range a {
		row := c[i*n : (i+1)*n]
		for j, bv := range b {
			row[j] = av * bv
		}
	}
}
