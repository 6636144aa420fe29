// Package vec holds the vectorized providers: loops working on groups of
// as many elements as one register of the active vector tier holds, with
// independent accumulators per lane.
//
// Operands must be floating point and stored row-major; transposed views
// are materialized on entry.
package vec

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

func lanesOf[T tensor.Numeric]() int {
	return tensor.Lanes[T](config.Get().Vector)
}

// dot returns the inner product of x and y[:len(x)].
func dot[T tensor.Numeric](x, y []T, lanes int) T {
	var acc tensor.Vec[T]
	y = y[:len(x)]
	i := 0
	for ; i+lanes <= len(x); i += lanes {
		xs, ys := x[i:i+lanes], y[i:i+lanes]
		for l := range xs {
			acc[l] += xs[l] * ys[l]
		}
	}
	var sum T
	for l := range lanes {
		sum += acc[l]
	}
	for ; i < len(x); i++ {
		sum += x[i] * y[i]
	}
	return sum
}

// axpy computes y += alpha * x.
func axpy[T tensor.Numeric](alpha T, x, y []T, lanes int) {
	y = y[:len(x)]
	i := 0
	for ; i+lanes <= len(x); i += lanes {
		xs, ys := x[i:i+lanes], y[i:i+lanes]
		for l := range xs {
			ys[l] += alpha * xs[l]
		}
	}
	for ; i < len(x); i++ {
		y[i] += alpha * x[i]
	}
}

// Gemm computes c = a * b, with c row-major.
func Gemm[T tensor.Numeric](ctx context.Context, a, b tensor.Mat[T], c []T) {
	a, b = a.Materialize(), b.Materialize()
	m, k := a.Dims()
	kb, n := b.Dims()
	if k != kb {
		panic(fmt.Sprintf("gemm: shape mismatch [%d,%d] @ [%d,%d]", m, k, kb, n))
	}
	if len(c) != m*n {
		panic(fmt.Sprintf("gemm: output has %d elements, expected %d", len(c), m*n))
	}

	lanes := lanesOf[T]()
	cfg := parallel.DefaultConfig().ForWork(k * n)
	parallel.Dispatch1D(ctx, 0, m, func(first, last int) {
		for i := first; i < last; i++ {
			row := c[i*n : (i+1)*n]
			clear(row)
			for kk, aik := range a.Row(i) {
				axpy(aik, b.Row(kk), row, lanes)
			}
		}
	}, cfg)
}

// Gemv computes y = a * x.
func Gemv[T tensor.Numeric](ctx context.Context, a tensor.Mat[T], x, y []T) {
	a = a.Materialize()
	m, n := a.Dims()
	if len(x) != n || len(y) != m {
		panic(fmt.Sprintf("gemv: shape mismatch [%d,%d] * [%d] -> [%d]", m, n, len(x), len(y)))
	}

	lanes := lanesOf[T]()
	cfg := parallel.DefaultConfig().ForWork(n)
	parallel.Dispatch1D(ctx, 0, m, func(first, last int) {
		for i := first; i < last; i++ {
			y[i] = dot(a.Row(i), x, lanes)
		}
	}, cfg)
}

// Gevm computes y = x * b.
func Gevm[T tensor.Numeric](ctx context.Context, x []T, b tensor.Mat[T], y []T) {
	b = b.Materialize()
	m, n := b.Dims()
	if len(x) != m || len(y) != n {
		panic(fmt.Sprintf("gevm: shape mismatch [%d] * [%d,%d] -> [%d]", len(x), m, n, len(y)))
	}

	lanes := lanesOf[T]()
	cfg := parallel.DefaultConfig().ForWork(m)
	parallel.Dispatch1D(ctx, 0, n, func(first, last int) {
		out := y[first:last]
		clear(out)
		for i, v := range x {
			axpy(v, b.Row(i)[first:last], out, lanes)
		}
	}, cfg)
}
