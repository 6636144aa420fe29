package std

import (
	"context"

	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Sum returns the sum of at(i) for i in [0, n).
func Sum[T tensor.Numeric](ctx context.Context, n int, at func(int) T) T {
	var total T
	cfg := parallel.DefaultConfig().ForBytes(tensor.TypeOf[T]().Size())
	parallel.Dispatch1DAcc(ctx, 0, n, func(first, last int) T {
		var s T
		for i := first; i < last; i++ {
			s += at(i)
		}
		return s
	}, func(s T) { total += s }, cfg)
	return total
}

// Asum returns the sum of the absolute values.
func Asum[T tensor.Numeric](ctx context.Context, n int, at func(int) T) T {
	return Sum(ctx, n, func(i int) T {
		v := at(i)
		if v < 0 {
			return -v
		}
		return v
	})
}

// Min returns the smallest value. n must be positive.
func Min[T tensor.Numeric](ctx context.Context, n int, at func(int) T) T {
	return extreme(ctx, n, at, func(a, b T) T { return min(a, b) })
}

// Max returns the largest value. n must be positive.
func Max[T tensor.Numeric](ctx context.Context, n int, at func(int) T) T {
	return extreme(ctx, n, at, func(a, b T) T { return max(a, b) })
}

func extreme[T tensor.Numeric](ctx context.Context, n int, at func(int) T, pick func(a, b T) T) T {
	if n <= 0 {
		panic("reduce: empty expression")
	}
	result := at(0)
	cfg := parallel.DefaultConfig().ForBytes(tensor.TypeOf[T]().Size())
	parallel.Dispatch1DAcc(ctx, 1, n, func(first, last int) T {
		m := at(first)
		for i := first + 1; i < last; i++ {
			m = pick(m, at(i))
		}
		return m
	}, func(m T) { result = pick(result, m) }, cfg)
	return result
}
