package vec

import (
	"context"

	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Loader reads one group of lanes elements starting at flat index i.
type Loader[T tensor.Numeric] func(i int) tensor.Vec[T]

// Sum returns the sum of n elements read through load in groups of lanes,
// and through at for the tail.
func Sum[T tensor.Numeric](ctx context.Context, n, lanes int, load Loader[T], at func(int) T) T {
	return reduce(ctx, n, lanes, load, at, 0, func(acc, v T) T { return acc + v })
}

// Asum returns the sum of the absolute values.
func Asum[T tensor.Numeric](ctx context.Context, n, lanes int, load Loader[T], at func(int) T) T {
	return reduce(ctx, n, lanes, load, at, 0, func(acc, v T) T {
		if v < 0 {
			return acc - v
		}
		return acc + v
	})
}

// Min returns the smallest element. n must be positive.
func Min[T tensor.Numeric](ctx context.Context, n, lanes int, load Loader[T], at func(int) T) T {
	if n <= 0 {
		panic("reduce: empty expression")
	}
	return reduce(ctx, n, lanes, load, at, at(0), func(acc, v T) T { return min(acc, v) })
}

// Max returns the largest element. n must be positive.
func Max[T tensor.Numeric](ctx context.Context, n, lanes int, load Loader[T], at func(int) T) T {
	if n <= 0 {
		panic("reduce: empty expression")
	}
	return reduce(ctx, n, lanes, load, at, at(0), func(acc, v T) T { return max(acc, v) })
}

// reduce folds every element into a per-lane accumulator seeded with init.
// init must be neutral for op.
func reduce[T tensor.Numeric](ctx context.Context, n, lanes int, load Loader[T], at func(int) T, init T, op func(acc, v T) T) T {
	lanes = max(min(lanes, tensor.MaxLanes), 1)
	groups := n / lanes
	result := init

	parallel.Dispatch1DAcc(ctx, 0, groups, func(first, last int) T {
		var acc tensor.Vec[T]
		for l := range lanes {
			acc[l] = init
		}
		for g := first; g < last; g++ {
			v := load(g * lanes)
			for l := range lanes {
				acc[l] = op(acc[l], v[l])
			}
		}
		r := init
		for l := range lanes {
			r = op(r, acc[l])
		}
		return r
	}, func(r T) { result = op(result, r) }, parallel.DefaultConfig().ForWork(lanes))

	for i := groups * lanes; i < n; i++ {
		result = op(result, at(i))
	}
	return result
}
