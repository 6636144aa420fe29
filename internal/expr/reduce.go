package expr

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/backend/blas"
	"github.com/born-ml/tensorexpr/internal/backend/std"
	"github.com/born-ml/tensorexpr/internal/backend/vec"
	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/logging"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Sum returns the sum of the elements of e.
func Sum[T tensor.Numeric](ctx context.Context, e Expr[T]) T {
	return reduce(ctx, selector.Sum, e)
}

// Asum returns the sum of the absolute values of the elements of e.
func Asum[T tensor.Numeric](ctx context.Context, e Expr[T]) T {
	return reduce(ctx, selector.Asum, e)
}

// Mean returns the arithmetic mean of the elements of e.
func Mean[T tensor.Numeric](ctx context.Context, e Expr[T]) T {
	return Sum(ctx, e) / T(e.Size())
}

// Min returns the smallest element of e.
func Min[T tensor.Numeric](ctx context.Context, e Expr[T]) T {
	return reduce(ctx, selector.Min, e)
}

// Max returns the largest element of e.
func Max[T tensor.Numeric](ctx context.Context, e Expr[T]) T {
	return reduce(ctx, selector.Max, e)
}

func reduce[T tensor.Numeric](ctx context.Context, r selector.Reduction, e Expr[T]) T {
	Evaluate(ctx, e)
	defer func() {
		if err := Release(ctx, e); err != nil {
			logging.Logger().ErrorContext(ctx, "releasing device memory failed", "error", err)
		}
	}()

	n := e.Size()
	req := selector.Request{
		Family:    selector.Reduce,
		Operands:  []selector.Operand{selector.OperandOf(e.Traits())},
		N:         n,
		Reduction: r,
	}
	impl := selector.Select(ctx, req, features())

	switch impl {
	case selector.Std:
		switch r {
		case selector.Sum:
			return std.Sum(ctx, n, e.At)
		case selector.Asum:
			return std.Asum(ctx, n, e.At)
		case selector.Min:
			return std.Min(ctx, n, e.At)
		case selector.Max:
			return std.Max(ctx, n, e.At)
		}
	case selector.Vec:
		lanes := tensor.Lanes[T](config.Get().Vector)
		load := func(i int) tensor.Vec[T] { return e.Load(i, lanes) }
		switch r {
		case selector.Sum:
			return vec.Sum(ctx, n, lanes, load, e.At)
		case selector.Asum:
			return vec.Asum(ctx, n, lanes, load, e.At)
		case selector.Min:
			return vec.Min(ctx, n, lanes, load, e.At)
		case selector.Max:
			return vec.Max(ctx, n, lanes, load, e.At)
		}
	case selector.Blas:
		if d, ok := e.(direct[T]); ok && r == selector.Asum {
			return blas.Asum(d.dense().data)
		}
	}
	panic(fmt.Sprintf("unreachable: %s implementation %s", r, impl))
}

// AxisReduce sums or averages its operand along the first dimension. The
// right form gives one value per index of the first dimension, reduced
// over the rest. The left form reduces the first dimension away and keeps
// the shape of the rest.
type AxisReduce[T tensor.Numeric] struct {
	operand Expr[T]
	left    bool
	mean    bool
	shape   tensor.Shape
	count   int
}

func newAxisReduce[T tensor.Numeric](e Expr[T], left, mean bool) *AxisReduce[T] {
	r := &AxisReduce[T]{operand: e, left: left, mean: mean}
	name := r.name()
	if isGenerator(e) {
		panic(name + ": generators have no shape")
	}
	if e.Dims() < 2 {
		panic(fmt.Sprintf("%s: expected at least 2 dimensions, got %d", name, e.Dims()))
	}
	if left {
		r.shape = e.Shape()[1:].Clone()
		r.count = e.Dim(0)
	} else {
		r.shape = tensor.Shape{e.Dim(0)}
		r.count = e.Size() / e.Dim(0)
	}
	return r
}

// SumR returns the sum of every sub-view of e along its first dimension.
func SumR[T tensor.Numeric](e Expr[T]) *AxisReduce[T] { return newAxisReduce(e, false, false) }

// MeanR returns the mean of every sub-view of e along its first dimension.
func MeanR[T tensor.Numeric](e Expr[T]) *AxisReduce[T] { return newAxisReduce(e, false, true) }

// SumL returns the sum of e over its first dimension.
func SumL[T tensor.Numeric](e Expr[T]) *AxisReduce[T] { return newAxisReduce(e, true, false) }

// MeanL returns the mean of e over its first dimension.
func MeanL[T tensor.Numeric](e Expr[T]) *AxisReduce[T] { return newAxisReduce(e, true, true) }

func (r *AxisReduce[T]) name() string {
	switch {
	case r.left && r.mean:
		return "mean_l"
	case r.left:
		return "sum_l"
	case r.mean:
		return "mean_r"
	default:
		return "sum_r"
	}
}

func (r *AxisReduce[T]) Traits() tensor.Traits {
	tr := r.operand.Traits()
	tr.Direct, tr.Temporary, tr.GPU = false, false, false
	tr.Linear, tr.Vectorizable = false, false
	return tr
}

func (r *AxisReduce[T]) Shape() tensor.Shape { return r.shape }
func (r *AxisReduce[T]) Dims() int           { return len(r.shape) }
func (r *AxisReduce[T]) Dim(d int) int       { return dimOf(r.shape, d) }
func (r *AxisReduce[T]) Size() int           { return sizeOf(r.shape) }

func (r *AxisReduce[T]) At(i int) T {
	return r.AtIndex(r.shape.Unravel(r.operand.Traits().Order, i, nil)...)
}

func (r *AxisReduce[T]) AtIndex(idx ...int) T {
	if len(idx) != len(r.shape) {
		panic(fmt.Sprintf("index: expected %d indices, got %d", len(r.shape), len(idx)))
	}
	full := make([]int, r.operand.Dims())
	var sum T
	if r.left {
		copy(full[1:], idx)
		for k := range r.count {
			full[0] = k
			sum += r.operand.AtIndex(full...)
		}
	} else {
		full[0] = idx[0]
		rest := r.operand.Shape()[1:]
		for k := range r.count {
			rest.Unravel(tensor.RowMajor, k, full[1:])
			sum += r.operand.AtIndex(full...)
		}
	}
	if r.mean {
		return sum / T(r.count)
	}
	return sum
}

func (r *AxisReduce[T]) Load(i, lanes int) tensor.Vec[T] {
	var out tensor.Vec[T]
	for k := range lanes {
		out[k] = r.At(i + k)
	}
	return out
}

func (r *AxisReduce[T]) Alias(d *Dense[T]) bool { return r.operand.Alias(d) }

func (r *AxisReduce[T]) Visit(ctx context.Context, v *Visitor) {
	if v.Kind == VisitEvaluate {
		v.withNeed(ctx, r.operand, true)
		return
	}
	r.operand.Visit(ctx, v)
}

func (r *AxisReduce[T]) String() string { return fmt.Sprintf("%s(%v)", r.name(), r.operand) }
