package expr

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/logging"
	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// assignOp is the compound operator of an assignment.
type assignOp int

const (
	opAssign assignOp = iota
	opAdd
	opSub
	opMul
	opDiv
	opMod
)

var assignNames = [...]string{"assign", "assign_add", "assign_sub", "assign_mul", "assign_div", "assign_mod"}

func (op assignOp) String() string { return assignNames[op] }

// combiner returns the function merging the old destination value with the
// new one, nil for plain assignment.
func combiner[T tensor.Numeric](op assignOp) func(d, v T) T {
	switch op {
	case opAdd:
		return func(d, v T) T { return d + v }
	case opSub:
		return func(d, v T) T { return d - v }
	case opMul:
		return func(d, v T) T { return d * v }
	case opDiv:
		return func(d, v T) T { return d / v }
	case opMod:
		return mod[T]
	default:
		return nil
	}
}

// Assign evaluates e into dst.
func Assign[T tensor.Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	assign(ctx, opAssign, dst, e)
}

// AssignAdd adds e to dst.
func AssignAdd[T tensor.Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	assign(ctx, opAdd, dst, e)
}

// AssignSub subtracts e from dst.
func AssignSub[T tensor.Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	assign(ctx, opSub, dst, e)
}

// AssignMul multiplies dst by e element-wise.
func AssignMul[T tensor.Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	assign(ctx, opMul, dst, e)
}

// AssignDiv divides dst by e element-wise.
func AssignDiv[T tensor.Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	assign(ctx, opDiv, dst, e)
}

// AssignMod replaces dst by the remainder of its division by e.
func AssignMod[T tensor.Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	assign(ctx, opMod, dst, e)
}

// Evaluate allocates and evaluates every temporary of e so that its
// elements can be read. Each call is a new evaluation: temporaries computed
// by an earlier one are computed again from the current operands.
func Evaluate[T tensor.Numeric](ctx context.Context, e Expr[T]) {
	e.Visit(ctx, newAllocation())
	e.Visit(ctx, &Visitor{Kind: VisitEvaluate, NeedValue: true})
}

// Release evicts the device memory of every temporary of e.
func Release[T tensor.Numeric](ctx context.Context, e Expr[T]) error {
	v := &Visitor{Kind: VisitCleanGPU}
	e.Visit(ctx, v)
	return v.Err
}

// Materialize evaluates e into a new leaf of its shape and order.
func Materialize[T tensor.Numeric](ctx context.Context, e Expr[T]) *Dense[T] {
	if isGenerator(e) {
		panic("materialize: generators have no shape")
	}
	dst := NewDense[T](e.Shape(), WithOrder(e.Traits().Order))
	Assign(ctx, dst, e)
	return dst
}

func assign[T tensor.Numeric](ctx context.Context, op assignOp, dst *Dense[T], e Expr[T]) {
	if !isGenerator(e) && !dst.shape.Equal(e.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v = %v", op, dst.shape, e.Shape()))
	}
	if err := dst.EnsureCPUUpToDate(); err != nil {
		panic(fmt.Sprintf("%s: destination unavailable: %v", op, err))
	}

	if t, ok := e.(*Temporary[T]); ok && op == opAssign && !t.evaluated && !t.Alias(dst) &&
		(t.kernel.Order() == dst.order || len(dst.shape) < 2) {
		t.applyTo(ctx, dst)
		finish(ctx, dst, e)
		return
	}

	if e.Alias(dst) && !e.Traits().Linear {
		e = NewTemporary[T](&copyKernel[T]{src: e})
	}

	Evaluate(ctx, e)
	sink(ctx, op, dst, e)
	finish(ctx, dst, e)
}

// finish makes the host copy of dst the only current one and releases the
// device memory of the temporaries.
func finish[T tensor.Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	dst.InvalidateGPU()
	if err := Release(ctx, e); err != nil {
		logging.Logger().ErrorContext(ctx, "releasing device memory failed", "error", err)
	}
}

// sink writes e into dst element by element with op.
func sink[T tensor.Numeric](ctx context.Context, op assignOp, dst *Dense[T], e Expr[T]) {
	data := dst.data
	fn := combiner[T](op)
	tr := e.Traits()
	if !tr.ThreadSafe {
		ctx = parallel.WithSerial(ctx)
	}
	cfg := parallel.DefaultConfig().ForBytes(tensor.TypeOf[T]().Size())

	if !tr.Generator && tr.Order != dst.order && len(dst.shape) > 1 {
		parallel.Dispatch1D(ctx, 0, len(data), func(first, last int) {
			idx := make([]int, len(dst.shape))
			for i := first; i < last; i++ {
				dst.shape.Unravel(dst.order, i, idx)
				data[i] = store(fn, data[i], e.AtIndex(idx...))
			}
		}, cfg)
		return
	}

	f := config.Get()
	lanes := tensor.Lanes[T](f.Vector)
	vectorize := f.VectorizeExpr && tr.VectorizableFor(f.Vector) && lanes > 1

	parallel.Dispatch1D(ctx, 0, len(data), func(first, last int) {
		i := first
		if vectorize {
			for ; i+lanes <= last; i += lanes {
				v := e.Load(i, lanes)
				for k := range lanes {
					data[i+k] = store(fn, data[i+k], v[k])
				}
			}
		}
		for ; i < last; i++ {
			data[i] = store(fn, data[i], e.At(i))
		}
	}, cfg)
}

func store[T tensor.Numeric](fn func(d, v T) T, d, v T) T {
	if fn == nil {
		return v
	}
	return fn(d, v)
}
