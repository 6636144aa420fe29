package expr

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// materialized returns e when its memory can be handed to a provider, and a
// copying temporary otherwise. Transposed views of direct nodes are kept:
// matrix providers take them as transpose flags.
func materialized[T tensor.Numeric](e Expr[T]) Expr[T] {
	switch x := e.(type) {
	case direct[T]:
		return e
	case *Transpose[T]:
		if _, ok := x.operand.(direct[T]); ok {
			return e
		}
	}
	return NewTemporary[T](&copyKernel[T]{src: e})
}

// operandOf is the selector view of a materialized operand.
func operandOf[T tensor.Numeric](e Expr[T]) selector.Operand {
	op := selector.OperandOf(e.Traits())
	op.Direct, op.Vectorizable = true, true
	return op
}

// matOf returns the matrix view of a materialized 2-D operand.
func matOf[T tensor.Numeric](e Expr[T]) tensor.Mat[T] {
	switch x := e.(type) {
	case *Transpose[T]:
		return matOf(x.operand).T()
	case direct[T]:
		d := x.dense()
		r, c := d.shape[0], d.shape[1]
		if d.order == tensor.ColumnMajor {
			return tensor.Mat[T]{Data: d.data, Rows: c, Cols: r, Trans: true}
		}
		return tensor.Mat[T]{Data: d.data, Rows: r, Cols: c}
	default:
		panic(fmt.Sprintf("unreachable: %T is not a matrix operand", e))
	}
}

// vecOf returns the memory of a materialized 1-D operand.
func vecOf[T tensor.Numeric](e Expr[T]) []T {
	d, ok := e.(direct[T])
	if !ok {
		panic(fmt.Sprintf("unreachable: %T is not a vector operand", e))
	}
	return d.dense().data
}

// rowMajor returns the elements of a materialized operand in row-major
// order, copying only when the storage order differs.
func rowMajor[T tensor.Numeric](e Expr[T]) []T {
	if d, ok := e.(direct[T]); ok && (d.Traits().Order == tensor.RowMajor || d.Dims() < 2) {
		return d.dense().data
	}
	shape := e.Shape()
	out := make([]T, shape.NumElements())
	idx := make([]int, len(shape))
	for i := range out {
		shape.Unravel(tensor.RowMajor, i, idx)
		out[i] = e.AtIndex(idx...)
	}
	return out
}

// residentOperand reports whether a device kernel can read e through its
// mirror: a direct node stored row-major.
func residentOperand[T tensor.Numeric](e Expr[T]) bool {
	_, ok := e.(direct[T])
	return ok && (e.Dims() < 2 || e.Traits().Order == tensor.RowMajor)
}

// fillRowMajor runs fill on a row-major buffer and stores the result into
// out in its own order.
func fillRowMajor[T tensor.Numeric](out *Dense[T], fill func(dst []T)) {
	if out.order == tensor.RowMajor || len(out.shape) < 2 {
		fill(out.data)
		return
	}
	tmp := make([]T, len(out.data))
	fill(tmp)
	idx := make([]int, len(out.shape))
	for i, v := range tmp {
		out.shape.Unravel(tensor.RowMajor, i, idx)
		out.data[out.shape.Offset(tensor.ColumnMajor, idx...)] = v
	}
}

// copyKernel materializes an expression.
type copyKernel[T tensor.Numeric] struct {
	src Expr[T]
}

func (k *copyKernel[T]) Name() string { return "materialize" }

func (k *copyKernel[T]) Shape() tensor.Shape { return k.src.Shape() }

func (k *copyKernel[T]) Order() tensor.Order { return k.src.Traits().Order }

func (k *copyKernel[T]) Operands() []Expr[T] { return []Expr[T]{k.src} }

func (k *copyKernel[T]) Resident(selector.Impl) bool { return false }

func (k *copyKernel[T]) Apply(ctx context.Context, _ selector.Impl, out *Dense[T]) error {
	sink(ctx, opAssign, out, k.src)
	return nil
}
