package expr

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/backend/blas"
	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/backend/std"
	"github.com/born-ml/tensorexpr/internal/backend/vec"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// product computes matrix and vector products: GEMM (2-D x 2-D), GEMV
// (2-D x 1-D), GEVM (1-D x 2-D) and the outer product of two vectors.
type product[T tensor.Numeric] struct {
	family   selector.Family
	lhs, rhs Expr[T]
	shape    tensor.Shape
	order    tensor.Order
}

func newProduct[T tensor.Numeric](lhs, rhs Expr[T]) *product[T] {
	p := &product[T]{lhs: materialized(lhs), rhs: materialized(rhs)}
	switch {
	case lhs.Dims() == 2 && rhs.Dims() == 2:
		p.family = selector.GEMM
		if lhs.Dim(1) != rhs.Dim(0) {
			panic(fmt.Sprintf("gemm: inner dimensions do not match %v @ %v", lhs.Shape(), rhs.Shape()))
		}
		p.shape = tensor.Shape{lhs.Dim(0), rhs.Dim(1)}
		p.order = lhs.Traits().Order
	case lhs.Dims() == 2 && rhs.Dims() == 1:
		p.family = selector.GEMV
		if lhs.Dim(1) != rhs.Dim(0) {
			panic(fmt.Sprintf("gemv: inner dimensions do not match %v @ %v", lhs.Shape(), rhs.Shape()))
		}
		p.shape = tensor.Shape{lhs.Dim(0)}
	case lhs.Dims() == 1 && rhs.Dims() == 2:
		p.family = selector.GEVM
		if lhs.Dim(0) != rhs.Dim(0) {
			panic(fmt.Sprintf("gevm: inner dimensions do not match %v @ %v", lhs.Shape(), rhs.Shape()))
		}
		p.shape = tensor.Shape{rhs.Dim(1)}
	default:
		panic(fmt.Sprintf("mul: unsupported ranks %d and %d", lhs.Dims(), rhs.Dims()))
	}
	return p
}

func newOuter[T tensor.Numeric](lhs, rhs Expr[T]) *product[T] {
	if lhs.Dims() != 1 || rhs.Dims() != 1 {
		panic(fmt.Sprintf("outer: expected vectors, got %d-D and %d-D", lhs.Dims(), rhs.Dims()))
	}
	return &product[T]{
		family: selector.Outer,
		lhs:    materialized(lhs),
		rhs:    materialized(rhs),
		shape:  tensor.Shape{lhs.Dim(0), rhs.Dim(0)},
	}
}

// newBatchOuter returns the sum over a batch of the outer products of the
// rows of lhs (B x M) and rhs (B x N), that is lhs^T * rhs.
func newBatchOuter[T tensor.Numeric](lhs, rhs Expr[T]) *product[T] {
	if lhs.Dims() != 2 || rhs.Dims() != 2 {
		panic(fmt.Sprintf("batch_outer: expected matrices, got %d-D and %d-D", lhs.Dims(), rhs.Dims()))
	}
	if lhs.Dim(0) != rhs.Dim(0) {
		panic(fmt.Sprintf("batch_outer: batch sizes do not match %v vs %v", lhs.Shape(), rhs.Shape()))
	}
	return &product[T]{
		family: selector.BatchOuter,
		lhs:    materialized(lhs),
		rhs:    materialized(rhs),
		shape:  tensor.Shape{lhs.Dim(1), rhs.Dim(1)},
		order:  lhs.Traits().Order,
	}
}

func (p *product[T]) Name() string        { return p.family.String() }
func (p *product[T]) Shape() tensor.Shape { return p.shape }
func (p *product[T]) Order() tensor.Order { return p.order }
func (p *product[T]) Operands() []Expr[T] { return []Expr[T]{p.lhs, p.rhs} }

func (p *product[T]) Request() selector.Request {
	req := selector.Request{
		Family:   p.family,
		Operands: []selector.Operand{operandOf(p.lhs), operandOf(p.rhs)},
	}
	switch p.family {
	case selector.GEMM:
		req.M, req.K, req.N = p.lhs.Dim(0), p.lhs.Dim(1), p.rhs.Dim(1)
	case selector.GEMV:
		req.M, req.N = p.lhs.Dim(0), p.lhs.Dim(1)
	case selector.GEVM:
		req.M, req.N = p.rhs.Dim(0), p.rhs.Dim(1)
	case selector.Outer:
		req.M, req.N = p.lhs.Dim(0), p.rhs.Dim(0)
	case selector.BatchOuter:
		req.M, req.K, req.N = p.lhs.Dim(1), p.lhs.Dim(0), p.rhs.Dim(1)
	}
	return req
}

// Resident implements Kernel. Row-major direct operands are read from the
// device and the result stays there.
func (p *product[T]) Resident(impl selector.Impl) bool {
	return impl == selector.GPU && p.family != selector.Outer && p.family != selector.BatchOuter &&
		residentOperand(p.lhs) && residentOperand(p.rhs)
}

func (p *product[T]) Apply(ctx context.Context, impl selector.Impl, out *Dense[T]) error {
	switch p.family {
	case selector.GEMM:
		a, b := matOf(p.lhs), matOf(p.rhs)
		if out.order == tensor.ColumnMajor {
			// (AB)^T = B^T A^T stored row-major is AB stored column-major.
			a, b = b.T(), a.T()
		}
		switch impl {
		case selector.Std:
			std.Gemm(ctx, a, b, out.data)
		case selector.Vec:
			vec.Gemm(ctx, a, b, out.data)
		case selector.Blas:
			blas.Gemm(a, b, out.data)
		case selector.GPU:
			return p.onDevice(a, b, out)
		default:
			panic(fmt.Sprintf("unreachable: gemm implementation %s", impl))
		}
	case selector.GEMV:
		a, x := matOf(p.lhs), vecOf(p.rhs)
		switch impl {
		case selector.Std:
			std.Gemv(ctx, a, x, out.data)
		case selector.Vec:
			vec.Gemv(ctx, a, x, out.data)
		case selector.Blas:
			blas.Gemv(a, x, out.data)
		case selector.GPU:
			return p.onDevice(a, tensor.Mat[T]{Data: x, Rows: len(x), Cols: 1}, out)
		default:
			panic(fmt.Sprintf("unreachable: gemv implementation %s", impl))
		}
	case selector.GEVM:
		x, b := vecOf(p.lhs), matOf(p.rhs)
		switch impl {
		case selector.Std:
			std.Gevm(ctx, x, b, out.data)
		case selector.Vec:
			vec.Gevm(ctx, x, b, out.data)
		case selector.Blas:
			blas.Gevm(x, b, out.data)
		case selector.GPU:
			return p.onDevice(tensor.Mat[T]{Data: x, Rows: 1, Cols: len(x)}, b, out)
		default:
			panic(fmt.Sprintf("unreachable: gevm implementation %s", impl))
		}
	case selector.BatchOuter:
		a, b := matOf(p.lhs).T(), matOf(p.rhs)
		if out.order == tensor.ColumnMajor {
			a, b = b.T(), a.T()
		}
		switch impl {
		case selector.Std:
			std.Gemm(ctx, a, b, out.data)
		case selector.Blas:
			blas.Gemm(a, b, out.data)
		default:
			panic(fmt.Sprintf("unreachable: batch_outer implementation %s", impl))
		}
	case selector.Outer:
		a, b := vecOf(p.lhs), vecOf(p.rhs)
		switch impl {
		case selector.Std:
			std.Outer(a, b, out.data)
		case selector.Blas:
			blas.Outer(a, b, out.data)
		default:
			panic(fmt.Sprintf("unreachable: outer implementation %s", impl))
		}
	}
	return nil
}

// onDevice runs the product as one device matmul of a (m x k) and b (k x n).
func (p *product[T]) onDevice(a, b tensor.Mat[T], out *Dense[T]) error {
	m, k := a.Dims()
	_, n := b.Dims()
	if p.Resident(selector.GPU) {
		l, r := p.lhs.(direct[T]).dense(), p.rhs.(direct[T]).dense()
		return gpu.MatMulResident(l.mirror, r.mirror, out.mirror,
			tensor.Bytes(l.data), tensor.Bytes(r.data), m, k, n)
	}
	return gpu.Gemm(gpu.Default(),
		tensor.AsFloat32(a.Materialize().Data),
		tensor.AsFloat32(b.Materialize().Data),
		tensor.AsFloat32(out.data), m, k, n)
}
