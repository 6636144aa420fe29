package expr

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Unary applies an element-wise function to one operand.
type Unary[T tensor.Numeric] struct {
	operand Expr[T]
	op      UnaryOp[T]
}

// NewUnary returns op applied to e.
func NewUnary[T tensor.Numeric](op UnaryOp[T], e Expr[T]) *Unary[T] {
	return &Unary[T]{operand: e, op: op}
}

// Op returns the applied function.
func (u *Unary[T]) Op() UnaryOp[T] { return u.op }

// Traits implements Expr.
func (u *Unary[T]) Traits() tensor.Traits {
	tr := u.operand.Traits()
	tr.Direct, tr.Temporary, tr.GPU = false, false, false
	tr.Vectorizable = tr.Vectorizable && u.op.Vectorizable
	tr.ThreadSafe = tr.ThreadSafe && u.op.ThreadSafe
	return tr
}

func (u *Unary[T]) Shape() tensor.Shape { return u.operand.Shape() }
func (u *Unary[T]) Dims() int           { return u.operand.Dims() }
func (u *Unary[T]) Dim(d int) int       { return u.operand.Dim(d) }
func (u *Unary[T]) Size() int           { return u.operand.Size() }

func (u *Unary[T]) At(i int) T { return u.op.Fn(u.operand.At(i)) }

func (u *Unary[T]) AtIndex(idx ...int) T { return u.op.Fn(u.operand.AtIndex(idx...)) }

func (u *Unary[T]) Load(i, lanes int) tensor.Vec[T] {
	v := u.operand.Load(i, lanes)
	for k := range lanes {
		v[k] = u.op.Fn(v[k])
	}
	return v
}

func (u *Unary[T]) Alias(d *Dense[T]) bool { return u.operand.Alias(d) }

func (u *Unary[T]) Visit(ctx context.Context, v *Visitor) {
	if v.Kind == VisitEvaluate {
		v.withNeed(ctx, u.operand, true)
		return
	}
	u.operand.Visit(ctx, v)
}

func (u *Unary[T]) String() string { return fmt.Sprintf("%s(%v)", u.op.Name, u.operand) }

// Binary applies an element-wise function to two operands of the same shape
// and order. Either may be a generator.
type Binary[T tensor.Numeric] struct {
	lhs, rhs Expr[T]
	op       BinaryOp[T]
}

// NewBinary returns op applied to lhs and rhs. It panics when the shapes
// or orders of non-generator operands differ.
func NewBinary[T tensor.Numeric](op BinaryOp[T], lhs, rhs Expr[T]) *Binary[T] {
	checkElementwise(op.Name, lhs, rhs)
	return &Binary[T]{lhs: lhs, rhs: rhs, op: op}
}

func (b *Binary[T]) Op() BinaryOp[T] { return b.op }

func checkElementwise[T tensor.Numeric](name string, lhs, rhs Expr[T]) {
	lt, rt := lhs.Traits(), rhs.Traits()
	if lt.Generator || rt.Generator {
		return
	}
	if !lhs.Shape().Equal(rhs.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", name, lhs.Shape(), rhs.Shape()))
	}
	if lt.Order != rt.Order {
		panic(fmt.Sprintf("%s: storage order mismatch %s vs %s", name, lt.Order, rt.Order))
	}
}

// driving returns the operand providing shape and order.
func (b *Binary[T]) driving() Expr[T] {
	if isGenerator(b.lhs) {
		return b.rhs
	}
	return b.lhs
}

// Traits implements Expr.
func (b *Binary[T]) Traits() tensor.Traits {
	lt, rt := b.lhs.Traits(), b.rhs.Traits()
	return tensor.Traits{
		DType:          lt.DType,
		Order:          b.driving().Traits().Order,
		Generator:      lt.Generator && rt.Generator,
		Linear:         lt.Linear && rt.Linear && b.op.Linear,
		ThreadSafe:     lt.ThreadSafe && rt.ThreadSafe,
		Fast:           lt.Fast && rt.Fast,
		Vectorizable:   lt.Vectorizable && rt.Vectorizable && b.op.Vectorizable,
		NeedsEvaluator: lt.NeedsEvaluator || rt.NeedsEvaluator,
	}
}

func (b *Binary[T]) Shape() tensor.Shape { return b.driving().Shape() }
func (b *Binary[T]) Dims() int           { return b.driving().Dims() }
func (b *Binary[T]) Dim(d int) int       { return b.driving().Dim(d) }
func (b *Binary[T]) Size() int           { return b.driving().Size() }

func (b *Binary[T]) At(i int) T { return b.op.Fn(b.lhs.At(i), b.rhs.At(i)) }

// AtIndex implements Expr. Generators are read at the flat position of the
// index in the driving operand.
func (b *Binary[T]) AtIndex(idx ...int) T {
	return b.op.Fn(b.operandAt(b.lhs, idx), b.operandAt(b.rhs, idx))
}

func (b *Binary[T]) operandAt(e Expr[T], idx []int) T {
	if !isGenerator(e) || len(idx) == 0 {
		return e.AtIndex(idx...)
	}
	d := b.driving()
	return e.At(d.Shape().Offset(d.Traits().Order, idx...))
}

func (b *Binary[T]) Load(i, lanes int) tensor.Vec[T] {
	l := b.lhs.Load(i, lanes)
	r := b.rhs.Load(i, lanes)
	for k := range lanes {
		l[k] = b.op.Fn(l[k], r[k])
	}
	return l
}

func (b *Binary[T]) Alias(d *Dense[T]) bool { return b.lhs.Alias(d) || b.rhs.Alias(d) }

func (b *Binary[T]) Visit(ctx context.Context, v *Visitor) {
	if v.Kind == VisitEvaluate {
		v.withNeed(ctx, b.lhs, true)
		v.withNeed(ctx, b.rhs, true)
		return
	}
	b.lhs.Visit(ctx, v)
	b.rhs.Visit(ctx, v)
}

func (b *Binary[T]) String() string { return fmt.Sprintf("(%v %s %v)", b.lhs, b.op.Name, b.rhs) }

// generator holds the parts shared by shapeless nodes.
type generator[T tensor.Numeric] struct{}

func (generator[T]) Traits() tensor.Traits {
	return tensor.Traits{
		DType:        tensor.TypeOf[T](),
		Generator:    true,
		Linear:       true,
		ThreadSafe:   true,
		Fast:         true,
		Vectorizable: true,
	}
}

func (generator[T]) Shape() tensor.Shape             { return nil }
func (generator[T]) Dims() int                       { return 0 }
func (generator[T]) Dim(int) int                     { panic("dim: generators have no dimensions") }
func (generator[T]) Size() int                       { return 1 }
func (generator[T]) Alias(*Dense[T]) bool            { return false }
func (generator[T]) Visit(context.Context, *Visitor) {}

// Scalar is a constant broadcast to any shape.
type Scalar[T tensor.Numeric] struct {
	generator[T]
	Value T
}

// NewScalar returns the constant v.
func NewScalar[T tensor.Numeric](v T) *Scalar[T] { return &Scalar[T]{Value: v} }

func (s *Scalar[T]) At(int) T         { return s.Value }
func (s *Scalar[T]) AtIndex(...int) T { return s.Value }
func (s *Scalar[T]) String() string   { return fmt.Sprint(s.Value) }

func (s *Scalar[T]) Load(_, lanes int) tensor.Vec[T] {
	var v tensor.Vec[T]
	for k := range lanes {
		v[k] = s.Value
	}
	return v
}

// Sequence yields Start + i*Step at flat position i.
type Sequence[T tensor.Numeric] struct {
	generator[T]
	Start, Step T
}

// NewSequence returns the arithmetic sequence from start by step.
func NewSequence[T tensor.Numeric](start, step T) *Sequence[T] {
	return &Sequence[T]{Start: start, Step: step}
}

func (s *Sequence[T]) At(i int) T { return s.Start + T(i)*s.Step }

// AtIndex implements Expr with the last index as the position.
func (s *Sequence[T]) AtIndex(idx ...int) T {
	if len(idx) == 0 {
		return s.Start
	}
	return s.At(idx[len(idx)-1])
}

func (s *Sequence[T]) Load(i, lanes int) tensor.Vec[T] {
	var v tensor.Vec[T]
	for k := range lanes {
		v[k] = s.At(i + k)
	}
	return v
}

func (s *Sequence[T]) String() string { return fmt.Sprintf("seq(%v, %v)", s.Start, s.Step) }

// Transpose is the transposed view of a 2-D expression. Element i of the
// view is not element i of its operand, so it is not linear.
type Transpose[T tensor.Numeric] struct {
	operand Expr[T]
	shape   tensor.Shape
}

// NewTranspose returns the transposed view of e. It panics unless e is 2-D.
func NewTranspose[T tensor.Numeric](e Expr[T]) *Transpose[T] {
	if e.Dims() != 2 {
		panic(fmt.Sprintf("transpose: expected a 2-D expression, got %d-D", e.Dims()))
	}
	return &Transpose[T]{operand: e, shape: tensor.Shape{e.Dim(1), e.Dim(0)}}
}

// Operand returns the transposed expression.
func (t *Transpose[T]) Operand() Expr[T] { return t.operand }

func (t *Transpose[T]) Traits() tensor.Traits {
	tr := t.operand.Traits()
	tr.Direct, tr.Temporary, tr.GPU = false, false, false
	tr.Linear, tr.Vectorizable = false, false
	return tr
}

func (t *Transpose[T]) Shape() tensor.Shape { return t.shape }
func (t *Transpose[T]) Dims() int           { return 2 }
func (t *Transpose[T]) Dim(d int) int       { return dimOf(t.shape, d) }
func (t *Transpose[T]) Size() int           { return t.operand.Size() }

func (t *Transpose[T]) At(i int) T {
	var idx [2]int
	t.shape.Unravel(t.operand.Traits().Order, i, idx[:])
	return t.operand.AtIndex(idx[1], idx[0])
}

func (t *Transpose[T]) AtIndex(idx ...int) T {
	if len(idx) != 2 {
		panic(fmt.Sprintf("index: expected 2 indices, got %d", len(idx)))
	}
	return t.operand.AtIndex(idx[1], idx[0])
}

func (t *Transpose[T]) Load(i, lanes int) tensor.Vec[T] {
	var v tensor.Vec[T]
	for k := range lanes {
		v[k] = t.At(i + k)
	}
	return v
}

func (t *Transpose[T]) Alias(d *Dense[T]) bool { return t.operand.Alias(d) }

func (t *Transpose[T]) Visit(ctx context.Context, v *Visitor) {
	if v.Kind == VisitEvaluate {
		v.withNeed(ctx, t.operand, true)
		return
	}
	t.operand.Visit(ctx, v)
}

func (t *Transpose[T]) String() string { return fmt.Sprintf("transpose(%v)", t.operand) }

// View reads a rearranged part of its operand without copying it: a
// reshape, a row, a column, a sub-view or a slice. Elements are read
// through the logical index of the operand, so a view is not linear.
type View[T tensor.Numeric] struct {
	operand Expr[T]
	name    string
	shape   tensor.Shape
	order   tensor.Order

	// locate writes into dst the operand index of the view index idx.
	locate func(dst, idx []int)
}

func newView[T tensor.Numeric](name string, e Expr[T], shape tensor.Shape, locate func(dst, idx []int)) *View[T] {
	return &View[T]{operand: e, name: name, shape: shape, order: e.Traits().Order, locate: locate}
}

func checkViewable[T tensor.Numeric](name string, e Expr[T], minDims int) {
	if isGenerator(e) {
		panic(name + ": generators have no shape")
	}
	if e.Dims() < minDims {
		panic(fmt.Sprintf("%s: expected at least %d dimensions, got %d", name, minDims, e.Dims()))
	}
}

// NewReshape returns e seen with the given shape. Elements keep their
// row-major position. It panics when the element counts differ.
func NewReshape[T tensor.Numeric](e Expr[T], shape tensor.Shape) *View[T] {
	checkViewable("reshape", e, 1)
	if len(shape) == 0 {
		panic("reshape: empty shape")
	}
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	if shape.NumElements() != e.Size() {
		panic(fmt.Sprintf("reshape: cannot view %v as %v", e.Shape(), shape))
	}
	src, dst := e.Shape(), shape.Clone()
	return newView("reshape", e, dst, func(out, idx []int) {
		src.Unravel(tensor.RowMajor, dst.Offset(tensor.RowMajor, idx...), out)
	})
}

// NewSub returns the sub-view of e at index i of its first dimension.
func NewSub[T tensor.Numeric](e Expr[T], i int) *View[T] {
	checkViewable("sub", e, 2)
	if i < 0 || i >= e.Dim(0) {
		panic(fmt.Sprintf("sub: %d out of range for %v", i, e.Shape()))
	}
	return newView("sub", e, e.Shape()[1:].Clone(), func(out, idx []int) {
		out[0] = i
		copy(out[1:], idx)
	})
}

// NewRow returns row i of a matrix.
func NewRow[T tensor.Numeric](e Expr[T], i int) *View[T] {
	if e.Dims() != 2 {
		panic(fmt.Sprintf("row: expected a 2-D expression, got %d-D", e.Dims()))
	}
	v := NewSub(e, i)
	v.name = "row"
	return v
}

// NewCol returns column j of a matrix.
func NewCol[T tensor.Numeric](e Expr[T], j int) *View[T] {
	if e.Dims() != 2 {
		panic(fmt.Sprintf("col: expected a 2-D expression, got %d-D", e.Dims()))
	}
	if j < 0 || j >= e.Dim(1) {
		panic(fmt.Sprintf("col: %d out of range for %v", j, e.Shape()))
	}
	return newView("col", e, tensor.Shape{e.Dim(0)}, func(out, idx []int) {
		out[0], out[1] = idx[0], j
	})
}

// NewSlice returns the indices [first, last) of the first dimension of e.
func NewSlice[T tensor.Numeric](e Expr[T], first, last int) *View[T] {
	checkViewable("slice", e, 1)
	if first < 0 || first >= last || last > e.Dim(0) {
		panic(fmt.Sprintf("slice: invalid range [%d,%d) for %v", first, last, e.Shape()))
	}
	shape := e.Shape().Clone()
	shape[0] = last - first
	return newView("slice", e, shape, func(out, idx []int) {
		copy(out, idx)
		out[0] += first
	})
}

// Operand returns the viewed expression.
func (v *View[T]) Operand() Expr[T] { return v.operand }

func (v *View[T]) Traits() tensor.Traits {
	tr := v.operand.Traits()
	tr.Order = v.order
	tr.Direct, tr.Temporary, tr.GPU = false, false, false
	tr.Linear, tr.Vectorizable = false, false
	return tr
}

func (v *View[T]) Shape() tensor.Shape { return v.shape }
func (v *View[T]) Dims() int           { return len(v.shape) }
func (v *View[T]) Dim(d int) int       { return dimOf(v.shape, d) }
func (v *View[T]) Size() int           { return sizeOf(v.shape) }

func (v *View[T]) At(i int) T {
	return v.AtIndex(v.shape.Unravel(v.order, i, nil)...)
}

func (v *View[T]) AtIndex(idx ...int) T {
	if len(idx) != len(v.shape) {
		panic(fmt.Sprintf("index: expected %d indices, got %d", len(v.shape), len(idx)))
	}
	out := make([]int, v.operand.Dims())
	v.locate(out, idx)
	return v.operand.AtIndex(out...)
}

func (v *View[T]) Load(i, lanes int) tensor.Vec[T] {
	var out tensor.Vec[T]
	for k := range lanes {
		out[k] = v.At(i + k)
	}
	return out
}

func (v *View[T]) Alias(d *Dense[T]) bool { return v.operand.Alias(d) }

func (v *View[T]) Visit(ctx context.Context, vis *Visitor) {
	if vis.Kind == VisitEvaluate {
		vis.withNeed(ctx, v.operand, true)
		return
	}
	v.operand.Visit(ctx, vis)
}

func (v *View[T]) String() string { return fmt.Sprintf("%s(%v)", v.name, v.operand) }
