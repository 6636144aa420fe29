package expr

import (
	"context"

	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Element-wise binary builders. Shapes and orders of non-generator operands
// must match.

// Add returns a + b.
func Add[T tensor.Numeric](a, b Expr[T]) Expr[T] { return NewBinary(AddOp[T](), a, b) }

// Sub returns a - b.
func Sub[T tensor.Numeric](a, b Expr[T]) Expr[T] { return NewBinary(SubOp[T](), a, b) }

// Hadamard returns the element-wise product of a and b.
func Hadamard[T tensor.Numeric](a, b Expr[T]) Expr[T] { return NewBinary(HadamardOp[T](), a, b) }

// Div returns a / b element-wise.
func Div[T tensor.Numeric](a, b Expr[T]) Expr[T] { return NewBinary(DivOp[T](), a, b) }

// Mod returns the element-wise remainder of a / b.
func Mod[T tensor.Numeric](a, b Expr[T]) Expr[T] { return NewBinary(ModOp[T](), a, b) }

// MaxOf returns the element-wise maximum of a and b.
func MaxOf[T tensor.Numeric](a, b Expr[T]) Expr[T] { return NewBinary(MaxOp[T](), a, b) }

// MinOf returns the element-wise minimum of a and b.
func MinOf[T tensor.Numeric](a, b Expr[T]) Expr[T] { return NewBinary(MinOp[T](), a, b) }

// Pow returns a raised to b element-wise.
func Pow[T tensor.Numeric](a, b Expr[T]) Expr[T] { return NewBinary(PowOp[T](), a, b) }

// AddScalar returns e + v.
func AddScalar[T tensor.Numeric](e Expr[T], v T) Expr[T] { return Add(e, Expr[T](NewScalar(v))) }

// SubScalar returns e - v.
func SubScalar[T tensor.Numeric](e Expr[T], v T) Expr[T] { return Sub(e, Expr[T](NewScalar(v))) }

// Scale returns e * v.
func Scale[T tensor.Numeric](e Expr[T], v T) Expr[T] { return Hadamard(e, Expr[T](NewScalar(v))) }

// DivScalar returns e / v. Floating-point division becomes a multiplication
// by 1/v unless StrictDiv is set.
func DivScalar[T tensor.Numeric](e Expr[T], v T) Expr[T] {
	if tensor.TypeOf[T]().IsFloat() && !config.Get().StrictDiv {
		return Scale(e, 1/v)
	}
	return Div(e, Expr[T](NewScalar(v)))
}

// ModScalar returns the remainder of e / v.
func ModScalar[T tensor.Numeric](e Expr[T], v T) Expr[T] { return Mod(e, Expr[T](NewScalar(v))) }

// PowScalar returns e raised to v.
func PowScalar[T tensor.Numeric](e Expr[T], v T) Expr[T] { return Pow(e, Expr[T](NewScalar(v))) }

// Unary builders.

func Neg[T tensor.Numeric](e Expr[T]) Expr[T]     { return NewUnary(NegOp[T](), e) }
func Abs[T tensor.Numeric](e Expr[T]) Expr[T]     { return NewUnary(AbsOp[T](), e) }
func Sqrt[T tensor.Numeric](e Expr[T]) Expr[T]    { return NewUnary(SqrtOp[T](), e) }
func InvSqrt[T tensor.Numeric](e Expr[T]) Expr[T] { return NewUnary(InvSqrtOp[T](), e) }
func Cbrt[T tensor.Numeric](e Expr[T]) Expr[T]    { return NewUnary(CbrtOp[T](), e) }
func Exp[T tensor.Numeric](e Expr[T]) Expr[T]     { return NewUnary(ExpOp[T](), e) }
func Log[T tensor.Numeric](e Expr[T]) Expr[T]     { return NewUnary(LogOp[T](), e) }
func Sin[T tensor.Numeric](e Expr[T]) Expr[T]     { return NewUnary(SinOp[T](), e) }
func Cos[T tensor.Numeric](e Expr[T]) Expr[T]     { return NewUnary(CosOp[T](), e) }
func Tan[T tensor.Numeric](e Expr[T]) Expr[T]     { return NewUnary(TanOp[T](), e) }
func Sinh[T tensor.Numeric](e Expr[T]) Expr[T]    { return NewUnary(SinhOp[T](), e) }
func Cosh[T tensor.Numeric](e Expr[T]) Expr[T]    { return NewUnary(CoshOp[T](), e) }
func Tanh[T tensor.Numeric](e Expr[T]) Expr[T]    { return NewUnary(TanhOp[T](), e) }
func Sigmoid[T tensor.Numeric](e Expr[T]) Expr[T] { return NewUnary(SigmoidOp[T](), e) }
func Relu[T tensor.Numeric](e Expr[T]) Expr[T]    { return NewUnary(ReluOp[T](), e) }
func Sign[T tensor.Numeric](e Expr[T]) Expr[T]    { return NewUnary(SignOp[T](), e) }
func Floor[T tensor.Numeric](e Expr[T]) Expr[T]   { return NewUnary(FloorOp[T](), e) }
func Ceil[T tensor.Numeric](e Expr[T]) Expr[T]    { return NewUnary(CeilOp[T](), e) }

// Clip clamps every element into [lo, hi].
func Clip[T tensor.Numeric](e Expr[T], lo, hi T) Expr[T] {
	if lo > hi {
		panic("clip: empty range")
	}
	return NewUnary(ClipOp(lo, hi), e)
}

// OneIf returns 1 where e equals v and 0 elsewhere.
func OneIf[T tensor.Numeric](e Expr[T], v T) Expr[T] { return NewUnary(OneIfOp(v), e) }

// Trans returns the transpose of a 2-D expression.
func Trans[T tensor.Numeric](e Expr[T]) Expr[T] { return NewTranspose(e) }

// Products.

// Mul returns the matrix product of a and b, dispatched on the ranks:
// GEMM for 2-D x 2-D, GEMV for 2-D x 1-D and GEVM for 1-D x 2-D.
func Mul[T tensor.Numeric](a, b Expr[T]) *Temporary[T] {
	return NewTemporary[T](newProduct(a, b))
}

// Outer returns the outer product of two vectors.
func Outer[T tensor.Numeric](a, b Expr[T]) *Temporary[T] {
	return NewTemporary[T](newOuter(a, b))
}

// BatchOuter returns the sum of the outer products of the rows of a (B x M)
// and b (B x N), an M x N matrix.
func BatchOuter[T tensor.Numeric](a, b Expr[T]) *Temporary[T] {
	return NewTemporary[T](newBatchOuter(a, b))
}

// Convolutions. Without Flipped the kernel is flipped, which computes the
// mathematical convolution.

func Conv1Valid[T tensor.Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConv1(in, kernel, selector.Valid, opts))
}

func Conv1Same[T tensor.Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConv1(in, kernel, selector.Same, opts))
}

func Conv1Full[T tensor.Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConv1(in, kernel, selector.Full, opts))
}

// Conv2Valid convolves the last two dimensions. Inputs of rank above 2
// pair each leading plane of in with the same plane of kernel.
func Conv2Valid[T tensor.Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConv2(in, kernel, selector.Valid, opts))
}

func Conv2Same[T tensor.Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConv2(in, kernel, selector.Same, opts))
}

func Conv2Full[T tensor.Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConv2(in, kernel, selector.Full, opts))
}

// Conv2ValidMulti convolves a 2-D input with K kernels of shape K x KH x KW
// into K output planes.
func Conv2ValidMulti[T tensor.Numeric](in, kernels Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConvMulti(in, kernels, opts))
}

// Conv4Valid convolves an N x C x H x W batch with K x C x KH x KW kernels
// into N x K x OH x OW.
func Conv4Valid[T tensor.Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConv4(in, kernel, selector.Valid, opts))
}

// Conv4Full is the transposed operation of Conv4Valid: an N x K x H x W
// input and K x C x KH x KW kernels give N x C x (H+KH-1) x (W+KW-1).
func Conv4Full[T tensor.Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newConv4(in, kernel, selector.Full, opts))
}

// MaxPool2D pools the last two dimensions with a c1 x c2 window. The stride
// defaults to the window.
func MaxPool2D[T tensor.Numeric](in Expr[T], c1, c2 int, opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newPool(in, false, c1, c2, opts))
}

// AvgPool2D averages the last two dimensions over a c1 x c2 window.
func AvgPool2D[T tensor.Numeric](in Expr[T], c1, c2 int, opts ...ConvOption) *Temporary[T] {
	return NewTemporary[T](newPool(in, true, c1, c2, opts))
}

// Upsample2D repeats every element of the last two dimensions into a
// c1 x c2 block.
func Upsample2D[T tensor.Numeric](in Expr[T], c1, c2 int) *Temporary[T] {
	return NewTemporary[T](newUpsample(in, c1, c2))
}

// Views. They read their operand in place.

// Reshape returns e seen with shape, elements kept in row-major order.
func Reshape[T tensor.Numeric](e Expr[T], shape ...int) Expr[T] { return NewReshape(e, tensor.Shape(shape)) }

// Row returns row i of a matrix.
func Row[T tensor.Numeric](e Expr[T], i int) Expr[T] { return NewRow(e, i) }

// Col returns column j of a matrix.
func Col[T tensor.Numeric](e Expr[T], j int) Expr[T] { return NewCol(e, j) }

// SubView returns e at index i of its first dimension.
func SubView[T tensor.Numeric](e Expr[T], i int) Expr[T] { return NewSub(e, i) }

// Slice returns indices [first, last) of the first dimension of e.
func Slice[T tensor.Numeric](e Expr[T], first, last int) Expr[T] { return NewSlice(e, first, last) }

// Into forms build the expression, with the same validation, and assign it
// to dst.

// MulInto assigns the product of a and b to dst.
func MulInto[T tensor.Numeric](ctx context.Context, dst *Dense[T], a, b Expr[T]) {
	Assign(ctx, dst, Expr[T](Mul(a, b)))
}

// OuterInto assigns the outer product of a and b to dst.
func OuterInto[T tensor.Numeric](ctx context.Context, dst *Dense[T], a, b Expr[T]) {
	Assign(ctx, dst, Expr[T](Outer(a, b)))
}

// Conv2ValidInto assigns the valid 2-D convolution of in and kernel to dst.
func Conv2ValidInto[T tensor.Numeric](ctx context.Context, dst *Dense[T], in, kernel Expr[T], opts ...ConvOption) {
	Assign(ctx, dst, Expr[T](Conv2Valid(in, kernel, opts...)))
}

// Conv4ValidInto assigns the batched valid convolution to dst.
func Conv4ValidInto[T tensor.Numeric](ctx context.Context, dst *Dense[T], in, kernel Expr[T], opts ...ConvOption) {
	Assign(ctx, dst, Expr[T](Conv4Valid(in, kernel, opts...)))
}

// AddInto assigns a + b to dst.
func AddInto[T tensor.Numeric](ctx context.Context, dst *Dense[T], a, b Expr[T]) {
	Assign(ctx, dst, Add(a, b))
}
