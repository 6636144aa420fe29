// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"context"

	"github.com/born-ml/tensorexpr/internal/expr"
)

// Element-wise operations. Operands must have the same shape and storage
// order; Scalar and Sequence operands match any shape.

// Add returns a + b.
func Add[T Numeric](a, b Expr[T]) Expr[T] { return expr.Add(a, b) }

// Sub returns a - b.
func Sub[T Numeric](a, b Expr[T]) Expr[T] { return expr.Sub(a, b) }

// Hadamard returns the element-wise product of a and b.
func Hadamard[T Numeric](a, b Expr[T]) Expr[T] { return expr.Hadamard(a, b) }

// Div returns a / b element-wise.
func Div[T Numeric](a, b Expr[T]) Expr[T] { return expr.Div(a, b) }

// Mod returns the element-wise remainder of a / b.
func Mod[T Numeric](a, b Expr[T]) Expr[T] { return expr.Mod(a, b) }

// Maximum returns the element-wise maximum of a and b.
func Maximum[T Numeric](a, b Expr[T]) Expr[T] { return expr.MaxOf(a, b) }

// Minimum returns the element-wise minimum of a and b.
func Minimum[T Numeric](a, b Expr[T]) Expr[T] { return expr.MinOf(a, b) }

// Pow returns a raised to b element-wise.
func Pow[T Numeric](a, b Expr[T]) Expr[T] { return expr.Pow(a, b) }

// AddScalar returns e + v.
func AddScalar[T Numeric](e Expr[T], v T) Expr[T] { return expr.AddScalar(e, v) }

// SubScalar returns e - v.
func SubScalar[T Numeric](e Expr[T], v T) Expr[T] { return expr.SubScalar(e, v) }

// Scale returns e * v.
func Scale[T Numeric](e Expr[T], v T) Expr[T] { return expr.Scale(e, v) }

// DivScalar returns e / v. For floating-point types it multiplies by 1/v
// unless Features.StrictDiv is set.
func DivScalar[T Numeric](e Expr[T], v T) Expr[T] { return expr.DivScalar(e, v) }

// PowScalar returns e raised to v.
func PowScalar[T Numeric](e Expr[T], v T) Expr[T] { return expr.PowScalar(e, v) }

func Neg[T Numeric](e Expr[T]) Expr[T]     { return expr.Neg(e) }
func Abs[T Numeric](e Expr[T]) Expr[T]     { return expr.Abs(e) }
func Sqrt[T Numeric](e Expr[T]) Expr[T]    { return expr.Sqrt(e) }
func InvSqrt[T Numeric](e Expr[T]) Expr[T] { return expr.InvSqrt(e) }
func Cbrt[T Numeric](e Expr[T]) Expr[T]    { return expr.Cbrt(e) }
func Exp[T Numeric](e Expr[T]) Expr[T]     { return expr.Exp(e) }
func Log[T Numeric](e Expr[T]) Expr[T]     { return expr.Log(e) }
func Sin[T Numeric](e Expr[T]) Expr[T]     { return expr.Sin(e) }
func Cos[T Numeric](e Expr[T]) Expr[T]     { return expr.Cos(e) }
func Tan[T Numeric](e Expr[T]) Expr[T]     { return expr.Tan(e) }
func Sinh[T Numeric](e Expr[T]) Expr[T]    { return expr.Sinh(e) }
func Cosh[T Numeric](e Expr[T]) Expr[T]    { return expr.Cosh(e) }
func Tanh[T Numeric](e Expr[T]) Expr[T]    { return expr.Tanh(e) }
func Sigmoid[T Numeric](e Expr[T]) Expr[T] { return expr.Sigmoid(e) }
func Relu[T Numeric](e Expr[T]) Expr[T]    { return expr.Relu(e) }
func Sign[T Numeric](e Expr[T]) Expr[T]    { return expr.Sign(e) }
func Floor[T Numeric](e Expr[T]) Expr[T]   { return expr.Floor(e) }
func Ceil[T Numeric](e Expr[T]) Expr[T]    { return expr.Ceil(e) }

// Clip clamps every element into [lo, hi]. It panics if lo > hi.
func Clip[T Numeric](e Expr[T], lo, hi T) Expr[T] { return expr.Clip(e, lo, hi) }

// OneIf returns 1 where e equals v and 0 elsewhere.
func OneIf[T Numeric](e Expr[T], v T) Expr[T] { return expr.OneIf(e, v) }

// Transpose returns the transpose of a 2-D expression.
func Transpose[T Numeric](e Expr[T]) Expr[T] { return expr.Trans(e) }

// Views read their operand in place and are not linear.

// Reshape returns e seen with the given shape. Elements keep their
// row-major position; the element counts must match.
func Reshape[T Numeric](e Expr[T], shape ...int) Expr[T] { return expr.Reshape(e, shape...) }

// Row returns row i of a matrix.
func Row[T Numeric](e Expr[T], i int) Expr[T] { return expr.Row(e, i) }

// Col returns column j of a matrix.
func Col[T Numeric](e Expr[T], j int) Expr[T] { return expr.Col(e, j) }

// SubView returns e at index i of its first dimension.
func SubView[T Numeric](e Expr[T], i int) Expr[T] { return expr.SubView(e, i) }

// Slice returns indices [first, last) of the first dimension of e.
func Slice[T Numeric](e Expr[T], first, last int) Expr[T] { return expr.Slice(e, first, last) }

// Reductions along the first dimension. SumR and MeanR give one value per
// row; SumL and MeanL reduce the rows away.

func SumR[T Numeric](e Expr[T]) Expr[T]  { return expr.SumR(e) }
func MeanR[T Numeric](e Expr[T]) Expr[T] { return expr.MeanR(e) }
func SumL[T Numeric](e Expr[T]) Expr[T]  { return expr.SumL(e) }
func MeanL[T Numeric](e Expr[T]) Expr[T] { return expr.MeanL(e) }

// Mul returns the matrix product of a and b: matrix-matrix for two 2-D
// operands, matrix-vector for 2-D and 1-D, vector-matrix for 1-D and 2-D.
//
// Example:
//
//	c := tensor.Mul(a, b)                 // [M,K] @ [K,N] -> [M,N]
//	y := tensor.Mul(a, x)                 // [M,K] @ [K]   -> [M]
func Mul[T Numeric](a, b Expr[T]) *Temporary[T] { return expr.Mul(a, b) }

// Outer returns the outer product of two vectors.
func Outer[T Numeric](a, b Expr[T]) *Temporary[T] { return expr.Outer(a, b) }

// BatchOuter returns the sum of the outer products of the rows of a
// [B,M] and b [B,N], an [M,N] matrix.
func BatchOuter[T Numeric](a, b Expr[T]) *Temporary[T] { return expr.BatchOuter(a, b) }

// ConvOption configures a convolution or a pooling.
type ConvOption = expr.ConvOption

// Flipped makes a convolution use the kernel as stored, which computes the
// cross-correlation.
func Flipped() ConvOption { return expr.Flipped() }

// Stride sets the per-axis stride of a valid 2-D or 4-D convolution or of
// a pooling.
func Stride(s1, s2 int) ConvOption { return expr.Stride(s1, s2) }

// Padding sets the per-axis zero padding of a valid 2-D or 4-D convolution
// or of a pooling.
func Padding(p1, p2 int) ConvOption { return expr.Padding(p1, p2) }

// Conv1Valid returns the 1-D convolution where the kernel fits entirely.
func Conv1Valid[T Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv1Valid(in, kernel, opts...)
}

// Conv1Same returns the 1-D convolution centered on the input.
func Conv1Same[T Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv1Same(in, kernel, opts...)
}

// Conv1Full returns every partial overlap of the 1-D convolution.
func Conv1Full[T Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv1Full(in, kernel, opts...)
}

// Conv2Valid convolves the last two dimensions. Leading dimensions of in
// and kernel must match and are convolved plane by plane.
func Conv2Valid[T Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv2Valid(in, kernel, opts...)
}

// Conv2Same is Conv2Valid with an output of the input's size.
func Conv2Same[T Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv2Same(in, kernel, opts...)
}

// Conv2Full is Conv2Valid over every partial overlap.
func Conv2Full[T Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv2Full(in, kernel, opts...)
}

// Conv2ValidMulti convolves a 2-D input with K kernels given as K x KH x KW.
func Conv2ValidMulti[T Numeric](in, kernels Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv2ValidMulti(in, kernels, opts...)
}

// Conv4Valid convolves an N x C x H x W batch with K x C x KH x KW kernels.
func Conv4Valid[T Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv4Valid(in, kernel, opts...)
}

// Conv4Full is the transposed operation of Conv4Valid.
func Conv4Full[T Numeric](in, kernel Expr[T], opts ...ConvOption) *Temporary[T] {
	return expr.Conv4Full(in, kernel, opts...)
}

// MaxPool2D takes the maximum over c1 x c2 windows of the last two
// dimensions. The stride defaults to the window size.
func MaxPool2D[T Numeric](in Expr[T], c1, c2 int, opts ...ConvOption) *Temporary[T] {
	return expr.MaxPool2D(in, c1, c2, opts...)
}

// AvgPool2D averages over c1 x c2 windows of the last two dimensions.
func AvgPool2D[T Numeric](in Expr[T], c1, c2 int, opts ...ConvOption) *Temporary[T] {
	return expr.AvgPool2D(in, c1, c2, opts...)
}

// Upsample2D repeats every element of the last two dimensions into a
// c1 x c2 block.
func Upsample2D[T Numeric](in Expr[T], c1, c2 int) *Temporary[T] {
	return expr.Upsample2D(in, c1, c2)
}

// Assignment and evaluation.

// Assign evaluates e into dst. It panics if the shapes differ. dst may
// appear in e.
func Assign[T Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) { expr.Assign(ctx, dst, e) }

// AssignAdd adds e to dst.
func AssignAdd[T Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	expr.AssignAdd(ctx, dst, e)
}

// AssignSub subtracts e from dst.
func AssignSub[T Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	expr.AssignSub(ctx, dst, e)
}

// AssignMul multiplies dst by e element-wise.
func AssignMul[T Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	expr.AssignMul(ctx, dst, e)
}

// AssignDiv divides dst by e element-wise.
func AssignDiv[T Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	expr.AssignDiv(ctx, dst, e)
}

// AssignMod replaces dst by the remainder of its division by e.
func AssignMod[T Numeric](ctx context.Context, dst *Dense[T], e Expr[T]) {
	expr.AssignMod(ctx, dst, e)
}

// AddInto is Assign(ctx, dst, Add(a, b)).
func AddInto[T Numeric](ctx context.Context, dst *Dense[T], a, b Expr[T]) {
	expr.AddInto(ctx, dst, a, b)
}

// MulInto is Assign(ctx, dst, Mul(a, b)). The product is computed
// straight into dst when dst is not an operand.
func MulInto[T Numeric](ctx context.Context, dst *Dense[T], a, b Expr[T]) {
	expr.MulInto(ctx, dst, a, b)
}

// OuterInto is Assign(ctx, dst, Outer(a, b)).
func OuterInto[T Numeric](ctx context.Context, dst *Dense[T], a, b Expr[T]) {
	expr.OuterInto(ctx, dst, a, b)
}

// Conv2ValidInto is Assign(ctx, dst, Conv2Valid(in, kernel, opts...)).
func Conv2ValidInto[T Numeric](ctx context.Context, dst *Dense[T], in, kernel Expr[T], opts ...ConvOption) {
	expr.Conv2ValidInto(ctx, dst, in, kernel, opts...)
}

// Conv4ValidInto is Assign(ctx, dst, Conv4Valid(in, kernel, opts...)).
func Conv4ValidInto[T Numeric](ctx context.Context, dst *Dense[T], in, kernel Expr[T], opts ...ConvOption) {
	expr.Conv4ValidInto(ctx, dst, in, kernel, opts...)
}

// Materialize evaluates e into a new leaf.
func Materialize[T Numeric](ctx context.Context, e Expr[T]) *Dense[T] {
	return expr.Materialize(ctx, e)
}

// Evaluate computes every temporary of e, so that its elements can be
// read with At. Release frees the device memory they hold afterwards.
func Evaluate[T Numeric](ctx context.Context, e Expr[T]) { expr.Evaluate(ctx, e) }

// Release frees the device memory of the temporaries of e, copying their
// values to the host first.
func Release[T Numeric](ctx context.Context, e Expr[T]) error { return expr.Release(ctx, e) }

// Reductions.

func Sum[T Numeric](ctx context.Context, e Expr[T]) T  { return expr.Sum(ctx, e) }
func Asum[T Numeric](ctx context.Context, e Expr[T]) T { return expr.Asum(ctx, e) }
func Mean[T Numeric](ctx context.Context, e Expr[T]) T { return expr.Mean(ctx, e) }
func Min[T Numeric](ctx context.Context, e Expr[T]) T  { return expr.Min(ctx, e) }
func Max[T Numeric](ctx context.Context, e Expr[T]) T  { return expr.Max(ctx, e) }
