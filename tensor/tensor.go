// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/expr"
	"github.com/born-ml/tensorexpr/internal/logging"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Numeric is a constraint for tensor element types.
// Supported types: float32, float64, int32, int64.
type Numeric = tensor.Numeric

// DataType represents the element type of an expression at runtime.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Order is the storage order of a leaf.
type Order = tensor.Order

// Storage orders.
const (
	RowMajor    Order = tensor.RowMajor
	ColumnMajor Order = tensor.ColumnMajor
)

// Traits is the static description of an expression.
type Traits = tensor.Traits

// VectorMode is the SIMD tier of the vectorized paths.
type VectorMode = tensor.VectorMode

// Vector tiers.
const (
	VectorNone   VectorMode = tensor.VectorNone
	VectorSSE3   VectorMode = tensor.VectorSSE3
	VectorAVX    VectorMode = tensor.VectorAVX
	VectorAVX512 VectorMode = tensor.VectorAVX512
)

// Expr is a lazy tensor expression.
type Expr[T Numeric] = expr.Expr[T]

// Dense is a leaf owning its memory. Its shape can change with Resize.
type Dense[T Numeric] = expr.Dense[T]

// Fixed is a leaf whose shape is frozen at construction.
type Fixed[T Numeric] = expr.Fixed[T]

// Temporary is an expression computed into memory of its own before it
// is read: products, convolutions and pooling.
type Temporary[T Numeric] = expr.Temporary[T]

// Option configures a new leaf.
type Option = expr.Option

// WithOrder sets the storage order of a new leaf. Leaves are row-major by
// default.
func WithOrder(o Order) Option { return expr.WithOrder(o) }

// New returns a zero-filled leaf of the given shape.
// It panics if a dimension is not positive.
func New[T Numeric](shape Shape, opts ...Option) *Dense[T] {
	return expr.NewDense[T](shape, opts...)
}

// NewFixed returns a zero-filled leaf whose shape cannot change.
func NewFixed[T Numeric](shape Shape, opts ...Option) *Fixed[T] {
	return expr.NewFixed[T](shape, opts...)
}

// FromSlice returns a leaf over data, laid out in the leaf's storage order.
// The slice is used without copying.
func FromSlice[T Numeric](data []T, shape Shape, opts ...Option) (*Dense[T], error) {
	return expr.FromSlice(data, shape, opts...)
}

// MustFromSlice is like FromSlice but panics on error.
func MustFromSlice[T Numeric](data []T, shape Shape, opts ...Option) *Dense[T] {
	return expr.MustFromSlice(data, shape, opts...)
}

// FromMat copies a gonum matrix into a new row-major leaf.
func FromMat[T Numeric](m mat.Matrix) *Dense[T] {
	return expr.FromMat[T](m)
}

// Scalar returns a generator yielding v at every index.
func Scalar[T Numeric](v T) Expr[T] { return expr.NewScalar(v) }

// Sequence returns a generator yielding start + i*step at flat index i.
func Sequence[T Numeric](start, step T) Expr[T] { return expr.NewSequence(start, step) }

// Features is one snapshot of the process feature flags.
type Features = config.Features

// CurrentFeatures returns the feature flags in effect.
func CurrentFeatures() Features { return config.Get() }

// SetFeatures replaces the feature flags and returns a function restoring
// the previous ones. Flags must not change while an evaluation runs.
func SetFeatures(f Features) (restore func()) { return config.Set(f) }

// UpdateFeatures applies fn to a copy of the current flags and installs
// the result.
func UpdateFeatures(fn func(*Features)) (restore func()) { return config.Update(fn) }

// SetLogger sets the logger used for selection traces, override warnings
// and device failures. A nil logger discards everything.
func SetLogger(l *slog.Logger) { logging.SetLogger(l) }
