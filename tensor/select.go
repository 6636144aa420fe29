// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"context"

	"github.com/born-ml/tensorexpr/internal/selector"
)

// Impl identifies a compute provider.
type Impl = selector.Impl

// Compute providers.
const (
	Std  Impl = selector.Std  // Reference loops.
	Vec  Impl = selector.Vec  // Loops unrolled for the vector tier.
	BLAS Impl = selector.Blas // gonum BLAS.
	GPU  Impl = selector.GPU  // Registered GPU device.
	FFT  Impl = selector.FFT  // Frequency-domain convolution.
)

// Family is a group of operations sharing one provider choice.
type Family = selector.Family

// Operation families.
const (
	GEMM              Family = selector.GEMM
	GEMV              Family = selector.GEMV
	GEVM              Family = selector.GEVM
	OuterProduct      Family = selector.Outer
	Conv1D            Family = selector.Conv1
	Conv2D            Family = selector.Conv2
	Conv2DMulti       Family = selector.ConvMulti
	Conv4D            Family = selector.Conv4
	Reduction         Family = selector.Reduce
	Pooling           Family = selector.Pool
	BatchOuterProduct Family = selector.BatchOuter
	Upsampling        Family = selector.Upsample
)

// WithForced returns a context in which operations of family use impl.
// Evaluations started with the returned context see the override; others
// do not. An override the operands cannot use falls back to the default
// provider with a warning.
func WithForced(ctx context.Context, family Family, impl Impl) context.Context {
	return selector.WithForced(ctx, family, impl)
}

// WithoutForced returns a context without an override for family.
func WithoutForced(ctx context.Context, family Family) context.Context {
	return selector.WithoutForced(ctx, family)
}

// Forced returns the provider forced for family in ctx.
func Forced(ctx context.Context, family Family) (Impl, bool) {
	return selector.Forced(ctx, family)
}

// ParseImpl parses a provider name: std, vec, blas, gpu or fft.
func ParseImpl(s string) (Impl, error) { return selector.ParseImpl(s) }

// ParseFamily parses a family name such as gemm or conv4.
func ParseFamily(s string) (Family, error) { return selector.ParseFamily(s) }
