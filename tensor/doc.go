// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides lazy, type-safe tensor expressions.
//
// # Overview
//
// Arithmetic on tensors builds an expression tree instead of computing a
// result. The tree is evaluated once, when it is assigned to a leaf:
//   - Element-wise operations are fused into a single pass over the output
//   - Products, convolutions and pooling are computed into temporaries by a
//     compute provider chosen per operation (reference loops, unrolled
//     loops, BLAS, FFT or a GPU device)
//   - A GPU product whose operand is another GPU product reads it from
//     device memory, without a round trip through the host
//
// # Basic Usage
//
//	a := tensor.New[float32](tensor.Shape{256, 128})
//	b := tensor.New[float32](tensor.Shape{128, 64})
//	c := tensor.New[float32](tensor.Shape{256, 64})
//
//	// c = relu(a*b + 1), in one assignment.
//	tensor.Assign(ctx, c, tensor.Relu(tensor.AddScalar[float32](tensor.Mul[float32](a, b), 1)))
//
// # Selecting an implementation
//
// Every product and convolution picks its provider from the operand
// traits, the problem sizes and the process feature flags. A context can
// force the provider of one operation family:
//
//	ctx = tensor.WithForced(ctx, tensor.GEMM, tensor.BLAS)
//
// A forced provider the operands cannot use is logged as a warning and
// replaced by the default one.
//
// # Supported Data Types
//
// float32, float64, int32 and int64. Vectorized providers, BLAS and FFT
// handle floating-point types only; GPU providers handle float32 only.
//
// # Feature flags
//
// The providers and thresholds are configured through TENSOREXPR_*
// environment variables, read once on first use. See Features.
package tensor
