package blas

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/backend/std"
	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Conv4Valid computes the batched valid convolution with im2col and one
// GEMM per batch item:
//
//	out[n] (K x OH*OW) = kernel (K x C*KH*KW) * col[n]^T
func Conv4Valid[T tensor.Numeric](ctx context.Context, in, kernel []T, p tensor.Conv4, out []T, flipped bool) {
	oh, ow := p.OutDims()
	if len(in) != p.N*p.C*p.H*p.W || len(kernel) != p.K*p.C*p.KH*p.KW || len(out) != p.N*p.K*oh*ow {
		panic(fmt.Sprintf("conv4_valid: operands do not match %+v", p))
	}
	if !flipped {
		kernel = std.RotateKernels(kernel, p.KH, p.KW)
	}

	width := p.ColWidth()
	positions := oh * ow
	weights := tensor.Mat[T]{Data: kernel, Rows: p.K, Cols: width}

	cfg := parallel.DefaultConfig().ForWork(p.K * positions * width)
	parallel.For(ctx, p.N, func(n int) {
		col := make([]T, positions*width)
		std.Im2col(col, in, p, n)
		cols := tensor.Mat[T]{Data: col, Rows: positions, Cols: width, Trans: true}
		Gemm(weights, cols, out[n*p.K*positions:(n+1)*p.K*positions])
	}, cfg)
}

// Conv2ValidMulti convolves in with nk kernels stored back to back as
// nk x KH x KW and writes nk output planes.
func Conv2ValidMulti[T tensor.Numeric](ctx context.Context, in tensor.Mat[T], kernels []T, nk, kh, kw int, out []T, s, p [2]int, flipped bool) {
	params := tensor.Conv4{
		N: 1, C: 1, H: in.Rows, W: in.Cols,
		K: nk, KH: kh, KW: kw,
		S1: s[0], S2: s[1], P1: p[0], P2: p[1],
	}
	Conv4Valid(ctx, in.Materialize().Data, kernels, params, out, flipped)
}
