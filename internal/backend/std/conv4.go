package std

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Conv4Valid computes the batched convolution described by p:
//
//	out[n][k] = sum over c of conv2_valid(in[n][c], kernel[k][c])
//
// in is N x C x H x W, kernel is K x C x KH x KW and out is N x K x OH x OW,
// all row-major.
func Conv4Valid[T tensor.Numeric](ctx context.Context, in, kernel []T, p tensor.Conv4, out []T, flipped bool) {
	oh, ow := p.OutDims()
	checkConv4(p, in, kernel, out, oh, ow)
	s1, s2 := p.Strides()

	inPlane, kPlane, outPlane := p.H*p.W, p.KH*p.KW, oh*ow
	cfg := parallel.DefaultConfig().ForWork(outPlane * p.C * kPlane)
	parallel.ForBatch(ctx, p.N, p.K, func(n, k int) {
		dst := out[(n*p.K+k)*outPlane : (n*p.K+k+1)*outPlane]
		clear(dst)
		for c := range p.C {
			src := in[(n*p.C+c)*inPlane : (n*p.C+c+1)*inPlane]
			w := kernel[(k*p.C+c)*kPlane : (k*p.C+c+1)*kPlane]
			for i := range oh {
				for j := range ow {
					dst[i*ow+j] += correlateAt(src, p.H, p.W, w, p.KH, p.KW, i*s1-p.P1, j*s2-p.P2, flipped)
				}
			}
		}
	}, cfg)
}

// Conv4Full computes the full batched convolution used to propagate
// gradients back through Conv4Valid. in is N x K x H x W, kernel is
// K x C x KH x KW and out is N x C x (H+KH-1) x (W+KW-1):
//
//	out[n][c] = sum over k of conv2_full(in[n][k], kernel[k][c])
//
// Stride and padding in p are ignored.
func Conv4Full[T tensor.Numeric](ctx context.Context, in, kernel []T, p tensor.Conv4, out []T, flipped bool) {
	oh, ow := p.H+p.KH-1, p.W+p.KW-1
	if len(in) != p.N*p.K*p.H*p.W || len(kernel) != p.K*p.C*p.KH*p.KW {
		panic(fmt.Sprintf("conv4_full: operands do not match %+v", p))
	}
	checkOut("conv4_full", out, p.N*p.C*oh*ow)

	inPlane, kPlane, outPlane := p.H*p.W, p.KH*p.KW, oh*ow
	cfg := parallel.DefaultConfig().ForWork(outPlane * p.K * kPlane)
	parallel.ForBatch(ctx, p.N, p.C, func(n, c int) {
		dst := out[(n*p.C+c)*outPlane : (n*p.C+c+1)*outPlane]
		clear(dst)
		for k := range p.K {
			src := tensor.Mat[T]{Data: in[(n*p.K+k)*inPlane : (n*p.K+k+1)*inPlane], Rows: p.H, Cols: p.W}
			w := tensor.Mat[T]{Data: kernel[(k*p.C+c)*kPlane : (k*p.C+c+1)*kPlane], Rows: p.KH, Cols: p.KW}
			for i := range oh {
				for j := range ow {
					dst[i*ow+j] += conv2At(src, w, i, j, flipped)
				}
			}
		}
	}, cfg)
}

func checkConv4[T tensor.Numeric](p tensor.Conv4, in, kernel, out []T, oh, ow int) {
	switch {
	case len(in) != p.N*p.C*p.H*p.W:
		panic(fmt.Sprintf("conv4_valid: input has %d elements, expected %d", len(in), p.N*p.C*p.H*p.W))
	case len(kernel) != p.K*p.C*p.KH*p.KW:
		panic(fmt.Sprintf("conv4_valid: kernel has %d elements, expected %d", len(kernel), p.K*p.C*p.KH*p.KW))
	case len(out) != p.N*p.K*oh*ow:
		panic(fmt.Sprintf("conv4_valid: output has %d elements, expected %d", len(out), p.N*p.K*oh*ow))
	}
}
