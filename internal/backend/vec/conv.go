package vec

import (
	"context"
	"fmt"
	"slices"

	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Every convolution here is a correlation over a zero-padded input. Plain
// convolutions rotate the kernel first.

func prepare[T tensor.Numeric](kernel []T, flipped bool) []T {
	if flipped {
		return kernel
	}
	k := slices.Clone(kernel)
	slices.Reverse(k)
	return k
}

func pad2[T tensor.Numeric](in []T, h, w, ph, pw int) ([]T, int, int) {
	if ph == 0 && pw == 0 {
		return in, h, w
	}
	hp, wp := h+2*ph, w+2*pw
	out := make([]T, hp*wp)
	for i := range h {
		copy(out[(i+ph)*wp+pw:], in[i*w:(i+1)*w])
	}
	return out, hp, wp
}

// corr2 correlates rows [first, last) of the output plane.
func corr2[T tensor.Numeric](in []T, w int, k []T, kh, kw, s1, s2 int, out []T, ow, first, last int, accumulate bool, lanes int) {
	for i := first; i < last; i++ {
		for j := range ow {
			var sum T
			base := i*s1*w + j*s2
			for a := range kh {
				sum += dot(k[a*kw:(a+1)*kw], in[base+a*w:], lanes)
			}
			if accumulate {
				out[i*ow+j] += sum
			} else {
				out[i*ow+j] = sum
			}
		}
	}
}

// Conv1Valid computes the len(in)-len(kernel)+1 elements where the kernel
// fits entirely.
func Conv1Valid[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in)-len(kernel)+1 {
		panic(fmt.Sprintf("conv1_valid: output has %d elements, expected %d", len(out), len(in)-len(kernel)+1))
	}
	k := prepare(kernel, flipped)
	lanes := lanesOf[T]()
	for i := range out {
		out[i] = dot(k, in[i:], lanes)
	}
}

// Conv1Full computes the full convolution as the valid convolution of the
// input padded by len(kernel)-1 zeros on both sides.
func Conv1Full[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in)+len(kernel)-1 {
		panic(fmt.Sprintf("conv1_full: output has %d elements, expected %d", len(out), len(in)+len(kernel)-1))
	}
	p := len(kernel) - 1
	padded := make([]T, len(in)+2*p)
	copy(padded[p:], in)
	Conv1Valid(padded, kernel, out, flipped)
}

// Conv1Same computes the centered len(in) elements of the full convolution.
func Conv1Same[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in) {
		panic(fmt.Sprintf("conv1_same: output has %d elements, expected %d", len(out), len(in)))
	}
	full := make([]T, len(in)+len(kernel)-1)
	Conv1Full(in, kernel, full, flipped)
	off := (len(kernel) - 1) / 2
	copy(out, full[off:off+len(in)])
}

// Conv2Valid computes the valid convolution of in, zero-padded by p, with
// stride s.
func Conv2Valid[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, s, p [2]int, flipped bool) {
	s1, s2 := max(s[0], 1), max(s[1], 1)
	data, h, w := pad2(in.Data, in.Rows, in.Cols, p[0], p[1])
	oh := (h-kernel.Rows)/s1 + 1
	ow := (w-kernel.Cols)/s2 + 1
	if len(out) != oh*ow {
		panic(fmt.Sprintf("conv2_valid: output has %d elements, expected %d", len(out), oh*ow))
	}

	k := prepare(kernel.Data, flipped)
	lanes := lanesOf[T]()
	cfg := parallel.DefaultConfig().ForWork(ow * len(k))
	parallel.Dispatch1D(ctx, 0, oh, func(first, last int) {
		corr2(data, w, k, kernel.Rows, kernel.Cols, s1, s2, out, ow, first, last, false, lanes)
	}, cfg)
}

// Conv2Full computes the full convolution as the valid convolution of the
// input padded by the kernel extents minus one.
func Conv2Full[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, flipped bool) {
	Conv2Valid(ctx, in, kernel, out, [2]int{}, [2]int{kernel.Rows - 1, kernel.Cols - 1}, flipped)
}

// Conv2Same computes the centered H x W window of the full convolution.
func Conv2Same[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, flipped bool) {
	if len(out) != in.Rows*in.Cols {
		panic(fmt.Sprintf("conv2_same: output has %d elements, expected %d", len(out), in.Rows*in.Cols))
	}
	fh, fw := in.Rows+kernel.Rows-1, in.Cols+kernel.Cols-1
	full := make([]T, fh*fw)
	Conv2Full(ctx, in, kernel, full, flipped)

	offH, offW := (kernel.Rows-1)/2, (kernel.Cols-1)/2
	for i := range in.Rows {
		copy(out[i*in.Cols:(i+1)*in.Cols], full[(i+offH)*fw+offW:])
	}
}

// Conv2ValidMulti convolves in with nk kernels stored back to back as
// nk x KH x KW and writes nk output planes.
func Conv2ValidMulti[T tensor.Numeric](ctx context.Context, in tensor.Mat[T], kernels []T, nk, kh, kw int, out []T, s, p [2]int, flipped bool) {
	if len(kernels) != nk*kh*kw {
		panic(fmt.Sprintf("conv2_valid_multi: kernels have %d elements, expected %d", len(kernels), nk*kh*kw))
	}
	plane := len(out) / max(nk, 1)
	cfg := parallel.DefaultConfig().ForWork(plane * kh * kw)
	parallel.For(ctx, nk, func(k int) {
		kernel := tensor.Mat[T]{Data: kernels[k*kh*kw : (k+1)*kh*kw], Rows: kh, Cols: kw}
		Conv2Valid(parallel.WithSerial(ctx), in, kernel, out[k*plane:(k+1)*plane], s, p, flipped)
	}, cfg)
}

// Conv4Valid computes out[n][k] = sum over c of conv2_valid(in[n][c],
// kernel[k][c]) with the layout of std.Conv4Valid.
func Conv4Valid[T tensor.Numeric](ctx context.Context, in, kernel []T, p tensor.Conv4, out []T, flipped bool) {
	oh, ow := p.OutDims()
	if len(in) != p.N*p.C*p.H*p.W || len(kernel) != p.K*p.C*p.KH*p.KW || len(out) != p.N*p.K*oh*ow {
		panic(fmt.Sprintf("conv4_valid: operands do not match %+v", p))
	}
	s1, s2 := p.Strides()
	lanes := lanesOf[T]()

	inPlane, kPlane, outPlane := p.H*p.W, p.KH*p.KW, oh*ow

	// Pad and rotate once, not per output plane.
	padded := make([][]T, p.N*p.C)
	var w int
	for i := range padded {
		padded[i], _, w = pad2(in[i*inPlane:(i+1)*inPlane], p.H, p.W, p.P1, p.P2)
	}
	kernels := make([][]T, p.K*p.C)
	for i := range kernels {
		kernels[i] = prepare(kernel[i*kPlane:(i+1)*kPlane], flipped)
	}

	cfg := parallel.DefaultConfig().ForWork(outPlane * p.C * kPlane)
	parallel.ForBatch(ctx, p.N, p.K, func(n, k int) {
		dst := out[(n*p.K+k)*outPlane : (n*p.K+k+1)*outPlane]
		clear(dst)
		for c := range p.C {
			corr2(padded[n*p.C+c], w, kernels[k*p.C+c], p.KH, p.KW, s1, s2, dst, ow, 0, oh, true, lanes)
		}
	}, cfg)
}

// Conv4Full computes out[n][c] = sum over k of conv2_full(in[n][k],
// kernel[k][c]) with the layout of std.Conv4Full.
func Conv4Full[T tensor.Numeric](ctx context.Context, in, kernel []T, p tensor.Conv4, out []T, flipped bool) {
	oh, ow := p.H+p.KH-1, p.W+p.KW-1
	if len(in) != p.N*p.K*p.H*p.W || len(kernel) != p.K*p.C*p.KH*p.KW || len(out) != p.N*p.C*oh*ow {
		panic(fmt.Sprintf("conv4_full: operands do not match %+v", p))
	}
	lanes := lanesOf[T]()
	inPlane, kPlane, outPlane := p.H*p.W, p.KH*p.KW, oh*ow

	padded := make([][]T, p.N*p.K)
	var w int
	for i := range padded {
		padded[i], _, w = pad2(in[i*inPlane:(i+1)*inPlane], p.H, p.W, p.KH-1, p.KW-1)
	}
	kernels := make([][]T, p.K*p.C)
	for i := range kernels {
		kernels[i] = prepare(kernel[i*kPlane:(i+1)*kPlane], flipped)
	}

	cfg := parallel.DefaultConfig().ForWork(outPlane * p.K * kPlane)
	parallel.ForBatch(ctx, p.N, p.C, func(n, c int) {
		dst := out[(n*p.C+c)*outPlane : (n*p.C+c+1)*outPlane]
		clear(dst)
		for k := range p.K {
			corr2(padded[n*p.K+k], w, kernels[k*p.C+c], p.KH, p.KW, 1, 1, dst, ow, 0, oh, true, lanes)
		}
	}, cfg)
}
