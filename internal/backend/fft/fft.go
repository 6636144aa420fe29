// Package fft computes convolutions in the frequency domain with gonum's
// complex FFT. The full convolution is the inverse transform of the product
// of the zero-padded transforms; valid and same results are windows of it.
package fft

import (
	"context"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

func toComplex[T tensor.Numeric](dst []complex128, src []T) {
	clear(dst)
	for i, v := range src {
		dst[i] = complex(float64(v), 0)
	}
}

func kernelOf[T tensor.Numeric](kernel []T, flipped bool) []T {
	if !flipped {
		return kernel
	}
	k := slices.Clone(kernel)
	slices.Reverse(k)
	return k
}

// full1 returns the full 1-D convolution as complex values.
func full1[T tensor.Numeric](in, kernel []T, flipped bool) []complex128 {
	n := len(in) + len(kernel) - 1
	plan := fourier.NewCmplxFFT(n)

	a := make([]complex128, n)
	b := make([]complex128, n)
	toComplex(a, in)
	toComplex(b, kernelOf(kernel, flipped))

	a = plan.Coefficients(a, a)
	b = plan.Coefficients(b, b)
	for i := range a {
		a[i] *= b[i]
	}
	a = plan.Sequence(a, a)

	scale := complex(1/float64(n), 0)
	for i := range a {
		a[i] *= scale
	}
	return a
}

func window1[T tensor.Numeric](full []complex128, off int, out []T) {
	for i := range out {
		out[i] = T(real(full[off+i]))
	}
}

// Conv1Full computes the len(in)+len(kernel)-1 elements of the full
// convolution.
func Conv1Full[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in)+len(kernel)-1 {
		panic(fmt.Sprintf("conv1_full: output has %d elements, expected %d", len(out), len(in)+len(kernel)-1))
	}
	window1(full1(in, kernel, flipped), 0, out)
}

// Conv1Valid computes the elements where the kernel fits entirely.
func Conv1Valid[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in)-len(kernel)+1 {
		panic(fmt.Sprintf("conv1_valid: output has %d elements, expected %d", len(out), len(in)-len(kernel)+1))
	}
	window1(full1(in, kernel, flipped), len(kernel)-1, out)
}

// Conv1Same computes the centered len(in) elements of the full convolution.
func Conv1Same[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in) {
		panic(fmt.Sprintf("conv1_same: output has %d elements, expected %d", len(out), len(in)))
	}
	window1(full1(in, kernel, flipped), (len(kernel)-1)/2, out)
}

// plan2 transforms h x w row-major complex planes in place.
type plan2 struct {
	h, w       int
	rows, cols *fourier.CmplxFFT
	column     []complex128
}

func newPlan2(h, w int) *plan2 {
	return &plan2{
		h: h, w: w,
		rows:   fourier.NewCmplxFFT(w),
		cols:   fourier.NewCmplxFFT(h),
		column: make([]complex128, h),
	}
}

func (p *plan2) transform(data []complex128, inverse bool) {
	step := func(plan *fourier.CmplxFFT, v []complex128) {
		if inverse {
			plan.Sequence(v, v)
		} else {
			plan.Coefficients(v, v)
		}
	}

	for i := range p.h {
		step(p.rows, data[i*p.w:(i+1)*p.w])
	}
	for j := range p.w {
		for i := range p.h {
			p.column[i] = data[i*p.w+j]
		}
		step(p.cols, p.column)
		for i := range p.h {
			data[i*p.w+j] = p.column[i]
		}
	}

	if inverse {
		scale := complex(1/float64(p.h*p.w), 0)
		for i := range data {
			data[i] *= scale
		}
	}
}

// embed copies an r x c plane into the top-left corner of an h x w one.
func embed[T tensor.Numeric](dst []complex128, w int, src []T, c int) {
	clear(dst)
	for i := 0; i*c < len(src); i++ {
		for j := range c {
			dst[i*w+j] = complex(float64(src[i*c+j]), 0)
		}
	}
}

// full2 returns the full 2-D convolution of in with each of the given
// kernels, sharing the transform of in.
func full2[T tensor.Numeric](ctx context.Context, in tensor.Mat[T], kernels [][]T, kh, kw int, flipped bool) ([][]complex128, int, int) {
	fh, fw := in.Rows+kh-1, in.Cols+kw-1

	src := make([]complex128, fh*fw)
	embed(src, fw, in.Data, in.Cols)
	newPlan2(fh, fw).transform(src, false)

	out := make([][]complex128, len(kernels))
	cfg := parallel.DefaultConfig().ForWork(fh * fw * 8)
	parallel.For(ctx, len(kernels), func(k int) {
		plan := newPlan2(fh, fw)
		dst := make([]complex128, fh*fw)
		embed(dst, fw, kernelOf(kernels[k], flipped), kw)
		plan.transform(dst, false)
		for i := range dst {
			dst[i] *= src[i]
		}
		plan.transform(dst, true)
		out[k] = dst
	}, cfg)
	return out, fh, fw
}

func window2[T tensor.Numeric](full []complex128, fw, offH, offW, oh, ow int, out []T) {
	for i := range oh {
		for j := range ow {
			out[i*ow+j] = T(real(full[(i+offH)*fw+j+offW]))
		}
	}
}

// Conv2Full computes the (H+KH-1) x (W+KW-1) full convolution.
func Conv2Full[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, flipped bool) {
	full, fh, fw := full2(ctx, in, [][]T{kernel.Data}, kernel.Rows, kernel.Cols, flipped)
	if len(out) != fh*fw {
		panic(fmt.Sprintf("conv2_full: output has %d elements, expected %d", len(out), fh*fw))
	}
	window2(full[0], fw, 0, 0, fh, fw, out)
}

// Conv2Same computes the centered H x W window of the full convolution.
func Conv2Same[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, flipped bool) {
	if len(out) != in.Rows*in.Cols {
		panic(fmt.Sprintf("conv2_same: output has %d elements, expected %d", len(out), in.Rows*in.Cols))
	}
	full, _, fw := full2(ctx, in, [][]T{kernel.Data}, kernel.Rows, kernel.Cols, flipped)
	window2(full[0], fw, (kernel.Rows-1)/2, (kernel.Cols-1)/2, in.Rows, in.Cols, out)
}

// Conv2Valid computes the valid convolution. Only unit stride and no
// padding are supported.
func Conv2Valid[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, flipped bool) {
	oh, ow := in.Rows-kernel.Rows+1, in.Cols-kernel.Cols+1
	if len(out) != oh*ow {
		panic(fmt.Sprintf("conv2_valid: output has %d elements, expected %d", len(out), oh*ow))
	}
	full, _, fw := full2(ctx, in, [][]T{kernel.Data}, kernel.Rows, kernel.Cols, flipped)
	window2(full[0], fw, kernel.Rows-1, kernel.Cols-1, oh, ow, out)
}

// Conv2ValidMulti convolves in with nk kernels stored back to back as
// nk x KH x KW. The transform of in is computed once.
func Conv2ValidMulti[T tensor.Numeric](ctx context.Context, in tensor.Mat[T], kernels []T, nk, kh, kw int, out []T, flipped bool) {
	if len(kernels) != nk*kh*kw {
		panic(fmt.Sprintf("conv2_valid_multi: kernels have %d elements, expected %d", len(kernels), nk*kh*kw))
	}
	oh, ow := in.Rows-kh+1, in.Cols-kw+1
	if len(out) != nk*oh*ow {
		panic(fmt.Sprintf("conv2_valid_multi: output has %d elements, expected %d", len(out), nk*oh*ow))
	}

	split := make([][]T, nk)
	for k := range split {
		split[k] = kernels[k*kh*kw : (k+1)*kh*kw]
	}
	full, _, fw := full2(ctx, in, split, kh, kw, flipped)
	for k, f := range full {
		window2(f, fw, kh-1, kw-1, oh, ow, out[k*oh*ow:(k+1)*oh*ow])
	}
}
