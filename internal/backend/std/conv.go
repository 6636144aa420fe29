package std

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Plain convolutions flip the kernel. The flipped variants take an already
// flipped kernel, which makes them cross-correlations.

// conv1At returns element i of the full 1-D convolution.
func conv1At[T tensor.Numeric](in, kernel []T, i int, flipped bool) T {
	k := len(kernel)
	var sum T
	for j := max(0, i-len(in)+1); j <= min(i, k-1); j++ {
		w := kernel[j]
		if flipped {
			w = kernel[k-1-j]
		}
		sum += in[i-j] * w
	}
	return sum
}

// Conv1Full computes the len(in)+len(kernel)-1 elements of the full
// convolution.
func Conv1Full[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in)+len(kernel)-1 {
		panic(fmt.Sprintf("conv1_full: output has %d elements, expected %d", len(out), len(in)+len(kernel)-1))
	}
	for i := range out {
		out[i] = conv1At(in, kernel, i, flipped)
	}
}

// Conv1Valid computes the len(in)-len(kernel)+1 elements where the kernel
// fits entirely.
func Conv1Valid[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in)-len(kernel)+1 {
		panic(fmt.Sprintf("conv1_valid: output has %d elements, expected %d", len(out), len(in)-len(kernel)+1))
	}
	off := len(kernel) - 1
	for i := range out {
		out[i] = conv1At(in, kernel, i+off, flipped)
	}
}

// Conv1Same computes the centered len(in) elements of the full convolution.
func Conv1Same[T tensor.Numeric](in, kernel, out []T, flipped bool) {
	if len(out) != len(in) {
		panic(fmt.Sprintf("conv1_same: output has %d elements, expected %d", len(out), len(in)))
	}
	off := (len(kernel) - 1) / 2
	for i := range out {
		out[i] = conv1At(in, kernel, i+off, flipped)
	}
}

// conv2At returns element (i, j) of the full 2-D convolution.
func conv2At[T tensor.Numeric](in, kernel tensor.Mat[T], i, j int, flipped bool) T {
	kh, kw := kernel.Rows, kernel.Cols
	var sum T
	for a := max(0, i-in.Rows+1); a <= min(i, kh-1); a++ {
		for b := max(0, j-in.Cols+1); b <= min(j, kw-1); b++ {
			var w T
			if flipped {
				w = kernel.Data[(kh-1-a)*kw+(kw-1-b)]
			} else {
				w = kernel.Data[a*kw+b]
			}
			sum += in.Data[(i-a)*in.Cols+(j-b)] * w
		}
	}
	return sum
}

func conv2Window[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, oh, ow, offH, offW int, flipped bool) {
	cfg := parallel.DefaultConfig().ForWork(ow * kernel.Rows * kernel.Cols)
	parallel.Dispatch1D(ctx, 0, oh, func(first, last int) {
		for i := first; i < last; i++ {
			for j := range ow {
				out[i*ow+j] = conv2At(in, kernel, i+offH, j+offW, flipped)
			}
		}
	}, cfg)
}

// Conv2Full computes the (H+KH-1) x (W+KW-1) full convolution.
func Conv2Full[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, flipped bool) {
	oh, ow := in.Rows+kernel.Rows-1, in.Cols+kernel.Cols-1
	checkOut("conv2_full", out, oh*ow)
	conv2Window(ctx, in, kernel, out, oh, ow, 0, 0, flipped)
}

// Conv2Same computes the centered H x W window of the full convolution.
func Conv2Same[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, flipped bool) {
	checkOut("conv2_same", out, in.Rows*in.Cols)
	conv2Window(ctx, in, kernel, out, in.Rows, in.Cols, (kernel.Rows-1)/2, (kernel.Cols-1)/2, flipped)
}

// Conv2Valid computes the valid convolution of in, zero-padded by p, with
// stride s. Zero strides count as one.
func Conv2Valid[T tensor.Numeric](ctx context.Context, in, kernel tensor.Mat[T], out []T, s, p [2]int, flipped bool) {
	s1, s2 := max(s[0], 1), max(s[1], 1)
	if s1 == 1 && s2 == 1 && p == [2]int{} {
		oh, ow := in.Rows-kernel.Rows+1, in.Cols-kernel.Cols+1
		checkOut("conv2_valid", out, oh*ow)
		conv2Window(ctx, in, kernel, out, oh, ow, kernel.Rows-1, kernel.Cols-1, flipped)
		return
	}

	oh := (in.Rows-kernel.Rows+2*p[0])/s1 + 1
	ow := (in.Cols-kernel.Cols+2*p[1])/s2 + 1
	checkOut("conv2_valid", out, oh*ow)
	for i := range oh {
		for j := range ow {
			out[i*ow+j] = correlateAt(in.Data, in.Rows, in.Cols, kernel.Data, kernel.Rows, kernel.Cols,
				i*s1-p[0], j*s2-p[1], flipped)
		}
	}
}

// correlateAt sums the kernel against the input window whose top-left
// corner is (r, c). Cells outside the input count as zero. Without flipped
// the kernel is rotated by 180 degrees first.
func correlateAt[T tensor.Numeric](in []T, h, w int, kernel []T, kh, kw, r, c int, flipped bool) T {
	var sum T
	for a := range kh {
		y := r + a
		if y < 0 || y >= h {
			continue
		}
		for b := range kw {
			x := c + b
			if x < 0 || x >= w {
				continue
			}
			var k T
			if flipped {
				k = kernel[a*kw+b]
			} else {
				k = kernel[(kh-1-a)*kw+(kw-1-b)]
			}
			sum += in[y*w+x] * k
		}
	}
	return sum
}

// Conv2ValidMulti convolves in with nk kernels stored back to back as
// nk x KH x KW and writes nk output planes.
func Conv2ValidMulti[T tensor.Numeric](ctx context.Context, in tensor.Mat[T], kernels []T, nk, kh, kw int, out []T, s, p [2]int, flipped bool) {
	if len(kernels) != nk*kh*kw {
		panic(fmt.Sprintf("conv2_valid_multi: kernels have %d elements, expected %d", len(kernels), nk*kh*kw))
	}
	s1, s2 := max(s[0], 1), max(s[1], 1)
	oh := (in.Rows-kh+2*p[0])/s1 + 1
	ow := (in.Cols-kw+2*p[1])/s2 + 1
	checkOut("conv2_valid_multi", out, nk*oh*ow)

	plane := oh * ow
	cfg := parallel.DefaultConfig().ForWork(plane * kh * kw)
	parallel.For(ctx, nk, func(k int) {
		kernel := tensor.Mat[T]{Data: kernels[k*kh*kw : (k+1)*kh*kw], Rows: kh, Cols: kw}
		Conv2Valid(parallel.WithSerial(ctx), in, kernel, out[k*plane:(k+1)*plane], s, p, flipped)
	}, cfg)
}

func checkOut[T tensor.Numeric](op string, out []T, want int) {
	if len(out) != want {
		panic(fmt.Sprintf("%s: output has %d elements, expected %d", op, len(out), want))
	}
}
