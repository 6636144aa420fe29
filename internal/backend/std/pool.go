package std

import (
	"context"

	"github.com/born-ml/tensorexpr/internal/parallel"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// MaxPool2D writes the maximum of every window of every plane. Padding
// cells never win; a window made only of padding yields zero.
func MaxPool2D[T tensor.Numeric](ctx context.Context, in []T, p tensor.Pool, out []T) {
	pool2D(ctx, in, p, out, func(window []T) T {
		if len(window) == 0 {
			return 0
		}
		m := window[0]
		for _, v := range window[1:] {
			m = max(m, v)
		}
		return m
	})
}

// AvgPool2D writes the mean of every window of every plane. The divisor is
// the full window size, padding included.
func AvgPool2D[T tensor.Numeric](ctx context.Context, in []T, p tensor.Pool, out []T) {
	size := T(p.C1 * p.C2)
	pool2D(ctx, in, p, out, func(window []T) T {
		var sum T
		for _, v := range window {
			sum += v
		}
		return sum / size
	})
}

func pool2D[T tensor.Numeric](ctx context.Context, in []T, p tensor.Pool, out []T, reduce func([]T) T) {
	oh, ow := p.OutDims()
	checkOut("pool2d", out, p.Planes*oh*ow)
	inPlane, outPlane := p.H*p.W, oh*ow

	cfg := parallel.DefaultConfig().ForWork(outPlane * p.C1 * p.C2)
	parallel.For(ctx, p.Planes, func(plane int) {
		src := in[plane*inPlane : (plane+1)*inPlane]
		dst := out[plane*outPlane : (plane+1)*outPlane]
		window := make([]T, 0, p.C1*p.C2)
		for i := range oh {
			for j := range ow {
				window = window[:0]
				for a := range p.C1 {
					y := i*p.S1 - p.P1 + a
					if y < 0 || y >= p.H {
						continue
					}
					for b := range p.C2 {
						x := j*p.S2 - p.P2 + b
						if x < 0 || x >= p.W {
							continue
						}
						window = append(window, src[y*p.W+x])
					}
				}
				dst[i*ow+j] = reduce(window)
			}
		}
	}, cfg)
}

// Upsample2D repeats every element of every plane into a C1 x C2 block.
// The output planes are H*C1 x W*C2.
func Upsample2D[T tensor.Numeric](ctx context.Context, in []T, p tensor.Pool, out []T) {
	oh, ow := p.H*p.C1, p.W*p.C2
	checkOut("upsample2d", out, p.Planes*oh*ow)
	inPlane, outPlane := p.H*p.W, oh*ow

	cfg := parallel.DefaultConfig().ForWork(outPlane)
	parallel.For(ctx, p.Planes, func(plane int) {
		src := in[plane*inPlane : (plane+1)*inPlane]
		dst := out[plane*outPlane : (plane+1)*outPlane]
		for i := range oh {
			row := src[(i/p.C1)*p.W : (i/p.C1+1)*p.W]
			for j := range ow {
				dst[i*ow+j] = row[j/p.C2]
			}
		}
	}, cfg)
}
