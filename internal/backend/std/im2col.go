package std

import "github.com/born-ml/tensorexpr/internal/tensor"

// Im2col lays out the input patches of batch item n as rows of col.
//
// col is [OH * OW, C * KH * KW]: each row holds the patch under one output
// position, each column one kernel weight. Cells in the padding are zero.
// The valid convolution of item n is then kernel * col^T, with kernel
// viewed as K x (C * KH * KW).
func Im2col[T tensor.Numeric](col, in []T, p tensor.Conv4, n int) {
	oh, ow := p.OutDims()
	s1, s2 := p.Strides()
	width := p.ColWidth()

	row := 0
	for outH := range oh {
		for outW := range ow {
			hStart := outH*s1 - p.P1
			wStart := outW*s2 - p.P2

			idx := row * width
			for c := range p.C {
				for kh := range p.KH {
					for kw := range p.KW {
						h := hStart + kh
						w := wStart + kw
						if h >= 0 && h < p.H && w >= 0 && w < p.W {
							col[idx] = in[((n*p.C+c)*p.H+h)*p.W+w]
						} else {
							col[idx] = 0
						}
						idx++
					}
				}
			}
			row++
		}
	}
}

// RotateKernels returns a copy of the K x C x KH x KW kernel with every
// KH x KW plane rotated by 180 degrees. Im2col products are correlations,
// so plain convolutions run on rotated kernels.
func RotateKernels[T tensor.Numeric](kernel []T, kh, kw int) []T {
	plane := kh * kw
	out := make([]T, len(kernel))
	for base := 0; base < len(kernel); base += plane {
		for i := range plane {
			out[base+i] = kernel[base+plane-1-i]
		}
	}
	return out
}
