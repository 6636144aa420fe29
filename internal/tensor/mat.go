package tensor

import "fmt"

// Mat is a row-major matrix over Data with Rows x Cols stored elements.
// When Trans is set the view stands for the transpose of the stored matrix.
type Mat[T Numeric] struct {
	Data       []T
	Rows, Cols int
	Trans      bool
}

// NewMat returns a zeroed rows x cols matrix.
func NewMat[T Numeric](rows, cols int) Mat[T] {
	return Mat[T]{Data: make([]T, rows*cols), Rows: rows, Cols: cols}
}

// Dims returns the logical dimensions of the view.
func (m Mat[T]) Dims() (rows, cols int) {
	if m.Trans {
		return m.Cols, m.Rows
	}
	return m.Rows, m.Cols
}

// At returns the logical element (i, j).
func (m Mat[T]) At(i, j int) T {
	if m.Trans {
		return m.Data[j*m.Cols+i]
	}
	return m.Data[i*m.Cols+j]
}

// T returns the transposed view, sharing Data.
func (m Mat[T]) T() Mat[T] {
	m.Trans = !m.Trans
	return m
}

// Materialize returns a row-major view without Trans. It copies only when
// the view is transposed.
func (m Mat[T]) Materialize() Mat[T] {
	if !m.Trans {
		return m
	}
	r, c := m.Dims()
	out := NewMat[T](r, c)
	for i := range r {
		for j := range c {
			out.Data[i*c+j] = m.Data[j*m.Cols+i]
		}
	}
	return out
}

// Row returns the stored row i. It panics on transposed views.
func (m Mat[T]) Row(i int) []T {
	if m.Trans {
		panic("mat: row of a transposed view")
	}
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

func (m Mat[T]) String() string {
	r, c := m.Dims()
	return fmt.Sprintf("mat[%dx%d trans=%v]", r, c, m.Trans)
}

// Conv4 describes a batched multi-channel 2-D convolution: an N x C x H x W
// input, a K x C x KH x KW kernel, per-axis stride S and padding P.
type Conv4 struct {
	N, C, H, W int
	K, KH, KW  int
	S1, S2     int
	P1, P2     int
}

// OutDims returns the output spatial extents. It panics when they are not
// positive.
func (p Conv4) OutDims() (oh, ow int) {
	s1, s2 := max(p.S1, 1), max(p.S2, 1)
	oh = (p.H-p.KH+2*p.P1)/s1 + 1
	ow = (p.W-p.KW+2*p.P2)/s2 + 1
	if p.H-p.KH+2*p.P1 < 0 || p.W-p.KW+2*p.P2 < 0 || oh <= 0 || ow <= 0 {
		panic("Invalid dimensions for conv4_valid")
	}
	return oh, ow
}

// Strides returns the strides with zero replaced by one.
func (p Conv4) Strides() (s1, s2 int) {
	return max(p.S1, 1), max(p.S2, 1)
}

// ColWidth returns C*KH*KW, the length of one im2col row.
func (p Conv4) ColWidth() int {
	return p.C * p.KH * p.KW
}

// Pool describes 2-D pooling over planes of H x W elements with a C1 x C2
// window, stride S and padding P.
type Pool struct {
	Planes int
	H, W   int
	C1, C2 int
	S1, S2 int
	P1, P2 int
}

// OutDims returns the pooled plane extents.
func (p Pool) OutDims() (oh, ow int) {
	return (p.H-p.C1+2*p.P1)/p.S1 + 1, (p.W-p.C2+2*p.P2)/p.S2 + 1
}
