package tensor

import "fmt"

// Shape represents the dimensions of an expression.
type Shape []int

// NumElements returns the total number of elements described by the shape.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Strides calculates the memory strides of the shape for the given order.
//
// Row-major: stride[i] = product of all dimensions after i.
// Column-major: stride[i] = product of all dimensions before i.
func (s Shape) Strides(order Order) []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	if order == ColumnMajor {
		strides[0] = 1
		for i := 1; i < len(s); i++ {
			strides[i] = strides[i-1] * s[i-1]
		}
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Offset returns the flat position of the multi-index idx in the given order.
// Panics if the number of indices or any index is out of range.
func (s Shape) Offset(order Order, idx ...int) int {
	if len(idx) != len(s) {
		panic(fmt.Sprintf("index: expected %d indices, got %d", len(s), len(idx)))
	}

	off := 0
	if order == ColumnMajor {
		for d := len(s) - 1; d >= 0; d-- {
			s.checkIndex(d, idx[d])
			off = off*s[d] + idx[d]
		}
		return off
	}

	for d := range s {
		s.checkIndex(d, idx[d])
		off = off*s[d] + idx[d]
	}
	return off
}

// Unravel converts a flat position into a multi-index in the given order.
// The indices are written into dst when it has the right length.
func (s Shape) Unravel(order Order, flat int, dst []int) []int {
	if len(dst) != len(s) {
		dst = make([]int, len(s))
	}

	if order == ColumnMajor {
		for d := range s {
			dst[d] = flat % s[d]
			flat /= s[d]
		}
		return dst
	}

	for d := len(s) - 1; d >= 0; d-- {
		dst[d] = flat % s[d]
		flat /= s[d]
	}
	return dst
}

func (s Shape) checkIndex(d, i int) {
	if i < 0 || i >= s[d] {
		panic(fmt.Sprintf("index: %d out of range for dimension %d of %v", i, d, s))
	}
}

// Order is the linearization of multi-dimensional indices in memory.
type Order int

// Supported storage orders.
const (
	RowMajor Order = iota
	ColumnMajor
)

// String returns a human-readable order name.
func (o Order) String() string {
	switch o {
	case RowMajor:
		return "row-major"
	case ColumnMajor:
		return "column-major"
	default:
		return "unknown"
	}
}
