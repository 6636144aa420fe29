package tensor

import (
	"fmt"
	"unsafe"
)

// AsFloat32 reinterprets s as []float32.
// Panics if T is not a float32 kind.
func AsFloat32[T Numeric](s []T) []float32 {
	if dt := TypeOf[T](); dt != Float32 {
		panic(fmt.Sprintf("slice dtype is %s, not float32", dt))
	}
	if len(s) == 0 {
		return nil
	}
	//nolint:gosec // same size and kind, bounds from len(s)
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}

// AsFloat64 reinterprets s as []float64.
// Panics if T is not a float64 kind.
func AsFloat64[T Numeric](s []T) []float64 {
	if dt := TypeOf[T](); dt != Float64 {
		panic(fmt.Sprintf("slice dtype is %s, not float64", dt))
	}
	if len(s) == 0 {
		return nil
	}
	//nolint:gosec // same size and kind, bounds from len(s)
	return unsafe.Slice((*float64)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}

// Bytes returns the bytes backing s.
func Bytes[T Numeric](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	//nolint:gosec // byte view of the same backing array
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}
