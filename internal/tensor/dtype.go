// Package tensor describes expressions statically: element types, shapes,
// storage orders and the capability traits the dispatcher consumes.
package tensor

import (
	"fmt"
	"reflect"
)

// Numeric is a constraint for supported element types.
// It uses Go generics to ensure compile-time type safety.
type Numeric interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// DataType represents runtime type information for expressions.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	default:
		panic("unknown data type")
	}
}

// IsFloat reports whether the data type is a floating-point type.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return "unknown"
	}
}

// ParseDataType parses a type name as printed by String.
func ParseDataType(s string) (DataType, error) {
	for _, dt := range []DataType{Float32, Float64, Int32, Int64} {
		if dt.String() == s {
			return dt, nil
		}
	}
	return Float32, fmt.Errorf("unknown data type %q", s)
}

// TypeOf infers the DataType of T, including named types over the
// supported kinds.
func TypeOf[T Numeric]() DataType {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	default:
		panic("unsupported type")
	}
}
