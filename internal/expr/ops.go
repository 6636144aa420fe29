package expr

import (
	"math"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

// UnaryOp is an element-wise function of one operand.
type UnaryOp[T tensor.Numeric] struct {
	Name         string
	Fn           func(T) T
	Vectorizable bool
	ThreadSafe   bool
}

// BinaryOp is an element-wise function of two operands.
type BinaryOp[T tensor.Numeric] struct {
	Name         string
	Fn           func(a, b T) T
	Linear       bool
	Vectorizable bool
}

func unary[T tensor.Numeric](name string, vectorizable bool, fn func(T) T) UnaryOp[T] {
	return UnaryOp[T]{Name: name, Fn: fn, Vectorizable: vectorizable, ThreadSafe: true}
}

// lift applies a float64 function to T.
func lift[T tensor.Numeric](fn func(float64) float64) func(T) T {
	return func(v T) T { return T(fn(float64(v))) }
}

// NegOp negates.
func NegOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("neg", true, func(v T) T { return -v })
}

// AbsOp takes the absolute value.
func AbsOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("abs", true, func(v T) T {
		if v < 0 {
			return -v
		}
		return v
	})
}

// SqrtOp takes the square root.
func SqrtOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("sqrt", true, lift[T](math.Sqrt))
}

// InvSqrtOp takes the inverse square root.
func InvSqrtOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("invsqrt", true, lift[T](func(x float64) float64 { return 1 / math.Sqrt(x) }))
}

// CbrtOp takes the cube root.
func CbrtOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("cbrt", false, lift[T](math.Cbrt))
}

// ExpOp exponentiates.
func ExpOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("exp", true, lift[T](math.Exp))
}

// LogOp takes the natural logarithm.
func LogOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("log", true, lift[T](math.Log))
}

// SinOp takes the sine.
func SinOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("sin", false, lift[T](math.Sin))
}

// CosOp takes the cosine.
func CosOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("cos", false, lift[T](math.Cos))
}

// TanOp takes the tangent.
func TanOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("tan", false, lift[T](math.Tan))
}

// SinhOp takes the hyperbolic sine.
func SinhOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("sinh", false, lift[T](math.Sinh))
}

// CoshOp takes the hyperbolic cosine.
func CoshOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("cosh", false, lift[T](math.Cosh))
}

// TanhOp takes the hyperbolic tangent.
func TanhOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("tanh", false, lift[T](math.Tanh))
}

// SigmoidOp computes 1 / (1 + exp(-x)).
func SigmoidOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("sigmoid", true, lift[T](func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }))
}

// ReluOp computes max(x, 0).
func ReluOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("relu", true, func(v T) T { return max(v, 0) })
}

// SignOp returns -1, 0 or 1.
func SignOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("sign", false, func(v T) T {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		default:
			return 0
		}
	})
}

// FloorOp rounds down.
func FloorOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("floor", false, lift[T](math.Floor))
}

// CeilOp rounds up.
func CeilOp[T tensor.Numeric]() UnaryOp[T] {
	return unary("ceil", false, lift[T](math.Ceil))
}

// ClipOp clamps into [lo, hi].
func ClipOp[T tensor.Numeric](lo, hi T) UnaryOp[T] {
	return unary("clip", true, func(v T) T { return min(max(v, lo), hi) })
}

// OneIfOp returns 1 where the element equals v and 0 elsewhere.
func OneIfOp[T tensor.Numeric](v T) UnaryOp[T] {
	return unary("one_if", false, func(x T) T {
		if x == v {
			return 1
		}
		return 0
	})
}

// AddOp adds.
func AddOp[T tensor.Numeric]() BinaryOp[T] {
	return BinaryOp[T]{Name: "add", Fn: func(a, b T) T { return a + b }, Linear: true, Vectorizable: true}
}

// SubOp subtracts.
func SubOp[T tensor.Numeric]() BinaryOp[T] {
	return BinaryOp[T]{Name: "sub", Fn: func(a, b T) T { return a - b }, Linear: true, Vectorizable: true}
}

// HadamardOp multiplies element-wise.
func HadamardOp[T tensor.Numeric]() BinaryOp[T] {
	return BinaryOp[T]{Name: "hadamard", Fn: func(a, b T) T { return a * b }, Linear: true, Vectorizable: true}
}

// DivOp divides.
func DivOp[T tensor.Numeric]() BinaryOp[T] {
	return BinaryOp[T]{Name: "div", Fn: func(a, b T) T { return a / b }, Linear: true, Vectorizable: true}
}

// ModOp takes the remainder with the sign of the dividend.
func ModOp[T tensor.Numeric]() BinaryOp[T] {
	return BinaryOp[T]{Name: "mod", Fn: mod[T], Linear: true}
}

// MaxOp keeps the larger element.
func MaxOp[T tensor.Numeric]() BinaryOp[T] {
	return BinaryOp[T]{Name: "max", Fn: func(a, b T) T { return max(a, b) }, Linear: true, Vectorizable: true}
}

// MinOp keeps the smaller element.
func MinOp[T tensor.Numeric]() BinaryOp[T] {
	return BinaryOp[T]{Name: "min", Fn: func(a, b T) T { return min(a, b) }, Linear: true, Vectorizable: true}
}

// PowOp raises a to the power b.
func PowOp[T tensor.Numeric]() BinaryOp[T] {
	return BinaryOp[T]{Name: "pow", Fn: func(a, b T) T { return T(math.Pow(float64(a), float64(b))) }, Linear: true}
}

func mod[T tensor.Numeric](a, b T) T {
	if tensor.TypeOf[T]().IsFloat() {
		return T(math.Mod(float64(a), float64(b)))
	}
	return T(int64(a) % int64(b))
}
