package tensor

import "fmt"

// VectorMode is the SIMD tier the vectorized paths are sized for.
type VectorMode int

// Supported vector tiers. 128-bit NEON maps to VectorSSE3.
const (
	VectorNone VectorMode = iota
	VectorSSE3
	VectorAVX
	VectorAVX512
)

// Bytes returns the register width of the tier in bytes.
func (m VectorMode) Bytes() int {
	switch m {
	case VectorSSE3:
		return 16
	case VectorAVX:
		return 32
	case VectorAVX512:
		return 64
	default:
		return 0
	}
}

// String returns the tier name as accepted by ParseVectorMode.
func (m VectorMode) String() string {
	switch m {
	case VectorNone:
		return "none"
	case VectorSSE3:
		return "sse3"
	case VectorAVX:
		return "avx"
	case VectorAVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

// ParseVectorMode parses a tier name.
func ParseVectorMode(s string) (VectorMode, error) {
	switch s {
	case "none":
		return VectorNone, nil
	case "sse3", "sse", "neon":
		return VectorSSE3, nil
	case "avx", "avx2":
		return VectorAVX, nil
	case "avx512":
		return VectorAVX512, nil
	default:
		return VectorNone, fmt.Errorf("unknown vector mode %q", s)
	}
}

// MaxLanes is the widest Load group (16 float32 lanes in a 512-bit register).
const MaxLanes = 16

// Vec is one Load group. Only the first lanes values are meaningful.
type Vec[T Numeric] [MaxLanes]T

// Lanes returns how many T values fit in one register of the given tier.
// It returns 1 when vectorization is off.
func Lanes[T Numeric](mode VectorMode) int {
	b := mode.Bytes()
	if b == 0 {
		return 1
	}
	return min(max(b/TypeOf[T]().Size(), 1), MaxLanes)
}
