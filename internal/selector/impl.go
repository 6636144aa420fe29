// Package selector chooses the compute provider for every forced operation.
//
// The decision is an ordinary function of the operand traits, the problem
// sizes and the process feature flags. A caller may force an implementation
// for one operation family through its context; a forced implementation the
// operands cannot support is reported and replaced by the default.
package selector

import (
	"fmt"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Impl is an implementation tag.
type Impl int

// Implementation tags.
const (
	Std  Impl = iota // Reference nested loops.
	Vec              // Hand-unrolled loops sized for the vector tier.
	Blas             // BLAS routines (gonum).
	GPU              // Registered GPU device.
	FFT              // Frequency-domain convolution.
)

var implNames = [...]string{"std", "vec", "blas", "gpu", "fft"}

// String returns the tag name as accepted by ParseImpl.
func (i Impl) String() string {
	if i < 0 || int(i) >= len(implNames) {
		return fmt.Sprintf("impl(%d)", int(i))
	}
	return implNames[i]
}

// ParseImpl parses a tag name.
func ParseImpl(s string) (Impl, error) {
	for i, name := range implNames {
		if name == s {
			return Impl(i), nil
		}
	}
	return Std, fmt.Errorf("unknown implementation %q", s)
}

// Family is a group of operations sharing one selection rule.
type Family int

// Operation families.
const (
	GEMM       Family = iota // Matrix-matrix product.
	GEMV                     // Matrix-vector product.
	GEVM                     // Vector-matrix product.
	Outer                    // Vector outer product.
	Conv1                    // 1-D convolution.
	Conv2                    // 2-D convolution.
	ConvMulti                // 2-D valid convolution with several kernels.
	Conv4                    // Batched multi-channel 2-D convolution.
	Reduce                   // Reductions to a scalar.
	Pool                     // 2-D pooling.
	BatchOuter               // Sum of the outer products of a batch of vector pairs.
	Upsample                 // 2-D upsampling.
)

var familyNames = [...]string{"gemm", "gemv", "gevm", "outer", "conv1", "conv2", "conv_multi", "conv4", "reduce", "pool", "batch_outer", "upsample"}

// Families lists every family, in declaration order.
var Families = []Family{GEMM, GEMV, GEVM, Outer, Conv1, Conv2, ConvMulti, Conv4, Reduce, Pool, BatchOuter, Upsample}

func (f Family) String() string {
	if f < 0 || int(f) >= len(familyNames) {
		return fmt.Sprintf("family(%d)", int(f))
	}
	return familyNames[f]
}

// ParseFamily parses a family name.
func ParseFamily(s string) (Family, error) {
	for i, name := range familyNames {
		if name == s {
			return Family(i), nil
		}
	}
	return GEMM, fmt.Errorf("unknown operation family %q", s)
}

// Impls returns the implementations that have a provider for the family.
func (f Family) Impls() []Impl {
	switch f {
	case GEMM, GEMV, GEVM, Conv4:
		return []Impl{Std, Vec, Blas, GPU}
	case Outer, BatchOuter:
		return []Impl{Std, Blas}
	case Conv1, Conv2:
		return []Impl{Std, Vec, FFT}
	case ConvMulti:
		return []Impl{Std, Vec, Blas, GPU, FFT}
	case Reduce:
		return []Impl{Std, Vec, Blas}
	default:
		return []Impl{Std}
	}
}

// Has reports whether the family has a provider for impl.
func (f Family) Has(impl Impl) bool {
	for _, i := range f.Impls() {
		if i == impl {
			return true
		}
	}
	return false
}

// ConvMode is the border handling of a convolution.
type ConvMode int

// Convolution modes.
const (
	Valid ConvMode = iota // Output only where the kernel fits entirely.
	Same                  // Output has the input's size.
	Full                  // Output covers every partial overlap.
)

func (m ConvMode) String() string {
	switch m {
	case Valid:
		return "valid"
	case Same:
		return "same"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Reduction is the scalar reduction of a Reduce request.
type Reduction int

// Reductions.
const (
	Sum Reduction = iota
	Asum
	Min
	Max
)

func (r Reduction) String() string {
	switch r {
	case Sum:
		return "sum"
	case Asum:
		return "asum"
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		return "unknown"
	}
}

// Operand is the part of an operand's traits the selector looks at.
type Operand struct {
	DType        tensor.DataType
	Direct       bool
	Vectorizable bool
	Generator    bool
}

// OperandOf extracts the selector view of tr.
func OperandOf(tr tensor.Traits) Operand {
	return Operand{
		DType:        tr.DType,
		Direct:       tr.Direct,
		Vectorizable: tr.Vectorizable,
		Generator:    tr.Generator,
	}
}

// Request describes one operation to dispatch.
type Request struct {
	Family   Family
	Operands []Operand

	// Products: A is M x K and B is K x N. GEMV/GEVM use M x N for the
	// matrix, Outer uses M and N, BatchOuter uses K for the batch, Reduce
	// uses N for the element count.
	M, K, N int

	// Convolutions: spatial extents of input and kernel, output element
	// count, and per-axis stride and padding.
	Input    []int
	Kernel   []int
	Elements int
	Stride   [2]int
	Padding  [2]int
	Mode     ConvMode

	// Scratch memory in bytes of the im2col and FFT providers.
	Im2colWorkspace int
	FFTWorkspace    int

	Reduction Reduction
}

// DType returns the element type of the request.
func (r Request) DType() tensor.DataType {
	if len(r.Operands) == 0 {
		return tensor.Float64
	}
	return r.Operands[0].DType
}

func (r Request) kernelSize() int {
	n := 1
	for _, k := range r.Kernel {
		n *= k
	}
	return n
}

func (r Request) unitStride() bool {
	return (r.Stride[0] <= 1 && r.Stride[1] <= 1) && r.Padding == [2]int{}
}
