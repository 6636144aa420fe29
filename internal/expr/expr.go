// Package expr implements lazy tensor expressions: dense leaves, element-wise
// nodes over them, and temporaries whose values only exist once a compute
// provider has filled them.
//
// Nothing is computed when an expression is built. Assign runs the
// evaluation protocol: allocate every temporary (children first), evaluate
// them, write the root expression into the destination element by element,
// then release the device memory of the temporaries.
package expr

import (
	"context"
	"sync/atomic"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Expr is a node of an expression tree.
type Expr[T tensor.Numeric] interface {
	// Traits describes the node statically.
	Traits() tensor.Traits

	// Shape returns the logical extents. Generators have no shape.
	Shape() tensor.Shape

	// Dims returns the number of dimensions.
	Dims() int

	// Dim returns the extent of dimension d.
	Dim(d int) int

	// Size returns the number of elements, the product of every Dim.
	Size() int

	// At returns element i in the storage order of Traits().Order.
	At(i int) T

	// AtIndex returns the element at the logical index.
	AtIndex(idx ...int) T

	// Load returns elements [i, i+lanes) as At would.
	Load(i, lanes int) tensor.Vec[T]

	// Alias reports whether the node reads memory overlapping d.
	Alias(d *Dense[T]) bool

	// Visit runs one pass of the evaluation protocol over the subtree.
	Visit(ctx context.Context, v *Visitor)
}

// VisitKind selects the pass of the evaluation protocol.
type VisitKind int

// Visit passes.
const (
	VisitAllocate VisitKind = iota // Allocate temporaries, children first.
	VisitEvaluate                  // Evaluate temporaries.
	VisitCleanGPU                  // Release the device memory of temporaries.
)

func (k VisitKind) String() string {
	switch k {
	case VisitAllocate:
		return "allocate"
	case VisitEvaluate:
		return "evaluate"
	case VisitCleanGPU:
		return "clean_gpu"
	default:
		return "unknown"
	}
}

// Visitor carries the state of one pass.
type Visitor struct {
	Kind VisitKind

	// NeedValue is set when the visiting parent reads the node on the host.
	NeedValue bool

	// Err accumulates device errors of the clean pass.
	Err error

	// pass identifies the evaluation an allocation pass belongs to.
	pass uint64
}

var passes atomic.Uint64

// newAllocation returns the allocation visitor of a new evaluation.
func newAllocation() *Visitor {
	return &Visitor{Kind: VisitAllocate, pass: passes.Add(1)}
}

// withNeed visits e with NeedValue set to need and restores it.
func (v *Visitor) withNeed(ctx context.Context, e interface {
	Visit(context.Context, *Visitor)
}, need bool) {
	old := v.NeedValue
	v.NeedValue = need
	e.Visit(ctx, v)
	v.NeedValue = old
}

// direct is implemented by the nodes backed by a Dense: leaves, fixed
// leaves and evaluated temporaries.
type direct[T tensor.Numeric] interface {
	Expr[T]
	dense() *Dense[T]
}

// isGenerator reports whether e has no storage and no shape.
func isGenerator[T tensor.Numeric](e Expr[T]) bool {
	return e.Traits().Generator
}

func sizeOf(shape tensor.Shape) int {
	return shape.NumElements()
}

func dimOf(shape tensor.Shape, d int) int {
	if d < 0 || d >= len(shape) {
		panic("dim: dimension out of range")
	}
	return shape[d]
}
