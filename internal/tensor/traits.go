package tensor

import (
	"fmt"
	"strings"
)

// Traits is the static description of an expression.
//
// Leaves fill it from their construction parameters; composite expressions
// derive it from their operands. It carries no behavior: the dispatcher and
// the evaluator read it to decide how an expression may be computed.
type Traits struct {
	DType DataType // Element type.
	Order Order    // Storage order of the driving operand.

	Direct         bool // Backed by contiguous, addressable memory.
	Generator      bool // Produces values without storage or shape.
	Linear         bool // Element i only depends on operand elements at i.
	ThreadSafe     bool // Disjoint ranges can be evaluated concurrently.
	Fast           bool // Shape is frozen at construction.
	Vectorizable   bool // Load groups are supported by every node and op.
	NeedsEvaluator bool // Contains a temporary that must be evaluated first.
	GPU            bool // Result is computed into device memory.
	Temporary      bool // Result must be materialized before any read.
}

// VectorizableFor reports whether the expression can be evaluated in Load
// groups under the given vector tier. Only floating-point element types
// have unrolled lanes.
func (t Traits) VectorizableFor(mode VectorMode) bool {
	return t.Vectorizable && mode != VectorNone && t.DType.IsFloat()
}

// String lists the set flags, for diagnostics.
func (t Traits) String() string {
	var flags []string
	add := func(ok bool, name string) {
		if ok {
			flags = append(flags, name)
		}
	}
	add(t.Direct, "direct")
	add(t.Generator, "generator")
	add(t.Linear, "linear")
	add(t.ThreadSafe, "thread-safe")
	add(t.Fast, "fast")
	add(t.Vectorizable, "vectorizable")
	add(t.NeedsEvaluator, "needs-evaluator")
	add(t.GPU, "gpu")
	add(t.Temporary, "temporary")
	return fmt.Sprintf("%s %s [%s]", t.DType, t.Order, strings.Join(flags, " "))
}
