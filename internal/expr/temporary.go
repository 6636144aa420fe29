package expr

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/logging"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Kernel computes the value of a Temporary.
type Kernel[T tensor.Numeric] interface {
	// Name identifies the kernel in logs and panics.
	Name() string

	// Shape and Order describe the result.
	Shape() tensor.Shape
	Order() tensor.Order

	// Operands returns the sub-expressions the kernel reads.
	Operands() []Expr[T]

	// Apply fills out with impl. Only device implementations return errors.
	Apply(ctx context.Context, impl selector.Impl, out *Dense[T]) error

	// Resident reports whether impl reads the operands from their device
	// copies and leaves out on the device.
	Resident(impl selector.Impl) bool
}

// Dispatched is implemented by kernels whose implementation is chosen by
// the selector. Other kernels always run their std implementation.
type Dispatched interface {
	Request() selector.Request
}

// features returns the flags with GPU cleared when no device is registered.
func features() config.Features {
	f := config.Get()
	f.GPU = f.GPU && gpu.Default() != nil
	return f
}

// Temporary is a node whose value is computed by a kernel into memory of
// its own. It must be allocated and evaluated before it is read.
//
// The value belongs to one evaluation. A temporary visited several times
// by the same Assign or Evaluate is computed once, with one implementation
// choice; the next Assign or Evaluate computes it again, so changes to the
// operands in between are seen.
type Temporary[T tensor.Numeric] struct {
	kernel Kernel[T]
	result *Dense[T]

	impl       selector.Impl
	pass       uint64
	allocated  bool
	evaluated  bool
	evaluating bool
}

// NewTemporary returns an unallocated temporary computed by k.
func NewTemporary[T tensor.Numeric](k Kernel[T]) *Temporary[T] {
	return &Temporary[T]{kernel: k}
}

// Kernel returns the computing kernel.
func (t *Temporary[T]) Kernel() Kernel[T] { return t.kernel }

// Impl returns the implementation chosen at allocation.
func (t *Temporary[T]) Impl() selector.Impl { return t.impl }

// Allocated reports whether the result memory exists.
func (t *Temporary[T]) Allocated() bool { return t.allocated }

// Evaluated reports whether the result holds the value.
func (t *Temporary[T]) Evaluated() bool { return t.evaluated }

// Result returns the result memory, nil before allocation.
func (t *Temporary[T]) Result() *Dense[T] { return t.result }

func (t *Temporary[T]) dense() *Dense[T] {
	t.mustBeEvaluated()
	return t.result
}

// Move returns a temporary owning the result and state of t, and leaves t
// unallocated.
func (t *Temporary[T]) Move() *Temporary[T] {
	if t.evaluating {
		panic(fmt.Sprintf("%s: move during evaluation", t.kernel.Name()))
	}
	moved := &Temporary[T]{
		kernel:    t.kernel,
		result:    t.result,
		impl:      t.impl,
		pass:      t.pass,
		allocated: t.allocated,
		evaluated: t.evaluated,
	}
	t.result = nil
	t.allocated, t.evaluated = false, false
	return moved
}

// Traits implements Expr.
func (t *Temporary[T]) Traits() tensor.Traits {
	return tensor.Traits{
		DType:          tensor.TypeOf[T](),
		Order:          t.kernel.Order(),
		Direct:         true,
		Linear:         true,
		ThreadSafe:     true,
		Vectorizable:   true,
		NeedsEvaluator: true,
		Temporary:      true,
	}
}

func (t *Temporary[T]) Shape() tensor.Shape { return t.kernel.Shape() }
func (t *Temporary[T]) Dims() int           { return len(t.kernel.Shape()) }
func (t *Temporary[T]) Dim(d int) int       { return dimOf(t.kernel.Shape(), d) }
func (t *Temporary[T]) Size() int           { return sizeOf(t.kernel.Shape()) }

func (t *Temporary[T]) mustBeEvaluated() {
	if !t.evaluated {
		panic(fmt.Sprintf("%s: temporary read before evaluation", t.kernel.Name()))
	}
}

func (t *Temporary[T]) At(i int) T {
	t.mustBeEvaluated()
	return t.result.data[i]
}

func (t *Temporary[T]) AtIndex(idx ...int) T {
	t.mustBeEvaluated()
	return t.result.AtIndex(idx...)
}

func (t *Temporary[T]) Load(i, lanes int) tensor.Vec[T] {
	t.mustBeEvaluated()
	return t.result.Load(i, lanes)
}

// Alias implements Expr. The operands are included: they are read while
// the result is written.
func (t *Temporary[T]) Alias(d *Dense[T]) bool {
	if t.result != nil && t.result.Alias(d) {
		return true
	}
	for _, op := range t.kernel.Operands() {
		if op.Alias(d) {
			return true
		}
	}
	return false
}

// Visit implements Expr.
func (t *Temporary[T]) Visit(ctx context.Context, v *Visitor) {
	switch v.Kind {
	case VisitAllocate:
		if v.pass != 0 && v.pass == t.pass {
			return
		}
		t.pass = v.pass
		t.visitOperands(ctx, v)
		t.allocate(ctx)
	case VisitEvaluate:
		t.evaluate(ctx, v)
	case VisitCleanGPU:
		t.visitOperands(ctx, v)
		if t.result != nil {
			if err := t.result.GPUEvict(); err != nil {
				v.Err = multierr.Append(v.Err, fmt.Errorf("%s: %w", t.kernel.Name(), err))
			}
		}
	}
}

func (t *Temporary[T]) visitOperands(ctx context.Context, v *Visitor) {
	for _, op := range t.kernel.Operands() {
		op.Visit(ctx, v)
	}
}

// allocate prepares t for a new evaluation, dropping the value of the
// previous one.
func (t *Temporary[T]) allocate(ctx context.Context) {
	t.evaluated = false
	t.impl = t.choose(ctx, features())
	if t.allocated {
		return
	}
	t.result = NewDense[T](t.kernel.Shape(), WithOrder(t.kernel.Order()))
	t.allocated = true
}

func (t *Temporary[T]) choose(ctx context.Context, f config.Features) selector.Impl {
	if d, ok := t.kernel.(Dispatched); ok {
		return selector.Select(ctx, d.Request(), f)
	}
	return selector.Std
}

func (t *Temporary[T]) evaluate(ctx context.Context, v *Visitor) {
	if t.evaluating {
		panic(fmt.Sprintf("%s: re-entrant evaluation", t.kernel.Name()))
	}
	if !t.allocated {
		panic(fmt.Sprintf("%s: evaluation before allocation", t.kernel.Name()))
	}
	if !t.evaluated {
		t.evaluating = true
		t.compute(ctx, t.result)
		t.evaluating = false
		t.evaluated = true
	}
	if v.NeedValue {
		t.sync(ctx)
	}
}

// compute evaluates the operands and applies the kernel into out. A failed
// device kernel is recomputed with the host default.
func (t *Temporary[T]) compute(ctx context.Context, out *Dense[T]) {
	resident := t.kernel.Resident(t.impl)
	ev := &Visitor{Kind: VisitEvaluate}
	for _, op := range t.kernel.Operands() {
		ev.withNeed(ctx, op, !resident)
	}

	err := t.kernel.Apply(ctx, t.impl, out)
	if err == nil {
		if !resident {
			out.mirror.Drop()
		}
		return
	}
	t.fallback(ctx, out, err)
}

func (t *Temporary[T]) fallback(ctx context.Context, out *Dense[T], cause error) {
	f := features()
	f.GPU = false
	impl := selector.Std
	if d, ok := t.kernel.(Dispatched); ok {
		impl = selector.Default(d.Request(), f)
	}
	logging.Logger().ErrorContext(ctx, "device kernel failed, recomputing on the host",
		"kernel", t.kernel.Name(), "impl", t.impl, "fallback", impl, "error", cause)

	// Operands left on the device are needed on the host now.
	ev := &Visitor{Kind: VisitEvaluate}
	for _, op := range t.kernel.Operands() {
		ev.withNeed(ctx, op, true)
	}
	out.mirror.Drop()
	t.impl = impl
	if err := t.kernel.Apply(ctx, impl, out); err != nil {
		panic(fmt.Sprintf("%s: host implementation %s failed: %v", t.kernel.Name(), impl, err))
	}
}

// sync makes the host copy of the result current.
func (t *Temporary[T]) sync(ctx context.Context) {
	err := t.result.EnsureCPUUpToDate()
	if err == nil {
		return
	}
	t.evaluating = true
	t.fallback(ctx, t.result, err)
	t.evaluating = false
}

// applyTo computes the temporary straight into dst, skipping its own
// result memory. dst must not alias the operands.
func (t *Temporary[T]) applyTo(ctx context.Context, dst *Dense[T]) {
	alloc := newAllocation()
	t.visitOperands(ctx, alloc)
	t.impl = t.choose(ctx, features())

	t.evaluating = true
	t.compute(ctx, dst)
	t.evaluating = false

	if err := dst.EnsureCPUUpToDate(); err != nil {
		t.evaluating = true
		t.fallback(ctx, dst, err)
		t.evaluating = false
	}
}

func (t *Temporary[T]) String() string {
	return fmt.Sprintf("%s%v", t.kernel.Name(), []int(t.kernel.Shape()))
}
