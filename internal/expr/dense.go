package expr

import (
	"context"
	"fmt"
	"strings"
	"unsafe"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// Dense is a leaf owning contiguous memory in a storage order, mirrored on
// the GPU on demand.
//
// The host copy is authoritative unless a GPU kernel wrote the device copy
// and invalidated it. Element accessors do not synchronize: the evaluator
// makes the host copy current before any host read.
type Dense[T tensor.Numeric] struct {
	data   []T
	shape  tensor.Shape
	order  tensor.Order
	fixed  bool
	mirror *gpu.Mirror
}

// Option configures a new leaf.
type Option func(*options)

type options struct {
	order tensor.Order
}

// WithOrder sets the storage order of a new leaf.
func WithOrder(o tensor.Order) Option {
	return func(opts *options) { opts.order = o }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewDense returns a zeroed leaf. It panics on an invalid shape.
func NewDense[T tensor.Numeric](shape tensor.Shape, opts ...Option) *Dense[T] {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("dense: %v", err))
	}
	o := applyOptions(opts)
	return &Dense[T]{
		data:   make([]T, shape.NumElements()),
		shape:  shape.Clone(),
		order:  o.order,
		mirror: gpu.NewMirror(),
	}
}

// FromSlice wraps data, laid out in the requested order, as a leaf. The
// slice is not copied.
func FromSlice[T tensor.Numeric](data []T, shape tensor.Shape, opts ...Option) (*Dense[T], error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("dense: %d values do not fill shape %v", len(data), shape)
	}
	o := applyOptions(opts)
	return &Dense[T]{data: data, shape: shape.Clone(), order: o.order, mirror: gpu.NewMirror()}, nil
}

// MustFromSlice is FromSlice panicking on error.
func MustFromSlice[T tensor.Numeric](data []T, shape tensor.Shape, opts ...Option) *Dense[T] {
	d, err := FromSlice(data, shape, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Fixed is a leaf whose shape is frozen at construction.
type Fixed[T tensor.Numeric] struct {
	Dense[T]
}

// NewFixed returns a zeroed fixed-shape leaf.
func NewFixed[T tensor.Numeric](shape tensor.Shape, opts ...Option) *Fixed[T] {
	d := NewDense[T](shape, opts...)
	d.fixed = true
	return &Fixed[T]{Dense: *d}
}

// Leaf returns the leaf as a *Dense, the destination type of Assign.
func (f *Fixed[T]) Leaf() *Dense[T] {
	return &f.Dense
}

func (d *Dense[T]) dense() *Dense[T] { return d }

// Traits implements Expr.
func (d *Dense[T]) Traits() tensor.Traits {
	return tensor.Traits{
		DType:        tensor.TypeOf[T](),
		Order:        d.order,
		Direct:       true,
		Linear:       true,
		ThreadSafe:   true,
		Fast:         d.fixed,
		Vectorizable: true,
	}
}

// Shape implements Expr. The returned shape must not be modified.
func (d *Dense[T]) Shape() tensor.Shape { return d.shape }

// Dims implements Expr.
func (d *Dense[T]) Dims() int { return len(d.shape) }

// Dim implements Expr.
func (d *Dense[T]) Dim(i int) int { return dimOf(d.shape, i) }

// Size implements Expr.
func (d *Dense[T]) Size() int { return len(d.data) }

// Order returns the storage order.
func (d *Dense[T]) Order() tensor.Order { return d.order }

// At implements Expr.
func (d *Dense[T]) At(i int) T { return d.data[i] }

// AtIndex implements Expr.
func (d *Dense[T]) AtIndex(idx ...int) T {
	return d.data[d.shape.Offset(d.order, idx...)]
}

// Load implements Expr.
func (d *Dense[T]) Load(i, lanes int) tensor.Vec[T] {
	var v tensor.Vec[T]
	copy(v[:lanes], d.data[i:i+lanes])
	return v
}

// Set writes element i in storage order.
func (d *Dense[T]) Set(i int, v T) { d.data[i] = v }

// SetIndex writes the element at the logical index.
func (d *Dense[T]) SetIndex(v T, idx ...int) {
	d.data[d.shape.Offset(d.order, idx...)] = v
}

// Fill sets every element to v and drops the device copy.
func (d *Dense[T]) Fill(v T) {
	for i := range d.data {
		d.data[i] = v
	}
	d.mirror.Drop()
}

// Data returns the host memory in storage order.
func (d *Dense[T]) Data() []T { return d.data }

// Alias implements Expr.
func (d *Dense[T]) Alias(other *Dense[T]) bool {
	return overlap(d.data, other.data)
}

// Visit implements Expr. Leaves have nothing to allocate, evaluate or clean.
func (d *Dense[T]) Visit(_ context.Context, _ *Visitor) {}

// Resize replaces the memory with a zeroed block of the new shape. It
// panics on fixed leaves.
func (d *Dense[T]) Resize(shape tensor.Shape) {
	if d.fixed {
		panic("dense: resize of a fixed-shape leaf")
	}
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("dense: %v", err))
	}
	d.mirror.Drop()
	d.data = make([]T, shape.NumElements())
	d.shape = shape.Clone()
}

// Swap exchanges the contents of two leaves, device copies included. It
// panics when either is fixed.
func (d *Dense[T]) Swap(other *Dense[T]) {
	if d.fixed || other.fixed {
		panic("dense: swap of a fixed-shape leaf")
	}
	d.data, other.data = other.data, d.data
	d.shape, other.shape = other.shape, d.shape
	d.order, other.order = other.order, d.order
	d.mirror, other.mirror = other.mirror, d.mirror
}

// Clone returns a deep copy of the host memory. The device copy is not
// cloned.
func (d *Dense[T]) Clone() *Dense[T] {
	if err := d.EnsureCPUUpToDate(); err != nil {
		panic(err)
	}
	out := &Dense[T]{
		data:   make([]T, len(d.data)),
		shape:  d.shape.Clone(),
		order:  d.order,
		fixed:  d.fixed,
		mirror: gpu.NewMirror(),
	}
	copy(out.data, d.data)
	return out
}

// Mirror returns the device mirror of the leaf.
func (d *Dense[T]) Mirror() *gpu.Mirror { return d.mirror }

// CPUUpToDate reports whether the host copy is current.
func (d *Dense[T]) CPUUpToDate() bool { return d.mirror.CPUUpToDate() }

// GPUUpToDate reports whether the device copy is current.
func (d *Dense[T]) GPUUpToDate() bool { return d.mirror.GPUUpToDate() }

// EnsureGPUUpToDate uploads the host copy unless the device copy is current.
func (d *Dense[T]) EnsureGPUUpToDate() error {
	return d.mirror.EnsureGPUUpToDate(tensor.Bytes(d.data))
}

// EnsureCPUUpToDate downloads the device copy unless the host copy is
// current.
func (d *Dense[T]) EnsureCPUUpToDate() error {
	return d.mirror.EnsureCPUUpToDate(tensor.Bytes(d.data))
}

// InvalidateCPU marks the host copy stale.
func (d *Dense[T]) InvalidateCPU() { d.mirror.InvalidateCPU() }

// InvalidateGPU marks the device copy stale.
func (d *Dense[T]) InvalidateGPU() { d.mirror.InvalidateGPU() }

// GPUEvict releases the device copy, downloading it first if needed.
func (d *Dense[T]) GPUEvict() error {
	return d.mirror.Evict(tensor.Bytes(d.data))
}

// ToMat copies a 2-D leaf into a gonum matrix.
func (d *Dense[T]) ToMat() *mat.Dense {
	if len(d.shape) != 2 {
		panic(fmt.Sprintf("dense: ToMat of a %d-D leaf", len(d.shape)))
	}
	r, c := d.shape[0], d.shape[1]
	m := mat.NewDense(r, c, nil)
	for i := range r {
		for j := range c {
			m.Set(i, j, float64(d.AtIndex(i, j)))
		}
	}
	return m
}

// FromMat copies a gonum matrix into a new row-major leaf.
func FromMat[T tensor.Numeric](m mat.Matrix) *Dense[T] {
	r, c := m.Dims()
	d := NewDense[T](tensor.Shape{r, c})
	for i := range r {
		for j := range c {
			d.data[i*c+j] = T(m.At(i, j))
		}
	}
	return d
}

func (d *Dense[T]) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dense%v %s [%s]", []int(d.shape), d.order, d.mirror)
	return b.String()
}

// overlap reports whether two slices share memory.
func overlap[T any](a, b []T) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	var zero T
	size := unsafe.Sizeof(zero)
	a0 := uintptr(unsafe.Pointer(unsafe.SliceData(a)))
	b0 := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	a1 := a0 + uintptr(len(a))*size
	b1 := b0 + uintptr(len(b))*size
	return a0 < b1 && b0 < a1
}
