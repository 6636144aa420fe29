package expr

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

func withFeatures(t *testing.T, fn func(*config.Features)) {
	t.Helper()
	t.Cleanup(config.Update(fn))
}

func TestAssignCompound(t *testing.T) {
	ctx := context.Background()
	e := leaf(t, tensor.Shape{4}, 3, 6, 7, 9)

	cases := []struct {
		name   string
		assign func(context.Context, *Dense[float64], Expr[float64])
		want   []float64
	}{
		{"assign", Assign[float64], []float64{3, 6, 7, 9}},
		{"add", AssignAdd[float64], []float64{13, 26, 37, 49}},
		{"sub", AssignSub[float64], []float64{7, 14, 23, 31}},
		{"mul", AssignMul[float64], []float64{30, 120, 210, 360}},
		{"div", AssignDiv[float64], []float64{10.0 / 3, 20.0 / 6, 30.0 / 7, 40.0 / 9}},
		{"mod", AssignMod[float64], []float64{1, 2, 2, 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dst := leaf(t, tensor.Shape{4}, 10, 20, 30, 40)
			tc.assign(ctx, dst, e)
			assert.Equal(t, tc.want, dst.Data())
		})
	}
}

func TestCompoundEqualsMaterializeThenApply(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(3, 3))
	a := randomLeaf(r, tensor.Shape{8, 8})
	b := randomLeaf(r, tensor.Shape{8, 8})
	e := Add(Mul[float64](a, b), Expr[float64](a))

	dst := randomLeaf(r, tensor.Shape{8, 8})
	want := dst.Clone()
	value := Materialize(ctx, e)
	for i := range want.Data() {
		want.Data()[i] -= value.Data()[i]
	}

	AssignSub(ctx, dst, e)
	assert.InDeltaSlice(t, want.Data(), dst.Data(), 1e-12)
}

func TestAssignShapeMismatch(t *testing.T) {
	ctx := context.Background()
	dst := leaf(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	e := NewDense[float64](tensor.Shape{4})

	assert.PanicsWithValue(t, "assign: shape mismatch [2 2] = [4]", func() { Assign[float64](ctx, dst, e) })
	assert.Equal(t, []float64{1, 2, 3, 4}, dst.Data())

	assert.PanicsWithValue(t, "assign_add: shape mismatch [2 2] = [2 3]", func() {
		AssignAdd[float64](ctx, dst, Mul[float64](NewDense[float64](tensor.Shape{2, 5}), NewDense[float64](tensor.Shape{5, 3})))
	})
}

func TestAssignGenerators(t *testing.T) {
	ctx := context.Background()
	dst := NewDense[float64](tensor.Shape{2, 3})

	Assign(ctx, dst, Expr[float64](NewScalar(2.5)))
	assert.Equal(t, []float64{2.5, 2.5, 2.5, 2.5, 2.5, 2.5}, dst.Data())

	Assign(ctx, dst, Expr[float64](NewSequence(1.0, 2.0)))
	assert.Equal(t, []float64{1, 3, 5, 7, 9, 11}, dst.Data())
}

func TestVectorizedAndParallelSinksAgree(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(4, 4))
	a := randomLeaf(r, tensor.Shape{1001})
	b := randomLeaf(r, tensor.Shape{1001})
	e := Add(Hadamard[float64](a, b), Sqrt[float64](Abs[float64](a)))

	want := NewDense[float64](tensor.Shape{1001})
	func() {
		defer config.Update(func(f *config.Features) {
			f.VectorizeExpr = false
			f.Parallel = false
		})()
		Assign(ctx, want, e)
	}()

	for _, mode := range []tensor.VectorMode{tensor.VectorSSE3, tensor.VectorAVX, tensor.VectorAVX512} {
		for _, par := range []bool{false, true} {
			restore := config.Update(func(f *config.Features) {
				f.VectorizeExpr = true
				f.Vector = mode
				f.Parallel = par
				f.Threads = 4
				f.ParallelThreshold = 64
			})
			got := NewDense[float64](tensor.Shape{1001})
			Assign(ctx, got, e)
			restore()
			assert.Empty(t, cmp.Diff(want.Data(), got.Data()), "%s parallel=%v", mode, par)
		}
	}
}

func TestAssignAcrossOrders(t *testing.T) {
	ctx := context.Background()
	row := leaf(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	col := NewDense[float64](tensor.Shape{2, 3}, WithOrder(tensor.ColumnMajor))

	Assign[float64](ctx, col, row)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, col.Data())
	assert.Equal(t, 6.0, col.AtIndex(1, 2))

	back := Materialize[float64](ctx, Trans[float64](Trans[float64](col)))
	assert.Equal(t, tensor.ColumnMajor, back.Order())
	assert.Equal(t, col.Data(), back.Data())
}

func TestAssignTransposeOfItself(t *testing.T) {
	ctx := context.Background()
	a := leaf(t, tensor.Shape{3, 3}, 1, 2, 3, 4, 5, 6, 7, 8, 9)

	Assign(ctx, a, Trans[float64](a))
	assert.Equal(t, []float64{1, 4, 7, 2, 5, 8, 3, 6, 9}, a.Data())
}

func TestAssignLinearAlias(t *testing.T) {
	ctx := context.Background()
	a := leaf(t, tensor.Shape{3}, 1, 2, 3)

	Assign(ctx, a, Add(Expr[float64](a), Scale[float64](a, 2)))
	assert.Equal(t, []float64{3, 6, 9}, a.Data())
}

// countingKernel doubles its operand and counts its applications.
type countingKernel struct {
	src   Expr[float64]
	calls int
}

func (k *countingKernel) Name() string                { return "count" }
func (k *countingKernel) Shape() tensor.Shape         { return k.src.Shape() }
func (k *countingKernel) Order() tensor.Order         { return tensor.RowMajor }
func (k *countingKernel) Operands() []Expr[float64]   { return []Expr[float64]{k.src} }
func (k *countingKernel) Resident(selector.Impl) bool { return false }

func (k *countingKernel) Apply(_ context.Context, _ selector.Impl, out *Dense[float64]) error {
	k.calls++
	for i := range out.Data() {
		out.Data()[i] = 2 * k.src.At(i)
	}
	return nil
}

func TestTemporaryIsEvaluatedOnce(t *testing.T) {
	ctx := context.Background()
	k := &countingKernel{src: leaf(t, tensor.Shape{3}, 1, 2, 3)}
	tmp := NewTemporary[float64](k)

	dst := NewDense[float64](tensor.Shape{3})
	Assign(ctx, dst, Add(Expr[float64](tmp), Expr[float64](tmp)))
	assert.Equal(t, []float64{4, 8, 12}, dst.Data())
	assert.Equal(t, 1, k.calls)

	// Every evaluation computes the value once; reads do not.
	Evaluate[float64](ctx, tmp)
	assert.Equal(t, 2, k.calls)
	assert.Equal(t, 6.0, tmp.At(2))
	assert.Equal(t, 6.0, tmp.At(2))
	assert.Equal(t, 2, k.calls)
	assert.Equal(t, selector.Std, tmp.Impl())
}

func TestTemporarySeesUpdatedOperands(t *testing.T) {
	ctx := context.Background()
	a := leaf(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	id := leaf(t, tensor.Shape{2, 2}, 1, 0, 0, 1)
	z := NewDense[float64](tensor.Shape{2, 2})

	root := Mul[float64](a, id)
	nested := Add(Expr[float64](Mul[float64](a, id)), Expr[float64](z))
	dst := NewDense[float64](tensor.Shape{2, 2})

	Assign[float64](ctx, dst, root)
	assert.Equal(t, []float64{1, 2, 3, 4}, dst.Data())
	Assign(ctx, dst, nested)
	assert.Equal(t, []float64{1, 2, 3, 4}, dst.Data())

	a.Data()[0], a.Data()[1] = 2, 4
	Assign[float64](ctx, dst, root)
	assert.Equal(t, []float64{2, 4, 3, 4}, dst.Data())
	Assign(ctx, dst, nested)
	assert.Equal(t, []float64{2, 4, 3, 4}, dst.Data())
}

func TestSelectionOncePerEvaluation(t *testing.T) {
	logs := captureLogs(t)
	ctx := context.Background()
	a := leaf(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	p := Mul[float64](a, a)
	e := Add(Expr[float64](p), Expr[float64](p))
	dst := NewDense[float64](tensor.Shape{2, 2})

	Assign(ctx, dst, e)
	assert.Equal(t, []float64{14, 20, 30, 44}, dst.Data())
	assert.Equal(t, 1, strings.Count(logs.String(), "family=gemm"))
	impl := p.Impl()

	assert.Equal(t, 7.0, p.At(0))
	assert.Equal(t, 1, strings.Count(logs.String(), "family=gemm"))

	Assign(ctx, dst, e)
	assert.Equal(t, 2, strings.Count(logs.String(), "family=gemm"))
	assert.Equal(t, impl, p.Impl())
}

func TestRootTemporaryWritesDestination(t *testing.T) {
	ctx := context.Background()
	k := &countingKernel{src: leaf(t, tensor.Shape{2}, 1, 2)}
	tmp := NewTemporary[float64](k)

	dst := NewDense[float64](tensor.Shape{2})
	Assign[float64](ctx, dst, tmp)
	assert.Equal(t, []float64{2, 4}, dst.Data())
	assert.False(t, tmp.Allocated())
	assert.Nil(t, tmp.Result())
}

func TestTemporaryReadBeforeEvaluation(t *testing.T) {
	a := NewDense[float64](tensor.Shape{2, 2})
	p := Mul[float64](a, a)
	assert.PanicsWithValue(t, "gemm: temporary read before evaluation", func() { p.At(0) })

	Evaluate[float64](context.Background(), p)
	assert.NotPanics(t, func() { p.At(0) })
}

// loopKernel reads the temporary it computes.
type loopKernel struct {
	self *Temporary[float64]
}

func (k *loopKernel) Name() string                { return "loop" }
func (k *loopKernel) Shape() tensor.Shape         { return tensor.Shape{1} }
func (k *loopKernel) Order() tensor.Order         { return tensor.RowMajor }
func (k *loopKernel) Operands() []Expr[float64]   { return []Expr[float64]{k.self} }
func (k *loopKernel) Resident(selector.Impl) bool { return false }

func (k *loopKernel) Apply(context.Context, selector.Impl, *Dense[float64]) error { return nil }

func TestReentrantEvaluationPanics(t *testing.T) {
	ctx := context.Background()
	k := &loopKernel{}
	tmp := NewTemporary[float64](k)
	k.self = tmp
	tmp.allocate(ctx)

	assert.PanicsWithValue(t, "loop: re-entrant evaluation", func() {
		tmp.Visit(ctx, &Visitor{Kind: VisitEvaluate, NeedValue: true})
	})
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	a := leaf(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	p := Mul[float64](a, a)
	Evaluate[float64](ctx, p)
	result := p.Result()

	moved := p.Move()
	assert.False(t, p.Allocated())
	assert.False(t, p.Evaluated())
	assert.Nil(t, p.Result())
	assert.Panics(t, func() { p.At(0) })

	assert.True(t, moved.Evaluated())
	assert.Same(t, result, moved.Result())
	assert.Equal(t, []float64{7, 10, 15, 22}, moved.Result().Data())
}

func TestStrictDiv(t *testing.T) {
	a := NewDense[float64](tensor.Shape{2})

	withFeatures(t, func(f *config.Features) { f.StrictDiv = false })
	e := DivScalar[float64](a, 4)
	require.IsType(t, &Binary[float64]{}, e)
	assert.Equal(t, "hadamard", e.(*Binary[float64]).Op().Name)

	withFeatures(t, func(f *config.Features) { f.StrictDiv = true })
	e = DivScalar[float64](a, 4)
	assert.Equal(t, "div", e.(*Binary[float64]).Op().Name)

	ctx := context.Background()
	b := leaf(t, tensor.Shape{2}, 1, 3)
	assert.Equal(t, []float64{0.1, 0.3}, Materialize(ctx, DivScalar[float64](b, 10)).Data())
}

func TestFixedLeaf(t *testing.T) {
	ctx := context.Background()
	f := NewFixed[float64](tensor.Shape{2, 2})
	assert.True(t, f.Traits().Fast)

	Assign(ctx, f.Leaf(), Expr[float64](NewScalar(1.0)))
	assert.Equal(t, []float64{1, 1, 1, 1}, f.Data())

	assert.PanicsWithValue(t, "dense: resize of a fixed-shape leaf", func() { f.Resize(tensor.Shape{3}) })
	assert.PanicsWithValue(t, "dense: swap of a fixed-shape leaf", func() { f.Swap(NewDense[float64](tensor.Shape{2, 2})) })

	d := NewDense[float64](tensor.Shape{2})
	d.Resize(tensor.Shape{3, 3})
	assert.Equal(t, 9, d.Size())

	other := leaf(t, tensor.Shape{1}, 5)
	d.Swap(other)
	assert.Equal(t, []float64{5}, d.Data())
	assert.Equal(t, 9, other.Size())
}

func TestGonumRoundTrip(t *testing.T) {
	d := leaf(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	m := d.ToMat()
	assert.Equal(t, 6.0, m.At(1, 2))

	back := FromMat[float32](m)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, back.Data())
}
