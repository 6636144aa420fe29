package expr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/logging"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { logging.SetLogger(nil) })
	return &buf
}

// withEmulator registers an emulated device and enables the GPU providers.
func withEmulator(t *testing.T) *gpu.Emulator {
	t.Helper()
	emu := gpu.NewEmulator()
	prev := gpu.Register(emu)
	t.Cleanup(func() {
		gpu.Register(prev)
		_ = emu.Close()
	})
	withFeatures(t, func(f *config.Features) { f.GPU = true })
	return emu
}

// withoutDevice unregisters the process device for the test.
func withoutDevice(t *testing.T) {
	t.Helper()
	prev := gpu.Register(nil)
	t.Cleanup(func() { gpu.Register(prev) })
}

func leaf32(t *testing.T, shape tensor.Shape, data ...float32) *Dense[float32] {
	t.Helper()
	d, err := FromSlice(data, shape)
	require.NoError(t, err)
	return d
}

func TestGemmImplementations(t *testing.T) {
	withEmulator(t)
	withFeatures(t, func(f *config.Features) {
		f.BLAS = true
		f.VectorizeImpl = true
		f.Vector = tensor.VectorAVX
	})

	a := leaf32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := leaf32(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)

	for _, impl := range []selector.Impl{selector.Std, selector.Vec, selector.Blas, selector.GPU} {
		t.Run(impl.String(), func(t *testing.T) {
			ctx := selector.WithForced(context.Background(), selector.GEMM, impl)
			e := Mul[float32](a, b)
			c := NewDense[float32](tensor.Shape{2, 2})
			Assign[float32](ctx, c, e)

			assert.Equal(t, []float32{58, 64, 139, 154}, c.Data())
			assert.Equal(t, impl, e.Impl())
			assert.True(t, c.CPUUpToDate())
		})
	}
}

func TestGemmDefaultsToDeviceAboveThreshold(t *testing.T) {
	emu := withEmulator(t)
	withFeatures(t, func(f *config.Features) { f.GemmGPUMin = 4 })

	a := leaf32(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	e := Mul[float32](a, a)
	Evaluate[float32](context.Background(), e)

	assert.Equal(t, selector.GPU, e.Impl())
	assert.Equal(t, []float32{7, 10, 15, 22}, e.Result().Data())
	assert.Equal(t, 1, emu.Stats().Kernels)
}

func TestGemmColumnMajor(t *testing.T) {
	ctx := context.Background()
	a, err := FromSlice([]float64{1, 4, 2, 5, 3, 6}, tensor.Shape{2, 3}, WithOrder(tensor.ColumnMajor))
	require.NoError(t, err)
	b := leaf(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)

	c := Materialize[float64](ctx, Mul[float64](a, b))
	assert.Equal(t, tensor.ColumnMajor, c.Order())
	assert.Equal(t, []float64{58, 139, 64, 154}, c.Data())
	assert.Equal(t, 64.0, c.AtIndex(0, 1))

	row := NewDense[float64](tensor.Shape{2, 2})
	Assign[float64](ctx, row, Mul[float64](a, b))
	assert.Equal(t, []float64{58, 64, 139, 154}, row.Data())
}

func TestVectorProducts(t *testing.T) {
	ctx := context.Background()
	m := leaf(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	for _, impl := range []selector.Impl{selector.Std, selector.Vec, selector.Blas} {
		t.Run(impl.String(), func(t *testing.T) {
			withFeatures(t, func(f *config.Features) {
				f.BLAS = true
				f.VectorizeImpl = true
				f.Vector = tensor.VectorSSE3
			})
			ctx := selector.WithForced(ctx, selector.GEMV, impl)
			ctx = selector.WithForced(ctx, selector.GEVM, impl)
			ctx = selector.WithForced(ctx, selector.Outer, impl)

			gemv := Mul[float64](m, leaf(t, tensor.Shape{3}, 1, 1, 1))
			assert.Equal(t, []float64{6, 15}, Materialize[float64](ctx, gemv).Data())

			gevm := Mul[float64](leaf(t, tensor.Shape{2}, 1, 1), m)
			assert.Equal(t, []float64{5, 7, 9}, Materialize[float64](ctx, gevm).Data())

			outer := Outer[float64](leaf(t, tensor.Shape{2}, 1, 2), leaf(t, tensor.Shape{3}, 3, 4, 5))
			got := Materialize[float64](ctx, outer)
			assert.Equal(t, tensor.Shape{2, 3}, got.Shape())
			assert.Equal(t, []float64{3, 4, 5, 6, 8, 10}, got.Data())
		})
	}
}

func TestGemvOnDevice(t *testing.T) {
	withEmulator(t)
	ctx := selector.WithForced(context.Background(), selector.GEMV, selector.GPU)
	ctx = selector.WithForced(ctx, selector.GEVM, selector.GPU)

	m := leaf32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	gemv := Mul[float32](m, leaf32(t, tensor.Shape{3}, 1, 1, 1))
	assert.Equal(t, []float32{6, 15}, Materialize[float32](ctx, gemv).Data())
	assert.Equal(t, selector.GPU, gemv.Impl())

	gevm := Mul[float32](leaf32(t, tensor.Shape{2}, 1, 1), m)
	assert.Equal(t, []float32{5, 7, 9}, Materialize[float32](ctx, gevm).Data())
}

func TestForcedDeviceWithoutDeviceFallsBack(t *testing.T) {
	withoutDevice(t)
	withFeatures(t, func(f *config.Features) { f.GPU = true })
	logs := captureLogs(t)

	a := leaf32(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	ctx := selector.WithForced(context.Background(), selector.GEMM, selector.GPU)
	e := Mul[float32](a, a)
	got := Materialize[float32](ctx, e)

	assert.Equal(t, []float32{7, 10, 15, 22}, got.Data())
	assert.NotEqual(t, selector.GPU, e.Impl())
	assert.Contains(t, logs.String(), "forced implementation not possible")
	assert.Contains(t, logs.String(), "no GPU device")
}

func TestForcedIntegerDeviceFallsBack(t *testing.T) {
	withEmulator(t)
	captureLogs(t)

	a, err := FromSlice([]int64{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)
	ctx := selector.WithForced(context.Background(), selector.GEMM, selector.GPU)
	e := Mul[int64](a, a)

	assert.Equal(t, []int64{7, 10, 15, 22}, Materialize[int64](ctx, e).Data())
	assert.Equal(t, selector.Std, e.Impl())
}

func TestDeviceFailureRecomputesOnHost(t *testing.T) {
	emu := withEmulator(t)
	logs := captureLogs(t)
	emu.Fail(errors.New("device lost"))

	a := leaf32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := leaf32(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)
	ctx := selector.WithForced(context.Background(), selector.GEMM, selector.GPU)

	e := Mul[float32](a, b)
	c := NewDense[float32](tensor.Shape{2, 2})
	Assign[float32](ctx, c, e)

	assert.Equal(t, []float32{58, 64, 139, 154}, c.Data())
	assert.NotEqual(t, selector.GPU, e.Impl())
	assert.Contains(t, logs.String(), "device kernel failed")
	assert.Contains(t, logs.String(), "device lost")

	inner := Mul[float32](a, b)
	outer := Mul[float32](inner, leaf32(t, tensor.Shape{2, 2}, 1, 0, 0, 1))
	assert.Equal(t, []float32{58, 64, 139, 154}, Materialize[float32](ctx, outer).Data())
	assert.Equal(t, []float32{58, 64, 139, 154}, inner.Result().Data())
}

func TestResidentChainStaysOnDevice(t *testing.T) {
	emu := withEmulator(t)
	ctx := selector.WithForced(context.Background(), selector.GEMM, selector.GPU)

	a := leaf32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := leaf32(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)
	id := leaf32(t, tensor.Shape{2, 2}, 1, 0, 0, 1)

	inner := Mul[float32](a, b)
	c := NewDense[float32](tensor.Shape{2, 2})
	Assign[float32](ctx, c, Mul[float32](inner, id))

	assert.Equal(t, []float32{58, 64, 139, 154}, c.Data())
	stats := emu.Stats()
	assert.Equal(t, 2, stats.Kernels)
	assert.Equal(t, 3, stats.Uploads)
	// One download for the destination, one when the inner result is
	// released.
	assert.Equal(t, 2, stats.Downloads)

	assert.False(t, inner.Result().Mirror().Allocated())
	assert.Equal(t, []float32{58, 64, 139, 154}, inner.Result().Data())
	assert.True(t, c.CPUUpToDate())
	assert.False(t, c.GPUUpToDate())
}

func TestLeafDeviceCopyIsReused(t *testing.T) {
	emu := withEmulator(t)
	ctx := selector.WithForced(context.Background(), selector.GEMM, selector.GPU)

	a := leaf32(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	c := NewDense[float32](tensor.Shape{2, 2})
	Assign[float32](ctx, c, Mul[float32](a, a))
	Assign[float32](ctx, c, Mul[float32](a, a))
	assert.Equal(t, 1, emu.Stats().Uploads)

	a.Set(0, 10)
	a.InvalidateGPU()
	Assign[float32](ctx, c, Mul[float32](a, a))
	assert.Equal(t, 2, emu.Stats().Uploads)
	assert.Equal(t, []float32{106, 28, 42, 22}, c.Data())
}

func TestProductAliasing(t *testing.T) {
	ctx := context.Background()
	a := leaf(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	c := leaf(t, tensor.Shape{2, 2}, 5, 6, 7, 8)

	Assign[float64](ctx, c, Mul[float64](a, c))
	assert.Equal(t, []float64{19, 22, 43, 50}, c.Data())
}

func TestProductOperands(t *testing.T) {
	ctx := context.Background()
	a := leaf(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	b := leaf(t, tensor.Shape{2, 2}, 5, 6, 7, 8)

	got := Materialize[float64](ctx, Mul[float64](Trans[float64](a), b))
	assert.Equal(t, []float64{26, 30, 38, 44}, got.Data())

	got = Materialize[float64](ctx, Mul(Add[float64](a, a), Expr[float64](b)))
	assert.Equal(t, []float64{38, 44, 86, 100}, got.Data())

	got = Materialize[float64](ctx, Mul(Expr[float64](Mul[float64](a, b)), Expr[float64](a)))
	assert.Equal(t, []float64{85, 126, 193, 286}, got.Data())
}

func TestProductValidation(t *testing.T) {
	a := NewDense[float64](tensor.Shape{2, 3})
	v := NewDense[float64](tensor.Shape{2})

	assert.PanicsWithValue(t, "gemm: inner dimensions do not match [2 3] @ [2 3]", func() { Mul[float64](a, a) })
	assert.PanicsWithValue(t, "gemv: inner dimensions do not match [2 3] @ [2]", func() { Mul[float64](a, v) })
	assert.PanicsWithValue(t, "mul: unsupported ranks 1 and 1", func() { Mul[float64](v, v) })
	assert.PanicsWithValue(t, "outer: expected vectors, got 2-D and 1-D", func() { Outer[float64](a, v) })
}

func TestBatchOuter(t *testing.T) {
	withFeatures(t, func(f *config.Features) { f.BLAS = true })
	ctx := context.Background()
	a := leaf(t, tensor.Shape{3, 2}, 1, 2, 3, 4, 5, 6)
	b := leaf(t, tensor.Shape{3, 2}, 1, 0, 0, 1, 1, 1)

	for _, impl := range []selector.Impl{selector.Std, selector.Blas} {
		t.Run(impl.String(), func(t *testing.T) {
			e := BatchOuter[float64](a, b)
			got := Materialize[float64](selector.WithForced(ctx, selector.BatchOuter, impl), e)
			assert.Equal(t, impl, e.Impl())
			assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
			assert.Equal(t, []float64{6, 8, 8, 10}, got.Data())
		})
	}

	// The sum of the outer products of the rows.
	acc := NewDense[float64](tensor.Shape{2, 2})
	for i := range 3 {
		AssignAdd(ctx, acc, Expr[float64](Outer(Row[float64](a, i), Row[float64](b, i))))
	}
	assert.Equal(t, []float64{6, 8, 8, 10}, acc.Data())

	cm := NewDense[float64](tensor.Shape{3, 2}, WithOrder(tensor.ColumnMajor))
	Assign[float64](ctx, cm, a)
	for _, impl := range []selector.Impl{selector.Std, selector.Blas} {
		got := Materialize[float64](selector.WithForced(ctx, selector.BatchOuter, impl), BatchOuter[float64](cm, b))
		assert.Equal(t, tensor.ColumnMajor, got.Traits().Order)
		assert.Equal(t, 8.0, got.AtIndex(0, 1), impl.String())
		assert.Equal(t, 8.0, got.AtIndex(1, 0), impl.String())
		assert.Equal(t, 10.0, got.AtIndex(1, 1), impl.String())
	}

	assert.PanicsWithValue(t, "batch_outer: batch sizes do not match [3 2] vs [2 2]", func() {
		BatchOuter[float64](a, NewDense[float64](tensor.Shape{2, 2}))
	})
	assert.Panics(t, func() { BatchOuter[float64](Row[float64](a, 0), b) })
}
