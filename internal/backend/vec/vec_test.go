package vec

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexpr/internal/backend/std"
	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

func withVector(t *testing.T, mode tensor.VectorMode) {
	t.Helper()
	restore := config.Update(func(f *config.Features) { f.Vector = mode })
	t.Cleanup(restore)
}

func random(r *rand.Rand, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = r.Float64()*2 - 1
	}
	return s
}

func mat(r *rand.Rand, rows, cols int) tensor.Mat[float64] {
	return tensor.Mat[float64]{Data: random(r, rows*cols), Rows: rows, Cols: cols}
}

var modes = []tensor.VectorMode{tensor.VectorSSE3, tensor.VectorAVX, tensor.VectorAVX512}

func TestGemmMatchesStd(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(1, 2))

	for _, mode := range modes {
		withVector(t, mode)
		for _, dims := range [][3]int{{1, 1, 1}, {2, 3, 2}, {7, 13, 9}, {33, 17, 65}} {
			m, k, n := dims[0], dims[1], dims[2]
			a, b := mat(r, m, k), mat(r, k, n)

			want := make([]float64, m*n)
			std.Gemm(ctx, a, b, want)
			got := make([]float64, m*n)
			Gemm(ctx, a, b, got)
			assert.InDeltaSlice(t, want, got, 1e-12, "%s %v", mode, dims)

			// Transposed operands.
			at := a.Materialize()
			at = tensor.Mat[float64]{Data: transpose(at), Rows: k, Cols: m, Trans: true}
			clear(got)
			Gemm(ctx, at, b, got)
			assert.InDeltaSlice(t, want, got, 1e-12)
		}
	}
}

func transpose(m tensor.Mat[float64]) []float64 {
	out := make([]float64, len(m.Data))
	for i := range m.Rows {
		for j := range m.Cols {
			out[j*m.Rows+i] = m.Data[i*m.Cols+j]
		}
	}
	return out
}

func TestGemmFloat32(t *testing.T) {
	withVector(t, tensor.VectorAVX)
	a := tensor.Mat[float32]{Data: []float32{1, 2, 3, 4, 5, 6}, Rows: 2, Cols: 3}
	b := tensor.Mat[float32]{Data: []float32{7, 8, 9, 10, 11, 12}, Rows: 3, Cols: 2}
	c := make([]float32, 4)
	Gemm(context.Background(), a, b, c)
	assert.Equal(t, []float32{58, 64, 139, 154}, c)
}

func TestGemvGevmMatchStd(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(3, 4))
	withVector(t, tensor.VectorAVX)

	a := mat(r, 19, 23)
	x := random(r, 23)
	want, got := make([]float64, 19), make([]float64, 19)
	std.Gemv(ctx, a, x, want)
	Gemv(ctx, a, x, got)
	assert.InDeltaSlice(t, want, got, 1e-12)

	v := random(r, 19)
	want, got = make([]float64, 23), make([]float64, 23)
	std.Gevm(ctx, v, a, want)
	Gevm(ctx, v, a, got)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestConv1MatchesStd(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	withVector(t, tensor.VectorAVX)

	in, k := random(r, 37), random(r, 5)
	for _, flipped := range []bool{false, true} {
		want, got := make([]float64, 33), make([]float64, 33)
		std.Conv1Valid(in, k, want, flipped)
		Conv1Valid(in, k, got, flipped)
		assert.InDeltaSlice(t, want, got, 1e-12)

		want, got = make([]float64, 41), make([]float64, 41)
		std.Conv1Full(in, k, want, flipped)
		Conv1Full(in, k, got, flipped)
		assert.InDeltaSlice(t, want, got, 1e-12)

		want, got = make([]float64, 37), make([]float64, 37)
		std.Conv1Same(in, k, want, flipped)
		Conv1Same(in, k, got, flipped)
		assert.InDeltaSlice(t, want, got, 1e-12)
	}
}

func TestConv2MatchesStd(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(7, 8))
	withVector(t, tensor.VectorAVX512)

	in, k := mat(r, 11, 14), mat(r, 3, 4)
	for _, flipped := range []bool{false, true} {
		want, got := make([]float64, 9*11), make([]float64, 9*11)
		std.Conv2Valid(ctx, in, k, want, [2]int{}, [2]int{}, flipped)
		Conv2Valid(ctx, in, k, got, [2]int{}, [2]int{}, flipped)
		assert.InDeltaSlice(t, want, got, 1e-12)

		want, got = make([]float64, 13*17), make([]float64, 13*17)
		std.Conv2Full(ctx, in, k, want, flipped)
		Conv2Full(ctx, in, k, got, flipped)
		assert.InDeltaSlice(t, want, got, 1e-12)

		want, got = make([]float64, 11*14), make([]float64, 11*14)
		std.Conv2Same(ctx, in, k, want, flipped)
		Conv2Same(ctx, in, k, got, flipped)
		assert.InDeltaSlice(t, want, got, 1e-12)

		// Stride 2 and padding 1: (11-3+2)/2+1 x (14-4+2)/2+1.
		s, p := [2]int{2, 2}, [2]int{1, 1}
		want, got = make([]float64, 6*7), make([]float64, 6*7)
		std.Conv2Valid(ctx, in, k, want, s, p, flipped)
		Conv2Valid(ctx, in, k, got, s, p, flipped)
		assert.InDeltaSlice(t, want, got, 1e-12)
	}
}

func TestConv2Flipped4x4(t *testing.T) {
	withVector(t, tensor.VectorSSE3)
	in := tensor.Mat[float64]{Data: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, Rows: 4, Cols: 4}
	k := tensor.Mat[float64]{Data: []float64{1, 0, 0, 0}, Rows: 2, Cols: 2}

	out := make([]float64, 9)
	Conv2Valid(context.Background(), in, k, out, [2]int{}, [2]int{}, true)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 5, 6, 7, 9, 10, 11}, out, 1e-4)
}

func TestConvMultiAndConv4MatchStd(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(9, 10))
	withVector(t, tensor.VectorAVX)

	in := mat(r, 9, 9)
	kernels := random(r, 3*3*3)
	want, got := make([]float64, 3*7*7), make([]float64, 3*7*7)
	std.Conv2ValidMulti(ctx, in, kernels, 3, 3, 3, want, [2]int{}, [2]int{}, false)
	Conv2ValidMulti(ctx, in, kernels, 3, 3, 3, got, [2]int{}, [2]int{}, false)
	assert.InDeltaSlice(t, want, got, 1e-12)

	p := tensor.Conv4{N: 2, C: 3, H: 8, W: 7, K: 4, KH: 3, KW: 2, S1: 2, S2: 1, P1: 1, P2: 1}
	oh, ow := p.OutDims()
	x, w := random(r, p.N*p.C*p.H*p.W), random(r, p.K*p.C*p.KH*p.KW)
	for _, flipped := range []bool{false, true} {
		want, got = make([]float64, p.N*p.K*oh*ow), make([]float64, p.N*p.K*oh*ow)
		std.Conv4Valid(ctx, x, w, p, want, flipped)
		Conv4Valid(ctx, x, w, p, got, flipped)
		assert.InDeltaSlice(t, want, got, 1e-12)
	}

	full := tensor.Conv4{N: 2, C: 3, H: 5, W: 4, K: 2, KH: 3, KW: 2}
	x, w = random(r, full.N*full.K*full.H*full.W), random(r, full.K*full.C*full.KH*full.KW)
	size := full.N * full.C * (full.H + full.KH - 1) * (full.W + full.KW - 1)
	want, got = make([]float64, size), make([]float64, size)
	std.Conv4Full(ctx, x, w, full, want, false)
	Conv4Full(ctx, x, w, full, got, false)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestReduce(t *testing.T) {
	ctx := context.Background()
	data := make([]float64, 1001)
	for i := range data {
		data[i] = float64(i%11) - 5
	}
	at := func(i int) float64 { return data[i] }

	for _, lanes := range []int{1, 2, 4, 8} {
		load := func(i int) tensor.Vec[float64] {
			var v tensor.Vec[float64]
			copy(v[:lanes], data[i:])
			return v
		}

		assert.InDelta(t, std.Sum(ctx, len(data), at), Sum(ctx, len(data), lanes, load, at), 1e-9)
		assert.InDelta(t, std.Asum(ctx, len(data), at), Asum(ctx, len(data), lanes, load, at), 1e-9)
		assert.Equal(t, -5.0, Min(ctx, len(data), lanes, load, at))
		assert.Equal(t, 5.0, Max(ctx, len(data), lanes, load, at))
	}

	require.Panics(t, func() { Max(ctx, 0, 4, nil, at) })
}
