package std

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

func seq(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(i + 1)
	}
	return s
}

func TestGemm(t *testing.T) {
	ctx := context.Background()
	a := tensor.Mat[float64]{Data: []float64{1, 2, 3, 4, 5, 6}, Rows: 2, Cols: 3}
	b := tensor.Mat[float64]{Data: []float64{7, 8, 9, 10, 11, 12}, Rows: 3, Cols: 2}

	c := make([]float64, 4)
	Gemm(ctx, a, b, c)
	assert.Equal(t, []float64{58, 64, 139, 154}, c)

	// Same product through transposed views.
	at := tensor.Mat[float64]{Data: []float64{1, 4, 2, 5, 3, 6}, Rows: 3, Cols: 2, Trans: true}
	bt := tensor.Mat[float64]{Data: []float64{7, 9, 11, 8, 10, 12}, Rows: 2, Cols: 3, Trans: true}
	clear(c)
	Gemm(ctx, at, bt, c)
	assert.Equal(t, []float64{58, 64, 139, 154}, c)

	ci := make([]int32, 4)
	Gemm(ctx,
		tensor.Mat[int32]{Data: []int32{1, 2, 3, 4, 5, 6}, Rows: 2, Cols: 3},
		tensor.Mat[int32]{Data: []int32{7, 8, 9, 10, 11, 12}, Rows: 3, Cols: 2}, ci)
	assert.Equal(t, []int32{58, 64, 139, 154}, ci)

	assert.Panics(t, func() { Gemm(ctx, a, a, make([]float64, 4)) })
}

func TestGemvGevmOuter(t *testing.T) {
	ctx := context.Background()
	a := tensor.Mat[float64]{Data: []float64{1, 2, 3, 4}, Rows: 2, Cols: 2}

	y := make([]float64, 2)
	Gemv(ctx, a, []float64{1, 1}, y)
	assert.Equal(t, []float64{3, 7}, y)

	Gevm(ctx, []float64{1, 1}, a, y)
	assert.Equal(t, []float64{4, 6}, y)

	c := make([]float64, 6)
	Outer([]float64{1, 2}, []float64{3, 4, 5}, c)
	assert.Equal(t, []float64{3, 4, 5, 6, 8, 10}, c)
}

func TestConv1(t *testing.T) {
	in := []float64{1, 2, 3}
	k := []float64{0, 1, 0.5}

	full := make([]float64, 5)
	Conv1Full(in, k, full, false)
	assert.InDeltaSlice(t, []float64{0, 1, 2.5, 4, 1.5}, full, 1e-12)

	valid := make([]float64, 1)
	Conv1Valid(in, k, valid, false)
	assert.InDeltaSlice(t, []float64{2.5}, valid, 1e-12)

	same := make([]float64, 3)
	Conv1Same(in, k, same, false)
	assert.InDeltaSlice(t, []float64{1, 2.5, 4}, same, 1e-12)

	Conv1Full(in, k, full, true)
	assert.InDeltaSlice(t, []float64{0.5, 2, 3.5, 3, 0}, full, 1e-12)

	Conv1Valid(in, k, valid, true)
	assert.InDeltaSlice(t, []float64{3.5}, valid, 1e-12)
}

func TestConv2Valid(t *testing.T) {
	ctx := context.Background()
	in := tensor.Mat[float64]{Data: seq(16), Rows: 4, Cols: 4}
	k := tensor.Mat[float64]{Data: []float64{1, 0, 0, 0}, Rows: 2, Cols: 2}

	out := make([]float64, 9)
	Conv2Valid(ctx, in, k, out, [2]int{}, [2]int{}, true)
	assert.Equal(t, []float64{1, 2, 3, 5, 6, 7, 9, 10, 11}, out)

	Conv2Valid(ctx, in, k, out, [2]int{}, [2]int{}, false)
	assert.Equal(t, []float64{6, 7, 8, 10, 11, 12, 14, 15, 16}, out)
}

func TestConv2StrideAndPadding(t *testing.T) {
	ctx := context.Background()
	in := tensor.Mat[float64]{Data: seq(16), Rows: 4, Cols: 4}

	ones2 := tensor.Mat[float64]{Data: []float64{1, 1, 1, 1}, Rows: 2, Cols: 2}
	out := make([]float64, 4)
	Conv2Valid(ctx, in, ones2, out, [2]int{2, 2}, [2]int{}, true)
	assert.Equal(t, []float64{14, 22, 46, 54}, out)

	ones3 := tensor.Mat[float64]{Data: []float64{1, 1, 1, 1, 1, 1, 1, 1, 1}, Rows: 3, Cols: 3}
	padded := make([]float64, 16)
	Conv2Valid(ctx, in, ones3, padded, [2]int{1, 1}, [2]int{1, 1}, true)
	assert.Equal(t, 14.0, padded[0])
	assert.Equal(t, 11.0+12+15+16, padded[15])
}

func TestConv2FullSame(t *testing.T) {
	ctx := context.Background()
	in := tensor.Mat[float64]{Data: seq(16), Rows: 4, Cols: 4}
	k := tensor.Mat[float64]{Data: []float64{1, 0, 0, 0}, Rows: 2, Cols: 2}

	full := make([]float64, 25)
	Conv2Full(ctx, in, k, full, false)
	for i := range 5 {
		for j := range 5 {
			want := 0.0
			if i < 4 && j < 4 {
				want = in.Data[i*4+j]
			}
			assert.Equal(t, want, full[i*5+j], "(%d,%d)", i, j)
		}
	}

	same := make([]float64, 16)
	Conv2Same(ctx, in, k, same, false)
	assert.Equal(t, in.Data, same)
}

func TestConv2ValidMulti(t *testing.T) {
	ctx := context.Background()
	in := tensor.Mat[float64]{Data: seq(16), Rows: 4, Cols: 4}
	kernels := []float64{1, 0, 0, 0, 0, 0, 0, 1}

	out := make([]float64, 18)
	Conv2ValidMulti(ctx, in, kernels, 2, 2, 2, out, [2]int{}, [2]int{}, true)
	assert.Equal(t, []float64{1, 2, 3, 5, 6, 7, 9, 10, 11}, out[:9])
	assert.Equal(t, []float64{6, 7, 8, 10, 11, 12, 14, 15, 16}, out[9:])
}

func TestConv4Valid(t *testing.T) {
	ctx := context.Background()
	p := tensor.Conv4{N: 2, C: 2, H: 3, W: 3, K: 2, KH: 2, KW: 2}
	in := seq(p.N * p.C * p.H * p.W)
	kernel := seq(p.K * p.C * p.KH * p.KW)

	for _, flipped := range []bool{false, true} {
		out := make([]float64, 2*2*2*2)
		Conv4Valid(ctx, in, kernel, p, out, flipped)

		for n := range p.N {
			for k := range p.K {
				want := make([]float64, 4)
				for c := range p.C {
					plane := make([]float64, 4)
					Conv2Valid(ctx,
						tensor.Mat[float64]{Data: in[(n*2+c)*9 : (n*2+c+1)*9], Rows: 3, Cols: 3},
						tensor.Mat[float64]{Data: kernel[(k*2+c)*4 : (k*2+c+1)*4], Rows: 2, Cols: 2},
						plane, [2]int{}, [2]int{}, flipped)
					for i := range want {
						want[i] += plane[i]
					}
				}
				assert.Equal(t, want, out[(n*2+k)*4:(n*2+k+1)*4])
			}
		}
	}
}

func TestConv4InvalidDimensions(t *testing.T) {
	p := tensor.Conv4{N: 1, C: 1, H: 2, W: 2, K: 1, KH: 3, KW: 3}
	assert.PanicsWithValue(t, "Invalid dimensions for conv4_valid", func() {
		Conv4Valid(context.Background(), make([]float64, 4), make([]float64, 9), p, nil, false)
	})
}

func TestConv4Full(t *testing.T) {
	ctx := context.Background()
	p := tensor.Conv4{N: 1, C: 2, H: 2, W: 2, K: 3, KH: 2, KW: 2}
	in := seq(p.N * p.K * p.H * p.W)
	kernel := seq(p.K * p.C * p.KH * p.KW)

	out := make([]float64, p.N*p.C*3*3)
	Conv4Full(ctx, in, kernel, p, out, false)

	for c := range p.C {
		want := make([]float64, 9)
		for k := range p.K {
			plane := make([]float64, 9)
			Conv2Full(ctx,
				tensor.Mat[float64]{Data: in[k*4 : (k+1)*4], Rows: 2, Cols: 2},
				tensor.Mat[float64]{Data: kernel[(k*2+c)*4 : (k*2+c+1)*4], Rows: 2, Cols: 2},
				plane, false)
			for i := range want {
				want[i] += plane[i]
			}
		}
		assert.Equal(t, want, out[c*9:(c+1)*9])
	}
}

func TestPool2D(t *testing.T) {
	ctx := context.Background()
	p := tensor.Pool{Planes: 2, H: 4, W: 4, C1: 2, C2: 2, S1: 2, S2: 2}
	in := append(seq(16), seq(16)...)

	out := make([]float64, 8)
	MaxPool2D(ctx, in, p, out)
	assert.Equal(t, []float64{6, 8, 14, 16, 6, 8, 14, 16}, out)

	AvgPool2D(ctx, in, p, out)
	assert.Equal(t, []float64{3.5, 5.5, 11.5, 13.5, 3.5, 5.5, 11.5, 13.5}, out)

	padded := tensor.Pool{Planes: 1, H: 4, W: 4, C1: 2, C2: 2, S1: 2, S2: 2, P1: 1, P2: 1}
	oh, ow := padded.OutDims()
	require.Equal(t, 3, oh)
	require.Equal(t, 3, ow)
	out = make([]float64, 9)
	MaxPool2D(ctx, seq(16), padded, out)
	assert.Equal(t, []float64{1, 3, 4, 9, 11, 12, 13, 15, 16}, out)
}

func TestReduce(t *testing.T) {
	ctx := context.Background()
	data := make([]float64, 100_000)
	for i := range data {
		data[i] = float64(i%7) - 3
	}
	at := func(i int) float64 { return data[i] }

	var sum, asum float64
	for _, v := range data {
		sum += v
		if v < 0 {
			asum -= v
		} else {
			asum += v
		}
	}

	assert.InDelta(t, sum, Sum(ctx, len(data), at), 1e-9)
	assert.InDelta(t, asum, Asum(ctx, len(data), at), 1e-9)
	assert.Equal(t, -3.0, Min(ctx, len(data), at))
	assert.Equal(t, 3.0, Max(ctx, len(data), at))

	assert.Equal(t, int64(5050), Sum(ctx, 100, func(i int) int64 { return int64(i + 1) }))
	assert.Panics(t, func() { Min(ctx, 0, at) })
}
