package parallel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch1DCount(t *testing.T) {
	ctx := context.Background()

	for _, threads := range []int{1, 2, 3, 4, 7, 16} {
		for _, threshold := range []int{0, 1, 10, 1000, 1 << 20} {
			for _, n := range []int{0, 1, 5, 64, 999, 4096} {
				cfg := Config{Enabled: true, NumWorkers: threads, Threshold: threshold}

				var counter int64
				Dispatch1D(ctx, 0, n, func(first, last int) {
					for i := first; i < last; i++ {
						atomic.AddInt64(&counter, 1)
					}
				}, cfg)

				if counter != int64(n) {
					t.Errorf("threads=%d threshold=%d: expected %d, got %d", threads, threshold, n, counter)
				}
			}
		}
	}
}

func TestDispatch1D_Sequential(t *testing.T) {
	cfg := Config{Enabled: false, NumWorkers: 8}

	calls := 0
	Dispatch1D(context.Background(), 10, 110, func(first, last int) {
		calls++
		assert.Equal(t, 10, first)
		assert.Equal(t, 110, last)
	}, cfg)
	assert.Equal(t, 1, calls)
}

func TestDispatch1D_SerialScope(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 8, Threshold: 1}
	ctx := WithSerial(context.Background())

	var calls int64
	Dispatch1D(ctx, 0, 1000, func(_, _ int) {
		atomic.AddInt64(&calls, 1)
	}, cfg)
	assert.Equal(t, int64(1), calls)
}

func TestDispatch1D_ParallelScope(t *testing.T) {
	cfg := Config{Enabled: false, NumWorkers: 4, Threshold: 1 << 30}
	ctx := WithParallel(context.Background())

	var calls int64
	Dispatch1D(ctx, 0, 100, func(_, _ int) {
		atomic.AddInt64(&calls, 1)
	}, cfg)
	assert.Equal(t, int64(4), calls)
}

func TestDispatch1D_CacheSizedBlocks(t *testing.T) {
	ctx := context.Background()
	base := Config{Enabled: true, NumWorkers: 2, Threshold: 1, CacheSize: 64}

	var calls, widest int64
	count := func(first, last int) {
		atomic.AddInt64(&calls, 1)
		for {
			w := atomic.LoadInt64(&widest)
			if int64(last-first) <= w || atomic.CompareAndSwapInt64(&widest, w, int64(last-first)) {
				return
			}
		}
	}

	Dispatch1D(ctx, 0, 32, count, base)
	assert.Equal(t, int64(2), calls)
	assert.Equal(t, int64(16), widest)

	// 8-byte items: a worker's share of 64 bytes holds 4 of them.
	calls, widest = 0, 0
	Dispatch1D(ctx, 0, 32, count, base.ForBytes(8))
	assert.Equal(t, int64(8), calls)
	assert.Equal(t, int64(4), widest)

	var sum int
	Dispatch1DAcc(ctx, 0, 32, func(first, last int) int {
		return last - first
	}, func(n int) { sum += n }, base.ForBytes(8))
	assert.Equal(t, 32, sum)
}

func TestBlocks(t *testing.T) {
	blocks := Blocks(3, 13, 4)
	require.Len(t, blocks, 4)
	assert.Equal(t, []Block{{3, 6}, {6, 9}, {9, 11}, {11, 13}}, blocks)

	// Fewer elements than threads: one block per element.
	assert.Len(t, Blocks(0, 3, 8), 3)
	assert.Nil(t, Blocks(5, 5, 4))

	// Deterministic.
	assert.Equal(t, Blocks(0, 1001, 7), Blocks(0, 1001, 7))
}

func TestBlocksCoverRange(t *testing.T) {
	for threads := 1; threads <= 9; threads++ {
		for n := 1; n < 50; n++ {
			blocks := Blocks(0, n, threads)
			next := 0
			for _, b := range blocks {
				assert.Equal(t, next, b.First)
				assert.Greater(t, b.Last, b.First)
				next = b.Last
			}
			assert.Equal(t, n, next)
		}
	}
}

func TestDispatch1DAcc(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, Threshold: 1}

	var total int
	Dispatch1DAcc(context.Background(), 0, 1000, func(first, last int) int {
		s := 0
		for i := first; i < last; i++ {
			s += i
		}
		return s
	}, func(p int) {
		total += p
	}, cfg)

	assert.Equal(t, 999*1000/2, total)
}

func TestDispatch2D(t *testing.T) {
	rows, cols := 37, 53
	cfg := Config{Enabled: true, NumWorkers: 6, Threshold: 1}

	hits := make([]int32, rows*cols)
	Dispatch2D(context.Background(), rows, cols, func(r0, r1, c0, c1 int) {
		for r := r0; r < r1; r++ {
			for c := c0; c < c1; c++ {
				atomic.AddInt32(&hits[r*cols+c], 1)
			}
		}
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("cell %d visited %d times", i, h)
		}
	}
}

func TestThreadBlocks(t *testing.T) {
	r, c := ThreadBlocks(4, 100, 100)
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)

	r, c = ThreadBlocks(8, 1000, 1)
	assert.Equal(t, 8, r)
	assert.Equal(t, 1, c)

	r, c = ThreadBlocks(6, 2, 300)
	assert.LessOrEqual(t, r*c, 6)
	assert.LessOrEqual(t, r, 2)
}

func TestForBatch(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, Threshold: 1}

	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(context.Background(), batch, channels, func(b, c int) {
		results[b][c] = true
	}, cfg)

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			if !results[b][c] {
				t.Errorf("Missing result at [%d][%d]", b, c)
			}
		}
	}
}

func BenchmarkDispatch1D(b *testing.B) {
	ctx := context.Background()
	n := 1 << 16
	data := make([]float64, n)

	b.Run("parallel", func(b *testing.B) {
		cfg := Config{Enabled: true, NumWorkers: 8, Threshold: 1}
		for i := 0; i < b.N; i++ {
			Dispatch1D(ctx, 0, n, func(first, last int) {
				for j := first; j < last; j++ {
					data[j] = data[j]*0.5 + 1
				}
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfg := Config{Enabled: false}
		for i := 0; i < b.N; i++ {
			Dispatch1D(ctx, 0, n, func(first, last int) {
				for j := first; j < last; j++ {
					data[j] = data[j]*0.5 + 1
				}
			}, cfg)
		}
	})
}
