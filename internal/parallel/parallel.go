// Package parallel provides the data-parallel dispatch used inside kernels
// and element-wise assignment.
//
// A dispatch splits an index range into contiguous blocks, runs them on a
// bounded set of workers and waits for all of them. Small ranges, disabled
// parallelism and serial scopes run the functor on the calling goroutine.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/tensorexpr/internal/config"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	Threshold  int  // Minimum range size before splitting.

	CacheSize int // Data cache in bytes shared by the workers.
	ItemBytes int // Bytes touched per item, zero when unknown.
}

// DefaultConfig returns the configuration derived from the process flags.
func DefaultConfig() Config {
	f := config.Get()
	return Config{
		Enabled:    f.Parallel,
		NumWorkers: f.Threads,
		Threshold:  f.ParallelThreshold,
		CacheSize:  f.CacheSize,
	}
}

// WithThreshold returns a copy of c using threshold n.
func (c Config) WithThreshold(n int) Config {
	c.Threshold = n
	return c
}

// ForWork returns a copy of c for ranges whose items each cost about work
// elementary operations.
func (c Config) ForWork(work int) Config {
	c.Threshold = max(c.Threshold/max(work, 1), 1)
	return c
}

// ForBytes returns a copy of c for ranges whose items each touch n bytes.
func (c Config) ForBytes(n int) Config {
	c.ItemBytes = n
	return c
}

// blockCount returns the number of blocks for a range of n items: one per
// worker, or more when a block would not fit the worker's share of the
// cache.
func (c Config) blockCount(n int) int {
	t := c.NumWorkers
	if c.CacheSize <= 0 || c.ItemBytes <= 0 || t <= 0 {
		return t
	}
	perBlock := max(c.CacheSize/(c.ItemBytes*t), 1)
	return max(t, (n+perBlock-1)/perBlock)
}

type scope int

const (
	scopeDefault scope = iota
	scopeSerial
	scopeParallel
)

type scopeKey struct{}

// WithSerial returns a context in which every dispatch runs serially.
func WithSerial(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, scopeSerial)
}

// WithParallel returns a context in which dispatches ignore the threshold
// and the process-wide parallel flag.
func WithParallel(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, scopeParallel)
}

func scopeOf(ctx context.Context) scope {
	if s, ok := ctx.Value(scopeKey{}).(scope); ok {
		return s
	}
	return scopeDefault
}

// Select reports whether a range of n elements is dispatched in parallel.
func (c Config) Select(ctx context.Context, n int) bool {
	if c.NumWorkers <= 1 || n < 2 {
		return false
	}
	switch scopeOf(ctx) {
	case scopeSerial:
		return false
	case scopeParallel:
		return true
	default:
		return c.Enabled && n >= c.Threshold
	}
}

// Block is the half-open range [First, Last).
type Block struct {
	First, Last int
}

// Blocks partitions [first, last) into min(last-first, threads) contiguous
// blocks whose sizes differ by at most one. The partition only depends on
// the range and the thread count.
func Blocks(first, last, threads int) []Block {
	n := last - first
	if n <= 0 {
		return nil
	}
	t := max(min(n, threads), 1)
	size, rem := n/t, n%t

	blocks := make([]Block, t)
	start := first
	for i := range blocks {
		end := start + size
		if i < rem {
			end++
		}
		blocks[i] = Block{First: start, Last: end}
		start = end
	}
	return blocks
}

// Dispatch1D calls fn over [first, last), either once on the calling
// goroutine or once per block on the workers.
func Dispatch1D(ctx context.Context, first, last int, fn func(first, last int), cfg Config) {
	n := last - first
	if n <= 0 {
		return
	}
	if !cfg.Select(ctx, n) {
		fn(first, last)
		return
	}

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for _, b := range Blocks(first, last, cfg.blockCount(n)) {
		g.Go(func() error {
			fn(b.First, b.Last)
			return nil
		})
	}
	_ = g.Wait()
}

// Dispatch1DAcc is Dispatch1D for functors producing a partial result.
// acc receives every partial result on the calling goroutine, in block order.
func Dispatch1DAcc[T any](ctx context.Context, first, last int, fn func(first, last int) T, acc func(T), cfg Config) {
	n := last - first
	if n <= 0 {
		return
	}
	if !cfg.Select(ctx, n) {
		acc(fn(first, last))
		return
	}

	blocks := Blocks(first, last, cfg.blockCount(n))
	partial := make([]T, len(blocks))

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for i, b := range blocks {
		g.Go(func() error {
			partial[i] = fn(b.First, b.Last)
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range partial {
		acc(p)
	}
}

// Dispatch2D calls fn over the rectangle [0, rows) x [0, cols), split into
// a grid of blocks shaped by ThreadBlocks.
func Dispatch2D(ctx context.Context, rows, cols int, fn func(row0, row1, col0, col1 int), cfg Config) {
	if rows <= 0 || cols <= 0 {
		return
	}
	if !cfg.Select(ctx, rows*cols) {
		fn(0, rows, 0, cols)
		return
	}

	tr, tc := ThreadBlocks(cfg.NumWorkers, rows, cols)
	rowBlocks := Blocks(0, rows, tr)
	colBlocks := Blocks(0, cols, tc)

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for _, rb := range rowBlocks {
		for _, cb := range colBlocks {
			g.Go(func() error {
				fn(rb.First, rb.Last, cb.First, cb.Last)
				return nil
			})
		}
	}
	_ = g.Wait()
}

// ThreadBlocks splits threads into a rows x cols grid for an m x n range.
// It uses as many threads as possible, then balances the block aspect so
// that m/rows is close to n/cols.
func ThreadBlocks(threads, m, n int) (rows, cols int) {
	rows, cols = 1, 1
	bestUsed, bestImbalance := 0, 0.0

	for tr := 1; tr <= threads; tr++ {
		r := min(tr, m)
		c := min(threads/tr, n)
		if c < 1 {
			continue
		}
		used := r * c
		imbalance := float64(m)/float64(r) - float64(n)/float64(c)
		if imbalance < 0 {
			imbalance = -imbalance
		}
		if used > bestUsed || (used == bestUsed && imbalance < bestImbalance) {
			rows, cols = r, c
			bestUsed, bestImbalance = used, imbalance
		}
	}
	return rows, cols
}

// For executes f(i) for i in [0, n).
func For(ctx context.Context, n int, f func(i int), cfg Config) {
	Dispatch1D(ctx, 0, n, func(first, last int) {
		for i := first; i < last; i++ {
			f(i)
		}
	}, cfg)
}

// ForBatch is For over a batch x channels space, the iteration pattern of
// convolution and pooling kernels.
func ForBatch(ctx context.Context, batch, channels int, f func(b, c int), cfg Config) {
	For(ctx, batch*channels, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
