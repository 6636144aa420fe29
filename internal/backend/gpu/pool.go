package gpu

import "sync"

// sizeClass is a buffer size category for pooling.
type sizeClass int

const (
	smallClass  sizeClass = iota // < 4KB
	mediumClass                  // 4KB - 1MB
	largeClass                   // > 1MB
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max buffers per class
)

func classOf(size int) sizeClass {
	switch {
	case size < smallThreshold:
		return smallClass
	case size < mediumThreshold:
		return mediumClass
	default:
		return largeClass
	}
}

// PoolStats reports buffer reuse.
type PoolStats struct {
	Allocated uint64
	Released  uint64
	Hits      uint64
	Misses    uint64
	Pooled    int
}

// Pool keeps released buffers per size class for reuse. alloc creates a
// buffer when no pooled one is large enough; free destroys one that does not
// fit in a full class.
type Pool[B any] struct {
	alloc func(size int) B
	free  func(B)
	size  func(B) int

	classes [3][]B

	mu    sync.Mutex
	stats PoolStats
}

// NewPool returns an empty pool.
func NewPool[B any](alloc func(int) B, free func(B), size func(B) int) *Pool[B] {
	p := &Pool[B]{alloc: alloc, free: free, size: size}
	for i := range p.classes {
		p.classes[i] = make([]B, 0, maxPoolSize)
	}
	return p
}

// Acquire returns a pooled buffer of at least size bytes or a new one.
func (p *Pool[B]) Acquire(size int) B {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := classOf(size)
	for i, b := range p.classes[c] {
		if p.size(b) >= size {
			p.classes[c] = append(p.classes[c][:i], p.classes[c][i+1:]...)
			p.stats.Hits++
			return b
		}
	}

	p.stats.Misses++
	p.stats.Allocated++
	return p.alloc(size)
}

// Release returns b to its class, or destroys it when the class is full.
func (p *Pool[B]) Release(b B) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Released++
	c := classOf(p.size(b))
	if len(p.classes[c]) >= maxPoolSize {
		p.free(b)
		return
	}
	p.classes[c] = append(p.classes[c], b)
}

// Clear destroys every pooled buffer.
func (p *Pool[B]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for c := range p.classes {
		for _, b := range p.classes[c] {
			p.free(b)
		}
		p.classes[c] = p.classes[c][:0]
	}
}

// Stats returns the counters and the number of pooled buffers.
func (p *Pool[B]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	for c := range p.classes {
		s.Pooled += len(p.classes[c])
	}
	return s
}
