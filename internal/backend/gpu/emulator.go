package gpu

import (
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

// hostBuffer is emulated device memory.
type hostBuffer struct {
	data []float32
}

func (b *hostBuffer) Size() int { return len(b.data) * 4 }

// Emulator is a Device running on host memory. It gives the GPU providers a
// device on machines without one, and lets tests observe transfers and
// inject failures.
type Emulator struct {
	pool *Pool[*hostBuffer]

	mu        sync.Mutex
	uploads   int
	downloads int
	kernels   int
	fail      error
	closed    bool
}

// NewEmulator returns a ready emulated device.
func NewEmulator() *Emulator {
	return &Emulator{
		pool: NewPool(
			func(size int) *hostBuffer { return &hostBuffer{data: make([]float32, (size+3)/4)} },
			func(*hostBuffer) {},
			func(b *hostBuffer) int { return b.Size() },
		),
	}
}

// Name implements Device.
func (e *Emulator) Name() string { return "emulator" }

func (e *Emulator) buffer(b Buffer) (*hostBuffer, error) {
	hb, ok := b.(*hostBuffer)
	if !ok || hb == nil {
		return nil, errors.Errorf("emulator: foreign buffer %T", b)
	}
	return hb, nil
}

func (e *Emulator) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("emulator: device closed")
	}
	return nil
}

// Alloc implements Device.
func (e *Emulator) Alloc(size int) (Buffer, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, errors.Errorf("emulator: invalid buffer size %d", size)
	}
	return e.pool.Acquire(size), nil
}

// Upload implements Device.
func (e *Emulator) Upload(dst Buffer, src []byte) error {
	hb, err := e.buffer(dst)
	if err != nil {
		return err
	}
	if len(src) > hb.Size() {
		return errors.Errorf("emulator: upload of %d bytes into a %d byte buffer", len(src), hb.Size())
	}
	copy(tensor.Bytes(hb.data), src)

	e.mu.Lock()
	e.uploads++
	e.mu.Unlock()
	return nil
}

// Download implements Device.
func (e *Emulator) Download(dst []byte, src Buffer) error {
	hb, err := e.buffer(src)
	if err != nil {
		return err
	}
	if len(dst) > hb.Size() {
		return errors.Errorf("emulator: download of %d bytes from a %d byte buffer", len(dst), hb.Size())
	}
	copy(dst, tensor.Bytes(hb.data))

	e.mu.Lock()
	e.downloads++
	e.mu.Unlock()
	return nil
}

// Release implements Device.
func (e *Emulator) Release(b Buffer) {
	if hb, err := e.buffer(b); err == nil {
		e.pool.Release(hb)
	}
}

// MatMul implements Device.
func (e *Emulator) MatMul(a, b, c Buffer, m, k, n int) error {
	e.mu.Lock()
	fail := e.fail
	e.kernels++
	e.mu.Unlock()
	if fail != nil {
		return errors.Wrap(fail, "emulator: matmul")
	}

	ha, err := e.buffer(a)
	if err != nil {
		return err
	}
	hb, err := e.buffer(b)
	if err != nil {
		return err
	}
	hc, err := e.buffer(c)
	if err != nil {
		return err
	}
	if len(ha.data) < m*k || len(hb.data) < k*n || len(hc.data) < m*n {
		return errors.Errorf("emulator: matmul buffers too small for [%d,%d] @ [%d,%d]", m, k, k, n)
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: max(k, 1), Data: ha.data},
		blas32.General{Rows: k, Cols: n, Stride: max(n, 1), Data: hb.data},
		0,
		blas32.General{Rows: m, Cols: n, Stride: max(n, 1), Data: hc.data})
	return nil
}

// Close implements Device.
func (e *Emulator) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.pool.Clear()
	return nil
}

// Fail makes every following kernel return err. A nil err restores normal
// operation.
func (e *Emulator) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

// EmulatorStats counts the work done by an Emulator.
type EmulatorStats struct {
	Uploads   int
	Downloads int
	Kernels   int
	Pool      PoolStats
}

// Stats returns the transfer and kernel counters.
func (e *Emulator) Stats() EmulatorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EmulatorStats{
		Uploads:   e.uploads,
		Downloads: e.downloads,
		Kernels:   e.kernels,
		Pool:      e.pool.Stats(),
	}
}
