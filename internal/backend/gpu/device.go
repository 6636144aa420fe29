// Package gpu defines the device contract used by the GPU providers, the
// process-wide device registry, the CPU/GPU mirror attached to leaves and
// temporaries, and the kernels built on top of a device.
//
// Devices only compute on float32 row-major data.
package gpu

import (
	"sync"

	"github.com/pkg/errors"
)

// Buffer is device memory. Its contents are opaque to the host.
type Buffer interface {
	// Size returns the buffer size in bytes.
	Size() int
}

// Device is a compute device.
type Device interface {
	// Name identifies the device in logs and tool output.
	Name() string

	// Alloc returns a buffer of at least size bytes.
	Alloc(size int) (Buffer, error)

	// Upload copies src to the start of dst.
	Upload(dst Buffer, src []byte) error

	// Download copies the start of src into dst.
	Download(dst []byte, src Buffer) error

	// Release returns a buffer to the device.
	Release(b Buffer)

	// MatMul computes c = a * b for row-major float32 matrices, a being
	// m x k and b being k x n.
	MatMul(a, b, c Buffer, m, k, n int) error

	// Close releases every resource held by the device.
	Close() error
}

// ErrNoDevice is returned when a GPU operation runs without a registered
// device.
var ErrNoDevice = errors.New("gpu: no device registered")

var (
	mu      sync.RWMutex
	current Device
)

// Register installs d as the process device and returns the previous one.
// The previous device is not closed.
func Register(d Device) (prev Device) {
	mu.Lock()
	defer mu.Unlock()
	prev, current = current, d
	return prev
}

// Default returns the registered device, or nil.
func Default() Device {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Reset unregisters and closes the registered device.
func Reset() error {
	mu.Lock()
	d := current
	current = nil
	mu.Unlock()

	if d == nil {
		return nil
	}
	return errors.Wrapf(d.Close(), "gpu: close %s", d.Name())
}

// releaseAll releases every non-nil buffer.
func releaseAll(d Device, bufs ...Buffer) {
	for _, b := range bufs {
		if b != nil {
			d.Release(b)
		}
	}
}

// upload allocates one buffer per source and copies it. On failure the
// buffers allocated so far are released.
func upload(d Device, srcs ...[]byte) ([]Buffer, error) {
	bufs := make([]Buffer, 0, len(srcs))
	for i, src := range srcs {
		b, err := d.Alloc(len(src))
		if err == nil {
			err = d.Upload(b, src)
			if err != nil {
				d.Release(b)
			}
		}
		if err != nil {
			releaseAll(d, bufs...)
			return nil, errors.Wrapf(err, "gpu: upload operand %d", i)
		}
		bufs = append(bufs, b)
	}
	return bufs, nil
}
