package gpu

import (
	"sync"

	"github.com/pkg/errors"
)

// Mirror tracks a device copy of some host memory. Either copy may be the
// current one; the host copy is current for a fresh mirror.
//
// The host memory is passed to every call that transfers data, so a mirror
// never holds on to it.
type Mirror struct {
	mu       sync.Mutex
	dev      Device
	buf      Buffer
	cpuValid bool
	gpuValid bool
}

// NewMirror returns a mirror whose host copy is current.
func NewMirror() *Mirror {
	return &Mirror{cpuValid: true}
}

// CPUUpToDate reports whether the host copy is current.
func (m *Mirror) CPUUpToDate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cpuValid
}

// GPUUpToDate reports whether the device copy is current.
func (m *Mirror) GPUUpToDate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gpuValid
}

// Allocated reports whether the mirror holds device memory.
func (m *Mirror) Allocated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf != nil
}

// Buffer returns the device buffer, or nil.
func (m *Mirror) Buffer() Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf
}

// Device returns the device owning the buffer, or nil.
func (m *Mirror) Device() Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev
}

// InvalidateCPU marks the host copy stale. The device copy must be current.
func (m *Mirror) InvalidateCPU() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gpuValid {
		panic("mirror: invalidating the only current copy")
	}
	m.cpuValid = false
}

// InvalidateGPU marks the device copy stale. The host copy must be current.
func (m *Mirror) InvalidateGPU() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cpuValid {
		panic("mirror: invalidating the only current copy")
	}
	m.gpuValid = false
}

// ValidateCPU marks the host copy current, after the host memory has been
// written.
func (m *Mirror) ValidateCPU() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpuValid = true
}

// ValidateGPU marks the device copy current, after a kernel has written it.
func (m *Mirror) ValidateGPU() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf == nil {
		panic("mirror: validating an unallocated device copy")
	}
	m.gpuValid = true
}

// EnsureGPUAllocated allocates size bytes on the registered device unless
// the mirror already holds a buffer.
func (m *Mirror) EnsureGPUAllocated(size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocLocked(size)
}

func (m *Mirror) allocLocked(size int) error {
	if m.buf != nil {
		return nil
	}
	dev := Default()
	if dev == nil {
		return ErrNoDevice
	}
	buf, err := dev.Alloc(size)
	if err != nil {
		return errors.Wrapf(err, "gpu: allocate %d bytes on %s", size, dev.Name())
	}
	m.dev, m.buf = dev, buf
	return nil
}

// EnsureGPUUpToDate uploads host unless the device copy is current.
func (m *Mirror) EnsureGPUUpToDate(host []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.allocLocked(len(host)); err != nil {
		return err
	}
	if m.gpuValid {
		return nil
	}
	if !m.cpuValid {
		panic("mirror: no current copy")
	}
	if err := m.dev.Upload(m.buf, host); err != nil {
		return errors.Wrap(err, "gpu: upload")
	}
	m.gpuValid = true
	return nil
}

// EnsureCPUUpToDate downloads into host unless the host copy is current.
func (m *Mirror) EnsureCPUUpToDate(host []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloadLocked(host)
}

func (m *Mirror) downloadLocked(host []byte) error {
	if m.cpuValid {
		return nil
	}
	if err := m.dev.Download(host, m.buf); err != nil {
		return errors.Wrap(err, "gpu: download")
	}
	m.cpuValid = true
	return nil
}

// Evict releases the device buffer, downloading it first when the host copy
// is stale. On a download error the buffer is kept.
func (m *Mirror) Evict(host []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.buf == nil {
		return nil
	}
	if err := m.downloadLocked(host); err != nil {
		return err
	}
	m.dev.Release(m.buf)
	m.dev, m.buf = nil, nil
	m.gpuValid = false
	return nil
}

// Drop releases the device buffer without downloading it and marks the
// host copy current. It is used when the host memory is replaced.
func (m *Mirror) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.buf != nil {
		m.dev.Release(m.buf)
	}
	m.dev, m.buf = nil, nil
	m.gpuValid = false
	m.cpuValid = true
}

// String describes the mirror state.
func (m *Mirror) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.buf == nil:
		return "cpu"
	case m.cpuValid && m.gpuValid:
		return "cpu+gpu"
	case m.gpuValid:
		return "gpu"
	default:
		return "cpu (gpu stale)"
	}
}
