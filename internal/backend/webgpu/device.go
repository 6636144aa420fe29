//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// buffer is a storage buffer. size is the usable byte count, a multiple
// of four.
type buffer struct {
	buf  *wgpu.Buffer
	size int
}

func (b *buffer) Size() int { return b.size }

// Device runs the GPU kernels on a WebGPU adapter.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     wgpu.AdapterInfo

	pool *gpu.Pool[*buffer]

	mu       sync.Mutex
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	closed   bool
}

var _ gpu.Device = (*Device)(nil)

// New opens the high-performance adapter. It fails when the native
// library or a compatible adapter is missing.
func New() (dev gpu.Device, err error) {
	// The bindings panic when wgpu_native cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request adapter")
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request device")
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: device has no queue")
	}

	d := &Device{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		info:     adapter.GetInfo(),
	}
	d.pool = gpu.NewPool(d.create, func(b *buffer) { b.buf.Release() }, (*buffer).Size)
	return d, nil
}

// IsAvailable reports whether an adapter can be opened.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Name implements gpu.Device.
func (d *Device) Name() string {
	if d.info.Name == "" {
		return "webgpu"
	}
	return fmt.Sprintf("webgpu (%s %s)", d.info.Name, d.info.VendorName)
}

func (d *Device) create(size int) *buffer {
	//nolint:gosec // G115: size is non-negative
	return &buffer{buf: d.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: uint64(size)}), size: size}
}

func (d *Device) buffer(b gpu.Buffer) (*buffer, error) {
	wb, ok := b.(*buffer)
	if !ok || wb == nil {
		return nil, errors.Errorf("webgpu: foreign buffer %T", b)
	}
	return wb, nil
}

// Alloc implements gpu.Device. Sizes are rounded up to four bytes.
func (d *Device) Alloc(size int) (gpu.Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("webgpu: invalid buffer size %d", size)
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errors.New("webgpu: device closed")
	}
	return d.pool.Acquire(max(align4(size), 4)), nil
}

// Upload implements gpu.Device through a mapped staging buffer.
func (d *Device) Upload(dst gpu.Buffer, src []byte) (err error) {
	wb, err := d.buffer(dst)
	if err != nil {
		return err
	}
	if len(src) > wb.size {
		return errors.Errorf("webgpu: upload of %d bytes into a %d byte buffer", len(src), wb.size)
	}
	if len(src) == 0 {
		return nil
	}
	defer recoverInto(&err, "upload")

	size := uint64(align4(len(src)))
	staging := d.mapped(src, size, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, wb.buf, 0, size)
	d.queue.Submit(encoder.Finish(nil))
	return nil
}

// Download implements gpu.Device. Storage buffers cannot be mapped, so the
// data goes through a staging buffer.
func (d *Device) Download(dst []byte, src gpu.Buffer) (err error) {
	wb, err := d.buffer(src)
	if err != nil {
		return err
	}
	if len(dst) > wb.size {
		return errors.Errorf("webgpu: download of %d bytes from a %d byte buffer", len(dst), wb.size)
	}
	if len(dst) == 0 {
		return nil
	}
	defer recoverInto(&err, "download")

	size := uint64(align4(len(dst)))
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(wb.buf, 0, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return errors.Wrap(err, "webgpu: map staging buffer")
	}
	//nolint:gosec // mapped range is valid until Unmap
	copy(dst, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()
	return nil
}

// Release implements gpu.Device.
func (d *Device) Release(b gpu.Buffer) {
	if wb, err := d.buffer(b); err == nil {
		d.pool.Release(wb)
	}
}

// MatMul implements gpu.Device.
func (d *Device) MatMul(a, b, c gpu.Buffer, m, k, n int) (err error) {
	bufs := make([]*buffer, 3)
	for i, x := range []gpu.Buffer{a, b, c} {
		if bufs[i], err = d.buffer(x); err != nil {
			return err
		}
	}
	if bufs[0].size < m*k*4 || bufs[1].size < k*n*4 || bufs[2].size < m*n*4 {
		return errors.Errorf("webgpu: matmul buffers too small for [%d,%d] @ [%d,%d]", m, k, k, n)
	}
	if m == 0 || n == 0 {
		return nil
	}
	defer recoverInto(&err, "matmul")

	pipeline := d.matmulPipeline()

	params := make([]byte, 16)
	//nolint:gosec // G115: dimensions are non-negative
	for i, v := range []uint32{uint32(m), uint32(k), uint32(n)} {
		binary.LittleEndian.PutUint32(params[i*4:], v)
	}
	uniform := d.mapped(params, 16, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer uniform.Release()

	group := d.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufs[0].buf, 0, uint64(bufs[0].size)),
		wgpu.BufferBindingEntry(1, bufs[1].buf, 0, uint64(bufs[1].size)),
		wgpu.BufferBindingEntry(2, bufs[2].buf, 0, uint64(bufs[2].size)),
		wgpu.BufferBindingEntry(3, uniform, 0, 16),
	})
	defer group.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	//nolint:gosec // G115: workgroup counts are non-negative
	pass.DispatchWorkgroups(uint32((n+tile-1)/tile), uint32((m+tile-1)/tile), 1)
	pass.End()
	d.queue.Submit(encoder.Finish(nil))
	return nil
}

// matmulPipeline compiles the kernel on first use.
func (d *Device) matmulPipeline() *wgpu.ComputePipeline {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		d.shader = d.device.CreateShaderModuleWGSL(matmulShader)
		d.pipeline = d.device.CreateComputePipelineSimple(nil, d.shader, "main")
	}
	return d.pipeline
}

// mapped creates a buffer of size bytes holding data.
func (d *Device) mapped(data []byte, size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // mapped range is valid until Unmap
	copy(unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size), data)
	buf.Unmap()
	return buf
}

// Stats returns the buffer pool counters.
func (d *Device) Stats() gpu.PoolStats { return d.pool.Stats() }

// Close implements gpu.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.pool.Clear()
	if d.pipeline != nil {
		d.pipeline.Release()
		d.shader.Release()
	}
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
	return nil
}

func align4(n int) int { return (n + 3) &^ 3 }

// recoverInto turns a panic from the bindings into an error.
func recoverInto(err *error, op string) {
	if r := recover(); r != nil {
		*err = errors.Errorf("webgpu: %s: %v", op, r)
	}
}
