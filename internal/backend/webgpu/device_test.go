//go:build windows

package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
)

func openDevice(t *testing.T) gpu.Device {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	d, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })
	return d
}

func TestMatMul(t *testing.T) {
	d := openDevice(t)
	c := make([]float32, 4)
	require.NoError(t, gpu.Gemm(d, []float32{1, 2, 3, 4, 5, 6}, []float32{7, 8, 9, 10, 11, 12}, c, 2, 3, 2))
	assert.Equal(t, []float32{58, 64, 139, 154}, c)
}

func TestBufferReuse(t *testing.T) {
	d := openDevice(t)
	b, err := d.Alloc(10)
	require.NoError(t, err)
	assert.Equal(t, 12, b.Size())
	d.Release(b)

	again, err := d.Alloc(8)
	require.NoError(t, err)
	assert.Same(t, b, again)
	assert.Equal(t, uint64(1), d.(*Device).Stats().Hits)
}

func TestForeignBuffer(t *testing.T) {
	d := openDevice(t)
	emu := gpu.NewEmulator()
	defer emu.Close()

	foreign, err := emu.Alloc(4)
	require.NoError(t, err)
	assert.Error(t, d.Upload(foreign, make([]byte, 4)))
}
