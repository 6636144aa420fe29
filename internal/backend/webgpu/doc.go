// Package webgpu implements gpu.Device on WebGPU through go-webgpu
// (github.com/go-webgpu/webgpu), which needs no cgo. Only Windows builds
// carry the device; elsewhere New reports ErrUnsupported.
package webgpu
