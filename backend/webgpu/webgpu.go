// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu installs a WebGPU adapter as the compute device used by
// GPU implementations of products and convolutions.
//
// Devices are available on Windows builds only. Elsewhere New and Register
// fail and selection keeps using the CPU providers.
//
// Example:
//
//	if webgpu.IsAvailable() {
//	    closeDevice, err := webgpu.Register()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer closeDevice()
//	    tensor.UpdateFeatures(func(f *tensor.Features) { f.GPU = true })
//	}
package webgpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	internalwebgpu "github.com/born-ml/tensorexpr/internal/backend/webgpu"
	"github.com/born-ml/tensorexpr/internal/logging"
)

// Device is a compute device.
type Device = gpu.Device

// ErrUnsupported is returned on platforms without a WebGPU build.
var ErrUnsupported = internalwebgpu.ErrUnsupported

// New opens the WebGPU adapter. Close the device when done.
func New() (Device, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a compatible adapter and driver are present.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// Register opens the adapter and installs it as the process device. The
// returned function restores the previous device and closes this one.
func Register() (closeDevice func() error, err error) {
	d, err := New()
	if err != nil {
		return nil, err
	}
	prev := gpu.Register(d)
	logging.Logger().Info("compute device registered", "device", d.Name())

	return func() error {
		gpu.Register(prev)
		return errors.Wrap(d.Close(), "webgpu: close")
	}, nil
}
