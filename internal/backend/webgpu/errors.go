package webgpu

import "github.com/pkg/errors"

// ErrUnsupported is returned by New on platforms without a WebGPU build.
var ErrUnsupported = errors.New("webgpu: not supported on this platform")
