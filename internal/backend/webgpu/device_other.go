//go:build !windows

package webgpu

import "github.com/born-ml/tensorexpr/internal/backend/gpu"

// New reports ErrUnsupported.
func New() (gpu.Device, error) { return nil, ErrUnsupported }

// IsAvailable reports false.
func IsAvailable() bool { return false }
