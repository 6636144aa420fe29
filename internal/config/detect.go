package config

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/cpu"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

// DetectVectorMode returns the widest vector tier the host supports.
func DetectVectorMode() tensor.VectorMode {
	switch {
	case cpu.X86.HasAVX512F:
		return tensor.VectorAVX512
	case cpu.X86.HasAVX:
		return tensor.VectorAVX
	case cpu.X86.HasSSE3, cpu.ARM64.HasASIMD:
		return tensor.VectorSSE3
	default:
		return tensor.VectorNone
	}
}

// DetectThreads returns the number of logical cores.
func DetectThreads() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// DetectCacheSize returns the size of the largest data cache, or
// DefaultCacheSize when the CPU does not report it.
func DetectCacheSize() int {
	switch {
	case cpuid.CPU.Cache.L3 > 0:
		return cpuid.CPU.Cache.L3
	case cpuid.CPU.Cache.L2 > 0:
		return cpuid.CPU.Cache.L2
	default:
		return DefaultCacheSize
	}
}

// CPUName returns the CPU brand string, or the architecture when unknown.
func CPUName() string {
	if cpuid.CPU.BrandName != "" {
		return cpuid.CPU.BrandName
	}
	return runtime.GOARCH
}
