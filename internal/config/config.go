// Package config holds the process-wide feature flags and tuning thresholds
// consumed by the implementation selector, the evaluator and the parallel
// dispatcher.
//
// Flags are read from TENSOREXPR_* environment variables once, on first use.
// They are read-only during evaluation; tools and tests replace the whole
// set with Set.
package config

import (
	"sync/atomic"

	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Features is one snapshot of the feature flags.
type Features struct {
	VectorizeExpr bool              // Evaluate element-wise expressions in Load groups.
	VectorizeImpl bool              // Allow the hand-unrolled VEC providers.
	Vector        tensor.VectorMode // Active vector tier.

	Parallel bool // Allow parallel dispatch.
	Threads  int  // Worker count for parallel dispatch.

	BLAS    bool // Allow the BLAS providers.
	GPU     bool // Allow the GPU providers (a device must also be registered).
	ConvFFT bool // Allow FFT convolution providers.

	Conv4PreferBLAS bool // Choose im2col BLAS over VEC for 4-D convolution.
	StrictDiv       bool // Keep division by a float scalar as a division.

	GemmStdMax        int // Below M*N, products skip vendor libraries.
	GemmGPUMin        int // From M*N, GEMM goes to the GPU.
	GemvGPUMin        int // From M*N, GEMV/GEVM go to the GPU.
	Conv4GPUMin       int // From output elements, 4-D convolution goes to the GPU.
	ConvFFTKernelMin  int // From kernel elements, convolutions prefer FFT.
	ParallelThreshold int // From this many elements, element-wise assignment is parallel.

	CacheSize    int    // Last-level data cache in bytes.
	MaxWorkspace uint64 // Upper bound for im2col and FFT scratch buffers in bytes, zero for none.
}

// Defaults for the tuning thresholds.
const (
	DefaultGemmStdMax        = 75 * 75
	DefaultGemmGPUMin        = 180 * 180
	DefaultGemvGPUMin        = 1000 * 1000
	DefaultConv4GPUMin       = 64 * 1024
	DefaultConvFFTKernelMin  = 8 * 8
	DefaultParallelThreshold = 64 * 1024
	DefaultCacheSize         = 3 * 1024 * 1024
	DefaultMaxWorkspace      = 2 * 1024 * 1024 * 1024
)

var current atomic.Pointer[Features]

// Load reads the feature flags from the environment and the host CPU.
func Load() Features {
	return Features{
		VectorizeExpr: VectorizeExpr(true),
		VectorizeImpl: VectorizeImpl(true),
		Vector:        Vector(),

		Parallel: Parallel(true),
		Threads:  int(Threads()),

		BLAS:    BLAS(true),
		GPU:     GPU(false),
		ConvFFT: ConvFFT(true),

		Conv4PreferBLAS: Conv4PreferBLAS(),
		StrictDiv:       StrictDiv(),

		GemmStdMax:        int(GemmStdMax()),
		GemmGPUMin:        int(GemmGPUMin()),
		GemvGPUMin:        int(GemvGPUMin()),
		Conv4GPUMin:       int(Conv4GPUMin()),
		ConvFFTKernelMin:  int(ConvFFTKernelMin()),
		ParallelThreshold: int(ParallelThreshold()),

		CacheSize:    DetectCacheSize(),
		MaxWorkspace: MaxWorkspace(),
	}
}

// Get returns the current feature flags, loading them on first use.
func Get() Features {
	if f := current.Load(); f != nil {
		return *f
	}
	f := Load()
	current.CompareAndSwap(nil, &f)
	return *current.Load()
}

// Set replaces the current feature flags and returns a function restoring
// the previous ones.
func Set(f Features) (restore func()) {
	prev := current.Swap(&f)
	return func() {
		current.Store(prev)
	}
}

// Update applies fn to a copy of the current flags and installs the result.
// It returns a function restoring the previous flags.
func Update(fn func(*Features)) (restore func()) {
	f := Get()
	fn(&f)
	return Set(f)
}
