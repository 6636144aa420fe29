package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/tensorexpr/internal/logging"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Var returns an environment variable stripped of spaces and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a reader for a boolean variable.
func BoolWithDefault(key string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				logging.Logger().Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
				return defaultValue
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a reader for a boolean variable defaulting to false.
func Bool(key string) func() bool {
	withDefault := BoolWithDefault(key)
	return func() bool {
		return withDefault(false)
	}
}

// Uint returns a reader for an unsigned variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				logging.Logger().Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 returns a reader for a 64-bit unsigned variable with a default.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				logging.Logger().Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

var (
	// VectorizeExpr enables Load-group evaluation of element-wise expressions.
	VectorizeExpr = BoolWithDefault("TENSOREXPR_VECTORIZE_EXPR")
	// VectorizeImpl enables the VEC providers.
	VectorizeImpl = BoolWithDefault("TENSOREXPR_VECTORIZE_IMPL")
	// Parallel enables parallel dispatch.
	Parallel = BoolWithDefault("TENSOREXPR_PARALLEL")
	// BLAS enables the BLAS providers.
	BLAS = BoolWithDefault("TENSOREXPR_BLAS")
	// GPU enables the GPU providers.
	GPU = BoolWithDefault("TENSOREXPR_GPU")
	// ConvFFT enables the FFT convolution providers.
	ConvFFT = BoolWithDefault("TENSOREXPR_FFT")
	// Conv4PreferBLAS makes 4-D convolution prefer im2col BLAS.
	Conv4PreferBLAS = Bool("TENSOREXPR_CONV4_PREFER_BLAS")
	// StrictDiv keeps division by float scalars exact.
	StrictDiv = Bool("TENSOREXPR_STRICT_DIV")

	GemmStdMax        = Uint("TENSOREXPR_GEMM_STD_MAX", DefaultGemmStdMax)
	GemmGPUMin        = Uint("TENSOREXPR_GEMM_GPU_MIN", DefaultGemmGPUMin)
	GemvGPUMin        = Uint("TENSOREXPR_GEMV_GPU_MIN", DefaultGemvGPUMin)
	Conv4GPUMin       = Uint("TENSOREXPR_CONV4_GPU_MIN", DefaultConv4GPUMin)
	ConvFFTKernelMin  = Uint("TENSOREXPR_CONV_FFT_KERNEL_MIN", DefaultConvFFTKernelMin)
	ParallelThreshold = Uint("TENSOREXPR_PARALLEL_THRESHOLD", DefaultParallelThreshold)
	MaxWorkspace      = Uint64("TENSOREXPR_MAX_WORKSPACE", DefaultMaxWorkspace)
)

// Threads returns the worker count, TENSOREXPR_THREADS or the number of
// logical cores.
func Threads() uint {
	n := Uint("TENSOREXPR_THREADS", uint(DetectThreads()))()
	if n == 0 {
		return 1
	}
	return n
}

// Vector returns the vector tier, TENSOREXPR_VECTOR_MODE or the detected one.
func Vector() tensor.VectorMode {
	s := strings.ToLower(Var("TENSOREXPR_VECTOR_MODE"))
	if s == "" || s == "auto" {
		return DetectVectorMode()
	}
	mode, err := tensor.ParseVectorMode(s)
	if err != nil {
		detected := DetectVectorMode()
		logging.Logger().Warn("invalid environment variable, using default", "key", "TENSOREXPR_VECTOR_MODE", "value", s, "default", detected)
		return detected
	}
	return mode
}

// EnvVar describes one configuration variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable with its effective value.
func AsMap() map[string]EnvVar {
	f := Get()
	return map[string]EnvVar{
		"TENSOREXPR_VECTORIZE_EXPR":      {"TENSOREXPR_VECTORIZE_EXPR", f.VectorizeExpr, "Evaluate element-wise expressions in vector groups (default true)"},
		"TENSOREXPR_VECTORIZE_IMPL":      {"TENSOREXPR_VECTORIZE_IMPL", f.VectorizeImpl, "Allow vectorized kernels (default true)"},
		"TENSOREXPR_VECTOR_MODE":         {"TENSOREXPR_VECTOR_MODE", f.Vector, "Vector tier: auto, none, sse3, avx, avx512 (default auto)"},
		"TENSOREXPR_PARALLEL":            {"TENSOREXPR_PARALLEL", f.Parallel, "Allow parallel dispatch (default true)"},
		"TENSOREXPR_THREADS":             {"TENSOREXPR_THREADS", f.Threads, "Worker count (default: logical cores)"},
		"TENSOREXPR_BLAS":                {"TENSOREXPR_BLAS", f.BLAS, "Allow BLAS kernels (default true)"},
		"TENSOREXPR_GPU":                 {"TENSOREXPR_GPU", f.GPU, "Allow GPU kernels when a device is registered (default false)"},
		"TENSOREXPR_FFT":                 {"TENSOREXPR_FFT", f.ConvFFT, "Allow FFT convolution (default true)"},
		"TENSOREXPR_CONV4_PREFER_BLAS":   {"TENSOREXPR_CONV4_PREFER_BLAS", f.Conv4PreferBLAS, "Prefer im2col BLAS for 4D convolution"},
		"TENSOREXPR_STRICT_DIV":          {"TENSOREXPR_STRICT_DIV", f.StrictDiv, "Do not rewrite division by a float scalar into a multiplication"},
		"TENSOREXPR_GEMM_STD_MAX":        {"TENSOREXPR_GEMM_STD_MAX", f.GemmStdMax, "Output size below which products avoid vendor libraries"},
		"TENSOREXPR_GEMM_GPU_MIN":        {"TENSOREXPR_GEMM_GPU_MIN", f.GemmGPUMin, "Output size from which GEMM runs on the GPU"},
		"TENSOREXPR_GEMV_GPU_MIN":        {"TENSOREXPR_GEMV_GPU_MIN", f.GemvGPUMin, "Matrix size from which GEMV runs on the GPU"},
		"TENSOREXPR_CONV4_GPU_MIN":       {"TENSOREXPR_CONV4_GPU_MIN", f.Conv4GPUMin, "Output size from which 4D convolution runs on the GPU"},
		"TENSOREXPR_CONV_FFT_KERNEL_MIN": {"TENSOREXPR_CONV_FFT_KERNEL_MIN", f.ConvFFTKernelMin, "Kernel size from which convolution prefers FFT"},
		"TENSOREXPR_PARALLEL_THRESHOLD":  {"TENSOREXPR_PARALLEL_THRESHOLD", f.ParallelThreshold, "Elements from which assignment runs in parallel"},
		"TENSOREXPR_MAX_WORKSPACE":       {"TENSOREXPR_MAX_WORKSPACE", f.MaxWorkspace, "Maximum scratch memory per kernel in bytes"},
	}
}
