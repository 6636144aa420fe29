package selector

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/logging"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// Usable reports whether impl can run req under the feature flags f. When it
// cannot, the second result says why.
//
// The caller folds device availability into f.GPU.
func Usable(impl Impl, req Request, f config.Features) (bool, string) {
	if !req.Family.Has(impl) {
		return false, fmt.Sprintf("no %s provider for %s", impl, req.Family)
	}
	dtype := req.DType()

	switch impl {
	case Std:
		return true, ""

	case Vec:
		switch {
		case !f.VectorizeImpl:
			return false, "vectorized implementations disabled"
		case f.Vector == tensor.VectorNone:
			return false, "no vector tier"
		case !dtype.IsFloat():
			return false, fmt.Sprintf("%s is not vectorizable", dtype)
		}
		for _, op := range req.Operands {
			if !op.Vectorizable {
				return false, "operand is not vectorizable"
			}
		}
		return true, ""

	case Blas:
		switch {
		case !f.BLAS:
			return false, "BLAS disabled"
		case !dtype.IsFloat():
			return false, fmt.Sprintf("no BLAS routine for %s", dtype)
		case !allDirect(req.Operands):
			return false, "operand without direct memory"
		case req.Family == Reduce && req.Reduction != Asum:
			return false, fmt.Sprintf("no BLAS routine for %s", req.Reduction)
		case isIm2col(req.Family) && req.Mode != Valid:
			return false, "im2col only handles valid convolution"
		case isIm2col(req.Family) && exceeds(req.Im2colWorkspace, f):
			return false, workspaceReason("im2col", req.Im2colWorkspace, f)
		}
		return true, ""

	case GPU:
		switch {
		case !f.GPU:
			return false, "no GPU device"
		case dtype != tensor.Float32:
			return false, fmt.Sprintf("GPU kernels only handle float32, got %s", dtype)
		case !allDirect(req.Operands):
			return false, "operand without direct memory"
		case isIm2col(req.Family) && req.Mode != Valid:
			return false, "im2col only handles valid convolution"
		case isIm2col(req.Family) && exceeds(req.Im2colWorkspace, f):
			return false, workspaceReason("im2col", req.Im2colWorkspace, f)
		}
		return true, ""

	case FFT:
		switch {
		case !f.ConvFFT:
			return false, "FFT convolution disabled"
		case !dtype.IsFloat():
			return false, fmt.Sprintf("no FFT for %s", dtype)
		case !req.unitStride():
			return false, "FFT convolution requires unit stride and no padding"
		case req.Family == ConvMulti && req.Mode != Valid:
			return false, "multi-kernel convolution is valid only"
		case exceeds(req.FFTWorkspace, f):
			return false, workspaceReason("FFT", req.FFTWorkspace, f)
		}
		return true, ""
	}

	return false, fmt.Sprintf("unknown implementation %d", int(impl))
}

func allDirect(ops []Operand) bool {
	for _, op := range ops {
		if !op.Direct {
			return false
		}
	}
	return true
}

func isIm2col(f Family) bool {
	return f == Conv4 || f == ConvMulti
}

// exceeds reports whether workspace is over the limit. A zero limit is no
// limit.
func exceeds(workspace int, f config.Features) bool {
	return f.MaxWorkspace > 0 && workspace > 0 && uint64(workspace) > f.MaxWorkspace
}

func workspaceReason(name string, workspace int, f config.Features) string {
	return fmt.Sprintf("%s workspace of %d bytes exceeds the %d bytes limit", name, workspace, f.MaxWorkspace)
}

// Default returns the implementation used when nothing is forced. The result
// is always usable for req.
func Default(req Request, f config.Features) Impl {
	usable := func(impl Impl) bool {
		ok, _ := Usable(impl, req, f)
		return ok
	}

	switch req.Family {
	case GEMM, GEMV, GEVM:
		gpuMin := f.GemmGPUMin
		if req.Family != GEMM {
			gpuMin = f.GemvGPUMin
		}
		size := req.M * req.N
		switch {
		case usable(GPU) && size >= gpuMin:
			return GPU
		case usable(Blas) && size >= f.GemmStdMax:
			return Blas
		case usable(Vec):
			return Vec
		}
		return Std

	case Outer, BatchOuter:
		if usable(Blas) && req.M*req.N >= f.GemmStdMax {
			return Blas
		}
		return Std

	case Conv1, Conv2:
		switch {
		case usable(FFT) && req.kernelSize() >= f.ConvFFTKernelMin:
			return FFT
		case usable(Vec):
			return Vec
		}
		return Std

	case ConvMulti:
		switch {
		case usable(GPU) && req.Elements >= f.Conv4GPUMin:
			return GPU
		case usable(FFT) && req.kernelSize() >= f.ConvFFTKernelMin:
			return FFT
		case usable(Blas) && f.Conv4PreferBLAS:
			return Blas
		case usable(Vec):
			return Vec
		case usable(Blas):
			return Blas
		}
		return Std

	case Conv4:
		switch {
		case usable(GPU) && req.Elements >= f.Conv4GPUMin:
			return GPU
		case usable(Blas) && f.Conv4PreferBLAS:
			return Blas
		case usable(Vec):
			return Vec
		case usable(Blas):
			return Blas
		}
		return Std

	case Reduce:
		switch {
		case usable(Blas) && req.N >= f.GemmStdMax:
			return Blas
		case usable(Vec):
			return Vec
		}
		return Std
	}

	return Std
}

// Select returns the implementation for req: the forced implementation of
// req.Family in ctx when it is usable, the default otherwise. An unusable
// forced implementation is logged as a warning.
func Select(ctx context.Context, req Request, f config.Features) Impl {
	forced, ok := Forced(ctx, req.Family)
	if !ok {
		impl := Default(req, f)
		logging.Logger().Debug("implementation selected",
			"family", req.Family, "impl", impl)
		return impl
	}

	if usable, reason := Usable(forced, req, f); !usable {
		impl := Default(req, f)
		logging.Logger().Warn("forced implementation not possible for this expression",
			"family", req.Family,
			"forced", forced,
			"reason", reason,
			"fallback", impl)
		return impl
	}

	logging.Logger().Debug("forced implementation selected",
		"family", req.Family, "impl", forced)
	return forced
}
