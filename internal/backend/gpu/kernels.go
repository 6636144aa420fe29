package gpu

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/born-ml/tensorexpr/internal/backend/std"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// MatMulResident computes c = a * b with a m x k and b k x n, leaving the
// result on the device: c's device copy becomes current and its host copy
// stale. Operands are uploaded from hostA and hostB when their device copy
// is stale; c is allocated for m*n float32 values.
func MatMulResident(a, b, c *Mirror, hostA, hostB []byte, m, k, n int) error {
	if err := a.EnsureGPUUpToDate(hostA); err != nil {
		return errors.Wrap(err, "gpu: lhs")
	}
	if err := b.EnsureGPUUpToDate(hostB); err != nil {
		return errors.Wrap(err, "gpu: rhs")
	}
	if err := c.EnsureGPUAllocated(m * n * 4); err != nil {
		return errors.Wrap(err, "gpu: result")
	}

	dev := c.Device()
	if a.Device() != dev || b.Device() != dev {
		return errors.New("gpu: operands live on different devices")
	}
	if err := dev.MatMul(a.Buffer(), b.Buffer(), c.Buffer(), m, k, n); err != nil {
		return errors.Wrapf(err, "gpu: matmul [%d,%d] @ [%d,%d] on %s", m, k, k, n, dev.Name())
	}

	c.ValidateGPU()
	c.InvalidateCPU()
	return nil
}

// Gemm computes c = a * b for host matrices through dev.
func Gemm(dev Device, a, b, c []float32, m, k, n int) error {
	if dev == nil {
		return ErrNoDevice
	}
	if len(a) != m*k || len(b) != k*n || len(c) != m*n {
		return errors.Errorf("gpu: gemm operands do not match [%d,%d] @ [%d,%d]", m, k, k, n)
	}

	bufs, err := upload(dev, tensor.Bytes(a), tensor.Bytes(b))
	if err != nil {
		return err
	}
	defer releaseAll(dev, bufs...)

	out, err := dev.Alloc(len(c) * 4)
	if err != nil {
		return errors.Wrap(err, "gpu: allocate result")
	}
	defer dev.Release(out)

	if err := dev.MatMul(bufs[0], bufs[1], out, m, k, n); err != nil {
		return errors.Wrapf(err, "gpu: matmul on %s", dev.Name())
	}
	return errors.Wrap(dev.Download(tensor.Bytes(c), out), "gpu: download result")
}

// Conv4Valid computes the batched valid convolution with im2col, one device
// matmul per batch item. Every batch item is attempted; the errors of the
// failing ones are combined.
func Conv4Valid(dev Device, in, kernel []float32, p tensor.Conv4, out []float32, flipped bool) error {
	if dev == nil {
		return ErrNoDevice
	}
	oh, ow := p.OutDims()
	if len(in) != p.N*p.C*p.H*p.W || len(kernel) != p.K*p.C*p.KH*p.KW || len(out) != p.N*p.K*oh*ow {
		return errors.Errorf("gpu: conv4_valid operands do not match %+v", p)
	}
	if !flipped {
		kernel = std.RotateKernels(kernel, p.KH, p.KW)
	}

	width, positions := p.ColWidth(), oh*ow

	bufs, err := upload(dev, tensor.Bytes(kernel))
	if err != nil {
		return err
	}
	weights := bufs[0]
	defer dev.Release(weights)

	cols, err := dev.Alloc(width * positions * 4)
	if err != nil {
		return errors.Wrap(err, "gpu: allocate columns")
	}
	defer dev.Release(cols)

	res, err := dev.Alloc(p.K * positions * 4)
	if err != nil {
		return errors.Wrap(err, "gpu: allocate result")
	}
	defer dev.Release(res)

	col := make([]float32, positions*width)
	colT := make([]float32, width*positions)

	var errs error
	for n := range p.N {
		std.Im2col(col, in, p, n)
		for r := range positions {
			for c := range width {
				colT[c*positions+r] = col[r*width+c]
			}
		}

		err := dev.Upload(cols, tensor.Bytes(colT))
		if err == nil {
			err = dev.MatMul(weights, cols, res, p.K, width, positions)
		}
		if err == nil {
			err = dev.Download(tensor.Bytes(out[n*p.K*positions:(n+1)*p.K*positions]), res)
		}
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "gpu: conv4_valid batch %d", n))
		}
	}
	return errs
}

// Conv2ValidMulti convolves in with nk kernels stored back to back as
// nk x KH x KW, through Conv4Valid.
func Conv2ValidMulti(dev Device, in tensor.Mat[float32], kernels []float32, nk, kh, kw int, out []float32, s, p [2]int, flipped bool) error {
	params := tensor.Conv4{
		N: 1, C: 1, H: in.Rows, W: in.Cols,
		K: nk, KH: kh, KW: kw,
		S1: s[0], S2: s[1], P1: p[0], P2: p[1],
	}
	return Conv4Valid(dev, in.Materialize().Data, kernels, params, out, flipped)
}
