package expr

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/internal/backend/blas"
	"github.com/born-ml/tensorexpr/internal/backend/fft"
	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/backend/std"
	"github.com/born-ml/tensorexpr/internal/backend/vec"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

// ConvOption configures a convolution or pooling builder.
type ConvOption func(*convOptions)

type convOptions struct {
	flipped bool
	stride  [2]int
	padding [2]int
	strided bool
}

// Flipped makes the convolution use the kernel as stored, that is compute
// the cross-correlation.
func Flipped() ConvOption {
	return func(o *convOptions) { o.flipped = true }
}

// Stride sets the per-axis stride of a valid 2-D convolution or a pooling.
func Stride(s1, s2 int) ConvOption {
	return func(o *convOptions) {
		o.stride = [2]int{s1, s2}
		o.strided = true
	}
}

// Padding sets the per-axis zero padding of a valid 2-D convolution or a
// pooling.
func Padding(p1, p2 int) ConvOption {
	return func(o *convOptions) { o.padding = [2]int{p1, p2} }
}

func convOptionsOf(name string, opts []ConvOption) convOptions {
	o := convOptions{stride: [2]int{1, 1}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.stride[0] < 1 || o.stride[1] < 1 {
		panic(fmt.Sprintf("%s: invalid stride %v", name, o.stride))
	}
	if o.padding[0] < 0 || o.padding[1] < 0 {
		panic(fmt.Sprintf("%s: invalid padding %v", name, o.padding))
	}
	return o
}

func (o convOptions) plain() bool {
	return o.stride == [2]int{1, 1} && o.padding == [2]int{}
}

// conv computes every convolution family. Conv2 applies to the last two
// dimensions and pairs the leading planes of input and kernel.
type conv[T tensor.Numeric] struct {
	family     selector.Family
	mode       selector.ConvMode
	in, kernel Expr[T]
	opts       convOptions
	shape      tensor.Shape
	planes     int
	params     tensor.Conv4
}

func convName(family selector.Family, mode selector.ConvMode) string {
	return fmt.Sprintf("%s_%s", family, mode)
}

func newConv1[T tensor.Numeric](in, kernel Expr[T], mode selector.ConvMode, opts []ConvOption) *conv[T] {
	name := convName(selector.Conv1, mode)
	o := convOptionsOf(name, opts)
	if !o.plain() {
		panic(fmt.Sprintf("%s: stride and padding are not supported", name))
	}
	if in.Dims() != 1 || kernel.Dims() != 1 {
		panic(fmt.Sprintf("%s: expected 1-D input and kernel, got %d-D and %d-D", name, in.Dims(), kernel.Dims()))
	}
	n, k := in.Dim(0), kernel.Dim(0)
	if k > n {
		panic(fmt.Sprintf("%s: kernel %d larger than input %d", name, k, n))
	}
	c := &conv[T]{family: selector.Conv1, mode: mode, in: materialized(in), kernel: materialized(kernel), opts: o, planes: 1}
	switch mode {
	case selector.Valid:
		c.shape = tensor.Shape{n - k + 1}
	case selector.Same:
		c.shape = tensor.Shape{n}
	case selector.Full:
		c.shape = tensor.Shape{n + k - 1}
	}
	return c
}

func newConv2[T tensor.Numeric](in, kernel Expr[T], mode selector.ConvMode, opts []ConvOption) *conv[T] {
	name := convName(selector.Conv2, mode)
	o := convOptionsOf(name, opts)
	if mode != selector.Valid && !o.plain() {
		panic(fmt.Sprintf("%s: stride and padding are only supported in valid mode", name))
	}
	d := in.Dims()
	if d < 2 || kernel.Dims() != d {
		panic(fmt.Sprintf("%s: expected input and kernel of the same rank >= 2, got %d-D and %d-D", name, d, kernel.Dims()))
	}
	planes := 1
	for i := range d - 2 {
		if in.Dim(i) != kernel.Dim(i) {
			panic(fmt.Sprintf("%s: leading dimensions differ %v vs %v", name, in.Shape(), kernel.Shape()))
		}
		planes *= in.Dim(i)
	}
	h, w := in.Dim(d-2), in.Dim(d-1)
	kh, kw := kernel.Dim(d-2), kernel.Dim(d-1)
	if kh > h || kw > w {
		panic(fmt.Sprintf("%s: kernel [%d,%d] larger than input [%d,%d]", name, kh, kw, h, w))
	}

	var oh, ow int
	switch mode {
	case selector.Valid:
		oh = (h-kh+2*o.padding[0])/o.stride[0] + 1
		ow = (w-kw+2*o.padding[1])/o.stride[1] + 1
	case selector.Same:
		oh, ow = h, w
	case selector.Full:
		oh, ow = h+kh-1, w+kw-1
	}
	shape := in.Shape().Clone()
	shape[d-2], shape[d-1] = oh, ow

	return &conv[T]{
		family: selector.Conv2, mode: mode,
		in: materialized(in), kernel: materialized(kernel),
		opts: o, shape: shape, planes: planes,
	}
}

func newConvMulti[T tensor.Numeric](in, kernels Expr[T], opts []ConvOption) *conv[T] {
	name := convName(selector.ConvMulti, selector.Valid)
	o := convOptionsOf(name, opts)
	if in.Dims() != 2 || kernels.Dims() != 3 {
		panic(fmt.Sprintf("%s: expected a 2-D input and 3-D kernels, got %d-D and %d-D", name, in.Dims(), kernels.Dims()))
	}
	p := tensor.Conv4{
		N: 1, C: 1, H: in.Dim(0), W: in.Dim(1),
		K: kernels.Dim(0), KH: kernels.Dim(1), KW: kernels.Dim(2),
		S1: o.stride[0], S2: o.stride[1], P1: o.padding[0], P2: o.padding[1],
	}
	if p.KH > p.H || p.KW > p.W {
		panic(fmt.Sprintf("%s: kernel [%d,%d] larger than input [%d,%d]", name, p.KH, p.KW, p.H, p.W))
	}
	oh, ow := p.OutDims()
	return &conv[T]{
		family: selector.ConvMulti, mode: selector.Valid,
		in: materialized(in), kernel: materialized(kernels),
		opts: o, shape: tensor.Shape{p.K, oh, ow}, planes: 1, params: p,
	}
}

func newConv4[T tensor.Numeric](in, kernel Expr[T], mode selector.ConvMode, opts []ConvOption) *conv[T] {
	name := convName(selector.Conv4, mode)
	o := convOptionsOf(name, opts)
	if in.Dims() != 4 || kernel.Dims() != 4 {
		panic(fmt.Sprintf("%s: expected 4-D input and kernel, got %d-D and %d-D", name, in.Dims(), kernel.Dims()))
	}
	c := &conv[T]{family: selector.Conv4, mode: mode, in: materialized(in), kernel: materialized(kernel), opts: o, planes: 1}

	switch mode {
	case selector.Valid:
		if in.Dim(1) != kernel.Dim(1) {
			panic(fmt.Sprintf("%s: channels do not match %v vs %v", name, in.Shape(), kernel.Shape()))
		}
		c.params = tensor.Conv4{
			N: in.Dim(0), C: in.Dim(1), H: in.Dim(2), W: in.Dim(3),
			K: kernel.Dim(0), KH: kernel.Dim(2), KW: kernel.Dim(3),
			S1: o.stride[0], S2: o.stride[1], P1: o.padding[0], P2: o.padding[1],
		}
		oh, ow := c.params.OutDims()
		c.shape = tensor.Shape{c.params.N, c.params.K, oh, ow}
	case selector.Full:
		if !o.plain() {
			panic(fmt.Sprintf("%s: stride and padding are not supported", name))
		}
		if in.Dim(1) != kernel.Dim(0) {
			panic(fmt.Sprintf("%s: kernel count does not match input channels %v vs %v", name, in.Shape(), kernel.Shape()))
		}
		c.params = tensor.Conv4{
			N: in.Dim(0), K: in.Dim(1), H: in.Dim(2), W: in.Dim(3),
			C: kernel.Dim(1), KH: kernel.Dim(2), KW: kernel.Dim(3),
		}
		p := c.params
		c.shape = tensor.Shape{p.N, p.C, p.H + p.KH - 1, p.W + p.KW - 1}
	default:
		panic(fmt.Sprintf("%s: unsupported mode", name))
	}
	return c
}

func (c *conv[T]) Name() string        { return convName(c.family, c.mode) }
func (c *conv[T]) Shape() tensor.Shape { return c.shape }
func (c *conv[T]) Order() tensor.Order { return c.in.Traits().Order }
func (c *conv[T]) Operands() []Expr[T] { return []Expr[T]{c.in, c.kernel} }

func (c *conv[T]) Resident(selector.Impl) bool { return false }

// spatial returns the last two extents of s, or its only one.
func spatial(s tensor.Shape) []int {
	if len(s) <= 2 {
		return []int(s.Clone())
	}
	return []int{s[len(s)-2], s[len(s)-1]}
}

func (c *conv[T]) Request() selector.Request {
	return selector.Request{
		Family:          c.family,
		Operands:        []selector.Operand{operandOf(c.in), operandOf(c.kernel)},
		Input:           spatial(c.in.Shape()),
		Kernel:          spatial(c.kernel.Shape()),
		Elements:        c.shape.NumElements(),
		Stride:          c.opts.stride,
		Padding:         c.opts.padding,
		Mode:            c.mode,
		Im2colWorkspace: c.im2colBytes(),
		FFTWorkspace:    c.fftBytes(),
	}
}

// im2colBytes is the size of the column matrix of one image.
func (c *conv[T]) im2colBytes() int {
	if c.family != selector.Conv4 && c.family != selector.ConvMulti || c.mode != selector.Valid {
		return 0
	}
	oh, ow := c.params.OutDims()
	return oh * ow * c.params.ColWidth() * tensor.TypeOf[T]().Size()
}

// fftBytes is the size of the complex buffers of the frequency-domain
// convolution: the input transform plus one per kernel.
func (c *conv[T]) fftBytes() int {
	const complexSize = 16
	in, k := spatial(c.in.Shape()), spatial(c.kernel.Shape())
	switch c.family {
	case selector.Conv1:
		return 2 * (in[0] + k[0] - 1) * complexSize
	case selector.Conv2:
		return 2 * (in[0] + k[0] - 1) * (in[1] + k[1] - 1) * complexSize
	case selector.ConvMulti:
		p := c.params
		return (p.K + 1) * (p.H + p.KH - 1) * (p.W + p.KW - 1) * complexSize
	}
	return 0
}

func (c *conv[T]) Apply(ctx context.Context, impl selector.Impl, out *Dense[T]) error {
	in, kernel := rowMajor(c.in), rowMajor(c.kernel)
	var err error
	fillRowMajor(out, func(dst []T) {
		switch c.family {
		case selector.Conv1:
			c.conv1(impl, in, kernel, dst)
		case selector.Conv2:
			c.conv2(ctx, impl, in, kernel, dst)
		case selector.ConvMulti:
			err = c.multi(ctx, impl, in, kernel, dst)
		case selector.Conv4:
			err = c.conv4(ctx, impl, in, kernel, dst)
		}
	})
	return err
}

func (c *conv[T]) conv1(impl selector.Impl, in, kernel, out []T) {
	flipped := c.opts.flipped
	switch c.mode {
	case selector.Valid:
		switch impl {
		case selector.Std:
			std.Conv1Valid(in, kernel, out, flipped)
		case selector.Vec:
			vec.Conv1Valid(in, kernel, out, flipped)
		case selector.FFT:
			fft.Conv1Valid(in, kernel, out, flipped)
		default:
			panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
		}
	case selector.Same:
		switch impl {
		case selector.Std:
			std.Conv1Same(in, kernel, out, flipped)
		case selector.Vec:
			vec.Conv1Same(in, kernel, out, flipped)
		case selector.FFT:
			fft.Conv1Same(in, kernel, out, flipped)
		default:
			panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
		}
	case selector.Full:
		switch impl {
		case selector.Std:
			std.Conv1Full(in, kernel, out, flipped)
		case selector.Vec:
			vec.Conv1Full(in, kernel, out, flipped)
		case selector.FFT:
			fft.Conv1Full(in, kernel, out, flipped)
		default:
			panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
		}
	}
}

func (c *conv[T]) conv2(ctx context.Context, impl selector.Impl, in, kernel, out []T) {
	d := c.in.Dims()
	h, w := c.in.Dim(d-2), c.in.Dim(d-1)
	kh, kw := c.kernel.Dim(d-2), c.kernel.Dim(d-1)
	oh, ow := c.shape[d-2], c.shape[d-1]
	s, p, flipped := c.opts.stride, c.opts.padding, c.opts.flipped

	for plane := range c.planes {
		im := tensor.Mat[T]{Data: in[plane*h*w : (plane+1)*h*w], Rows: h, Cols: w}
		km := tensor.Mat[T]{Data: kernel[plane*kh*kw : (plane+1)*kh*kw], Rows: kh, Cols: kw}
		dst := out[plane*oh*ow : (plane+1)*oh*ow]

		switch c.mode {
		case selector.Valid:
			switch impl {
			case selector.Std:
				std.Conv2Valid(ctx, im, km, dst, s, p, flipped)
			case selector.Vec:
				vec.Conv2Valid(ctx, im, km, dst, s, p, flipped)
			case selector.FFT:
				fft.Conv2Valid(ctx, im, km, dst, flipped)
			default:
				panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
			}
		case selector.Same:
			switch impl {
			case selector.Std:
				std.Conv2Same(ctx, im, km, dst, flipped)
			case selector.Vec:
				vec.Conv2Same(ctx, im, km, dst, flipped)
			case selector.FFT:
				fft.Conv2Same(ctx, im, km, dst, flipped)
			default:
				panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
			}
		case selector.Full:
			switch impl {
			case selector.Std:
				std.Conv2Full(ctx, im, km, dst, flipped)
			case selector.Vec:
				vec.Conv2Full(ctx, im, km, dst, flipped)
			case selector.FFT:
				fft.Conv2Full(ctx, im, km, dst, flipped)
			default:
				panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
			}
		}
	}
}

func (c *conv[T]) multi(ctx context.Context, impl selector.Impl, in, kernels, out []T) error {
	p := c.params
	im := tensor.Mat[T]{Data: in, Rows: p.H, Cols: p.W}
	s, pad, flipped := c.opts.stride, c.opts.padding, c.opts.flipped

	switch impl {
	case selector.Std:
		std.Conv2ValidMulti(ctx, im, kernels, p.K, p.KH, p.KW, out, s, pad, flipped)
	case selector.Vec:
		vec.Conv2ValidMulti(ctx, im, kernels, p.K, p.KH, p.KW, out, s, pad, flipped)
	case selector.Blas:
		blas.Conv2ValidMulti(ctx, im, kernels, p.K, p.KH, p.KW, out, s, pad, flipped)
	case selector.FFT:
		fft.Conv2ValidMulti(ctx, im, kernels, p.K, p.KH, p.KW, out, flipped)
	case selector.GPU:
		fm := tensor.Mat[float32]{Data: tensor.AsFloat32(in), Rows: p.H, Cols: p.W}
		return gpu.Conv2ValidMulti(gpu.Default(), fm, tensor.AsFloat32(kernels), p.K, p.KH, p.KW,
			tensor.AsFloat32(out), s, pad, flipped)
	default:
		panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
	}
	return nil
}

func (c *conv[T]) conv4(ctx context.Context, impl selector.Impl, in, kernel, out []T) error {
	p, flipped := c.params, c.opts.flipped
	if c.mode == selector.Full {
		switch impl {
		case selector.Std:
			std.Conv4Full(ctx, in, kernel, p, out, flipped)
		case selector.Vec:
			vec.Conv4Full(ctx, in, kernel, p, out, flipped)
		default:
			panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
		}
		return nil
	}

	switch impl {
	case selector.Std:
		std.Conv4Valid(ctx, in, kernel, p, out, flipped)
	case selector.Vec:
		vec.Conv4Valid(ctx, in, kernel, p, out, flipped)
	case selector.Blas:
		blas.Conv4Valid(ctx, in, kernel, p, out, flipped)
	case selector.GPU:
		return gpu.Conv4Valid(gpu.Default(), tensor.AsFloat32(in), tensor.AsFloat32(kernel), p,
			tensor.AsFloat32(out), flipped)
	default:
		panic(fmt.Sprintf("unreachable: %s implementation %s", c.Name(), impl))
	}
	return nil
}

// pool computes 2-D max or average pooling over the last two dimensions.
type pool[T tensor.Numeric] struct {
	average bool
	in      Expr[T]
	params  tensor.Pool
	opts    convOptions
	shape   tensor.Shape
}

func newPool[T tensor.Numeric](in Expr[T], average bool, c1, c2 int, opts []ConvOption) *pool[T] {
	name := "max_pool2"
	if average {
		name = "avg_pool2"
	}
	o := convOptionsOf(name, opts)
	if !o.strided {
		o.stride = [2]int{c1, c2}
	}
	d := in.Dims()
	if d < 2 {
		panic(fmt.Sprintf("%s: expected at least 2 dimensions, got %d", name, d))
	}
	if c1 < 1 || c2 < 1 {
		panic(fmt.Sprintf("%s: invalid window [%d,%d]", name, c1, c2))
	}
	p := tensor.Pool{
		Planes: in.Size() / (in.Dim(d-2) * in.Dim(d-1)),
		H:      in.Dim(d-2), W: in.Dim(d-1),
		C1: c1, C2: c2,
		S1: o.stride[0], S2: o.stride[1],
		P1: o.padding[0], P2: o.padding[1],
	}
	if c1 > p.H+2*p.P1 || c2 > p.W+2*p.P2 {
		panic(fmt.Sprintf("%s: window [%d,%d] larger than input [%d,%d]", name, c1, c2, p.H, p.W))
	}
	oh, ow := p.OutDims()
	shape := in.Shape().Clone()
	shape[d-2], shape[d-1] = oh, ow
	return &pool[T]{average: average, in: materialized(in), params: p, opts: o, shape: shape}
}

func (k *pool[T]) Name() string {
	if k.average {
		return "avg_pool2"
	}
	return "max_pool2"
}

func (k *pool[T]) Shape() tensor.Shape         { return k.shape }
func (k *pool[T]) Order() tensor.Order         { return k.in.Traits().Order }
func (k *pool[T]) Operands() []Expr[T]         { return []Expr[T]{k.in} }
func (k *pool[T]) Resident(selector.Impl) bool { return false }

func (k *pool[T]) Request() selector.Request {
	return selector.Request{
		Family:   selector.Pool,
		Operands: []selector.Operand{operandOf(k.in)},
		Input:    []int{k.params.H, k.params.W},
		Kernel:   []int{k.params.C1, k.params.C2},
		Elements: k.shape.NumElements(),
		Stride:   k.opts.stride,
		Padding:  k.opts.padding,
	}
}

func (k *pool[T]) Apply(ctx context.Context, impl selector.Impl, out *Dense[T]) error {
	if impl != selector.Std {
		panic(fmt.Sprintf("unreachable: %s implementation %s", k.Name(), impl))
	}
	in := rowMajor(k.in)
	fillRowMajor(out, func(dst []T) {
		if k.average {
			std.AvgPool2D(ctx, in, k.params, dst)
		} else {
			std.MaxPool2D(ctx, in, k.params, dst)
		}
	})
	return nil
}

// upsample repeats every element of the last two dimensions into a
// c1 x c2 block.
type upsample[T tensor.Numeric] struct {
	in     Expr[T]
	params tensor.Pool
	shape  tensor.Shape
}

func newUpsample[T tensor.Numeric](in Expr[T], c1, c2 int) *upsample[T] {
	d := in.Dims()
	if d < 2 {
		panic(fmt.Sprintf("upsample2: expected at least 2 dimensions, got %d", d))
	}
	if c1 < 1 || c2 < 1 {
		panic(fmt.Sprintf("upsample2: invalid factors [%d,%d]", c1, c2))
	}
	p := tensor.Pool{
		Planes: in.Size() / (in.Dim(d-2) * in.Dim(d-1)),
		H:      in.Dim(d-2), W: in.Dim(d-1),
		C1: c1, C2: c2,
		S1: c1, S2: c2,
	}
	shape := in.Shape().Clone()
	shape[d-2], shape[d-1] = p.H*c1, p.W*c2
	return &upsample[T]{in: materialized(in), params: p, shape: shape}
}

func (k *upsample[T]) Name() string                { return "upsample2" }
func (k *upsample[T]) Shape() tensor.Shape         { return k.shape }
func (k *upsample[T]) Order() tensor.Order         { return k.in.Traits().Order }
func (k *upsample[T]) Operands() []Expr[T]         { return []Expr[T]{k.in} }
func (k *upsample[T]) Resident(selector.Impl) bool { return false }

func (k *upsample[T]) Request() selector.Request {
	return selector.Request{
		Family:   selector.Upsample,
		Operands: []selector.Operand{operandOf(k.in)},
		Input:    []int{k.params.H, k.params.W},
		Kernel:   []int{k.params.C1, k.params.C2},
		Elements: k.shape.NumElements(),
	}
}

func (k *upsample[T]) Apply(ctx context.Context, impl selector.Impl, out *Dense[T]) error {
	if impl != selector.Std {
		panic(fmt.Sprintf("unreachable: %s implementation %s", k.Name(), impl))
	}
	in := rowMajor(k.in)
	fillRowMajor(out, func(dst []T) {
		std.Upsample2D(ctx, in, k.params, dst)
	})
	return nil
}
