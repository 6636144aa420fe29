// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/internal/tensor"
)

type selectOptions struct {
	dtype   string
	force   string
	m, k, n int
	kernel  int
	stride  int
}

// requests describes one operation of every family sized by o. Only the
// 2-D convolutions and pooling take the stride.
func (o selectOptions) requests(dt tensor.DataType) []selector.Request {
	op := selector.Operand{DType: dt, Direct: true, Vectorizable: true}
	ops := []selector.Operand{op, op}
	valid := func(in int) int { return (in-o.kernel)/o.stride + 1 }
	stride := [2]int{o.stride, o.stride}
	out2 := valid(o.m) * valid(o.n)
	window := o.kernel * o.kernel

	const complexSize = 16
	fft1 := 2 * (o.n + o.kernel - 1) * complexSize
	full2 := (o.m + o.kernel - 1) * (o.n + o.kernel - 1) * complexSize
	im2col := out2 * window * dt.Size()

	return []selector.Request{
		{Family: selector.GEMM, Operands: ops, M: o.m, K: o.k, N: o.n},
		{Family: selector.GEMV, Operands: ops, M: o.m, N: o.k},
		{Family: selector.GEVM, Operands: ops, M: o.k, N: o.n},
		{Family: selector.Outer, Operands: ops, M: o.m, N: o.n},
		{Family: selector.BatchOuter, Operands: ops, M: o.m, K: o.k, N: o.n},
		{Family: selector.Conv1, Operands: ops, Input: []int{o.n}, Kernel: []int{o.kernel},
			Elements: o.n - o.kernel + 1, FFTWorkspace: fft1},
		{Family: selector.Conv2, Operands: ops, Input: []int{o.m, o.n}, Kernel: []int{o.kernel, o.kernel},
			Elements: out2, Stride: stride, FFTWorkspace: 2 * full2},
		{Family: selector.ConvMulti, Operands: ops, Input: []int{o.m, o.n}, Kernel: []int{o.kernel, o.kernel},
			Elements: o.k * out2, Stride: stride, Im2colWorkspace: im2col, FFTWorkspace: (o.k + 1) * full2},
		{Family: selector.Conv4, Operands: ops, Input: []int{o.m, o.n}, Kernel: []int{o.kernel, o.kernel},
			Elements: o.k * out2, Stride: stride, Im2colWorkspace: im2col},
		{Family: selector.Reduce, Operands: ops[:1], N: o.m * o.n, Reduction: selector.Sum},
		{Family: selector.Pool, Operands: ops[:1], Input: []int{o.m, o.n}, Kernel: []int{o.kernel, o.kernel}, Stride: stride},
		{Family: selector.Upsample, Operands: ops[:1], Input: []int{o.m, o.n}, Kernel: []int{o.kernel, o.kernel},
			Elements: o.m * o.n * window},
	}
}

func (o selectOptions) validate() error {
	if o.m <= 0 || o.k <= 0 || o.n <= 0 {
		return errors.Errorf("sizes must be positive, got m=%d k=%d n=%d", o.m, o.k, o.n)
	}
	if o.kernel <= 0 || o.kernel > min(o.m, o.n) {
		return errors.Errorf("kernel %d does not fit a %dx%d input", o.kernel, o.m, o.n)
	}
	if o.stride <= 0 {
		return errors.Errorf("invalid stride %d", o.stride)
	}
	return nil
}

func selectHandler(o *selectOptions) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if err := o.validate(); err != nil {
			return err
		}
		dt, err := tensor.ParseDataType(o.dtype)
		if err != nil {
			return err
		}

		var forced selector.Impl
		if o.force != "" {
			if forced, err = selector.ParseImpl(o.force); err != nil {
				return err
			}
		}

		f := config.Get()
		f.GPU = f.GPU && gpu.Default() != nil

		header := []string{"FAMILY", "DEFAULT", "USABLE", "UNAVAILABLE"}
		if o.force != "" {
			header = append(header, "FORCED")
		}

		var data [][]string
		for _, req := range o.requests(dt) {
			var usable []selector.Impl
			var reasons []string
			for _, impl := range req.Family.Impls() {
				if ok, reason := selector.Usable(impl, req, f); ok {
					usable = append(usable, impl)
				} else {
					reasons = append(reasons, fmt.Sprintf("%s: %s", impl, reason))
				}
			}
			row := []string{
				req.Family.String(),
				selector.Default(req, f).String(),
				joinImpls(usable),
				strings.Join(reasons, "; "),
			}
			if o.force != "" {
				ctx := selector.WithForced(cmd.Context(), req.Family, forced)
				row = append(row, selector.Select(ctx, req, f).String())
			}
			data = append(data, row)
		}

		renderTable(cmd.OutOrStdout(), header, data)
		return nil
	}
}

func newSelectCmd() *cobra.Command {
	o := &selectOptions{}
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Show the implementation chosen for each operation family",
		Args:  cobra.NoArgs,
		RunE:  selectHandler(o),
	}

	cmd.Flags().StringVar(&o.dtype, "dtype", "float32", "Element type: float32, float64, int32 or int64")
	cmd.Flags().StringVar(&o.force, "force", "", "Implementation forced for every family: std, vec, blas, gpu or fft")
	cmd.Flags().IntVar(&o.m, "m", 256, "Rows of the left operand or input height")
	cmd.Flags().IntVar(&o.k, "k", 256, "Inner dimension or kernel count")
	cmd.Flags().IntVar(&o.n, "n", 256, "Columns of the right operand or input width")
	cmd.Flags().IntVar(&o.kernel, "kernel", 3, "Convolution, pooling and upsampling window edge")
	cmd.Flags().IntVar(&o.stride, "stride", 1, "Stride of the 2-D convolutions and pooling")
	return cmd
}
