// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/tensor"
)

type benchOptions struct {
	dtype  string
	size   int
	repeat int
}

// benchGemm times size x size products for every GEMM implementation.
// Results are compared against the std implementation.
func benchGemm[T tensor.Numeric](ctx context.Context, size, repeat int) [][]string {
	r := rand.New(rand.NewPCG(1, uint64(size)))
	fill := func() *tensor.Dense[T] {
		d := tensor.New[T](tensor.Shape{size, size})
		for i := range d.Data() {
			d.Data()[i] = T(r.IntN(7) - 3)
		}
		return d
	}
	a, b := fill(), fill()

	want := tensor.New[T](tensor.Shape{size, size})
	tensor.Assign(tensor.WithForced(ctx, tensor.GEMM, tensor.Std), want, tensor.Mul[T](a, b))

	f := tensor.CurrentFeatures()
	f.GPU = f.GPU && gpu.Default() != nil
	op := selector.Operand{DType: a.Traits().DType, Direct: true, Vectorizable: true}
	req := selector.Request{Family: selector.GEMM, Operands: []selector.Operand{op, op}, M: size, K: size, N: size}
	flops := 2 * math.Pow(float64(size), 3)

	var data [][]string
	for _, impl := range selector.GEMM.Impls() {
		if ok, reason := selector.Usable(impl, req, f); !ok {
			data = append(data, []string{impl.String(), "-", "-", "-", reason})
			continue
		}

		forced := tensor.WithForced(ctx, tensor.GEMM, impl)
		c := tensor.New[T](tensor.Shape{size, size})
		start := time.Now()
		for range repeat {
			tensor.Assign(forced, c, tensor.Mul[T](a, b))
		}
		perOp := max(time.Since(start)/time.Duration(repeat), time.Nanosecond)

		var maxErr float64
		for i, v := range c.Data() {
			maxErr = max(maxErr, math.Abs(float64(v)-float64(want.Data()[i])))
		}
		data = append(data, []string{
			impl.String(),
			perOp.String(),
			fmt.Sprintf("%.2f", flops/perOp.Seconds()/1e9),
			fmt.Sprintf("%g", maxErr),
			"",
		})
	}
	return data
}

func benchHandler(o *benchOptions) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if o.size <= 0 || o.repeat <= 0 {
			return errors.Errorf("size and repeat must be positive, got %d and %d", o.size, o.repeat)
		}

		var data [][]string
		switch o.dtype {
		case "float32":
			data = benchGemm[float32](cmd.Context(), o.size, o.repeat)
		case "float64":
			data = benchGemm[float64](cmd.Context(), o.size, o.repeat)
		case "int32":
			data = benchGemm[int32](cmd.Context(), o.size, o.repeat)
		case "int64":
			data = benchGemm[int64](cmd.Context(), o.size, o.repeat)
		default:
			return errors.Errorf("unknown data type %q", o.dtype)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "gemm %dx%d %s, %d runs\n", o.size, o.size, o.dtype, o.repeat)
		renderTable(cmd.OutOrStdout(), []string{"IMPL", "TIME/OP", "GFLOPS", "MAX ERR", "SKIPPED"}, data)
		return nil
	}
}

func newBenchCmd() *cobra.Command {
	o := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time matrix products with every usable implementation",
		Args:  cobra.NoArgs,
		RunE:  benchHandler(o),
	}

	cmd.Flags().StringVar(&o.dtype, "dtype", "float32", "Element type: float32, float64, int32 or int64")
	cmd.Flags().IntVar(&o.size, "size", 256, "Matrix edge")
	cmd.Flags().IntVar(&o.repeat, "repeat", 5, "Products per implementation")
	return cmd
}
