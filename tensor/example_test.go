// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"context"
	"fmt"

	"github.com/born-ml/tensorexpr/tensor"
)

func ExampleAssign() {
	ctx := context.Background()
	a := tensor.MustFromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2})
	c := tensor.New[float64](tensor.Shape{2, 2})

	// c = a*a + 1, the product computed once into a temporary.
	tensor.Assign(ctx, c, tensor.AddScalar[float64](tensor.Mul[float64](a, a), 1))
	fmt.Println(c.Data())
	// Output: [8 11 16 23]
}

func ExampleConv2Valid() {
	ctx := context.Background()
	in := tensor.MustFromSlice([]float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{3, 3})
	kernel := tensor.MustFromSlice([]float64{1, 0, 0, -1}, tensor.Shape{2, 2})

	out := tensor.Materialize[float64](ctx, tensor.Conv2Valid[float64](in, kernel, tensor.Flipped()))
	fmt.Println(out.Shape(), out.Data())
	// Output: [2 2] [-4 -4 -4 -4]
}

func ExampleWithForced() {
	ctx := tensor.WithForced(context.Background(), tensor.GEMM, tensor.Std)
	a := tensor.MustFromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})

	p := tensor.Mul[float32](a, a)
	fmt.Println(tensor.Materialize[float32](ctx, p).Data(), p.Impl())
	// Output: [7 10 15 22] std
}
