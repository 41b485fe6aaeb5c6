// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeguard_test

import (
	"errors"
	"fmt"

	"github.com/gomlx/shapeguard/pkg/shapeguard"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
)

func ExampleInterface_Check() {
	sg := shapeguard.NewInterface()
	fmt.Println(sg.Check([][]float32{{1, 2, 3}, {4, 5, 6}}, "Batch,Features"))
	fmt.Println(sg.Dims())
	err := sg.Check([]float32{0, 1, 0}, "Batch")
	fmt.Println(errors.Is(err, shapeerr.ShapeMismatch))
	// Output:
	// <nil>
	// {Batch=2,Features=3}
	// true
}

func ExampleInterface_Fork() {
	sg := shapeguard.NewInterface()
	_ = sg.Check([]int{32, 10}, "Batch,Classes")
	for _, layer := range []string{"dense1", "dense2"} {
		_ = sg.WithFork(shapeguard.Params{"layer": layer}, func(fork *shapeguard.Guard) error {
			// "hidden" is local to the fork, "Batch" is shared with the base context.
			return sg.Check([]int{32, 64}, "Batch,hidden")
		})
	}
	fmt.Println(sg.Dims())
	// Output:
	// {Batch=32,Classes=10}
}

func ExampleInterface_Reshape() {
	sg := shapeguard.NewInterface()
	images := [][][]int32{{{1, 2}, {3, 4}}, {{5, 6}, {7, 8}}}
	_ = sg.Check(images, "Batch,H,W")
	flat, err := sg.Reshape(images, "Batch,H*W")
	fmt.Println(flat, err)
	sizes, _ := sg.Evaluate("Batch,H/2,?channels", nil)
	fmt.Println(sizes)
	// Output:
	// [[1 2 3 4] [5 6 7 8]] <nil>
	// [2 1 -1]
}
