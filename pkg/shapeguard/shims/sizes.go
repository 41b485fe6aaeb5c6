// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shims

import (
	"slices"

	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/gomlx/shapeguard/pkg/support/xslices"
)

// ResolveSizes returns the target sizes of a reshape of total elements.
//
// At most one of sizes can be dims.Unknown, in which case it is set so the number of elements is
// preserved. It fails if the product of the sizes doesn't match total.
func ResolveSizes(total int, sizes []int) ([]int, error) {
	resolved := slices.Clone(sizes)
	unknownAxis := -1
	known := 1
	for axis, size := range sizes {
		switch {
		case size == dims.Unknown:
			if unknownAxis >= 0 {
				return nil, shapeerr.New(shapeerr.UnboundDimension,
					"reshape to %v has more than one unresolved dimension", sizes)
			}
			unknownAxis = axis
		case size < 0:
			return nil, shapeerr.New(shapeerr.Arithmetic, "reshape to %v has negative dimension %d", sizes, size)
		default:
			known *= size
		}
	}
	if unknownAxis >= 0 {
		if known == 0 || total%known != 0 {
			return nil, shapeerr.New(shapeerr.ShapeMismatch,
				"can't reshape %d elements to %v: unresolved dimension can't be inferred", total, sizes)
		}
		resolved[unknownAxis] = total / known
	}
	if got := xslices.Product(resolved); got != total {
		return nil, shapeerr.New(shapeerr.ShapeMismatch,
			"can't reshape %d elements to %v (%d elements)", total, resolved, got)
	}
	return resolved, nil
}
