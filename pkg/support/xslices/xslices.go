// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provides generic slice helpers missing from the slices package.
package xslices

import (
	"cmp"
	"maps"
	"slices"

	"golang.org/x/exp/constraints"
)

// SortedKeys returns the keys of a map in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Product returns the product of all elements of the slice, 1 for an empty slice.
// Used to compute the number of elements of a shape.
func Product[T constraints.Integer](slice []T) T {
	var p T = 1
	for _, e := range slice {
		p *= e
	}
	return p
}

// Convert the elements of an integer slice to another integer type.
func Convert[Out, In constraints.Integer](in []In) []Out {
	return Map(in, func(e In) Out { return Out(e) })
}
