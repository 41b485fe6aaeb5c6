// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the dtype and dimensions of a tensor, and the HasShape interface
// for objects that carry one.
//
// A Shape, or anything implementing HasShape, can be checked against a shapeguard template directly:
// its Dimensions are the actual sizes matched.
//
// Example: `[][]int32{{0, 1, 2}, {3, 4, 5}}` has shape `(Int32)[2 3]`, which could be created with
// `shapes.Make(dtypes.Int32, 2, 3)`.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Shape represents the shape of a tensor: its DType and Dimensions.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// HasShape is implemented by tensor-like objects that know their shape.
// Shape itself implements the interface.
type HasShape interface {
	Shape() Shape
}

// Make returns a Shape with the given dtype and a copy of dimensions.
// It panics if any dimension is negative.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	if idx := slices.IndexFunc(dimensions, func(dim int) bool { return dim < 0 }); idx >= 0 {
		exceptions.Panicf("shapes.Make(%s, %v): axis %d has negative dimension", dtype, dimensions, idx)
	}
	return Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
}

// Rank is the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// Shape implements HasShape.
func (s Shape) Shape() Shape { return s }

func (s Shape) String() string {
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// Size is the number of elements: the product of the dimensions, 1 for a scalar.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

// Equal reports whether both shapes have the same dtype and dimensions.
func (s Shape) Equal(other Shape) bool {
	return s.DType == other.DType && slices.Equal(s.Dimensions, other.Dimensions)
}

// Strides returns, for each axis, the number of elements between consecutive indices of that axis,
// for a row-major layout. It returns nil for a scalar.
func (s Shape) Strides() []int {
	if s.Rank() == 0 {
		return nil
	}
	strides := make([]int, s.Rank())
	stride := 1
	for axis := s.Rank() - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= s.Dimensions[axis]
	}
	return strides
}

// Reshape returns a shape with the same DType and the given dimensions.
// The number of elements must be preserved.
func (s Shape) Reshape(dimensions ...int) (Shape, error) {
	if slices.ContainsFunc(dimensions, func(dim int) bool { return dim < 0 }) {
		return Shape{}, errors.Errorf("cannot reshape %s to %v: negative dimension", s, dimensions)
	}
	reshaped := Shape{DType: s.DType, Dimensions: slices.Clone(dimensions)}
	if reshaped.Size() != s.Size() {
		return Shape{}, errors.Errorf("cannot reshape %s (%d elements) to %v (%d elements)",
			s, s.Size(), dimensions, reshaped.Size())
	}
	return reshaped, nil
}
