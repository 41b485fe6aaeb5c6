// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shims

import (
	"reflect"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/shapeguard/pkg/core/shapes"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/gomlx/shapeguard/pkg/support/xslices"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

// RegisterBuiltins registers the adapters for the kinds of values shapeguard knows about out-of-the-box.
// See package documentation for the list.
func RegisterBuiltins(r *Registry) {
	registerShapeList[int](r)
	registerShapeList[int32](r)
	registerShapeList[int64](r)

	RegisterType[shapes.Shape](r, Funcs{
		ShapeFn: func(value any) ([]int, error) {
			return slices.Clone(value.(shapes.Shape).Dimensions), nil
		},
		ReshapeFn: func(value any, sizes []int) (any, error) {
			shape := value.(shapes.Shape)
			resolved, err := ResolveSizes(shape.Size(), sizes)
			if err != nil {
				return nil, err
			}
			reshaped, err := shape.Reshape(resolved...)
			if err != nil {
				return nil, shapeerr.Wrap(shapeerr.ShapeMismatch, err, "reshaping %s", shape)
			}
			return reshaped, nil
		},
	})
	hasShapeType := reflect.TypeFor[shapes.HasShape]()
	r.RegisterFunc("shapes.HasShape", func(t reflect.Type) bool { return t.Implements(hasShapeType) }, Funcs{
		ShapeFn: func(value any) ([]int, error) {
			return slices.Clone(value.(shapes.HasShape).Shape().Dimensions), nil
		},
	})

	RegisterType[*mat.VecDense](r, Funcs{
		ShapeFn: func(value any) ([]int, error) {
			return []int{value.(*mat.VecDense).Len()}, nil
		},
		ReshapeFn: func(value any, sizes []int) (any, error) {
			return reshapeGonum(value.(*mat.VecDense), sizes)
		},
	})
	matrixType := reflect.TypeFor[mat.Matrix]()
	r.RegisterFunc("mat.Matrix", func(t reflect.Type) bool { return t.Implements(matrixType) }, Funcs{
		ShapeFn: func(value any) ([]int, error) {
			rows, cols := value.(mat.Matrix).Dims()
			return []int{rows, cols}, nil
		},
		ReshapeFn: func(value any, sizes []int) (any, error) {
			return reshapeGonum(value.(mat.Matrix), sizes)
		},
	})

	r.RegisterFunc("Go numeric slices", isNumericGoValue, Funcs{ShapeFn: goValueShape, ReshapeFn: reshapeGoValue})
}

// registerShapeList registers a list of integers as its own shape: reshaping a shape list returns the new sizes.
func registerShapeList[T constraints.Integer](r *Registry) {
	RegisterType[[]T](r, Funcs{
		ShapeFn: func(value any) ([]int, error) {
			return xslices.Convert[int](value.([]T)), nil
		},
		ReshapeFn: func(value any, sizes []int) (any, error) {
			resolved, err := ResolveSizes(xslices.Product(xslices.Convert[int](value.([]T))), sizes)
			if err != nil {
				return nil, err
			}
			return xslices.Convert[T](resolved), nil
		},
	})
}

// reshapeGonum reshapes a gonum vector or matrix to rank 1 (a *mat.VecDense) or rank 2 (a *mat.Dense),
// preserving the row-major order of the elements.
func reshapeGonum(m mat.Matrix, sizes []int) (any, error) {
	rows, cols := m.Dims()
	resolved, err := ResolveSizes(rows*cols, sizes)
	if err != nil {
		return nil, err
	}
	flat := make([]float64, 0, rows*cols)
	for row := range rows {
		for col := range cols {
			flat = append(flat, m.At(row, col))
		}
	}
	if slices.Contains(resolved, 0) {
		return nil, shapeerr.New(shapeerr.AdapterType, "gonum values can't have zero-sized axes, got %v", resolved)
	}
	switch len(resolved) {
	case 1:
		return mat.NewVecDense(resolved[0], flat), nil
	case 2:
		return mat.NewDense(resolved[0], resolved[1], flat), nil
	default:
		return nil, shapeerr.New(shapeerr.AdapterType,
			"gonum values can only be reshaped to rank 1 or 2, got %v", resolved)
	}
}

// baseType returns the element type of a multidimensional slice or array. So `baseType([][]int{})` would return `int`.
func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	return t
}

func isNumericGoValue(t reflect.Type) bool {
	return dtypes.FromGoType(baseType(t)) != dtypes.InvalidDType
}

// goValueShape returns the shape of a (possibly nested) Go slice or array of numbers. Scalars are rank 0.
func goValueShape(value any) ([]int, error) {
	shape, err := goValueShapeRecursive(nil, reflect.ValueOf(value))
	if err != nil {
		return nil, err
	}
	return shape, nil
}

func goValueShapeRecursive(prefix []int, v reflect.Value) ([]int, error) {
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return prefix, nil
	}
	shape := append(slices.Clone(prefix), v.Len())
	if v.Len() == 0 {
		// Inner dimensions of an empty slice are only known for arrays.
		t := v.Type().Elem()
		for ; t.Kind() == reflect.Array; t = t.Elem() {
			shape = append(shape, t.Len())
		}
		if t.Kind() == reflect.Slice {
			return nil, shapeerr.New(shapeerr.AdapterType, "empty %s has undefined inner dimensions", v.Type())
		}
		return shape, nil
	}

	// The first element is the reference.
	full, err := goValueShapeRecursive(shape, v.Index(0))
	if err != nil {
		return nil, err
	}
	for ii := 1; ii < v.Len(); ii++ {
		other, err := goValueShapeRecursive(shape, v.Index(ii))
		if err != nil {
			return nil, err
		}
		if !slices.Equal(full, other) {
			return nil, shapeerr.New(shapeerr.AdapterType,
				"sub-slices of %s have irregular shapes, found %v and %v", v.Type(), full, other)
		}
	}
	return full, nil
}

// reshapeGoValue returns a new nested slice with the elements of value (in row-major order) and the given sizes.
// Arrays are converted to slices.
func reshapeGoValue(value any, sizes []int) (any, error) {
	shape, err := goValueShape(value)
	if err != nil {
		return nil, err
	}
	resolved, err := ResolveSizes(xslices.Product(shape), sizes)
	if err != nil {
		return nil, err
	}
	elemType := baseType(reflect.TypeOf(value))
	flat := reflect.MakeSlice(reflect.SliceOf(elemType), 0, xslices.Product(resolved))
	flat = flattenRecursive(flat, reflect.ValueOf(value))
	if len(resolved) == 0 {
		return flat.Index(0).Interface(), nil
	}
	strides := shapes.Shape{DType: dtypes.FromGoType(elemType), Dimensions: resolved}.Strides()
	return buildSlicesRecursive(elemType, flat, resolved, strides).Interface(), nil
}

func flattenRecursive(flat reflect.Value, v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return reflect.Append(flat, v)
	}
	for ii := range v.Len() {
		flat = flattenRecursive(flat, v.Index(ii))
	}
	return flat
}

func buildSlicesRecursive(elemType reflect.Type, flat reflect.Value, dimensions, strides []int) reflect.Value {
	if len(dimensions) == 1 {
		return flat.Slice3(0, flat.Len(), flat.Len())
	}
	sliceType := elemType
	for range dimensions {
		sliceType = reflect.SliceOf(sliceType)
	}
	slice := reflect.MakeSlice(sliceType, dimensions[0], dimensions[0])
	for ii := range dimensions[0] {
		sub := flat.Slice(ii*strides[0], (ii+1)*strides[0])
		slice.Index(ii).Set(buildSlicesRecursive(elemType, sub, dimensions[1:], strides[1:]))
	}
	return slice
}
