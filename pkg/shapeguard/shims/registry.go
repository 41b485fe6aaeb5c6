// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shims adapts the many kinds of array-like values to what shapeguard needs from them:
// their shape, and a way to reshape them.
//
// An Adapter implements both for one kind of value, and a Registry selects the Adapter by the
// type of the value. The set of kinds is open: register an Adapter for your own tensor type with
// Register, RegisterType or, for interfaces and families of types, RegisterFunc.
//
// The Default registry knows about:
//
//   - []int, []int32 and []int64: the value is taken to be the shape itself.
//   - shapes.Shape and any shapes.HasShape.
//   - Multidimensional Go slices and arrays of numbers (e.g.: [][]float32), and numeric scalars (rank 0).
//   - gonum's *mat.VecDense (rank 1) and any mat.Matrix (rank 2).
package shims

import (
	"reflect"
	"slices"
	"sync"

	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/gomlx/shapeguard/pkg/support/xslices"
)

// Adapter provides the shape of values of one kind, and reshapes them.
type Adapter interface {
	// Shape returns the dimensions of value.
	Shape(value any) ([]int, error)

	// Reshape returns a value of the same kind with the given dimensions.
	// sizes may contain one dims.Unknown, to be resolved from the number of elements, see ResolveSizes.
	Reshape(value any, sizes []int) (any, error)
}

// Funcs implements Adapter with plain functions. ReshapeFn can be nil for read-only kinds.
type Funcs struct {
	ShapeFn   func(value any) ([]int, error)
	ReshapeFn func(value any, sizes []int) (any, error)
}

// Shape implements Adapter.
func (f Funcs) Shape(value any) ([]int, error) { return f.ShapeFn(value) }

// Reshape implements Adapter.
func (f Funcs) Reshape(value any, sizes []int) (any, error) {
	if f.ReshapeFn == nil {
		return nil, shapeerr.New(shapeerr.AdapterType, "values of type %T can't be reshaped", value)
	}
	return f.ReshapeFn(value, sizes)
}

type predicateAdapter struct {
	name    string
	accept  func(t reflect.Type) bool
	adapter Adapter
}

// Registry maps the type of values to the Adapter that handles them. It is safe for concurrent use.
//
// Exact type registrations are checked first, and then the predicates, in the order they were registered.
type Registry struct {
	mu         sync.RWMutex
	byType     map[reflect.Type]Adapter
	predicates []predicateAdapter
}

// NewRegistry returns an empty Registry. See also Default and RegisterBuiltins.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[reflect.Type]Adapter)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry, with the built-in adapters registered.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		RegisterBuiltins(defaultRegistry)
	})
	return defaultRegistry
}

// Register the adapter for values of exactly type t, replacing any previous one.
func (r *Registry) Register(t reflect.Type, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = adapter
}

// RegisterType registers the adapter for values of type T.
func RegisterType[T any](r *Registry, adapter Adapter) {
	r.Register(reflect.TypeFor[T](), adapter)
}

// RegisterFunc registers the adapter for any type for which accept returns true.
// The name is used for error messages and Kinds.
func (r *Registry) RegisterFunc(name string, accept func(t reflect.Type) bool, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates = append(r.predicates, predicateAdapter{name: name, accept: accept, adapter: adapter})
}

// Kinds lists the registered kinds: type names for exact registrations, then predicate names.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.byType)+len(r.predicates))
	for t := range r.byType {
		kinds = append(kinds, t.String())
	}
	slices.Sort(kinds)
	return append(kinds, xslices.Map(r.predicates, func(p predicateAdapter) string { return p.name })...)
}

// Lookup returns the Adapter for value. It fails with a shapeerr.AdapterType error if there is none.
func (r *Registry) Lookup(value any) (Adapter, error) {
	if value == nil {
		return nil, shapeerr.New(shapeerr.AdapterType, "no shape for a nil value")
	}
	t := reflect.TypeOf(value)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if adapter, found := r.byType[t]; found {
		return adapter, nil
	}
	for _, p := range r.predicates {
		if p.accept(t) {
			return p.adapter, nil
		}
	}
	return nil, shapeerr.New(shapeerr.AdapterType, "unknown tensor/shape kind %T", value)
}

// Shape returns the dimensions of value, using the registered Adapter.
//
// Shapes with negative axes are rejected with a shapeerr.AdapterType error.
func (r *Registry) Shape(value any) ([]int, error) {
	adapter, err := r.Lookup(value)
	if err != nil {
		return nil, err
	}
	shape, err := adapter.Shape(value)
	if err != nil {
		return nil, err
	}
	for axis, size := range shape {
		if size < 0 {
			return nil, shapeerr.New(shapeerr.AdapterType, "shape %v of %T has negative size at axis %d", shape, value, axis)
		}
	}
	return shape, nil
}

// Reshape value to the given sizes, using the registered Adapter.
func (r *Registry) Reshape(value any, sizes []int) (any, error) {
	adapter, err := r.Lookup(value)
	if err != nil {
		return nil, err
	}
	return adapter.Reshape(value, sizes)
}
