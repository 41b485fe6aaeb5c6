// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeguard checks at runtime that the shapes of array-like values match templates like
// "N,...,C", binding the unknown dimension names to sizes that later checks must agree with.
//
// Example:
//
//	shapeguard.Assert(images, "Batch,H,W")
//	shapeguard.Assert(labels, "Batch") // Panics if len(labels) != len(images).
//	flat := must.M1(shapeguard.Reshape(images, "Batch,H*W")).([][]float32)
//
// Templates are comma-separated lists of dimensions, each one of:
//
//   - A name, like "N" or "batch": bound to the size of the axis the first time it is seen,
//     and checked against it afterwards.
//   - A number, like "3": the axis must have exactly that size.
//   - "*" (or a lone "_"): one axis of any size.
//   - "...": zero or more axes of any size. At most one per template.
//   - "?name": a dynamic name, that may remain unresolved when evaluating a template.
//   - Arithmetic over the above with "+", "-", "*" and "/", and parenthesis. E.g.: "H*W", "(T-1)/2".
//
// Names starting with "_" are throwaway: they must be consistent within one check, but are not stored.
// Names starting with an uppercase letter are global: when bound in a fork, they are copied back to the
// base context when the fork exits.
//
// Bindings are kept in a Guard (a context). An Interface holds a base context, forks identified by
// arbitrary Params (e.g.: one per layer of a model), throwaway contexts and a noop mode to disable the checks.
// The package level functions use the Default Interface.
//
// The shapes of values are found by the adapters registered in shims.Default: Go numeric slices,
// lists of integers (taken as the shape itself), shapes.Shape, gonum matrices, and anything else registered.
//
// Errors are *shapeerr.Error, and can be tested with errors.Is against the kinds in package shapeerr.
// Set the environment variable SHAPEGUARD_DISABLE=1 to start the Default Interface in noop mode.
package shapeguard

import (
	"context"
	"os"
	"sync"

	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"k8s.io/klog/v2"
)

// DisableEnv is the environment variable that, if set to "1" or "true", starts the Default Interface in noop mode.
const DisableEnv = "SHAPEGUARD_DISABLE"

var (
	defaultMu        sync.Mutex
	defaultInterface *Interface
)

// Default returns the process-wide Interface, used by the package level functions.
func Default() *Interface {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInterface == nil {
		defaultInterface = NewInterface()
		if v := os.Getenv(DisableEnv); v == "1" || v == "true" {
			klog.V(1).Infof("shapeguard: checks disabled by $%s", DisableEnv)
			_ = defaultInterface.Noop()
		}
	}
	return defaultInterface
}

// Install makes i the process-wide Interface returned by Default, and returns a function that restores
// the previous one.
func Install(i *Interface) (restore func()) {
	_ = Default()
	defaultMu.Lock()
	defer defaultMu.Unlock()
	previous := defaultInterface
	defaultInterface = i
	return func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		defaultInterface = previous
	}
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying the Interface i. See FromContext.
func NewContext(ctx context.Context, i *Interface) context.Context {
	return context.WithValue(ctx, contextKey{}, i)
}

// FromContext returns the Interface carried by ctx, or the Default one if there is none.
func FromContext(ctx context.Context) *Interface {
	if i, ok := ctx.Value(contextKey{}).(*Interface); ok && i != nil {
		return i
	}
	return Default()
}

// Check the shape of value against the templates, using the Default Interface. See Interface.Check.
func Check(value any, templates ...string) error {
	return Default().Check(value, templates...)
}

// Assert checks the shape of value against the templates, using the Default Interface, and returns value.
// It panics with the *shapeerr.Error if the check fails.
//
// It's meant to be used inline:
//
//	logits := shapeguard.Assert(model(x), "Batch,Classes")
func Assert[T any](value T, templates ...string) T {
	if err := Default().Check(value, templates...); err != nil {
		panic(err)
	}
	return value
}

// AssertAt is like Assert, but the error is annotated with the given location.
func AssertAt[T any](location string, value T, templates ...string) T {
	if err := Default().CheckAt(location, value, templates...); err != nil {
		panic(err)
	}
	return value
}

// Dims returns a copy of the bindings of the current context of the Default Interface.
func Dims() dims.Bindings {
	return Default().Dims()
}

// Matches reports whether value matches the template on the current context of the Default Interface.
func Matches(value any, tmpl string) (bool, error) {
	return Default().Matches(value, tmpl)
}

// Reshape value to the template evaluated on the current context of the Default Interface.
func Reshape(value any, tmpl string) (any, error) {
	return Default().Reshape(value, tmpl)
}

// Evaluate the template on the current context of the Default Interface, overridden and extended by extra.
func Evaluate(tmpl string, extra dims.Bindings) ([]int, error) {
	return Default().Evaluate(tmpl, extra)
}
