// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeguard

import (
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shims"
	"github.com/gomlx/shapeguard/pkg/shapeguard/template"
	"github.com/gomlx/shapeguard/pkg/support/xslices"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Params identify a fork: arbitrary metadata (e.g.: the layer name), not dimension bindings.
type Params map[string]any

// Key returns the canonical rendering of the params: sorted by key, each value rendered with %#v.
// Two forks alias the same Guard if and only if their params have the same Key.
func (p Params) Key() string {
	if len(p) == 0 {
		return ""
	}
	parts := xslices.Map(xslices.SortedKeys(p), func(k string) string { return fmt.Sprintf("%s=%#v", k, p[k]) })
	return strings.Join(parts, ",")
}

// Guard owns one store of dimension bindings, and checks shapes of values against templates,
// binding the names of the templates it hasn't seen yet.
//
// Guards are created by an Interface: the base context, forks (see Interface.Fork) and throwaway
// contexts are all Guards. A Guard is safe for concurrent use, but the order of the checks
// determines which names get bound first.
type Guard struct {
	mu     sync.Mutex
	known  dims.Bindings
	params Params
	kind   string
	id     uuid.UUID

	adapters *shims.Registry
	cache    *template.Cache

	// owner, if set, is the Interface that created the Guard: its noop mode disables the checks.
	owner *Interface
}

// NewGuard returns a standalone Guard, with an empty store, using the default adapters and parse cache.
// Most users will use the Guards managed by an Interface instead.
func NewGuard() *Guard {
	return newGuard("standalone", nil, nil, shims.Default(), template.DefaultCache())
}

func newGuard(kind string, params Params, owner *Interface, adapters *shims.Registry, cache *template.Cache) *Guard {
	return &Guard{
		known:    make(dims.Bindings),
		params:   maps.Clone(params),
		kind:     kind,
		id:       uuid.New(),
		adapters: adapters,
		cache:    cache,
		owner:    owner,
	}
}

// String returns the kind of the context ("base", "fork", "throwaway", "standalone"), its params and a short id.
func (g *Guard) String() string {
	id := g.id.String()[:8]
	if len(g.params) > 0 {
		return fmt.Sprintf("%s{%s}#%s", g.kind, g.params.Key(), id)
	}
	return fmt.Sprintf("%s#%s", g.kind, id)
}

// Params returns a copy of the params that identify this context. Empty for the base context.
func (g *Guard) Params() Params {
	params := maps.Clone(g.params)
	if params == nil {
		params = make(Params)
	}
	return params
}

// Dims returns a copy of the current dimension bindings.
func (g *Guard) Dims() dims.Bindings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.known.Clone()
}

// Get returns the size bound to name, and whether it is bound.
func (g *Guard) Get(name string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	size, found := g.known[name]
	return size, found
}

// Update merges the bindings into the store. It fails with a shapeerr.Inference error, and
// leaves the store untouched, if any of them conflicts with a current binding, or with a
// shapeerr.Other error if any size is negative.
// Throwaway names are ignored.
func (g *Guard) Update(bindings dims.Bindings) error {
	if err := bindings.Validate(); err != nil {
		return err
	}
	bindings = bindings.Filter(func(name string) bool { return !dims.IsThrowaway(name) })
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.known.Merge(bindings); err != nil {
		return err
	}
	g.logBound(bindings)
	return nil
}

// disabled reports whether the owner Interface is in noop mode.
func (g *Guard) disabled() bool {
	return g.owner != nil && g.owner.noopActive()
}

// parse returns the Spec for the template, using the Guard's cache.
func (g *Guard) parse(tmpl string) (dims.Spec, error) {
	return g.cache.Parse(tmpl)
}

// Check the shape of value against the template, binding the names not yet known.
//
// It fails with a shapeerr.RankMismatch or shapeerr.ShapeMismatch error if the shape doesn't match,
// and leaves the store unchanged. Errors from parsing (shapeerr.Syntax) or from finding the shape of
// the value (shapeerr.AdapterType) are returned as is.
//
// If the owner Interface is in noop mode, it does nothing.
func (g *Guard) Check(value any, tmpl string) error {
	if g.disabled() {
		return nil
	}
	spec, err := g.parse(tmpl)
	if err != nil {
		return err
	}
	shape, err := g.adapters.Shape(value)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	inferred, err := spec.Guard(shape, g.known)
	if err != nil {
		return err
	}
	if err = g.known.Merge(inferred); err != nil {
		// spec.Guard already checked inferred against the store.
		return errors.Wrapf(err, "shapeguard %s: merging dimensions inferred from %q", g, tmpl)
	}
	g.logBound(inferred)
	return nil
}

// CheckAt is like Check, but the error is annotated with the given location (e.g.: "model.go:123"
// or a label of the caller's choice).
func (g *Guard) CheckAt(location string, value any, tmpl string) error {
	return shapeerr.Annotate(g.Check(value, tmpl), location)
}

// CheckAll checks each of the values against the corresponding template, in order, and stops at the
// first failure. A single template is broadcast to all values. There must be at least one value.
//
// Each successful check binds its names before the next check, so later values can depend on
// names bound by the earlier ones.
func (g *Guard) CheckAll(values []any, templates ...string) error {
	if g.disabled() {
		return nil
	}
	templates, err := broadcastTemplates(len(values), templates)
	if err != nil {
		return err
	}
	for ii, value := range values {
		if err := g.Check(value, templates[ii]); err != nil {
			return errors.WithMessagef(err, "value #%d of %d", ii, len(values))
		}
	}
	return nil
}

// broadcastTemplates returns one template per value.
func broadcastTemplates(numValues int, templates []string) ([]string, error) {
	if numValues == 0 {
		return nil, shapeerr.New(shapeerr.Other, "found %d templates, but no values to check", len(templates))
	}
	if len(templates) == 1 && numValues > 1 {
		broadcast := make([]string, numValues)
		for ii := range broadcast {
			broadcast[ii] = templates[0]
		}
		return broadcast, nil
	}
	if len(templates) != numValues {
		return nil, shapeerr.New(shapeerr.Other, "found %d templates, but %d values", len(templates), numValues)
	}
	return templates, nil
}

// Matches reports whether the shape of value matches the template, given the current bindings
// plus whatever the template infers. The store is not changed.
//
// Rank and shape mismatches are reported as false. Other errors (syntax, adapter, arithmetic) are returned.
func (g *Guard) Matches(value any, tmpl string) (bool, error) {
	spec, err := g.parse(tmpl)
	if err != nil {
		return false, err
	}
	shape, err := g.adapters.Shape(value)
	if err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err = spec.Guard(shape, g.known); err != nil {
		if kind, _ := shapeerr.KindOf(err); kind == shapeerr.RankMismatch || kind == shapeerr.ShapeMismatch {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Reshape value to the sizes given by the template evaluated with the current bindings.
//
// Every name must be bound, and wildcards or ellipsis are not allowed (shapeerr.UnboundDimension).
// One unbound dynamic name (e.g. "?rest") is allowed, and its size is taken from the number of elements.
func (g *Guard) Reshape(value any, tmpl string) (any, error) {
	spec, err := g.parse(tmpl)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	sizes, err := spec.EvaluateStrict(g.known)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	reshaped, err := g.adapters.Reshape(value, sizes)
	if err != nil {
		return nil, errors.WithMessagef(err, "reshaping %T to %q", value, tmpl)
	}
	return reshaped, nil
}

// Evaluate the template with the current bindings, overridden and extended by extra (which can be nil).
// Unresolved slots are returned as dims.Unknown. The store is not changed.
// Negative sizes in extra are rejected with a shapeerr.Other error.
func (g *Guard) Evaluate(tmpl string, extra dims.Bindings) ([]int, error) {
	if err := extra.Validate(); err != nil {
		return nil, err
	}
	spec, err := g.parse(tmpl)
	if err != nil {
		return nil, err
	}
	bindings := g.Dims()
	maps.Copy(bindings, extra)
	return spec.Evaluate(bindings)
}

// checkoutFrom overwrites the store with every binding of base.
func (g *Guard) checkoutFrom(base dims.Bindings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	maps.Copy(g.known, base)
}

// globals returns the bindings that propagate to the base context: those whose name starts with an uppercase letter.
func (g *Guard) globals() dims.Bindings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.known.Filter(dims.IsGlobal)
}

// overwrite sets the bindings in the store, replacing any previous values.
func (g *Guard) overwrite(bindings dims.Bindings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	maps.Copy(g.known, bindings)
}

// logBound must be called with the lock held.
func (g *Guard) logBound(bindings dims.Bindings) {
	if len(bindings) > 0 && klog.V(1).Enabled() {
		klog.Infof("shapeguard %s: bound %s", g, bindings)
	}
}
