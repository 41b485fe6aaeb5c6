// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeguard

import (
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shims"
	"github.com/gomlx/shapeguard/pkg/shapeguard/template"
	"k8s.io/klog/v2"
)

// Interface manages the scoping of the dimension stores: one base context, forks keyed by their
// Params, throwaway contexts and the noop mode. Its checks are issued on the current context.
//
// An Interface is meant to be used by one logical thread of control at a time: the current context
// is shared state, and interleaving forks from different goroutines mixes their scopes. Use one
// Interface per goroutine (see NewInterface and NewContext) for independent sessions.
type Interface struct {
	mu       sync.Mutex
	adapters *shims.Registry
	cache    *template.Cache

	base    *Guard
	forks   map[string]*Guard
	current *Guard // nil means the base context.
	active  []*forkEntry

	noop atomic.Int32
}

// forkEntry is one active Fork call: the fork entered, and the context to restore on exit.
type forkEntry struct {
	fork, previous *Guard
}

// NewInterface returns a new Interface, with empty stores, using the default adapters and parse cache.
//
// Use WithAdapters and WithCache to configure it before use.
func NewInterface() *Interface {
	return &Interface{
		adapters: shims.Default(),
		cache:    template.DefaultCache(),
		forks:    make(map[string]*Guard),
	}
}

// WithAdapters sets the registry of adapters used to find shapes of values, and to reshape them.
// It returns the Interface itself, so configuration calls can be chained.
//
// It must be called before any context is created.
func (i *Interface) WithAdapters(adapters *shims.Registry) *Interface {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.adapters = adapters
	return i
}

// WithCache sets the cache of parsed templates. It returns the Interface itself.
//
// It must be called before any context is created.
func (i *Interface) WithCache(cache *template.Cache) *Interface {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cache = cache
	return i
}

// Base returns the base context, creating it if needed.
func (i *Interface) Base() *Guard {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.baseLocked()
}

func (i *Interface) baseLocked() *Guard {
	if i.base == nil {
		i.base = newGuard("base", nil, i, i.adapters, i.cache)
	}
	return i.base
}

// Current returns the context checks are issued on: the innermost active fork, or the base context.
func (i *Interface) Current() *Guard {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.currentLocked()
}

func (i *Interface) currentLocked() *Guard {
	if i.current == nil {
		return i.baseLocked()
	}
	return i.current
}

// Throwaway returns a new context with an empty store, not cached nor connected to the base context.
// Checks on it never change any shared state.
func (i *Interface) Throwaway() *Guard {
	i.mu.Lock()
	defer i.mu.Unlock()
	return newGuard("throwaway", nil, i, i.adapters, i.cache)
}

// Reset drops the base context and all forks. Active forks are abandoned: exiting them afterwards is ignored.
func (i *Interface) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.base = nil
	i.forks = make(map[string]*Guard)
	i.current = nil
	i.active = nil
	klog.V(2).Infof("shapeguard: reset")
}

// Fork enters the context identified by params, and returns it along with the function to exit it.
//
// Forks with equal params (see Params.Key) are the same context, and keep their store across entries.
// Empty params create a new uncached context every time.
//
// On entry the bindings of the base context are copied into the fork, overwriting its own.
// On exit the bindings whose names start with an uppercase letter are copied back to the base context,
// and the previously current context is restored (and, if it is a fork, refreshed from the base).
//
// Forks nest, and should be exited in the reverse order they were entered. Exiting a fork out of order
// also exits the forks entered after it. Exiting twice, or after a Reset, is logged and otherwise ignored.
func (i *Interface) Fork(params Params) (fork *Guard, exit func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(params) == 0 {
		fork = newGuard("fork", nil, i, i.adapters, i.cache)
	} else {
		key := params.Key()
		var found bool
		fork, found = i.forks[key]
		if !found {
			fork = newGuard("fork", params, i, i.adapters, i.cache)
			i.forks[key] = fork
		}
	}
	entry := &forkEntry{fork: fork, previous: i.current}
	i.switchLocked(fork)
	i.active = append(i.active, entry)
	klog.V(2).Infof("shapeguard: entered %s (depth %d)", fork, len(i.active))

	var once sync.Once
	exit = func() {
		exited := false
		once.Do(func() {
			exited = true
			i.mu.Lock()
			defer i.mu.Unlock()
			idx := slices.Index(i.active, entry)
			if idx < 0 {
				klog.Warningf("shapeguard: exiting %s that is no longer active (Reset or an outer fork exited first), ignored", fork)
				return
			}
			if idx != len(i.active)-1 {
				klog.Warningf("shapeguard: %s exited out of order, also exiting the %d forks entered after it",
					fork, len(i.active)-1-idx)
			}
			i.switchLocked(entry.previous)
			i.active = i.active[:idx]
			klog.V(2).Infof("shapeguard: exited %s, current is %s", fork, i.currentLocked())
		})
		if !exited {
			klog.Warningf("shapeguard: %s exited more than once, ignored", fork)
		}
	}
	return fork, exit
}

// WithFork runs fn inside the fork identified by params, see Fork.
func (i *Interface) WithFork(params Params, fn func(fork *Guard) error) error {
	fork, exit := i.Fork(params)
	defer exit()
	return fn(fork)
}

// switchLocked checks in the current context (if it is a fork) and checks out next (if it is a fork).
// A nil next means the base context.
func (i *Interface) switchLocked(next *Guard) {
	base := i.baseLocked()
	if i.current != nil && i.current != base {
		base.overwrite(i.current.globals())
	}
	if next != nil && next != base {
		next.checkoutFrom(base.Dims())
	}
	i.current = next
}

// Noop disables the checks (Check, CheckAt, CheckAll and Assert) until the returned function is called.
// Noop scopes nest: checks are re-enabled when all of them are exited.
//
// Matches, Reshape and Evaluate are not affected.
func (i *Interface) Noop() (exit func()) {
	i.noop.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { i.noop.Add(-1) })
	}
}

// WithNoop runs fn with the checks disabled, see Noop.
func (i *Interface) WithNoop(fn func()) {
	defer i.Noop()()
	fn()
}

func (i *Interface) noopActive() bool {
	return i.noop.Load() > 0
}

// Check the shape of value against the templates, on the current context.
//
// With one template, it is a Check of the value (see Guard.Check). With more than one, value must
// be a slice or array, and each element is checked against the corresponding template, see CheckAll.
func (i *Interface) Check(value any, templates ...string) error {
	if i.noopActive() {
		return nil
	}
	if len(templates) == 1 {
		return i.Current().Check(value, templates[0])
	}
	if len(templates) == 0 {
		return shapeerr.New(shapeerr.Other, "no template given to check %T", value)
	}
	values, err := splitValues(value)
	if err != nil {
		return err
	}
	return i.Current().CheckAll(values, templates...)
}

// CheckAt is like Check, but the error is annotated with the given location.
func (i *Interface) CheckAt(location string, value any, templates ...string) error {
	return shapeerr.Annotate(i.Check(value, templates...), location)
}

// CheckAll checks each of the values against the corresponding template, on the current context.
// A single template is broadcast to all values. See Guard.CheckAll.
func (i *Interface) CheckAll(values []any, templates ...string) error {
	if i.noopActive() {
		return nil
	}
	return i.Current().CheckAll(values, templates...)
}

// Matches reports whether value matches the template on the current context, without changing it.
func (i *Interface) Matches(value any, tmpl string) (bool, error) {
	return i.Current().Matches(value, tmpl)
}

// Reshape value to the template evaluated on the current context.
func (i *Interface) Reshape(value any, tmpl string) (any, error) {
	return i.Current().Reshape(value, tmpl)
}

// Evaluate the template on the current context, overridden and extended by extra.
func (i *Interface) Evaluate(tmpl string, extra dims.Bindings) ([]int, error) {
	return i.Current().Evaluate(tmpl, extra)
}

// Dims returns a copy of the bindings of the current context.
func (i *Interface) Dims() dims.Bindings {
	return i.Current().Dims()
}

// splitValues returns the elements of a slice or array value.
func splitValues(value any) ([]any, error) {
	if values, ok := value.([]any); ok {
		return values, nil
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, shapeerr.New(shapeerr.Other, "several templates given, but %T is not a sequence of values", value)
	}
	values := make([]any, v.Len())
	for ii := range values {
		values[ii] = v.Index(ii).Interface()
	}
	return values, nil
}
