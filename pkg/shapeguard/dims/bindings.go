// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dims

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/gomlx/shapeguard/pkg/support/xslices"
)

// Bindings maps dimension names to their resolved sizes.
type Bindings map[string]int

// Key returns a canonical string representation of the bindings.
// Format: "name1=val1,name2=val2" with names sorted alphabetically.
// Returns empty string for empty or nil bindings.
func (b Bindings) Key() string {
	if len(b) == 0 {
		return ""
	}
	names := xslices.SortedKeys(b)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, b[name])
	}
	return strings.Join(parts, ",")
}

// String implements fmt.Stringer.
func (b Bindings) String() string {
	return "{" + b.Key() + "}"
}

// Validate returns a shapeerr.Other error if any size is negative: stored sizes can't be
// mistaken for Unknown.
func (b Bindings) Validate() error {
	for _, name := range xslices.SortedKeys(b) {
		if b[name] < 0 {
			return shapeerr.New(shapeerr.Other, "dimension %q has negative size %d", name, b[name])
		}
	}
	return nil
}

// Clone returns a copy of the bindings. A nil Bindings clones to an empty one.
func (b Bindings) Clone() Bindings {
	clone := make(Bindings, len(b))
	for k, v := range b {
		clone[k] = v
	}
	return clone
}

// Merge combines bindings from other into b.
// It returns a shapeerr.Inference error if there are conflicting values for the same name, in
// which case b is left untouched.
func (b Bindings) Merge(other Bindings) error {
	for name, value := range other {
		if existing, ok := b[name]; ok && existing != value {
			return shapeerr.New(shapeerr.Inference, "conflicting values for dimension %q: %d vs %d", name, existing, value)
		}
	}
	for name, value := range other {
		b[name] = value
	}
	return nil
}

// Filter returns a new Bindings with only the names for which keep returns true.
func (b Bindings) Filter(keep func(name string) bool) Bindings {
	filtered := make(Bindings)
	for k, v := range b {
		if keep(k) {
			filtered[k] = v
		}
	}
	return filtered
}

// ThrowawayPrefix marks a dimension name as local to one check: it's never persisted in a store.
const ThrowawayPrefix = "_"

// IsThrowaway returns whether name is a throwaway name.
func IsThrowaway(name string) bool {
	return strings.HasPrefix(name, ThrowawayPrefix)
}

// IsGlobal returns whether name starts with an uppercase letter. Global names bound in a fork
// are copied back to the base store when the fork is exited.
func IsGlobal(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return r != utf8.RuneError && unicode.IsUpper(r)
}
