// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dims implements the dimension expressions of shape templates, and the
// evaluation, matching and inference of a Spec against actual shapes.
//
// A Spec is the parsed form of a template like "N,...,H/2,C" (see package template):
// an ordered list of Expr, one per slot. Names are bound to the sizes of the axes
// they align with, and kept in Bindings.
//
// ## Glossary
//
//   - Axis: one position in an actual shape.
//   - Rank: number of axes of a shape, or number of slots of a Spec (an Ellipsis counts as one
//     slot, but it can absorb any number of axes, including zero).
//   - Throwaway name: a name starting with "_", never persisted in a store.
//   - Global name: a name starting with an uppercase letter, propagated out of forks.
package dims

import (
	"fmt"
	"strings"

	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/gomlx/shapeguard/pkg/support/sets"
	"github.com/gomlx/shapeguard/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Spec is the ordered sequence of dimension expressions parsed from one template.
type Spec struct {
	// Template is the text the Spec was parsed from, used in error messages.
	Template string

	Exprs []Expr
}

// NewSpec creates a Spec and validates it.
func NewSpec(template string, exprs ...Expr) (Spec, error) {
	s := Spec{Template: template, Exprs: exprs}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Validate checks that there is at most one Ellipsis.
func (s Spec) Validate() error {
	count := 0
	for _, e := range s.Exprs {
		if _, ok := e.(Ellipsis); ok {
			count++
		}
	}
	if count > 1 {
		return shapeerr.New(shapeerr.Syntax, "template %q has %d ellipsis, at most one is allowed", s.Template, count)
	}
	return nil
}

// Rank is the number of slots of the Spec.
func (s Spec) Rank() int { return len(s.Exprs) }

// EllipsisIndex returns the slot of the Ellipsis, or -1 if there is none.
func (s Spec) EllipsisIndex() int {
	for ii, e := range s.Exprs {
		if _, ok := e.(Ellipsis); ok {
			return ii
		}
	}
	return -1
}

// String returns the canonical template of the Spec.
func (s Spec) String() string {
	return strings.Join(xslices.Map(s.Exprs, Expr.String), ",")
}

// RankMatches returns whether the shape has a compatible number of axes: exactly Rank
// without ellipsis, at least Rank-1 with one.
func (s Spec) RankMatches(shape []int) bool {
	if s.EllipsisIndex() >= 0 {
		return len(shape) >= s.Rank()-1
	}
	return len(shape) == s.Rank()
}

// align returns, for each slot, the index of the shape axis it refers to.
// The Ellipsis slot gets -1: it absorbs the surplus axes in the middle, so slots after it
// align with the trailing axes of the shape. The rank must match.
func (s Spec) align(shape []int) []int {
	axes := make([]int, len(s.Exprs))
	ellipsis := s.EllipsisIndex()
	absorbed := len(shape) - len(s.Exprs) + 1
	for ii := range s.Exprs {
		switch {
		case ellipsis < 0 || ii < ellipsis:
			axes[ii] = ii
		case ii == ellipsis:
			axes[ii] = -1
		default:
			axes[ii] = ii - 1 + absorbed
		}
	}
	return axes
}

// Names returns all names referenced by the Spec, including the ones nested in arithmetic.
func (s Spec) Names() sets.Set[string] {
	names := sets.Make[string]()
	for _, e := range s.Exprs {
		visitNames(e, func(name string) { names.Insert(name) })
	}
	return names
}

// Evaluate computes the concrete size of every slot, without an actual shape.
//
// Unbound names, wildcards and the ellipsis evaluate to Unknown, and arithmetic over an Unknown
// is Unknown. It fails only with shapeerr.Arithmetic errors.
func (s Spec) Evaluate(bindings Bindings) ([]int, error) {
	sizes := make([]int, len(s.Exprs))
	for ii, e := range s.Exprs {
		size, err := e.Evaluate(bindings)
		if err != nil {
			return nil, errors.WithMessagef(err, "evaluating %s (slot %d) of template %q", e, ii, s.Template)
		}
		sizes[ii] = size
	}
	return sizes, nil
}

// EvaluateStrict computes sizes meant to be used as the target of a reshape.
//
// A Wildcard, an Ellipsis or an unbound Name fails with a shapeerr.UnboundDimension error.
// At most one slot may be a bare unbound DynamicName: it is returned as Unknown, to be resolved
// from the total number of elements.
func (s Spec) EvaluateStrict(bindings Bindings) ([]int, error) {
	sizes, err := s.Evaluate(bindings)
	if err != nil {
		return nil, err
	}
	numDynamic := 0
	for ii, e := range s.Exprs {
		if sizes[ii] != Unknown {
			continue
		}
		switch e := e.(type) {
		case Wildcard, Ellipsis:
			return nil, shapeerr.New(shapeerr.UnboundDimension,
				"%q can't be used to produce concrete sizes (template %q, slot %d)", e, s.Template, ii)
		case DynamicName:
			numDynamic++
			if numDynamic > 1 {
				return nil, shapeerr.New(shapeerr.UnboundDimension,
					"at most one unbound dynamic dimension is allowed, %q is the second one (template %q)", e, s.Template)
			}
		default:
			unbound := sets.Make[string]()
			visitNames(e, func(name string) {
				if _, found := bindings[name]; !found {
					unbound.Insert(name)
				}
			})
			return nil, shapeerr.New(shapeerr.UnboundDimension,
				"dimension %s has unbound names %v (template %q, slot %d)", e, sets.Sorted(unbound), s.Template, ii)
		}
	}
	return sizes, nil
}

// Partial returns the display form of the Spec partially evaluated with the given bindings:
// slots that resolve are shown by their size, the others by their template text.
//
// Example: "N,...,C*2" with {C: 3} yields "[N, ..., 6]".
func (s Spec) Partial(bindings Bindings) string {
	parts := make([]string, len(s.Exprs))
	for ii, e := range s.Exprs {
		size, err := e.Evaluate(bindings)
		if err != nil || size == Unknown {
			parts[ii] = e.String()
		} else {
			parts[ii] = fmt.Sprintf("%d", size)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
