// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dims

import (
	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/pkg/errors"
)

// Infer binds the names of the Spec that are not in known to the sizes of the axes they align with.
//
// Only atomic Name/DynamicName slots bind directly. After those, an arithmetic slot with exactly
// one free name (occurring once) is solved by inverting the arithmetic, when the inverse is exact:
// "N*K" on an axis of size 6 with N=2 infers K=3. The arithmetic slot itself is never bound.
//
// It returns only the newly inferred names. It fails with a shapeerr.Inference error if a name
// conflicts with known, or if two occurrences of a name in the Spec disagree. The rank must match,
// otherwise it fails with a shapeerr.RankMismatch error.
func (s Spec) Infer(shape []int, known Bindings) (Bindings, error) {
	if !s.RankMatches(shape) {
		return nil, shapeerr.New(shapeerr.RankMismatch, "shape %v has rank incompatible with template %q", shape, s.Template)
	}
	axes := s.align(shape)
	inferred := make(Bindings)
	for ii, e := range s.Exprs {
		name := atomName(e)
		if name == "" || axes[ii] < 0 {
			continue
		}
		size := shape[axes[ii]]
		if value, found := known[name]; found {
			if value != size {
				return nil, shapeerr.New(shapeerr.Inference,
					"dimension %q is %d, but axis %d of shape %v is %d", name, value, axes[ii], shape, size)
			}
			continue
		}
		if value, found := inferred[name]; found {
			if value != size {
				return nil, shapeerr.New(shapeerr.Inference,
					"dimension %q matches axes of different sizes (%d and %d) in shape %v", name, value, size, shape)
			}
			continue
		}
		inferred[name] = size
	}

	// Solve arithmetic slots until nothing new is learned.
	merged := known.Clone()
	for k, v := range inferred {
		merged[k] = v
	}
	for changed := true; changed; {
		changed = false
		for ii, e := range s.Exprs {
			op, ok := e.(BinaryOp)
			if !ok || axes[ii] < 0 {
				continue
			}
			name, value, solved := solve(op, shape[axes[ii]], merged)
			if !solved {
				continue
			}
			inferred[name] = value
			merged[name] = value
			changed = true
		}
	}
	return inferred, nil
}

// solve finds the value of the single free name of e such that e evaluates to target.
func solve(e Expr, target int, bindings Bindings) (name string, value int, ok bool) {
	free := make(map[string]int)
	visitNames(e, func(n string) {
		if _, found := bindings[n]; !found {
			free[n]++
		}
	})
	if len(free) != 1 {
		return "", 0, false
	}
	for _, count := range free {
		if count != 1 {
			return "", 0, false
		}
	}
	return solveFor(e, target, bindings)
}

// solveFor walks down the path to the single free name, inverting each operator on the way.
func solveFor(e Expr, target int, bindings Bindings) (string, int, bool) {
	if target < 0 {
		return "", 0, false
	}
	switch e := e.(type) {
	case Name, DynamicName:
		return atomName(e), target, true
	case BinaryOp:
		lhs, err := e.Left.Evaluate(bindings)
		if err != nil {
			return "", 0, false
		}
		rhs, err := e.Right.Evaluate(bindings)
		if err != nil {
			return "", 0, false
		}
		switch {
		case lhs != Unknown && rhs == Unknown:
			// Solve for the right operand: lhs <op> x == target.
			switch e.Op {
			case OpAdd:
				return solveFor(e.Right, target-lhs, bindings)
			case OpSub:
				return solveFor(e.Right, lhs-target, bindings)
			case OpMul:
				if lhs == 0 || target%lhs != 0 {
					return "", 0, false
				}
				return solveFor(e.Right, target/lhs, bindings)
			case OpDiv:
				if target == 0 || lhs%target != 0 {
					return "", 0, false
				}
				return solveFor(e.Right, lhs/target, bindings)
			}
		case lhs == Unknown && rhs != Unknown:
			// Solve for the left operand: x <op> rhs == target.
			switch e.Op {
			case OpAdd:
				return solveFor(e.Left, target-rhs, bindings)
			case OpSub:
				return solveFor(e.Left, target+rhs, bindings)
			case OpMul:
				if rhs == 0 || target%rhs != 0 {
					return "", 0, false
				}
				return solveFor(e.Left, target/rhs, bindings)
			case OpDiv:
				if rhs == 0 {
					return "", 0, false
				}
				return solveFor(e.Left, target*rhs, bindings)
			}
		}
	}
	return "", 0, false
}

// Matches returns whether every slot's concrete requirement equals the axis it aligns with.
//
// Wildcard and Ellipsis never fail, Number requires equality, and Name, DynamicName and BinaryOp
// require equality with their value in bindings: an unresolved one doesn't match.
// It returns an error only if an arithmetic slot fails to evaluate.
func (s Spec) Matches(shape []int, bindings Bindings) (bool, error) {
	if !s.RankMatches(shape) {
		return false, nil
	}
	axes := s.align(shape)
	for ii, e := range s.Exprs {
		if axes[ii] < 0 {
			continue
		}
		if _, ok := e.(Wildcard); ok {
			continue
		}
		size, err := e.Evaluate(bindings)
		if err != nil {
			return false, errors.WithMessagef(err, "evaluating %s (slot %d) of template %q", e, ii, s.Template)
		}
		if size == Unknown || size != shape[axes[ii]] {
			return false, nil
		}
	}
	return true, nil
}

// Guard runs the full check of shape against the Spec, given the known bindings, which are not modified:
//
//  1. Checks the rank, failing with a shapeerr.RankMismatch error.
//  2. Infers the unknown names; conflicts are reported as a shapeerr.ShapeMismatch error.
//  3. Checks that the shape matches known plus inferred, failing with a shapeerr.ShapeMismatch error.
//
// Mismatch errors carry the expected (partially evaluated) shape, the template and the actual shape.
//
// It returns the inferred names that are not throwaway names, to be merged in the store.
func (s Spec) Guard(shape []int, known Bindings) (Bindings, error) {
	if !s.RankMatches(shape) {
		relation := "!="
		expectedRank := s.Rank()
		if s.EllipsisIndex() >= 0 {
			relation = "<"
			expectedRank--
		}
		return nil, shapeerr.New(shapeerr.RankMismatch,
			"shape has the wrong rank (%d %s %d)\nExpected shape: %s (from template %q)\n  Actual shape: %v",
			len(shape), relation, expectedRank, s.Partial(known), s.Template, shape)
	}
	inferred, err := s.Infer(shape, known)
	if err != nil {
		return nil, shapeerr.Wrap(shapeerr.ShapeMismatch, err,
			"axes don't match\nExpected shape: %s (from template %q)\n  Actual shape: %v", s.Partial(known), s.Template, shape)
	}
	merged := known.Clone()
	for k, v := range inferred {
		merged[k] = v
	}
	ok, err := s.Matches(shape, merged)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shapeerr.New(shapeerr.ShapeMismatch,
			"axes don't match\nExpected shape: %s (from template %q)\n  Actual shape: %v", s.Partial(known), s.Template, shape)
	}
	return inferred.Filter(func(name string) bool { return !IsThrowaway(name) }), nil
}
