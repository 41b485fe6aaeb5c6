// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dims

import (
	"fmt"
	"strconv"

	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
)

// Unknown is the size returned for a dimension that can't be resolved: an unbound name,
// a wildcard or an ellipsis.
const Unknown = int(-1)

// Expr is a node of the dimension expression tree. One Expr describes one slot of a Spec.
//
// The set of implementations is closed: Wildcard, Ellipsis, Number, Name, DynamicName and BinaryOp.
type Expr interface {
	fmt.Stringer

	// Evaluate returns the concrete size of the expression given the bindings, or Unknown
	// if it can't be resolved without an actual shape.
	Evaluate(bindings Bindings) (int, error)

	isExpr()
}

// Wildcard matches exactly one axis of any size.
type Wildcard struct{}

func (Wildcard) isExpr()                         {}
func (Wildcard) String() string                  { return "*" }
func (Wildcard) Evaluate(Bindings) (int, error) { return Unknown, nil }

// Ellipsis matches zero or more contiguous axes of any size. At most one per Spec.
type Ellipsis struct{}

func (Ellipsis) isExpr()                         {}
func (Ellipsis) String() string                  { return "..." }
func (Ellipsis) Evaluate(Bindings) (int, error) { return Unknown, nil }

// Number matches an axis of exactly the given size.
type Number struct {
	Value int
}

func (Number) isExpr()                           {}
func (n Number) String() string                  { return strconv.Itoa(n.Value) }
func (n Number) Evaluate(Bindings) (int, error) { return n.Value, nil }

// Name binds the axis size to the name the first time it's seen, and requires the same size afterward.
type Name struct {
	Name string
}

func (Name) isExpr()          {}
func (n Name) String() string { return n.Name }

// Evaluate returns the bound value or Unknown.
func (n Name) Evaluate(bindings Bindings) (int, error) {
	if value, found := bindings[n.Name]; found {
		return value, nil
	}
	return Unknown, nil
}

// DynamicName is like Name, but it is allowed to remain unresolved when evaluating a
// template to concrete sizes: see Spec.EvaluateStrict.
type DynamicName struct {
	Name string
}

func (DynamicName) isExpr()          {}
func (n DynamicName) String() string { return "?" + n.Name }

// Evaluate returns the bound value or Unknown.
func (n DynamicName) Evaluate(bindings Bindings) (int, error) {
	if value, found := bindings[n.Name]; found {
		return value, nil
	}
	return Unknown, nil
}

// Op is an arithmetic operator over dimensions.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
)

// String returns the operator symbol as used in templates.
func (op Op) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

func (op Op) precedence() int {
	if op == OpMul || op == OpDiv {
		return 2
	}
	return 1
}

// Apply the operator to two known sizes.
//
// It fails with a shapeerr.Arithmetic error if the division is by zero or not exact,
// or if the result is negative.
func (op Op) Apply(lhs, rhs int) (int, error) {
	var result int
	switch op {
	case OpAdd:
		result = lhs + rhs
	case OpSub:
		result = lhs - rhs
	case OpMul:
		result = lhs * rhs
	case OpDiv:
		if rhs == 0 {
			return 0, shapeerr.New(shapeerr.Arithmetic, "division by zero in %d/%d", lhs, rhs)
		}
		if lhs%rhs != 0 {
			return 0, shapeerr.New(shapeerr.Arithmetic, "%d/%d is not an exact integer division", lhs, rhs)
		}
		result = lhs / rhs
	default:
		return 0, shapeerr.New(shapeerr.Arithmetic, "unknown operator %s", op)
	}
	if result < 0 {
		return 0, shapeerr.New(shapeerr.Arithmetic, "%d%s%d yields a negative dimension (%d)", lhs, op, rhs, result)
	}
	return result, nil
}

// BinaryOp is a derived dimension computed from two sub-expressions.
type BinaryOp struct {
	Op          Op
	Left, Right Expr
}

func (BinaryOp) isExpr() {}

// String prints the expression with the minimum parentheses needed to parse it back.
func (b BinaryOp) String() string {
	left := b.Left.String()
	if sub, ok := b.Left.(BinaryOp); ok && sub.Op.precedence() < b.Op.precedence() {
		left = "(" + left + ")"
	}
	right := b.Right.String()
	if sub, ok := b.Right.(BinaryOp); ok {
		if sub.Op.precedence() < b.Op.precedence() ||
			(sub.Op.precedence() == b.Op.precedence() && (b.Op == OpSub || b.Op == OpDiv)) {
			right = "(" + right + ")"
		}
	}
	return left + b.Op.String() + right
}

// Evaluate both operands and apply the operator. If either operand is Unknown, so is the result.
func (b BinaryOp) Evaluate(bindings Bindings) (int, error) {
	lhs, err := b.Left.Evaluate(bindings)
	if err != nil {
		return 0, err
	}
	rhs, err := b.Right.Evaluate(bindings)
	if err != nil {
		return 0, err
	}
	if lhs == Unknown || rhs == Unknown {
		return Unknown, nil
	}
	return b.Op.Apply(lhs, rhs)
}

// atomName returns the name of a Name or DynamicName node, or "" for any other node.
func atomName(e Expr) string {
	switch e := e.(type) {
	case Name:
		return e.Name
	case DynamicName:
		return e.Name
	}
	return ""
}

// visitNames calls fn for every name occurrence in e, nested ones included.
func visitNames(e Expr, fn func(name string)) {
	switch e := e.(type) {
	case Name:
		fn(e.Name)
	case DynamicName:
		fn(e.Name)
	case BinaryOp:
		visitNames(e.Left, fn)
		visitNames(e.Right, fn)
	}
}
