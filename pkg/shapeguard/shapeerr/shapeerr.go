// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeerr defines the single error family returned by every shapeguard package.
//
// All failures are reported as *Error, with a Kind that allows callers to distinguish
// them. Kind itself implements the error interface, so one can test for a specific kind
// with the standard errors.Is:
//
//	if errors.Is(err, shapeerr.ShapeMismatch) { ... }
//
// And to catch "any shape-guard failure" use errors.As with a *shapeerr.Error.
package shapeerr

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Kind of shape-guard failure.
type Kind int

const (
	// Other is used for foreign errors wrapped into the family, see Annotate.
	Other Kind = iota

	// Syntax is a malformed template.
	Syntax

	// RankMismatch is an actual axis count incompatible with the template rank.
	RankMismatch

	// ShapeMismatch is a rank-compatible shape whose axes don't satisfy the template.
	ShapeMismatch

	// Inference is a conflict found while binding names to axes.
	Inference

	// UnboundDimension is a template that can't be turned into concrete sizes.
	UnboundDimension

	// Arithmetic is an inexact or by-zero division, or a negative derived dimension.
	Arithmetic

	// AdapterType is a value whose kind has no registered shape adapter.
	AdapterType
)

var kindNames = map[Kind]string{
	Other:            "shape guard error",
	Syntax:           "syntax error",
	RankMismatch:     "rank mismatch",
	ShapeMismatch:    "shape mismatch",
	Inference:        "inference error",
	UnboundDimension: "unbound dimension",
	Arithmetic:       "arithmetic error",
	AdapterType:      "adapter type error",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error implements the error interface, so a Kind can be used as target of errors.Is.
func (k Kind) Error() string { return k.String() }

// Error is the error type of the shapeguard packages.
type Error struct {
	Kind Kind

	// Msg is the description of the failure, without the kind prefix.
	Msg string

	// Location is an optional caller-supplied label (e.g.: "model.go:42" or "attention logits")
	// that identifies where the failing check was issued.
	Location string

	cause error
}

// New creates a new *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a new *Error of the given kind, with cause chained.
// The cause is what errors.Unwrap returns.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Location != "" {
		msg = fmt.Sprintf("%s at %s", msg, e.Location)
	}
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the chained cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

// Format implements fmt.Formatter: "%+v" also prints the cause with its stack, if it has one.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.cause != nil {
			_, _ = io.WriteString(s, e.Error())
			_, _ = fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// KindOf returns the Kind of the first *Error in the chain of err, and false if there is none.
func KindOf(err error) (Kind, bool) {
	var sgErr *Error
	if errors.As(err, &sgErr) {
		return sgErr.Kind, true
	}
	return Other, false
}

// Annotate attaches the caller-supplied location to err.
//
// If err is an *Error, a copy of it with Location set is returned. If err wraps an *Error
// (e.g. with errors.WithMessage), the whole chain is kept as the cause of a new *Error of the
// same Kind. Any other error is wrapped into the family with Kind Other and chained as the cause.
// A nil err or an empty location returns err unchanged.
func Annotate(err error, location string) error {
	if err == nil || location == "" {
		return err
	}
	if sgErr, ok := err.(*Error); ok {
		annotated := *sgErr
		annotated.Location = location
		return &annotated
	}
	kind, _ := KindOf(err)
	return &Error{Kind: kind, Location: location, cause: err}
}
