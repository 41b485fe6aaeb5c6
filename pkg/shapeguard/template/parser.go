// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package template parses shape templates into a dims.Spec.
//
// A template is a comma-separated list of dimensions:
//
//   - `...`: ellipsis, zero or more axes of any size. At most one per template.
//   - `*` or `_`: wildcard, exactly one axis of any size.
//   - `32`: an axis of exactly that size.
//   - `N`: a named dimension, bound to the axis size on first use. Names starting with "_" are
//     throwaway (never stored), names starting with an uppercase letter propagate out of forks.
//   - `?N`: a dynamic named dimension, which may remain unresolved when evaluating a template.
//   - `H/2`, `N*K`, `A+B`, `(T-1)*2`: arithmetic over dimensions, with the usual precedence.
//
// Whitespace is ignored, and an empty template describes a scalar.
//
// Example: "batch, ..., H*W, C".
package template

import (
	"strconv"

	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/janpfeifer/must"
)

// Parse the template into a Spec. Malformed templates fail with a shapeerr.Syntax error.
func Parse(text string) (dims.Spec, error) {
	tokens, badPos := tokenize(text)
	if badPos >= 0 {
		return dims.Spec{}, shapeerr.New(shapeerr.Syntax,
			"invalid character %q at offset %d of template %q", text[badPos], badPos, text)
	}
	p := &parser{text: text, tokens: tokens}
	return p.parseTemplate()
}

// MustParse parses the template and panics on error. Meant for tests and static templates.
func MustParse(text string) dims.Spec {
	return must.M1(Parse(text))
}

type parser struct {
	text   string
	tokens []token
	pos    int
}

func (p *parser) current() token { return p.tokens[p.pos] }

func (p *parser) peek(offset int) token {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	err := shapeerr.New(shapeerr.Syntax, format, args...)
	err.Msg = err.Msg + " at offset " + strconv.Itoa(tok.pos) + " of template " + strconv.Quote(p.text)
	return err
}

func (p *parser) parseTemplate() (dims.Spec, error) {
	var exprs []dims.Expr
	if p.current().kind == tokEOF {
		return dims.NewSpec(p.text)
	}
	ellipsisSeen := false
	for {
		tok := p.current()
		e, err := p.parseDim()
		if err != nil {
			return dims.Spec{}, err
		}
		if _, ok := e.(dims.Ellipsis); ok {
			if ellipsisSeen {
				return dims.Spec{}, p.errorf(tok, "second ellipsis, at most one is allowed,")
			}
			ellipsisSeen = true
		}
		exprs = append(exprs, e)

		tok = p.advance()
		switch tok.kind {
		case tokComma:
			continue
		case tokEOF:
			return dims.NewSpec(p.text, exprs...)
		default:
			return dims.Spec{}, p.errorf(tok, "expected ',' or end of template, got %s", tok)
		}
	}
}

// parseDim parses one slot: ellipsis, wildcard or an expression.
func (p *parser) parseDim() (dims.Expr, error) {
	tok := p.current()
	endOfDim := func() bool {
		next := p.peek(1).kind
		return next == tokComma || next == tokEOF
	}
	switch {
	case tok.kind == tokEllipsis:
		p.advance()
		return dims.Ellipsis{}, nil
	case tok.kind == tokStar, tok.kind == tokName && tok.text == "_":
		if !endOfDim() {
			return nil, p.errorf(p.peek(1), "wildcard %q must be a dimension by itself, got %s after it", tok.text, p.peek(1))
		}
		p.advance()
		return dims.Wildcard{}, nil
	}
	return p.parseExpr()
}

// parseExpr: term {("+"|"-") term}
func (p *parser) parseExpr() (dims.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op dims.Op
		switch p.current().kind {
		case tokPlus:
			op = dims.OpAdd
		case tokMinus:
			op = dims.OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = dims.BinaryOp{Op: op, Left: left, Right: right}
	}
}

// parseTerm: factor {("*"|"/") factor}
func (p *parser) parseTerm() (dims.Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		var op dims.Op
		switch p.current().kind {
		case tokStar:
			op = dims.OpMul
		case tokSlash:
			op = dims.OpDiv
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = dims.BinaryOp{Op: op, Left: left, Right: right}
	}
}

// parseFactor: INT | NAME | "?" NAME | "(" expr ")"
func (p *parser) parseFactor() (dims.Expr, error) {
	tok := p.advance()
	switch tok.kind {
	case tokInt:
		value, err := strconv.Atoi(tok.text)
		if err != nil {
			return nil, p.errorf(tok, "invalid dimension %q", tok.text)
		}
		return dims.Number{Value: value}, nil
	case tokName:
		if tok.text == "_" {
			return nil, p.errorf(tok, "wildcard '_' can't be used in arithmetic")
		}
		return dims.Name{Name: tok.text}, nil
	case tokQuestion:
		name := p.advance()
		if name.kind != tokName || name.text == "_" {
			return nil, p.errorf(name, "expected a name after '?', got %s", name)
		}
		return dims.DynamicName{Name: name.text}, nil
	case tokLParen:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')', got %s", closing)
		}
		return e, nil
	case tokStar, tokEllipsis:
		return nil, p.errorf(tok, "%s can't be used in arithmetic", tok)
	}
	return nil, p.errorf(tok, "expected a dimension, got %s", tok)
}
