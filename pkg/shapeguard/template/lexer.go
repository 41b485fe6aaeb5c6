// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package template

import (
	"fmt"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokInt
	tokName
	tokEllipsis // ...
	tokQuestion // ?
	tokStar     // *
	tokPlus     // +
	tokMinus    // -
	tokSlash    // /
	tokComma    // ,
	tokLParen   // (
	tokRParen   // )
)

var tokenNames = [...]string{
	tokEOF:      "end of template",
	tokInt:      "integer",
	tokName:     "name",
	tokEllipsis: "'...'",
	tokQuestion: "'?'",
	tokStar:     "'*'",
	tokPlus:     "'+'",
	tokMinus:    "'-'",
	tokSlash:    "'/'",
	tokComma:    "','",
	tokLParen:   "'('",
	tokRParen:   "')'",
}

func (k tokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type token struct {
	kind tokenKind
	text string
	pos  int // Byte offset in the template.
}

func (t token) String() string {
	switch t.kind {
	case tokInt, tokName:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	}
	return t.kind.String()
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// tokenize splits the template into tokens, the last one always being tokEOF.
// It returns the offset of the first invalid character, or -1 if all were valid.
func tokenize(text string) (tokens []token, badPos int) {
	pos := 0
	for pos < len(text) {
		c := text[pos]
		start := pos
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			pos++
			continue
		case isDigit(c):
			for pos < len(text) && isDigit(text[pos]) {
				pos++
			}
			tokens = append(tokens, token{kind: tokInt, text: text[start:pos], pos: start})
			continue
		case isNameStart(c):
			for pos < len(text) && (isNameStart(text[pos]) || isDigit(text[pos])) {
				pos++
			}
			tokens = append(tokens, token{kind: tokName, text: text[start:pos], pos: start})
			continue
		case c == '.':
			if len(text)-pos < 3 || text[pos:pos+3] != "..." {
				return nil, pos
			}
			pos += 3
			tokens = append(tokens, token{kind: tokEllipsis, text: "...", pos: start})
			continue
		}
		var kind tokenKind
		switch c {
		case '?':
			kind = tokQuestion
		case '*':
			kind = tokStar
		case '+':
			kind = tokPlus
		case '-':
			kind = tokMinus
		case '/':
			kind = tokSlash
		case ',':
			kind = tokComma
		case '(':
			kind = tokLParen
		case ')':
			kind = tokRParen
		default:
			return nil, pos
		}
		pos++
		tokens = append(tokens, token{kind: kind, text: text[start:pos], pos: start})
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(text)})
	return tokens, -1
}
