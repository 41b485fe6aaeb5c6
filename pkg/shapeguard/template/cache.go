// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package template

import (
	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"github.com/gomlx/shapeguard/pkg/support/xsync"
)

// Cache memoizes parsed templates. It is safe for concurrent use.
//
// Checks are often issued in loops with the same handful of templates, so every Guard parses
// through a Cache. Only successful parses are cached.
type Cache struct {
	specs xsync.Memo[string, dims.Spec]
}

// NewCache returns an empty Cache.
func NewCache() *Cache { return &Cache{} }

var defaultCache = NewCache()

// DefaultCache returns the process-wide Cache.
func DefaultCache() *Cache { return defaultCache }

// Parse returns the Spec for text, parsing it only the first time.
func (c *Cache) Parse(text string) (dims.Spec, error) {
	return c.specs.Get(text, func() (dims.Spec, error) { return Parse(text) })
}

// Len returns the number of cached templates.
func (c *Cache) Len() int { return c.specs.Len() }

// Reset drops all cached templates.
func (c *Cache) Reset() { c.specs.Clear() }
