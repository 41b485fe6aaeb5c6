// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements some extra synchronization tools.
package xsync

import "sync"

// Memo memoizes the successful results of a computation per key. It is safe for concurrent use.
//
// The zero value is ready to use. It should not be copied once it is used.
type Memo[K comparable, V any] struct {
	mu      sync.RWMutex
	results map[K]V
}

// Get returns the memoized result for key, calling compute to create it if there is none.
// Errors are returned and not memoized, so a later Get calls compute again.
//
// compute is called without holding any lock, and concurrent Gets of a new key may call it more than
// once: the first result stored wins, and is the one returned to all callers.
func (m *Memo[K, V]) Get(key K, compute func() (V, error)) (V, error) {
	m.mu.RLock()
	value, found := m.results[key]
	m.mu.RUnlock()
	if found {
		return value, nil
	}
	value, err := compute()
	if err != nil {
		return value, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, found := m.results[key]; found {
		return stored, nil
	}
	if m.results == nil {
		m.results = make(map[K]V)
	}
	m.results[key] = value
	return value, nil
}

// Len returns the number of memoized results.
func (m *Memo[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}

// Clear drops all memoized results.
func (m *Memo[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.results)
}
