// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemo(t *testing.T) {
	var m Memo[string, int]
	calls := 0
	atoi := func(key string) func() (int, error) {
		return func() (int, error) {
			calls++
			return strconv.Atoi(key)
		}
	}

	v, err := m.Get("12", atoi("12"))
	require.NoError(t, err)
	require.Equal(t, 12, v)
	v, err = m.Get("12", atoi("12"))
	require.NoError(t, err)
	require.Equal(t, 12, v)
	require.Equal(t, 1, calls)

	// Errors are not memoized.
	_, err = m.Get("x", atoi("x"))
	require.Error(t, err)
	_, err = m.Get("x", func() (int, error) { return 0, errors.New("still failing") })
	require.Error(t, err)
	require.Equal(t, 1, m.Len())

	m.Clear()
	require.Equal(t, 0, m.Len())
}

func TestMemoConcurrent(t *testing.T) {
	var m Memo[int, int]
	var wg sync.WaitGroup
	for ii := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.Get(ii%10, func() (int, error) { return ii % 10, nil })
			assert.NoError(t, err)
			assert.Equal(t, ii%10, v)
		}()
	}
	wg.Wait()
	require.Equal(t, 10, m.Len())
}
