// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "_c"}, SortedKeys(map[string]int{"_c": 3, "B": 2, "A": 1}))
	assert.Empty(t, SortedKeys(map[string]int(nil)))
}

func TestProduct(t *testing.T) {
	assert.Equal(t, 24, Product([]int{2, 3, 4}))
	assert.Equal(t, int64(1), Product([]int64{}))
	assert.Equal(t, 0, Product([]int{5, 0}))
}

func TestConvert(t *testing.T) {
	assert.Equal(t, []int32{1, 2}, Convert[int32]([]int{1, 2}))
	assert.Equal(t, []int{7}, Convert[int]([]int64{7}))
}
