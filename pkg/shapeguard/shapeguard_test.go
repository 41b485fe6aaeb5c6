// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeguard

import (
	"context"
	"errors"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/shapeguard/pkg/core/shapes"
	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shapeerr"
	"github.com/gomlx/shapeguard/pkg/shapeguard/shims"
	"github.com/gomlx/shapeguard/pkg/shapeguard/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{1, 2}, "A,B"))
	assert.Equal(t, dims.Bindings{"A": 1, "B": 2}, sg.Current().Dims())
	assert.Empty(t, sg.Current().Params())
	assert.Same(t, sg.Base(), sg.Current())

	// Idempotence.
	require.NoError(t, sg.Check([]int{1, 2}, "A,B"))
	assert.Equal(t, dims.Bindings{"A": 1, "B": 2}, sg.Dims())

	// Consistency.
	err := sg.Check([]int{1, 3}, "A,B")
	require.ErrorIs(t, err, shapeerr.ShapeMismatch)
	assert.Equal(t, dims.Bindings{"A": 1, "B": 2}, sg.Dims())
	err = sg.Check([]int{1, 2, 3}, "A,B")
	require.ErrorIs(t, err, shapeerr.RankMismatch)

	size, found := sg.Base().Get("B")
	assert.True(t, found)
	assert.Equal(t, 2, size)
	_, found = sg.Base().Get("C")
	assert.False(t, found)
}

func TestNegativeSizes(t *testing.T) {
	sg := NewInterface()
	err := sg.Check([]int{-2, 3}, "A,B")
	require.ErrorIs(t, err, shapeerr.AdapterType)
	assert.Empty(t, sg.Dims())
	_, err = sg.Matches([]int{2, -1}, "A,B")
	require.ErrorIs(t, err, shapeerr.AdapterType)

	require.ErrorIs(t, sg.Base().Update(dims.Bindings{"D": dims.Unknown}), shapeerr.Other)
	_, found := sg.Base().Get("D")
	assert.False(t, found)
	_, err = sg.Evaluate("D", dims.Bindings{"D": -3})
	require.ErrorIs(t, err, shapeerr.Other)

	// D stays unbound, so it is inferred by the next check.
	require.NoError(t, sg.Check([]int{5}, "D"))
	assert.Equal(t, dims.Bindings{"D": 5}, sg.Dims())
}

func TestStandaloneGuard(t *testing.T) {
	g := NewGuard()
	assert.Contains(t, g.String(), "standalone")
	require.NoError(t, g.Check([]int{4, 8}, "Batch,hidden"))
	require.NoError(t, g.CheckAll([]any{[]int{4}, []int{8, 2}}, "Batch", "hidden,_"))
	assert.Equal(t, dims.Bindings{"Batch": 4, "hidden": 8}, g.Dims())

	// Not connected to any Interface.
	other := NewInterface()
	require.NoError(t, other.Check([]int{1}, "Batch"))
	require.ErrorIs(t, g.Check([]int{1}, "Batch"), shapeerr.ShapeMismatch)

	reshaped, err := g.Reshape([]int{32}, "Batch,hidden")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, reshaped)
}

func TestCheckExamples(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{2, 3, 4, 5}, "N,...,C"))
	assert.Equal(t, dims.Bindings{"N": 2, "C": 5}, sg.Dims())

	sg.Reset()
	require.NoError(t, sg.Check([]int{2, 3, 5}, "A,B,A+B"))
	sg.Reset()
	require.ErrorIs(t, sg.Check([]int{2, 3, 6}, "A,B,A+B"), shapeerr.ShapeMismatch)
	assert.Empty(t, sg.Dims())

	// Values of the different kinds.
	sg.Reset()
	require.NoError(t, sg.Check([][]float32{{1, 2, 3}, {4, 5, 6}}, "Rows,Cols"))
	require.NoError(t, sg.Check(shapes.Make(dtypes.Float64, 3, 2), "Cols,Rows"))
	require.NoError(t, sg.Check(float32(7), ""))
	err := sg.Check("some string", "N")
	require.ErrorIs(t, err, shapeerr.AdapterType)
	err = sg.Check([]int{1}, "N,,")
	require.ErrorIs(t, err, shapeerr.Syntax)
}

func TestThrowawayNames(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{4, 3, 4}, "_x,C,_x"))
	assert.Equal(t, dims.Bindings{"C": 3}, sg.Dims())
	require.Error(t, sg.Check([]int{4, 3, 5}, "_x,C,_x"))

	require.NoError(t, sg.Current().Update(dims.Bindings{"_y": 1, "D": 2}))
	assert.Equal(t, dims.Bindings{"C": 3, "D": 2}, sg.Dims())
	require.ErrorIs(t, sg.Current().Update(dims.Bindings{"D": 3}), shapeerr.Inference)
}

func TestFork(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.WithFork(Params{"foo": 1}, func(fork *Guard) error {
		require.NoError(t, sg.Check([]int{1, 2}, "a,b"))
		assert.Same(t, fork, sg.Current())
		assert.Equal(t, dims.Bindings{"a": 1, "b": 2}, sg.Dims())
		assert.Equal(t, Params{"foo": 1}, sg.Current().Params())
		return nil
	}))
	require.NoError(t, sg.WithFork(Params{"foo": 2}, func(fork *Guard) error {
		require.NoError(t, sg.Check([]int{3, 4}, "a,b"))
		assert.Equal(t, dims.Bindings{"a": 3, "b": 4}, sg.Dims())
		assert.Equal(t, Params{"foo": 2}, fork.Params())
		return nil
	}))
	assert.Empty(t, sg.Dims())
	assert.Same(t, sg.Base(), sg.Current())

	// Equal params alias the same fork, which keeps its store.
	fork1, exit1 := sg.Fork(Params{"foo": 1, "bar": "x"})
	require.NoError(t, sg.Check([]int{5}, "c"))
	exit1()
	fork2, exit2 := sg.Fork(Params{"bar": "x", "foo": 1})
	assert.Same(t, fork1, fork2)
	assert.Equal(t, dims.Bindings{"c": 5}, sg.Dims())
	exit2()
	fork3, exit3 := sg.Fork(Params{"bar": "x", "foo": "1"})
	assert.NotSame(t, fork1, fork3)
	exit3()

	// Errors are returned from WithFork, after exiting.
	err := sg.WithFork(Params{"foo": 1}, func(*Guard) error { return sg.Check([]int{6}, "a") })
	require.ErrorIs(t, err, shapeerr.ShapeMismatch)
	assert.Same(t, sg.Base(), sg.Current())
}

func TestBasePropagatesToFork(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{1, 2}, "A,B"))
	_, exit := sg.Fork(Params{"foo": 1})
	require.NoError(t, sg.Check([]int{3, 4, 1, 2}, "a,b,A,B"))
	assert.Equal(t, dims.Bindings{"a": 3, "b": 4, "A": 1, "B": 2}, sg.Dims())
	require.ErrorIs(t, sg.Check([]int{7}, "A"), shapeerr.ShapeMismatch)
	exit()
}

func TestForkPropagatesToBase(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{1, 2}, "A,B"))
	require.NoError(t, sg.WithFork(Params{"foo": 1}, func(*Guard) error {
		return sg.Check([]int{3, 4, 1, 2}, "C,d,A,B")
	}))
	assert.Equal(t, dims.Bindings{"C": 3, "A": 1, "B": 2}, sg.Dims())
}

func TestForkCheckoutFreshness(t *testing.T) {
	sg := NewInterface()
	fork, exit := sg.Fork(Params{"layer": "dense"})
	require.NoError(t, sg.Check([]int{2}, "x"))
	exit()

	require.NoError(t, sg.Check([]int{5}, "X"))
	_, exit = sg.Fork(Params{"layer": "dense"})
	got, found := fork.Get("X")
	assert.True(t, found)
	assert.Equal(t, 5, got)
	assert.Equal(t, dims.Bindings{"x": 2, "X": 5}, fork.Dims())
	exit()
}

func TestNestedForks(t *testing.T) {
	sg := NewInterface()
	outer, exitOuter := sg.Fork(Params{"block": 1})
	require.NoError(t, sg.Check([]int{8}, "o"))
	inner, exitInner := sg.Fork(Params{"block": 1, "layer": 2})
	assert.Same(t, inner, sg.Current())
	require.NoError(t, sg.Check([]int{3, 4}, "Hidden,i"))
	exitInner()

	// The outer fork is current again, and was refreshed from the base.
	assert.Same(t, outer, sg.Current())
	assert.Equal(t, dims.Bindings{"o": 8, "Hidden": 3}, sg.Dims())
	exitOuter()
	assert.Equal(t, dims.Bindings{"Hidden": 3}, sg.Dims())

	// Out of order and double exits are tolerated.
	_, exitA := sg.Fork(Params{"a": 1})
	_, exitB := sg.Fork(Params{"b": 1})
	exitA()
	exitB()
	exitB()
	assert.Same(t, sg.Base(), sg.Current())

	// Exiting after a Reset is ignored.
	_, exitC := sg.Fork(Params{"c": 1})
	sg.Reset()
	exitC()
	assert.Same(t, sg.Base(), sg.Current())
	assert.Empty(t, sg.Dims())
}

func TestEmptyParamsFork(t *testing.T) {
	sg := NewInterface()
	fork1, exit1 := sg.Fork(nil)
	require.NoError(t, sg.Check([]int{2}, "x"))
	exit1()
	fork2, exit2 := sg.Fork(Params{})
	assert.NotSame(t, fork1, fork2)
	assert.Empty(t, fork2.Dims())
	exit2()
}

func TestThrowaway(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{2}, "A"))
	throwaway := sg.Throwaway()
	assert.NotSame(t, throwaway, sg.Throwaway())
	require.NoError(t, throwaway.Check([]int{3}, "A"))
	assert.Equal(t, dims.Bindings{"A": 3}, throwaway.Dims())
	assert.Equal(t, dims.Bindings{"A": 2}, sg.Dims())
}

func TestNoop(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{5}, "A"))
	sg.WithNoop(func() {
		require.NoError(t, sg.Check([]int{1, 2}, "A,B"))
		require.NoError(t, sg.Check([]int{1, 2}, "((("))
		require.NoError(t, sg.Check("not a tensor", "A"))
		require.NoError(t, sg.CheckAll(nil, "A"))
		require.NoError(t, sg.Current().Check([]int{3}, "B"))

		// Noop scopes nest.
		exit := sg.Noop()
		exit()
		exit()
		require.NoError(t, sg.Check([]int{1, 2}, "A,B"))

		// Non-asserting operations still work.
		ok, err := sg.Matches([]int{5}, "A")
		require.NoError(t, err)
		assert.True(t, ok)
	})
	assert.Equal(t, dims.Bindings{"A": 5}, sg.Dims())
	require.Error(t, sg.Check([]int{1, 2}, "A,B"))
}

func TestCheckAll(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.CheckAll([]any{[]int{2, 3}, []int{2, 3}}, "N,C"))
	require.NoError(t, sg.CheckAll([]any{[]int{2, 3}, []int{3, 4}}, "N,C", "C,D"))
	assert.Equal(t, dims.Bindings{"N": 2, "C": 3, "D": 4}, sg.Dims())

	err := sg.CheckAll([]any{[]int{2, 3}, []int{2, 4}}, "N,C")
	require.ErrorIs(t, err, shapeerr.ShapeMismatch)
	require.Contains(t, err.Error(), "value #1 of 2")

	require.Error(t, sg.CheckAll(nil, "N"))
	require.Error(t, sg.CheckAll([]any{[]int{2}, []int{3}, []int{4}}, "A", "B"))

	// Sequence form of Check.
	require.NoError(t, sg.Check([][]int{{2, 3}, {3}}, "N,C", "C"))
	require.Error(t, sg.Check([]int{2, 3}, "N", "C"))
	require.Error(t, sg.Check([]int{2, 3}))
}

func TestMatches(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{2}, "A"))
	for _, tc := range []struct {
		shape []int
		tmpl  string
		want  bool
	}{
		{[]int{2, 3}, "A,B", true},
		{[]int{3, 3}, "A,B", false},
		{[]int{2}, "A,B", false},
		{[]int{2, 4}, "A,A+2", true},
		{[]int{5, 5}, "B,B", true},
		{[]int{5, 6}, "B,B", false},
	} {
		got, err := sg.Matches(tc.shape, tc.tmpl)
		require.NoError(t, err, tc.tmpl)
		assert.Equal(t, tc.want, got, "%v ~ %q", tc.shape, tc.tmpl)
	}
	assert.Equal(t, dims.Bindings{"A": 2}, sg.Dims())

	_, err := sg.Matches([]int{3}, "A/0")
	require.ErrorIs(t, err, shapeerr.Arithmetic)
}

func TestReshape(t *testing.T) {
	sg := NewInterface()
	images := [][][]float32{{{1, 2}, {3, 4}, {5, 6}}}
	require.NoError(t, sg.Check(images, "Batch,H,W"))

	flat, err := sg.Reshape(images, "Batch,H*W")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3, 4, 5, 6}}, flat)

	flat, err = sg.Reshape(images, "?all")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, flat)

	_, err = sg.Reshape(images, "Batch,*")
	require.ErrorIs(t, err, shapeerr.UnboundDimension)
	_, err = sg.Reshape(images, "Batch,K")
	require.ErrorIs(t, err, shapeerr.UnboundDimension)
	_, err = sg.Reshape(images, "Batch,H")
	require.ErrorIs(t, err, shapeerr.ShapeMismatch)
}

func TestEvaluate(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{4, 6}, "N,H"))
	sizes, err := sg.Evaluate("N,H/2,W,?d", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, dims.Unknown, dims.Unknown}, sizes)

	sizes, err = sg.Evaluate("N,H/2,W", dims.Bindings{"N": 1, "W": 7})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 7}, sizes)
	assert.Equal(t, dims.Bindings{"N": 4, "H": 6}, sg.Dims())
}

func TestCheckAt(t *testing.T) {
	sg := NewInterface()
	require.NoError(t, sg.Check([]int{2}, "A"))
	err := sg.CheckAt("model.go:42", []int{3}, "A")
	require.ErrorIs(t, err, shapeerr.ShapeMismatch)
	var sgErr *shapeerr.Error
	require.True(t, errors.As(err, &sgErr))
	assert.Equal(t, "model.go:42", sgErr.Location)
	require.NoError(t, sg.CheckAt("model.go:43", []int{2}, "A"))

	// The index of the failing value is kept with several templates.
	err = sg.CheckAt("model.go:44", [][]int{{2}, {3}}, "A", "A")
	require.ErrorIs(t, err, shapeerr.ShapeMismatch)
	assert.Contains(t, err.Error(), "at model.go:44")
	assert.Contains(t, err.Error(), "value #1 of 2")
}

func TestConfiguration(t *testing.T) {
	registry := shims.NewRegistry()
	shims.RegisterType[[]int](registry, shims.Funcs{
		ShapeFn: func(value any) ([]int, error) { return []int{len(value.([]int))}, nil },
	})
	cache := template.NewCache()
	sg := NewInterface().WithAdapters(registry).WithCache(cache)

	// With the custom adapter, a []int is a vector, not a shape.
	require.NoError(t, sg.Check([]int{7, 7, 7}, "N"))
	assert.Equal(t, dims.Bindings{"N": 3}, sg.Dims())
	assert.Equal(t, 1, cache.Len())
	require.ErrorIs(t, sg.Check([]float32{1}, "N"), shapeerr.AdapterType)
}

func TestDefaultAndContext(t *testing.T) {
	sg := NewInterface()
	restore := Install(sg)
	require.Same(t, sg, Default())

	ctx := context.Background()
	assert.Same(t, sg, FromContext(ctx))
	other := NewInterface()
	assert.Same(t, other, FromContext(NewContext(ctx, other)))

	assert.Equal(t, []int{2, 3}, Assert([]int{2, 3}, "A,B"))
	require.NoError(t, Check([]int{2}, "A"))
	assert.Equal(t, dims.Bindings{"A": 2, "B": 3}, Dims())
	ok, err := Matches([]int{2, 4}, "A,B")
	require.NoError(t, err)
	assert.False(t, ok)
	sizes, err := Evaluate("B,A", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, sizes)
	reshaped, err := Reshape([]int{6}, "A,B")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, reshaped)

	err = exceptions.TryCatch[error](func() { Assert([]int{2, 4}, "A,B") })
	require.ErrorIs(t, err, shapeerr.ShapeMismatch)
	err = exceptions.TryCatch[error](func() { AssertAt("train.go:7", []int{5}, "B") })
	require.ErrorIs(t, err, shapeerr.ShapeMismatch)
	require.Contains(t, err.Error(), "train.go:7")
	assert.Empty(t, other.Dims())

	restore()
	assert.NotSame(t, sg, Default())
}

func TestParamsKey(t *testing.T) {
	assert.Equal(t, "", Params(nil).Key())
	assert.Equal(t, `a=1,b="x"`, Params{"b": "x", "a": 1}.Key())
	assert.NotEqual(t, Params{"a": 1, "b": 2}.Key(), Params{"a": 2, "b": 1}.Key())
}

func TestDisableEnv(t *testing.T) {
	resetDefault := func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		defaultInterface = nil
	}
	resetDefault()
	t.Cleanup(resetDefault)

	t.Setenv(DisableEnv, "true")
	require.True(t, Default().noopActive())
	require.NoError(t, Check([]int{2, 3}, "A"), "checks are pass-throughs while disabled")
	assert.Empty(t, Dims())

	resetDefault()
	t.Setenv(DisableEnv, "0")
	require.False(t, Default().noopActive())
	require.Error(t, Check([]int{2, 3}, "A"))
}
