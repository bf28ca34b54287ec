// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))
	require.Equal(t, "(Float64)", shape0.String())

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 4*4*3*2, int(shape1.Memory()))
	require.Equal(t, 2, shape1.Dim(-1))
	require.Equal(t, "(Float32)[4 3 2]", shape1.String())

	require.Panics(t, func() { _ = Make(dtypes.Float32, 0) })
	require.Panics(t, func() { _ = shape1.Dim(3) })
}

func TestEqualAndCompatible(t *testing.T) {
	a := Make(dtypes.Float32, 2, 3)
	assert.True(t, a.Equal(a.Clone()))
	assert.False(t, a.Equal(Make(dtypes.Float64, 2, 3)))
	assert.True(t, a.EqualDimensions(Make(dtypes.Float64, 2, 3)))

	partial := Make(dtypes.Float32, UnknownDim, 3)
	assert.False(t, partial.IsFullyKnown())
	assert.True(t, partial.Compatible(a))
	assert.True(t, a.Compatible(partial))
	assert.False(t, partial.Compatible(Make(dtypes.Float32, 2, 4)))
	assert.False(t, partial.Compatible(Make(dtypes.Float32, 3)))
	require.Panics(t, func() { _ = partial.Size() })
}

func TestAssertFloat(t *testing.T) {
	require.NotPanics(t, func() { Make(dtypes.Float16, 2).AssertFloat() })
	require.Panics(t, func() { Make(dtypes.Int32, 2).AssertFloat() })
}
