// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromValue(t *testing.T) {
	tensor := FromValue([][]float32{{0, 0}, {1, 1}, {2, 2}})
	require.True(t, shapes.Make(dtypes.Float32, 3, 2).Equal(tensor.Shape()))
	require.Equal(t, []float64{0, 0, 1, 1, 2, 2}, tensor.Flat())
	require.Equal(t, [][]float32{{0, 0}, {1, 1}, {2, 2}}, tensor.Value())

	tensor = FromValue([][][]float64{{{1}}})
	require.True(t, shapes.Make(dtypes.Float64, 1, 1, 1).Equal(tensor.Shape()))

	tensor = FromValue(float32(7))
	require.True(t, tensor.Shape().IsScalar())
	require.Equal(t, float32(7), tensor.Value())

	tensor = FromValue([]float16.Float16{float16.Fromfloat32(0.5)})
	require.Equal(t, dtypes.Float16, tensor.DType())
	require.Equal(t, []float32{0.5}, tensor.Value())

	require.Panics(t, func() { _ = FromValue([]int{1, 2}) })
	require.Panics(t, func() { _ = FromValue([][]float32{{1, 2}, {3}}) })

	// Tensors are returned as is.
	require.Same(t, tensor, FromValue(tensor))
}

func TestRounding(t *testing.T) {
	// 0.1 is not representable: Float32 tensors hold the float32 rounding of it.
	tensor := FromFlatDataAndDimensions([]float64{0.1}, 1)
	assert.Equal(t, 0.1, tensor.Flat()[0])

	tensor32 := FromFlatData(shapes.Make(dtypes.Float32, 1), []float64{0.1})
	assert.Equal(t, float64(float32(0.1)), tensor32.Flat()[0])

	tensor16 := FromScalar(dtypes.Float16, 0.1)
	assert.Equal(t, float64(float16.Fromfloat32(0.1).Float32()), tensor16.Flat()[0])

	doubled := tensor32.Map(func(x float64) float64 { return x * 3 })
	assert.Equal(t, float64(float32(0.1)*3), doubled.Flat()[0])
}

func TestFromScalarAndDimensions(t *testing.T) {
	tensor := FromScalarAndDimensions(float32(2), 2, 2)
	require.Equal(t, [][]float32{{2, 2}, {2, 2}}, tensor.Value())
	tensor.Fill(3)
	require.Equal(t, []float64{3, 3, 3, 3}, tensor.Flat())
	clone := tensor.Clone()
	clone.Fill(1)
	require.Equal(t, []float64{3, 3, 3, 3}, tensor.Flat())
}

func TestFromBytes(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw, math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(-2))
	tensor, err := FromBytes(shapes.Make(dtypes.Float32, 2), raw)
	require.NoError(t, err)
	require.Equal(t, []float32{1.5, -2}, tensor.Value())

	_, err = FromBytes(shapes.Make(dtypes.Float64, 2), raw)
	require.Error(t, err)

	raw16 := make([]byte, 2)
	binary.LittleEndian.PutUint16(raw16, float16.Fromfloat32(0.25).Bits())
	tensor, err = FromBytes(shapes.Make(dtypes.Float16), raw16)
	require.NoError(t, err)
	require.Equal(t, float32(0.25), tensor.Value())
}

func TestInDelta(t *testing.T) {
	a := FromValue([]float64{1, 2})
	b := FromValue([]float64{1.001, 2})
	assert.True(t, a.InDelta(b, 1e-2))
	assert.False(t, a.InDelta(b, 1e-4))
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(a.Clone()))
	assert.False(t, a.InDelta(FromValue([]float32{1, 2}), 1))
	assert.Equal(t, "(Float64)[2]: [1 2]", a.String())
}
