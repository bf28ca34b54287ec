// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package initializer

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runInitializer(t *testing.T, initFn Initializer, shape shapes.Shape) []float64 {
	g := NewGraph(t.Name())
	v := g.Variable("v", shape)
	g.Registry().AddVariableInitializer(Assign(v, initFn(g, shape)))
	require.NoError(t, g.InitializeVariables())
	return v.Value().Flat()
}

func TestConstantInitializers(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 2, 2)
	assert.Equal(t, []float64{0, 0, 0, 0}, runInitializer(t, Zero, shape))
	assert.Equal(t, []float64{1, 1, 1, 1}, runInitializer(t, One, shape))
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, runInitializer(t, Constant(0.5), shape))
}

func TestGlorotUniform(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 4, 6)
	values := runInitializer(t, GlorotUniform(NewRand(42)), shape)
	limit := math.Sqrt(6.0 / 10.0)
	var nonZero int
	for _, v := range values {
		require.LessOrEqual(t, math.Abs(v), limit+1e-6)
		if v != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, 0)

	// Same seed, same values.
	assert.Equal(t, values, runInitializer(t, GlorotUniform(NewRand(42)), shape))

	// Biases are zero.
	assert.Equal(t, []float64{0, 0, 0}, runInitializer(t, GlorotUniform(NewRand(42)), shapes.Make(dtypes.Float32, 3)))
}

func TestFanInFanOut(t *testing.T) {
	fanIn, fanOut := computeFanInFanOut(shapes.Make(dtypes.Float32, 3, 3, 4, 8))
	assert.Equal(t, 36, fanIn)
	assert.Equal(t, 72, fanOut)
	fanIn, _ = computeFanInFanOut(shapes.Make(dtypes.Float32, 5, 2))
	assert.Equal(t, 5, fanIn)
}
