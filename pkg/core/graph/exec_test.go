// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"testing"

	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIsAtomic(t *testing.T) {
	g := NewGraph("atomic")
	v := g.Variable("v", MakeShape(F32))
	w := g.Variable("w", MakeShape(F32))
	v.SetValue(tensors.FromValue(float32(1)))
	w.SetValue(tensors.FromValue(float32(10)))

	// w reads the value of v before the execution, even though v is assigned in the same execution.
	incV := Assign(v, AddScalar(v.ValueGraph(), 1))
	accW := Assign(w, Add(w.ValueGraph(), v.ValueGraph()))
	outputs, err := g.Run(nil, incV, accW, v.ValueGraph())
	require.NoError(t, err)
	require.Nil(t, outputs[0])
	require.Nil(t, outputs[1])
	assert.Equal(t, float32(1), outputs[2].Value())
	assert.Equal(t, float32(2), v.Value().Value())
	assert.Equal(t, float32(11), w.Value().Value())

	// Same nodes can be executed again, and see the new values.
	_, err = g.Run(nil, Group(incV, accW))
	require.NoError(t, err)
	assert.Equal(t, float32(3), v.Value().Value())
	assert.Equal(t, float32(13), w.Value().Value())
}

func TestRunFailuresChangeNothing(t *testing.T) {
	g := NewGraph("failures")
	v := g.Variable("v", MakeShape(F32, 2))
	v.SetValue(tensors.FromValue([]float32{1, 2}))
	uninitialized := g.Variable("uninitialized", MakeShape(F32, 2))
	require.False(t, uninitialized.IsInitialized())
	require.Nil(t, uninitialized.Value())

	// Reading an uninitialized variable.
	_, err := g.Run(nil, Assign(v, MulScalar(v.ValueGraph(), 2)), Assign(uninitialized, uninitialized.ValueGraph()))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUninitializedVariable))
	assert.Equal(t, []float32{1, 2}, v.Value().Value())

	// Assigning the same variable twice.
	_, err = g.Run(nil, Assign(v, ZerosLike(v.ValueGraph())), Assign(v, OnesLike(v.ValueGraph())))
	require.ErrorContains(t, err, "assigned more than once")
	assert.Equal(t, []float32{1, 2}, v.Value().Value())

	// Node from another graph.
	g2 := NewGraph("other")
	_, err = g.Run(nil, Const(g2, float32(1)))
	require.Error(t, err)

	// Nil target.
	_, err = g.Run(nil, nil)
	require.Error(t, err)
}

func TestVariables(t *testing.T) {
	g := NewGraph("variables")
	kernel := g.Variable("dense/kernel", MakeShape(F32, 2, 3))
	state := g.Variable("adam/dense/kernel/m", MakeShape(F32, 2, 3)).SetTrainable(false)
	require.Panics(t, func() { _ = g.Variable("dense/kernel", MakeShape(F32, 1)) })
	require.Panics(t, func() { _ = g.Variable("partial", MakeShape(F32, -1, 3)) })
	require.Panics(t, func() { kernel.SetValue(tensors.FromValue([]float32{1, 2})) })

	assert.Equal(t, []*Variable{kernel, state}, g.Variables())
	assert.Equal(t, []*Variable{kernel}, g.TrainableVariables())
	assert.Same(t, state, g.GetVariableByName("adam/dense/kernel/m"))
	assert.Nil(t, g.GetVariableByName("missing"))
	assert.Equal(t, `Variable("dense/kernel", (Float32)[2 3])`, kernel.String())

	// SetValue keeps a copy.
	value := tensors.FromScalarAndDimensions(float32(1), 2, 3)
	kernel.SetValue(value)
	value.Fill(5)
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1}, kernel.Value().Flat())

	assign := Assign(state, kernel.ValueGraph())
	assert.Same(t, state, assign.AssignedVariable())
	assert.Nil(t, kernel.ValueGraph().AssignedVariable())
}
