// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/graph/graphtest"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// Aliases:

	MakeShape = shapes.Make
	F32       = dtypes.Float32
	F64       = dtypes.Float64

	Epsilon = 1e-4
)

func TestConstant(t *testing.T) {
	g := NewGraph("constants")
	n := Const(g, [][]float32{{1.2, 1.3}, {2.4, 2.5}, {2.6, 2.7}})
	assert.True(t, n.Shape().Equal(MakeShape(F32, 3, 2)))
	assert.Equal(t, NodeTypeConstant, n.Type())

	s1 := Scalar(g, F32, 0.5)
	s2 := Scalar(g, F32, 0.5)
	require.Same(t, s1, s2)
	require.NotSame(t, s1, Scalar(g, F64, 0.5))
	require.True(t, s1.IsScalar())

	zeros := ZerosLike(n)
	require.True(t, zeros.Shape().Equal(n.Shape()))
	require.Panics(t, func() { _ = Const(g, []int{1, 2}) })
}

func TestArithmetic(t *testing.T) {
	graphtest.RunTestGraphFn(t, "Element-wise", func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, []float32{1, 4, 9})
		inputs = []*Node{x}
		outputs = []*Node{
			Add(x, x),
			Sub(x, ScalarOne(g, F32)),
			Mul(x, x),
			DivScalar(x, 2),
			Sqrt(x),
			Abs(Neg(x)),
			Square(x),
			OneMinus(x),
			Inverse(x),
			Max(x, Scalar(g, F32, 4)),
			Min(x, Scalar(g, F32, 4)),
			ClipScalar(x, 2, 5),
			MulScalar(x, 3),
			AddScalar(x, -1),
			Relu(Const(g, []float32{-1, 2})),
		}
		return
	}, []any{
		[]float32{2, 8, 18},
		[]float32{0, 3, 8},
		[]float32{1, 16, 81},
		[]float32{0.5, 2, 4.5},
		[]float32{1, 2, 3},
		[]float32{1, 4, 9},
		[]float32{1, 16, 81},
		[]float32{0, -3, -8},
		[]float32{1, 0.25, 1.0 / 9.0},
		[]float32{4, 4, 9},
		[]float32{1, 4, 4},
		[]float32{2, 4, 5},
		[]float32{3, 12, 27},
		[]float32{0, 3, 8},
		[]float32{0, 2},
	}, Epsilon)

	graphtest.RunTestGraphFn(t, "Reductions", func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, [][]float64{{1, 4}, {9, 0}})
		inputs = []*Node{x}
		outputs = []*Node{ReduceAllSum(x), L2Norm(x)}
		return
	}, []any{14.0, math.Sqrt(98)}, Epsilon)
}

func TestLayerMath(t *testing.T) {
	graphtest.RunTestGraphFn(t, "MatMul+AddBias", func(g *Graph) (inputs, outputs []*Node) {
		a := Const(g, [][]float32{{1, 2}, {3, 4}})
		b := Const(g, [][]float32{{1, 0, 1}, {0, 1, 1}})
		bias := Const(g, []float32{1, 1, 1})
		inputs = []*Node{a, b}
		product := MatMul(a, b)
		outputs = []*Node{product, AddBias(product, bias), Reshape(a, 4)}
		return
	}, []any{
		[][]float32{{1, 2, 3}, {3, 4, 7}},
		[][]float32{{2, 3, 4}, {4, 5, 8}},
		[]float32{1, 2, 3, 4},
	}, 0)
}

func TestShapeChecks(t *testing.T) {
	g := NewGraph("checks")
	x := Const(g, []float32{1, 2, 3})
	require.Panics(t, func() { _ = Add(x, Const(g, []float32{1, 2})) })
	require.Panics(t, func() { _ = Add(x, Const(g, []float64{1, 2, 3})) })
	require.Panics(t, func() { _ = MatMul(x, x) })
	require.Panics(t, func() { _ = Reshape(x, 2) })
	require.Panics(t, func() { _ = AddBias(Const(g, [][]float32{{1, 2}}), x) })

	// Scalars are broadcast.
	require.NotPanics(t, func() { _ = Add(Scalar(g, F32, 1), x) })

	// Nodes from different graphs can't be mixed.
	g2 := NewGraph("other")
	require.Panics(t, func() { _ = Add(x, Const(g2, []float32{1, 2, 3})) })

	// Side effect nodes have no value.
	v := g.Variable("v", MakeShape(F32, 3))
	assign := Assign(v, x)
	require.False(t, assign.Shape().Ok())
	require.Panics(t, func() { _ = Add(assign, x) })
	require.Panics(t, func() { _ = Assign(v, Const(g, []float32{1, 2})) })
}

func TestParameter(t *testing.T) {
	g := NewGraph("parameters")
	p := Parameter(g, "x", MakeShape(F32, shapes.UnknownDim, 2))
	require.Equal(t, "x", p.GetParameterName())
	require.Same(t, p, g.GetParameterByName("x"))
	require.Panics(t, func() { _ = Parameter(g, "x", MakeShape(F32, 2)) })

	w := Const(g, [][]float32{{1}, {2}})
	y := MatMul(p, w)
	require.Equal(t, []int{shapes.UnknownDim, 1}, y.Shape().Dimensions)

	outputs, err := g.Run(ParamsMap{p: [][]float32{{1, 1}, {2, 0}, {0, 3}}}, y)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{3}, {2}, {6}}, outputs[0].Value())

	_, err = g.Run(ParamsMap{p: [][]float32{{1, 1, 1}}}, y)
	require.Error(t, err)
	_, err = g.Run(nil, y)
	require.Error(t, err)
}

func TestNamesAndAliases(t *testing.T) {
	g := NewGraph("names")
	a := Const(g, float32(1)).WithName("one")
	b := Const(g, float32(1)).WithName("one")
	assert.Equal(t, "one", a.Name())
	assert.Equal(t, "one_1", b.Name())
	assert.Same(t, b, g.GetNodeByName("one_1"))

	g.PushAliasScope("adam")
	g.PushAliasScope("kernel")
	a.WithAlias("m")
	require.Panics(t, func() { b.WithAlias("m") })
	g.PopAliasScope()
	b.WithAlias("v")
	g.PopAliasScope()
	require.Panics(t, g.PopAliasScope)

	assert.Equal(t, "/adam/kernel/m", a.GetAlias())
	assert.Same(t, a, g.GetNodeByAlias("/adam/kernel/m"))
	assert.Same(t, b, g.GetNodeByAlias("adam/v"))
	var aliases []string
	for alias := range g.IterAliasedNodes() {
		aliases = append(aliases, alias)
	}
	assert.Equal(t, []string{"/adam/kernel/m", "/adam/v"}, aliases)
}
