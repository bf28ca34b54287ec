// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

// Package initializer defines the initializers of model variables: functions that build the node
// whose value is assigned to a variable by its initializer operation.
//
// Random initializers draw their values when the graph is built, from the given *rand.Rand, and embed
// them as constants: executing the initializer twice yields the same values. Use a seeded rand.Rand
// (e.g. rand.New(rand.NewPCG(seed, seed))) for reproducible models.
package initializer

import (
	"math"
	"math/rand/v2"

	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
)

// Initializer builds the initial value of a variable of the given shape.
type Initializer func(g *Graph, shape shapes.Shape) *Node

var (
	// Zero initializes variables with zero.
	Zero Initializer = func(graph *Graph, shape shapes.Shape) *Node {
		return Zeros(graph, shape)
	}

	// One initializes variables with one.
	One Initializer = func(graph *Graph, shape shapes.Shape) *Node {
		return Ones(graph, shape)
	}
)

// Constant returns an initializer that fills variables with value.
func Constant(value float64) Initializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		return Fill(g, shape, value)
	}
}

// NewRand returns a *rand.Rand seeded deterministically, to use with the random initializers.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func randomConst(g *Graph, shape shapes.Shape, sample func() float64) *Node {
	t := tensors.FromShape(shape)
	return Const(g, t.Map(func(float64) float64 { return sample() }))
}

// Normal returns an initializer that generates random normal values with the given standard deviation
// and mean set to 0.
func Normal(rng *rand.Rand, stddev float64) Initializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		return randomConst(g, shape, func() float64 { return rng.NormFloat64() * stddev })
	}
}

// Uniform returns an initializer that generates random uniform values from [min, max).
func Uniform(rng *rand.Rand, minValue, maxValue float64) Initializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		return randomConst(g, shape, func() float64 { return minValue + rng.Float64()*(maxValue-minValue) })
	}
}

// GlorotUniform returns a Glorot uniform initializer, also called Xavier uniform initializer, the default
// kernel initializer of Dense layers.
//
// It draws samples from a uniform distribution within `[-limit, limit]`, where
// `limit = sqrt(6 / (fan_in + fan_out))` (`fan_in` is the number of input units in the weight tensor and
// fan_out is the number of output units).
//
// It initializes biases (anything with rank <= 1) to zeros.
func GlorotUniform(rng *rand.Rand) Initializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		if shape.Rank() <= 1 {
			// Zero-bias.
			return Zeros(g, shape)
		}
		fanIn, fanOut := computeFanInFanOut(shape)
		scale := max(1.0, float64(fanIn+fanOut))
		limit := math.Sqrt(6.0 / scale)
		return Uniform(rng, -limit, limit)(g, shape)
	}
}

// He returns the initializer that tries to preserve the variance of 1, calculated for the Relu activation functions.
//
// It initializes biases (anything with rank <= 1) to zeros.
func He(rng *rand.Rand) Initializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		if shape.Rank() <= 1 {
			// Zero-bias.
			return Zeros(g, shape)
		}
		fanIn, _ := computeFanInFanOut(shape)
		scale := max(1.0, float64(fanIn))
		return Normal(rng, math.Sqrt(2.0/scale))(g, shape)
	}
}

// computeFanInFanOut of a variable expected to be the parameters of a layers.Dense.
func computeFanInFanOut(shape shapes.Shape) (fanIn, fanOut int) {
	rank := shape.Rank()
	switch rank {
	case 0: // Scalar.
		fanIn = 1
		fanOut = fanIn
	case 1: // 1D shape, like a bias term in a dense layer.
		fanIn = 0
		fanOut = fanIn
	case 2: // 2D shape, weights of a dense layer.
		fanIn = shape.Dimensions[0]
		fanOut = shape.Dimensions[1]
	default:
		receptiveFieldSize := 1
		for _, dim := range shape.Dimensions[:rank-2] {
			receptiveFieldSize *= dim
		}
		fanIn = shape.Dimensions[rank-2] * receptiveFieldSize
		fanOut = shape.Dimensions[rank-1] * receptiveFieldSize
	}
	return
}
