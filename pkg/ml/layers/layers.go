// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

// Package layers implements Keras-style layers: each one creates its variables (and registers their
// initializers in the graph's Registry) when built, and then builds its forward computation.
//
// Layers are usually composed with a Sequential model:
//
//	model := layers.NewSequential(layers.Input(4),
//		layers.Dense(16).Activation("relu"),
//		layers.Dense(3))
//	output := model.Build(g)
//	updater := optimizers.NewUpdater(g, optimizers.Adam().Done(), model.TrainableVariables())
package layers

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
)

// Layer is the interface implemented by all layers.
type Layer interface {
	// Name of the layer, used to name its variables. Empty until set with SetName, Sequential sets a
	// unique one derived from Kind if none was given.
	Name() string

	// SetName sets the name of the layer. It must be called before Build.
	SetName(name string)

	// Kind of the layer, e.g. "Dense".
	Kind() string

	// Build creates the variables of the layer for the given input shape in graph g.
	Build(g *Graph, inputShape shapes.Shape)

	// ComputeOutputShape returns the output shape for the given input shape.
	ComputeOutputShape(inputShape shapes.Shape) shapes.Shape

	// Forward builds the computation of the layer. The layer must have been built.
	Forward(x *Node) *Node

	// Variables returns the variables created by Build.
	Variables() []*Variable

	// Params returns the number of parameters (values of the variables) of the layer.
	Params() int
}

// countParams returns the total size of the variables.
func countParams(variables []*Variable) (count int) {
	for _, v := range variables {
		count += v.Shape().Size()
	}
	return
}

// InputLayer is the first layer of a model: it creates the Parameter node fed with the model inputs.
type InputLayer struct {
	name        string
	dtype       dtypes.DType
	dimensions  []int
	placeholder *Node
}

// Input creates the input layer of a model, whose values have the given dimensions, and an extra
// leading batch axis, whose dimension is only known when the graph is executed.
//
// So Input(4) is fed with values of shape [batchSize, 4]. The default dtype is Float32.
func Input(dimensions ...int) *InputLayer {
	if len(dimensions) == 0 {
		exceptions.Panicf("layers.Input() requires at least one dimension")
	}
	return &InputLayer{dtype: dtypes.Float32, dimensions: slices.Clone(dimensions)}
}

// DType sets the dtype of the inputs.
func (l *InputLayer) DType(dtype dtypes.DType) *InputLayer {
	l.dtype = dtype
	return l
}

// Name implements Layer.
func (l *InputLayer) Name() string { return l.name }

// SetName implements Layer.
func (l *InputLayer) SetName(name string) { l.name = name }

// Kind implements Layer.
func (l *InputLayer) Kind() string { return "Input" }

// Shape returns the shape of the inputs, with the batch axis set to shapes.UnknownDim.
func (l *InputLayer) Shape() shapes.Shape {
	return shapes.Make(l.dtype, append([]int{shapes.UnknownDim}, l.dimensions...)...)
}

// Build implements Layer: it creates the placeholder, a Parameter named after the layer.
// The inputShape is ignored.
func (l *InputLayer) Build(g *Graph, _ shapes.Shape) {
	if l.placeholder != nil {
		exceptions.Panicf("layer %s already built", l)
	}
	name := l.name
	if name == "" {
		name = "input"
	}
	l.placeholder = Parameter(g, name, l.Shape())
}

// Placeholder returns the Parameter node to feed the inputs with, or nil if not built yet.
func (l *InputLayer) Placeholder() *Node { return l.placeholder }

// ComputeOutputShape implements Layer.
func (l *InputLayer) ComputeOutputShape(_ shapes.Shape) shapes.Shape { return l.Shape() }

// Forward implements Layer. It returns the placeholder, x is ignored.
func (l *InputLayer) Forward(_ *Node) *Node {
	if l.placeholder == nil {
		exceptions.Panicf("layer %s not built", l)
	}
	return l.placeholder
}

// Variables implements Layer. Input has no variables.
func (l *InputLayer) Variables() []*Variable { return nil }

// Params implements Layer. Input has no parameters.
func (l *InputLayer) Params() int { return 0 }

// String implements fmt.Stringer.
func (l *InputLayer) String() string {
	return fmt.Sprintf("Input(shape=%v)", l.dimensions)
}

// KnownActivations maps the activation names accepted by the layers to their functions.
var KnownActivations = map[string]func(x *Node) *Node{
	"linear": func(x *Node) *Node { return x },
	"relu":   Relu,
}

// activationByName panics if the activation is unknown.
func activationByName(name string) func(x *Node) *Node {
	fn, found := KnownActivations[name]
	if !found {
		exceptions.Panicf("unknown activation %q, valid values are %q", name, slices.Sorted(maps.Keys(KnownActivations)))
	}
	return fn
}
