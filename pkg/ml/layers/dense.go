// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"fmt"
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/ml/initializer"
)

const (
	// KernelName is the name of the weights variable of a Dense layer, prefixed by the layer name.
	KernelName = "kernel"

	// BiasName is the name of the bias variable of a Dense layer, prefixed by the layer name.
	BiasName = "bias"
)

// DenseLayer is a fully connected layer: `activation(x @ kernel + bias)`.
type DenseLayer struct {
	name              string
	units             int
	useBias           bool
	activation        string
	kernelInitializer initializer.Initializer
	biasInitializer   initializer.Initializer
	kernel, bias      *Variable
}

// Dense creates a fully connected layer with the given number of output units.
//
// By default, the kernel is initialized with GlorotUniform (using a random seed, see KernelInitializer),
// the bias with zeros, and no activation is applied.
func Dense(units int) *DenseLayer {
	if units <= 0 {
		exceptions.Panicf("layers.Dense(%d): units must be > 0", units)
	}
	return &DenseLayer{
		units:             units,
		useBias:           true,
		activation:        "linear",
		kernelInitializer: initializer.GlorotUniform(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))),
		biasInitializer:   initializer.Zero,
	}
}

// Activation sets the activation by name, see KnownActivations. Default is "linear".
func (l *DenseLayer) Activation(name string) *DenseLayer {
	activationByName(name)
	l.activation = name
	return l
}

// UseBias configures whether to add a bias. Default is true.
func (l *DenseLayer) UseBias(useBias bool) *DenseLayer {
	l.useBias = useBias
	return l
}

// KernelInitializer sets the initializer of the kernel.
func (l *DenseLayer) KernelInitializer(initFn initializer.Initializer) *DenseLayer {
	l.kernelInitializer = initFn
	return l
}

// BiasInitializer sets the initializer of the bias.
func (l *DenseLayer) BiasInitializer(initFn initializer.Initializer) *DenseLayer {
	l.biasInitializer = initFn
	return l
}

// WithName sets the name of the layer.
func (l *DenseLayer) WithName(name string) *DenseLayer {
	l.name = name
	return l
}

// Name implements Layer.
func (l *DenseLayer) Name() string { return l.name }

// SetName implements Layer.
func (l *DenseLayer) SetName(name string) { l.name = name }

// Kind implements Layer.
func (l *DenseLayer) Kind() string { return "Dense" }

// Units returns the number of outputs of the layer.
func (l *DenseLayer) Units() int { return l.units }

// Kernel returns the kernel variable, or nil if the layer was not built.
func (l *DenseLayer) Kernel() *Variable { return l.kernel }

// Bias returns the bias variable, or nil if the layer was not built or has no bias.
func (l *DenseLayer) Bias() *Variable { return l.bias }

// ComputeOutputShape implements Layer.
func (l *DenseLayer) ComputeOutputShape(inputShape shapes.Shape) shapes.Shape {
	if inputShape.Rank() != 2 {
		exceptions.Panicf("Dense layer %q requires inputs of rank 2, got %s", l.name, inputShape)
	}
	return shapes.Make(inputShape.DType, inputShape.Dim(0), l.units)
}

// Build implements Layer. It creates the kernel (shape [inputDim, units]) and the bias (shape [units]),
// and registers their initializers in the Registry of g.
func (l *DenseLayer) Build(g *Graph, inputShape shapes.Shape) {
	if l.kernel != nil {
		exceptions.Panicf("Dense layer %q already built", l.name)
	}
	if l.name == "" {
		exceptions.Panicf("Dense layer must have a name before it is built")
	}
	l.ComputeOutputShape(inputShape)
	inputDim := inputShape.Dim(-1)
	if inputDim == shapes.UnknownDim {
		exceptions.Panicf("Dense layer %q requires a known input dimension, got %s", l.name, inputShape)
	}
	dtype := inputShape.DType
	l.kernel = newLayerVariable(g, l.name+"/"+KernelName, shapes.Make(dtype, inputDim, l.units), l.kernelInitializer)
	if l.useBias {
		l.bias = newLayerVariable(g, l.name+"/"+BiasName, shapes.Make(dtype, l.units), l.biasInitializer)
	}
}

// newLayerVariable creates a trainable variable and registers its initializer.
func newLayerVariable(g *Graph, name string, shape shapes.Shape, initFn initializer.Initializer) *Variable {
	v := g.Variable(name, shape)
	initialValue := initFn(g, shape)
	g.Registry().AddVariableInitializer(Assign(v, initialValue).WithName(name + "/Assign"))
	return v
}

// Forward implements Layer.
func (l *DenseLayer) Forward(x *Node) *Node {
	if l.kernel == nil {
		exceptions.Panicf("Dense layer %q not built", l.name)
	}
	output := MatMul(x, l.kernel.ValueGraph())
	if l.bias != nil {
		output = AddBias(output, l.bias.ValueGraph())
	}
	return activationByName(l.activation)(output)
}

// Variables implements Layer.
func (l *DenseLayer) Variables() []*Variable {
	if l.kernel == nil {
		return nil
	}
	if l.bias == nil {
		return []*Variable{l.kernel}
	}
	return []*Variable{l.kernel, l.bias}
}

// Params implements Layer. It is 0 before the layer is built.
func (l *DenseLayer) Params() int { return countParams(l.Variables()) }

// String implements fmt.Stringer.
func (l *DenseLayer) String() string {
	return fmt.Sprintf("Dense(name=%q, units=%d, activation=%s)", l.name, l.units, l.activation)
}
