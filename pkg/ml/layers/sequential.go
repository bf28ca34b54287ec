// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"k8s.io/klog/v2"
)

// OutputAlias is the alias of the output of each layer of a Sequential model, under the layer name scope.
// E.g.: the output of the layer "dense_1" can be retrieved with Graph.GetNodeByAlias("/dense_1/output").
const OutputAlias = "output"

// Sequential is a model built from a stack of layers, where each layer has exactly one input and one output.
type Sequential struct {
	name   string
	input  *InputLayer
	layers []Layer

	graph        *Graph
	outputShapes []shapes.Shape
	output       *Node
}

// NewSequential creates a model with the given input layer and the layers applied in order.
// Layers without a name get a unique one derived from their kind: "dense", "dense_1", ...
func NewSequential(input *InputLayer, layers ...Layer) *Sequential {
	s := &Sequential{name: "sequential", input: input, layers: layers}
	used := make(map[string]int)
	for _, l := range s.AllLayers() {
		if l.Name() != "" {
			used[l.Name()]++
		}
	}
	for _, l := range s.AllLayers() {
		if l.Name() != "" {
			if used[l.Name()] > 1 {
				exceptions.Panicf("NewSequential: layer name %q used more than once", l.Name())
			}
			continue
		}
		base := strings.ToLower(l.Kind())
		name := base
		for ii := 1; used[name] > 0; ii++ {
			name = fmt.Sprintf("%s_%d", base, ii)
		}
		used[name]++
		l.SetName(name)
	}
	return s
}

// WithName sets the name of the model, used in the Summary.
func (s *Sequential) WithName(name string) *Sequential {
	s.name = name
	return s
}

// Name of the model.
func (s *Sequential) Name() string { return s.name }

// AllLayers returns the input layer followed by the other layers.
func (s *Sequential) AllLayers() []Layer {
	return append([]Layer{s.input}, s.layers...)
}

// Build creates the variables of all layers in g and the forward computation, returning the output of
// the model. The output of each layer is aliased OutputAlias under the scope of the layer name.
//
// It can be called only once.
func (s *Sequential) Build(g *Graph) *Node {
	if s.graph != nil {
		exceptions.Panicf("Sequential model %q already built", s.name)
	}
	s.graph = g
	shape := s.input.Shape()
	var x *Node
	for _, l := range s.AllLayers() {
		g.PushAliasScope(l.Name())
		l.Build(g, shape)
		x = l.Forward(x).WithAlias(OutputAlias)
		g.PopAliasScope()
		shape = l.ComputeOutputShape(shape)
		s.outputShapes = append(s.outputShapes, shape)
	}
	s.output = x
	klog.V(1).Infof("model %q built: %d layers, %s parameters", s.name, len(s.layers)+1, humanize.Comma(int64(s.Params())))
	return x
}

// Graph where the model was built, or nil.
func (s *Sequential) Graph() *Graph { return s.graph }

// Input returns the placeholder fed with the model inputs. The model must have been built.
func (s *Sequential) Input() *Node { return s.input.Placeholder() }

// Output of the model, or nil if it was not built.
func (s *Sequential) Output() *Node { return s.output }

// Variables returns the variables of all layers, in layer order.
func (s *Sequential) Variables() []*Variable {
	var variables []*Variable
	for _, l := range s.AllLayers() {
		variables = append(variables, l.Variables()...)
	}
	return variables
}

// TrainableVariables returns the variables of all layers that are trainable, in layer order.
// These are the variables usually given to optimizers.Updater.
func (s *Sequential) TrainableVariables() []*Variable {
	var variables []*Variable
	for _, v := range s.Variables() {
		if v.Trainable {
			variables = append(variables, v)
		}
	}
	return variables
}

// Params returns the total number of parameters of the model.
func (s *Sequential) Params() int { return countParams(s.Variables()) }

// Summary returns a table with the layers of the model, their output shapes and number of parameters.
// The model must have been built.
func (s *Sequential) Summary() string {
	if s.graph == nil {
		exceptions.Panicf("Sequential model %q must be built before Summary", s.name)
	}
	const line = "_________________________________________________________________"
	const doubleLine = "================================================================="
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %q\n%s\n", s.name, line)
	fmt.Fprintf(&sb, "%-28s %-24s %s\n%s\n", "Layer (type)", "Output Shape", "Param #", doubleLine)
	var trainable, memory int
	for ii, l := range s.AllLayers() {
		fmt.Fprintf(&sb, "%-28s %-24s %s\n", fmt.Sprintf("%s (%s)", l.Name(), l.Kind()),
			s.outputShapes[ii], humanize.Comma(int64(l.Params())))
		for _, v := range l.Variables() {
			if v.Trainable {
				trainable += v.Shape().Size()
			}
			memory += int(v.Shape().Memory())
		}
	}
	total := s.Params()
	fmt.Fprintf(&sb, "%s\n", doubleLine)
	fmt.Fprintf(&sb, "Total params: %s (%s)\n", humanize.Comma(int64(total)), humanize.Bytes(uint64(memory)))
	fmt.Fprintf(&sb, "Trainable params: %s\n", humanize.Comma(int64(trainable)))
	fmt.Fprintf(&sb, "Non-trainable params: %s\n", humanize.Comma(int64(total-trainable)))
	sb.WriteString(line)
	return sb.String()
}
