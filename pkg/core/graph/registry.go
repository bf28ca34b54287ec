// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Registry keeps the variables created by optimizers and the initializer operations of the graph's
// variables, in registration order.
//
// The lists are append-only: initializers are executed exactly once by Graph.InitializeVariables, which
// keeps a cursor of how many were already executed. A Registry lives as long as its Graph.
type Registry struct {
	graph *Graph

	optimizerVariables    []*Variable
	optimizerInitializers []*Node
	variableInitializers  []*Node

	numVariableInitializersDone, numOptimizerInitializersDone int
}

// AddOptimizerVariable registers a variable holding optimizer state (slots and power scalars).
func (r *Registry) AddOptimizerVariable(v *Variable) {
	v.AssertValid()
	if v.graph != r.graph {
		exceptions.Panicf("Registry.AddOptimizerVariable(%s): variable from a different graph", v)
	}
	r.optimizerVariables = append(r.optimizerVariables, v)
}

// AddOptimizerVariableInitializer registers the initializer operation of an optimizer variable.
func (r *Registry) AddOptimizerVariableInitializer(op *Node) {
	r.graph.checkNode(op, "Registry.AddOptimizerVariableInitializer")
	r.optimizerInitializers = append(r.optimizerInitializers, op)
}

// AddVariableInitializer registers the initializer operation of a model variable (e.g. layer weights).
func (r *Registry) AddVariableInitializer(op *Node) {
	r.graph.checkNode(op, "Registry.AddVariableInitializer")
	r.variableInitializers = append(r.variableInitializers, op)
}

// OptimizerVariables returns a copy of the list of optimizer variables, in registration order.
func (r *Registry) OptimizerVariables() []*Variable { return slices.Clone(r.optimizerVariables) }

// OptimizerInitializers returns a copy of the list of optimizer initializers, in registration order.
func (r *Registry) OptimizerInitializers() []*Node { return slices.Clone(r.optimizerInitializers) }

// VariableInitializers returns a copy of the list of model variable initializers, in registration order.
func (r *Registry) VariableInitializers() []*Node { return slices.Clone(r.variableInitializers) }

// NumPendingInitializers returns the number of registered initializers not yet executed.
func (r *Registry) NumPendingInitializers() int {
	return len(r.variableInitializers) - r.numVariableInitializersDone +
		len(r.optimizerInitializers) - r.numOptimizerInitializersDone
}

// InitializeVariables executes the initializers registered in the graph's Registry that were not yet executed:
// first the model variable initializers, then the optimizer ones, each in registration order.
//
// Each initializer is executed exactly once: calling it again only runs the ones registered since.
// If the execution fails, no variable is changed, and the initializers stay pending.
func (g *Graph) InitializeVariables() error {
	r := g.registry
	pending := slices.Concat(
		r.variableInitializers[r.numVariableInitializersDone:],
		r.optimizerInitializers[r.numOptimizerInitializersDone:])
	if len(pending) == 0 {
		return nil
	}
	if _, err := g.Run(nil, pending...); err != nil {
		return errors.WithMessagef(err, "failed to initialize variables of graph %q", g.name)
	}
	r.numVariableInitializersDone = len(r.variableInitializers)
	r.numOptimizerInitializersDone = len(r.optimizerInitializers)
	if klog.V(1).Enabled() {
		var memory uint64
		for _, v := range r.optimizerVariables {
			memory += uint64(v.shape.Memory())
		}
		klog.Infof("graph %q: executed %d initializers, %d optimizer variables using %s",
			g.name, len(pending), len(r.optimizerVariables), humanize.Bytes(memory))
	}
	return nil
}
