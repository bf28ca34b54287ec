// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/jucke/kerasgo/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ParamsMap maps Parameter nodes to the values fed to an execution. Values can be *tensors.Tensor
// or anything accepted by tensors.FromValue.
type ParamsMap map[*Node]any

// ErrUninitializedVariable is returned (wrapped) when an execution reads a variable without a value.
var ErrUninitializedVariable = errors.New("variable not initialized")

// Run executes the targets and returns their values: one tensor per target, nil for side effect
// targets (Assign and Group nodes).
//
// The execution is atomic: every node reads the values the variables had before the execution, and
// the assignments are committed together after all targets were evaluated. If it fails, no variable is
// changed. Assigning the same variable twice in one execution is an error.
func (g *Graph) Run(params ParamsMap, targets ...*Node) (outputs []*tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() { outputs = g.MustRun(params, targets...) })
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

// MustRun is like Run, but panics on errors.
func (g *Graph) MustRun(params ParamsMap, targets ...*Node) []*tensors.Tensor {
	g.AssertValid()
	e := &execution{
		graph:    g,
		params:   params,
		values:   make(map[NodeId]*tensors.Tensor),
		executed: make(map[NodeId]bool),
		assigned: make(map[*Variable]*tensors.Tensor),
	}
	for node := range params {
		g.checkNode(node, "Graph.Run() params")
		if node.Type() != NodeTypeParameter {
			exceptions.Panicf("Graph.Run(): node %s fed in params is not a Parameter", node)
		}
	}
	outputs := make([]*tensors.Tensor, len(targets))
	for ii, target := range targets {
		g.checkNode(target, "Graph.Run() target")
		outputs[ii] = e.evaluate(target)
	}
	for _, v := range e.assignOrder {
		v.value = e.assigned[v]
	}
	if klog.V(2).Enabled() {
		klog.Infof("graph %q: executed %d targets, %d nodes evaluated, %d variables assigned",
			g.name, len(targets), len(e.executed), len(e.assignOrder))
	}
	return outputs
}

// execution holds the state of one Graph.Run.
type execution struct {
	graph  *Graph
	params ParamsMap

	values   map[NodeId]*tensors.Tensor
	executed map[NodeId]bool

	// assigned holds the staged values of the variables, committed at the end of the execution.
	assigned    map[*Variable]*tensors.Tensor
	assignOrder []*Variable
}

// evaluate returns the value of the node, evaluating its inputs first. Each node is evaluated at most once.
func (e *execution) evaluate(node *Node) *tensors.Tensor {
	if e.executed[node.id] {
		return e.values[node.id]
	}
	inputs := make([]*tensors.Tensor, len(node.inputNodes))
	for ii, input := range node.inputNodes {
		inputs[ii] = e.evaluate(input)
	}
	var value *tensors.Tensor
	switch ni := node.inputs.(type) {
	case *nodeInputsParameter:
		value = e.parameterValue(node, ni)
	case *nodeInputsVariableValue:
		if ni.variable.value == nil {
			panic(errors.Wrapf(ErrUninitializedVariable, "reading %s in graph %q", ni.variable, e.graph.name))
		}
		value = ni.variable.value
	case *nodeInputsAssign:
		v := ni.variable
		if _, found := e.assigned[v]; found {
			exceptions.Panicf("variable %q assigned more than once in the same execution (node %s)", v.name, node)
		}
		if !inputs[0].Shape().Equal(v.shape) {
			exceptions.Panicf("%s: assigned value of shape %s to variable of shape %s", node, inputs[0].Shape(), v.shape)
		}
		e.assigned[v] = inputs[0].Clone()
		e.assignOrder = append(e.assignOrder, v)
	case *nodeInputsGroup:
		// Inputs already executed.
	case evaluator:
		value = ni.eval(node, inputs)
		assertShape(node, value)
	default:
		exceptions.Panicf("don't know how to execute node %s", node)
	}
	e.values[node.id] = value
	e.executed[node.id] = true
	return value
}

func (e *execution) parameterValue(node *Node, ni *nodeInputsParameter) *tensors.Tensor {
	raw, found := e.params[node]
	if !found {
		exceptions.Panicf("Graph.Run(): missing value for parameter %q", ni.name)
	}
	value := tensors.FromValue(raw)
	if !node.shape.Compatible(value.Shape()) {
		exceptions.Panicf("Graph.Run(): value of shape %s fed to parameter %q of shape %s",
			value.Shape(), ni.name, node.shape)
	}
	return value
}
