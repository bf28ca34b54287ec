// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
)

// Variable is a value held by a Graph across executions. It's commonly used to store the weights
// (aka. parameters) of a model, and the state of optimizers.
//
// The materialized value can be accessed in between graph executions by Value and SetValue methods.
//
// During the computation graph building, the value of the variable is read with ValueGraph, and
// a new value is written with Assign. Variables are created uninitialized: reading an uninitialized
// variable during Graph.Run is an error. They are usually initialized by the initializer operations
// registered in the graph's Registry, see Graph.InitializeVariables.
type Variable struct {
	graph *Graph
	name  string
	shape shapes.Shape

	// Trainable indicates whether variable is trainable. If set to false it won't be
	// touched by optimizers.
	Trainable bool

	value     *tensors.Tensor
	valueNode *Node
}

// Variable creates a new trainable variable in the graph with the given name and shape.
//
// The shape must be fully known and of a float dtype. It panics if a variable with the same name
// already exists.
func (g *Graph) Variable(name string, shape shapes.Shape) *Variable {
	g.AssertValid()
	shape.AssertFloat()
	if !shape.IsFullyKnown() {
		exceptions.Panicf("variable %q: shape %s must be fully known", name, shape)
	}
	if name == "" {
		exceptions.Panicf("variable of shape %s created without a name", shape)
	}
	if _, found := g.variableByName[name]; found {
		exceptions.Panicf("variable %q already exists in graph %q", name, g.name)
	}
	v := &Variable{
		graph:     g,
		name:      name,
		shape:     shape.Clone(),
		Trainable: true,
	}
	v.valueNode = newNode(g, &nodeInputsVariableValue{variable: v}, v.shape)
	g.variables = append(g.variables, v)
	g.variableByName[name] = v
	return v
}

// Name of the variable, unique in the graph.
func (v *Variable) Name() string { return v.name }

// Graph that owns the variable.
func (v *Variable) Graph() *Graph { return v.graph }

// Shape of the variable.
func (v *Variable) Shape() shapes.Shape { return v.shape }

// DType of the variable.
func (v *Variable) DType() dtypes.DType { return v.shape.DType }

// String implements fmt.Stringer.
func (v *Variable) String() string {
	if v == nil {
		return "Variable(nil)"
	}
	return fmt.Sprintf("Variable(%q, %s)", v.name, v.shape)
}

// AssertValid panics if the variable is nil or was not created with Graph.Variable.
func (v *Variable) AssertValid() {
	if v == nil {
		exceptions.Panicf("Variable is nil")
	}
	if v.graph == nil {
		exceptions.Panicf("Variable %q is not associated to a graph, it must be created with Graph.Variable", v.name)
	}
}

// SetTrainable sets the Trainable property of the variable and returns it, for cascading calls.
func (v *Variable) SetTrainable(trainable bool) *Variable {
	v.Trainable = trainable
	return v
}

// IsInitialized returns whether the variable holds a value.
func (v *Variable) IsInitialized() bool { return v.value != nil }

// Value returns the current value of the variable, or nil if it's not initialized.
// The returned tensor must not be modified, use SetValue instead.
func (v *Variable) Value() *tensors.Tensor { return v.value }

// SetValue sets the value of the variable, to be used in the following executions.
// The value must have the same shape as the variable. It is cloned.
func (v *Variable) SetValue(value *tensors.Tensor) {
	v.AssertValid()
	if !value.Shape().Equal(v.shape) {
		exceptions.Panicf("Variable(%q).SetValue(): value shape %s doesn't match variable shape %s",
			v.name, value.Shape(), v.shape)
	}
	v.value = value.Clone()
}

// ValueGraph returns the Node that reads the variable's value during execution.
// The value read is always the one before the execution, even if the variable is assigned in the same execution.
func (v *Variable) ValueGraph() *Node {
	v.AssertValid()
	return v.valueNode
}

type nodeInputsVariableValue struct {
	variable *Variable
}

func (ni *nodeInputsVariableValue) Type() NodeType { return NodeTypeVariableValue }
func (ni *nodeInputsVariableValue) String() string { return fmt.Sprintf("%q", ni.variable.name) }

// Assign returns a node that, when executed, sets the variable to the value.
//
// The value must have the same shape as the variable. The assignment is only committed at the end of the
// Graph.Run execution, so other nodes in the same execution read the previous value.
func Assign(variable *Variable, value *Node) *Node {
	variable.AssertValid()
	value.AssertValid()
	g := variable.graph
	if value.graph != g {
		exceptions.Panicf("Assign(%s): value node %s from a different graph", variable, value)
	}
	if !value.shape.Equal(variable.shape) {
		exceptions.Panicf("Assign(%s): value shape %s doesn't match variable shape", variable, value.shape)
	}
	return newNode(g, &nodeInputsAssign{variable: variable}, shapes.Invalid(), value)
}

type nodeInputsAssign struct {
	variable *Variable
}

func (ni *nodeInputsAssign) Type() NodeType { return NodeTypeAssign }
func (ni *nodeInputsAssign) String() string { return fmt.Sprintf("%q", ni.variable.name) }

// AssignedVariable returns the variable written by an Assign node, or nil for other nodes.
func (n *Node) AssignedVariable() *Variable {
	if assign, ok := n.inputs.(*nodeInputsAssign); ok {
		return assign.variable
	}
	return nil
}

// Group returns a node that, when executed, executes all the given nodes. It has no value.
func Group(nodes ...*Node) *Node {
	if len(nodes) == 0 {
		exceptions.Panicf("Group() requires at least one node")
	}
	g := nodes[0].Graph()
	return newNode(g, &nodeInputsGroup{}, shapes.Invalid(), nodes...)
}

type nodeInputsGroup struct{}

func (ni *nodeInputsGroup) Type() NodeType { return NodeTypeGroup }
func (ni *nodeInputsGroup) String() string { return "" }
