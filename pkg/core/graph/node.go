// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
)

// NodeId is a unique identifier of a node within a Graph.
type NodeId int

// NodeType identifies the operation of a Node.
type NodeType int

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeParameter
	NodeTypeConstant
	NodeTypeVariableValue
	NodeTypeAssign
	NodeTypeGroup
	NodeTypeNeg
	NodeTypeAbs
	NodeTypeSqrt
	NodeTypeRelu
	NodeTypeAdd
	NodeTypeSub
	NodeTypeMul
	NodeTypeDiv
	NodeTypeMax
	NodeTypeMin
	NodeTypeReduceAllSum
	NodeTypeL2Norm
	NodeTypeMatMul
	NodeTypeAddBias
	NodeTypeReshape
	NodeTypeConvertDType
)

var nodeTypeNames = map[NodeType]string{
	NodeTypeInvalid:       "Invalid",
	NodeTypeParameter:     "Parameter",
	NodeTypeConstant:      "Constant",
	NodeTypeVariableValue: "VariableValue",
	NodeTypeAssign:        "Assign",
	NodeTypeGroup:         "Group",
	NodeTypeNeg:           "Neg",
	NodeTypeAbs:           "Abs",
	NodeTypeSqrt:          "Sqrt",
	NodeTypeRelu:          "Relu",
	NodeTypeAdd:           "Add",
	NodeTypeSub:           "Sub",
	NodeTypeMul:           "Mul",
	NodeTypeDiv:           "Div",
	NodeTypeMax:           "Max",
	NodeTypeMin:           "Min",
	NodeTypeReduceAllSum:  "ReduceAllSum",
	NodeTypeL2Norm:        "L2Norm",
	NodeTypeMatMul:        "MatMul",
	NodeTypeAddBias:       "AddBias",
	NodeTypeReshape:       "Reshape",
	NodeTypeConvertDType:  "ConvertDType",
}

// String implements fmt.Stringer.
func (t NodeType) String() string {
	if name, found := nodeTypeNames[t]; found {
		return name
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// Node represents the result of an operation in the computation graph, and can be used as input to further operations.
//
// Nodes with side effects (Assign and Group) have an invalid shape: they can only be used as targets of
// Graph.Run or grouped with Group.
//
// Node.String allows for a pretty-printing of node. To see the full graph with all nodes, use Graph.String.
type Node struct {
	graph *Graph
	id    NodeId
	shape shapes.Shape

	// inputNodes are the edges of the computation graph.
	// Other static inputs to the node are held by inputs.
	inputNodes []*Node

	inputs NodeInputs

	// name given with Node.WithName, unique within the graph.
	name string

	// alias is a name by which the Node be referred in the Graph, see Node.WithAlias.
	alias string
}

// NodeInputs holds the static parameters of a node, and knows how to compute the node's value
// from the values of its input nodes.
type NodeInputs interface {
	Type() NodeType

	// String prints a descriptive representation of the node, using its parameters.
	String() string
}

// evaluator is implemented by the NodeInputs of nodes that are pure functions of their input nodes.
type evaluator interface {
	eval(node *Node, inputs []*tensors.Tensor) *tensors.Tensor
}

// newNode creates a node in g and registers it.
func newNode(g *Graph, inputs NodeInputs, shape shapes.Shape, inputNodes ...*Node) *Node {
	g.AssertValid()
	for _, input := range inputNodes {
		g.checkNode(input, inputs.Type().String())
	}
	node := &Node{
		shape:      shape,
		inputs:     inputs,
		inputNodes: inputNodes,
	}
	g.registerNode(node)
	return node
}

// Graph that holds this Node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Shape of the Node's output. It is invalid for side effect nodes (Assign and Group).
func (n *Node) Shape() shapes.Shape {
	if n == nil {
		return shapes.Invalid()
	}
	return n.shape
}

// DType returns the DType of the node's shape.
func (n *Node) DType() dtypes.DType {
	return n.Shape().DType
}

// Rank returns the rank of the node's shape.
func (n *Node) Rank() int {
	return n.Shape().Rank()
}

// IsScalar returns whether the node's shape is a scalar.
func (n *Node) IsScalar() bool {
	return n.Shape().IsScalar()
}

// Id is the unique id of this node within the Graph.
func (n *Node) Id() NodeId {
	return n.id
}

// Type of the node's operation.
func (n *Node) Type() NodeType {
	if n == nil || n.inputs == nil {
		return NodeTypeInvalid
	}
	return n.inputs.Type()
}

// Inputs are the other nodes that are direct inputs to the node.
func (n *Node) Inputs() []*Node {
	return n.inputNodes
}

// AssertValid panics if the node is nil or its graph is invalid.
func (n *Node) AssertValid() {
	if n == nil {
		exceptions.Panicf("Node is nil")
	}
	n.graph.AssertValid()
}

// WithName gives the node a name, unique within the graph: if the name is already taken, a suffix
// `_1`, `_2`, ... is appended. The final name can be read back with Node.Name.
//
// It returns the node itself, to allow cascading method calling.
func (n *Node) WithName(name string) *Node {
	n.AssertValid()
	if n.name != "" {
		delete(n.graph.nodeNames, n.name)
	}
	name = n.graph.uniqueNodeName(name)
	n.name = name
	n.graph.nodeNames[name] = n
	return n
}

// Name given with Node.WithName, or "" if none was given.
func (n *Node) Name() string {
	return n.name
}

// GetParameterName returns the parameter name.
// If node is not a parameter, it panics.
func (n *Node) GetParameterName() string {
	n.AssertValid()
	if n.Type() != NodeTypeParameter {
		exceptions.Panicf("trying to get GetParameterName of a non-parameter node %q", n.Type())
	}
	return n.inputs.(*nodeInputsParameter).name
}

// String implements the fmt.Stringer interface.
func (n *Node) String() (str string) {
	if n == nil {
		return "Node(nil)"
	}
	if n.graph == nil {
		return "Node(graph == nil!?)"
	}
	inputsStr := n.inputs.String()
	if len(n.inputNodes) > 0 {
		ids := make([]string, len(n.inputNodes))
		for ii, input := range n.inputNodes {
			ids[ii] = fmt.Sprintf("#%d", input.id)
		}
		if inputsStr != "" {
			inputsStr = strings.Join(ids, ", ") + ", " + inputsStr
		} else {
			inputsStr = strings.Join(ids, ", ")
		}
	}
	str = fmt.Sprintf("#%d %s(%s)", n.id, n.Type(), inputsStr)
	if n.shape.Ok() {
		str += " -> " + n.shape.String()
	}
	if n.name != "" {
		str = fmt.Sprintf("%s [%s]", str, n.name)
	}
	if n.alias != "" {
		str = fmt.Sprintf("%s [alias=%q]", str, n.alias)
	}
	return
}
