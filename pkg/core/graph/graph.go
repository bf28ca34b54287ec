// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

// Package graph is a small computation graph engine: it holds variables, builds nodes (operations)
// over them and executes them.
//
// The main use in this module is to build optimizer state and update rules (package optimizers)
// and layers (package layers) on top of it.
//
// A Graph is built single-threaded: create variables with Graph.Variable, build operations with the
// functions of this package (Add, Mul, Sqrt, ...), and execute them with Graph.Run. Assign builds a node
// that, when executed, writes a new value to a variable. Run is atomic: every node reads the values the
// variables had before the run, and all assignments are committed together at the end. If anything
// fails, no variable is changed.
//
// Graph-building functions panic on errors (wrong shapes, duplicate names, etc.). Execution functions
// (Graph.Run, Graph.InitializeVariables) return errors instead, converting any panic with
// exceptions.TryCatch.
//
// Variable initialization is managed by the graph's Registry (see Graph.Registry): initializer operations
// are registered during construction and executed exactly once by Graph.InitializeVariables.
package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
)

// GraphId is a unique id (within the process) of a graph.
type GraphId int

// Graph with the operations and variables of a model.
//
// It must be created with NewGraph.
type Graph struct {
	id   GraphId
	name string

	nodes []*Node

	// nodeNames are the unique names given with Node.WithName.
	nodeNames map[string]*Node

	parameters      []*Node
	parameterByName map[string]*Node

	variables      []*Variable
	variableByName map[string]*Variable

	registry *Registry

	scalars map[scalarKey]*Node

	aliasScope  []string
	aliasToNode map[string]*Node
}

type scalarKey struct {
	dtype dtypes.DType
	value float64
}

var (
	graphCount   GraphId
	graphCountMu sync.Mutex
)

// NewGraph constructs an empty Graph.
//
// The name is optional and only used for printing and logging.
func NewGraph(name string) *Graph {
	graphCountMu.Lock()
	defer graphCountMu.Unlock()
	g := &Graph{
		id:              graphCount,
		name:            name,
		nodeNames:       make(map[string]*Node),
		parameterByName: make(map[string]*Node),
		variableByName:  make(map[string]*Variable),
		scalars:         make(map[scalarKey]*Node),
		aliasToNode:     make(map[string]*Node),
	}
	graphCount++
	g.registry = &Registry{graph: g}
	return g
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// GraphId is a unique id (within the process) of the graph.
func (g *Graph) GraphId() GraphId { return g.id }

// Registry returns the registry of variables and initializers of the graph. Its lifetime is the graph's.
func (g *Graph) Registry() *Registry { return g.registry }

// NumNodes returns the number of nodes created in the graph so far.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Nodes returns a copy of the list of nodes of the graph, in creation order.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// AssertValid panics if the graph is nil.
func (g *Graph) AssertValid() {
	if g == nil {
		exceptions.Panicf("the Graph is nil")
	}
}

// Variables returns all variables of the graph, in creation order.
func (g *Graph) Variables() []*Variable { return slices.Clone(g.variables) }

// TrainableVariables returns the trainable variables of the graph, in creation order.
func (g *Graph) TrainableVariables() []*Variable {
	var vars []*Variable
	for _, v := range g.variables {
		if v.Trainable {
			vars = append(vars, v)
		}
	}
	return vars
}

// GetVariableByName returns the variable with the given name, or nil if it doesn't exist.
func (g *Graph) GetVariableByName(name string) *Variable {
	return g.variableByName[name]
}

// GetParameterByName returns the parameter node with the given name, or nil if it doesn't exist.
func (g *Graph) GetParameterByName(name string) *Node {
	return g.parameterByName[name]
}

// GetNodeByName returns the node given the name with Node.WithName, or nil if it doesn't exist.
func (g *Graph) GetNodeByName(name string) *Node {
	return g.nodeNames[name]
}

// String prints a description of the graph with all its nodes.
func (g *Graph) String() string {
	var sb strings.Builder
	var memory uintptr
	for _, v := range g.variables {
		memory += v.shape.Memory()
	}
	_, _ = fmt.Fprintf(&sb, "Graph %q #%d: %d nodes, %d variables (%s)\n",
		g.name, g.id, len(g.nodes), len(g.variables), humanize.Bytes(uint64(memory)))
	for _, node := range g.nodes {
		_, _ = fmt.Fprintf(&sb, "\t%s\n", node)
	}
	return sb.String()
}

// registerNode adds the node to the graph and sets its id.
func (g *Graph) registerNode(node *Node) {
	node.graph = g
	node.id = NodeId(len(g.nodes))
	g.nodes = append(g.nodes, node)
}

// uniqueNodeName returns name, or name suffixed with `_1`, `_2`, ... if it is already taken.
func (g *Graph) uniqueNodeName(name string) string {
	if _, found := g.nodeNames[name]; !found {
		return name
	}
	for ii := 1; ; ii++ {
		candidate := fmt.Sprintf("%s_%d", name, ii)
		if _, found := g.nodeNames[candidate]; !found {
			return candidate
		}
	}
}

// checkNode panics if the node is nil or doesn't belong to g.
func (g *Graph) checkNode(node *Node, what string) {
	if node == nil {
		exceptions.Panicf("%s: node is nil", what)
	}
	if node.graph != g {
		exceptions.Panicf("%s: node %s belongs to a different graph (#%d), expected graph #%d",
			what, node, node.graph.id, g.id)
	}
}

// assertShape is used by the executor to check that a computed tensor matches its node.
func assertShape(node *Node, t *tensors.Tensor) {
	if !node.shape.Compatible(t.Shape()) {
		exceptions.Panicf("node %s computed a value of shape %s, expected %s", node, t.Shape(), node.shape)
	}
}

var _ shapes.HasShape = (*Node)(nil)
