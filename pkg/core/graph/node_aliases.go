// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// AliasScopeSeparator joins the alias scope parts and the alias itself. So if the scope is currently
// ["adam", "dense_1"] and an alias "m" is created, it is stored as "/adam/dense_1/m".
const AliasScopeSeparator = "/"

// PushAliasScope pushes another scope to the current alias scope for new aliases.
//
// Optimizers push their scope and the variable name before aliasing the slot initializers, so
// the initializer of the "m" slot of variable "dense_1/kernel" can be found with the alias
// "/adam/dense_1/kernel/m". Sequential models push the name of each layer.
//
// Each call to Graph.PushAliasScope should be matched by a call to Graph.PopAliasScope, usually using defer.
func (g *Graph) PushAliasScope(scope string) {
	g.aliasScope = append(g.aliasScope, scope)
}

// PopAliasScope removes the scope previously pushed with PushAliasScope.
//
// It panics if there are no scopes pushed.
func (g *Graph) PopAliasScope() {
	if len(g.aliasScope) == 0 {
		exceptions.Panicf("no scopes pushed when calling Graph.PopAliasScope")
	}
	g.aliasScope = g.aliasScope[:len(g.aliasScope)-1]
}

// WithAlias sets an alias in the Graph for the node.
// It allows it to be retrieved with Graph.GetNodeByAlias.
//
// The alias is prefixed with the Graph current "alias scope", see Graph.PushAliasScope, except if
// it starts with AliasScopeSeparator, in which case it is taken as an absolute path.
//
// It returns the Node itself, to allow cascading method calling.
//
// It panics if the exact same alias already exists.
func (n *Node) WithAlias(alias string) *Node {
	n.AssertValid()
	g := n.graph
	alias = g.absoluteAlias(alias)
	if _, found := g.aliasToNode[alias]; found {
		exceptions.Panicf("alias already exists in Node.WithAlias(%q): they must be unique within the scope they are defined",
			alias)
	}
	n.alias = alias
	g.aliasToNode[alias] = n
	return n
}

// GetAlias returns the alias (with the absolute path) of the node, or "" if none was set.
func (n *Node) GetAlias() string {
	return n.alias
}

func (g *Graph) absoluteAlias(alias string) string {
	if strings.HasPrefix(alias, AliasScopeSeparator) {
		return alias
	}
	parts := append([]string{""}, g.aliasScope...)
	parts = append(parts, alias)
	return strings.Join(parts, AliasScopeSeparator)
}

// GetNodeByAlias returns a node with the given alias or nil if it didn't find it.
//
// A relative alias is prefixed with the current scope before searching.
func (g *Graph) GetNodeByAlias(alias string) *Node {
	return g.aliasToNode[g.absoluteAlias(alias)]
}

// IterAliasedNodes iterates over all aliased nodes, sorted by alias. It yields pairs (alias, node).
func (g *Graph) IterAliasedNodes() iter.Seq2[string, *Node] {
	aliases := slices.Sorted(maps.Keys(g.aliasToNode))
	return func(yield func(string, *Node) bool) {
		for _, alias := range aliases {
			if !yield(alias, g.aliasToNode[alias]) {
				return
			}
		}
	}
}
