// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"fmt"

	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/pkg/errors"
)

var (
	// ErrDuplicateSlot is raised when a slot (or the optimizer state of a graph) is created twice.
	ErrDuplicateSlot = errors.New("duplicate optimizer slot")

	// ErrUnknownSlot is raised when a slot is used before it was created.
	ErrUnknownSlot = errors.New("unknown optimizer slot")

	// ErrShapeMismatch is raised when a gradient or a slot initial value doesn't match the shape of its variable.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrPhaseOrdering is raised when slots are created twice by an Updater, or when gradients are applied to
	// variables whose slots were never created.
	ErrPhaseOrdering = errors.New("optimizer phase ordering violation")
)

// raise panics with an error wrapping the given sentinel error.
func raise(sentinel error, format string, args ...any) {
	panic(errors.Wrapf(sentinel, format, args...))
}

const (
	// SlotNameSeparator joins the optimizer scope, the variable name and the slot label in the slot variable name.
	SlotNameSeparator = "/"

	// InitializerSuffix is appended to the name of the slot variable to name the constant with its initial value.
	InitializerSuffix = "/Initializer"

	// AssignSuffix is appended to the name of the slot variable to name its initializer operation.
	AssignSuffix = "/Assign"

	// UpdateSuffix is appended to the name of the variable (or power scalar) to name its update operation.
	UpdateSuffix = "/Update"
)

type slotKey struct {
	graphId      GraphId
	variableName string
	label        string
}

// SlotStore holds the per-variable state (slots) of an optimizer instance, and its global scalars (e.g. the
// powers of beta used by Adam), per graph.
//
// Slots are non-trainable variables named `<scope>/<variableName>/<label>`, and global scalars are named
// `<scope>/<label>`. Each one is registered in the graph's Registry along with its initializer operation, so
// they are initialized by Graph.InitializeVariables.
type SlotStore struct {
	scope string
	slots map[slotKey]*Variable
	order []slotKey

	// created marks the graphs for which the optimizer already created its state (see Begin).
	created map[GraphId]bool
}

// NewSlotStore creates an empty SlotStore, that will create variables under the given scope.
func NewSlotStore(scope string) *SlotStore {
	return &SlotStore{
		scope:   scope,
		slots:   make(map[slotKey]*Variable),
		created: make(map[GraphId]bool),
	}
}

// Scope used to name the slot variables.
func (s *SlotStore) Scope() string { return s.scope }

// SlotName returns the name of the variable holding a slot. If variableName is empty, it's the name of
// a global scalar.
func (s *SlotStore) SlotName(variableName, label string) string {
	if variableName == "" {
		return s.scope + SlotNameSeparator + label
	}
	return s.scope + SlotNameSeparator + variableName + SlotNameSeparator + label
}

// Begin marks the start of the optimizer state creation for graph g.
// It panics with ErrDuplicateSlot if it was already called for g.
func (s *SlotStore) Begin(g *Graph) {
	g.AssertValid()
	if s.created[g.GraphId()] {
		raise(ErrDuplicateSlot, "optimizer state under scope %q already created for graph %q", s.scope, g.Name())
	}
	s.created[g.GraphId()] = true
}

// AssertCreated panics with ErrUnknownSlot if Begin was never called for g.
func (s *SlotStore) AssertCreated(g *Graph) {
	g.AssertValid()
	if !s.created[g.GraphId()] {
		raise(ErrUnknownSlot, "optimizer state under scope %q was never created for graph %q", s.scope, g.Name())
	}
}

// CreateSlot creates the slot with the given label for the variable. The slot has the same shape as the
// variable, and it is initialized with initialValue, which must have the same shape.
//
// It panics with ErrDuplicateSlot if the slot already exists, and with ErrShapeMismatch if initialValue
// doesn't match the variable shape.
func (s *SlotStore) CreateSlot(variable *Variable, label string, initialValue *Node) *Variable {
	variable.AssertValid()
	if !initialValue.Shape().Equal(variable.Shape()) {
		raise(ErrShapeMismatch, "initial value of shape %s for slot %q of %s", initialValue.Shape(), label, variable)
	}
	key := slotKey{graphId: variable.Graph().GraphId(), variableName: variable.Name(), label: label}
	return s.create(variable.Graph(), key, initialValue)
}

// CreateScalar creates a global scalar (not associated to any variable) with the given label, and initialized
// with initialValue, which must be a scalar.
//
// It panics with ErrDuplicateSlot if the scalar already exists.
func (s *SlotStore) CreateScalar(g *Graph, label string, initialValue *Node) *Variable {
	g.AssertValid()
	if !initialValue.IsScalar() {
		raise(ErrShapeMismatch, "initial value of shape %s for scalar %q must be a scalar", initialValue.Shape(), label)
	}
	key := slotKey{graphId: g.GraphId(), label: label}
	return s.create(g, key, initialValue)
}

func (s *SlotStore) create(g *Graph, key slotKey, initialValue *Node) *Variable {
	name := s.SlotName(key.variableName, key.label)
	if _, found := s.slots[key]; found {
		raise(ErrDuplicateSlot, "slot %q already exists", name)
	}
	if g.GetVariableByName(name) != nil {
		raise(ErrDuplicateSlot, "variable %q already exists in graph %q, is another optimizer using the scope %q?",
			name, g.Name(), s.scope)
	}
	slot := g.Variable(name, initialValue.Shape()).SetTrainable(false)
	initialValue.WithName(name + InitializerSuffix)
	initOp := Assign(slot, initialValue).WithName(name + AssignSuffix)
	g.PushAliasScope(s.scope)
	if key.variableName != "" {
		g.PushAliasScope(key.variableName)
	}
	initOp.WithAlias(key.label)
	if key.variableName != "" {
		g.PopAliasScope()
	}
	g.PopAliasScope()
	registry := g.Registry()
	registry.AddOptimizerVariable(slot)
	registry.AddOptimizerVariableInitializer(initOp)
	s.slots[key] = slot
	s.order = append(s.order, key)
	return slot
}

// Slot returns the slot with the given label for the variable. It panics with ErrUnknownSlot if it was not
// created.
func (s *SlotStore) Slot(g *Graph, variableName, label string) *Variable {
	slot, found := s.slots[slotKey{graphId: g.GraphId(), variableName: variableName, label: label}]
	if !found {
		raise(ErrUnknownSlot, "slot %q not created in graph %q, were the optimizer slots created for this variable?",
			s.SlotName(variableName, label), g.Name())
	}
	return slot
}

// Scalar returns the global scalar with the given label. It panics with ErrUnknownSlot if it was not created.
func (s *SlotStore) Scalar(g *Graph, label string) *Variable {
	return s.Slot(g, "", label)
}

// HasSlots returns whether any slot was created for the variable in graph g.
func (s *SlotStore) HasSlots(g *Graph, variableName string) bool {
	return len(s.Labels(g, variableName)) > 0
}

// Labels returns the labels of the slots of the variable in graph g, in creation order.
func (s *SlotStore) Labels(g *Graph, variableName string) []string {
	var labels []string
	for _, key := range s.order {
		if key.graphId == g.GraphId() && key.variableName == variableName {
			labels = append(labels, key.label)
		}
	}
	return labels
}

// Len returns the total number of slots and scalars created, over all graphs.
func (s *SlotStore) Len() int { return len(s.slots) }

// String implements fmt.Stringer.
func (s *SlotStore) String() string {
	names := make([]string, 0, len(s.order))
	for _, key := range s.order {
		names = append(names, s.SlotName(key.variableName, key.label))
	}
	return fmt.Sprintf("SlotStore(%q, %d slots: %v)", s.scope, len(names), names)
}
