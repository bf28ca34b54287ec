// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"slices"

	"github.com/gomlx/exceptions"
	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Updater drives the two phases of an optimizer for a set of variables of a graph: it makes sure the
// optimizer state is created (and initialized) exactly once, before the first update, and that updates
// are only requested for variables in that set.
type Updater struct {
	graph     *Graph
	optimizer Interface
	variables []*Variable
	known     map[*Variable]bool

	slotsCreated, initialized bool
	steps                     int

	// trainSteps caches the update operations built by TrainStep.
	trainSteps []*trainStepOps
}

// trainStepOps are the update operations built for one set of variables and gradients.
type trainStepOps struct {
	variables []*Variable
	gradients []*Node
	updateOps []*Node
}

// NewUpdater creates an Updater for the optimizer and the given variables of g.
// If variables is empty, the trainable variables of g (at this time) are used.
func NewUpdater(g *Graph, optimizer Interface, variables []*Variable) *Updater {
	g.AssertValid()
	if len(variables) == 0 {
		variables = g.TrainableVariables()
	}
	u := &Updater{
		graph:     g,
		optimizer: optimizer,
		variables: variables,
		known:     make(map[*Variable]bool, len(variables)),
	}
	for _, v := range variables {
		v.AssertValid()
		if v.Graph() != g {
			exceptions.Panicf("NewUpdater: variable %s is not from graph %q", v, g.Name())
		}
		u.known[v] = true
	}
	return u
}

// Optimizer used by the Updater.
func (u *Updater) Optimizer() Interface { return u.optimizer }

// Variables updated by the Updater.
func (u *Updater) Variables() []*Variable { return u.variables }

// Steps returns the number of steps successfully executed with Run or TrainStep.
func (u *Updater) Steps() int { return u.steps }

// SlotsCreated returns whether the optimizer state was already created.
func (u *Updater) SlotsCreated() bool { return u.slotsCreated }

// Initialized returns whether the optimizer state was created and successfully initialized.
func (u *Updater) Initialized() bool { return u.initialized }

// CreateSlots creates the optimizer state for the Updater variables, and initializes the pending
// variables of the graph (see Graph.InitializeVariables).
//
// If the initialization fails, the state stays created but uninitialized: it panics with the error, and
// the initialization is retried by the following UpdateOps, Run or TrainStep.
//
// It is called automatically by UpdateOps. Calling it twice panics with ErrPhaseOrdering.
func (u *Updater) CreateSlots() {
	if u.slotsCreated {
		raise(ErrPhaseOrdering, "optimizer %s slots already created for graph %q", u.optimizer.Name(), u.graph.Name())
	}
	u.optimizer.CreateSlots(u.graph, u.variables)
	u.slotsCreated = true
	if err := u.initializeState(); err != nil {
		panic(err)
	}
	klog.V(1).Infof("optimizer %s: created state for %d variables in graph %q, %d optimizer variables",
		u.optimizer.Name(), len(u.variables), u.graph.Name(), len(u.graph.Registry().OptimizerVariables()))
}

// initializeState runs the pending initializers of the graph, which include the ones of the optimizer state.
func (u *Updater) initializeState() error {
	if err := u.graph.InitializeVariables(); err != nil {
		return errors.WithMessagef(err, "failed to initialize the state of optimizer %s", u.optimizer.Name())
	}
	u.initialized = true
	return nil
}

// UpdateOps returns the operations that update the given variables (and the optimizer state) for one step.
// variables must be a subset of the Updater variables (or it panics with ErrPhaseOrdering), and gradients
// must match them.
//
// The operations can be executed many times, see Run.
func (u *Updater) UpdateOps(variables []*Variable, gradients []*Node) []*Node {
	for _, v := range variables {
		if !u.known[v] {
			raise(ErrPhaseOrdering, "variable %s was not given to the Updater, its optimizer slots were never created", v)
		}
	}
	checkGradients(u.graph, variables, gradients)
	if !u.slotsCreated {
		u.CreateSlots()
	} else if !u.initialized {
		if err := u.initializeState(); err != nil {
			panic(err)
		}
	}
	return u.optimizer.ApplyGradients(u.graph, variables, gradients)
}

// Run executes the update operations returned by UpdateOps, feeding params (e.g. the gradients, if they
// are parameters), and counts one step.
func (u *Updater) Run(params ParamsMap, updateOps []*Node) error {
	if !u.slotsCreated {
		return errors.Wrapf(ErrPhaseOrdering, "Updater.Run() called before the update operations were created")
	}
	if !u.initialized {
		if err := u.initializeState(); err != nil {
			return err
		}
	}
	if _, err := u.graph.Run(params, updateOps...); err != nil {
		return errors.WithMessagef(err, "optimizer %s failed to execute step %d", u.optimizer.Name(), u.steps+1)
	}
	u.steps++
	klog.V(2).Infof("optimizer %s: executed step %d", u.optimizer.Name(), u.steps)
	return nil
}

// TrainStep executes the update operations for the variables and gradients.
//
// The operations are built (see UpdateOps) on the first call for the given variables and gradients nodes,
// and reused by the following calls with the same ones, so the graph doesn't grow with the number of steps.
// Any error (including protocol violations) is returned.
func (u *Updater) TrainStep(variables []*Variable, gradients []*Node) error {
	for _, step := range u.trainSteps {
		if slices.Equal(step.variables, variables) && slices.Equal(step.gradients, gradients) {
			return u.Run(nil, step.updateOps)
		}
	}
	var updateOps []*Node
	err := exceptions.TryCatch[error](func() { updateOps = u.UpdateOps(variables, gradients) })
	if err != nil {
		return err
	}
	u.trainSteps = append(u.trainSteps, &trainStepOps{
		variables: slices.Clone(variables),
		gradients: slices.Clone(gradients),
		updateOps: updateOps,
	})
	return u.Run(nil, updateOps)
}
