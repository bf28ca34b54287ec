// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

// Package train drives the repeated execution of optimizer updates.
//
// A Loop runs the update ops returned by an optimizers.Updater for a number of steps, feeding the
// parameters of each step and calling the registered hooks.
//
// Example:
//
//	updater := optimizers.NewUpdater(g, optimizers.Adam().Done(), nil)
//	updateOps := updater.UpdateOps(variables, gradients)
//	loop := train.NewLoop(updater)
//	train.AttachProgressBar(loop)
//	err := loop.RunSteps(updateOps, 1000, func(step int) (ParamsMap, error) {
//		return ParamsMap{input: batches[step%len(batches)]}, nil
//	})
package train

import (
	"iter"
	"slices"
	"sort"
	"time"

	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Loop runs the update ops of an optimizers.Updater for a number of steps, calling hooks at the start,
// after each step and at the end.
type Loop struct {
	// Updater used to run the update ops.
	Updater *optimizers.Updater

	// LoopStep is the current step of the loop. It is preserved across calls to RunSteps, so
	// a loop can be resumed.
	LoopStep int

	// StartStep and EndStep of the current (or last) call to RunSteps. EndStep is exclusive.
	StartStep, EndStep int

	// TrainStepDurations of the steps of the current (or last) call to RunSteps.
	TrainStepDurations []time.Duration

	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative
// values are ok.
type Priority int

// OnStartFn is called once at the start of RunSteps.
type OnStartFn func(loop *Loop) error

// OnStepFn is called after each successful step, with loop.LoopStep set to the step just run.
type OnStepFn func(loop *Loop) error

// OnEndFn is called once after the last step of RunSteps.
type OnEndFn func(loop *Loop) error

// FeedFn returns the values of the parameters fed to the given step. It can return nil if the update
// ops don't depend on any parameter.
type FeedFn func(step int) (ParamsMap, error)

// NewLoop creates a Loop for the given updater.
func NewLoop(updater *optimizers.Updater) *Loop {
	return &Loop{
		Updater: updater,
		onStart: newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:  newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:   newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// RunSteps runs the updateOps (see optimizers.Updater.UpdateOps) numSteps times, continuing from
// loop.LoopStep. If feed is not nil, it is called to get the parameters of each step.
//
// It stops at the first error, from feed, from the execution or from any of the hooks.
// Steps executed before the error are kept.
func (loop *Loop) RunSteps(updateOps []*Node, numSteps int, feed FeedFn) error {
	if numSteps <= 0 {
		return nil
	}
	loop.StartStep = loop.LoopStep
	loop.EndStep = loop.LoopStep + numSteps
	loop.TrainStepDurations = make([]time.Duration, 0, numSteps)
	for hook := range loop.onStart.All() {
		if err := hook.fn(loop); err != nil {
			return errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	}
	for ; loop.LoopStep < loop.EndStep; loop.LoopStep++ {
		if err := loop.step(updateOps, feed); err != nil {
			return errors.WithMessagef(err, "Loop.RunSteps(%d): failed at step %d", numSteps, loop.LoopStep)
		}
	}
	for hook := range loop.onEnd.All() {
		if err := hook.fn(loop); err != nil {
			return errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	}
	klog.V(1).Infof("Loop.RunSteps: %d steps, median step duration %s", numSteps, loop.MedianTrainStepDuration())
	return nil
}

// step runs one update and calls the OnStep hooks.
func (loop *Loop) step(updateOps []*Node, feed FeedFn) error {
	var params ParamsMap
	if feed != nil {
		var err error
		params, err = feed(loop.LoopStep)
		if err != nil {
			return errors.WithMessage(err, "feeding parameters")
		}
	}
	startTime := time.Now()
	err := loop.Updater.Run(params, updateOps)
	loop.TrainStepDurations = append(loop.TrainStepDurations, time.Since(startTime))
	if err != nil {
		return err
	}
	for hook := range loop.onStep.All() {
		if err := hook.fn(loop); err != nil {
			return errors.WithMessagef(err, "OnStep(hook %q)", hook.name)
		}
	}
	return nil
}

// MedianTrainStepDuration returns the median duration of each training step. It returns 1 millisecond
// if no training step was recorded (to avoid potential division by 0).
func (loop *Loop) MedianTrainStepDuration() time.Duration {
	if len(loop.TrainStepDurations) == 0 {
		return time.Millisecond
	}
	times := slices.Clone(loop.TrainStepDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

// OnStart adds a hook with given priority and name (for error reporting) to the start of a loop.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnStep adds a hook with given priority and name (for error reporting) to each step of a loop.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{name: name, fn: fn})
}

// OnEnd adds a hook with given priority and name (for error reporting) to the end of a loop.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{hooks: make(map[Priority][]H)}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over all registered hooks in priority order. Hooks with the same priority
// are returned in the order they were added.
func (h *priorityHooks[H]) All() iter.Seq[H] {
	return func(yield func(H) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}
