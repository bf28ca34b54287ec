// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizers implements a collection of optimizers that build the graph operations updating
// the trainable variables of a model given their gradients. They all implement optimizers.Interface.
//
// Optimizers follow a two-phase protocol:
//
//  1. CreateSlots is called once per graph, before any step: it creates the optimizer state (slots per
//     variable, and global scalars like the powers of beta used by Adam), registering them and their
//     initializers in the graph's Registry.
//  2. ApplyGradients is called to build the update operations of a training step, one per variable,
//     followed by the update of the global scalars.
//
// The Updater drives both phases and executes the updates. Errors of the protocol are raised as panics
// wrapping ErrDuplicateSlot, ErrUnknownSlot, ErrShapeMismatch and ErrPhaseOrdering.
package optimizers

import (
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/jucke/kerasgo/pkg/core/graph"
)

// Interface implemented by optimizer implementations.
type Interface interface {
	// Name of the optimizer.
	Name() string

	// CreateSlots creates the optimizer state for the given variables in graph g. It must be called
	// exactly once per graph, before ApplyGradients. Calling it twice panics with ErrDuplicateSlot.
	//
	// This is a graph building function and panics on error.
	CreateSlots(g *Graph, variables []*Variable)

	// ApplyGradients returns the update operations for one training step: one operation per variable,
	// in the order given, updating the variable and its slots, followed by the updates of the global
	// scalars of the optimizer, if any.
	//
	// The gradients must have the same shapes as the variables, or it panics with ErrShapeMismatch before
	// building any operation.
	//
	// This is a graph building function and panics on error.
	ApplyGradients(g *Graph, variables []*Variable, gradients []*Node) []*Node
}

var (
	// KnownOptimizers is a map of known optimizers by name to their default constructors, configured
	// with the given hyperparameters (it can be nil).
	KnownOptimizers = map[string]func(params map[string]any) Interface{
		"sgd":      func(params map[string]any) Interface { return SGD().FromParams(params).Done() },
		"momentum": func(params map[string]any) Interface { return Momentum().FromParams(params).Done() },
		"adam":     func(params map[string]any) Interface { return Adam().FromParams(params).Done() },
		"adamax":   func(params map[string]any) Interface { return Adam().Adamax().FromParams(params).Done() },
		"rmsprop":  func(params map[string]any) Interface { return RMSProp().FromParams(params).Done() },
		"adagrad":  func(params map[string]any) Interface { return AdaGrad().FromParams(params).Done() },
		"adadelta": func(params map[string]any) Interface { return AdaDelta().FromParams(params).Done() },
	}

	// ParamOptimizer is the hyperparameter with the name of the optimizer.
	// The default value is "adam", and the valid values are the keys of KnownOptimizers.
	ParamOptimizer = "optimizer"

	// ParamLearningRate is the hyperparameter name for the learning rate, used by all optimizers.
	ParamLearningRate = "learning_rate"

	// ParamClipGradientByValue configures the ClipByAbsValue policy, if set to a value > 0.
	ParamClipGradientByValue = "clip_gradient_by_value"

	// ParamClipGradientByNorm configures the ClipByNorm policy, if set to a value > 0.
	// It takes precedence over ParamClipGradientByValue.
	ParamClipGradientByNorm = "clip_gradient_by_norm"
)

// FromParams creates an optimizer from hyperparameters. See [ParamOptimizer]. The default is "adam".
func FromParams(params map[string]any) Interface {
	optName := GetParamOr(params, ParamOptimizer, "adam")
	return ByName(params, optName)
}

// ByName returns an optimizer given the name, or panics if one does not exist.
// It uses KnownOptimizers, in case one wants to better handle invalid values.
//
// The optimizer is configured with the given hyperparameters (it can be nil).
func ByName(params map[string]any, optName string) Interface {
	optBuilder, found := KnownOptimizers[optName]
	if !found {
		exceptions.Panicf("unknown optimizer %q, valid values are %q", optName, slices.Sorted(maps.Keys(KnownOptimizers)))
	}
	return optBuilder(params)
}

// GetParamOr returns the hyperparameter params[key] converted to T, or defaultValue if it's not set.
//
// Integers and float32 values are converted to float64 if T is float64. It panics if the value has a different
// type.
func GetParamOr[T any](params map[string]any, key string, defaultValue T) T {
	value, found := params[key]
	if !found || value == nil {
		return defaultValue
	}
	if typed, ok := value.(T); ok {
		return typed
	}
	if _, isFloat := any(defaultValue).(float64); isFloat {
		switch v := value.(type) {
		case int:
			return any(float64(v)).(T)
		case int64:
			return any(float64(v)).(T)
		case float32:
			return any(float64(v)).(T)
		}
	}
	exceptions.Panicf("hyperparameter %q=%#v (type %T) cannot be converted to %T", key, value, value, defaultValue)
	return defaultValue
}

// clipFromParams returns the clipping policy configured by the hyperparameters, or current if none is set.
func clipFromParams(params map[string]any, current ClipGradient) ClipGradient {
	if clipNorm := GetParamOr(params, ParamClipGradientByNorm, 0.0); clipNorm > 0 {
		return ClipByNorm(clipNorm)
	}
	if clipValue := GetParamOr(params, ParamClipGradientByValue, 0.0); clipValue > 0 {
		return ClipByAbsValue(clipValue)
	}
	return current
}

// checkGradients panics with ErrShapeMismatch if the gradients don't match the variables, before any
// operation is built.
func checkGradients(g *Graph, variables []*Variable, gradients []*Node) {
	g.AssertValid()
	if len(variables) != len(gradients) {
		raise(ErrShapeMismatch, "%d gradients given for %d variables", len(gradients), len(variables))
	}
	for ii, v := range variables {
		v.AssertValid()
		if v.Graph() != g {
			exceptions.Panicf("variable %s is not from graph %q", v, g.Name())
		}
		grad := gradients[ii]
		if grad == nil {
			raise(ErrShapeMismatch, "gradient #%d for %s is nil", ii, v)
		}
		if grad.Graph() != g {
			exceptions.Panicf("gradient #%d for %s is not from graph %q", ii, v, g.Name())
		}
		if !grad.Shape().Equal(v.Shape()) {
			raise(ErrShapeMismatch, "gradient #%d of shape %s doesn't match %s", ii, grad.Shape(), v)
		}
	}
}

// stateDType returns the dtype used for the global scalars of an optimizer: the configured one, or
// the dtype of the first variable.
func stateDType(configured dtypes.DType, variables []*Variable) dtypes.DType {
	if configured != dtypes.InvalidDType {
		return configured
	}
	if len(variables) > 0 {
		return variables[0].DType()
	}
	return dtypes.Float32
}

// createZeroSlots creates one zero-initialized slot per label for each variable.
func createZeroSlots(slots *SlotStore, variables []*Variable, labels ...string) {
	for _, v := range variables {
		for _, label := range labels {
			slots.CreateSlot(v, label, Zeros(v.Graph(), v.Shape()))
		}
	}
}

// updateOp groups the assignments of a variable and its slots in one named operation.
func updateOp(slots *SlotStore, variable *Variable, assigns ...*Node) *Node {
	return Group(assigns...).WithName(slots.Scope() + SlotNameSeparator + variable.Name() + UpdateSuffix)
}
