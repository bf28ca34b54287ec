// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"github.com/google/uuid"
	. "github.com/jucke/kerasgo/pkg/core/graph"
)

const (
	// AdaGradDefaultLearningRate is used by AdaGrad and AdaDelta if no learning rate is set.
	AdaGradDefaultLearningRate = 0.001

	// AdaGradDefaultScope is the default scope of the AdaGrad accumulators.
	AdaGradDefaultScope = "adagrad"

	// AdaDeltaDefaultScope is the default scope of the AdaDelta accumulators.
	AdaDeltaDefaultScope = "adadelta"

	// ParamAdaGradInitialAccumulator configures the initial value of the AdaGrad accumulators.
	ParamAdaGradInitialAccumulator = "adagrad_initial_accumulator"

	// ParamAdaGradEpsilon configures the epsilon of AdaGrad.
	ParamAdaGradEpsilon = "adagrad_epsilon"

	// ParamAdaDeltaEpsilon configures the epsilon of AdaDelta.
	ParamAdaDeltaEpsilon = "adadelta_epsilon"

	// ParamAdaDeltaRho configures the decay of the AdaDelta moving averages.
	ParamAdaDeltaRho = "adadelta_rho"

	// AccumulatorLabel is the label of the slot with the accumulated squared gradients.
	AccumulatorLabel = "accumulator"

	// AccumulatorUpdateLabel is the label of the AdaDelta slot with the moving average of the squared updates.
	AccumulatorUpdateLabel = "accumulator_update"
)

// AdaGradConfig configures the AdaGrad optimizer.
type AdaGradConfig struct {
	scopeName               string
	learningRate            float64
	initialAccumulatorValue float64
	epsilon                 float64
	clipGradient            ClipGradient
}

// AdaGrad adapts the learning rate of each value to the sum of its squared gradients:
//
//	accum = accum + g * g
//	var   = var - learningRate * g / (sqrt(accum) + epsilon)
//
// The accumulators start at initialAccumulatorValue (0.1 by default).
func AdaGrad() *AdaGradConfig {
	return &AdaGradConfig{
		scopeName:               AdaGradDefaultScope,
		learningRate:            AdaGradDefaultLearningRate,
		initialAccumulatorValue: 0.1,
		epsilon:                 1e-7,
		clipGradient:            NoClip(),
	}
}

// FromParams configures the optimizer from hyperparameters.
func (c *AdaGradConfig) FromParams(params map[string]any) *AdaGradConfig {
	c.learningRate = GetParamOr(params, ParamLearningRate, c.learningRate)
	c.initialAccumulatorValue = GetParamOr(params, ParamAdaGradInitialAccumulator, c.initialAccumulatorValue)
	c.epsilon = GetParamOr(params, ParamAdaGradEpsilon, c.epsilon)
	c.clipGradient = clipFromParams(params, c.clipGradient)
	return c
}

// LearningRate sets the learning rate. Default is AdaGradDefaultLearningRate.
func (c *AdaGradConfig) LearningRate(value float64) *AdaGradConfig {
	c.learningRate = value
	return c
}

// InitialAccumulatorValue sets the initial value of the accumulators.
func (c *AdaGradConfig) InitialAccumulatorValue(value float64) *AdaGradConfig {
	c.initialAccumulatorValue = value
	return c
}

// Epsilon added to the denominator. Default is 1e-7.
func (c *AdaGradConfig) Epsilon(epsilon float64) *AdaGradConfig {
	c.epsilon = epsilon
	return c
}

// Scope used to name the accumulators.
func (c *AdaGradConfig) Scope(name string) *AdaGradConfig {
	c.scopeName = name
	return c
}

// UniqueScope appends a random unique suffix to the scope.
func (c *AdaGradConfig) UniqueScope() *AdaGradConfig {
	c.scopeName = c.scopeName + "_" + uuid.NewString()
	return c
}

// ClipGradient sets the clipping policy applied to every gradient. The default is NoClip.
func (c *AdaGradConfig) ClipGradient(clip ClipGradient) *AdaGradConfig {
	c.clipGradient = clip
	return c
}

// Done returns the configured optimizers.Interface.
func (c *AdaGradConfig) Done() Interface {
	config := *c
	return &adaGrad{config: &config, slots: NewSlotStore(config.scopeName)}
}

type adaGrad struct {
	config *AdaGradConfig
	slots  *SlotStore
}

// Name implements optimizers.Interface.
func (o *adaGrad) Name() string { return "AdaGrad" }

// CreateSlots implements optimizers.Interface.
func (o *adaGrad) CreateSlots(g *Graph, variables []*Variable) {
	o.slots.Begin(g)
	for _, v := range variables {
		o.slots.CreateSlot(v, AccumulatorLabel, Fill(g, v.Shape(), o.config.initialAccumulatorValue))
	}
}

// ApplyGradients implements optimizers.Interface.
func (o *adaGrad) ApplyGradients(g *Graph, variables []*Variable, gradients []*Node) []*Node {
	checkGradients(g, variables, gradients)
	o.slots.AssertCreated(g)
	c := o.config
	updates := make([]*Node, 0, len(variables))
	for ii, v := range variables {
		accum := o.slots.Slot(g, v.Name(), AccumulatorLabel)
		grad := c.clipGradient.Clip(gradients[ii])
		dtype := v.DType()
		newAccum := Add(accum.ValueGraph(), Mul(grad, grad))
		step := Div(Mul(Scalar(g, dtype, c.learningRate), grad), Add(Sqrt(newAccum), Scalar(g, dtype, c.epsilon)))
		updates = append(updates, updateOp(o.slots, v, Assign(v, Sub(v.ValueGraph(), step)), Assign(accum, newAccum)))
	}
	return updates
}

// AdaDeltaConfig configures the AdaDelta optimizer.
type AdaDeltaConfig struct {
	scopeName    string
	learningRate float64
	rho          float64
	epsilon      float64
	clipGradient ClipGradient
}

// AdaDelta adapts the learning rates based on a moving window of gradient updates:
//
//	accum       = rho * accum + (1 - rho) * g * g
//	update      = sqrt(accumUpdate + epsilon) / sqrt(accum + epsilon) * g
//	accumUpdate = rho * accumUpdate + (1 - rho) * update * update
//	var         = var - learningRate * update
func AdaDelta() *AdaDeltaConfig {
	return &AdaDeltaConfig{
		scopeName:    AdaDeltaDefaultScope,
		learningRate: AdaGradDefaultLearningRate,
		rho:          0.95,
		epsilon:      1e-7,
		clipGradient: NoClip(),
	}
}

// FromParams configures the optimizer from hyperparameters.
func (c *AdaDeltaConfig) FromParams(params map[string]any) *AdaDeltaConfig {
	c.learningRate = GetParamOr(params, ParamLearningRate, c.learningRate)
	c.rho = GetParamOr(params, ParamAdaDeltaRho, c.rho)
	c.epsilon = GetParamOr(params, ParamAdaDeltaEpsilon, c.epsilon)
	c.clipGradient = clipFromParams(params, c.clipGradient)
	return c
}

// LearningRate sets the learning rate. Default is AdaGradDefaultLearningRate.
func (c *AdaDeltaConfig) LearningRate(value float64) *AdaDeltaConfig {
	c.learningRate = value
	return c
}

// Rho sets the decay of the moving averages. Default is 0.95.
func (c *AdaDeltaConfig) Rho(rho float64) *AdaDeltaConfig {
	c.rho = rho
	return c
}

// Epsilon used inside the square roots. Default is 1e-7.
func (c *AdaDeltaConfig) Epsilon(epsilon float64) *AdaDeltaConfig {
	c.epsilon = epsilon
	return c
}

// Scope used to name the accumulators.
func (c *AdaDeltaConfig) Scope(name string) *AdaDeltaConfig {
	c.scopeName = name
	return c
}

// UniqueScope appends a random unique suffix to the scope.
func (c *AdaDeltaConfig) UniqueScope() *AdaDeltaConfig {
	c.scopeName = c.scopeName + "_" + uuid.NewString()
	return c
}

// ClipGradient sets the clipping policy applied to every gradient. The default is NoClip.
func (c *AdaDeltaConfig) ClipGradient(clip ClipGradient) *AdaDeltaConfig {
	c.clipGradient = clip
	return c
}

// Done returns the configured optimizers.Interface.
func (c *AdaDeltaConfig) Done() Interface {
	config := *c
	return &adaDelta{config: &config, slots: NewSlotStore(config.scopeName)}
}

type adaDelta struct {
	config *AdaDeltaConfig
	slots  *SlotStore
}

// Name implements optimizers.Interface.
func (o *adaDelta) Name() string { return "AdaDelta" }

// CreateSlots implements optimizers.Interface.
func (o *adaDelta) CreateSlots(g *Graph, variables []*Variable) {
	o.slots.Begin(g)
	createZeroSlots(o.slots, variables, AccumulatorLabel, AccumulatorUpdateLabel)
}

// ApplyGradients implements optimizers.Interface.
func (o *adaDelta) ApplyGradients(g *Graph, variables []*Variable, gradients []*Node) []*Node {
	checkGradients(g, variables, gradients)
	o.slots.AssertCreated(g)
	c := o.config
	updates := make([]*Node, 0, len(variables))
	for ii, v := range variables {
		accum := o.slots.Slot(g, v.Name(), AccumulatorLabel)
		accumUpdate := o.slots.Slot(g, v.Name(), AccumulatorUpdateLabel)
		grad := c.clipGradient.Clip(gradients[ii])
		dtype := v.DType()
		rho := Scalar(g, dtype, c.rho)
		epsilon := Scalar(g, dtype, c.epsilon)

		newAccum := Add(Mul(rho, accum.ValueGraph()), Mul(OneMinus(rho), Mul(grad, grad)))
		update := Mul(Div(Sqrt(Add(accumUpdate.ValueGraph(), epsilon)), Sqrt(Add(newAccum, epsilon))), grad)
		newAccumUpdate := Add(Mul(rho, accumUpdate.ValueGraph()), Mul(OneMinus(rho), Mul(update, update)))
		newValue := Sub(v.ValueGraph(), Mul(Scalar(g, dtype, c.learningRate), update))
		updates = append(updates, updateOp(o.slots, v,
			Assign(v, newValue), Assign(accum, newAccum), Assign(accumUpdate, newAccumUpdate)))
	}
	return updates
}
