// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"github.com/google/uuid"
	. "github.com/jucke/kerasgo/pkg/core/graph"
)

const (
	// RMSPropDefaultLearningRate is used by RMSProp if no learning rate is set.
	RMSPropDefaultLearningRate = 0.001

	// RMSPropDefaultScope is the default scope of the RMSProp slots.
	RMSPropDefaultScope = "rmsprop"

	// ParamRMSPropRho configures the decay of the moving averages of RMSProp.
	ParamRMSPropRho = "rmsprop_rho"

	// ParamRMSPropEpsilon configures the epsilon of RMSProp.
	ParamRMSPropEpsilon = "rmsprop_epsilon"

	// RMSLabel is the label of the slot with the moving average of the squared gradients.
	RMSLabel = "rms"

	// MeanGradientLabel is the label of the slot with the moving average of the gradients, used by centered RMSProp.
	MeanGradientLabel = "mg"
)

// RMSPropConfig configures the RMSProp optimizer.
type RMSPropConfig struct {
	scopeName    string
	learningRate float64
	rho          float64
	momentum     float64
	epsilon      float64
	centered     bool
	clipGradient ClipGradient
}

// RMSProp is an optimizer that divides the learning rate for a weight by a running average
// of the recent gradients magnitudes (L2) for that weight:
//
//	ms  = rho * ms + (1 - rho) * g * g
//	mom = momentum * mom + learningRate * g / sqrt(ms + epsilon)
//	var = var - mom
//
// If centered, the variance of the gradients is used instead:
//
//	mg  = rho * mg + (1 - rho) * g
//	mom = momentum * mom + learningRate * g / sqrt(ms - mg * mg + epsilon)
//
// It was described first in the following sources:
// * https://www.cs.toronto.edu/~tijmen/csc321/slides/lecture_slides_lec6.pdf (Hinton)
// * https://arxiv.org/pdf/1308.0850 (Graves)
func RMSProp() *RMSPropConfig {
	return &RMSPropConfig{
		scopeName:    RMSPropDefaultScope,
		learningRate: RMSPropDefaultLearningRate,
		rho:          0.9,
		epsilon:      1e-7,
		clipGradient: NoClip(),
	}
}

// FromParams configures the optimizer from hyperparameters.
func (c *RMSPropConfig) FromParams(params map[string]any) *RMSPropConfig {
	c.learningRate = GetParamOr(params, ParamLearningRate, c.learningRate)
	c.rho = GetParamOr(params, ParamRMSPropRho, c.rho)
	c.momentum = GetParamOr(params, ParamMomentum, c.momentum)
	c.epsilon = GetParamOr(params, ParamRMSPropEpsilon, c.epsilon)
	c.clipGradient = clipFromParams(params, c.clipGradient)
	return c
}

// LearningRate sets the learning rate. Default is RMSPropDefaultLearningRate.
func (c *RMSPropConfig) LearningRate(value float64) *RMSPropConfig {
	c.learningRate = value
	return c
}

// Rho sets the decay of the moving averages. Default is 0.9.
func (c *RMSPropConfig) Rho(rho float64) *RMSPropConfig {
	c.rho = rho
	return c
}

// Momentum sets the momentum. Default is 0.
func (c *RMSPropConfig) Momentum(value float64) *RMSPropConfig {
	c.momentum = value
	return c
}

// Epsilon used inside the square root of the denominator. Default is 1e-7.
func (c *RMSPropConfig) Epsilon(epsilon float64) *RMSPropConfig {
	c.epsilon = epsilon
	return c
}

// Centered normalizes the gradients by their estimated variance, instead of the second moment.
func (c *RMSPropConfig) Centered(centered bool) *RMSPropConfig {
	c.centered = centered
	return c
}

// Scope used to name the slots.
func (c *RMSPropConfig) Scope(name string) *RMSPropConfig {
	c.scopeName = name
	return c
}

// UniqueScope appends a random unique suffix to the scope.
func (c *RMSPropConfig) UniqueScope() *RMSPropConfig {
	c.scopeName = c.scopeName + "_" + uuid.NewString()
	return c
}

// ClipGradient sets the clipping policy applied to every gradient. The default is NoClip.
func (c *RMSPropConfig) ClipGradient(clip ClipGradient) *RMSPropConfig {
	c.clipGradient = clip
	return c
}

// Done returns the configured optimizers.Interface.
func (c *RMSPropConfig) Done() Interface {
	config := *c
	return &rmsProp{config: &config, slots: NewSlotStore(config.scopeName)}
}

type rmsProp struct {
	config *RMSPropConfig
	slots  *SlotStore
}

// Name implements optimizers.Interface.
func (o *rmsProp) Name() string { return "RMSProp" }

// CreateSlots implements optimizers.Interface.
func (o *rmsProp) CreateSlots(g *Graph, variables []*Variable) {
	o.slots.Begin(g)
	if o.config.centered {
		createZeroSlots(o.slots, variables, RMSLabel, MeanGradientLabel, MomentumLabel)
	} else {
		createZeroSlots(o.slots, variables, RMSLabel, MomentumLabel)
	}
}

// ApplyGradients implements optimizers.Interface.
func (o *rmsProp) ApplyGradients(g *Graph, variables []*Variable, gradients []*Node) []*Node {
	checkGradients(g, variables, gradients)
	o.slots.AssertCreated(g)
	c := o.config
	updates := make([]*Node, 0, len(variables))
	for ii, v := range variables {
		ms := o.slots.Slot(g, v.Name(), RMSLabel)
		mom := o.slots.Slot(g, v.Name(), MomentumLabel)
		var mg *Variable
		if c.centered {
			mg = o.slots.Slot(g, v.Name(), MeanGradientLabel)
		}
		grad := c.clipGradient.Clip(gradients[ii])

		dtype := v.DType()
		rho := Scalar(g, dtype, c.rho)
		newMS := Add(Mul(rho, ms.ValueGraph()), Mul(OneMinus(rho), Mul(grad, grad)))
		assigns := []*Node{Assign(ms, newMS)}
		denominator := newMS
		if c.centered {
			newMG := Add(Mul(rho, mg.ValueGraph()), Mul(OneMinus(rho), grad))
			assigns = append(assigns, Assign(mg, newMG))
			denominator = Sub(newMS, Mul(newMG, newMG))
		}
		step := Div(Mul(Scalar(g, dtype, c.learningRate), grad), Sqrt(Add(denominator, Scalar(g, dtype, c.epsilon))))
		newMom := Add(Mul(Scalar(g, dtype, c.momentum), mom.ValueGraph()), step)
		assigns = append(assigns, Assign(mom, newMom), Assign(v, Sub(v.ValueGraph(), newMom)))
		updates = append(updates, updateOp(o.slots, v, assigns...))
	}
	return updates
}
