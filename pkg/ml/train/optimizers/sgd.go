// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"github.com/google/uuid"
	. "github.com/jucke/kerasgo/pkg/core/graph"
)

const (
	// SGDDefaultLearningRate is the default learning rate used by the SGD and Momentum optimizers.
	SGDDefaultLearningRate = 0.01

	// SGDDefaultScope is the default scope of the SGD optimizer. SGD has no state, it's only used to name
	// the update operations.
	SGDDefaultScope = "sgd"

	// MomentumDefaultScope is the default scope of the accumulators of the Momentum optimizer.
	MomentumDefaultScope = "momentum"

	// ParamMomentum configures the momentum of the Momentum and RMSProp optimizers.
	ParamMomentum = "momentum"

	// MomentumLabel is the label of the slot holding the accumulated gradients of Momentum and RMSProp.
	MomentumLabel = "momentum"
)

// SGDConfig implements a Stochastic Gradient Descent optimizer.
type SGDConfig struct {
	scopeName    string
	learningRate float64
	clipGradient ClipGradient
}

// SGD creates an optimizer that performs plain gradient descent: `var = var - learningRate * g`.
func SGD() *SGDConfig {
	return &SGDConfig{
		scopeName:    SGDDefaultScope,
		learningRate: SGDDefaultLearningRate,
		clipGradient: NoClip(),
	}
}

// FromParams configures the learning rate and clipping from hyperparameters.
func (c *SGDConfig) FromParams(params map[string]any) *SGDConfig {
	c.learningRate = GetParamOr(params, ParamLearningRate, c.learningRate)
	c.clipGradient = clipFromParams(params, c.clipGradient)
	return c
}

// LearningRate sets the learning rate. The default value is SGDDefaultLearningRate.
func (c *SGDConfig) LearningRate(value float64) *SGDConfig {
	c.learningRate = value
	return c
}

// Scope used to name the update operations.
func (c *SGDConfig) Scope(name string) *SGDConfig {
	c.scopeName = name
	return c
}

// UniqueScope appends a random unique suffix to the scope.
func (c *SGDConfig) UniqueScope() *SGDConfig {
	c.scopeName = c.scopeName + "_" + uuid.NewString()
	return c
}

// ClipGradient sets the clipping policy applied to every gradient. The default is NoClip.
func (c *SGDConfig) ClipGradient(clip ClipGradient) *SGDConfig {
	c.clipGradient = clip
	return c
}

// Done returns the configured optimizers.Interface.
func (c *SGDConfig) Done() Interface {
	config := *c
	return &sgd{config: &config, slots: NewSlotStore(config.scopeName)}
}

type sgd struct {
	config *SGDConfig
	slots  *SlotStore
}

// Name implements optimizers.Interface.
func (o *sgd) Name() string { return "SGD" }

// CreateSlots implements optimizers.Interface. SGD has no slots, but it still marks the graph as set up.
func (o *sgd) CreateSlots(g *Graph, _ []*Variable) {
	o.slots.Begin(g)
}

// ApplyGradients implements optimizers.Interface.
func (o *sgd) ApplyGradients(g *Graph, variables []*Variable, gradients []*Node) []*Node {
	checkGradients(g, variables, gradients)
	o.slots.AssertCreated(g)
	updates := make([]*Node, 0, len(variables))
	for ii, v := range variables {
		grad := o.config.clipGradient.Clip(gradients[ii])
		learningRate := Scalar(g, v.DType(), o.config.learningRate)
		newValue := Sub(v.ValueGraph(), Mul(learningRate, grad))
		updates = append(updates, updateOp(o.slots, v, Assign(v, newValue)))
	}
	return updates
}

// MomentumConfig configures the gradient descent with momentum optimizer.
type MomentumConfig struct {
	scopeName    string
	learningRate float64
	momentum     float64
	nesterov     bool
	clipGradient ClipGradient
}

// Momentum creates a gradient descent optimizer with momentum:
//
//	accum = momentum * accum + g
//	var   = var - learningRate * accum
//
// Or, with Nesterov momentum:
//
//	var = var - learningRate * g - learningRate * momentum * accum
func Momentum() *MomentumConfig {
	return &MomentumConfig{
		scopeName:    MomentumDefaultScope,
		learningRate: SGDDefaultLearningRate,
		momentum:     0.9,
		clipGradient: NoClip(),
	}
}

// FromParams configures the optimizer from hyperparameters: ParamLearningRate, ParamMomentum and the clipping.
func (c *MomentumConfig) FromParams(params map[string]any) *MomentumConfig {
	c.learningRate = GetParamOr(params, ParamLearningRate, c.learningRate)
	c.momentum = GetParamOr(params, ParamMomentum, c.momentum)
	c.clipGradient = clipFromParams(params, c.clipGradient)
	return c
}

// LearningRate sets the learning rate. The default value is SGDDefaultLearningRate.
func (c *MomentumConfig) LearningRate(value float64) *MomentumConfig {
	c.learningRate = value
	return c
}

// Momentum sets the decay of the accumulated gradients. Default is 0.9.
func (c *MomentumConfig) Momentum(value float64) *MomentumConfig {
	c.momentum = value
	return c
}

// Nesterov enables Nesterov momentum.
func (c *MomentumConfig) Nesterov(enabled bool) *MomentumConfig {
	c.nesterov = enabled
	return c
}

// Scope used to name the accumulators.
func (c *MomentumConfig) Scope(name string) *MomentumConfig {
	c.scopeName = name
	return c
}

// UniqueScope appends a random unique suffix to the scope.
func (c *MomentumConfig) UniqueScope() *MomentumConfig {
	c.scopeName = c.scopeName + "_" + uuid.NewString()
	return c
}

// ClipGradient sets the clipping policy applied to every gradient. The default is NoClip.
func (c *MomentumConfig) ClipGradient(clip ClipGradient) *MomentumConfig {
	c.clipGradient = clip
	return c
}

// Done returns the configured optimizers.Interface.
func (c *MomentumConfig) Done() Interface {
	config := *c
	return &momentum{config: &config, slots: NewSlotStore(config.scopeName)}
}

type momentum struct {
	config *MomentumConfig
	slots  *SlotStore
}

// Name implements optimizers.Interface.
func (o *momentum) Name() string { return "Momentum" }

// CreateSlots implements optimizers.Interface.
func (o *momentum) CreateSlots(g *Graph, variables []*Variable) {
	o.slots.Begin(g)
	createZeroSlots(o.slots, variables, MomentumLabel)
}

// ApplyGradients implements optimizers.Interface.
func (o *momentum) ApplyGradients(g *Graph, variables []*Variable, gradients []*Node) []*Node {
	checkGradients(g, variables, gradients)
	o.slots.AssertCreated(g)
	c := o.config
	updates := make([]*Node, 0, len(variables))
	for ii, v := range variables {
		accum := o.slots.Slot(g, v.Name(), MomentumLabel)
		grad := c.clipGradient.Clip(gradients[ii])
		learningRate := Scalar(g, v.DType(), c.learningRate)
		momentumConst := Scalar(g, v.DType(), c.momentum)
		newAccum := Add(Mul(momentumConst, accum.ValueGraph()), grad)
		var step *Node
		if c.nesterov {
			step = Add(Mul(learningRate, grad), Mul(Mul(learningRate, momentumConst), newAccum))
		} else {
			step = Mul(learningRate, newAccum)
		}
		newValue := Sub(v.ValueGraph(), step)
		updates = append(updates, updateOp(o.slots, v, Assign(v, newValue), Assign(accum, newAccum)))
	}
	return updates
}
