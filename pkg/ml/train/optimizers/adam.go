// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
)

const (
	// AdamDefaultLearningRate is used by Adam if no learning rate is set.
	AdamDefaultLearningRate = 0.001

	// AdamDefaultScope is the default scope name for the moments and the powers of beta used by Adam.
	AdamDefaultScope = "adam"

	// AdamaxDefaultScope is the default scope name used by Adam configured as Adamax.
	AdamaxDefaultScope = "adamax"

	// ParamAdamEpsilon can be used to configure the default value of epsilon. It must be a float64.
	ParamAdamEpsilon = "adam_epsilon"

	// ParamAdamBeta1 is the moving average coefficient for the gradient (momentum), the numerator.
	// The default value is 0.9
	ParamAdamBeta1 = "adam_beta1"

	// ParamAdamBeta2 is the moving average coefficient for the variance, the denominator.
	// The default value is 0.999
	ParamAdamBeta2 = "adam_beta2"

	// FirstMomentLabel is the label of the slot holding the moving average of the gradients.
	FirstMomentLabel = "m"

	// SecondMomentLabel is the label of the slot holding the moving average of the squared gradients
	// (or their L-infinity norm for Adamax).
	SecondMomentLabel = "v"

	// Beta1PowerLabel is the label of the global scalar holding beta1^t.
	Beta1PowerLabel = "beta1_power"

	// Beta2PowerLabel is the label of the global scalar holding beta2^t.
	Beta2PowerLabel = "beta2_power"
)

// Adam optimization is a stochastic gradient descent method based on an adaptive estimation of first-order and
// second-order moments. According to [Kingma et al., 2014](http://arxiv.org/abs/1412.6980),
// the method is "*computationally efficient, has little memory requirement, invariant to diagonal rescaling of
// gradients, and is well suited for problems that are large in terms of data/parameters*".
//
// It returns a configuration object that can be used to set its parameters. Once configured, call AdamConfig.Done,
// and it will return an optimizers.Interface.
//
// The variables are updated with:
//
//	lr_t = learningRate * sqrt(1 - beta2^t) / (1 - beta1^t)
//	m_t  = beta1 * m_{t-1} + (1 - beta1) * g
//	v_t  = beta2 * v_{t-1} + (1 - beta2) * g * g
//	var  = var - lr_t * m_t / (sqrt(v_t) + epsilon)
//
// The step t is not stored: the global scalars beta1_power and beta2_power start at 1 and are multiplied by
// their beta at every step, so they hold beta^t after t steps.
func Adam() *AdamConfig {
	return &AdamConfig{
		scopeName:    AdamDefaultScope,
		learningRate: AdamDefaultLearningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-7,
		clipGradient: NoClip(),
		dtype:        dtypes.InvalidDType,
	}
}

// AdamConfig holds the configuration for an Adam optimizer, create using Adam(), and once configured
// call Done to create an Adam-based optimizers.Interface.
type AdamConfig struct {
	scopeName    string
	dtype        dtypes.DType // If invalid, use the dtype of the first variable.
	learningRate float64
	beta1, beta2 float64
	epsilon      float64
	adamax       bool // Works as Adamax.
	clipGradient ClipGradient
}

// FromParams will configure Adam with the given hyperparameters.
// E.g.: "adam_epsilon" (see [ParamAdamEpsilon]) is used to set [AdamConfig.Epsilon].
func (c *AdamConfig) FromParams(params map[string]any) *AdamConfig {
	c.learningRate = GetParamOr(params, ParamLearningRate, c.learningRate)
	c.epsilon = GetParamOr(params, ParamAdamEpsilon, c.epsilon)
	c.beta1 = GetParamOr(params, ParamAdamBeta1, c.beta1)
	c.beta2 = GetParamOr(params, ParamAdamBeta2, c.beta2)
	c.clipGradient = clipFromParams(params, c.clipGradient)
	return c
}

// Scope defines the scope used to name the moments and powers of beta variables.
// Two optimizers in the same graph must use different scopes, see UniqueScope.
//
// It defaults to AdamDefaultScope.
func (c *AdamConfig) Scope(name string) *AdamConfig {
	c.scopeName = name
	return c
}

// UniqueScope appends a random unique suffix to the scope, so several optimizers can be used in the same graph.
func (c *AdamConfig) UniqueScope() *AdamConfig {
	c.scopeName = c.scopeName + "_" + uuid.NewString()
	return c
}

// DType sets the dtype of the powers of beta. The default is the dtype of the first variable.
func (c *AdamConfig) DType(dtype dtypes.DType) *AdamConfig {
	c.dtype = dtype
	return c
}

// LearningRate sets the base learning rate. Default is AdamDefaultLearningRate.
func (c *AdamConfig) LearningRate(value float64) *AdamConfig {
	c.learningRate = value
	return c
}

// Betas set the two moving averages constants (exponential decays). They default to 0.9 and 0.999.
//
// The first is for the gradient momentum (the numerator of the step taken), and the second
// is for the variance of the gradients (denominator).
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	c.beta1, c.beta2 = beta1, beta2
	return c
}

// Epsilon used on the denominator as a small constant for stability.
// For low-precision numbers like float16, try a larger value here, like 1e-3.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	c.epsilon = epsilon
	return c
}

// ClipGradient sets the clipping policy applied to every gradient. The default is NoClip.
func (c *AdamConfig) ClipGradient(clip ClipGradient) *AdamConfig {
	c.clipGradient = clip
	return c
}

// Adamax configure Adam to use an L-infinity (== max, which gives the name) for
// the second moment, instead of L2, as described in the same Adam paper:
//
//	m_t = beta1 * m_{t-1} + (1 - beta1) * g
//	v_t = max(beta2 * v_{t-1}, |g|)
//	var = var - learningRate / (1 - beta1^t) * m_t / (v_t + epsilon)
//
// If the scope was not changed, it becomes AdamaxDefaultScope.
func (c *AdamConfig) Adamax() *AdamConfig {
	c.adamax = true
	if c.scopeName == AdamDefaultScope {
		c.scopeName = AdamaxDefaultScope
	}
	return c
}

// Done will finish the configuration and construct an optimizers.Interface that implements Adam (or Adamax).
// The configuration is copied, so further changes to c don't affect the returned optimizer.
func (c *AdamConfig) Done() Interface {
	config := *c
	return &adam{config: &config, slots: NewSlotStore(config.scopeName)}
}

// adam implements the Adam algorithm as an optimizers.Interface.
type adam struct {
	config *AdamConfig
	slots  *SlotStore
}

// Name implements optimizers.Interface.
func (o *adam) Name() string {
	if o.config.adamax {
		return "Adamax"
	}
	return "Adam"
}

// CreateSlots implements optimizers.Interface. It creates the 1st and 2nd moments (zero-initialized)
// for each variable, and the global powers of beta (initialized to 1).
func (o *adam) CreateSlots(g *Graph, variables []*Variable) {
	o.slots.Begin(g)
	createZeroSlots(o.slots, variables, FirstMomentLabel, SecondMomentLabel)
	dtype := stateDType(o.config.dtype, variables)
	o.slots.CreateScalar(g, Beta1PowerLabel, Ones(g, shapes.Scalar(dtype)))
	if !o.config.adamax {
		o.slots.CreateScalar(g, Beta2PowerLabel, Ones(g, shapes.Scalar(dtype)))
	}
}

// ApplyGradients implements optimizers.Interface.
func (o *adam) ApplyGradients(g *Graph, variables []*Variable, gradients []*Node) []*Node {
	checkGradients(g, variables, gradients)
	o.slots.AssertCreated(g)
	c := o.config

	// The powers of beta for this step, computed from the values before the step.
	beta1Power := o.slots.Scalar(g, Beta1PowerLabel)
	powerDType := beta1Power.DType()
	beta1T := Mul(beta1Power.ValueGraph(), Scalar(g, powerDType, c.beta1))
	var beta2Power *Variable
	var beta2T *Node
	if !c.adamax {
		beta2Power = o.slots.Scalar(g, Beta2PowerLabel)
		beta2T = Mul(beta2Power.ValueGraph(), Scalar(g, powerDType, c.beta2))
	}

	updates := make([]*Node, 0, len(variables)+2)
	for ii, v := range variables {
		m := o.slots.Slot(g, v.Name(), FirstMomentLabel)
		secondMoment := o.slots.Slot(g, v.Name(), SecondMomentLabel)
		grad := c.clipGradient.Clip(gradients[ii])
		if c.adamax {
			updates = append(updates, o.applyAdamax(v, m, secondMoment, ConvertDType(beta1T, v.DType()), grad))
		} else {
			updates = append(updates, o.applyAdam(v, m, secondMoment,
				ConvertDType(beta1T, v.DType()), ConvertDType(beta2T, v.DType()), grad))
		}
	}

	// Powers of beta are updated once, after all variables read their values.
	updates = append(updates,
		Assign(beta1Power, beta1T).WithName(o.slots.SlotName("", Beta1PowerLabel)+UpdateSuffix))
	if !c.adamax {
		updates = append(updates,
			Assign(beta2Power, beta2T).WithName(o.slots.SlotName("", Beta2PowerLabel)+UpdateSuffix))
	}
	return updates
}

func (o *adam) applyAdam(v, m, secondMoment *Variable, beta1T, beta2T, grad *Node) *Node {
	c := o.config
	g, dtype := v.Graph(), v.DType()
	learningRate := Scalar(g, dtype, c.learningRate)
	beta1 := Scalar(g, dtype, c.beta1)
	beta2 := Scalar(g, dtype, c.beta2)
	epsilon := Scalar(g, dtype, c.epsilon)

	lrT := Div(Mul(learningRate, Sqrt(OneMinus(beta2T))), OneMinus(beta1T))
	newM := Add(Mul(beta1, m.ValueGraph()), Mul(OneMinus(beta1), grad))
	newV := Add(Mul(beta2, secondMoment.ValueGraph()), Mul(Mul(OneMinus(beta2), grad), grad))
	newValue := Sub(v.ValueGraph(), Div(Mul(lrT, newM), Add(Sqrt(newV), epsilon)))
	return updateOp(o.slots, v, Assign(v, newValue), Assign(m, newM), Assign(secondMoment, newV))
}

func (o *adam) applyAdamax(v, m, secondMoment *Variable, beta1T, grad *Node) *Node {
	c := o.config
	g, dtype := v.Graph(), v.DType()
	learningRate := Scalar(g, dtype, c.learningRate)
	beta1 := Scalar(g, dtype, c.beta1)
	beta2 := Scalar(g, dtype, c.beta2)
	epsilon := Scalar(g, dtype, c.epsilon)

	newM := Add(Mul(beta1, m.ValueGraph()), Mul(OneMinus(beta1), grad))
	newV := Max(Mul(beta2, secondMoment.ValueGraph()), Abs(grad))
	lrT := Div(learningRate, OneMinus(beta1T))
	newValue := Sub(v.ValueGraph(), Mul(lrT, Div(newM, Add(newV, epsilon))))
	return updateOp(o.slots, v, Assign(v, newValue), Assign(m, newM), Assign(secondMoment, newV))
}
