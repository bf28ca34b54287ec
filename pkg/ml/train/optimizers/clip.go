// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"fmt"

	. "github.com/jucke/kerasgo/pkg/core/graph"
)

// ClipGradient is a policy applied to each gradient before it is used by an optimizer.
//
// Clip must be pure: it only builds the graph of the clipped gradient, and holds no state across calls.
// Optimizers call it once per variable on every step.
type ClipGradient interface {
	Clip(gradient *Node) *Node
	String() string
}

// NoClip returns the identity clipping policy, the default of all optimizers.
func NoClip() ClipGradient { return noClip{} }

type noClip struct{}

func (noClip) Clip(gradient *Node) *Node { return gradient }
func (noClip) String() string            { return "NoClip" }

// ClipByValue returns a policy that clips each value of the gradient to the interval [minValue, maxValue].
func ClipByValue(minValue, maxValue float64) ClipGradient {
	return clipByValue{minValue: minValue, maxValue: maxValue}
}

// ClipByAbsValue is a shortcut to ClipByValue(-value, value).
func ClipByAbsValue(value float64) ClipGradient {
	return ClipByValue(-value, value)
}

type clipByValue struct {
	minValue, maxValue float64
}

func (c clipByValue) Clip(gradient *Node) *Node {
	return ClipScalar(gradient, c.minValue, c.maxValue)
}

func (c clipByValue) String() string {
	return fmt.Sprintf("ClipByValue(%g, %g)", c.minValue, c.maxValue)
}

// ClipByNorm returns a policy that rescales the gradient so its L2 norm is at most clipNorm:
// `gradient * clipNorm / max(L2Norm(gradient), clipNorm)`.
func ClipByNorm(clipNorm float64) ClipGradient {
	return clipByNorm{clipNorm: clipNorm}
}

type clipByNorm struct {
	clipNorm float64
}

func (c clipByNorm) Clip(gradient *Node) *Node {
	g := gradient.Graph()
	clipNorm := Scalar(g, gradient.DType(), c.clipNorm)
	return Div(Mul(gradient, clipNorm), Max(L2Norm(gradient), clipNorm))
}

func (c clipByNorm) String() string {
	return fmt.Sprintf("ClipByNorm(%g)", c.clipNorm)
}
