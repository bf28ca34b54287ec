// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for packages that depend on the graph package.
package graphtest

import (
	"fmt"
	"testing"

	"github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

// TestGraphFn should build its own inputs, and return both inputs and outputs
type TestGraphFn func(g *graph.Graph) (inputs, outputs []*graph.Node)

// RunTestGraphFn tests a graph building function graphFn by executing it and comparing
// its output(s) to the values in want, reporting back any errors in t.
//
// The graph variables are initialized (graph.Graph.InitializeVariables) before execution.
//
// delta is the margin of value on the difference of output and want values that are acceptable.
// Values of delta <= 0 means only exact equality is accepted.
func RunTestGraphFn(t *testing.T, testName string, graphFn TestGraphFn, want []any, delta float64) {
	t.Run(testName, func(t *testing.T) {
		wantTensors := make([]*tensors.Tensor, len(want))
		for ii, value := range want {
			if s, ok := value.(shapes.Shape); ok {
				wantTensors[ii] = tensors.FromShape(s)
			} else {
				wantTensors[ii] = tensors.FromValue(value)
			}
		}

		g := graph.NewGraph(testName)
		inputs, outputs := graphFn(g)
		require.NoErrorf(t, g.InitializeVariables(), "%s: failed to initialize variables", testName)
		inputsAndOutputs, err := g.Run(nil, append(inputs, outputs...)...)
		require.NoErrorf(t, err, "%s: failed to execute graph", testName)
		numInputs := len(inputs)
		for ii, value := range inputsAndOutputs {
			if value == nil {
				t.Fatalf("%q: value #%d is nil, it is not a value node", testName, ii)
			}
		}

		fmt.Printf("\n%s:\n", testName)
		for ii, input := range inputsAndOutputs[:numInputs] {
			fmt.Printf("\tInput %d: %s\n", ii, input)
		}
		if numInputs > 0 {
			fmt.Printf("\t======\n")
		}
		for ii, output := range inputsAndOutputs[numInputs:] {
			fmt.Printf("\tOutput %d: %s\n", ii, output)
		}
		require.Equalf(t, len(want), len(outputs), "%s: number of wanted results different from number of outputs", testName)

		for ii, output := range inputsAndOutputs[numInputs:] {
			require.Truef(t, wantTensors[ii].InDelta(output, delta), "%s: output #%d (%s) doesn't match wanted value %v",
				testName, ii, output, want[ii])
		}
	})
}
