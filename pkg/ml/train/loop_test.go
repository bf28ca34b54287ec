// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"bytes"
	"testing"
	"time"

	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
	"github.com/jucke/kerasgo/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLoop creates a loop training "w" with SGD (learning rate 0.5) and the gradient fed as a parameter.
func newTestLoop() (loop *Loop, w *Variable, grad *Node, updateOps []*Node) {
	g := NewGraph("loop")
	w = g.Variable("w", shapes.Make(dtypes.Float32, 2))
	w.SetValue(tensors.FromValue([]float32{1, 2}))
	grad = Parameter(g, "grad", shapes.Make(dtypes.Float32, 2))
	updater := optimizers.NewUpdater(g, optimizers.SGD().LearningRate(0.5).Done(), nil)
	updateOps = updater.UpdateOps([]*Variable{w}, []*Node{grad})
	return NewLoop(updater), w, grad, updateOps
}

func TestLoopRunSteps(t *testing.T) {
	loop, w, grad, updateOps := newTestLoop()
	var calls []string
	loop.OnStep("last", 10, func(loop *Loop) error {
		calls = append(calls, "last")
		return nil
	})
	loop.OnStep("first", -1, func(loop *Loop) error {
		calls = append(calls, "first")
		return nil
	})
	loop.OnStart("start", 0, func(loop *Loop) error {
		calls = append(calls, "start")
		return nil
	})
	loop.OnEnd("end", 0, func(loop *Loop) error {
		calls = append(calls, "end")
		return nil
	})
	var fedSteps []int
	feed := func(step int) (ParamsMap, error) {
		fedSteps = append(fedSteps, step)
		return ParamsMap{grad: []float32{1, 1}}, nil
	}
	require.NoError(t, loop.RunSteps(updateOps, 2, feed))
	assert.Equal(t, []string{"start", "first", "last", "first", "last", "end"}, calls)
	assert.Equal(t, []float32{0, 1}, w.Value().Value())
	assert.Equal(t, 2, loop.LoopStep)
	assert.Len(t, loop.TrainStepDurations, 2)
	assert.Equal(t, 2, loop.Updater.Steps())

	// Resuming continues from the last step.
	require.NoError(t, loop.RunSteps(updateOps, 1, feed))
	assert.Equal(t, []int{0, 1, 2}, fedSteps)
	assert.Equal(t, 2, loop.StartStep)
	assert.Equal(t, 3, loop.EndStep)
	assert.Equal(t, []float32{-0.5, 0.5}, w.Value().Value())

	// No steps: nothing happens.
	require.NoError(t, loop.RunSteps(updateOps, 0, feed))
	assert.Equal(t, 3, loop.LoopStep)
}

func TestLoopErrors(t *testing.T) {
	loop, w, grad, updateOps := newTestLoop()
	feed := func(step int) (ParamsMap, error) {
		if step == 1 {
			return nil, errors.New("no more data")
		}
		return ParamsMap{grad: []float32{1, 1}}, nil
	}
	err := loop.RunSteps(updateOps, 3, feed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no more data")
	assert.Equal(t, 1, loop.LoopStep)
	assert.Equal(t, []float32{0.5, 1.5}, w.Value().Value())

	// Missing parameter.
	require.Error(t, loop.RunSteps(updateOps, 1, nil))
	assert.Equal(t, []float32{0.5, 1.5}, w.Value().Value())

	// Failing hook.
	loop, _, grad, updateOps = newTestLoop()
	loop.OnStep("failing", 0, func(loop *Loop) error { return errors.New("stop") })
	err = loop.RunSteps(updateOps, 3, func(int) (ParamsMap, error) { return ParamsMap{grad: []float32{1, 1}}, nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), `OnStep(hook "failing")`)
	assert.Equal(t, 1, loop.Updater.Steps())
}

func TestMedianTrainStepDuration(t *testing.T) {
	loop := NewLoop(nil)
	assert.Equal(t, time.Millisecond, loop.MedianTrainStepDuration())
	loop.TrainStepDurations = []time.Duration{3 * time.Second, time.Second, 2 * time.Second}
	assert.Equal(t, 2*time.Second, loop.MedianTrainStepDuration())
	assert.Equal(t, 3*time.Second, loop.TrainStepDurations[0])
}

func TestProgressBar(t *testing.T) {
	loop, w, grad, updateOps := newTestLoop()
	var buf bytes.Buffer
	AttachProgressBarToWriter(loop, &buf)
	require.NoError(t, loop.RunSteps(updateOps, 4, func(int) (ParamsMap, error) {
		return ParamsMap{grad: []float32{1, 1}}, nil
	}))
	assert.Equal(t, []float32{-1, 0}, w.Value().Value())
	assert.Contains(t, buf.String(), "Median step duration")
}
