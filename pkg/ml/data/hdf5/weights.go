// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package hdf5

import (
	"fmt"
	"strings"

	"github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// loadDataset reads the values of a dataset.
var loadDataset = (*Dataset).ToTensor

// LoadWeightsConfig holds the configuration created by LoadWeights. Once configured, call Done to load the weights.
type LoadWeightsConfig struct {
	graph           *graph.Graph
	contents        Contents
	mapping         map[string]string
	mappingOrder    []string
	allowMissing    bool
	showProgressBar bool
}

// LoadWeights sets the values of the trainable variables of g from the datasets of an HDF5 file (see ParseFile).
//
// By default, a variable named "dense/kernel" is loaded from the only dataset whose path ends with
// "/dense/kernel:0" (the Keras naming) or "/dense/kernel". Use Map to set the dataset explicitly.
//
// Variables are only changed if all of them are loaded successfully. Loading after Graph.InitializeVariables
// is required, otherwise the pending initializers will overwrite the loaded values.
//
// Example:
//
//	contents, err := hdf5.ParseFile("weights.h5")
//	if err != nil { ... }
//	err = hdf5.LoadWeights(g, contents).ProgressBar().Done()
func LoadWeights(g *graph.Graph, contents Contents) *LoadWeightsConfig {
	return &LoadWeightsConfig{
		graph:    g,
		contents: contents,
		mapping:  make(map[string]string),
	}
}

// Map sets explicitly the dataset (its full path) used to load the variable.
//
// It modifies the configuration and returns itself, so configuration calls can be cascaded.
func (c *LoadWeightsConfig) Map(variableName, datasetPath string) *LoadWeightsConfig {
	if _, found := c.mapping[variableName]; !found {
		c.mappingOrder = append(c.mappingOrder, variableName)
	}
	c.mapping[variableName] = datasetPath
	return c
}

// AllowMissing configures loading to skip (with a warning) trainable variables without a matching dataset.
// The default is to fail.
//
// It modifies the configuration and returns itself, so configuration calls can be cascaded.
func (c *LoadWeightsConfig) AllowMissing() *LoadWeightsConfig {
	c.allowMissing = true
	return c
}

// ProgressBar configures a progressbar to be displayed during the loading.
//
// It modifies the configuration and returns itself, so configuration calls can be cascaded.
func (c *LoadWeightsConfig) ProgressBar() *LoadWeightsConfig {
	c.showProgressBar = true
	return c
}

type variableDataset struct {
	variable *graph.Variable
	dataset  *Dataset
}

// resolve returns the dataset to load for each variable, in the order of the graph variables.
func (c *LoadWeightsConfig) resolve() ([]variableDataset, error) {
	for _, name := range c.mappingOrder {
		if c.graph.GetVariableByName(name) == nil {
			return nil, errors.Errorf("LoadWeights: variable %q not found in graph %q", name, c.graph.Name())
		}
		if _, found := c.contents[c.mapping[name]]; !found {
			return nil, errors.Errorf("LoadWeights: dataset %q for variable %q not found", c.mapping[name], name)
		}
	}
	var resolved []variableDataset
	for _, v := range c.graph.Variables() {
		if datasetPath, found := c.mapping[v.Name()]; found {
			resolved = append(resolved, variableDataset{variable: v, dataset: c.contents[datasetPath]})
			continue
		}
		if !v.Trainable {
			continue
		}
		var candidates []*Dataset
		for key, ds := range c.contents {
			if strings.HasSuffix(key, "/"+v.Name()+":0") || strings.HasSuffix(key, "/"+v.Name()) {
				candidates = append(candidates, ds)
			}
		}
		switch len(candidates) {
		case 0:
			if !c.allowMissing {
				return nil, errors.Errorf("LoadWeights: no dataset found for variable %s", v)
			}
			klog.Warningf("LoadWeights: no dataset found for variable %s, skipping", v)
		case 1:
			resolved = append(resolved, variableDataset{variable: v, dataset: candidates[0]})
		default:
			paths := make([]string, len(candidates))
			for ii, ds := range candidates {
				paths[ii] = ds.GroupPath
			}
			return nil, errors.Errorf("LoadWeights: more than one dataset matches variable %s: %q, use Map",
				v, paths)
		}
	}
	return resolved, nil
}

// Done loads the weights according to the configuration. See details in LoadWeights.
func (c *LoadWeightsConfig) Done() (err error) {
	resolved, err := c.resolve()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if c.showProgressBar {
		var totalSize uintptr
		for _, vd := range resolved {
			if vd.dataset.Shape.Ok() {
				totalSize += vd.dataset.Shape.Memory()
			}
		}
		bar = progressbar.DefaultBytesSilent(int64(totalSize), "loading weights")
		defer func() { _ = bar.Finish() }()
	}

	values := make([]*tensors.Tensor, len(resolved))
	for ii, vd := range resolved {
		if !vd.dataset.Shape.Equal(vd.variable.Shape()) {
			return errors.Errorf("LoadWeights: dataset %q has shape %s, variable %s has a different shape",
				vd.dataset.GroupPath, vd.dataset.Shape, vd.variable)
		}
		values[ii], err = loadDataset(vd.dataset)
		if err != nil {
			return errors.WithMessagef(err, "LoadWeights: variable %s", vd.variable)
		}
		if bar != nil {
			_ = bar.Add64(int64(vd.dataset.Shape.Memory()))
			fmt.Printf("\r%s", bar.String())
		}
	}
	for ii, vd := range resolved {
		vd.variable.SetValue(values[ii])
	}
	klog.V(1).Infof("LoadWeights: loaded %d variables in graph %q", len(resolved), c.graph.Name())
	return nil
}
