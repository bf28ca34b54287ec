// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package hdf5

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/jucke/kerasgo/pkg/core/graph"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContentsOutput = `HDF5 "weights.h5" {
FILE_CONTENTS {
 group      /
 group      /dense
 dataset    /dense/bias:0
 dataset    /dense/kernel:0
 group      /dense_1
 dataset    /dense_1/bias:0
 dataset    /dense_1/kernel:0
 dataset    /step
 dataset    /name
 }
}
`

const testHeaderOutput = `HDF5 "weights.h5" {
DATASET "/dense/bias:0" {
   DATATYPE  H5T_IEEE_F32LE
   DATASPACE  SIMPLE { ( 3 ) / ( 3 ) }
}
DATASET "/dense/kernel:0" {
   DATATYPE  H5T_IEEE_F32LE
   DATASPACE  SIMPLE { ( 2, 3 ) / ( 2, 3 ) }
}
DATASET "/dense_1/bias:0" {
   DATATYPE  H5T_IEEE_F32LE
   DATASPACE  SIMPLE { ( 1 ) / ( 1 ) }
}
DATASET "/dense_1/kernel:0" {
   DATATYPE  H5T_IEEE_F32LE
   DATASPACE  SIMPLE { ( 3, 1 ) / ( 3, 1 ) }
}
DATASET "/step" {
   DATATYPE  H5T_IEEE_F64LE
   DATASPACE  SCALAR
}
DATASET "/name" {
   DATATYPE  H5T_STRING {
      STRSIZE H5T_VARIABLE;
   }
   DATASPACE  SCALAR
}
}
`

func parseTestContents(t *testing.T) Contents {
	contents := must.M1(parseContents("weights.h5", testContentsOutput))
	require.NoError(t, parseHeaders(contents, "weights.h5", testHeaderOutput))
	return contents
}

func TestDtypeForH5T(t *testing.T) {
	assert.Equal(t, dtypes.Float32, DtypeForH5T("H5T_IEEE_F32LE"))
	assert.Equal(t, dtypes.Float64, DtypeForH5T("H5T_IEEE_F64BE"))
	assert.Equal(t, dtypes.Float16, DtypeForH5T("H5T_IEEE_F16LE"))
	assert.Equal(t, dtypes.Int64, DtypeForH5T("H5T_STD_I64LE"))
	assert.Equal(t, dtypes.InvalidDType, DtypeForH5T("H5T_STRING"))
}

func TestParse(t *testing.T) {
	contents := parseTestContents(t)
	require.Len(t, contents, 6)
	kernel := contents["/dense/kernel:0"]
	require.NotNil(t, kernel)
	assert.Equal(t, "weights.h5", kernel.FilePath)
	assert.True(t, kernel.Shape.Equal(shapes.Make(dtypes.Float32, 2, 3)))
	assert.True(t, strings.HasPrefix(kernel.RawHeader, `DATASET "/dense/kernel:0"`))
	assert.True(t, contents["/step"].Shape.Equal(shapes.Scalar(dtypes.Float64)))
	assert.False(t, contents["/name"].Shape.Ok())

	// Headers don't match the contents.
	contents = must.M1(parseContents("weights.h5", testContentsOutput))
	delete(contents, "/step")
	require.Error(t, parseHeaders(contents, "weights.h5", testHeaderOutput))
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.h5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access HDF5 file")
}

func TestPrintGroups(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, PrintGroups(&sb, parseTestContents(t)))
	want := `dense/
    bias:0 (Float32)[3]
    kernel:0 (Float32)[2 3]
dense_1/
    bias:0 (Float32)[1]
    kernel:0 (Float32)[3 1]
name (unsupported)
step (Float64)
`
	assert.Equal(t, want, sb.String())
}

// fakeLoad replaces the loading of datasets with the given values, indexed by dataset path.
func fakeLoad(t *testing.T, values map[string]*tensors.Tensor) {
	previous := loadDataset
	loadDataset = func(ds *Dataset) (*tensors.Tensor, error) {
		value, found := values[ds.GroupPath]
		require.Truef(t, found, "unexpected load of dataset %q", ds.GroupPath)
		return value, nil
	}
	t.Cleanup(func() { loadDataset = previous })
}

func TestLoadWeights(t *testing.T) {
	contents := parseTestContents(t)
	fakeLoad(t, map[string]*tensors.Tensor{
		"/dense/kernel:0":   tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}}),
		"/dense/bias:0":     tensors.FromValue([]float32{0.1, 0.2, 0.3}),
		"/dense_1/kernel:0": tensors.FromValue([][]float32{{1}, {1}, {1}}),
		"/dense_1/bias:0":   tensors.FromValue([]float32{-1}),
	})

	g := graph.NewGraph("load_weights")
	kernel := g.Variable("dense/kernel", shapes.Make(dtypes.Float32, 2, 3))
	bias := g.Variable("dense/bias", shapes.Make(dtypes.Float32, 3))
	output := g.Variable("output", shapes.Make(dtypes.Float32, 1))
	slot := g.Variable("adam/dense/kernel/m", shapes.Make(dtypes.Float32, 2, 3)).SetTrainable(false)

	// output has no matching dataset.
	require.Error(t, LoadWeights(g, contents).Done())
	assert.False(t, kernel.IsInitialized())

	require.NoError(t, LoadWeights(g, contents).Map("output", "/dense_1/bias:0").ProgressBar().Done())
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, kernel.Value().Value())
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, bias.Value().Value())
	assert.Equal(t, []float32{-1}, output.Value().Value())
	assert.False(t, slot.IsInitialized())

	// Invalid mappings.
	require.Error(t, LoadWeights(g, contents).Map("missing", "/dense/bias:0").Done())
	require.Error(t, LoadWeights(g, contents).Map("output", "/missing").Done())

	// Shape mismatch: nothing is changed.
	err := LoadWeights(g, contents).Map("output", "/dense/bias:0").Done()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different shape")
	assert.Equal(t, []float32{-1}, output.Value().Value())
}

func TestLoadWeightsAmbiguous(t *testing.T) {
	contents := parseTestContents(t)
	contents["/model_weights/dense/kernel:0"] = &Dataset{
		GroupPath: "/model_weights/dense/kernel:0",
		Shape:     shapes.Make(dtypes.Float32, 2, 3),
	}
	fakeLoad(t, map[string]*tensors.Tensor{
		"/dense/kernel:0": tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}}),
	})
	g := graph.NewGraph("ambiguous")
	kernel := g.Variable("dense/kernel", shapes.Make(dtypes.Float32, 2, 3))
	err := LoadWeights(g, contents).Done()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one dataset")

	require.NoError(t, LoadWeights(g, contents).Map("dense/kernel", "/dense/kernel:0").Done())
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, kernel.Value().Value())

	g = graph.NewGraph("missing")
	_ = g.Variable("other", shapes.Make(dtypes.Float32, 2))
	require.NoError(t, LoadWeights(g, contents).AllowMissing().Done())
}
