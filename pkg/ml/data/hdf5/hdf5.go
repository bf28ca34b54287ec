// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

// Package hdf5 provides a trivial API to access HDF5 file contents, used to load the weights of models
// saved by Keras.
//
// It requires the `hdf5-tools` (a deb package) installed in the system, more specifically the
// `h5dump` binary.
//
// It is basic but provides the necessary functionality to list the contents and extract
// the binary contents.
package hdf5

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Contents is a map of all the datasets present in the HDF5 file. The key is the path
// built from the concatenation of the "group" (how HDF5 calls directories or folders) with
// the dataset name, separated by a "/" character.
type Contents map[string]*Dataset

// Dataset has (some of) the metadata about a dataset (but not the data itself). The
// dataset "DATATYPE" and "DATASPACE" fields are converted to the equivalent `shapes.Shape`.
//
// If the dataset type or shape is not supported, Shape is invalid (Shape.Ok() is false).
type Dataset struct {
	FilePath, GroupPath, RawHeader string
	DType                          dtypes.DType
	Shape                          shapes.Shape
}

// H5DumpBinary is the name of the binary used to read HDF5 files.
const H5DumpBinary = "h5dump"

// ParseFile in filePath as an HDF5 file and returns map of contents.
//
// It requires the `hdf5-tools` (a deb package) installed in the system, more specifically the
// `h5dump` binary.
func ParseFile(filePath string) (contents Contents, err error) {
	// Check whether the file exists.
	_, err = os.Stat(filePath)
	if err != nil {
		err = errors.Wrapf(err, "cannot access HDF5 file in path %q", filePath)
		return
	}

	// List the contents of the filePath.
	contentsBytes, err := execH5Dump("--contents", filePath)
	if err != nil {
		return
	}
	contents, err = parseContents(filePath, string(contentsBytes))
	if err != nil || len(contents) == 0 {
		return
	}

	// Read header for datasets.
	headerArgs := make([]string, 0, len(contents)+2)
	headerArgs = append(headerArgs, "--header")
	for key := range contents {
		headerArgs = append(headerArgs, "--dataset="+key)
	}
	headerArgs = append(headerArgs, filePath)
	headerBytes, err := execH5Dump(headerArgs...)
	if err != nil {
		return nil, err
	}
	err = parseHeaders(contents, filePath, string(headerBytes))
	if err != nil {
		return nil, err
	}
	return
}

var (
	regexpH5Datasets               = regexp.MustCompile(`\s+dataset\s+(/.*)\n`)
	regexpH5DatasetHeaderName      = regexp.MustCompile(`\s+"(.*?)" \{\n`)
	regexpH5DatasetHeaderDataType  = regexp.MustCompile(`\s+DATATYPE\s+(\w.*?)\n`)
	regexpH5DatasetHeaderDataSpace = regexp.MustCompile(`\s+DATASPACE\s+(\w+)(\s+\{\s+\((.*?)\).*?)?\n`)
)

// parseContents parses the output of `h5dump --contents`.
func parseContents(filePath, output string) (Contents, error) {
	matches := regexpH5Datasets.FindAllStringSubmatch(output, -1)
	contents := make(Contents, len(matches))
	for _, match := range matches {
		groupPath := strings.TrimSpace(match[1])
		// in case someone inserted args into dataset name('--help', etc)
		if strings.HasPrefix(groupPath, "-") {
			return nil, errors.Errorf("invalid dataset name starting with '-': %q", groupPath)
		}
		contents[groupPath] = &Dataset{
			FilePath:  filePath,
			GroupPath: groupPath,
			Shape:     shapes.Invalid(),
		}
	}
	return contents, nil
}

// parseHeaders parses the output of `h5dump --header` for the datasets in contents, and fills their dtype
// and shape.
func parseHeaders(contents Contents, filePath, output string) error {
	rawDatasetHeaders := strings.Split(output, "DATASET")
	if len(rawDatasetHeaders)-1 != len(contents) {
		return errors.Errorf("failed to parse dataset headers for %q: expected %d DATASET, got %d",
			filePath, len(contents), len(rawDatasetHeaders)-1)
	}
datasetHeaders:
	for _, part := range rawDatasetHeaders[1:] {
		matches := regexpH5DatasetHeaderName.FindStringSubmatch(part)
		if len(matches) != 2 {
			return errors.Errorf("failed to parse dataset headers for %q: got %q", filePath, part)
		}
		key := matches[1]
		ds, found := contents[key]
		if !found {
			return errors.Errorf("unknown headers for %q: got %q", filePath, part)
		}
		ds.RawHeader = "DATASET" + part

		// Parse data type.
		matches = regexpH5DatasetHeaderDataType.FindStringSubmatch(part)
		if len(matches) != 2 {
			klog.Warningf("hdf5 %q: DATATYPE not parsed for dataset %q", filePath, key)
			continue
		}
		ds.DType = DtypeForH5T(matches[1])
		if ds.DType == dtypes.InvalidDType {
			continue datasetHeaders
		}

		// Parse DATASPACE
		matches = regexpH5DatasetHeaderDataSpace.FindStringSubmatch(part)
		if len(matches) != 4 {
			klog.Warningf("hdf5 %q: DATASPACE not parsed for dataset %q: %s", filePath, key, part)
			continue datasetHeaders
		}
		switch matches[1] {
		case "SCALAR":
			ds.Shape = shapes.Make(ds.DType)
		case "SIMPLE":
			dimsParts := strings.Split(matches[3], ",")
			dims := make([]int, 0, len(dimsParts))
			for _, dimStr := range dimsParts {
				dim, numErr := strconv.Atoi(strings.TrimSpace(dimStr))
				if numErr != nil || dim <= 0 {
					klog.Warningf("hdf5 %q: failed to parse dimension in DATASPACE of %q: %q", filePath, key, part)
					continue datasetHeaders
				}
				dims = append(dims, dim)
			}
			ds.Shape = shapes.Make(ds.DType, dims...)

		default:
			klog.Warningf("hdf5 %q: DATASPACE type %q of dataset %q not supported", filePath, matches[1], key)
			continue datasetHeaders
		}
	}
	return nil
}

// DtypeForH5T returns the DType corresponding to known HDF5 types. If not know/supported, returns
// invalid dtype.
func DtypeForH5T(h5type string) (dtype dtypes.DType) {
	switch h5type {
	case "H5T_IEEE_F16LE", "H5T_IEEE_F16BE":
		return dtypes.Float16
	case "H5T_IEEE_F32LE", "H5T_IEEE_F32BE":
		return dtypes.Float32
	case "H5T_IEEE_F64LE", "H5T_IEEE_F64BE":
		return dtypes.Float64
	case "H5T_STD_I32LE", "H5T_STD_I32BE":
		return dtypes.Int32
	case "H5T_STD_I64LE", "H5T_STD_I64BE":
		return dtypes.Int64
	}
	return dtypes.InvalidDType
}

// execH5Dump executes `h5dump`, and handles errors.
func execH5Dump(args ...string) (output []byte, err error) {
	binPath, err := findBinPath()
	if err != nil {
		return
	}
	cmd := exec.Command(binPath, args...)
	if cmd.Err != nil {
		err = errors.Wrapf(cmd.Err, "cannot execute %q required to access HDF5 file", cmd)
		return
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdoutBuf, &stderrBuf
	err = cmd.Run()
	if err != nil {
		err = errors.Wrapf(err, "failed executing %q to access HDF5 file", cmd)
		err = errors.WithMessagef(err, "STDERR captured:\n%s\n", stderrBuf.String())
		return
	}
	output = stdoutBuf.Bytes()
	return
}

func findBinPath() (binPath string, err error) {
	binPath, err = exec.LookPath(H5DumpBinary)
	if err != nil {
		err = errors.Wrapf(err, "cannot find `h5dump` binary in PATH, needed to parse HDF5 "+
			"format files (extension \".h5\") -- please install package hdf5-tools, which usually "+
			"holds `h5dump`")
		return
	}
	klog.V(2).Infof("using h5dump from %q", binPath)
	return
}

// Load the raw contents of the dataset, in little-endian order.
func (ds *Dataset) Load() (rawContent []byte, err error) {
	tmpFile, err := os.CreateTemp("", "hdf5_dataset")
	if err == nil {
		err = tmpFile.Close()
	}
	if err != nil {
		err = errors.Wrapf(err, "failed to create temporary file to extract HDF5 dataset")
		return
	}
	defer func() {
		if newErr := os.Remove(tmpFile.Name()); newErr != nil {
			klog.Warningf("Failed to remove temporary file %q used to extract HDF5 dataset: %+v", tmpFile.Name(), newErr)
		}
	}()
	_, err = execH5Dump("--dataset="+ds.GroupPath, "--binary=LE", "--output="+tmpFile.Name(), ds.FilePath)
	if err != nil {
		return
	}
	rawContent, err = os.ReadFile(tmpFile.Name())
	if err != nil {
		err = errors.Wrapf(err, "failed to read from temporary file %q to extract HDF5 dataset", tmpFile.Name())
		return
	}
	return
}

// ToTensor reads the HDF5 dataset into a tensors.Tensor. Only float datasets are supported.
func (ds *Dataset) ToTensor() (*tensors.Tensor, error) {
	if !ds.Shape.Ok() {
		return nil, errors.Errorf("no shape information from HDF5 dataset %q, can't convert to tensor", ds.GroupPath)
	}
	loadedData, err := ds.Load()
	if err != nil {
		return nil, err
	}
	tensor, err := tensors.FromBytes(ds.Shape, loadedData)
	if err != nil {
		return nil, errors.WithMessagef(err, "HDF5 dataset %q", ds.GroupPath)
	}
	return tensor, nil
}

// PrintGroups writes the tree of groups and datasets of the HDF5 contents to w, indenting each level with
// 4 spaces. Groups are suffixed with "/", datasets are followed by their shape.
func PrintGroups(w io.Writer, contents Contents) error {
	var previous []string
	for _, key := range slices.Sorted(maps.Keys(contents)) {
		parts := strings.Split(strings.Trim(key, "/"), "/")
		numGroups := len(parts) - 1
		common := 0
		for common < len(previous)-1 && common < numGroups && previous[common] == parts[common] {
			common++
		}
		for level := common; level < numGroups; level++ {
			if _, err := fmt.Fprintf(w, "%s%s/\n", strings.Repeat("    ", level), parts[level]); err != nil {
				return errors.Wrap(err, "failed to print HDF5 groups")
			}
		}
		shapeStr := "(unsupported)"
		if ds := contents[key]; ds.Shape.Ok() {
			shapeStr = ds.Shape.String()
		}
		if _, err := fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("    ", numGroups), parts[numGroups], shapeStr); err != nil {
			return errors.Wrap(err, "failed to print HDF5 groups")
		}
		previous = parts
	}
	return nil
}
