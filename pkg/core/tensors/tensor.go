// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement a `Tensor`, a host representation of a multidimensional array of floats.
//
// Tensors are the values fed to and returned from computation graphs (see package graph), and the
// values held by graph variables between executions.
//
// Values are stored flat, in row-major order, as float64. After every operation the values are rounded
// to the precision of the tensor's DType (float32 for dtypes.Float32, github.com/x448/float16 for
// dtypes.Float16), so arithmetic over Float32 tensors produces the same bits a native float32 kernel would
// for the basic operations (add, sub, mul, div, sqrt).
//
// There are various ways to construct a Tensor:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromScalarAndDimensions[T constraints.Float](value T, dimensions ...int): creates a Tensor with the
//     given dimensions, filled with the scalar value given.
//
//   - FromFlatDataAndDimensions[T constraints.Float](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions and set the flattened values with the given data.
//
//   - FromValue(value any): converts a Go scalar or (regular) multidimensional slice of float32, float64 or
//     float16.Float16. E.g.: `FromValue([][]float32{{1, 2}, {3, 5}})`.
//
//   - FromBytes(shape, raw): decodes little-endian raw binary values, as dumped by HDF5 tools.
package tensors

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// MaxSizeToPrint is the maximum number of elements printed by Tensor.String.
const MaxSizeToPrint = 16

// Tensor is a multidimensional array of floating point values with a fixed shape.
type Tensor struct {
	shape shapes.Shape
	flat  []float64
}

// FromShape returns a zero-valued Tensor with the given shape.
func FromShape(shape shapes.Shape) *Tensor {
	shape.AssertFloat()
	return &Tensor{shape: shape.Clone(), flat: make([]float64, shape.Size())}
}

// FromFlatData returns a Tensor with the given shape, using the values of flat (not copied).
// The values are rounded to the shape's dtype.
func FromFlatData(shape shapes.Shape, flat []float64) *Tensor {
	shape.AssertFloat()
	if shape.Size() != len(flat) {
		exceptions.Panicf("tensors.FromFlatData(%s): shape requires %d elements, %d given", shape, shape.Size(), len(flat))
	}
	t := &Tensor{shape: shape.Clone(), flat: flat}
	t.round()
	return t
}

// DTypeFor returns the dtype corresponding to the Go float type T.
func DTypeFor[T constraints.Float]() dtypes.DType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return dtypes.Float32
	case float64:
		return dtypes.Float64
	}
	// Named types based on float32/float64.
	if reflect.TypeOf(zero).Kind() == reflect.Float32 {
		return dtypes.Float32
	}
	return dtypes.Float64
}

// FromFlatDataAndDimensions creates a Tensor with the given dimensions and the flattened values of data.
func FromFlatDataAndDimensions[T constraints.Float](data []T, dimensions ...int) *Tensor {
	flat := make([]float64, len(data))
	for ii, v := range data {
		flat[ii] = float64(v)
	}
	return FromFlatData(shapes.Make(DTypeFor[T](), dimensions...), flat)
}

// FromScalarAndDimensions creates a Tensor with the given dimensions, filled with value.
func FromScalarAndDimensions[T constraints.Float](value T, dimensions ...int) *Tensor {
	t := FromShape(shapes.Make(DTypeFor[T](), dimensions...))
	t.Fill(float64(value))
	return t
}

// FromScalar creates a scalar Tensor of the given dtype.
func FromScalar(dtype dtypes.DType, value float64) *Tensor {
	return FromFlatData(shapes.Make(dtype), []float64{value})
}

var float16Type = reflect.TypeOf(float16.Float16(0))

// FromValue converts a Go scalar or a multidimensional slice of float32, float64 or float16.Float16 to
// a Tensor. If value is already a *Tensor, it is returned as is.
//
// It panics if the value is not supported or the slice is not regular (all sub-slices must have
// the same length).
func FromValue(value any) *Tensor {
	if t, ok := value.(*Tensor); ok {
		return t
	}
	v := reflect.ValueOf(value)
	var dims []int
	elemType := v.Type()
	elem := v
	for elemType.Kind() == reflect.Slice {
		dims = append(dims, elem.Len())
		elemType = elemType.Elem()
		if elem.Len() > 0 {
			elem = elem.Index(0)
		}
	}
	var dtype dtypes.DType
	switch {
	case elemType == float16Type:
		dtype = dtypes.Float16
	case elemType.Kind() == reflect.Float32:
		dtype = dtypes.Float32
	case elemType.Kind() == reflect.Float64:
		dtype = dtypes.Float64
	default:
		exceptions.Panicf("tensors.FromValue: unsupported type %T, only float16, float32 and float64 (and slices of) are accepted", value)
	}
	shape := shapes.Make(dtype, dims...)
	flat := make([]float64, 0, shape.Size())
	var collect func(v reflect.Value, axis int)
	collect = func(v reflect.Value, axis int) {
		if axis == len(dims) {
			if dtype == dtypes.Float16 {
				flat = append(flat, float64(v.Interface().(float16.Float16).Float32()))
			} else {
				flat = append(flat, v.Float())
			}
			return
		}
		if v.Len() != dims[axis] {
			exceptions.Panicf("tensors.FromValue: irregular slice for %T: axis %d has lengths %d and %d",
				value, axis, dims[axis], v.Len())
		}
		for ii := range v.Len() {
			collect(v.Index(ii), axis+1)
		}
	}
	collect(v, 0)
	return FromFlatData(shape, flat)
}

// FromBytes decodes raw little-endian values (as written by `h5dump --binary=LE` or `NATIVE` on
// little-endian hosts) into a Tensor of the given shape.
func FromBytes(shape shapes.Shape, raw []byte) (*Tensor, error) {
	if !shape.Ok() || !shape.IsFullyKnown() {
		return nil, errors.Errorf("tensors.FromBytes: invalid shape %s", shape)
	}
	if uintptr(len(raw)) != shape.Memory() {
		return nil, errors.Errorf("for shape %s: loaded %d bytes, but tensor uses %d bytes", shape, len(raw), shape.Memory())
	}
	flat := make([]float64, shape.Size())
	switch shape.DType {
	case dtypes.Float16:
		for ii := range flat {
			flat[ii] = float64(float16.Frombits(binary.LittleEndian.Uint16(raw[2*ii:])).Float32())
		}
	case dtypes.Float32:
		for ii := range flat {
			flat[ii] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*ii:])))
		}
	case dtypes.Float64:
		for ii := range flat {
			flat[ii] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*ii:]))
		}
	default:
		return nil, errors.Errorf("tensors.FromBytes: dtype %s not supported", shape.DType)
	}
	return FromFlatData(shape, flat), nil
}

// RoundToDType rounds x to the precision of dtype.
func RoundToDType(dtype dtypes.DType, x float64) float64 {
	switch dtype {
	case dtypes.Float32:
		return float64(float32(x))
	case dtypes.Float16:
		return float64(float16.Fromfloat32(float32(x)).Float32())
	}
	return x
}

func (t *Tensor) round() {
	if t.shape.DType == dtypes.Float64 {
		return
	}
	for ii, v := range t.flat {
		t.flat[ii] = RoundToDType(t.shape.DType, v)
	}
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size is the number of elements in the tensor.
func (t *Tensor) Size() int { return len(t.flat) }

// Flat returns a copy of the flat values as float64.
func (t *Tensor) Flat() []float64 { return slices.Clone(t.flat) }

// FlatRef returns the underlying flat values. They must not be modified.
func (t *Tensor) FlatRef() []float64 { return t.flat }

// Fill sets all values to value.
func (t *Tensor) Fill(value float64) {
	value = RoundToDType(t.shape.DType, value)
	for ii := range t.flat {
		t.flat[ii] = value
	}
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: t.shape.Clone(), flat: slices.Clone(t.flat)}
}

// Map returns a new tensor with the same shape, with fn applied to each element.
// The results are rounded to the tensor dtype.
func (t *Tensor) Map(fn func(x float64) float64) *Tensor {
	flat := make([]float64, len(t.flat))
	for ii, x := range t.flat {
		flat[ii] = fn(x)
	}
	return FromFlatData(t.shape, flat)
}

// Value returns the tensor converted to a Go value: a scalar for rank 0, a slice for rank 1, a slice of
// slices for rank 2, etc. Float32 and Float16 tensors are returned as float32 values, Float64 as float64.
func (t *Tensor) Value() any {
	var elemType reflect.Type
	if t.shape.DType == dtypes.Float64 {
		elemType = reflect.TypeOf(float64(0))
	} else {
		elemType = reflect.TypeOf(float32(0))
	}
	pos := 0
	var build func(axis int, sliceType reflect.Type) reflect.Value
	build = func(axis int, valueType reflect.Type) reflect.Value {
		if axis == t.Rank() {
			v := reflect.New(elemType).Elem()
			v.SetFloat(t.flat[pos])
			pos++
			return v
		}
		dim := t.shape.Dimensions[axis]
		v := reflect.MakeSlice(valueType, dim, dim)
		for ii := range dim {
			v.Index(ii).Set(build(axis+1, valueType.Elem()))
		}
		return v
	}
	valueType := elemType
	for range t.Rank() {
		valueType = reflect.SliceOf(valueType)
	}
	return build(0, valueType).Interface()
}

// InDelta returns whether other has the same shape and all values are within delta of t's values.
// A delta <= 0 requires exact equality.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if other == nil || !t.shape.Equal(other.shape) {
		return false
	}
	for ii, x := range t.flat {
		y := other.flat[ii]
		if delta <= 0 {
			if x != y {
				return false
			}
			continue
		}
		if math.Abs(x-y) > delta || math.IsNaN(x) != math.IsNaN(y) {
			return false
		}
	}
	return true
}

// Equal returns whether other has the same shape and exactly the same values.
func (t *Tensor) Equal(other *Tensor) bool {
	return t.InDelta(other, 0)
}

// String implements fmt.Stringer. Large tensors are truncated to MaxSizeToPrint elements.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(t.shape.String())
	sb.WriteString(": [")
	for ii, x := range t.flat {
		if ii == MaxSizeToPrint {
			sb.WriteString(" ...")
			break
		}
		if ii > 0 {
			sb.WriteString(" ")
		}
		if t.shape.DType == dtypes.Float64 {
			fmt.Fprintf(&sb, "%g", x)
		} else {
			fmt.Fprintf(&sb, "%g", float32(x))
		}
	}
	sb.WriteString("]")
	return sb.String()
}
