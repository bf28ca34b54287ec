// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/jucke/kerasgo/pkg/core/shapes"
	"github.com/jucke/kerasgo/pkg/core/tensors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Parameter creates an input parameter for the computation: its value is fed to Graph.Run, with the
// ParamsMap.
//
// The shape can have UnknownDim axes (e.g. the batch axis), and the value fed must be compatible with it.
// The name must be unique in the graph.
func Parameter(g *Graph, name string, shape shapes.Shape) *Node {
	g.AssertValid()
	shape.AssertFloat()
	if name == "" {
		name = fmt.Sprintf("p#%d", len(g.parameters))
	}
	if _, found := g.parameterByName[name]; found {
		exceptions.Panicf("requested parameter with name %q for graph %q already exists", name, g.name)
	}
	node := newNode(g, &nodeInputsParameter{name: name}, shape.Clone())
	g.parameters = append(g.parameters, node)
	g.parameterByName[name] = node
	return node
}

type nodeInputsParameter struct {
	name string
}

func (ni *nodeInputsParameter) Type() NodeType { return NodeTypeParameter }
func (ni *nodeInputsParameter) String() string { return fmt.Sprintf("name=%q", ni.name) }

// Const creates a constant node in the graph with the given value. The value can be a *tensors.Tensor
// or anything accepted by tensors.FromValue.
func Const(g *Graph, value any) *Node {
	g.AssertValid()
	t := tensors.FromValue(value)
	return newNode(g, &nodeInputsConstant{value: t}, t.Shape())
}

type nodeInputsConstant struct {
	value *tensors.Tensor
}

func (ni *nodeInputsConstant) Type() NodeType { return NodeTypeConstant }
func (ni *nodeInputsConstant) String() string { return ni.value.String() }
func (ni *nodeInputsConstant) eval(_ *Node, _ []*tensors.Tensor) *tensors.Tensor {
	return ni.value
}

// Scalar returns a constant scalar with the given value, rounded to dtype.
//
// Scalars are cached per graph, so calling it twice with the same dtype and value returns the same node.
func Scalar(g *Graph, dtype dtypes.DType, value float64) *Node {
	g.AssertValid()
	value = tensors.RoundToDType(dtype, value)
	key := scalarKey{dtype: dtype, value: value}
	if node, found := g.scalars[key]; found {
		return node
	}
	node := Const(g, tensors.FromScalar(dtype, value))
	g.scalars[key] = node
	return node
}

// ScalarOne returns a constant 1 of the given dtype.
func ScalarOne(g *Graph, dtype dtypes.DType) *Node { return Scalar(g, dtype, 1) }

// ScalarZero returns a constant 0 of the given dtype.
func ScalarZero(g *Graph, dtype dtypes.DType) *Node { return Scalar(g, dtype, 0) }

// Fill creates a constant of the given shape filled with value.
func Fill(g *Graph, shape shapes.Shape, value float64) *Node {
	t := tensors.FromShape(shape)
	t.Fill(value)
	return Const(g, t)
}

// Zeros creates a zero constant of the given shape.
func Zeros(g *Graph, shape shapes.Shape) *Node { return Fill(g, shape, 0) }

// Ones creates a constant of the given shape filled with 1.
func Ones(g *Graph, shape shapes.Shape) *Node { return Fill(g, shape, 1) }

// ZerosLike returns a constant of zeros with the same shape as x. The shape of x must be fully known.
func ZerosLike(x *Node) *Node {
	x.AssertValid()
	return Zeros(x.graph, x.shape)
}

// OnesLike returns a constant of ones with the same shape as x. The shape of x must be fully known.
func OnesLike(x *Node) *Node {
	x.AssertValid()
	return Ones(x.graph, x.shape)
}

// Unary operations --------------------------------------------------------------------------------

type nodeInputsUnary struct {
	opType NodeType
	fn     func(x float64) float64
}

func (ni *nodeInputsUnary) Type() NodeType { return ni.opType }
func (ni *nodeInputsUnary) String() string { return "" }
func (ni *nodeInputsUnary) eval(_ *Node, inputs []*tensors.Tensor) *tensors.Tensor {
	return inputs[0].Map(ni.fn)
}

func unaryOp(opType NodeType, x *Node, fn func(x float64) float64) *Node {
	x.AssertValid()
	assertValueNode(x, opType)
	return newNode(x.graph, &nodeInputsUnary{opType: opType, fn: fn}, x.shape, x)
}

// Neg returns -x.
func Neg(x *Node) *Node { return unaryOp(NodeTypeNeg, x, func(v float64) float64 { return -v }) }

// Abs returns |x|.
func Abs(x *Node) *Node { return unaryOp(NodeTypeAbs, x, math.Abs) }

// Sqrt returns the square root of x.
func Sqrt(x *Node) *Node { return unaryOp(NodeTypeSqrt, x, math.Sqrt) }

// Relu returns max(x, 0).
func Relu(x *Node) *Node {
	return unaryOp(NodeTypeRelu, x, func(v float64) float64 { return math.Max(v, 0) })
}

// Square returns x*x.
func Square(x *Node) *Node { return Mul(x, x) }

// Inverse returns 1/x.
func Inverse(x *Node) *Node { return Div(ScalarOne(x.Graph(), x.DType()), x) }

// OneMinus returns 1-x.
func OneMinus(x *Node) *Node { return Sub(ScalarOne(x.Graph(), x.DType()), x) }

// ConvertDType returns x converted to dtype. It returns x itself if it already has the dtype.
func ConvertDType(x *Node, dtype dtypes.DType) *Node {
	x.AssertValid()
	assertValueNode(x, NodeTypeConvertDType)
	if x.DType() == dtype {
		return x
	}
	shape := x.shape.Clone()
	shape.DType = dtype
	shape.AssertFloat()
	return newNode(x.graph, &nodeInputsConvertDType{dtype: dtype}, shape, x)
}

type nodeInputsConvertDType struct {
	dtype dtypes.DType
}

func (ni *nodeInputsConvertDType) Type() NodeType { return NodeTypeConvertDType }
func (ni *nodeInputsConvertDType) String() string { return ni.dtype.String() }
func (ni *nodeInputsConvertDType) eval(_ *Node, inputs []*tensors.Tensor) *tensors.Tensor {
	shape := inputs[0].Shape().Clone()
	shape.DType = ni.dtype
	return tensors.FromFlatData(shape, inputs[0].Flat())
}

// Binary operations -------------------------------------------------------------------------------

type nodeInputsBinary struct {
	opType NodeType
	fn     func(x, y float64) float64
}

func (ni *nodeInputsBinary) Type() NodeType { return ni.opType }
func (ni *nodeInputsBinary) String() string { return "" }
func (ni *nodeInputsBinary) eval(node *Node, inputs []*tensors.Tensor) *tensors.Tensor {
	lhs, rhs := inputs[0], inputs[1]
	lhsFlat, rhsFlat := lhs.FlatRef(), rhs.FlatRef()
	outShape := lhs.Shape()
	switch {
	case lhs.Shape().IsScalar() && !rhs.Shape().IsScalar():
		outShape = rhs.Shape()
	case !lhs.Shape().IsScalar() && !rhs.Shape().IsScalar():
		if !lhs.Shape().Equal(rhs.Shape()) {
			exceptions.Panicf("%s: operands with shapes %s and %s fed at execution don't match", node, lhs.Shape(), rhs.Shape())
		}
	}
	size := max(len(lhsFlat), len(rhsFlat))
	flat := make([]float64, size)
	for ii := range flat {
		var x, y float64
		if len(lhsFlat) == 1 {
			x = lhsFlat[0]
		} else {
			x = lhsFlat[ii]
		}
		if len(rhsFlat) == 1 {
			y = rhsFlat[0]
		} else {
			y = rhsFlat[ii]
		}
		flat[ii] = ni.fn(x, y)
	}
	return tensors.FromFlatData(outShape, flat)
}

// binaryOp checks the operands and returns the node. Operands must have the same dtype, and either
// compatible shapes or one of them must be a scalar (in which case it is broadcast).
func binaryOp(opType NodeType, lhs, rhs *Node, fn func(x, y float64) float64) *Node {
	lhs.AssertValid()
	rhs.AssertValid()
	assertValueNode(lhs, opType)
	assertValueNode(rhs, opType)
	if lhs.graph != rhs.graph {
		exceptions.Panicf("%s: operands from different graphs (#%d and #%d)", opType, lhs.graph.id, rhs.graph.id)
	}
	if lhs.DType() != rhs.DType() {
		exceptions.Panicf("%s: operands of different dtypes %s and %s", opType, lhs.DType(), rhs.DType())
	}
	var shape shapes.Shape
	switch {
	case lhs.IsScalar():
		shape = rhs.shape
	case rhs.IsScalar():
		shape = lhs.shape
	default:
		if !lhs.shape.Compatible(rhs.shape) {
			exceptions.Panicf("%s: incompatible shapes %s and %s", opType, lhs.shape, rhs.shape)
		}
		shape = lhs.shape.Clone()
		for axis, dim := range shape.Dimensions {
			if dim == shapes.UnknownDim {
				shape.Dimensions[axis] = rhs.shape.Dimensions[axis]
			}
		}
	}
	return newNode(lhs.graph, &nodeInputsBinary{opType: opType, fn: fn}, shape, lhs, rhs)
}

// Add returns lhs+rhs.
func Add(lhs, rhs *Node) *Node {
	return binaryOp(NodeTypeAdd, lhs, rhs, func(x, y float64) float64 { return x + y })
}

// Sub returns lhs-rhs.
func Sub(lhs, rhs *Node) *Node {
	return binaryOp(NodeTypeSub, lhs, rhs, func(x, y float64) float64 { return x - y })
}

// Mul returns lhs*rhs.
func Mul(lhs, rhs *Node) *Node {
	return binaryOp(NodeTypeMul, lhs, rhs, func(x, y float64) float64 { return x * y })
}

// Div returns lhs/rhs.
func Div(lhs, rhs *Node) *Node {
	return binaryOp(NodeTypeDiv, lhs, rhs, func(x, y float64) float64 { return x / y })
}

// Max returns the element-wise maximum of lhs and rhs.
func Max(lhs, rhs *Node) *Node { return binaryOp(NodeTypeMax, lhs, rhs, math.Max) }

// Min returns the element-wise minimum of lhs and rhs.
func Min(lhs, rhs *Node) *Node { return binaryOp(NodeTypeMin, lhs, rhs, math.Min) }

// MulScalar returns x*value, with value converted to x's dtype.
func MulScalar(x *Node, value float64) *Node {
	return Mul(x, Scalar(x.Graph(), x.DType(), value))
}

// AddScalar returns x+value, with value converted to x's dtype.
func AddScalar(x *Node, value float64) *Node {
	return Add(x, Scalar(x.Graph(), x.DType(), value))
}

// DivScalar returns x/value, with value converted to x's dtype.
func DivScalar(x *Node, value float64) *Node {
	return Div(x, Scalar(x.Graph(), x.DType(), value))
}

// ClipScalar returns x clipped to the interval [min, max].
func ClipScalar(x *Node, minValue, maxValue float64) *Node {
	g := x.Graph()
	return Min(Max(x, Scalar(g, x.DType(), minValue)), Scalar(g, x.DType(), maxValue))
}

// Reductions --------------------------------------------------------------------------------------

type nodeInputsReduce struct {
	opType NodeType
}

func (ni *nodeInputsReduce) Type() NodeType { return ni.opType }
func (ni *nodeInputsReduce) String() string { return "" }
func (ni *nodeInputsReduce) eval(node *Node, inputs []*tensors.Tensor) *tensors.Tensor {
	flat := inputs[0].FlatRef()
	var value float64
	switch ni.opType {
	case NodeTypeReduceAllSum:
		value = floats.Sum(flat)
	case NodeTypeL2Norm:
		value = floats.Norm(flat, 2)
	default:
		exceptions.Panicf("unknown reduction %s", ni.opType)
	}
	return tensors.FromScalar(node.DType(), value)
}

// ReduceAllSum reduces all dimensions of x to a scalar, by summing its values.
func ReduceAllSum(x *Node) *Node {
	x.AssertValid()
	assertValueNode(x, NodeTypeReduceAllSum)
	return newNode(x.graph, &nodeInputsReduce{opType: NodeTypeReduceAllSum}, shapes.Scalar(x.DType()), x)
}

// L2Norm returns the L2 norm (square root of the sum of the squares) of all values of x, as a scalar.
func L2Norm(x *Node) *Node {
	x.AssertValid()
	assertValueNode(x, NodeTypeL2Norm)
	return newNode(x.graph, &nodeInputsReduce{opType: NodeTypeL2Norm}, shapes.Scalar(x.DType()), x)
}

// Layer math --------------------------------------------------------------------------------------

type nodeInputsMatMul struct{}

func (ni *nodeInputsMatMul) Type() NodeType { return NodeTypeMatMul }
func (ni *nodeInputsMatMul) String() string { return "" }
func (ni *nodeInputsMatMul) eval(node *Node, inputs []*tensors.Tensor) *tensors.Tensor {
	lhs, rhs := inputs[0], inputs[1]
	rows, inner := lhs.Shape().Dimensions[0], lhs.Shape().Dimensions[1]
	if rhs.Shape().Dimensions[0] != inner {
		exceptions.Panicf("%s: cannot multiply matrices of shapes %s and %s", node, lhs.Shape(), rhs.Shape())
	}
	cols := rhs.Shape().Dimensions[1]
	var result mat.Dense
	result.Mul(mat.NewDense(rows, inner, lhs.Flat()), mat.NewDense(inner, cols, rhs.Flat()))
	return tensors.FromFlatData(shapes.Make(node.DType(), rows, cols), result.RawMatrix().Data)
}

// MatMul returns the matrix multiplication of lhs (shape [m, k]) and rhs (shape [k, n]), with shape [m, n].
// The first axis of lhs can be UnknownDim (typically the batch axis).
func MatMul(lhs, rhs *Node) *Node {
	lhs.AssertValid()
	rhs.AssertValid()
	if lhs.Rank() != 2 || rhs.Rank() != 2 {
		exceptions.Panicf("MatMul requires rank-2 operands, got %s and %s", lhs.shape, rhs.shape)
	}
	if lhs.DType() != rhs.DType() {
		exceptions.Panicf("MatMul: operands of different dtypes %s and %s", lhs.DType(), rhs.DType())
	}
	inner, inner2 := lhs.shape.Dim(1), rhs.shape.Dim(0)
	if inner != inner2 && inner != shapes.UnknownDim && inner2 != shapes.UnknownDim {
		exceptions.Panicf("MatMul: contracting dimensions don't match for shapes %s and %s", lhs.shape, rhs.shape)
	}
	shape := shapes.Make(lhs.DType(), lhs.shape.Dim(0), rhs.shape.Dim(1))
	return newNode(lhs.graph, &nodeInputsMatMul{}, shape, lhs, rhs)
}

type nodeInputsAddBias struct{}

func (ni *nodeInputsAddBias) Type() NodeType { return NodeTypeAddBias }
func (ni *nodeInputsAddBias) String() string { return "" }
func (ni *nodeInputsAddBias) eval(node *Node, inputs []*tensors.Tensor) *tensors.Tensor {
	x, bias := inputs[0], inputs[1]
	biasFlat := bias.FlatRef()
	if x.Shape().Dim(-1) != len(biasFlat) {
		exceptions.Panicf("%s: bias of shape %s doesn't match value of shape %s", node, bias.Shape(), x.Shape())
	}
	flat := x.Flat()
	for ii := range flat {
		flat[ii] += biasFlat[ii%len(biasFlat)]
	}
	return tensors.FromFlatData(x.Shape(), flat)
}

// AddBias adds the rank-1 bias to the last axis of x.
func AddBias(x, bias *Node) *Node {
	x.AssertValid()
	bias.AssertValid()
	if bias.Rank() != 1 || x.Rank() < 1 || x.DType() != bias.DType() {
		exceptions.Panicf("AddBias: invalid shapes %s for bias and %s for x", bias.shape, x.shape)
	}
	if xDim := x.shape.Dim(-1); xDim != shapes.UnknownDim && xDim != bias.shape.Dim(0) {
		exceptions.Panicf("AddBias: bias shape %s doesn't match last axis of %s", bias.shape, x.shape)
	}
	return newNode(x.graph, &nodeInputsAddBias{}, x.shape, x, bias)
}

type nodeInputsReshape struct {
	dimensions []int
}

func (ni *nodeInputsReshape) Type() NodeType { return NodeTypeReshape }
func (ni *nodeInputsReshape) String() string { return fmt.Sprintf("dimensions=%v", ni.dimensions) }
func (ni *nodeInputsReshape) eval(node *Node, inputs []*tensors.Tensor) *tensors.Tensor {
	return tensors.FromFlatData(node.shape, inputs[0].Flat())
}

// Reshape x to the given dimensions. The shape of x must be fully known, and the total size must not change.
func Reshape(x *Node, dimensions ...int) *Node {
	x.AssertValid()
	assertValueNode(x, NodeTypeReshape)
	shape := shapes.Make(x.DType(), dimensions...)
	if !x.shape.IsFullyKnown() || !shape.IsFullyKnown() || shape.Size() != x.shape.Size() {
		exceptions.Panicf("Reshape: cannot reshape %s to dimensions %v", x.shape, dimensions)
	}
	return newNode(x.graph, &nodeInputsReshape{dimensions: shape.Dimensions}, shape, x)
}

// assertValueNode panics if node has no value (e.g. it is an Assign or Group node).
func assertValueNode(node *Node, opType NodeType) {
	if !node.shape.Ok() {
		exceptions.Panicf("%s: input node %s has no value (side effect only node)", opType, node)
	}
}
