/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package graph

import (
	"math"

	"github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
)

// Number is any Go numeric type that can be promoted to a Node.
type Number interface {
	constraints.Integer | constraints.Float
}

// Const creates a leaf node from a literal. It has no inputs and starts with a zero gradient.
func Const[T Number](value T) *Node {
	return newNode(OpTypeConst, float64(value))
}

// Consts creates one Const node per value.
func Consts[T Number](values []T) []*Node {
	nodes := make([]*Node, len(values))
	for ii, v := range values {
		nodes[ii] = Const(v)
	}
	return nodes
}

// Parameter creates a trainable leaf node, whose value can later be changed with Node.SetValue.
// The name is optional and only used for printing.
func Parameter(name string, value float64) *Node {
	n := newNode(OpTypeParameter, value)
	n.name = name
	return n
}

// Operand converts `value` to a Node: a *Node is returned as is, and any Go number is promoted to
// a Const. Anything else panics with an UnsupportedOperandError.
func Operand(value any) *Node {
	return operandFor("Operand", value)
}

// operandFor implements Operand, reporting errors on behalf of op.
func operandFor(op string, value any) *Node {
	switch v := value.(type) {
	case *Node:
		if v == nil {
			throwUnsupportedOperand(op, value)
		}
		return v
	case float64:
		return Const(v)
	case float32:
		return Const(v)
	case int:
		return Const(v)
	case int8:
		return Const(v)
	case int16:
		return Const(v)
	case int32:
		return Const(v)
	case int64:
		return Const(v)
	case uint:
		return Const(v)
	case uint8:
		return Const(v)
	case uint16:
		return Const(v)
	case uint32:
		return Const(v)
	case uint64:
		return Const(v)
	}
	throwUnsupportedOperand(op, value)
	return nil
}

// validateInputs panics if any of the inputs is not a valid node.
func validateInputs(op string, inputs ...*Node) {
	for _, input := range inputs {
		if input == nil {
			throwUnsupportedOperand(op, input)
		}
		input.AssertValid()
	}
}

// Add returns a new node with `a + b`.
func Add(a, b *Node) *Node {
	validateInputs("Add", a, b)
	return newNode(OpTypeAdd, a.value+b.value, a, b)
}

// Mul returns a new node with `a * b`.
func Mul(a, b *Node) *Node {
	validateInputs("Mul", a, b)
	return newNode(OpTypeMul, a.value*b.value, a, b)
}

// Pow returns a new node with `a ** exponent`. The exponent is a constant, no gradient flows to it.
func Pow(a *Node, exponent float64) *Node {
	validateInputs("Pow", a)
	c := newNode(OpTypePow, math.Pow(a.value, exponent), a)
	c.exponent = exponent
	return c
}

// PowAny is like Pow, but the exponent can be any Go number.
//
// It panics with an UnsupportedOperandError if the exponent is a *Node (node valued exponents are not
// supported) or not a number.
func PowAny(a *Node, exponent any) *Node {
	if _, isNode := exponent.(*Node); isNode {
		throwUnsupportedOperand("Pow", exponent)
	}
	exponentNode := operandFor("Pow", exponent)
	return Pow(a, exponentNode.value)
}

// Relu returns a new node with `max(0, a)`.
//
// The gradient is taken from the sign of the output: at a == 0 it is 0.
func Relu(a *Node) *Node {
	validateInputs("Relu", a)
	value := a.value
	if value < 0 {
		value = 0
	}
	return newNode(OpTypeRelu, value, a)
}

// Exp returns a new node with `e^a`.
func Exp(a *Node) *Node {
	validateInputs("Exp", a)
	return newNode(OpTypeExp, math.Exp(a.value), a)
}

// Log returns a new node with the natural logarithm of `a`.
func Log(a *Node) *Node {
	validateInputs("Log", a)
	return newNode(OpTypeLog, math.Log(a.value), a)
}

// Tanh returns a new node with the hyperbolic tangent of `a`.
func Tanh(a *Node) *Node {
	validateInputs("Tanh", a)
	return newNode(OpTypeTanh, math.Tanh(a.value), a)
}

// Neg returns `-a`, implemented as `a * -1`.
func Neg(a *Node) *Node {
	return MulScalar(a, -1)
}

// Sub returns `a - b`, implemented as `a + (-b)`.
func Sub(a, b *Node) *Node {
	return Add(a, Neg(b))
}

// Div returns `a / b`, implemented as `a * b**-1`.
func Div(a, b *Node) *Node {
	return Mul(a, Pow(b, -1))
}

// AddScalar returns `n + s`. Since Add is commutative, it is also used for `s + n`.
func AddScalar(n *Node, s float64) *Node {
	return Add(n, Const(s))
}

// MulScalar returns `n * s`. Since Mul is commutative, it is also used for `s * n`.
func MulScalar(n *Node, s float64) *Node {
	return Mul(n, Const(s))
}

// SubScalar returns `n - s`.
func SubScalar(n *Node, s float64) *Node {
	return Sub(n, Const(s))
}

// ScalarSub returns `s - n`.
func ScalarSub(s float64, n *Node) *Node {
	return Sub(Const(s), n)
}

// DivScalar returns `n / s`.
func DivScalar(n *Node, s float64) *Node {
	return Div(n, Const(s))
}

// ScalarDiv returns `s / n`.
func ScalarDiv(s float64, n *Node) *Node {
	return Div(Const(s), n)
}

// Sum returns the sum of all nodes, added from left to right. It panics if nodes is empty.
func Sum(nodes ...*Node) *Node {
	if len(nodes) == 0 {
		exceptions.Panicf("Sum() requires at least one node")
	}
	sum := nodes[0]
	for _, n := range nodes[1:] {
		sum = Add(sum, n)
	}
	return sum
}

// Mean returns the average of the nodes. It panics if nodes is empty.
func Mean(nodes ...*Node) *Node {
	return DivScalar(Sum(nodes...), float64(len(nodes)))
}

// WithCustomGradient returns an identity of x (same value), whose gradient during backpropagation is given
// by vjp. The VJP receives the identity node and its gradient, and must return exactly one gradient,
// the one for x.
func WithCustomGradient(x *Node, vjp VJP) *Node {
	validateInputs("WithCustomGradient", x)
	if vjp == nil {
		exceptions.Panicf("WithCustomGradient(%s) given a nil VJP", x)
	}
	c := newNode(OpTypeCustom, x.value, x)
	c.customVJP = vjp
	return c
}

// StopGradient returns a Const with the same value as x, so no gradient flows back to x.
func StopGradient(x *Node) *Node {
	validateInputs("StopGradient", x)
	return Const(x.value)
}
