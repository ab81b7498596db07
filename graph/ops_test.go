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

package graph_test

import (
	"math"
	"testing"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/nanograd/graph"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardValues(t *testing.T) {
	a, b := Const(-4.0), Const(2)
	testCases := []struct {
		name string
		node *Node
		want float64
	}{
		{"Add", Add(a, b), -2},
		{"Mul", Mul(a, b), -8},
		{"Pow", Pow(b, 3), 8},
		{"PowNegative", Pow(b, -1), 0.5},
		{"Relu(-4)", Relu(a), 0},
		{"Relu(2)", Relu(b), 2},
		{"Neg", Neg(a), 4},
		{"Sub", Sub(a, b), -6},
		{"Div", Div(a, b), -2},
		{"Exp", Exp(b), math.Exp(2)},
		{"Log", Log(b), math.Ln2},
		{"Tanh", Tanh(a), math.Tanh(-4)},
		{"Sum", Sum(a, b, b), 0},
		{"Mean", Mean(a, b, b), 0},
	}
	for _, tc := range testCases {
		assert.InDeltaf(t, tc.want, tc.node.Value(), 1e-12, "%s: got %s", tc.name, tc.node)
		assert.Equalf(t, 0.0, tc.node.Gradient(), "%s: gradient should start at 0", tc.name)
	}
}

func TestOperandsNotMutated(t *testing.T) {
	a, b := Parameter("a", 3), Const(5)
	c := Mul(Add(a, b), Pow(a, 2))
	require.Equal(t, 3.0, a.Value())
	require.Equal(t, 5.0, b.Value())
	require.Equal(t, 72.0, c.Value())

	// Inputs are the direct operands, not copies.
	sum := Add(a, b)
	inputs := sum.Inputs()
	require.Len(t, inputs, 2)
	require.Same(t, a, inputs[0])
	require.Same(t, b, inputs[1])
	require.Nil(t, a.Inputs())
	require.Len(t, Relu(a).Inputs(), 1)
}

func TestOpTag(t *testing.T) {
	a := Const(2)
	assert.Equal(t, "", a.OpTag())
	assert.Equal(t, "", Parameter("w", 1).OpTag())
	assert.Equal(t, "+", Add(a, a).OpTag())
	assert.Equal(t, "*", Mul(a, a).OpTag())
	assert.Equal(t, "**3", Pow(a, 3).OpTag())
	assert.Equal(t, "**-1", Pow(a, -1).OpTag())
	assert.Equal(t, "**0.5", Pow(a, 0.5).OpTag())
	assert.Equal(t, "ReLU", Relu(a).OpTag())
	assert.Equal(t, "*", Neg(a).OpTag())
	assert.Equal(t, "+", Sub(a, a).OpTag())
	assert.Equal(t, "*", Div(a, a).OpTag())
	assert.Equal(t, OpTypePow, Div(a, a).Inputs()[1].Type())
}

func TestOperand(t *testing.T) {
	n := Const(1)
	assert.Same(t, n, Operand(n))
	for _, v := range []any{int(3), int8(3), int16(3), int32(3), int64(3), uint(3), uint8(3), uint16(3),
		uint32(3), uint64(3), float32(3), float64(3)} {
		node := Operand(v)
		assert.Equalf(t, 3.0, node.Value(), "Operand(%T)", v)
		assert.Equal(t, OpTypeConst, node.Type())
		assert.Equal(t, 0.0, node.Gradient())
		assert.Nil(t, node.Inputs())
	}

	for _, v := range []any{"3", nil, []float64{1}, (*Node)(nil), complex(1, 1)} {
		err := exceptions.TryCatch[error](func() { Operand(v) })
		var opErr *UnsupportedOperandError
		require.Truef(t, errors.As(err, &opErr), "Operand(%#v) should fail with UnsupportedOperandError, got %v", v, err)
		require.Equal(t, "Operand", opErr.Op)
	}
}

func TestPowAny(t *testing.T) {
	x := Parameter("x", 3)
	y := PowAny(x, 2)
	require.Equal(t, 9.0, y.Value())
	require.Equal(t, 2.0, y.Exponent())
	Backpropagate(y)
	require.Equal(t, 6.0, x.Gradient())

	y = PowAny(x, float32(0.5))
	require.InDelta(t, math.Sqrt(3), y.Value(), 1e-12)

	for _, exponent := range []any{Const(2), x, "2", nil} {
		err := exceptions.TryCatch[error](func() { PowAny(x, exponent) })
		var opErr *UnsupportedOperandError
		require.Truef(t, errors.As(err, &opErr), "PowAny(x, %v) should fail, got %v", exponent, err)
		require.Equal(t, "Pow", opErr.Op)
		require.NotEmpty(t, opErr.Error())
	}
}

func TestNilOperands(t *testing.T) {
	x := Const(1)
	for name, fn := range map[string]func(){
		"Add":  func() { Add(x, nil) },
		"Mul":  func() { Mul(nil, x) },
		"Pow":  func() { Pow(nil, 2) },
		"Relu": func() { Relu(nil) },
	} {
		err := exceptions.TryCatch[error](fn)
		var opErr *UnsupportedOperandError
		require.Truef(t, errors.As(err, &opErr), "%s(nil) should fail with UnsupportedOperandError, got %v", name, err)
		require.Equal(t, name, opErr.Op)
		require.Contains(t, err.Error(), "nil *Node")
		require.NotContains(t, err.Error(), "plain number")
	}
	require.Panics(t, func() { Sum() })
}

func TestSetValue(t *testing.T) {
	w := Parameter("w", 1)
	y := MulScalar(w, 3)
	w.SetValue(2)
	require.Equal(t, 2.0, w.Value())
	require.Equal(t, 3.0, y.Value(), "previously computed nodes are not updated")

	require.Panics(t, func() { Const(1).SetValue(2) })
	require.Panics(t, func() { y.SetValue(2) })
	require.Panics(t, func() { y.Exponent() })
}
