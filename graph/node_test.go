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
	"fmt"
	"testing"

	. "github.com/gomlx/nanograd/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeString(t *testing.T) {
	var nilNode *Node
	assert.Equal(t, "Node(nil)", nilNode.String())

	a := Parameter("a", 2)
	b := Const(3)
	c := Mul(a, b)
	Backpropagate(c)
	assert.Equal(t, fmt.Sprintf("Node#%d[a](Parameter){value=2, gradient=3}", a.Id()), a.String())
	assert.Equal(t, fmt.Sprintf("Node#%d(Const){value=3, gradient=2}", b.Id()), b.String())
	assert.Equal(t, fmt.Sprintf("Node#%d(*: #%d, #%d){value=6, gradient=1}", c.Id(), a.Id(), b.Id()), c.String())
	assert.Equal(t, fmt.Sprintf("Node#%d[y](**2: #%d){value=4, gradient=0}", c.Id()+1, a.Id()),
		Pow(a, 2).SetName("y").String())
}

func TestNodeAccessors(t *testing.T) {
	w := Parameter("w", 0.5)
	require.Equal(t, "w", w.Name())
	require.True(t, w.IsLeaf())
	require.Equal(t, OpTypeParameter, w.Type())
	y := Tanh(w)
	require.False(t, y.IsLeaf())
	require.Equal(t, "", y.Name())
	require.Equal(t, OpTypeInvalid, (*Node)(nil).Type())
	require.Panics(t, func() { (*Node)(nil).Value() })
	require.Panics(t, func() { (*Node)(nil).Gradient() })

	Backpropagate(y)
	require.NotZero(t, w.Gradient())
	ZeroGradients(w, y)
	require.Zero(t, w.Gradient())
	require.Zero(t, y.Gradient())
}

func TestOpTypeString(t *testing.T) {
	assert.Equal(t, "Add", OpTypeAdd.String())
	assert.Equal(t, "Invalid", OpTypeInvalid.String())
	assert.Equal(t, "OpType(1000)", OpType(1000).String())
	for _, op := range OpTypeValues() {
		assert.NotContains(t, op.String(), "OpType(")
	}
	assert.True(t, OpTypeConst.IsLeaf())
	assert.False(t, OpTypeRelu.IsLeaf())
}
