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

package losses

import (
	"math"
	"testing"

	. "github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/graph/graphtest"
	"github.com/stretchr/testify/require"
)

const deltaForTests = 1e-6

// testLossGradients checks the gradient of the loss with respect to the predictions.
func testLossGradients(t *testing.T, name string, lossFn LossFn, labels, predictions []float64) {
	graphtest.RunTestGradients(t, name, func(inputs []*Node) *Node {
		return lossFn(Consts(labels), inputs)
	}, predictions, 1e-4)
}

func TestMeanSquaredError(t *testing.T) {
	labels := []float64{1, 2, 7}
	predictions := []float64{2, 4, 0}
	loss := MeanSquaredError(Consts(labels), Consts(predictions))
	require.InDelta(t, (1.0+4.0+49.0)/3, loss.Value(), deltaForTests)
	testLossGradients(t, "MeanSquaredError", MeanSquaredError, labels, predictions)

	require.Panics(t, func() { MeanSquaredError(Consts(labels), Consts(predictions[:2])) })
	require.Panics(t, func() { MeanSquaredError(nil, nil) })
}

func TestMeanAbsoluteError(t *testing.T) {
	labels := []float64{1, 2, 7}
	predictions := []float64{2, 4.5, 0}
	loss := MeanAbsoluteError(Consts(labels), Consts(predictions))
	require.InDelta(t, (1.0+2.5+7.0)/3, loss.Value(), deltaForTests)
	testLossGradients(t, "MeanAbsoluteError", MeanAbsoluteError, labels, predictions)
}

func TestHinge(t *testing.T) {
	labels := []float64{1, -1, 1, -1}
	predictions := []float64{2, 0.5, -0.25, -3}
	// Margins: 1-2 -> 0, 1+0.5 -> 1.5, 1+0.25 -> 1.25, 1-3 -> 0.
	loss := Hinge(Consts(labels), Consts(predictions))
	require.InDelta(t, (1.5+1.25)/4, loss.Value(), deltaForTests)
	testLossGradients(t, "Hinge", Hinge, labels, predictions)
}

func TestBinaryCrossentropyLogits(t *testing.T) {
	labels := []float64{1, 0, 1, 0}
	logits := []float64{2.5, -1.5, -0.3, 4}
	var want float64
	for ii, x := range logits {
		p := 1 / (1 + math.Exp(-x))
		if labels[ii] == 1 {
			want -= math.Log(p)
		} else {
			want -= math.Log1p(-p)
		}
	}
	want /= float64(len(labels))
	loss := BinaryCrossentropyLogits(Consts(labels), Consts(logits))
	require.InDelta(t, want, loss.Value(), 1e-4)
	testLossGradients(t, "BinaryCrossentropyLogits", BinaryCrossentropyLogits, labels, logits)

	// Large logits don't overflow.
	loss = BinaryCrossentropyLogits(Consts([]float64{0, 1}), Consts([]float64{800, -800}))
	require.False(t, math.IsInf(loss.Value(), 0))
	require.InDelta(t, 800.0, loss.Value(), deltaForTests)
}

func TestL2Regularization(t *testing.T) {
	require.Equal(t, 0.0, L2Regularization(nil, 0.1).Value())
	a, b := Parameter("a", 2), Parameter("b", -3)
	reg := L2Regularization([]*Node{a, b}, 0.1)
	require.InDelta(t, 1.3, reg.Value(), deltaForTests)
	Backpropagate(reg)
	require.InDelta(t, 0.4, a.Gradient(), deltaForTests)
	require.InDelta(t, -0.6, b.Gradient(), deltaForTests)

	lossFn := WithL2Regularization(MeanSquaredError, []*Node{a, b}, 0.1)
	loss := lossFn(Consts([]float64{1}), []*Node{Const(3)})
	require.InDelta(t, 4+1.3, loss.Value(), deltaForTests)
}

func TestFromName(t *testing.T) {
	for _, name := range []string{"mse", "mae", "hinge", "bce"} {
		require.NotNil(t, FromName(name), name)
	}
	require.Panics(t, func() { FromName("triplet") })
}
