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

// Package graphtest holds test utilities for packages that depend on the graph package.
//
// The reference for gradients is the central finite difference, an implementation of differentiation
// completely independent of the graph package.
package graphtest

import (
	"fmt"
	"testing"

	"github.com/gomlx/nanograd/graph"
	"github.com/stretchr/testify/require"
)

// DefaultStep is the default step used for finite differences.
const DefaultStep = 1e-6

// TestGraphFn builds a graph from the given inputs, and returns its root.
type TestGraphFn func(inputs []*graph.Node) *graph.Node

// NumericalGradient estimates the gradient of fn at x using central finite differences with the
// given step. If step <= 0, DefaultStep is used.
func NumericalGradient(fn func(x []float64) float64, x []float64, step float64) []float64 {
	if step <= 0 {
		step = DefaultStep
	}
	grads := make([]float64, len(x))
	probe := make([]float64, len(x))
	for ii := range x {
		copy(probe, x)
		probe[ii] = x[ii] + step
		plus := fn(probe)
		probe[ii] = x[ii] - step
		minus := fn(probe)
		grads[ii] = (plus - minus) / (2 * step)
	}
	return grads
}

// Evaluate builds graphFn on Const inputs with the given values, and returns the root's value.
func Evaluate(graphFn TestGraphFn, values []float64) float64 {
	return graphFn(graph.Consts(values)).Value()
}

// Params creates one Parameter node per value, named "x0", "x1", ...
func Params(values []float64) []*graph.Node {
	nodes := make([]*graph.Node, len(values))
	for ii, v := range values {
		nodes[ii] = graph.Parameter(fmt.Sprintf("x%d", ii), v)
	}
	return nodes
}

// RunTestGradients builds graphFn on Parameter inputs with the given values, backpropagates from its root
// and compares the gradients with respect to each input against the central finite differences.
//
// delta is the absolute margin accepted on each gradient.
func RunTestGradients(t *testing.T, testName string, graphFn TestGraphFn, values []float64, delta float64) {
	t.Run(testName, func(t *testing.T) {
		inputs := Params(values)
		var root *graph.Node
		require.NotPanicsf(t, func() { root = graphFn(inputs) }, "%s: failed to build graph", testName)
		require.NotPanicsf(t, func() { graph.Backpropagate(root) }, "%s: failed to backpropagate", testName)
		got := make([]float64, len(inputs))
		for ii, input := range inputs {
			got[ii] = input.Gradient()
		}
		want := NumericalGradient(func(x []float64) float64 { return Evaluate(graphFn, x) }, values, 0)
		require.InDeltaSlicef(t, want, got, delta, "%s: gradients don't match finite differences", testName)
	})
}
