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

// Package layers holds the modeling layers built on top of the scalar graph: Neuron, Layer and
// MLP (multi-layer perceptron).
//
// A small convention on naming: typically layers are nouns (like "Neuron", "Layer"), while computations
// are usually verbs ("Call", "Add", "Mul", etc.).
//
// Layers own their trainable parameters (graph.Parameter nodes), which live across training steps.
// Each call to a layer builds new nodes on top of those parameters: build one graph per example (or batch),
// backpropagate it, and zero the gradients of the parameters (see ZeroGradients) before the next one.
package layers

import (
	"fmt"
	"strings"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/ml/initializers"
	"github.com/gomlx/nanograd/ml/layers/activations"
)

// Module is anything that holds trainable parameters.
type Module interface {
	// Parameters returns the trainable parameters of the module, always in the same order.
	Parameters() []*graph.Node
}

// ZeroGradients resets the gradients of all the parameters of the module.
// It should be called between independent backpropagation passes.
func ZeroGradients(m Module) {
	ZeroGradientsOf(m.Parameters())
}

// ZeroGradientsOf resets the gradients of the given parameters.
func ZeroGradientsOf(params []*graph.Node) {
	for _, p := range params {
		p.ZeroGradient()
	}
}

// NumParameters returns the number of trainable parameters in the module.
func NumParameters(m Module) int {
	return len(m.Parameters())
}

// Neuron computes `activation(bias + sum_i(weights[i] * x[i]))`.
type Neuron struct {
	Weights    []*graph.Node
	Bias       *graph.Node
	Activation activations.Type
}

var _ Module = (*Neuron)(nil)

// NewNeuron creates a neuron with numInputs weights initialized by initFn, and a bias initialized
// to zero. If initFn is nil, weights are initialized uniformly in [-1, 1).
//
// The name is used as prefix for the parameters names.
func NewNeuron(name string, numInputs int, activation activations.Type, initFn initializers.ParameterInitializer) *Neuron {
	if numInputs <= 0 {
		Panicf("NewNeuron(%q): numInputs must be > 0, got %d", name, numInputs)
	}
	if initFn == nil {
		initFn = initializers.RandomUniformFn(initializers.NoSeed, -1, 1)
	}
	n := &Neuron{
		Weights:    make([]*graph.Node, numInputs),
		Activation: activation,
	}
	for ii := range n.Weights {
		n.Weights[ii] = graph.Parameter(fmt.Sprintf("%s/weight_%d", name, ii), initFn())
	}
	n.Bias = graph.Parameter(name+"/bias", 0)
	return n
}

// Call builds the neuron on the given inputs. It panics if len(x) is different from the number of weights.
func (n *Neuron) Call(x []*graph.Node) *graph.Node {
	if len(x) != len(n.Weights) {
		Panicf("%s called with %d inputs, but it has %d weights", n, len(x), len(n.Weights))
	}
	act := n.Bias
	for ii, w := range n.Weights {
		act = graph.Add(act, graph.Mul(w, x[ii]))
	}
	return activations.Apply(n.Activation, act)
}

// Parameters implements Module: the weights followed by the bias.
func (n *Neuron) Parameters() []*graph.Node {
	params := make([]*graph.Node, 0, len(n.Weights)+1)
	params = append(params, n.Weights...)
	return append(params, n.Bias)
}

// String implements fmt.Stringer. E.g.: "ReLU neuron(3)" or "Linear neuron(2)".
func (n *Neuron) String() string {
	var kind string
	switch n.Activation {
	case activations.TypeNone:
		kind = "Linear"
	case activations.TypeRelu:
		kind = "ReLU"
	default:
		kind = n.Activation.String()
	}
	return fmt.Sprintf("%s neuron(%d)", kind, len(n.Weights))
}

// Layer is a list of neurons that take the same inputs.
type Layer struct {
	Neurons []*Neuron
}

var _ Module = (*Layer)(nil)

// NewLayer creates a layer with numOutputs neurons, each with numInputs inputs.
func NewLayer(name string, numInputs, numOutputs int, activation activations.Type, initFn initializers.ParameterInitializer) *Layer {
	if numOutputs <= 0 {
		Panicf("NewLayer(%q): numOutputs must be > 0, got %d", name, numOutputs)
	}
	l := &Layer{Neurons: make([]*Neuron, numOutputs)}
	for ii := range l.Neurons {
		l.Neurons[ii] = NewNeuron(fmt.Sprintf("%s/neuron_%d", name, ii), numInputs, activation, initFn)
	}
	return l
}

// Call builds each neuron on the given inputs, and returns one output per neuron.
func (l *Layer) Call(x []*graph.Node) []*graph.Node {
	outputs := make([]*graph.Node, len(l.Neurons))
	for ii, n := range l.Neurons {
		outputs[ii] = n.Call(x)
	}
	return outputs
}

// Parameters implements Module: the parameters of each neuron, in order.
func (l *Layer) Parameters() []*graph.Node {
	var params []*graph.Node
	for _, n := range l.Neurons {
		params = append(params, n.Parameters()...)
	}
	return params
}

// String implements fmt.Stringer.
func (l *Layer) String() string {
	parts := make([]string, len(l.Neurons))
	for ii, n := range l.Neurons {
		parts[ii] = n.String()
	}
	return fmt.Sprintf("Layer of [%s]", strings.Join(parts, ", "))
}
