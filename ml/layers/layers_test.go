package layers

import (
	"testing"

	"github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/graph/graphtest"
	"github.com/gomlx/nanograd/ml/initializers"
	"github.com/gomlx/nanograd/ml/layers/activations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingInit returns 0.1, 0.2, 0.3, ...
func countingInit() initializers.ParameterInitializer {
	var count float64
	return func() float64 {
		count++
		return count / 10
	}
}

func TestNeuron(t *testing.T) {
	n := NewNeuron("n", 3, activations.TypeRelu, countingInit())
	require.Len(t, n.Parameters(), 4)
	assert.Equal(t, "n/weight_2", n.Weights[2].Name())
	assert.Equal(t, "n/bias", n.Bias.Name())
	assert.Equal(t, 0.0, n.Bias.Value())
	assert.Equal(t, "ReLU neuron(3)", n.String())

	x := graph.Consts([]float64{1, 2, 3})
	y := n.Call(x)
	assert.InDelta(t, 0.1+0.4+0.9, y.Value(), 1e-12)
	graph.Backpropagate(y)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 1}, gradientsOf(n), 1e-12)

	// Negative pre-activation: relu blocks the gradient.
	ZeroGradients(n)
	y = n.Call(graph.Consts([]float64{-1, -2, -3}))
	assert.Equal(t, 0.0, y.Value())
	graph.Backpropagate(y)
	assert.Equal(t, []float64{0, 0, 0, 0}, gradientsOf(n))

	linear := NewNeuron("l", 2, activations.TypeNone, initializers.One)
	assert.Equal(t, "Linear neuron(2)", linear.String())
	assert.Equal(t, -3.0, linear.Call(graph.Consts([]float64{-1, -2})).Value())
	assert.Panics(t, func() { linear.Call(graph.Consts([]float64{1})) })
	assert.Panics(t, func() { NewNeuron("bad", 0, activations.TypeNone, nil) })
}

func gradientsOf(m Module) []float64 {
	params := m.Parameters()
	grads := make([]float64, len(params))
	for ii, p := range params {
		grads[ii] = p.Gradient()
	}
	return grads
}

func TestLayer(t *testing.T) {
	l := NewLayer("layer", 2, 3, activations.TypeNone, initializers.One)
	require.Len(t, l.Neurons, 3)
	require.Equal(t, 9, NumParameters(l))
	outputs := l.Call(graph.Consts([]float64{2, 5}))
	require.Len(t, outputs, 3)
	for _, output := range outputs {
		assert.Equal(t, 7.0, output.Value())
	}
	assert.Equal(t, "Layer of [Linear neuron(2), Linear neuron(2), Linear neuron(2)]", l.String())
	assert.Equal(t, "layer/neuron_1/weight_0", l.Parameters()[3].Name())
}

func TestMLP(t *testing.T) {
	m := NewMLP(3, 4, 4, 1).Seed(42).Done()
	require.Len(t, m.Layers, 3)
	require.Equal(t, 3, m.NumInputs())
	require.Equal(t, (3+1)*4+(4+1)*4+(4+1)*1, NumParameters(m))
	assert.Equal(t, activations.TypeRelu, m.Layers[0].Neurons[0].Activation)
	assert.Equal(t, activations.TypeNone, m.Layers[2].Neurons[0].Activation)
	assert.Equal(t, "MLP of [Layer of [ReLU neuron(3), ReLU neuron(3), ReLU neuron(3), ReLU neuron(3)], "+
		"Layer of [ReLU neuron(4), ReLU neuron(4), ReLU neuron(4), ReLU neuron(4)], "+
		"Layer of [Linear neuron(4)]]", m.String())
	for _, p := range m.Parameters() {
		require.GreaterOrEqual(t, p.Value(), -1.0)
		require.Less(t, p.Value(), 1.0)
	}

	// Same seed, same model.
	m2 := NewMLP(3, 4, 4, 1).Seed(42).Done()
	x := []float64{2, 3, -1}
	require.Equal(t, m.CallValues(x).Value(), m2.CallValues(x).Value())

	// Gradients of all parameters match finite differences.
	params := m.Parameters()
	values := make([]float64, len(params))
	for ii, p := range params {
		values[ii] = p.Value()
	}
	graphtest.RunTestGradients(t, "MLP parameters", func(inputs []*graph.Node) *graph.Node {
		return mlpWithParams(m, inputs, x)
	}, values, 1e-4)

	require.Panics(t, func() { NewMLP(3).Done() })
	require.Panics(t, func() { NewMLP(2, 3, 2).Done().Call1(graph.Consts([]float64{1, 1})) })
}

// mlpWithParams evaluates the MLP structure of m, but using params as its weights and biases, so gradients
// with respect to params can be taken.
func mlpWithParams(m *MLP, params []*graph.Node, x []float64) *graph.Node {
	inputs := graph.Consts(x)
	idx := 0
	for _, l := range m.Layers {
		outputs := make([]*graph.Node, len(l.Neurons))
		for ii, n := range l.Neurons {
			act := params[idx+len(n.Weights)]
			for jj := range n.Weights {
				act = graph.Add(act, graph.Mul(params[idx+jj], inputs[jj]))
			}
			idx += len(n.Weights) + 1
			outputs[ii] = activations.Apply(n.Activation, act)
		}
		inputs = outputs
	}
	return inputs[0]
}

func TestMLPGradients(t *testing.T) {
	m := NewMLP(2, 3, 1).Activation(activations.TypeTanh).Initializer(countingInit()).Done()
	x := []float64{0.5, -1}
	y := m.CallValues(x)
	graph.Backpropagate(y)
	got := gradientsOf(m)

	params := m.Parameters()
	values := make([]float64, len(params))
	for ii, p := range params {
		values[ii] = p.Value()
	}
	want := graphtest.NumericalGradient(func(v []float64) float64 {
		return mlpWithParams(m, graph.Consts(v), x).Value()
	}, values, 0)
	assert.InDeltaSlice(t, want, got, 1e-5)

	ZeroGradients(m)
	for _, g := range gradientsOf(m) {
		require.Zero(t, g)
	}
}
