package layers

import (
	"fmt"
	"strings"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/ml/initializers"
	"github.com/gomlx/nanograd/ml/layers/activations"
)

// MLP (Multi-Layer Perceptron) is a sequence of layers, where all but the last layer use a
// non-linear activation. The last layer is linear.
type MLP struct {
	Layers []*Layer
}

var _ Module = (*MLP)(nil)

// MLPConfig is created with NewMLP and can be configured with its methods. Call Done to create the MLP.
type MLPConfig struct {
	name       string
	numInputs  int
	sizes      []int
	activation activations.Type
	initFn     initializers.ParameterInitializer
	seed       uint64
}

// NewMLP configures a new MLP with numInputs inputs, and one layer per value in layerSizes: the
// last value is the number of outputs.
//
// The defaults are: "relu" activation for the hidden layers, weights initialized uniformly in [-1, 1)
// with a random seed, and "mlp" as the name prefix of the parameters.
//
// Example: a model with 3 inputs, two hidden layers of 16 neurons, and a single output:
//
//	model := layers.NewMLP(3, 16, 16, 1).Seed(42).Done()
func NewMLP(numInputs int, layerSizes ...int) *MLPConfig {
	return &MLPConfig{
		name:       "mlp",
		numInputs:  numInputs,
		sizes:      layerSizes,
		activation: activations.TypeRelu,
		seed:       initializers.NoSeed,
	}
}

// Name sets the prefix used to name the parameters.
func (c *MLPConfig) Name(name string) *MLPConfig {
	c.name = name
	return c
}

// Activation sets the activation used by the hidden layers. Default is relu.
func (c *MLPConfig) Activation(activation activations.Type) *MLPConfig {
	c.activation = activation
	return c
}

// Seed sets the seed used by the default initializer. Ignored if an Initializer is given.
func (c *MLPConfig) Seed(seed uint64) *MLPConfig {
	c.seed = seed
	return c
}

// Initializer sets the initializer for the weights. Biases are always initialized to zero.
func (c *MLPConfig) Initializer(initFn initializers.ParameterInitializer) *MLPConfig {
	c.initFn = initFn
	return c
}

// Done creates the MLP and its parameters.
func (c *MLPConfig) Done() *MLP {
	if len(c.sizes) == 0 {
		Panicf("NewMLP(%d) requires at least one layer size", c.numInputs)
	}
	initFn := c.initFn
	if initFn == nil {
		initFn = initializers.RandomUniformFn(c.seed, -1, 1)
	}
	m := &MLP{Layers: make([]*Layer, len(c.sizes))}
	numInputs := c.numInputs
	for ii, size := range c.sizes {
		activation := c.activation
		if ii == len(c.sizes)-1 {
			activation = activations.TypeNone
		}
		m.Layers[ii] = NewLayer(fmt.Sprintf("%s/layer_%d", c.name, ii), numInputs, size, activation, initFn)
		numInputs = size
	}
	return m
}

// Call builds the MLP on the inputs x, and returns its outputs.
func (m *MLP) Call(x []*graph.Node) []*graph.Node {
	for _, l := range m.Layers {
		x = l.Call(x)
	}
	return x
}

// Call1 is like Call, but for MLPs with a single output, which is returned directly.
func (m *MLP) Call1(x []*graph.Node) *graph.Node {
	outputs := m.Call(x)
	if len(outputs) != 1 {
		Panicf("MLP.Call1 used on a MLP with %d outputs", len(outputs))
	}
	return outputs[0]
}

// CallValues is like Call1, but takes the inputs as plain values, which are converted to constants.
func (m *MLP) CallValues(x []float64) *graph.Node {
	return m.Call1(graph.Consts(x))
}

// NumInputs returns the number of inputs the MLP takes.
func (m *MLP) NumInputs() int {
	return len(m.Layers[0].Neurons[0].Weights)
}

// Parameters implements Module: the parameters of each layer, in order.
func (m *MLP) Parameters() []*graph.Node {
	var params []*graph.Node
	for _, l := range m.Layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// String implements fmt.Stringer.
func (m *MLP) String() string {
	parts := make([]string, len(m.Layers))
	for ii, l := range m.Layers {
		parts[ii] = l.String()
	}
	return fmt.Sprintf("MLP of [%s]", strings.Join(parts, ", "))
}
