// Package activations implements several common activations, and includes a generic Apply method to apply an
// activation by its type.
//
// There is also FromName to convert an activation name (string) to its type.
package activations

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/nanograd/graph"
)

// Type is an enum for the supported activation functions.
//
// It is converted to snake-format strings (e.g.: TypeLeakyRelu -> "leaky_relu"), and can be converted
// from string by using FromName.
type Type int

const (
	TypeNone Type = iota
	TypeRelu
	TypeSigmoid
	TypeLeakyRelu
	TypeSwish
	TypeTanh
)

var typeNames = [...]string{
	TypeNone:      "none",
	TypeRelu:      "relu",
	TypeSigmoid:   "sigmoid",
	TypeLeakyRelu: "leaky_relu",
	TypeSwish:     "swish",
	TypeTanh:      "tanh",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "invalid"
	}
	return typeNames[t]
}

// TypeValues returns all the valid activation types.
func TypeValues() []Type {
	values := make([]Type, len(typeNames))
	for ii := range typeNames {
		values[ii] = Type(ii)
	}
	return values
}

// Apply the given activation type.
// The TypeNone activation is a no-op.
//
// See TypeValues for valid values.
func Apply(activation Type, x *Node) *Node {
	switch activation {
	case TypeNone:
		return x
	case TypeRelu:
		return Relu(x)
	case TypeLeakyRelu:
		return LeakyRelu(x)
	case TypeSigmoid:
		return Sigmoid(x)
	case TypeTanh:
		return Tanh(x)
	case TypeSwish:
		return Swish(x)
	default:
		Panicf("Apply got invalid activation value %q: options are %v", activation, TypeValues())
	}
	return nil
}

// FromName converts the name of an activation to its type.
// It panics with a helpful message if name is invalid. "silu" is accepted as an alias to "swish".
//
// And empty string is converted to TypeNone.
func FromName(activationName string) Type {
	if activationName == "" {
		return TypeNone
	}
	if activationName == "silu" {
		return TypeSwish
	}
	for ii, name := range typeNames {
		if name == activationName {
			return Type(ii)
		}
	}
	Panicf("invalid activation name %q: options are %v", activationName, TypeValues())
	return TypeNone
}

// Sigmoid returns `1/(1+e^-x)`.
func Sigmoid(x *Node) *Node {
	return ScalarDiv(1, AddScalar(Exp(Neg(x)), 1))
}

// LeakyRelu activation function. It allows a small gradient when the unit is not active (x < 0).
// The `alpha` parameter is fixed at 0.3.
//
// It returns `x if x >= 0; alpha*x if x < 0`.
func LeakyRelu(x *Node) *Node {
	return LeakyReluWithAlpha(x, 0.3)
}

// LeakyReluWithAlpha activation function, for 0 <= alpha <= 1.
//
// It is computed as `relu(x) - alpha * relu(-x)`, so the gradient at 0 is 0.
func LeakyReluWithAlpha(x *Node, alpha float64) *Node {
	return Sub(Relu(x), MulScalar(Relu(Neg(x)), alpha))
}

// Swish activation (or SiLU) returns `x * Sigmoid(x)`.
func Swish(x *Node) *Node {
	return Mul(x, Sigmoid(x))
}
