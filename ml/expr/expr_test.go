package expr

import (
	"testing"

	"github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/graph/graphtest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sanitySource = `
z := 2*x + 2 + x
q := relu(z) + z*x
h := relu(z * z)
y := h + q + q*x
`

const moreOpsSource = `
c := a + b
d := a*b + pow(b, 3)
c += c + 1
c += 1 + c + (-a)
d += d*2 + relu(b+a)
d += 3*d + relu(b-a)
e := c - d
f := pow(e, 2)
g := f / 2.0
g += 10.0 / f
`

func TestGradientsReferenceExpressions(t *testing.T) {
	value, grads, err := Gradients(sanitySource, map[string]any{"x": -4})
	require.NoError(t, err)
	assert.InDelta(t, -20.0, value, 1e-12)
	assert.InDelta(t, 46.0, grads["x"], 1e-12)

	value, grads, err = Gradients(moreOpsSource, map[string]any{"a": -4.0, "b": float32(2)})
	require.NoError(t, err)
	assert.InDelta(t, 24.70408163265306, value, 1e-9)
	want := map[string]float64{"a": 138.83381924198252, "b": 645.5772594752186}
	got := map[string]float64{"a": grads["a"], "b": grads["b"]}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("more ops gradients mismatch (-want +got):\n%s", diff)
	}
	// The gradient of the result with respect to itself is 1.
	assert.Equal(t, 1.0, grads["g"])
}

func TestGradientsAgainstNumerical(t *testing.T) {
	sources := []string{
		"tanh(x*y) + exp(-x) / y",
		"pow(x, 3) - pow(y, -0.5) * x",
		"log(x*x + 1) + relu(y - x)",
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			values := []float64{0.7, 1.9}
			_, grads, err := Gradients(src, map[string]any{"x": values[0], "y": values[1]})
			require.NoError(t, err)
			numerical := graphtest.NumericalGradient(func(x []float64) float64 {
				root, _, err := Evaluate(src, map[string]any{"x": x[0], "y": x[1]})
				require.NoError(t, err)
				return root.Value()
			}, values, 1e-6)
			if diff := cmp.Diff(numerical, []float64{grads["x"], grads["y"]}, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
				t.Errorf("gradients mismatch (-numerical +backprop):\n%s", diff)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	x := graph.Parameter("x", 3)
	root, named, err := Evaluate("y := x * x; y + 1", map[string]any{"x": x})
	require.NoError(t, err)
	assert.Equal(t, 10.0, root.Value())
	assert.Same(t, x, named["x"])
	assert.Equal(t, 9.0, named["y"].Value())
	assert.Equal(t, 0.0, x.Gradient(), "Evaluate must not backpropagate")

	// Literals and constant exponents.
	root, _, err = Evaluate("0x10 + 1_000 + 2.5e-1 + pow(2, (1+1)*2)", nil)
	require.NoError(t, err)
	assert.Equal(t, 16+1000+0.25+16.0, root.Value())
}

func TestEvaluateErrors(t *testing.T) {
	for _, tc := range []struct{ name, src string }{
		{"Empty", ""},
		{"Syntax", "x +"},
		{"UnknownVariable", "x + w"},
		{"UnknownFunction", "sin(x)"},
		{"Modulo", "x % 2"},
		{"UnaryNot", "!x"},
		{"String", `x + "a"`},
		{"MultiAssign", "a, b := x, x"},
		{"ShiftAssign", "x <<= 1"},
		{"Statement", "if x { }"},
		{"PowArgs", "pow(x)"},
		{"ReluArgs", "relu(x, x)"},
		{"ClosesBody", "x }; func f() { y"},
		{"ExtraDeclaration", "x }\nvar z = 1\nfunc g() {"},
		{"Block", "{ x }"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Evaluate(tc.src, map[string]any{"x": 1.0})
			require.Error(t, err)
		})
	}

	// Unknown variable reports its position.
	_, _, err := Evaluate("y := x\nx + w", map[string]any{"x": 1.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `2:5: unknown variable "w"`)

	// Non-constant exponents, and operands that are not numbers.
	var operandErr *graph.UnsupportedOperandError
	_, _, err = Evaluate("pow(x, y)", map[string]any{"x": 2.0, "y": 3.0})
	require.ErrorAs(t, err, &operandErr)
	assert.Equal(t, "Pow", operandErr.Op)

	_, _, err = Evaluate("x", map[string]any{"x": "one"})
	require.True(t, errors.As(err, &operandErr))

	var nilNode *graph.Node
	_, _, err = Evaluate("x", map[string]any{"x": nilNode})
	require.ErrorAs(t, err, &operandErr)

	_, _, err = Evaluate("x", map[string]any{"not a name": 1})
	require.Error(t, err)
}
