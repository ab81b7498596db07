package nanlogger

import (
	"testing"

	. "github.com/gomlx/nanograd/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanLogger(t *testing.T) {
	var numHandlerCalls int
	var lastHandledScope []string
	var lastIsGradient bool
	handler := func(info *Trace, _ float64, isGradient bool) error {
		numHandlerCalls++
		lastHandledScope = info.Scope
		lastIsGradient = isGradient
		return nil
	}
	l := New().WithHandler(handler)

	build := func(x float64) *Node {
		values := Parameter("x", x)
		l.PushScope("scope1")
		v1 := Log(values)
		l.Trace(v1)
		l.PopScope()
		l.PushScope("base")
		v2 := Pow(values, -1)
		l.Trace(v2, "scope2")
		l.PopScope()
		return Add(v1, v2)
	}

	// Checks that without any NaN, nothing happens.
	build(2)
	require.Equal(t, 2, l.NumTraced())
	require.NoError(t, l.Check())
	assert.Equal(t, 0, numHandlerCalls)
	assert.Equal(t, 0, l.NumTraced())

	// Check that NaN is observed, with the correct scope.
	build(-1)
	require.NoError(t, l.Check())
	require.Equal(t, 1, numHandlerCalls)
	require.Equal(t, []string{"scope1"}, lastHandledScope)

	// Both are Inf: the first one created is reported.
	build(0)
	require.NoError(t, l.Check())
	require.Equal(t, 2, numHandlerCalls)
	require.Equal(t, []string{"scope1"}, lastHandledScope)

	// Non-finite gradients of watched nodes.
	x := Parameter("x", 0)
	l.PushScope("params")
	l.Watch(x)
	l.PopScope()
	Backpropagate(Pow(x, 0.5))
	require.NoError(t, l.Check())
	require.Equal(t, 3, numHandlerCalls)
	require.Equal(t, []string{"params"}, lastHandledScope)
	require.True(t, lastIsGradient)
	require.Equal(t, 1, l.NumTraced())
}

func TestDefaultHandler(t *testing.T) {
	l := New()
	l.PushScope("model")
	l.Trace(Log(Const(-1.0)))
	err := l.Check()
	require.Error(t, err)
	require.Contains(t, err.Error(), "NanLogger observed a value NaN")
	require.Contains(t, err.Error(), "model")

	var nilLogger *NanLogger
	nilLogger.Trace(Const(1))
	require.NoError(t, nilLogger.Check())
}
