package initializers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomUniformFn(t *testing.T) {
	initFn := RandomUniformFn(42, -1, 1)
	var sum float64
	const n = 10_000
	for range n {
		v := initFn()
		require.GreaterOrEqual(t, v, -1.0)
		require.Less(t, v, 1.0)
		sum += v
	}
	assert.InDelta(t, 0.0, sum/n, 0.05)

	// Same seed, same values.
	a, b := RandomUniformFn(7, 0, 1), RandomUniformFn(7, 0, 1)
	for range 10 {
		require.Equal(t, a(), b())
	}
}

func TestRandomNormalFn(t *testing.T) {
	initFn := RandomNormalFn(42, 2)
	var sum, sum2 float64
	const n = 10_000
	for range n {
		v := initFn()
		sum += v
		sum2 += v * v
	}
	mean := sum / n
	assert.InDelta(t, 0.0, mean, 0.1)
	assert.InDelta(t, 4.0, sum2/n-mean*mean, 0.3)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, 0.0, Zero())
	assert.Equal(t, 1.0, One())
}
