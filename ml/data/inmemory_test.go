package data

import (
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingDataset(n int) *InMemoryDataset {
	inputs := make([][]float64, n)
	labels := make([]float64, n)
	for ii := range n {
		inputs[ii] = []float64{float64(ii), float64(-ii)}
		labels[ii] = float64(ii)
	}
	return NewInMemory("counting", inputs, labels)
}

// yieldAll returns the labels yielded in each batch, until io.EOF.
func yieldAll(t *testing.T, ds *InMemoryDataset) [][]float64 {
	var batches [][]float64
	for {
		inputs, labels, err := ds.Yield()
		if err == io.EOF {
			return batches
		}
		require.NoError(t, err)
		require.Len(t, inputs, len(labels))
		for ii, label := range labels {
			require.Equal(t, label, inputs[ii][0])
		}
		batches = append(batches, labels)
	}
}

func TestInMemoryDataset(t *testing.T) {
	ds := newCountingDataset(5)
	assert.Equal(t, 5, ds.NumExamples())
	assert.Equal(t, 2, ds.NumInputs())
	assert.Equal(t, "counting: 5 examples with 2 inputs", ds.String())

	// Default is the whole dataset in one batch.
	assert.Equal(t, [][]float64{{0, 1, 2, 3, 4}}, yieldAll(t, ds))
	ds.Reset()

	ds.BatchSize(2, false)
	assert.Equal(t, [][]float64{{0, 1}, {2, 3}, {4}}, yieldAll(t, ds))
	ds.Reset()
	ds.BatchSize(2, true)
	assert.Equal(t, [][]float64{{0, 1}, {2, 3}}, yieldAll(t, ds))

	// Infinite loops around.
	ds.Reset()
	ds.BatchSize(3, true).Infinite(true)
	for range 10 {
		_, labels, err := ds.Yield()
		require.NoError(t, err)
		require.Len(t, labels, 3)
	}

	// Yielded rows are owned by the caller.
	ds.Reset()
	ds.BatchSize(0, false).Infinite(false)
	inputs, _, err := ds.Yield()
	require.NoError(t, err)
	inputs[0][0] = 1000
	assert.Equal(t, []float64{0, 0}, ds.Inputs()[0])

	require.Panics(t, func() { NewInMemory("bad", [][]float64{{1}}, nil) })
	require.Panics(t, func() { NewInMemory("bad", [][]float64{{1}, {1, 2}}, []float64{0, 1}) })
	require.Panics(t, func() { NewInMemory("bad", nil, nil) })
}

func TestInMemoryShuffle(t *testing.T) {
	ds := newCountingDataset(100).Shuffle(42)
	batches := yieldAll(t, ds)
	require.Len(t, batches, 1)
	require.ElementsMatch(t, newCountingDataset(100).Labels(), batches[0])
	require.NotEqual(t, newCountingDataset(100).Labels(), batches[0])

	// Same seed, same order.
	require.Equal(t, batches, yieldAll(t, newCountingDataset(100).Shuffle(42)))

	// Reset reshuffles.
	ds.Reset()
	require.NotEqual(t, batches, yieldAll(t, ds))
}

func TestInMemorySplitAndMap(t *testing.T) {
	ds := newCountingDataset(10).MapLabels(func(l float64) float64 { return 2 * l })
	require.Equal(t, 18.0, ds.Labels()[9])
	first, second := ds.Split(0.8)
	require.Equal(t, 8, first.NumExamples())
	require.Equal(t, 2, second.NumExamples())
	require.Equal(t, "counting-test", second.Name())
	require.Equal(t, []float64{16, 18}, second.Labels())
	require.Panics(t, func() { ds.Split(1.0) })

	// Shuffled datasets are split in the shuffled order, and no example is lost.
	first, second = newCountingDataset(10).Shuffle(7).Split(0.5)
	all := append(slices.Clone(first.Labels()), second.Labels()...)
	require.NotEqual(t, []float64{0, 1, 2, 3, 4}, first.Labels())
	slices.Sort(all)
	require.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)
}

func TestMoons(t *testing.T) {
	ds := Moons(100, 0, 42)
	require.Equal(t, 100, ds.NumExamples())
	require.Equal(t, 2, ds.NumInputs())
	var numPositive int
	for ii, label := range ds.Labels() {
		x := ds.Inputs()[ii]
		if label > 0 {
			numPositive++
			// Lower moon: centered at (1, 0.5) with radius 1.
			require.InDelta(t, 1.0, (x[0]-1)*(x[0]-1)+(x[1]-0.5)*(x[1]-0.5), 1e-9)
		} else {
			require.Equal(t, -1.0, label)
			require.InDelta(t, 1.0, x[0]*x[0]+x[1]*x[1], 1e-9)
		}
	}
	require.Equal(t, 50, numPositive)

	// Noise is deterministic given the seed.
	require.Equal(t, Moons(20, 0.1, 7).Inputs(), Moons(20, 0.1, 7).Inputs())
	require.NotEqual(t, Moons(20, 0.1, 7).Inputs(), Moons(20, 0, 7).Inputs())
}

func TestBlobs(t *testing.T) {
	ds := Blobs(30, [][]float64{{-10, -10}, {0, 0}, {10, 10}}, 0.1, 42)
	for ii, label := range ds.Labels() {
		require.Equal(t, float64(ii/10), label)
		center := -10 + 10*label
		require.InDelta(t, center, ds.Inputs()[ii][0], 1)
		require.InDelta(t, center, ds.Inputs()[ii][1], 1)
	}
	require.Panics(t, func() { Blobs(1, [][]float64{{0}, {1}}, 0.1, 0) })
}

func TestUniform(t *testing.T) {
	ds := Uniform(50, 3, -1, 1, func(x []float64) float64 { return x[0] + x[1] + x[2] }, 42)
	for ii, x := range ds.Inputs() {
		for _, v := range x {
			require.GreaterOrEqual(t, v, -1.0)
			require.Less(t, v, 1.0)
		}
		require.InDelta(t, x[0]+x[1]+x[2], ds.Labels()[ii], 1e-12)
	}
}

func TestLoadCSV(t *testing.T) {
	csv := "a,b,label,c\n1,2,1,3\n4,5,-1,6\n"
	ds, err := LoadCSV("test", strings.NewReader(csv), "label")
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, ds.Inputs())
	require.Equal(t, []float64{1, -1}, ds.Labels())

	ds, err = LoadCSV("test", strings.NewReader(csv), "label", "c", "a")
	require.NoError(t, err)
	require.Equal(t, [][]float64{{3, 1}, {6, 4}}, ds.Inputs())

	_, err = LoadCSV("test", strings.NewReader(csv), "y")
	require.ErrorContains(t, err, "label column \"y\" not found")
	_, err = LoadCSV("test", strings.NewReader(csv), "label", "d")
	require.Error(t, err)
	_, err = LoadCSV("test", strings.NewReader("a,label\nfoo,1\n"), "label")
	require.ErrorContains(t, err, "not a number")
}
