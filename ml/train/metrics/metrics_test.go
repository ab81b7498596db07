package metrics

import (
	"testing"

	. "github.com/gomlx/nanograd/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryAccuracy(t *testing.T) {
	labels := Consts([]float64{1, -1, 1, -1})
	predictions := Consts([]float64{0.5, -2, -0.1, 0})
	require.Equal(t, 0.5, BinaryAccuracy(labels, predictions))

	// {0, 1} labels.
	labels = Consts([]float64{1, 0, 0})
	predictions = Consts([]float64{3, -3, 3})
	require.InDelta(t, 2.0/3.0, BinaryAccuracy(labels, predictions), 1e-12)
	require.Panics(t, func() { BinaryAccuracy(labels, predictions[:1]) })
}

func TestMeanMetric(t *testing.T) {
	m := NewMeanBinaryAccuracy("Mean Accuracy", "#acc")
	assert.Equal(t, "Mean Accuracy", m.Name())
	assert.Equal(t, "#acc", m.ShortName())
	assert.Equal(t, AccuracyMetricType, m.MetricType())

	// Batch of 4 with 100% accuracy, then a batch of 1 with 0%.
	require.Equal(t, 1.0, m.Update(Consts([]float64{1, 1, 1, 1}), Consts([]float64{1, 1, 1, 1})))
	require.InDelta(t, 0.8, m.Update(Consts([]float64{1}), Consts([]float64{-1})), 1e-12)
	assert.Equal(t, "80.00%", m.PrettyPrint(0.8))

	m.Reset()
	require.Equal(t, 0.0, m.Update(Consts([]float64{1}), Consts([]float64{-1})))
}

func TestMovingAverageMetric(t *testing.T) {
	m := NewMovingAverageBinaryAccuracy("Moving Accuracy", "~acc", 0.5)
	// Starts as a plain average.
	require.Equal(t, 1.0, m.Update(Consts([]float64{1}), Consts([]float64{1})))
	require.Equal(t, 0.5, m.Update(Consts([]float64{1}), Consts([]float64{-1})))
	// Then each new value has weight 0.5.
	require.Equal(t, 0.25, m.Update(Consts([]float64{1}), Consts([]float64{-1})))
	require.Panics(t, func() { NewMovingAverageBinaryAccuracy("bad", "bad", 1.0) })
}

func TestMeanLoss(t *testing.T) {
	sumLoss := func(labels, predictions []*Node) *Node {
		return Mean(Sub(labels[0], predictions[0]))
	}
	m := NewMeanLoss("Mean Loss", "#loss", sumLoss)
	assert.Equal(t, LossMetricType, m.MetricType())
	require.Equal(t, 2.0, m.Update(Consts([]float64{3}), Consts([]float64{1})))
	require.Equal(t, 3.0, m.Update(Consts([]float64{5}), Consts([]float64{1})))
	assert.Equal(t, "3.000", m.PrettyPrint(3))
}
