package plots

import (
	"os"
	"path"
	"testing"

	. "github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/ml/data"
	"github.com/gomlx/nanograd/ml/train"
	"github.com/gomlx/nanograd/ml/train/losses"
	"github.com/gomlx/nanograd/ml/train/metrics"
	"github.com/gomlx/nanograd/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
)

func TestRecorder(t *testing.T) {
	p := Parameter("prediction", 0)
	trainer := train.NewTrainer([]*Node{p}, func(_ []*Node) *Node { return p }, losses.MeanSquaredError,
		optimizers.StochasticGradientDescent().Done(),
		[]metrics.Interface{metrics.NewMovingAverageBinaryAccuracy("Moving Average Accuracy", "~acc", 0.1)},
		[]metrics.Interface{metrics.NewMeanBinaryAccuracy("Mean Accuracy", "#acc")})
	loop := train.NewLoop(trainer)
	trainDS := data.NewInMemory("ones", [][]float64{{0}, {1}}, []float64{1, 1}).BatchSize(1, false).Infinite(true)
	evalDS := data.NewInMemory("eval", [][]float64{{0}}, []float64{1})

	dir := t.TempDir()
	pointsFile := path.Join(dir, TrainingPlotFileName)
	recorder := New().WithFile(pointsFile).Attach(loop, 5, evalDS)
	_, err := loop.RunSteps(trainDS, 10)
	require.NoError(t, err)
	require.NoError(t, recorder.Close())
	assert.Same(t, recorder, loop.SharedData[RecorderName])

	assert.Equal(t, 5, recorder.NumSamples())
	points := recorder.Points()
	assert.Len(t, points, 5)
	assert.Equal(t, []float64{2, 4, 6, 8, 10}, func() (steps []float64) {
		for _, pt := range points.Extract() {
			if pt.MetricName == "Train: Moving Average Loss" {
				steps = append(steps, pt.Step)
			}
		}
		return
	}())
	assert.Equal(t, []string{
		"Mean Accuracy on eval", "Train: Moving Average Accuracy",
		"Mean Loss on eval", "Train: Moving Average Loss",
	}, points.MetricsNames())
	assert.Contains(t, points.String(), "Mean Loss on eval")
	assert.Equal(t, []string{metrics.AccuracyMetricType, metrics.LossMetricType}, recorder.MetricTypes())

	// Points saved to file.
	loaded, err := LoadPoints(pointsFile)
	require.NoError(t, err)
	assert.Equal(t, points.Extract(), NewPoints(loaded).Extract())

	// Only eval points.
	points.Filter(func(p Point) bool { return p.Short == "#loss(eva)" })
	assert.Len(t, points.Extract(), 5)

	files, err := recorder.Save(dir, "test", "png", 6*vg.Inch, 4*vg.Inch)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, file := range files {
		info, err := os.Stat(file)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	_, err = recorder.Plot("missing", "unknown")
	require.Error(t, err)
	_, err = New().Save(dir, "empty", "png", vg.Inch, vg.Inch)
	require.Error(t, err)

	// Errors opening the points file are reported on Close.
	badRecorder := New().WithFile(path.Join(dir, "missing", "points.json"))
	badRecorder.AddPoint(Point{MetricName: "x", MetricType: "loss", Step: 1, Value: 1})
	require.Error(t, badRecorder.Close())
}
