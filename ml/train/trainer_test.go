package train_test

import (
	"testing"

	. "github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/ml/data"
	"github.com/gomlx/nanograd/ml/layers"
	"github.com/gomlx/nanograd/ml/train"
	"github.com/gomlx/nanograd/ml/train/losses"
	"github.com/gomlx/nanograd/ml/train/metrics"
	"github.com/gomlx/nanograd/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constantModel returns a model that ignores its inputs and predicts the parameter value.
func constantModel(p *Node) train.ModelFn {
	return func(_ []*Node) *Node { return p }
}

func TestTrainerAccumulateGradients(t *testing.T) {
	p := Parameter("prediction", 0)
	trainer := train.NewTrainer([]*Node{p}, constantModel(p), losses.MeanAbsoluteError,
		optimizers.StochasticGradientDescent().LearningRate(0.1).Done(), nil, nil)
	require.NoError(t, trainer.AccumulateGradients(3))
	require.Error(t, trainer.AccumulateGradients(0))
	require.NoError(t, trainer.AccumulateGradients(3))

	inputs := [][]float64{{0}}
	labels := []float64{10}
	for step := range 3 {
		metricsValues, err := trainer.TrainStep(inputs, labels)
		require.NoError(t, err)
		// Loss is measured before the update, and the parameter only changes at the 3rd step.
		assert.InDelta(t, 10.0, metricsValues[0], 1e-9, "step %d", step)
	}
	assert.InDelta(t, 0.3, p.Value(), 1e-9)
	assert.EqualValues(t, 1, trainer.Optimizer().GlobalStep())

	metricsValues, err := trainer.TrainStep(inputs, labels)
	require.NoError(t, err)
	assert.InDelta(t, 9.7, metricsValues[0], 1e-9)
	assert.InDelta(t, 0.3, p.Value(), 1e-9)
}

func TestTrainerL2Regularization(t *testing.T) {
	p := Parameter("prediction", 2)
	trainer := train.NewTrainer([]*Node{p}, constantModel(p), losses.MeanSquaredError,
		optimizers.StochasticGradientDescent().LearningRate(0.1).Done(), nil, nil).
		L2Regularization(0.5)
	metricsValues, err := trainer.TrainStep([][]float64{{0}}, []float64{2})
	require.NoError(t, err)
	// MSE is 0, so the loss is only 0.5 * 2^2, and the gradient 2 * 0.5 * 2.
	assert.InDelta(t, 2.0, metricsValues[0], 1e-9)
	assert.InDelta(t, 2.0-0.1*2.0, p.Value(), 1e-9)

	// Evaluation doesn't include the regularization.
	evalValues, err := trainer.EvalStep([][]float64{{0}}, []float64{1.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, evalValues[0], 1e-9)
}

func TestTrainerErrors(t *testing.T) {
	p := Parameter("prediction", 0)
	trainer := train.NewTrainer([]*Node{p}, constantModel(p), losses.MeanSquaredError,
		optimizers.StochasticGradientDescent().Done(), nil, nil)
	_, err := trainer.TrainStep([][]float64{{0}, {1}}, []float64{1})
	require.Error(t, err)
	_, err = trainer.TrainStep(nil, nil)
	require.Error(t, err)
	_, err = trainer.EvalStep([][]float64{{0}}, []float64{1, 2})
	require.Error(t, err)

	assert.Panics(t, func() {
		train.NewTrainer(nil, constantModel(p), losses.MeanSquaredError, optimizers.StochasticGradientDescent().Done(), nil, nil)
	})
	assert.Panics(t, func() {
		c := Const(1.0)
		train.NewTrainer([]*Node{c}, constantModel(c), losses.MeanSquaredError, optimizers.StochasticGradientDescent().Done(), nil, nil)
	})
}

func TestTrainerMoons(t *testing.T) {
	ds := data.Moons(100, 0.1, 42)
	model := layers.NewMLP(2, 16, 16, 1).Seed(42).Done()
	trainer := train.NewTrainer(model.Parameters(), model.Call1, losses.Hinge,
		optimizers.StochasticGradientDescent().
			Schedule(optimizers.LinearDecaySchedule(1.0, 0.1, 100)).Done(),
		[]metrics.Interface{metrics.NewMovingAverageBinaryAccuracy("Moving Average Accuracy", "~acc", 0.05)},
		[]metrics.Interface{metrics.NewMeanBinaryAccuracy("Mean Accuracy", "#acc")}).
		L2Regularization(1e-4)
	assert.Len(t, trainer.TrainMetrics(), 3)
	assert.Len(t, trainer.EvalMetrics(), 2)

	initialEval, err := trainer.Eval(ds)
	require.NoError(t, err)

	loop := train.NewLoop(trainer)
	_, err = loop.RunEpochs(ds, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, loop.LoopStep)

	finalEval, err := trainer.Eval(ds)
	require.NoError(t, err)
	t.Logf("Moons: mean loss %.4f -> %.4f, accuracy %.2f%% -> %.2f%%",
		initialEval[0], finalEval[0], 100*initialEval[1], 100*finalEval[1])
	assert.Less(t, finalEval[0], initialEval[0])
	assert.Greater(t, finalEval[1], 0.9)

	// Predictions agree with the accuracy.
	correct := 0
	for ii, example := range ds.Inputs() {
		if trainer.Predict(example)*ds.Labels()[ii] > 0 {
			correct++
		}
	}
	assert.InDelta(t, finalEval[1], float64(correct)/float64(ds.NumExamples()), 1e-9)
}
