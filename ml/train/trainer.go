/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package train holds tools to help run a training loop: Trainer runs one step of training
// (forward, backpropagation and the optimizer update), and Loop runs many steps over a Dataset,
// calling the registered hooks.
package train

import (
	"context"
	"io"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/ml/layers"
	"github.com/gomlx/nanograd/ml/train/losses"
	"github.com/gomlx/nanograd/ml/train/metrics"
	"github.com/gomlx/nanograd/ml/train/optimizers"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// TracerName is the name of the OpenTelemetry tracer used by the training tools.
// Spans are only recorded if a global TracerProvider is configured (see otel.SetTracerProvider).
const TracerName = "github.com/gomlx/nanograd/ml/train"

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// ModelFn builds the model for one example: it takes the example inputs as graph nodes and
// returns the prediction. E.g. layers.MLP.Call1.
type ModelFn func(inputs []*Node) (prediction *Node)

// Trainer runs training and evaluation steps of a model, on batches of examples.
//
// For each batch it builds a new graph on top of the model parameters: one prediction per example,
// the loss, and then it backpropagates the loss and updates the parameters with the optimizer.
type Trainer struct {
	params    []*Node
	modelFn   ModelFn
	lossFn    losses.LossFn
	optimizer optimizers.Interface

	l2Regularization float64

	// accumulateGradientsSteps > 1 means the optimizer only updates every that many steps.
	accumulateGradientsSteps, accumulatedSteps int

	lastLoss                     float64
	lossMetrics, trainMetrics    []metrics.Interface
	evalLossMetrics, evalMetrics []metrics.Interface
}

// NewTrainer constructs a trainer for the model given by modelFn, with the trainable params.
//
// trainMetrics are updated at each TrainStep, and evalMetrics at each EvalStep. Both are preceded by
// loss metrics automatically included by the Trainer: "Batch Loss" and "Moving Average Loss" for
// training, and "Mean Loss" for evaluation.
//
// Example:
//
//	model := layers.NewMLP(2, 16, 16, 1).Done()
//	trainer := train.NewTrainer(model.Parameters(), model.Call1, losses.Hinge,
//		optimizers.StochasticGradientDescent().Done(),
//		[]metrics.Interface{metrics.NewMovingAverageBinaryAccuracy("Moving Average Accuracy", "~acc", 0.01)},
//		[]metrics.Interface{metrics.NewMeanBinaryAccuracy("Mean Accuracy", "#acc")})
func NewTrainer(params []*Node, modelFn ModelFn, lossFn losses.LossFn, optimizer optimizers.Interface,
	trainMetrics, evalMetrics []metrics.Interface) *Trainer {
	if len(params) == 0 {
		exceptions.Panicf("NewTrainer requires at least one trainable parameter")
	}
	for _, p := range params {
		if p.Type() != OpTypeParameter {
			exceptions.Panicf("NewTrainer requires Parameter nodes to train, got %s", p)
		}
	}
	t := &Trainer{
		params:                   params,
		modelFn:                  modelFn,
		lossFn:                   lossFn,
		optimizer:                optimizer,
		accumulateGradientsSteps: 1,
		trainMetrics:             trainMetrics,
		evalMetrics:              evalMetrics,
	}
	lastLossFn := func(_, _ []*Node) float64 { return t.lastLoss }
	t.lossMetrics = []metrics.Interface{
		metrics.NewBaseMetric("Batch Loss", "batch_loss", metrics.LossMetricType, lastLossFn, nil),
		metrics.NewExponentialMovingAverageMetric("Moving Average Loss", "~loss", metrics.LossMetricType, lastLossFn, nil, 0.01),
	}
	t.evalLossMetrics = []metrics.Interface{
		metrics.NewMeanLoss("Mean Loss", "#loss", metrics.LossFn(lossFn)),
	}
	return t
}

// L2Regularization adds `alpha * sum(p^2)` over the trainable parameters to the training loss.
// Evaluation losses are not affected.
//
// It returns the Trainer, so calls can be cascaded.
func (t *Trainer) L2Regularization(alpha float64) *Trainer {
	t.l2Regularization = alpha
	return t
}

// AccumulateGradients configures the trainer to accumulate the gradients of numSteps training steps,
// and only then apply the optimizer. The default (1) updates the parameters at every step.
//
// This is useful to emulate larger batches.
func (t *Trainer) AccumulateGradients(numSteps int) error {
	if numSteps < 1 {
		return errors.Errorf("Trainer.AccumulateGradients(%d): numSteps must be >= 1", numSteps)
	}
	t.accumulateGradientsSteps = numSteps
	t.accumulatedSteps = 0
	return nil
}

// Parameters returns the trainable parameters.
func (t *Trainer) Parameters() []*Node {
	return t.params
}

// Optimizer returns the optimizer used by the trainer.
func (t *Trainer) Optimizer() optimizers.Interface {
	return t.optimizer
}

// TrainMetrics returns the list of metrics returned by TrainStep: the loss metrics first, followed by
// the ones given to NewTrainer.
func (t *Trainer) TrainMetrics() []metrics.Interface {
	return append(append([]metrics.Interface(nil), t.lossMetrics...), t.trainMetrics...)
}

// EvalMetrics returns the list of metrics returned by EvalStep and Eval: the mean loss first, followed
// by the ones given to NewTrainer.
func (t *Trainer) EvalMetrics() []metrics.Interface {
	return append(append([]metrics.Interface(nil), t.evalLossMetrics...), t.evalMetrics...)
}

// ResetTrainMetrics resets the state of the training metrics.
func (t *Trainer) ResetTrainMetrics() {
	for _, m := range t.TrainMetrics() {
		m.Reset()
	}
}

// ResetEvalMetrics resets the state of the evaluation metrics.
func (t *Trainer) ResetEvalMetrics() {
	for _, m := range t.EvalMetrics() {
		m.Reset()
	}
}

// buildPredictions builds the model on each example, and returns the predictions and the labels as nodes.
func (t *Trainer) buildPredictions(inputs [][]float64, labels []float64) (predictions, labelNodes []*Node) {
	if len(inputs) != len(labels) {
		exceptions.Panicf("batch has %d examples, but %d labels", len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		exceptions.Panicf("empty batch")
	}
	predictions = make([]*Node, len(inputs))
	for ii, example := range inputs {
		predictions[ii] = t.modelFn(Consts(example))
	}
	return predictions, Consts(labels)
}

// Predict returns the model prediction for one example.
func (t *Trainer) Predict(example []float64) float64 {
	return t.modelFn(Consts(example)).Value()
}

// TrainStep runs one step of training on the batch of examples: it builds the predictions and the loss,
// backpropagates it and, unless accumulating gradients, updates the parameters with the optimizer.
//
// It returns the values of TrainMetrics: the first is always the loss of the batch. Failures while
// building the graph or backpropagating (e.g.: graph.UnsupportedOperandError) are returned as errors.
func (t *Trainer) TrainStep(inputs [][]float64, labels []float64) (metricsValues []float64, err error) {
	_, span := tracer().Start(context.Background(), "Trainer.TrainStep",
		trace.WithAttributes(attribute.Int("batch_size", len(labels))))
	defer span.End()

	err = exceptions.TryCatch[error](func() {
		if t.accumulatedSteps == 0 {
			layers.ZeroGradientsOf(t.params)
		}
		predictions, labelNodes := t.buildPredictions(inputs, labels)
		loss := t.lossFn(labelNodes, predictions)
		if t.l2Regularization > 0 {
			loss = Add(loss, losses.L2Regularization(t.params, t.l2Regularization))
		}
		t.lastLoss = loss.Value()
		Backpropagate(loss)
		t.accumulatedSteps++
		if t.accumulatedSteps >= t.accumulateGradientsSteps {
			t.optimizer.Update(t.params)
			t.accumulatedSteps = 0
		}
		metricsValues = t.updateMetrics(t.TrainMetrics(), labelNodes, predictions)
	})
	if err != nil {
		err = errors.WithMessagef(err, "Trainer.TrainStep failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "train step failed")
		return nil, err
	}
	span.SetAttributes(attribute.Float64("loss", t.lastLoss))
	if klog.V(2).Enabled() {
		klog.Infof("TrainStep(global step %d): loss=%g", t.optimizer.GlobalStep(), t.lastLoss)
	}
	return
}

func (t *Trainer) updateMetrics(ms []metrics.Interface, labels, predictions []*Node) []float64 {
	values := make([]float64, len(ms))
	for ii, m := range ms {
		values[ii] = m.Update(labels, predictions)
	}
	return values
}

// EvalStep evaluates the model on the batch of examples, updating the evaluation metrics.
// It doesn't backpropagate or change the parameters.
//
// It returns the values of EvalMetrics.
func (t *Trainer) EvalStep(inputs [][]float64, labels []float64) (metricsValues []float64, err error) {
	err = exceptions.TryCatch[error](func() {
		predictions, labelNodes := t.buildPredictions(inputs, labels)
		metricsValues = t.updateMetrics(t.EvalMetrics(), labelNodes, predictions)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "Trainer.EvalStep failed")
	}
	return
}

// Eval resets the evaluation metrics and runs EvalStep on all batches of the dataset, until io.EOF.
// It resets the dataset at the end, and returns the final values of the EvalMetrics.
func (t *Trainer) Eval(ds Dataset) (metricsValues []float64, err error) {
	_, span := tracer().Start(context.Background(), "Trainer.Eval",
		trace.WithAttributes(attribute.String("dataset", ds.Name())))
	defer span.End()

	t.ResetEvalMetrics()
	defer ds.Reset()
	numBatches := 0
	for {
		inputs, labels, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			err = errors.WithMessagef(yieldErr, "Trainer.Eval(%q): failed reading from Dataset", ds.Name())
			span.RecordError(err)
			return nil, err
		}
		metricsValues, err = t.EvalStep(inputs, labels)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		numBatches++
	}
	if numBatches == 0 {
		return nil, errors.Errorf("Trainer.Eval(%q): dataset yielded no batches", ds.Name())
	}
	return
}
