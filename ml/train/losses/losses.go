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

// Package losses have several standard losses that implement the LossFn interface. They can also
// be called separately by custom losses.
//
// They all have the same signature that can be used by train.Trainer: labels and predictions
// hold one scalar per example of the batch, and the returned loss is the mean over the batch.
package losses

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/nanograd/graph"
)

// LossFn is the interface used by train.Trainer to train models.
//
// It takes as inputs the labels and predictions:
//   - labels comes from the dataset, usually as graph.Const nodes.
//   - predictions comes from the model, one per example.
//   - the returned loss must be a scalar node, usually the mean over the examples, and it will be
//     backpropagated by train.Trainer.
//
// For multi-output models, it's easy to write a small custom LossFn that splits the slices and sends
// each label/prediction group to a predefined loss.
type LossFn func(labels, predictions []*Node) (loss *Node)

func checkLabelsAndPredictions(lossName string, labels, predictions []*Node) {
	if len(labels) == 0 {
		Panicf("%s: no labels or predictions given", lossName)
	}
	if len(labels) != len(predictions) {
		Panicf("%s: got %d labels, but %d predictions", lossName, len(labels), len(predictions))
	}
}

// MeanSquaredError returns the mean squared error between labels and predictions.
//
// labels and predictions must have the same length.
func MeanSquaredError(labels, predictions []*Node) (loss *Node) {
	checkLabelsAndPredictions("MeanSquaredError", labels, predictions)
	losses := make([]*Node, len(labels))
	for ii, label := range labels {
		losses[ii] = Pow(Sub(label, predictions[ii]), 2)
	}
	return Mean(losses...)
}

// Abs returns |x|, computed as `relu(x) + relu(-x)`. The gradient at 0 is 0.
func Abs(x *Node) *Node {
	return Add(Relu(x), Relu(Neg(x)))
}

// MeanAbsoluteError returns the mean absolute error between labels and predictions.
//
// labels and predictions must have the same length.
func MeanAbsoluteError(labels, predictions []*Node) (loss *Node) {
	checkLabelsAndPredictions("MeanAbsoluteError", labels, predictions)
	losses := make([]*Node, len(labels))
	for ii, label := range labels {
		losses[ii] = Abs(Sub(label, predictions[ii]))
	}
	return Mean(losses...)
}

// Hinge returns the mean "max-margin" loss `relu(1 - label * prediction)`, where labels are expected to be
// -1 or +1, and predictions are the raw scores of a binary classifier.
func Hinge(labels, predictions []*Node) (loss *Node) {
	checkLabelsAndPredictions("Hinge", labels, predictions)
	losses := make([]*Node, len(labels))
	for ii, label := range labels {
		losses[ii] = Relu(ScalarSub(1, Mul(label, predictions[ii])))
	}
	return Mean(losses...)
}

// BinaryCrossentropyLogits returns the mean cross-entropy loss between labels and `sigmoid(logits)`,
// for binary classification tasks. Labels are expected to be 0 or 1.
//
// It uses the numerically stable formulation `max(x, 0) - x*z + log(1 + exp(-|x|))`, where x is the logit
// and z the label.
func BinaryCrossentropyLogits(labels, logits []*Node) (loss *Node) {
	checkLabelsAndPredictions("BinaryCrossentropyLogits", labels, logits)
	losses := make([]*Node, len(labels))
	for ii, label := range labels {
		x := logits[ii]
		logPart := Log(AddScalar(Exp(Neg(Abs(x))), 1))
		losses[ii] = Add(Sub(Relu(x), Mul(x, label)), logPart)
	}
	return Mean(losses...)
}

// L2Regularization returns `alpha * sum(p^2)` over the given parameters. It is usually added to the
// loss of the model.
//
// It returns a constant 0 if there are no parameters or alpha is 0.
func L2Regularization(params []*Node, alpha float64) *Node {
	if len(params) == 0 || alpha == 0 {
		return Const(0)
	}
	squares := make([]*Node, len(params))
	for ii, p := range params {
		squares[ii] = Pow(p, 2)
	}
	return MulScalar(Sum(squares...), alpha)
}

// WithL2Regularization returns a LossFn that adds L2Regularization of the given parameters to lossFn.
func WithL2Regularization(lossFn LossFn, params []*Node, alpha float64) LossFn {
	return func(labels, predictions []*Node) *Node {
		return Add(lossFn(labels, predictions), L2Regularization(params, alpha))
	}
}

// FromName returns the LossFn for the given name. It panics for unknown names.
//
// Valid names are "mse", "mae", "hinge" and "bce" (binary cross-entropy on logits).
func FromName(name string) LossFn {
	switch name {
	case "mse":
		return MeanSquaredError
	case "mae":
		return MeanAbsoluteError
	case "hinge":
		return Hinge
	case "bce":
		return BinaryCrossentropyLogits
	}
	Panicf("unknown loss %q: valid values are \"mse\", \"mae\", \"hinge\" and \"bce\"", name)
	return nil
}
