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

// Package metrics holds a library of metrics and defines the Interface used by train.Trainer to
// report them.
package metrics

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/nanograd/graph"
)

// Interface for a Metric.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is a key for metrics that share the same quantity or semantics. Eg.:
	// "Moving-Average-Accuracy" and "Batch-Accuracy" would both have the same
	// "accuracy" metric type, and for instance, can be displayed on the same plot, sharing
	// the Y-axis.
	MetricType() string

	// Update takes the labels and predictions (one per example) of a batch, and returns the
	// updated metric value.
	Update(labels, predictions []*Node) float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string

	// Reset metrics internal counters, when starting a new evaluation.
	Reset()
}

const (
	LossMetricType     = "loss"
	AccuracyMetricType = "accuracy"
)

// BaseMetricFn is the function of any metric that can be calculated stateless.
// It should return the mean for the given batch.
type BaseMetricFn func(labels, predictions []*Node) float64

// PrettyPrintFn is a function to convert a metric value to a string.
type PrettyPrintFn func(value float64) string

// baseMetric implements a stateless metric.Interface.
type baseMetric struct {
	name, shortName, metricType string
	metricFn                    BaseMetricFn
	pPrintFn                    PrettyPrintFn // if nil will display default.
}

func (m *baseMetric) Name() string       { return m.name }
func (m *baseMetric) ShortName() string  { return m.shortName }
func (m *baseMetric) MetricType() string { return m.metricType }

func (m *baseMetric) Update(labels, predictions []*Node) float64 {
	return m.metricFn(labels, predictions)
}

func (m *baseMetric) PrettyPrint(value float64) string {
	if m.pPrintFn == nil {
		return fmt.Sprintf("%.3f", value)
	}
	return m.pPrintFn(value)
}

func (m *baseMetric) Reset() {}

// NewBaseMetric creates a stateless metric from any BaseMetricFn function, it will return the metric
// calculated solely on the last batch.
// pPrintFn can be left as nil, and a default will be used.
func NewBaseMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn) Interface {
	return &baseMetric{
		name: name, shortName: shortName, metricType: metricType,
		metricFn: metricFn, pPrintFn: pPrintFn}
}

// meanMetric implements a metric that keeps the mean of a metric.
type meanMetric struct {
	baseMetric
	total, weight float64
}

// NewMeanMetric creates a metric from any BaseMetricFn function. Each batch result is weighted by the
// number of predictions in the batch.
// pPrintFn can be left as nil, and a default will be used.
func NewMeanMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn) Interface {
	return &meanMetric{baseMetric: baseMetric{name: name, shortName: shortName, metricType: metricType, metricFn: metricFn, pPrintFn: pPrintFn}}
}

func (m *meanMetric) Update(labels, predictions []*Node) float64 {
	result := m.metricFn(labels, predictions)
	resultWeight := float64(len(predictions))
	m.total += result * resultWeight
	m.weight += resultWeight
	return m.total / m.weight
}

func (m *meanMetric) Reset() {
	m.total, m.weight = 0, 0
}

// movingAverageMetric implements a metric that keeps the mean of a metric.
//
// It behaves just like a meanMetric, but each new batch has weight of newExampleWeight, and
// the stored weight is capped at (1-newExampleWeight).
type movingAverageMetric struct {
	meanMetric
	newExampleWeight float64
}

// NewExponentialMovingAverageMetric creates a metric from any BaseMetricFn function. It takes new examples with
// the given weight (newExampleWeight), and decays the rest to 1-newExampleWeight.
//
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
// pPrintFn can be left as nil, and a default will be used.
//
// This doesn't have a set prior, it will start being a normal average until there are enough terms, and it becomes
// an exponential moving average.
func NewExponentialMovingAverageMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn, newExampleWeight float64) Interface {
	if newExampleWeight <= 0 || newExampleWeight >= 1 {
		Panicf("moving average metric %q: newExampleWeight must be in (0, 1), got %g", name, newExampleWeight)
	}
	return &movingAverageMetric{
		meanMetric: meanMetric{baseMetric: baseMetric{
			name: name, shortName: shortName, metricType: metricType, metricFn: metricFn, pPrintFn: pPrintFn}},
		newExampleWeight: newExampleWeight,
	}
}

func (m *movingAverageMetric) Update(labels, predictions []*Node) float64 {
	result := m.metricFn(labels, predictions)
	m.weight = min(m.weight+1, 1/m.newExampleWeight)
	rate := 1 / m.weight
	m.total = m.total*(1-rate) + result*rate
	return m.total
}

func accuracyPPrint(value float64) string {
	return fmt.Sprintf("%.2f%%", value*100)
}

// LossFn is the signature of the losses in package losses.
type LossFn func(labels, predictions []*Node) *Node

// NewMeanLoss returns a metric with the mean of the given loss function over all the batches since
// the last Reset.
func NewMeanLoss(name, shortName string, lossFn LossFn) Interface {
	return NewMeanMetric(name, shortName, LossMetricType, func(labels, predictions []*Node) float64 {
		return lossFn(labels, predictions).Value()
	}, nil)
}

// BinaryAccuracy returns the fraction of predictions that have the same sign as the labels.
// Labels can be given as {-1, +1} or as {0, 1}: values > 0 are considered the positive class.
// A prediction of exactly 0 is considered a miss.
func BinaryAccuracy(labels, predictions []*Node) float64 {
	if len(labels) != len(predictions) {
		Panicf("BinaryAccuracy: got %d labels, but %d predictions", len(labels), len(predictions))
	}
	if len(labels) == 0 {
		return 0
	}
	var correct int
	for ii, label := range labels {
		prediction := predictions[ii].Value()
		if (label.Value() > 0 && prediction > 0) || (label.Value() <= 0 && prediction < 0) {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}

// NewMeanBinaryAccuracy returns a new binary accuracy metric with the given names.
func NewMeanBinaryAccuracy(name, shortName string) Interface {
	return NewMeanMetric(name, shortName, AccuracyMetricType, BinaryAccuracy, accuracyPPrint)
}

// NewMovingAverageBinaryAccuracy returns a new binary accuracy metric with the given names.
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
func NewMovingAverageBinaryAccuracy(name, shortName string, newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric(name, shortName, AccuracyMetricType, BinaryAccuracy, accuracyPPrint, newExampleWeight)
}
