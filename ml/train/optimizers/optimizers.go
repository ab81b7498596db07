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

// Package optimizers implements a collection of ML optimizers, that can be used by train.Trainer,
// or by themselves. They all implement optimizers.Interface.
//
// Optimizers read the gradients accumulated in the parameters by graph.Backpropagate, and
// update the parameter values with graph.Node.SetValue.
package optimizers

import (
	"maps"
	"math"
	"slices"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/nanograd/graph"
)

// Interface implemented by optimizer implementations.
type Interface interface {
	// Update applies one training step to params, using the gradients currently stored in them.
	// It must be called after graph.Backpropagate of the loss, and before the gradients are zeroed.
	//
	// Each call increments the global step: the first step is 1.
	Update(params []*Node)

	// GlobalStep returns the number of steps (calls to Update) taken so far.
	GlobalStep() int64

	// LearningRate returns the learning rate used in the last step, or the one that will be used in the
	// first step, if no step was taken yet.
	LearningRate() float64

	// Clear deletes the optimizer state (moments, velocities) and resets the global step.
	Clear()
}

var (
	// KnownOptimizers is a map of known optimizers by name to their default constructors, given the
	// learning rate. This provides an easy quick start point.
	KnownOptimizers = map[string]func(learningRate float64) Interface{
		"sgd": func(lr float64) Interface { return StochasticGradientDescent().LearningRate(lr).Done() },
		"momentum": func(lr float64) Interface {
			return StochasticGradientDescent().LearningRate(lr).Momentum(0.9).Done()
		},
		"adam":   func(lr float64) Interface { return Adam().LearningRate(lr).Done() },
		"adamax": func(lr float64) Interface { return Adam().LearningRate(lr).Adamax().Done() },
		"adamw":  func(lr float64) Interface { return Adam().LearningRate(lr).WeightDecay(0.004).Done() },
	}
)

// KnownOptimizersNames returns the sorted names of KnownOptimizers.
func KnownOptimizersNames() []string {
	return slices.Sorted(maps.Keys(KnownOptimizers))
}

// ByName returns an optimizer given the name, or panics if one does not exist.
// It uses KnownOptimizers.
//
// Example usage:
//
//	var flagOptimizer = flag.String("optimizer", "sgd", fmt.Sprintf("Optimizer, options: %q", optimizers.KnownOptimizersNames()))
//	...
//	opt := optimizers.ByName(*flagOptimizer, *flagLearningRate)
func ByName(optName string, learningRate float64) Interface {
	optBuilder, found := KnownOptimizers[optName]
	if !found {
		Panicf("Unknown optimizer %q, valid values are %v.", optName, KnownOptimizersNames())
	}
	return optBuilder(learningRate)
}

// stepState holds the global step and the learning rate schedule, common to all optimizers.
type stepState struct {
	globalStep       int64
	schedule         Schedule
	lastLearningRate float64
	clipStepByValue  float64
}

// nextStep increments the global step and returns the learning rate to use for it.
func (s *stepState) nextStep() (learningRate float64) {
	s.globalStep++
	s.lastLearningRate = s.schedule(s.globalStep)
	return s.lastLearningRate
}

func (s *stepState) GlobalStep() int64 {
	return s.globalStep
}

func (s *stepState) LearningRate() float64 {
	if s.globalStep == 0 {
		return s.schedule(1)
	}
	return s.lastLearningRate
}

// clip applies the clipStepByValue configuration, if it is not 0.
func (s *stepState) clip(step float64) float64 {
	if s.clipStepByValue <= 0 {
		return step
	}
	return math.Max(-s.clipStepByValue, math.Min(s.clipStepByValue, step))
}

// SgdDefaultLearningRate is the default learning rate used by the StochasticGradientDescent optimizer.
const SgdDefaultLearningRate = 0.1

// SGDConfig holds the configuration of the stochastic gradient descent optimizer. Create it with
// StochasticGradientDescent and call Done when finished configuring it.
type SGDConfig struct {
	learningRate    float64
	schedule        Schedule
	momentum        float64
	clipStepByValue float64
}

// StochasticGradientDescent creates the configuration for an optimizer that performs SGD, optionally
// with momentum. Each step does `velocity = momentum * velocity + gradient` and then
// `value -= learning_rate * velocity`.
//
// Without momentum (the default) this is the plain `value -= learning_rate * gradient`.
func StochasticGradientDescent() *SGDConfig {
	return &SGDConfig{learningRate: SgdDefaultLearningRate}
}

// LearningRate sets a constant learning rate. Default is SgdDefaultLearningRate.
// It is ignored if a Schedule is given.
func (c *SGDConfig) LearningRate(value float64) *SGDConfig {
	c.learningRate = value
	return c
}

// Schedule sets a learning rate schedule. It takes precedence over LearningRate.
func (c *SGDConfig) Schedule(schedule Schedule) *SGDConfig {
	c.schedule = schedule
	return c
}

// Momentum sets the momentum factor, typically 0.9. Default is 0, meaning no momentum.
func (c *SGDConfig) Momentum(momentum float64) *SGDConfig {
	if momentum < 0 || momentum >= 1 {
		Panicf("SGD momentum must be in [0, 1), got %g", momentum)
	}
	c.momentum = momentum
	return c
}

// ClipStepByValue clips each individual parameter update to `[-clip, +clip]`, after being scaled by
// the learning rate. Default is 0, meaning no clipping.
func (c *SGDConfig) ClipStepByValue(clip float64) *SGDConfig {
	c.clipStepByValue = clip
	return c
}

// Done creates the SGD optimizer.
func (c *SGDConfig) Done() Interface {
	schedule := c.schedule
	if schedule == nil {
		schedule = ConstantSchedule(c.learningRate)
	}
	return &sgd{
		stepState: stepState{schedule: schedule, clipStepByValue: c.clipStepByValue},
		momentum:  c.momentum,
		velocity:  make(map[*Node]float64),
	}
}

// sgd implements Interface for SGD.
type sgd struct {
	stepState
	momentum float64
	velocity map[*Node]float64
}

// Update implements Interface.
func (o *sgd) Update(params []*Node) {
	learningRate := o.nextStep()
	for _, p := range params {
		direction := p.Gradient()
		if o.momentum > 0 {
			direction += o.momentum * o.velocity[p]
			o.velocity[p] = direction
		}
		p.SetValue(p.Value() - o.clip(learningRate*direction))
	}
}

// Clear implements Interface.
func (o *sgd) Clear() {
	o.globalStep = 0
	clear(o.velocity)
}
