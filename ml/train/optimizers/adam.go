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

package optimizers

import (
	"math"

	. "github.com/gomlx/nanograd/graph"
)

// AdamDefaultLearningRate is used by Adam if no learning rate is set.
const AdamDefaultLearningRate = 0.001

// Adam optimization is a stochastic gradient descent method that is based on adaptive estimation of first-order and
// second-order moments. According to [Kingma et al., 2014](http://arxiv.org/abs/1412.6980),
// the method is "*computationally efficient, has little memory requirement, invariant to diagonal rescaling of
// gradients, and is well suited for problems that are large in terms of data/parameters*".
//
// It returns a configuration object that can be used to set its parameters. Once configured call Done, and it
// will return an optimizers.Interface.
func Adam() *AdamConfig {
	return &AdamConfig{
		learningRate: AdamDefaultLearningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-7,
	}
}

// AdamConfig holds the configuration for an Adam configuration, create using Adam(), and once configured
// call Done to create an Adam based optimizers.Interface.
type AdamConfig struct {
	learningRate    float64
	schedule        Schedule
	beta1, beta2    float64
	epsilon         float64
	adamax          bool    // Works as Adamax.
	weightDecay     float64 // Works as AdamW.
	clipStepByValue float64
}

// LearningRate sets a constant base learning rate. Default is AdamDefaultLearningRate.
// It is ignored if a Schedule is given.
func (c *AdamConfig) LearningRate(value float64) *AdamConfig {
	c.learningRate = value
	return c
}

// Schedule sets a learning rate schedule. It takes precedence over LearningRate.
func (c *AdamConfig) Schedule(schedule Schedule) *AdamConfig {
	c.schedule = schedule
	return c
}

// Betas sets the two moving averages constants (exponential decays). They default to 0.9 and 0.999.
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	c.beta1, c.beta2 = beta1, beta2
	return c
}

// Epsilon used on the denominator as a small constant for stability.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	c.epsilon = epsilon
	return c
}

// Adamax configure Adam to use a L-infinity (== max, which gives the name) for
// the second moment, instead of L2, as described in the same Adam paper.
func (c *AdamConfig) Adamax() *AdamConfig {
	c.adamax = true
	return c
}

// WeightDecay configure optimizer to work as AdamW, with the given static weight decay.
// This is because L2 regularization doesn't work well with Adam.
func (c *AdamConfig) WeightDecay(weightDecay float64) *AdamConfig {
	c.weightDecay = weightDecay
	return c
}

// ClipStepByValue clips each individual parameter update to `[-clip, +clip]`, after being scaled by
// the learning rate. Default is 0, meaning no clipping.
func (c *AdamConfig) ClipStepByValue(clip float64) *AdamConfig {
	c.clipStepByValue = clip
	return c
}

// Done will finish the configuration and construct an optimizers.Interface that implements the Adam algorithm.
func (c *AdamConfig) Done() Interface {
	schedule := c.schedule
	if schedule == nil {
		schedule = ConstantSchedule(c.learningRate)
	}
	return &adam{
		stepState: stepState{schedule: schedule, clipStepByValue: c.clipStepByValue},
		config:    c,
		moments:   make(map[*Node]*adamMoments),
	}
}

// adamMoments holds the 1st and 2nd order moments of one parameter.
type adamMoments struct {
	moment1, moment2 float64
}

// adam implements the Adam algorithm as an optimizers.Interface.
type adam struct {
	stepState
	config  *AdamConfig
	moments map[*Node]*adamMoments
}

// Update implements Interface.
func (o *adam) Update(params []*Node) {
	learningRate := o.nextStep()
	step := float64(o.globalStep)
	debiasTermBeta1 := 1 / (1 - math.Pow(o.config.beta1, step))
	debiasTermBeta2 := 1 / (1 - math.Pow(o.config.beta2, step))
	for _, p := range params {
		o.applyAdam(p, learningRate, debiasTermBeta1, debiasTermBeta2)
	}
}

// applyAdam updates the parameter and its 1st and 2nd order moments.
// If adamax is set, we use instead moment2 to store the L-infinity (the max) of the gradient.
func (o *adam) applyAdam(p *Node, learningRate, debiasTermBeta1, debiasTermBeta2 float64) {
	c := o.config
	m, found := o.moments[p]
	if !found {
		m = &adamMoments{}
		o.moments[p] = m
	}
	grad := p.Gradient()

	// Do gradient step with momentum.
	m.moment1 = c.beta1*m.moment1 + (1-c.beta1)*grad
	debiasedMoment1 := m.moment1 * debiasTermBeta1

	var denominator float64
	if c.adamax {
		m.moment2 = math.Max(c.beta2*m.moment2, math.Abs(grad)) // L-infinity norm.
		denominator = m.moment2 + c.epsilon
	} else {
		m.moment2 = c.beta2*m.moment2 + (1-c.beta2)*grad*grad
		denominator = math.Sqrt(m.moment2*debiasTermBeta2) + c.epsilon
	}

	value := p.Value()
	stepDirection := debiasedMoment1 / denominator
	if c.weightDecay > 0 {
		stepDirection += value * c.weightDecay
	}
	p.SetValue(value - o.clip(learningRate*stepDirection))
}

// Clear implements Interface.
func (o *adam) Clear() {
	o.globalStep = 0
	clear(o.moments)
}
