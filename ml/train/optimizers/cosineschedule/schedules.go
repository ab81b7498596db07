// Package cosineschedule cosine annealing schedule for the learning rate.
// See details https://paperswithcode.com/method/cosine-annealing.
//
// See New for details and example of usage.
package cosineschedule

import (
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nanograd/ml/train/optimizers"
)

// Config is returned by New to configure the cosine annealing schedule
// strategy. When finished to configure, call `Done`.
type Config struct {
	learningRate, minLearningRate float64
	periodNumSteps                int64
}

// New creates a configuration to apply a cosine annealing schedule for the learning rate.
// See details https://paperswithcode.com/method/cosine-annealing.
//
// This is slightly different in the sense that $T_i$ is fixed to what here is called [PeriodInSteps].
//
// It returns a Config that can be configured. When finished configuring call
// `Done` and it will return the optimizers.Schedule.
//
// Example with only one cycle (assuming `*flagNumSteps` is the number of training steps):
//
//	schedule := cosineschedule.New().LearningRate(0.1).PeriodInSteps(*flagNumSteps).Done()
//	opt := optimizers.StochasticGradientDescent().Schedule(schedule).Done()
func New() *Config {
	return &Config{periodNumSteps: -1}
}

// PeriodInSteps sets the number of steps for one period of the cosine schedule. The effective
// learning rate decreases over the given period of training steps, and then is restarted at
// each new period.
//
// It's common to use only one period (so no annealing, just a cosine schedule), in which case
// just set to the number of steps that will be used for training.
//
// The default is -1, which will panic in Done, so it must be defined.
func (opt *Config) PeriodInSteps(periodSteps int64) *Config {
	opt.periodNumSteps = periodSteps
	return opt
}

// MinLearningRate at the end of the cosine cycle. Defaults to 0.0.
func (opt *Config) MinLearningRate(minLearningRate float64) *Config {
	opt.minLearningRate = minLearningRate
	return opt
}

// LearningRate at the start of the cosine cycle. It must be set.
func (opt *Config) LearningRate(learningRate float64) *Config {
	opt.learningRate = learningRate
	return opt
}

// Done finalizes the configuration and returns the schedule.
//
// It panics if the period or the learning rate are not set.
func (opt *Config) Done() optimizers.Schedule {
	if opt.periodNumSteps <= 0 {
		Panicf("cosine schedule requires PeriodInSteps > 0, got %d", opt.periodNumSteps)
	}
	if opt.learningRate <= 0 {
		Panicf("cosine schedule requires a LearningRate > 0, got %g", opt.learningRate)
	}
	lr, minLR, period := opt.learningRate, opt.minLearningRate, opt.periodNumSteps
	return func(globalStep int64) float64 {
		cycleStep := max(globalStep-1, 0) % period
		cosine := (math.Cos(math.Pi*float64(cycleStep)/float64(period)) + 1) / 2
		return minLR + (lr-minLR)*cosine
	}
}
