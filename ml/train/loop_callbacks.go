package train

import (
	"fmt"
	"math"
	"time"

	"github.com/gomlx/exceptions"
)

// nTimes is used to implement NTimesDuringLoop.
type nTimes struct {
	n, nUsed int
	fn       OnStepFn
}

func (nT *nTimes) onStep(loop *Loop, metrics []float64) error {
	stepsDone := (loop.LoopStep - loop.StartStep) + 1 // Current LoopStep just finished.
	if loop.EndStep < 0 {
		// End not known, run steps in powers of 2, starting at 128.
		if stepsDone < (128 << nT.nUsed) {
			return nil
		}
	} else if loop.LoopStep < loop.EndStep-1 { // Last step (LoopStep == EndStep-1) is always included.
		stepsPerCall := float64(loop.EndStep-loop.StartStep) / float64(nT.n)
		if stepsPerCall > 1 && float64(stepsDone) < float64(nT.nUsed+1)*stepsPerCall {
			return nil
		}
	}
	nT.nUsed++
	return nT.fn(loop, metrics)
}

// NTimesDuringLoop registers a OnStep hook on the loop that is called at most N times, split evenly
// across all steps.
//
// For Loop.RunEpochs it does not work perfectly even, at least until it knows what is the
// exact number of steps -- it may even call OnStepFn more than n times.
//
// It always calls `fn` at the very last step.
func NTimesDuringLoop(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("NTimesDuringLoop(%d): n must be > 0", n)
	}
	nT := &nTimes{n: n, fn: fn}
	loop.OnStep(fmt.Sprintf("NTimesDuringLoop(%d): %s", n, name), priority, nT.onStep)
}

// EveryNSteps registers a OnStep hook on the loop that is called every n steps, counted since it was registered.
//
// Notice that it does not call `fn` at the last step (except by coincidence).
func EveryNSteps(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("EveryNSteps(%d): n must be > 0", n)
	}
	var count int
	loop.OnStep(fmt.Sprintf("EveryNSteps(%d): %s", n, name), priority, func(loop *Loop, metrics []float64) error {
		count++
		if count%n != 0 {
			return nil
		}
		return fn(loop, metrics)
	})
}

// PeriodicCallback registers an `OnStep` hook on the loop that is called every period of time.
// The period counts after the execution of `fn`, so an expensive `fn` or a paused training
// don't trigger back-to-back calls. The first step only starts the clock.
//
// If callOnEnd is set, it will also call at the end of the loop.
func PeriodicCallback(loop *Loop, period time.Duration, callOnEnd bool, name string, priority Priority, fn OnStepFn) {
	var last time.Time
	fullName := fmt.Sprintf("PeriodicCallback(%s): %s", period, name)
	loop.OnStep(fullName, priority, func(loop *Loop, metrics []float64) error {
		if last.IsZero() {
			last = time.Now()
			return nil
		}
		if time.Since(last) < period {
			return nil
		}
		err := fn(loop, metrics)
		last = time.Now()
		return err
	})
	if callOnEnd {
		loop.OnEnd(fullName, priority, OnEndFn(fn))
	}
}

// ExponentialCallback registers an `OnStep` hook on the loop that is called at exponentially increasing number
// of steps in between, starting with startStep, and growing at geometric factor of exponentialFactor.
//
// If callOnEnd is set, it will also call at the end of the loop.
//
// Example: This will call at steps 100, 100+100*1.2 = 220, 220+100*1.2^2 = 364, ...
//
//	ExponentialCallback(loop, 100, 1.2, "my_callback", 100, myCallback)
func ExponentialCallback(loop *Loop, startStep int, exponentialFactor float64, callOnEnd bool,
	name string, priority Priority, fn OnStepFn) {
	if startStep <= 0 || exponentialFactor <= 1 {
		exceptions.Panicf("ExponentialCallback(startStep=%d, exponentialFactor=%g): startStep must be > 0 and exponentialFactor must be > 1",
			startStep, exponentialFactor)
	}
	var nextCall, skip int
	advance := func() {
		nextCall += skip
		skip = int(math.Round(float64(skip) * exponentialFactor))
	}
	fullName := fmt.Sprintf("ExponentialCallback(%d, %g): %s", startStep, exponentialFactor, name)
	loop.OnStep(fullName, priority, func(loop *Loop, metrics []float64) error {
		if nextCall == 0 {
			// First call: skip the schedule up to the starting step of the loop.
			skip = startStep
			for loop.StartStep >= nextCall {
				advance()
			}
		}
		if loop.LoopStep < nextCall {
			return nil
		}
		advance()
		return fn(loop, metrics)
	})
	if callOnEnd {
		loop.OnEnd(fullName, priority, OnEndFn(fn))
	}
}
