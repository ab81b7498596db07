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

package train

import (
	"context"
	"io"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative
// values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop, ds Dataset) error

// OnStepFn is the type of OnStep hooks.
type OnStepFn func(loop *Loop, metrics []float64) error

// OnEndFn is the type of OnEnd hooks.
type OnEndFn func(loop *Loop, metrics []float64) error

// OnFailureFn is the type of OnFailure hooks. err is the error the run is returning.
type OnFailureFn func(loop *Loop, err error)

// Loop will run a training loop, invoking Trainer.TrainStep every step,
// and calling the appropriate hooks.
//
// In itself it doesn't do much, but one can attach functionality to it, like
// progress bars, plotting tools, early-stopping strategies, etc.
//
// The public attributes are meant for reading only, don't change them -- behavior
// can be undefined.
type Loop struct {
	// Trainer associated with this loop. In particular Trainer.TrainMetrics() and
	// Trainer.EvalMetrics() can be of interest.
	Trainer *Trainer

	// RunId uniquely identifies this loop, e.g. to name output files or tag traces.
	RunId string

	// LoopStep currently being executed. Defaults to 0. Notice this may not be in sync with
	// the optimizer's GlobalStep, see ReadGlobalStep.
	LoopStep int

	// StartStep is the value of LoopStep at the start of a run (RunSteps or RunEpochs). At the first
	// run it wil be 0 (the default value for LoopStep) and if Loop.RunSteps (or Loop.RunEpochs) is called
	// multiple times, StartStep is reset to the last LoopStep value of the previous run.
	StartStep int

	// EndStep is one-past the last step to be executed. If -1 the end step is not known (if
	// running till the end of the dataset). When running for multiple epochs (Loop.RunEpochs) it can
	// change during the run (after the first epoch, the value is extrapolated based on how many steps
	// have been run so far).
	EndStep int

	// Epoch is set when running Loop.RunEpochs() to the current running epoch, starting from 0.
	Epoch int

	// SharedData allows for cross-tools to publish and consume information. Keys (strings)
	// and semantics/type of their values are not specified by loop.
	SharedData map[string]any

	// TrainStepDurations collected during training
	TrainStepDurations []time.Duration

	// Registered hooks.
	onStart   *priorityHooks[*hookWithName[OnStartFn]]
	onStep    *priorityHooks[*hookWithName[OnStepFn]]
	onEnd     *priorityHooks[*hookWithName[OnEndFn]]
	onFailure *priorityHooks[*hookWithName[OnFailureFn]]
}

// NewLoop creates a new training loop trainer.
func NewLoop(trainer *Trainer) *Loop {
	return &Loop{
		Trainer:    trainer,
		RunId:      uuid.NewString(),
		SharedData: make(map[string]any),
		onStart:    newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:     newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:      newPriorityHooks[*hookWithName[OnEndFn]](),
		onFailure:  newPriorityHooks[*hookWithName[OnFailureFn]](),
	}
}

// start of loop, called by all looping methods.
//
// It calls the appropriate hooks.
func (loop *Loop) start(ds Dataset) (err error) {
	loop.onStart.Enumerate(func(hook *hookWithName[OnStartFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, ds)
		if err != nil {
			err = errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	})
	return
}

// step of loop, called by all looping methods.
// It calls the appropriate hooks.
func (loop *Loop) step(inputs [][]float64, labels []float64) (metrics []float64, err error) {
	startTime := time.Now()
	defer func() {
		elapsed := time.Since(startTime)
		loop.TrainStepDurations = append(loop.TrainStepDurations, elapsed)
	}()

	metrics, err = loop.Trainer.TrainStep(inputs, labels)
	if err != nil {
		return nil, err
	}
	loop.onStep.Enumerate(func(hook *hookWithName[OnStepFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, metrics)
		if err != nil {
			err = errors.WithMessagef(err, "OnStep(hook %q)", hook.name)
		}
	})
	if err != nil {
		return nil, err
	}
	batchLoss := metrics[0]
	if math.IsNaN(batchLoss) {
		err = errors.Errorf("batch loss is NaN, training interrupted")
		return
	}
	if math.IsInf(batchLoss, 0) {
		err = errors.Errorf("batch loss is infinity (%f), training interrupted", batchLoss)
		return
	}
	return
}

// end of loop, called by all looping methods.
// It calls the appropriate hooks.
func (loop *Loop) end(metrics []float64) (err error) {
	loop.onEnd.Enumerate(func(hook *hookWithName[OnEndFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, metrics)
		if err != nil {
			err = errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	})
	return
}

// failed calls the OnFailure hooks. All of them are called.
func (loop *Loop) failed(err error) {
	loop.onFailure.Enumerate(func(hook *hookWithName[OnFailureFn]) {
		hook.fn(loop, err)
	})
}

// startSpan starts the span of a run, tagged with the loop RunId.
func (loop *Loop) startSpan(name string, ds Dataset) trace.Span {
	_, span := tracer().Start(context.Background(), name, trace.WithAttributes(
		attribute.String("run_id", loop.RunId),
		attribute.String("dataset", ds.Name()),
		attribute.Int("start_step", loop.LoopStep)))
	return span
}

// endSpan records the outcome of a run in the span and ends it.
func (loop *Loop) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "training loop failed")
	}
	span.SetAttributes(attribute.Int("end_step", loop.LoopStep))
	span.End()
}

// ReadGlobalStep initializes the LoopStep to the optimizer's global step.
// The default is to have the LoopStep counter always start from 0 -- independent of the optimizer's GlobalStep.
func (loop *Loop) ReadGlobalStep() {
	loop.LoopStep = int(loop.Trainer.Optimizer().GlobalStep())
}

// RunSteps runs those many steps. StartStep and EndStep are adjusted to the current
// LoopStep, so it can be called multiple times, and it will simply pick up
// where it left of last time.
func (loop *Loop) RunSteps(ds Dataset, steps int) (metrics []float64, err error) {
	if steps == 0 {
		return nil, nil
	}
	span := loop.startSpan("Loop.RunSteps", ds)
	defer func() {
		if err != nil {
			loop.failed(err)
		}
		loop.endSpan(span, err)
	}()

	loop.Trainer.ResetTrainMetrics()
	loop.StartStep = loop.LoopStep
	loop.EndStep = loop.LoopStep + steps
	err = loop.start(ds)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Loop(%s).RunSteps(%q, %d) starting at step %d", loop.RunId, ds.Name(), steps, loop.StartStep)
	loop.TrainStepDurations = make([]time.Duration, 0, steps)
	for loop.LoopStep = loop.StartStep; loop.LoopStep < loop.EndStep; loop.LoopStep++ {
		inputs, labels, yieldErr := ds.Yield()
		if yieldErr != nil {
			if yieldErr == io.EOF {
				err = errors.Errorf(
					"reached Dataset end after %d steps (requested %d steps) -- did you mean to use "+
						"a different (looping) Dataset, or use Loop.RunEpochs() instead of Loop.RunSteps() ?",
					loop.LoopStep-loop.StartStep, steps)
				return nil, err
			}
			err = errors.WithMessagef(yieldErr, "Loop.RunSteps(%d): failed reading from Dataset", steps)
			return nil, err
		}
		metrics, err = loop.step(inputs, labels)
		if err != nil {
			err = errors.WithMessagef(err, "Loop.RunSteps(%d): failed TrainStep(LoopStep=%d)", steps, loop.LoopStep)
			return nil, err
		}
	}
	err = loop.end(metrics)
	if err != nil {
		err = errors.WithMessagef(err, "Loop.RunSteps(%d): failed end (LoopStep=%d)", steps, loop.LoopStep)
		return nil, err
	}
	return
}

// RunEpochs runs those many epochs. StartStep is adjusted to the current
// LoopStep, so it can be called multiple times, and it will simply pick up
// where it left of last time.
// Loop.Epoch is set to the current running epoch. EndStep starts as -1 and will
// be adjusted to expectation after the first epoch, when one knows how many steps there are
// going to be.
// Dataset.Reset is called after each epoch (including the last).
func (loop *Loop) RunEpochs(ds Dataset, epochs int) (metrics []float64, err error) {
	span := loop.startSpan("Loop.RunEpochs", ds)
	defer func() {
		if err != nil {
			loop.failed(err)
		}
		loop.endSpan(span, err)
	}()

	loop.Trainer.ResetTrainMetrics()
	loop.StartStep = loop.LoopStep
	loop.EndStep = -1
	loop.Epoch = 0
	err = loop.start(ds)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Loop(%s).RunEpochs(%q, %d) starting at step %d", loop.RunId, ds.Name(), epochs, loop.StartStep)
	// Loop over epochs:
	loop.TrainStepDurations = nil // Reset.
	for loop.Epoch = 0; loop.Epoch < epochs; loop.Epoch++ {
		yieldsPerEpoch := 0
		// Loop over one epoch:
		for {
			inputs, labels, yieldErr := ds.Yield()
			if yieldErr == io.EOF {
				// End of epoch: estimate new EndStep and reset.
				loop.EndStep = loop.LoopStep + yieldsPerEpoch*(epochs-loop.Epoch-1)
				break
			}
			if yieldErr != nil {
				err = errors.WithMessagef(yieldErr, "Loop.RunEpochs(%d): failed reading from Dataset (LoopStep=%d)", epochs, loop.LoopStep)
				return nil, err
			}
			yieldsPerEpoch++

			metrics, err = loop.step(inputs, labels)
			if err != nil {
				err = errors.WithMessagef(err, "Loop.RunEpochs(%d): failed TrainStep(LoopStep=%d)", epochs, loop.LoopStep)
				return nil, err
			}
			loop.LoopStep++
		}
		ds.Reset()
		if yieldsPerEpoch == 0 {
			err = errors.Errorf("Loop.RunEpochs(%d): Dataset %q yielded no batches in epoch %d", epochs, ds.Name(), loop.Epoch)
			return nil, err
		}
	}
	err = loop.end(metrics)
	if err != nil {
		err = errors.WithMessagef(err, "Loop.RunEpochs(%d): failed end (LoopStep=%d)", epochs, loop.LoopStep)
		return nil, err
	}
	return
}

// MedianTrainStepDuration returns the median duration of each training step. It returns 1 millisecond
// if no training step was recorded (to avoid potential division by 0).
func (loop *Loop) MedianTrainStepDuration() time.Duration {
	if len(loop.TrainStepDurations) == 0 {
		// Return something different than 0 to avoid division by 0.
		return time.Millisecond
	}
	times := slices.Clone(loop.TrainStepDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

// OnStart adds a hook with given priority and name (for error reporting) to the start of a loop.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{
		name: name,
		fn:   fn,
	})
}

// OnStep adds a hook with given priority and name (for error reporting) to each step of a loop.
// The function `fn` is called after each `Trainer.TrainStep`.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{
		name: name,
		fn:   fn,
	})
}

// OnEnd adds a hook with given priority and name (for error reporting) to the end of a loop,
// after the last call to `Trainer.TrainStep`.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{
		name: name,
		fn:   fn,
	})
}

// OnFailure adds a hook with given priority and name to be called when a run (RunSteps or RunEpochs)
// returns an error, at any stage. OnEnd hooks may or may not have been called.
func (loop *Loop) OnFailure(name string, priority Priority, fn OnFailureFn) {
	loop.onFailure.Add(priority, &hookWithName[OnFailureFn]{
		name: name,
		fn:   fn,
	})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{
		hooks: make(map[Priority][]H),
	}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// Enumerate will call fn for all registered hooks in priority order.
func (h *priorityHooks[H]) Enumerate(fn func(hook H)) {
	for _, key := range slices.Sorted(maps.Keys(h.hooks)) {
		for _, hook := range h.hooks[key] {
			fn(hook)
		}
	}
}
