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

package data

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/gomlx/nanograd/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ParallelDataset is a wrapper around a `train.Dataset` that parallelize calls to Yield.
// See details in CustomParallel.
type ParallelDataset struct {
	// Dataset is the underlying dataset. It must be thread-safe.
	Dataset train.Dataset

	// parallelism is the number of goroutines started generating examples.
	parallelism int

	// extraBufferSize is the size of the cache of pre-generated batches.
	extraBufferSize int

	// mu protects epoch and err.
	mu    sync.Mutex
	epoch *parallelEpoch
	err   error
}

type yieldUnit struct {
	inputs [][]float64
	labels []float64
}

// parallelEpoch holds the goroutines and channels of one epoch: Reset stops it and starts a new one.
type parallelEpoch struct {
	cache    chan yieldUnit
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

func (e *parallelEpoch) stopAll() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Parallel parallelizes any thread-safe train.Dataset.
//
// It uses CustomParallel and automatically starts it with the default
// parameters.
//
// To avoid leaking goroutines, call ParallelDataset.Stop when exiting.
//
// Example:
//
//	var ds train.Dataset
//	ds = NewMyDataset(...)
//	ds = data.Parallel(ds)
//	MyTrainFunc(ds)
func Parallel(ds train.Dataset) *ParallelDataset {
	pds := CustomParallel(ds)
	return pds.Buffer(pds.parallelism).Start()
}

// CustomParallel builds a ParallelDataset that can be used to parallelize any
// train.Dataset, as long as the underlying dataset ds is thread-safe.
//
// ParallelDataset can be further configured (see Parallelism and Buffer),
// and then one has to call Start before actually using the Dataset.
//
// Notice the order of the batches is not preserved.
//
// Example:
//
//	var ds train.Dataset
//	ds = NewMyDataset(...)
//	ds = data.CustomParallel(ds).Buffer(10).Start()
//	MyTrainFunc(ds)
func CustomParallel(ds train.Dataset) *ParallelDataset {
	pd := &ParallelDataset{
		Dataset: ds,
	}
	pd.Parallelism(0)
	return pd
}

// Parallelism is the number of goroutines to start, each calling `ds.Yield()` in parallel
// to accelerate the generation of batches. If set to 0 (the default), and it will use the
// number of cores in the system plus 1.
//
// This must be called before a call to Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Parallelism(n int) *ParallelDataset {
	if pd.epoch != nil {
		klog.Errorf("ParallelDataset invalid configuration change after Start has been called.")
		return pd
	}
	if n == 0 {
		n = runtime.NumCPU() + 1
	}
	pd.parallelism = n
	return pd
}

// Buffer reserved in the channel that collects the parallel yields.
//
// This must be called before a call to Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Buffer(n int) *ParallelDataset {
	if pd.epoch != nil {
		klog.Errorf("ParallelDataset invalid configuration change after Start has been called.")
		return pd
	}
	pd.extraBufferSize = n
	return pd
}

// Start indicates that the dataset is finished to be configured, and starts
// being a valid Dataset.
//
// After Start its configuration can no longer be changed.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Start() *ParallelDataset {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if pd.epoch != nil {
		klog.Errorf("ParallelDataset.Start called more than once!?")
		return pd
	}
	pd.epoch = pd.startEpoch()
	return pd
}

// startEpoch starts the goroutines generating batches for one epoch.
func (pd *ParallelDataset) startEpoch() *parallelEpoch {
	epoch := &parallelEpoch{
		cache:    make(chan yieldUnit, pd.extraBufferSize),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	var wg sync.WaitGroup
	for range pd.parallelism {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-epoch.stop:
					return
				default:
					// Move forward and generate the next batch.
				}
				var unit yieldUnit
				var err error
				unit.inputs, unit.labels, err = pd.Dataset.Yield()
				if err == io.EOF {
					return
				}
				if err != nil {
					klog.Errorf("ParallelDataset(%q) failed: %+v", pd.Dataset.Name(), err)
					// Fatal error, stop everything.
					pd.mu.Lock()
					if pd.err == nil {
						pd.err = err
					}
					pd.mu.Unlock()
					epoch.stopAll()
					return
				}
				select {
				case <-epoch.stop:
					return
				case epoch.cache <- unit:
					// Batch generated and cached, move to next.
				}
			}
		}()
	}

	// Controller: marks the end of the epoch once all goroutines are done.
	go func() {
		wg.Wait()
		close(epoch.finished)
	}()
	return epoch
}

// Name implements train.Dataset.
func (pd *ParallelDataset) Name() string {
	return fmt.Sprintf("%s [Parallel]", pd.Dataset.Name())
}

// Stop all goroutines. The dataset can no longer be used afterward, except after a Reset.
func (pd *ParallelDataset) Stop() {
	pd.mu.Lock()
	epoch := pd.epoch
	pd.mu.Unlock()
	if epoch == nil {
		return
	}
	epoch.stopAll()
	<-epoch.finished
}

// Reset implements train.Dataset.
func (pd *ParallelDataset) Reset() {
	pd.mu.Lock()
	epoch := pd.epoch
	pd.mu.Unlock()
	if epoch == nil {
		klog.Errorf("ParallelDataset.Reset was called before it was started with ParallelDataset.Start")
		return
	}
	// Indicate to goroutines to stop generating batches, and wait for them. Remaining cached batches are dropped.
	epoch.stopAll()
	<-epoch.finished

	// Reset underlying dataset and start again.
	pd.Dataset.Reset()
	pd.mu.Lock()
	pd.err = nil
	pd.epoch = pd.startEpoch()
	pd.mu.Unlock()
}

// Yield implements train.Dataset.
func (pd *ParallelDataset) Yield() (inputs [][]float64, labels []float64, err error) {
	pd.mu.Lock()
	epoch := pd.epoch
	pd.mu.Unlock()
	if epoch == nil {
		err = errors.Errorf("ParallelDataset.Yield was called before it was started with ParallelDataset.Start")
		return
	}
	var unit yieldUnit
	select {
	case unit = <-epoch.cache:
		// We got a new batch
	case <-epoch.finished:
		// No more records being produced (until Reset() is called), but we still need to exhaust the cache.
		select {
		case unit = <-epoch.cache:
			// We got a new batch, simply continue.
		default:
			pd.mu.Lock()
			err = pd.err
			pd.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return
		}
	}
	return unit.inputs, unit.labels, nil
}
