package data

import (
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"sync"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nanograd/ml/initializers"
	"github.com/gomlx/nanograd/ml/train"
)

// InMemoryDataset holds all its examples in memory, and yields them in batches.
//
// By default, it yields the whole dataset as one batch, in the original order, and returns io.EOF
// at the end of each epoch. See BatchSize, Shuffle and Infinite to configure it.
//
// It is safe for concurrent use.
type InMemoryDataset struct {
	name   string
	inputs [][]float64
	labels []float64

	batchSize      int
	dropIncomplete bool
	infinite       bool
	rng            *rand.Rand

	mu    sync.Mutex
	order []int
	next  int
}

var _ train.Dataset = (*InMemoryDataset)(nil)

// NewInMemory creates an InMemoryDataset with the given examples: inputs[i] are the input values of
// the i-th example and labels[i] its label.
//
// It panics if inputs and labels have different lengths, if there are no examples, or if the examples
// have different numbers of input values.
func NewInMemory(name string, inputs [][]float64, labels []float64) *InMemoryDataset {
	if len(inputs) != len(labels) {
		Panicf("dataset %q: %d inputs given, but %d labels", name, len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		Panicf("dataset %q: no examples given", name)
	}
	numInputs := len(inputs[0])
	for ii, example := range inputs {
		if len(example) != numInputs {
			Panicf("dataset %q: example #%d has %d inputs, but example #0 has %d", name, ii, len(example), numInputs)
		}
	}
	ds := &InMemoryDataset{
		name:   name,
		inputs: inputs,
		labels: labels,
		order:  make([]int, len(inputs)),
	}
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	return ds
}

// BatchSize configures the number of examples per batch. If dropIncomplete is true, the last
// incomplete batch of an epoch is dropped. The default (0) is the whole dataset as one batch.
func (ds *InMemoryDataset) BatchSize(batchSize int, dropIncomplete bool) *InMemoryDataset {
	if batchSize < 0 {
		Panicf("dataset %q: invalid batch size %d", ds.name, batchSize)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.batchSize = batchSize
	ds.dropIncomplete = dropIncomplete
	return ds
}

// Shuffle the examples at every epoch, using the given seed. Use initializers.NoSeed for a random seed.
func (ds *InMemoryDataset) Shuffle(seed uint64) *InMemoryDataset {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.rng = rand.New(initializers.NewSource(seed))
	ds.shuffleLocked()
	return ds
}

// Infinite configures the dataset to loop indefinitely, never returning io.EOF.
func (ds *InMemoryDataset) Infinite(infinite bool) *InMemoryDataset {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.infinite = infinite
	return ds
}

// Name implements train.Dataset.
func (ds *InMemoryDataset) Name() string {
	return ds.name
}

// String implements fmt.Stringer.
func (ds *InMemoryDataset) String() string {
	return fmt.Sprintf("%s: %d examples with %d inputs", ds.name, ds.NumExamples(), ds.NumInputs())
}

// NumExamples returns the number of examples in the dataset.
func (ds *InMemoryDataset) NumExamples() int {
	return len(ds.labels)
}

// NumInputs returns the number of input values per example.
func (ds *InMemoryDataset) NumInputs() int {
	return len(ds.inputs[0])
}

// Inputs returns the input values of all examples, in the original order. They shouldn't be modified.
func (ds *InMemoryDataset) Inputs() [][]float64 {
	return ds.inputs
}

// Labels returns the labels of all examples, in the original order. They shouldn't be modified.
func (ds *InMemoryDataset) Labels() []float64 {
	return ds.labels
}

// MapLabels replaces every label by fn(label). It returns the dataset itself.
func (ds *InMemoryDataset) MapLabels(fn func(label float64) float64) *InMemoryDataset {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for ii, label := range ds.labels {
		ds.labels[ii] = fn(label)
	}
	return ds
}

// Split the dataset in two new datasets (same name with "-train" and "-test" suffixes), the first with
// the first `fraction` of the examples, and the second with the remaining. Examples are taken in the
// current order, so a dataset configured with Shuffle is split randomly. Configuration is not copied.
func (ds *InMemoryDataset) Split(fraction float64) (first, second *InMemoryDataset) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	n := int(fraction * float64(len(ds.order)))
	if n <= 0 || n >= len(ds.order) {
		Panicf("dataset %q: Split(%g) of %d examples would leave one side empty", ds.name, fraction, len(ds.order))
	}
	take := func(indices []int) (inputs [][]float64, labels []float64) {
		inputs = make([][]float64, len(indices))
		labels = make([]float64, len(indices))
		for ii, idx := range indices {
			inputs[ii], labels[ii] = ds.inputs[idx], ds.labels[idx]
		}
		return
	}
	inputs, labels := take(ds.order[:n])
	first = NewInMemory(ds.name+"-train", inputs, labels)
	inputs, labels = take(ds.order[n:])
	second = NewInMemory(ds.name+"-test", inputs, labels)
	return
}

// Reset implements train.Dataset. It restarts the epoch, reshuffling the examples if Shuffle is configured.
func (ds *InMemoryDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.next = 0
	ds.shuffleLocked()
}

func (ds *InMemoryDataset) shuffleLocked() {
	if ds.rng == nil {
		return
	}
	ds.rng.Shuffle(len(ds.order), func(i, j int) {
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	})
}

// Yield implements train.Dataset. The returned rows are copies, the caller may modify them.
func (ds *InMemoryDataset) Yield() (inputs [][]float64, labels []float64, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	batchSize := ds.batchSize
	if batchSize == 0 || batchSize > len(ds.order) {
		batchSize = len(ds.order)
	}
	remaining := len(ds.order) - ds.next
	if remaining == 0 || (ds.dropIncomplete && remaining < batchSize) {
		if !ds.infinite {
			return nil, nil, io.EOF
		}
		ds.next = 0
		ds.shuffleLocked()
		remaining = len(ds.order)
	}
	batchSize = min(batchSize, remaining)
	inputs = make([][]float64, batchSize)
	labels = make([]float64, batchSize)
	for ii := range batchSize {
		idx := ds.order[ds.next+ii]
		inputs[ii] = slices.Clone(ds.inputs[idx])
		labels[ii] = ds.labels[idx]
	}
	ds.next += batchSize
	return
}
