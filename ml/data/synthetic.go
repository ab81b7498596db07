package data

import (
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nanograd/ml/initializers"
	"gonum.org/v1/gonum/stat/distuv"
)

// Moons generates the "two interleaving half circles" binary classification dataset, with 2 inputs
// per example. Examples in the upper moon are labeled -1, and in the lower moon +1, so they can be
// used with losses.Hinge directly.
//
// Gaussian noise with standard deviation noise is added to the inputs. Use initializers.NoSeed for
// a random seed. The examples are ordered: first the upper moon, then the lower one.
func Moons(numExamples int, noise float64, seed uint64) *InMemoryDataset {
	if numExamples < 2 {
		Panicf("Moons requires at least 2 examples, got %d", numExamples)
	}
	noiseFn := normalNoise(noise, seed)
	numUpper := numExamples / 2
	numLower := numExamples - numUpper
	inputs := make([][]float64, 0, numExamples)
	labels := make([]float64, 0, numExamples)
	for ii := range numUpper {
		angle := linspace(ii, numUpper, math.Pi)
		inputs = append(inputs, []float64{math.Cos(angle) + noiseFn(), math.Sin(angle) + noiseFn()})
		labels = append(labels, -1)
	}
	for ii := range numLower {
		angle := linspace(ii, numLower, math.Pi)
		inputs = append(inputs, []float64{1 - math.Cos(angle) + noiseFn(), 0.5 - math.Sin(angle) + noiseFn()})
		labels = append(labels, 1)
	}
	return NewInMemory("moons", inputs, labels)
}

// linspace returns the ii-th of n evenly spaced values in [0, end].
func linspace(ii, n int, end float64) float64 {
	if n == 1 {
		return 0
	}
	return end * float64(ii) / float64(n-1)
}

func normalNoise(stddev float64, seed uint64) func() float64 {
	if stddev == 0 {
		return initializers.Zero
	}
	dist := distuv.Normal{Mu: 0, Sigma: stddev, Src: initializers.NewSource(seed)}
	return dist.Rand
}

// Blobs generates examples around each of the given centers (all with the same dimension),
// distributed evenly among them, with gaussian noise of standard deviation stddev.
// The label is the index of the center.
//
// For a binary classification with {-1, +1} labels use `MapLabels` on the result, e.g.:
//
//	ds := data.Blobs(100, [][]float64{{-2, -2}, {2, 2}}, 0.5, 42).MapLabels(func(l float64) float64 { return 2*l - 1 })
func Blobs(numExamples int, centers [][]float64, stddev float64, seed uint64) *InMemoryDataset {
	if len(centers) == 0 || numExamples < len(centers) {
		Panicf("Blobs requires at least one center and one example per center, got %d centers and %d examples",
			len(centers), numExamples)
	}
	noiseFn := normalNoise(stddev, seed)
	inputs := make([][]float64, numExamples)
	labels := make([]float64, numExamples)
	for ii := range inputs {
		centerIdx := ii * len(centers) / numExamples
		center := centers[centerIdx]
		if len(center) != len(centers[0]) {
			Panicf("Blobs centers must have the same dimension, center #%d has %d, center #0 has %d",
				centerIdx, len(center), len(centers[0]))
		}
		example := make([]float64, len(center))
		for jj, c := range center {
			example[jj] = c + noiseFn()
		}
		inputs[ii] = example
		labels[ii] = float64(centerIdx)
	}
	return NewInMemory("blobs", inputs, labels)
}

// Uniform generates examples with numInputs values uniformly sampled in [min, max), labeled by fn.
// It's useful to learn to approximate fn.
func Uniform(numExamples, numInputs int, min, max float64, fn func(x []float64) float64, seed uint64) *InMemoryDataset {
	dist := distuv.Uniform{Min: min, Max: max, Src: initializers.NewSource(seed)}
	inputs := make([][]float64, numExamples)
	labels := make([]float64, numExamples)
	for ii := range inputs {
		example := make([]float64, numInputs)
		for jj := range example {
			example[jj] = dist.Rand()
		}
		inputs[ii] = example
		labels[ii] = fn(example)
	}
	return NewInMemory("uniform", inputs, labels)
}
