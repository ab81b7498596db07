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

// Package initializers include several parameter initializers, to be used by layers when creating
// their trainable parameters.
package initializers

import (
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// ParameterInitializer returns the initial value of a new parameter.
type ParameterInitializer func() float64

// Zero initializes parameters with zero.
func Zero() float64 {
	return 0
}

// One initializes parameters with one.
func One() float64 {
	return 1
}

// NoSeed indicates a random seed should be generated (from the nanosecond clock).
const NoSeed = uint64(0)

// NewSource returns a random source for the given seed. If seed is NoSeed, one is generated from the clock.
func NewSource(seed uint64) rand.Source {
	if seed == NoSeed {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// lockedSource makes a rand.Source safe to share among initializers used from different goroutines.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// RandomUniformFn returns an initializer that generates random uniform values in [min, max).
//
// The parameter `seed` is used to initialize the random number generator.
// If it is set to 0 (NoSeed), a random seed is instead generated (from the nanosecond clock).
func RandomUniformFn(seed uint64, min, max float64) ParameterInitializer {
	dist := distuv.Uniform{Min: min, Max: max, Src: &lockedSource{src: NewSource(seed)}}
	return dist.Rand
}

// RandomNormalFn returns an initializer that generates random normal values with the given standard deviation
// and mean set to 0.
//
// If seed is set to 0 (NoSeed), a random seed is instead generated (from the nanosecond clock).
func RandomNormalFn(seed uint64, stddev float64) ParameterInitializer {
	dist := distuv.Normal{Mu: 0, Sigma: stddev, Src: &lockedSource{src: NewSource(seed)}}
	return dist.Rand
}
