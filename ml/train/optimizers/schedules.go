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
	. "github.com/gomlx/exceptions"
)

// Schedule returns the learning rate to use for the given global step. The first step is 1.
//
// See ConstantSchedule, LinearDecaySchedule and package cosineschedule.
type Schedule func(globalStep int64) (learningRate float64)

// ConstantSchedule always returns learningRate.
func ConstantSchedule(learningRate float64) Schedule {
	return func(_ int64) float64 { return learningRate }
}

// LinearDecaySchedule decays linearly the learning rate from initial (at step 1) towards final,
// reached after numSteps steps. After that it stays at final.
//
// E.g.: LinearDecaySchedule(1.0, 0.1, 100) returns `1.0 - 0.9*(step-1)/100`, for steps up to 101.
func LinearDecaySchedule(initial, final float64, numSteps int64) Schedule {
	if numSteps <= 0 {
		Panicf("LinearDecaySchedule requires numSteps > 0, got %d", numSteps)
	}
	return func(globalStep int64) float64 {
		progress := min(max(globalStep-1, 0), numSteps)
		return initial + (final-initial)*float64(progress)/float64(numSteps)
	}
}
