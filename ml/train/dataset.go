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

// Dataset for a train.Trainer provides the data, one batch at a time.
//
// Each batch holds one slice of input values per example, and one label per example.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and plots.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one "batch" (or whatever is the unit for a training step) or an error.
	// inputs[i] holds the input values of the i-th example, and labels[i] its label, so both
	// must have the same length.
	//
	// The ownership of the returned slices is transferred to the caller.
	//
	// If using Loop.RunSteps for training having an infinite dataset stream is ok. But careful
	// not to use Loop.RunEpochs on a dataset configured to loop indefinitely.
	//
	// Optionally, it can return an error. If the error is `io.EOF` the training/evaluation terminates
	// normally, as it indicates end of data for finite datasets -- maybe the end of the epoch.
	//
	// Any other errors should interrupt the training/evaluation and be returned to the user.
	Yield() (inputs [][]float64, labels []float64, err error)
}

// HasShortName allows a dataset to specify a short name (used when displaying a short version of metric names).
// It defaults to the first 3 letters of the dataset name.
//
// It's optional.
type HasShortName interface {
	// ShortName returns the short name of the dataset.
	ShortName() string
}

// ShortName returns the short name of the dataset: either given by HasShortName, or the first 3
// letters of its name.
func ShortName(ds Dataset) string {
	if named, ok := ds.(HasShortName); ok {
		return named.ShortName()
	}
	name := ds.Name()
	if len(name) > 3 {
		return name[:3]
	}
	return name
}
