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
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type testDS struct {
	count atomic.Int64
}

var (
	testDSMaxValue = int64(10000)
)

func (ds *testDS) Name() string { return "testDS" }
func (ds *testDS) Reset()       { ds.count.Store(0) }
func (ds *testDS) Yield() (inputs [][]float64, labels []float64, err error) {
	value := ds.count.Add(1)
	if value > testDSMaxValue {
		err = io.EOF
		return
	}
	inputs = [][]float64{{float64(value)}}
	labels = []float64{0}
	return // As if a batch was returned.
}

// TestParallelDataset with and without cache.
func TestParallelDataset(t *testing.T) {
	for _, cacheSize := range []int{0, 10} {
		ds := &testDS{}
		pDS := CustomParallel(ds).Buffer(cacheSize).Start()
		for loop := range 2 {
			count := int64(0)
			for {
				inputs, _, err := pDS.Yield()
				if err == io.EOF {
					break
				}
				require.NoError(t, err, "Test failed with unexpected error")
				require.Len(t, inputs, 1, "Expected Dataset to yield 1 example")
				count++
			}
			require.Equalf(t, testDSMaxValue, count, "Number of yielded batches in loop %d, cacheSize=%d.", loop, cacheSize)
			pDS.Reset()
		}
		pDS.Stop()
	}
}

type failingDS struct {
	testDS
}

func (ds *failingDS) Yield() (inputs [][]float64, labels []float64, err error) {
	if ds.count.Add(1) > 10 {
		return nil, nil, errors.New("disk on fire")
	}
	return [][]float64{{1}}, []float64{1}, nil
}

func TestParallelDatasetError(t *testing.T) {
	pDS := Parallel(&failingDS{})
	var err error
	for err == nil {
		_, _, err = pDS.Yield()
	}
	require.ErrorContains(t, err, "disk on fire")
	require.Contains(t, pDS.Name(), "testDS")
}

func TestDownload(t *testing.T) {
	content := []byte("x,y\n1,2\n")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}))
	defer server.Close()

	dir := t.TempDir()
	filePath := path.Join(dir, "sub", "data.csv")
	require.False(t, FileExists(filePath))
	size, err := Download(server.URL+"/data.csv", filePath, false)
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), size)
	require.True(t, FileExists(filePath))

	hash := sha256.Sum256(content)
	require.NoError(t, ValidateChecksum(filePath, hex.EncodeToString(hash[:])))
	require.NoError(t, DownloadIfMissing(server.URL+"/data.csv", filePath, hex.EncodeToString(hash[:])))

	// Wrong checksum removes the file.
	require.Error(t, ValidateChecksum(filePath, "00"))
	require.False(t, FileExists(filePath))

	_, err = Download(server.URL+"/missing.csv", filePath, false)
	require.Error(t, err)
}

func TestReplaceTildeInDir(t *testing.T) {
	require.Equal(t, "/tmp/x", ReplaceTildeInDir("/tmp/x"))
	expanded := ReplaceTildeInDir("~/data")
	require.NotContains(t, expanded, "~")
	require.Equal(t, "data", path.Base(expanded))
}
