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

// Package data is a collection of tools that facilitate data loading and preprocessing: in-memory
// datasets, synthetic datasets (Moons, Blobs), CSV loading and parallel prefetching.
package data

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// FileExists returns true if file or directory exists. Errors other than "not exist" (e.g. permission
// denied) are logged and reported as true, so callers don't overwrite what they can't see.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		klog.Warningf("FileExists(%q): %v", filePath, err)
	}
	return !errors.Is(err, os.ErrNotExist)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~",
// or if the home directory is not known.
func ReplaceTildeInDir(dir string) string {
	if !strings.HasPrefix(dir, "~") {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		klog.Warningf("ReplaceTildeInDir(%q): %v", dir, err)
		return dir
	}
	return path.Join(homeDir, dir[1:])
}

// ValidateChecksum verifies that the sha256 of the file in filePath matches the hex-encoded checkHash.
// If it doesn't, it removes the file (!) and returns an error.
func ValidateChecksum(filePath, checkHash string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q to validate checksum", filePath)
	}
	hasher := sha256.New()
	_, err = io.Copy(hasher, f)
	_ = f.Close()
	if err != nil {
		return errors.Wrapf(err, "failed to read %q to validate checksum", filePath)
	}
	fileHash := hex.EncodeToString(hasher.Sum(nil))
	if fileHash == strings.ToLower(checkHash) {
		return nil
	}
	if err := os.Remove(filePath); err != nil {
		klog.Errorf("Failed to remove %q, which failed checksum test. Please remove it. %+v", filePath, err)
	}
	return errors.Errorf("file %q sha256 hash is %q, but expected %q, file deleted", filePath, fileHash, checkHash)
}

// Download url to filePath, creating its directory if needed. It returns the number of bytes downloaded.
//
// The contents are first written to a temporary file in the same directory, and only renamed to filePath
// once complete. If showProgressBar is set, a progress bar of the bytes downloaded is displayed.
func Download(url, filePath string, showProgressBar bool) (size int64, err error) {
	filePath = ReplaceTildeInDir(filePath)
	dir := path.Dir(filePath)
	if err = os.MkdirAll(dir, 0777); err != nil {
		return 0, errors.Wrapf(err, "failed to create the directory %q", dir)
	}
	resp, err := http.Get(url)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("failed downloading %q: status %q", url, resp.Status)
	}

	tmpFile, err := os.CreateTemp(dir, path.Base(filePath)+".*.tmp")
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating temporary file in %q", dir)
	}
	defer func() {
		if err != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpFile.Name())
		}
	}()
	var w io.Writer = tmpFile
	if showProgressBar {
		bar := progressbar.DefaultBytes(resp.ContentLength, path.Base(filePath))
		defer func() { _ = bar.Close() }()
		w = io.MultiWriter(tmpFile, bar)
	}
	if size, err = io.Copy(w, resp.Body); err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q to %q", url, filePath)
	}
	if err = tmpFile.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", tmpFile.Name())
	}
	if err = os.Rename(tmpFile.Name(), filePath); err != nil {
		return 0, errors.Wrapf(err, "failed moving download to %q", filePath)
	}
	klog.V(1).Infof("Downloaded %s from %q to %q", humanize.IBytes(uint64(size)), url, filePath)
	return size, nil
}

// DownloadIfMissing downloads url to filePath, if it doesn't exist yet.
//
// If checkHash (sha256, hex-encoded) is provided, the file is validated with ValidateChecksum.
func DownloadIfMissing(url, filePath, checkHash string) error {
	filePath = ReplaceTildeInDir(filePath)
	if !FileExists(filePath) {
		klog.Infof("Downloading %s ...", url)
		if _, err := Download(url, filePath, klog.V(1).Enabled()); err != nil {
			return err
		}
	}
	if checkHash == "" {
		return nil
	}
	return ValidateChecksum(filePath, checkHash)
}
