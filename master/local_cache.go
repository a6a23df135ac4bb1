// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package master

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gorse-io/recsys/logics"
	"github.com/juju/errors"
)

// ErrStaleCache is returned if a snapshot was built from other data than the store holds.
var ErrStaleCache = errors.New("snapshot is stale")

// LoadLocalCache loads a snapshot from a local file. It returns a NotFound
// error if the file does not exist, a NotValid error if the file is corrupt
// and ErrStaleCache if the digest of the snapshot mismatches.
func LoadLocalCache(path string, digest uint64) (*logics.Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.NotFoundf("snapshot %s", path)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	snapshot := new(logics.Snapshot)
	if err = snapshot.Unmarshal(bufio.NewReader(f)); err != nil {
		return nil, errors.NewNotValid(err, fmt.Sprintf("snapshot %s", path))
	}
	if snapshot.Digest != digest {
		return nil, errors.Trace(ErrStaleCache)
	}
	return snapshot, nil
}

// WriteLocalCache writes a snapshot to a local file. The file is replaced at
// once so readers never see a partial snapshot.
func WriteLocalCache(path string, snapshot *logics.Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Trace(err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return errors.Trace(err)
	}
	defer os.Remove(f.Name())
	w := bufio.NewWriter(f)
	if err = snapshot.Marshal(w); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	if err = w.Flush(); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	if err = f.Close(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(f.Name(), path))
}
