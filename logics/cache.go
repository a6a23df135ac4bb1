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

package logics

import (
	"context"

	"github.com/gorse-io/recsys/config"
	"github.com/gorse-io/recsys/storage/data"
	"github.com/juju/errors"
	"go.uber.org/atomic"
)

// ModelCache holds the current snapshot. Readers load a consistent snapshot
// without locks while rebuilds replace it.
//
// Every build takes a version when it starts and a snapshot is installed only
// if its version is greater than the cached one. Among concurrent builds the
// one started last wins, whatever the order they finish in.
type ModelCache struct {
	snapshot atomic.Pointer[Snapshot]
	version  atomic.Int64
}

func NewModelCache() *ModelCache {
	return &ModelCache{}
}

// Load returns the current snapshot or nil if no model has been built.
func (c *ModelCache) Load() *Snapshot {
	return c.snapshot.Load()
}

// NextVersion reserves the version of a new build.
func (c *ModelCache) NextVersion() int64 {
	return c.version.Inc()
}

// Swap installs a snapshot if it is newer than the cached one. It returns
// false if the snapshot is discarded.
func (c *ModelCache) Swap(snapshot *Snapshot) bool {
	// versions reserved later must exceed any installed snapshot
	for {
		v := c.version.Load()
		if snapshot.Version <= v || c.version.CompareAndSwap(v, snapshot.Version) {
			break
		}
	}
	for {
		current := c.snapshot.Load()
		if current != nil && current.Version >= snapshot.Version {
			return false
		}
		if c.snapshot.CompareAndSwap(current, snapshot) {
			return true
		}
	}
}

// Rebuild builds a snapshot from a copy of the store contents and swaps it in.
func (c *ModelCache) Rebuild(ctx context.Context, users []data.User, items []data.Item, ratings []data.Rating, cfg config.RecommendConfig) (*Snapshot, bool, error) {
	version := c.NextVersion()
	snapshot, err := BuildSnapshot(ctx, users, items, ratings, cfg)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	snapshot.Version = version
	return snapshot, c.Swap(snapshot), nil
}
