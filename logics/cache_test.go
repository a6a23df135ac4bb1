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
	"math/rand"
	"sync"
	"testing"

	"github.com/gorse-io/recsys/config"
	"github.com/gorse-io/recsys/storage/data"
	"github.com/stretchr/testify/assert"
)

func TestModelCacheSwap(t *testing.T) {
	cache := NewModelCache()
	assert.Nil(t, cache.Load())

	older := &Snapshot{Version: cache.NextVersion()}
	newer := &Snapshot{Version: cache.NextVersion()}
	// the newer build finishes first
	assert.True(t, cache.Swap(newer))
	assert.False(t, cache.Swap(older))
	assert.Same(t, newer, cache.Load())
	// same version is not installed twice
	assert.False(t, cache.Swap(&Snapshot{Version: newer.Version}))
	assert.Same(t, newer, cache.Load())
}

func TestModelCacheLoadedVersion(t *testing.T) {
	cache := NewModelCache()
	// a snapshot restored from disk
	assert.True(t, cache.Swap(&Snapshot{Version: 10}))
	assert.Equal(t, int64(11), cache.NextVersion())
}

func TestModelCacheConcurrentSwap(t *testing.T) {
	cache := NewModelCache()
	snapshots := make([]*Snapshot, 100)
	for i := range snapshots {
		snapshots[i] = &Snapshot{Version: cache.NextVersion()}
	}
	rand.Shuffle(len(snapshots), func(i, j int) {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	})
	var wg sync.WaitGroup
	for _, snapshot := range snapshots {
		wg.Go(func() {
			cache.Swap(snapshot)
		})
	}
	wg.Wait()
	assert.Equal(t, int64(100), cache.Load().Version)
}

func TestModelCacheRebuild(t *testing.T) {
	cache := NewModelCache()
	cfg := config.GetDefaultConfig().Recommend
	snapshot, ok, err := cache.Rebuild(context.Background(), data.SampleUsers(), data.SampleItems(), data.SampleRatings(), cfg)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), snapshot.Version)
	assert.Same(t, snapshot, cache.Load())

	// readers keep the snapshot they loaded
	loaded := cache.Load()
	_, ok, err = cache.Rebuild(context.Background(), data.SampleUsers(), data.SampleItems(), nil, cfg)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), loaded.Version)
	assert.NotEmpty(t, loaded.Recommend("1", 5))
	assert.Empty(t, cache.Load().Recommend("1", 5))

	// malformed ratings fail the build and keep the cached snapshot
	_, ok, err = cache.Rebuild(context.Background(), data.SampleUsers(), data.SampleItems(), []data.Rating{{UserId: "1", ItemId: "1", Score: -1}}, cfg)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), cache.Load().Version)
}
