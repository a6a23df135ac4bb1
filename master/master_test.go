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
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorse-io/recsys/config"
	"github.com/gorse-io/recsys/logics"
	"github.com/gorse-io/recsys/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type MasterTestSuite struct {
	suite.Suite
	dataClient data.Database
	cachePath  string
}

func (suite *MasterTestSuite) SetupSuite() {
	var err error
	suite.dataClient, err = data.Open(fmt.Sprintf("sqlite://%s/data.db", suite.T().TempDir()), "")
	suite.NoError(err)
	suite.NoError(suite.dataClient.Init())
}

func (suite *MasterTestSuite) TearDownSuite() {
	suite.NoError(suite.dataClient.Close())
}

func (suite *MasterTestSuite) SetupTest() {
	suite.NoError(suite.dataClient.Purge())
	suite.cachePath = filepath.Join(suite.T().TempDir(), "recsys.cache")
}

func (suite *MasterTestSuite) newMaster() *Master {
	cfg := config.GetDefaultConfig()
	cfg.Master.CachePath = suite.cachePath
	cfg.Recommend.BuildJobs = 2
	m := NewMaster(cfg)
	m.DataClient = suite.dataClient
	return m
}

func (suite *MasterTestSuite) digest() uint64 {
	ctx := context.Background()
	users, err := suite.dataClient.GetUsers(ctx)
	suite.NoError(err)
	items, err := suite.dataClient.GetItems(ctx)
	suite.NoError(err)
	ratings, err := suite.dataClient.GetRatings(ctx)
	suite.NoError(err)
	return logics.Digest(users, items, ratings, config.GetDefaultConfig().Recommend.MaxRank)
}

func (suite *MasterTestSuite) TestSeed() {
	ctx := context.Background()
	seeded, err := SeedIfEmpty(ctx, suite.dataClient)
	suite.NoError(err)
	suite.True(seeded)
	ratings, err := suite.dataClient.GetRatings(ctx)
	suite.NoError(err)
	suite.ElementsMatch(data.SampleRatings(), ratings)

	// not empty
	seeded, err = SeedIfEmpty(ctx, suite.dataClient)
	suite.NoError(err)
	suite.False(seeded)
	users, err := suite.dataClient.GetUsers(ctx)
	suite.NoError(err)
	suite.Len(users, len(data.SampleUsers()))
}

func (suite *MasterTestSuite) TestPrepare() {
	ctx := context.Background()
	m := suite.newMaster()
	suite.NoError(m.Prepare(ctx))
	snapshot := m.Cache.Load()
	suite.NotNil(snapshot)
	suite.Equal(int64(1), snapshot.Version)
	suite.NotNil(snapshot.Latent)
	suite.Equal(suite.digest(), snapshot.Digest)

	// the snapshot is written
	loaded, err := LoadLocalCache(suite.cachePath, suite.digest())
	suite.NoError(err)
	suite.Equal(snapshot.Version, loaded.Version)

	// a restarted master loads the snapshot
	restarted := suite.newMaster()
	suite.NoError(restarted.Prepare(ctx))
	suite.Equal(int64(1), restarted.Cache.Load().Version)
	suite.True(snapshot.Timestamp.Equal(restarted.Cache.Load().Timestamp))
	_, _, err = restarted.Rebuild(ctx)
	suite.NoError(err)
	suite.Equal(int64(2), restarted.Cache.Load().Version)
}

func (suite *MasterTestSuite) TestPrepareStale() {
	ctx := context.Background()
	m := suite.newMaster()
	suite.NoError(m.Prepare(ctx))
	timestamp := m.Cache.Load().Timestamp

	// ratings changed after the snapshot was written
	suite.NoError(suite.dataClient.UpsertRating(ctx, data.Rating{UserId: "1", ItemId: "2", Score: 3}))
	restarted := suite.newMaster()
	suite.NoError(restarted.Prepare(ctx))
	snapshot := restarted.Cache.Load()
	suite.Equal(suite.digest(), snapshot.Digest)
	suite.False(timestamp.Equal(snapshot.Timestamp))
	suite.Equal(int64(1), snapshot.Version)
}

func (suite *MasterTestSuite) TestPrepareMaxRankChanged() {
	ctx := context.Background()
	m := suite.newMaster()
	suite.NoError(m.Prepare(ctx))
	snapshot := m.Cache.Load()
	suite.Greater(snapshot.Latent.Rank(), 1)

	// the snapshot file was fitted with another rank cap
	restarted := suite.newMaster()
	restarted.Config.Recommend.MaxRank = 1
	suite.NoError(restarted.Prepare(ctx))
	rebuilt := restarted.Cache.Load()
	suite.False(snapshot.Timestamp.Equal(rebuilt.Timestamp))
	suite.NotEqual(snapshot.Digest, rebuilt.Digest)
	suite.Equal(1, rebuilt.Latent.Rank())
}

func (suite *MasterTestSuite) TestRebuildOnStart() {
	ctx := context.Background()
	m := suite.newMaster()
	suite.NoError(m.Prepare(ctx))
	timestamp := m.Cache.Load().Timestamp

	restarted := suite.newMaster()
	restarted.Config.Master.RebuildOnStart = true
	suite.NoError(restarted.Prepare(ctx))
	suite.False(timestamp.Equal(restarted.Cache.Load().Timestamp))
}

func (suite *MasterTestSuite) TestPrepareWithoutSeed() {
	ctx := context.Background()
	m := suite.newMaster()
	m.Config.Master.SeedOnStart = false
	m.cachePath = ""
	suite.NoError(m.Prepare(ctx))
	snapshot := m.Cache.Load()
	suite.NotNil(snapshot)
	suite.Nil(snapshot.Latent)
	suite.Empty(snapshot.Recommend("1", 5))
}

func (suite *MasterTestSuite) TestRebuildLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := suite.newMaster()
	suite.NoError(m.Prepare(ctx))
	go m.RunRebuildLoop(ctx)
	m.RequestRebuild()
	suite.Eventually(func() bool {
		return m.Cache.Load().Version >= 2
	}, 10*time.Second, 10*time.Millisecond)
}

func (suite *MasterTestSuite) TestConcurrentRebuild() {
	ctx := context.Background()
	m := suite.newMaster()
	suite.NoError(m.Prepare(ctx))
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, _, err := m.Rebuild(ctx)
			suite.NoError(err)
		})
	}
	wg.Wait()
	suite.Equal(int64(9), m.Cache.Load().Version)
	loaded, err := LoadLocalCache(suite.cachePath, suite.digest())
	suite.NoError(err)
	suite.Equal(int64(9), loaded.Version)
}

func TestMaster(t *testing.T) {
	suite.Run(t, new(MasterTestSuite))
}

func TestOpen(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Database.DataStore = fmt.Sprintf("sqlite://%s/data.db", t.TempDir())
	cfg.Master.CachePath = filepath.Join(t.TempDir(), "recsys.cache")
	m := NewMaster(cfg)
	assert.NoError(t, m.Open(context.Background()))
	assert.NoError(t, m.DataClient.Ping())
	assert.NoError(t, m.Shutdown())

	cfg.Database.DataStore = "mongodb://localhost:27017"
	m = NewMaster(cfg)
	assert.True(t, errors.Is(m.Open(context.Background()), errors.NotSupported))
}
