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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/recsys/base/log"
	"github.com/gorse-io/recsys/common/parallel"
	"github.com/gorse-io/recsys/config"
	"github.com/gorse-io/recsys/logics"
	"github.com/gorse-io/recsys/server"
	"github.com/gorse-io/recsys/storage"
	"github.com/gorse-io/recsys/storage/data"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var InitTimeout = time.Minute

// Master owns the data store and the model cache. It builds snapshots and
// serves the REST API.
type Master struct {
	server.RestServer
	cachePath string

	// events
	triggerChan *parallel.ConditionChannel
	writeMutex  sync.Mutex
	cancel      context.CancelFunc
}

// NewMaster creates a master node.
func NewMaster(cfg *config.Config) *Master {
	// setup trace provider
	tp, err := cfg.Tracing.NewTracerProvider()
	if err != nil {
		log.Logger().Fatal("failed to create trace provider", zap.Error(err))
	}
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(log.GetErrorHandler())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	m := &Master{
		cachePath:   cfg.Master.CachePath,
		triggerChan: parallel.NewConditionChannel(),
		RestServer: server.RestServer{
			Config:     cfg,
			DataClient: data.NoDatabase{},
			Cache:      logics.NewModelCache(),
			HttpHost:   cfg.Server.Host,
			HttpPort:   cfg.Server.Port,
			WebService: new(restful.WebService),
		},
	}
	m.Builder = m
	return m
}

// Open connects the data store. Initialization is retried until the store
// is reachable or InitTimeout elapses.
func (m *Master) Open(ctx context.Context) error {
	var err error
	m.DataClient, err = data.Open(m.Config.Database.DataStore, m.Config.Database.TablePrefix,
		storage.WithIsolationLevel(m.Config.Database.MySQL.IsolationLevel),
		storage.WithMaxOpenConns(m.Config.Database.MySQL.MaxOpenConns),
		storage.WithMaxIdleConns(m.Config.Database.MySQL.MaxIdleConns),
		storage.WithConnMaxLifetime(m.Config.Database.MySQL.ConnMaxLifetime))
	if err != nil {
		return errors.Annotatef(err, "failed to connect data store %s", log.RedactDBURL(m.Config.Database.DataStore))
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := m.DataClient.Init(); err != nil {
			log.Logger().Warn("failed to init data store, retrying", zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(InitTimeout))
	return errors.Trace(err)
}

// Serve starts a master node.
func (m *Master) Serve() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	if err := m.Open(ctx); err != nil {
		log.Logger().Fatal("failed to connect data store", zap.Error(err),
			zap.String("database", log.RedactDBURL(m.Config.Database.DataStore)))
	}
	if err := m.Prepare(ctx); err != nil {
		log.Logger().Fatal("failed to prepare model", zap.Error(err))
	}
	go m.RunRebuildLoop(ctx)
	m.StartHttpServer(m.NewContainer())
}

// Shutdown stops the rebuild loop and closes the data store.
func (m *Master) Shutdown() error {
	if m.cancel != nil {
		m.cancel()
	}
	return errors.Trace(m.DataClient.Close())
}

// Prepare seeds an empty store and installs the first snapshot. The snapshot
// file is used if it matches the store, otherwise the model is built.
func (m *Master) Prepare(ctx context.Context) error {
	if m.Config.Master.SeedOnStart {
		if _, err := SeedIfEmpty(ctx, m.DataClient); err != nil {
			return errors.Trace(err)
		}
	}
	users, items, ratings, err := m.loadData(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !m.Config.Master.RebuildOnStart && m.cachePath != "" {
		snapshot, err := LoadLocalCache(m.cachePath, logics.Digest(users, items, ratings, m.Config.Recommend.MaxRank))
		switch {
		case err == nil:
			if m.Cache.Swap(snapshot) {
				BuildModelTotal.WithLabelValues(ResultLoaded).Inc()
				updateModelMetrics(snapshot, len(ratings))
			}
			log.Logger().Info("load model snapshot",
				zap.String("path", m.cachePath),
				zap.Int64("version", snapshot.Version),
				zap.Time("timestamp", snapshot.Timestamp))
			return nil
		case errors.Is(err, errors.NotFound):
			log.Logger().Info("model snapshot not found", zap.String("path", m.cachePath))
		case errors.Is(err, ErrStaleCache):
			log.Logger().Info("model snapshot is stale", zap.String("path", m.cachePath))
		default:
			log.Logger().Warn("failed to load model snapshot", zap.String("path", m.cachePath), zap.Error(err))
		}
	}
	_, _, err = m.rebuild(ctx, users, items, ratings)
	return errors.Trace(err)
}

// RunRebuildLoop rebuilds the model whenever a rebuild is requested.
func (m *Master) RunRebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.triggerChan.C:
			if _, _, err := m.Rebuild(ctx); err != nil {
				log.Logger().Error("failed to rebuild model", zap.Error(err))
			}
		}
	}
}

// RequestRebuild schedules a rebuild. Requests made before the loop picks
// one up are merged.
func (m *Master) RequestRebuild() {
	m.triggerChan.Signal()
}

// Rebuild builds a snapshot from the current contents of the store.
func (m *Master) Rebuild(ctx context.Context) (*logics.Snapshot, bool, error) {
	users, items, ratings, err := m.loadData(ctx)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	return m.rebuild(ctx, users, items, ratings)
}

func (m *Master) rebuild(ctx context.Context, users []data.User, items []data.Item, ratings []data.Rating) (*logics.Snapshot, bool, error) {
	ctx, span := otel.Tracer("master").Start(ctx, "rebuild", trace.WithAttributes(
		attribute.Int("n_users", len(users)),
		attribute.Int("n_items", len(items)),
		attribute.Int("n_ratings", len(ratings))))
	defer span.End()
	start := time.Now()
	snapshot, swapped, err := m.Cache.Rebuild(ctx, users, items, ratings, m.Config.Recommend)
	if err != nil {
		BuildModelTotal.WithLabelValues(ResultFailed).Inc()
		span.RecordError(err)
		return nil, false, errors.Trace(err)
	}
	span.SetAttributes(attribute.Int64("version", snapshot.Version), attribute.Bool("swapped", swapped))
	BuildModelSeconds.Observe(time.Since(start).Seconds())
	if !swapped {
		BuildModelTotal.WithLabelValues(ResultDiscarded).Inc()
		log.Logger().Info("discard outdated model", zap.Int64("version", snapshot.Version))
		return snapshot, false, nil
	}
	BuildModelTotal.WithLabelValues(ResultSwapped).Inc()
	updateModelMetrics(snapshot, len(ratings))
	log.Logger().Info("build model",
		zap.Int64("version", snapshot.Version),
		zap.Int("n_users", len(users)),
		zap.Int("n_items", len(items)),
		zap.Int("n_ratings", len(ratings)),
		zap.Int("n_skipped", snapshot.Skipped),
		zap.Bool("latent", snapshot.Latent != nil),
		zap.Duration("duration", time.Since(start)))
	m.writeLocalCache(snapshot)
	return snapshot, true, nil
}

func (m *Master) writeLocalCache(snapshot *logics.Snapshot) {
	if m.cachePath == "" {
		return
	}
	m.writeMutex.Lock()
	defer m.writeMutex.Unlock()
	// a newer snapshot has been installed
	if m.Cache.Load() != snapshot {
		return
	}
	if err := WriteLocalCache(m.cachePath, snapshot); err != nil {
		log.Logger().Error("failed to write model snapshot", zap.String("path", m.cachePath), zap.Error(err))
	}
}

func (m *Master) loadData(ctx context.Context) ([]data.User, []data.Item, []data.Rating, error) {
	users, err := m.DataClient.GetUsers(ctx)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	items, err := m.DataClient.GetItems(ctx)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	ratings, err := m.DataClient.GetRatings(ctx)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	return users, items, ratings, nil
}

// SeedIfEmpty inserts the sample dataset if the store has neither users nor items.
func SeedIfEmpty(ctx context.Context, dataClient data.Database) (bool, error) {
	users, err := dataClient.GetUsers(ctx)
	if err != nil {
		return false, errors.Trace(err)
	}
	items, err := dataClient.GetItems(ctx)
	if err != nil {
		return false, errors.Trace(err)
	}
	if len(users) > 0 || len(items) > 0 {
		return false, nil
	}
	if err = Seed(ctx, dataClient, data.SampleUsers(), data.SampleItems(), data.SampleRatings()); err != nil {
		return false, errors.Trace(err)
	}
	log.Logger().Info("seed sample data",
		zap.Int("n_users", len(data.SampleUsers())),
		zap.Int("n_items", len(data.SampleItems())),
		zap.Int("n_ratings", len(data.SampleRatings())))
	return true, nil
}

// Seed inserts users, items and ratings into the store.
func Seed(ctx context.Context, dataClient data.Database, users []data.User, items []data.Item, ratings []data.Rating) error {
	if err := dataClient.BatchInsertUsers(ctx, users); err != nil {
		return errors.Trace(err)
	}
	if err := dataClient.BatchInsertItems(ctx, items); err != nil {
		return errors.Trace(err)
	}
	for _, rating := range ratings {
		if err := dataClient.UpsertRating(ctx, rating); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
