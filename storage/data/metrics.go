// Copyright 2021 gorse Project Authors
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

package data

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recsys",
		Subsystem: "database",
		Name:      "operation_seconds",
	}, []string{"operation"})
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recsys",
		Subsystem: "database",
		Name:      "operation_errors_total",
	}, []string{"operation"})
)

func observe(operation string, start time.Time, err error) {
	OperationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(operation).Inc()
	}
}

// metricsDatabase records latencies and errors of data access.
type metricsDatabase struct {
	Database
}

func (d *metricsDatabase) BatchInsertUsers(ctx context.Context, users []User) (err error) {
	defer func(start time.Time) { observe("batch_insert_users", start, err) }(time.Now())
	return d.Database.BatchInsertUsers(ctx, users)
}

func (d *metricsDatabase) BatchInsertItems(ctx context.Context, items []Item) (err error) {
	defer func(start time.Time) { observe("batch_insert_items", start, err) }(time.Now())
	return d.Database.BatchInsertItems(ctx, items)
}

func (d *metricsDatabase) BatchGetItems(ctx context.Context, itemIds []string) (items []Item, err error) {
	defer func(start time.Time) { observe("batch_get_items", start, err) }(time.Now())
	return d.Database.BatchGetItems(ctx, itemIds)
}

func (d *metricsDatabase) GetUsers(ctx context.Context) (users []User, err error) {
	defer func(start time.Time) { observe("get_users", start, err) }(time.Now())
	return d.Database.GetUsers(ctx)
}

func (d *metricsDatabase) GetItems(ctx context.Context) (items []Item, err error) {
	defer func(start time.Time) { observe("get_items", start, err) }(time.Now())
	return d.Database.GetItems(ctx)
}

func (d *metricsDatabase) GetRatings(ctx context.Context) (ratings []Rating, err error) {
	defer func(start time.Time) { observe("get_ratings", start, err) }(time.Now())
	return d.Database.GetRatings(ctx)
}

func (d *metricsDatabase) UpsertRating(ctx context.Context, rating Rating) (err error) {
	defer func(start time.Time) { observe("upsert_rating", start, err) }(time.Now())
	return d.Database.UpsertRating(ctx, rating)
}
