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
	"github.com/gorse-io/recsys/logics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelResult = "result"

	ResultSwapped   = "swapped"
	ResultDiscarded = "discarded"
	ResultFailed    = "failed"
	ResultLoaded    = "loaded"
)

var (
	BuildModelSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recsys",
		Subsystem: "master",
		Name:      "build_model_seconds",
	})
	BuildModelTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recsys",
		Subsystem: "master",
		Name:      "build_model_total",
	}, []string{LabelResult})
	ModelVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recsys",
		Subsystem: "master",
		Name:      "model_version",
	})
	NumUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recsys",
		Subsystem: "master",
		Name:      "num_users",
	})
	NumItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recsys",
		Subsystem: "master",
		Name:      "num_items",
	})
	NumRatings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recsys",
		Subsystem: "master",
		Name:      "num_ratings",
	})
	SkippedRatings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recsys",
		Subsystem: "master",
		Name:      "skipped_ratings",
	})
	LatentRank = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recsys",
		Subsystem: "master",
		Name:      "latent_rank",
	})
)

func updateModelMetrics(snapshot *logics.Snapshot, numRatings int) {
	ModelVersion.Set(float64(snapshot.Version))
	NumUsers.Set(float64(snapshot.Neighbors.UserIndex.Len()))
	NumItems.Set(float64(snapshot.Neighbors.ItemIndex.Len()))
	NumRatings.Set(float64(numRatings))
	SkippedRatings.Set(float64(snapshot.Skipped))
	if snapshot.Latent != nil {
		LatentRank.Set(float64(snapshot.Latent.Rank()))
	} else {
		LatentRank.Set(0)
	}
}
