// Copyright 2025 gorse Project Authors
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
	"github.com/gorse-io/recsys/model/knn"
	"github.com/gorse-io/recsys/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Recommendation is the response to a recommendation request.
type Recommendation struct {
	Items []data.Item
	Model string
	// Version of the snapshot. It is zero if no model has been built.
	Version int64
	// Fallback is true if items are sampled at random.
	Fallback bool
}

// Recommender serves recommendations from cached snapshots and resolves
// recommended ids into items.
type Recommender struct {
	config     config.Config
	cache      *ModelCache
	dataClient data.Database
}

func NewRecommender(config config.Config, cache *ModelCache, dataClient data.Database) *Recommender {
	return &Recommender{
		config:     config,
		cache:      cache,
		dataClient: dataClient,
	}
}

// Limit applies the default and the maximum to a requested number of items.
func (r *Recommender) Limit(n int) int {
	if n <= 0 {
		return r.config.Server.DefaultN
	}
	return min(n, r.config.Server.MaxN)
}

// Recommend returns at most n items for a user. Random items are returned if
// the model has nothing to recommend, so unknown users still get a result.
func (r *Recommender) Recommend(ctx context.Context, userId string, n int, model string) (*Recommendation, error) {
	if model == "" {
		model = r.config.Recommend.DefaultModel
	}
	n = r.Limit(n)
	result := &Recommendation{Model: model, Items: []data.Item{}}
	var itemIds []string
	snapshot := r.cache.Load()
	if snapshot != nil {
		result.Version = snapshot.Version
	}
	switch model {
	case config.ModelNeighbors:
		if snapshot != nil {
			itemIds = snapshot.Recommend(userId, n)
		}
	case config.ModelLatent:
		if snapshot != nil {
			itemIds = snapshot.RecommendLatent(userId, n)
		}
	default:
		return nil, errors.NotValidf("model %q", model)
	}

	if len(itemIds) > 0 {
		items, err := r.dataClient.BatchGetItems(ctx, itemIds)
		if err != nil {
			return nil, errors.Trace(err)
		}
		// keep the order of recommendation and drop deleted items
		found := lo.KeyBy(items, func(item data.Item) string { return item.ItemId })
		for _, itemId := range itemIds {
			if item, ok := found[itemId]; ok {
				result.Items = append(result.Items, item)
			}
		}
	}
	if len(result.Items) == 0 && r.config.Recommend.FallbackSize > 0 {
		items, err := r.dataClient.GetItems(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		result.Items = lo.Samples(items, min(n, r.config.Recommend.FallbackSize))
		result.Fallback = true
	}
	return result, nil
}

// Explanation is the neighbor evidence behind a predicted score.
type Explanation struct {
	Score         float64
	Contributions []knn.Contribution
}

// Explain returns why an item would be recommended to a user. A NotFound
// error is returned if the model has no prediction for the pair.
func (r *Recommender) Explain(userId, itemId string) (*Explanation, error) {
	snapshot := r.cache.Load()
	if snapshot == nil {
		return nil, errors.NotFoundf("model")
	}
	score, contributions, ok := snapshot.Explain(userId, itemId)
	if !ok {
		return nil, errors.NotFoundf("prediction of user %q for item %q", userId, itemId)
	}
	return &Explanation{Score: score, Contributions: contributions}, nil
}
