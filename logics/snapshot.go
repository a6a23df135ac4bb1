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
	"encoding/binary"
	"io"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gorse-io/recsys/base/encoding"
	"github.com/gorse-io/recsys/base/log"
	"github.com/gorse-io/recsys/config"
	"github.com/gorse-io/recsys/dataset"
	"github.com/gorse-io/recsys/model/knn"
	"github.com/gorse-io/recsys/model/svd"
	"github.com/gorse-io/recsys/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Snapshot is an immutable pair of models built from the same ratings.
type Snapshot struct {
	Version   int64
	Digest    uint64
	Timestamp time.Time
	Skipped   int
	Neighbors *knn.Model
	// Latent is nil if the ratings are insufficient for latent factors.
	Latent *svd.Model
}

// BuildSnapshot fits both models. Ratings referring to unknown users or items
// are skipped.
func BuildSnapshot(ctx context.Context, users []data.User, items []data.Item, ratings []data.Rating, cfg config.RecommendConfig) (*Snapshot, error) {
	userIds := lo.Map(users, func(u data.User, _ int) string { return u.UserId })
	itemIds := lo.Map(items, func(i data.Item, _ int) string { return i.ItemId })
	m, err := dataset.Build(userIds, itemIds, lo.Map(ratings, func(r data.Rating, _ int) dataset.Rating {
		return dataset.Rating{UserId: r.UserId, ItemId: r.ItemId, Score: r.Score}
	}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if m.Skipped > 0 {
		log.Logger().Warn("skip ratings of unknown users or items", zap.Int("n_skipped", m.Skipped))
	}
	snapshot := &Snapshot{
		Digest:    Digest(users, items, ratings, cfg.MaxRank),
		Timestamp: time.Now(),
		Skipped:   m.Skipped,
	}
	if snapshot.Neighbors, err = knn.Fit(ctx, m, cfg.BuildJobs); err != nil {
		return nil, errors.Trace(err)
	}
	if snapshot.Latent, err = svd.Fit(ctx, m, cfg.MaxRank); errors.Is(err, svd.ErrInsufficientData) {
		log.Logger().Info("skip latent factors", zap.Int("n_users", m.NumUsers()), zap.Int("n_items", m.NumItems()), zap.Error(err))
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return snapshot, nil
}

// Recommend returns items predicted from the most similar users.
func (s *Snapshot) Recommend(userId string, n int) []string {
	return s.Neighbors.Recommend(userId, n)
}

// RecommendLatent returns items predicted from latent factors.
func (s *Snapshot) RecommendLatent(userId string, n int) []string {
	if s.Latent == nil {
		return nil
	}
	return s.Latent.Recommend(userId, n)
}

// Explain returns the predicted score of an item and the ratings of the neighbors behind it.
func (s *Snapshot) Explain(userId, itemId string) (float64, []knn.Contribution, bool) {
	return s.Neighbors.Explain(userId, itemId)
}

// Digest fingerprints store contents and the rank cap of the latent model.
// The order of users and items matters since it decides tie breaking, while
// ratings are hashed in key order.
func Digest(users []data.User, items []data.Item, ratings []data.Rating, maxRank int) uint64 {
	h := xxhash.New()
	buf := make([]byte, 8)
	writeString := func(s string) {
		binary.LittleEndian.PutUint64(buf, uint64(len(s)))
		_, _ = h.Write(buf)
		_, _ = h.WriteString(s)
	}
	writeString("max_rank")
	binary.LittleEndian.PutUint64(buf, uint64(maxRank))
	_, _ = h.Write(buf)
	writeString("users")
	for _, user := range users {
		writeString(user.UserId)
	}
	writeString("items")
	for _, item := range items {
		writeString(item.ItemId)
	}
	writeString("ratings")
	sorted := slices.Clone(ratings)
	slices.SortFunc(sorted, func(a, b data.Rating) int {
		if c := strings.Compare(a.UserId, b.UserId); c != 0 {
			return c
		}
		return strings.Compare(a.ItemId, b.ItemId)
	})
	for _, rating := range sorted {
		writeString(rating.UserId)
		writeString(rating.ItemId)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(rating.Score))
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}

type snapshotHeader struct {
	Version   int64
	Digest    uint64
	Timestamp time.Time
	Skipped   int
	HasLatent bool
}

// Marshal snapshot into byte stream.
func (s *Snapshot) Marshal(w io.Writer) error {
	if err := encoding.WriteGob(w, snapshotHeader{
		Version:   s.Version,
		Digest:    s.Digest,
		Timestamp: s.Timestamp,
		Skipped:   s.Skipped,
		HasLatent: s.Latent != nil,
	}); err != nil {
		return errors.Trace(err)
	}
	if err := s.Neighbors.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if s.Latent != nil {
		return s.Latent.Marshal(w)
	}
	return nil
}

// Unmarshal snapshot from byte stream.
func (s *Snapshot) Unmarshal(r io.Reader) error {
	var header snapshotHeader
	if err := encoding.ReadGob(r, &header); err != nil {
		return errors.Trace(err)
	}
	s.Version = header.Version
	s.Digest = header.Digest
	s.Timestamp = header.Timestamp
	s.Skipped = header.Skipped
	s.Neighbors = new(knn.Model)
	if err := s.Neighbors.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	s.Latent = nil
	if header.HasLatent {
		s.Latent = new(svd.Model)
		if err := s.Latent.Unmarshal(r); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
