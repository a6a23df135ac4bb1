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

package knn

import (
	"context"
	"io"

	"github.com/gorse-io/recsys/base/encoding"
	"github.com/gorse-io/recsys/common/heap"
	"github.com/gorse-io/recsys/dataset"
	"github.com/juju/errors"
)

// NumNeighbors is the number of similar users taking part in a prediction.
const NumNeighbors = 3

// Model is a user-based neighborhood model. It must not be modified after Fit.
type Model struct {
	UserIndex  *dataset.Index
	ItemIndex  *dataset.Index
	Ratings    [][]float64
	Similarity [][]float64
}

// Neighbor is a similar user.
type Neighbor struct {
	Index      int32
	Similarity float64
}

// Contribution is the share of a neighbor in a predicted score.
type Contribution struct {
	UserId     string
	Similarity float64
	Rating     float64
}

// Fit computes user similarities of a rating matrix.
func Fit(ctx context.Context, m *dataset.RatingMatrix, jobs int) (*Model, error) {
	sim, err := Similarity(ctx, m.Values, jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Model{
		UserIndex:  m.UserIndex,
		ItemIndex:  m.ItemIndex,
		Ratings:    m.Values,
		Similarity: sim,
	}, nil
}

// Neighbors returns the most similar users except the user itself, ordered by
// decreasing similarity and then by increasing index.
func (m *Model) Neighbors(userIndex int32) []Neighbor {
	filter := heap.NewTopKFilter[int32, float64](NumNeighbors)
	for i, s := range m.Similarity[userIndex] {
		if int32(i) != userIndex {
			filter.Push(int32(i), s)
		}
	}
	elems := filter.PopAll()
	neighbors := make([]Neighbor, len(elems))
	for i, elem := range elems {
		neighbors[i] = Neighbor{Index: elem.Value, Similarity: elem.Weight}
	}
	return neighbors
}

// predict returns the similarity-weighted average of neighbor ratings for an item.
// The second return value is false if no neighbor with positive similarity rated the item.
func (m *Model) predict(neighbors []Neighbor, itemIndex int) (float64, bool) {
	var weightedSum, simSum float64
	for _, neighbor := range neighbors {
		if rating := m.Ratings[neighbor.Index][itemIndex]; rating > 0 {
			weightedSum += rating * neighbor.Similarity
			simSum += neighbor.Similarity
		}
	}
	if simSum > 0 {
		return weightedSum / simSum, true
	}
	return 0, false
}

// Recommend returns at most n items not rated by the user, ordered by predicted
// score. It returns nothing for an unknown user.
func (m *Model) Recommend(userId string, n int) []string {
	userIndex := m.UserIndex.ToNumber(userId)
	if userIndex < 0 || n <= 0 {
		return nil
	}
	neighbors := m.Neighbors(userIndex)
	filter := heap.NewTopKFilter[int32, float64](n)
	for itemIndex, rating := range m.Ratings[userIndex] {
		if rating != 0 {
			continue
		}
		if score, ok := m.predict(neighbors, itemIndex); ok {
			filter.Push(int32(itemIndex), score)
		}
	}
	elems := filter.PopAll()
	items := make([]string, len(elems))
	for i, elem := range elems {
		items[i], _ = m.ItemIndex.ToName(elem.Value)
	}
	return items
}

// Explain returns the predicted score of an item unrated by a user together with
// the neighbors who rated it. The last return value is false if there is no
// prediction.
func (m *Model) Explain(userId, itemId string) (float64, []Contribution, bool) {
	userIndex := m.UserIndex.ToNumber(userId)
	itemIndex := m.ItemIndex.ToNumber(itemId)
	if userIndex < 0 || itemIndex < 0 || m.Ratings[userIndex][itemIndex] != 0 {
		return 0, nil, false
	}
	neighbors := m.Neighbors(userIndex)
	score, ok := m.predict(neighbors, int(itemIndex))
	if !ok {
		return 0, nil, false
	}
	var contributions []Contribution
	for _, neighbor := range neighbors {
		if rating := m.Ratings[neighbor.Index][itemIndex]; rating > 0 {
			neighborId, _ := m.UserIndex.ToName(neighbor.Index)
			contributions = append(contributions, Contribution{
				UserId:     neighborId,
				Similarity: neighbor.Similarity,
				Rating:     rating,
			})
		}
	}
	return score, contributions, true
}

// Marshal model into byte stream.
func (m *Model) Marshal(w io.Writer) error {
	if err := m.UserIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := m.ItemIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, m.Ratings); err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteMatrix(w, m.Similarity)
}

// Unmarshal model from byte stream.
func (m *Model) Unmarshal(r io.Reader) error {
	var err error
	m.UserIndex = dataset.NewIndex()
	if err = m.UserIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	m.ItemIndex = dataset.NewIndex()
	if err = m.ItemIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	if m.Ratings, err = encoding.ReadMatrix(r); err != nil {
		return errors.Trace(err)
	}
	if m.Similarity, err = encoding.ReadMatrix(r); err != nil {
		return errors.Trace(err)
	}
	numUsers, numItems := int(m.UserIndex.Len()), int(m.ItemIndex.Len())
	if len(m.Ratings) != numUsers || len(m.Similarity) != numUsers {
		return errors.NotValidf("model with %d users", numUsers)
	}
	for i := range m.Ratings {
		if len(m.Ratings[i]) != numItems || len(m.Similarity[i]) != numUsers {
			return errors.NotValidf("model row %d", i)
		}
	}
	return nil
}
