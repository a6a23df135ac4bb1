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

package dataset

import (
	"math"

	"github.com/juju/errors"
)

// Rating is an explicit score given by a user to an item.
type Rating struct {
	UserId string
	ItemId string
	Score  float64
}

// RatingMatrix is a dense user-item matrix. A zero cell means "not rated".
type RatingMatrix struct {
	UserIndex *Index
	ItemIndex *Index
	Values    [][]float64
	// Count is the number of rated cells.
	Count int
	// Skipped is the number of ratings dropped because they reference unknown users or items.
	Skipped int
}

// Build maps ratings into a dense matrix. Users and items are indexed in the order they
// appear in userIds and itemIds, including those without any rating. Ratings referencing
// unknown ids are skipped. If a (user, item) pair appears more than once, the last one wins.
func Build(userIds, itemIds []string, ratings []Rating) (*RatingMatrix, error) {
	m := &RatingMatrix{
		UserIndex: NewIndexFrom(userIds),
		ItemIndex: NewIndexFrom(itemIds),
	}
	numItems := int(m.ItemIndex.Len())
	m.Values = make([][]float64, m.UserIndex.Len())
	for i := range m.Values {
		m.Values[i] = make([]float64, numItems)
	}
	for _, rating := range ratings {
		if math.IsNaN(rating.Score) || math.IsInf(rating.Score, 0) || rating.Score <= 0 {
			return nil, errors.NotValidf("score %v given by user %q to item %q", rating.Score, rating.UserId, rating.ItemId)
		}
		userIndex := m.UserIndex.ToNumber(rating.UserId)
		itemIndex := m.ItemIndex.ToNumber(rating.ItemId)
		if userIndex < 0 || itemIndex < 0 {
			m.Skipped++
			continue
		}
		if m.Values[userIndex][itemIndex] == 0 {
			m.Count++
		}
		m.Values[userIndex][itemIndex] = rating.Score
	}
	return m, nil
}

// NumUsers returns the number of rows.
func (m *RatingMatrix) NumUsers() int {
	return len(m.Values)
}

// NumItems returns the number of columns.
func (m *RatingMatrix) NumItems() int {
	return int(m.ItemIndex.Len())
}

// Get returns the rating of a user to an item, or 0 if either id is unknown or the item is not rated.
func (m *RatingMatrix) Get(userId, itemId string) float64 {
	userIndex := m.UserIndex.ToNumber(userId)
	itemIndex := m.ItemIndex.ToNumber(itemId)
	if userIndex < 0 || itemIndex < 0 {
		return 0
	}
	return m.Values[userIndex][itemIndex]
}
