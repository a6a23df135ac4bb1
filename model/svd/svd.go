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

package svd

import (
	"context"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/recsys/base/encoding"
	"github.com/gorse-io/recsys/common/heap"
	"github.com/gorse-io/recsys/dataset"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MaxRank is the default upper bound of the number of latent factors.
const MaxRank = 10

// ErrInsufficientData is returned if the rating matrix is too small to be factorized.
var ErrInsufficientData = errors.NewNotValid(nil, "insufficient data for latent factors")

// Model is a truncated SVD of the mean-centered rating matrix. It must not be modified after Fit.
//
// Only users and items with at least one rating take part. The mean of a user
// is taken over those items, so unrated cells among them count as zero.
type Model struct {
	UserIndex   *dataset.Index
	ItemIndex   *dataset.Index
	UserMean    []float64
	UserFactors [][]float64 // U_k Σ_k
	ItemFactors [][]float64 // V_k
	Rated       []*bitset.BitSet
}

// Rank returns the number of latent factors for a matrix of the given shape.
func Rank(rows, cols, maxRank int) int {
	if maxRank <= 0 {
		maxRank = MaxRank
	}
	return min(rows-1, cols-1, maxRank)
}

// pivot returns the rows and columns holding at least one rating.
func pivot(m *dataset.RatingMatrix) (rows, cols []int) {
	ratedCols := bitset.New(uint(m.NumItems()))
	for i, row := range m.Values {
		rated := false
		for j, v := range row {
			if v > 0 {
				rated = true
				ratedCols.Set(uint(j))
			}
		}
		if rated {
			rows = append(rows, i)
		}
	}
	for j, ok := ratedCols.NextSet(0); ok; j, ok = ratedCols.NextSet(j + 1) {
		cols = append(cols, int(j))
	}
	return rows, cols
}

// Fit factorizes a rating matrix. Users and items without ratings are left
// out, so they get no recommendation and are never recommended.
func Fit(ctx context.Context, m *dataset.RatingMatrix, maxRank int) (*Model, error) {
	activeRows, activeCols := pivot(m)
	rows, cols := len(activeRows), len(activeCols)
	k := Rank(rows, cols, maxRank)
	if rows < 2 || cols < 2 || k <= 0 {
		return nil, errors.Trace(ErrInsufficientData)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}

	model := &Model{
		UserIndex: dataset.NewIndex(),
		ItemIndex: dataset.NewIndex(),
		UserMean:  make([]float64, rows),
		Rated:     make([]*bitset.BitSet, rows),
	}
	for _, j := range activeCols {
		name, _ := m.ItemIndex.ToName(int32(j))
		model.ItemIndex.Add(name)
	}
	centered := mat.NewDense(rows, cols, nil)
	for i, row := range activeRows {
		name, _ := m.UserIndex.ToName(int32(row))
		model.UserIndex.Add(name)
		values := make([]float64, cols)
		for j, col := range activeCols {
			values[j] = m.Values[row][col]
		}
		model.UserMean[i] = floats.Sum(values) / float64(cols)
		model.Rated[i] = bitset.New(uint(cols))
		for j, v := range values {
			centered.Set(i, j, v-model.UserMean[i])
			if v > 0 {
				model.Rated[i].Set(uint(j))
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, errors.New("failed to factorize rating matrix")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	model.UserFactors = make([][]float64, rows)
	for i := range model.UserFactors {
		model.UserFactors[i] = make([]float64, k)
		for f := 0; f < k; f++ {
			model.UserFactors[i][f] = u.At(i, f) * values[f]
		}
	}
	model.ItemFactors = make([][]float64, cols)
	for j := range model.ItemFactors {
		model.ItemFactors[j] = make([]float64, k)
		for f := 0; f < k; f++ {
			model.ItemFactors[j][f] = v.At(j, f)
		}
	}
	return model, nil
}

// Rank returns the number of latent factors.
func (m *Model) Rank() int {
	if len(m.ItemFactors) == 0 {
		return 0
	}
	return len(m.ItemFactors[0])
}

func (m *Model) predict(userIndex, itemIndex int32) float64 {
	return m.UserMean[userIndex] + floats.Dot(m.UserFactors[userIndex], m.ItemFactors[itemIndex])
}

// Predict returns the reconstructed score of a user for an item.
func (m *Model) Predict(userId, itemId string) (float64, bool) {
	userIndex := m.UserIndex.ToNumber(userId)
	itemIndex := m.ItemIndex.ToNumber(itemId)
	if userIndex < 0 || itemIndex < 0 {
		return 0, false
	}
	return m.predict(userIndex, itemIndex), true
}

// Recommend returns at most n unrated items of a user ordered by decreasing
// reconstructed score. Ties are broken by item order.
func (m *Model) Recommend(userId string, n int) []string {
	userIndex := m.UserIndex.ToNumber(userId)
	if userIndex < 0 || n <= 0 {
		return nil
	}
	filter := heap.NewTopKFilter[int32, float64](n)
	for itemIndex := int32(0); itemIndex < m.ItemIndex.Len(); itemIndex++ {
		if !m.Rated[userIndex].Test(uint(itemIndex)) {
			filter.Push(itemIndex, m.predict(userIndex, itemIndex))
		}
	}
	indices := filter.PopAllValues()
	items := make([]string, 0, len(indices))
	for _, itemIndex := range indices {
		name, _ := m.ItemIndex.ToName(itemIndex)
		items = append(items, name)
	}
	return items
}

func (m *Model) Marshal(w io.Writer) error {
	if err := m.UserIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := m.ItemIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, [][]float64{m.UserMean}); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, m.UserFactors); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, m.ItemFactors); err != nil {
		return errors.Trace(err)
	}
	for _, rated := range m.Rated {
		data, err := rated.MarshalBinary()
		if err != nil {
			return errors.Trace(err)
		}
		if err = encoding.WriteBytes(w, data); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m *Model) Unmarshal(r io.Reader) error {
	m.UserIndex = dataset.NewIndex()
	if err := m.UserIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	m.ItemIndex = dataset.NewIndex()
	if err := m.ItemIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	mean, err := encoding.ReadMatrix(r)
	if err != nil {
		return errors.Trace(err)
	}
	if len(mean) != 1 || len(mean[0]) != int(m.UserIndex.Len()) {
		return errors.NotValidf("user mean of %d users", m.UserIndex.Len())
	}
	m.UserMean = mean[0]
	if m.UserFactors, err = encoding.ReadMatrix(r); err != nil {
		return errors.Trace(err)
	}
	if m.ItemFactors, err = encoding.ReadMatrix(r); err != nil {
		return errors.Trace(err)
	}
	if len(m.UserFactors) != int(m.UserIndex.Len()) || len(m.ItemFactors) != int(m.ItemIndex.Len()) {
		return errors.NotValidf("latent factors of %dx%d matrix", m.UserIndex.Len(), m.ItemIndex.Len())
	}
	if len(m.UserFactors) > 0 && len(m.ItemFactors) > 0 && len(m.UserFactors[0]) != len(m.ItemFactors[0]) {
		return errors.NotValidf("rank %d and %d", len(m.UserFactors[0]), len(m.ItemFactors[0]))
	}
	m.Rated = make([]*bitset.BitSet, m.UserIndex.Len())
	for i := range m.Rated {
		data, err := encoding.ReadBytes(r)
		if err != nil {
			return errors.Trace(err)
		}
		m.Rated[i] = &bitset.BitSet{}
		if err = m.Rated[i].UnmarshalBinary(data); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
