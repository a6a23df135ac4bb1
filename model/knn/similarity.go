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

	"github.com/gorse-io/recsys/common/parallel"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
)

// Similarity computes the cosine similarity between every pair of rows.
//
// A row without any rating has a zero norm, which is replaced by 1 so that its
// similarity to every row (itself included) is 0. The diagonal of other rows is
// exactly 1. The upper triangle is computed once and mirrored, so the result is
// symmetric bit for bit.
func Similarity(ctx context.Context, values [][]float64, jobs int) ([][]float64, error) {
	n := len(values)
	norms := make([]float64, n)
	for i, row := range values {
		norms[i] = floats.Norm(row, 2)
	}
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	err := parallel.For(ctx, n, jobs, func(a int) {
		if norms[a] == 0 {
			// cold users are similar to no one
			return
		}
		sim[a][a] = 1
		for b := a + 1; b < n; b++ {
			if norms[b] == 0 {
				continue
			}
			s := floats.Dot(values[a], values[b]) / (norms[a] * norms[b])
			sim[a][b] = s
			sim[b][a] = s
		}
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return sim, nil
}
