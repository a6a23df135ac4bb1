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
	"io"

	"github.com/gorse-io/recsys/base/encoding"
	"github.com/juju/errors"
)

// Index is a bijection between identifiers and dense indices. Indices are
// assigned in first-seen order.
type Index struct {
	si map[string]int32
	is []string
}

func NewIndex() *Index {
	return &Index{si: map[string]int32{}, is: []string{}}
}

// NewIndexFrom builds an index from names. Duplicated names keep the index
// of their first occurrence.
func NewIndexFrom(names []string) *Index {
	idx := &Index{si: make(map[string]int32, len(names)), is: make([]string, 0, len(names))}
	for _, name := range names {
		idx.Add(name)
	}
	return idx
}

func (idx *Index) Len() int32 {
	return int32(len(idx.is))
}

// Add inserts a name and returns its index.
func (idx *Index) Add(name string) int32 {
	if i, ok := idx.si[name]; ok {
		return i
	}
	i := int32(len(idx.is))
	idx.si[name] = i
	idx.is = append(idx.is, name)
	return i
}

// ToNumber returns the index of a name, or -1 if the name is unknown.
func (idx *Index) ToNumber(name string) int32 {
	if i, ok := idx.si[name]; ok {
		return i
	}
	return -1
}

// ToName returns the name of an index.
func (idx *Index) ToName(i int32) (string, bool) {
	if i < 0 || int(i) >= len(idx.is) {
		return "", false
	}
	return idx.is[i], true
}

// Names returns all names ordered by index. The returned slice must not be modified.
func (idx *Index) Names() []string {
	return idx.is
}

func (idx *Index) Marshal(w io.Writer) error {
	return errors.Trace(encoding.WriteGob(w, idx.is))
}

func (idx *Index) Unmarshal(r io.Reader) error {
	var names []string
	if err := encoding.ReadGob(r, &names); err != nil {
		return errors.Trace(err)
	}
	*idx = *NewIndexFrom(names)
	if len(idx.is) != len(names) {
		return errors.NotValidf("index with duplicated names")
	}
	return nil
}
