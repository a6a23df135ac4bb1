// Copyright 2022 gorse Project Authors
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

package heap

import (
	"cmp"
	"container/heap"
)

type Elem[T cmp.Ordered, W cmp.Ordered] struct {
	Value  T
	Weight W
}

// worse reports whether a ranks below b: smaller weight first, then larger value.
func worse[T cmp.Ordered, W cmp.Ordered](a, b Elem[T, W]) bool {
	if a.Weight != b.Weight {
		return a.Weight < b.Weight
	}
	return a.Value > b.Value
}

type _heap[T cmp.Ordered, W cmp.Ordered] []Elem[T, W]

func (h _heap[T, W]) Len() int           { return len(h) }
func (h _heap[T, W]) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h _heap[T, W]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *_heap[T, W]) Push(x any) {
	*h = append(*h, x.(Elem[T, W]))
}

func (h *_heap[T, W]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopKFilter filters out top k items with maximum weights. Ties are broken by
// preferring the smaller value, so the output is deterministic.
type TopKFilter[T cmp.Ordered, W cmp.Ordered] struct {
	_heap[T, W]
	k int
}

// NewTopKFilter creates a top k filter.
func NewTopKFilter[T cmp.Ordered, W cmp.Ordered](k int) *TopKFilter[T, W] {
	return &TopKFilter[T, W]{k: k}
}

// Push pushes the element x onto the heap.
// The complexity is O(log k).
func (filter *TopKFilter[T, W]) Push(item T, weight W) {
	heap.Push(&filter._heap, Elem[T, W]{item, weight})
	if filter.Len() > filter.k {
		heap.Pop(&filter._heap)
	}
}

// PopAll pops all items in the filter with decreasing order.
func (filter *TopKFilter[T, W]) PopAll() []Elem[T, W] {
	elems := make([]Elem[T, W], filter.Len())
	for i := len(elems) - 1; i >= 0; i-- {
		elems[i] = heap.Pop(&filter._heap).(Elem[T, W])
	}
	return elems
}

// PopAllValues pops all values in the filter with decreasing order of weights.
func (filter *TopKFilter[T, W]) PopAllValues() []T {
	elems := filter.PopAll()
	values := make([]T, len(elems))
	for i, elem := range elems {
		values[i] = elem.Value
	}
	return values
}
