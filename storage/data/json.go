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

package data

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gorse-io/recsys/base/json"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	usersFile   = "users.json"
	itemsFile   = "items.json"
	ratingsFile = "ratings.json"
)

// JSON stores users, items and ratings as JSON arrays in three files of a
// directory. Every write rewrites the affected file.
type JSON struct {
	dir     string
	mu      sync.Mutex
	loaded  bool
	users   []User
	items   []Item
	ratings []Rating
}

func (j *JSON) Init() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(j.dir, os.ModePerm); err != nil {
		return errors.Trace(err)
	}
	return j.load()
}

func (j *JSON) Ping() error {
	_, err := os.Stat(j.dir)
	return errors.Trace(err)
}

func (j *JSON) Close() error {
	return nil
}

func (j *JSON) Purge() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.users, j.items, j.ratings = nil, nil, nil
	j.loaded = true
	for _, name := range []string{usersFile, itemsFile, ratingsFile} {
		if err := os.Remove(filepath.Join(j.dir, name)); err != nil && !os.IsNotExist(err) {
			return errors.Trace(err)
		}
	}
	return nil
}

func (j *JSON) load() error {
	if j.loaded {
		return nil
	}
	if err := readJSON(filepath.Join(j.dir, usersFile), &j.users); err != nil {
		return errors.Trace(err)
	}
	if err := readJSON(filepath.Join(j.dir, itemsFile), &j.items); err != nil {
		return errors.Trace(err)
	}
	if err := readJSON(filepath.Join(j.dir, ratingsFile), &j.ratings); err != nil {
		return errors.Trace(err)
	}
	j.loaded = true
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	if err = json.Unmarshal(data, v); err != nil {
		return errors.NewNotValid(err, path)
	}
	return nil
}

// writeJSON replaces a file through a rename so readers never see a partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v)
	if err != nil {
		return errors.Trace(err)
	}
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(tmp, path))
}

func (j *JSON) BatchInsertUsers(_ context.Context, users []User) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return errors.Trace(err)
	}
	next := upsert(slices.Clone(j.users), users, func(u User) string { return u.UserId })
	if err := writeJSON(filepath.Join(j.dir, usersFile), next); err != nil {
		return errors.Trace(err)
	}
	j.users = next
	return nil
}

func (j *JSON) BatchInsertItems(_ context.Context, items []Item) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return errors.Trace(err)
	}
	next := upsert(slices.Clone(j.items), items, func(i Item) string { return i.ItemId })
	if err := writeJSON(filepath.Join(j.dir, itemsFile), next); err != nil {
		return errors.Trace(err)
	}
	j.items = next
	return nil
}

func (j *JSON) BatchGetItems(_ context.Context, itemIds []string) ([]Item, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return nil, errors.Trace(err)
	}
	ids := lo.SliceToMap(itemIds, func(id string) (string, struct{}) { return id, struct{}{} })
	return lo.Filter(j.items, func(item Item, _ int) bool {
		_, ok := ids[item.ItemId]
		return ok
	}), nil
}

func (j *JSON) GetUsers(context.Context) ([]User, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return nil, errors.Trace(err)
	}
	return append([]User(nil), j.users...), nil
}

func (j *JSON) GetItems(context.Context) ([]Item, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return nil, errors.Trace(err)
	}
	return append([]Item(nil), j.items...), nil
}

func (j *JSON) GetRatings(context.Context) ([]Rating, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return nil, errors.Trace(err)
	}
	return append([]Rating(nil), j.ratings...), nil
}

func (j *JSON) UpsertRating(_ context.Context, rating Rating) error {
	if err := ValidateRating(rating); err != nil {
		return errors.Trace(err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return errors.Trace(err)
	}
	next := upsert(slices.Clone(j.ratings), []Rating{rating}, func(r Rating) lo.Tuple2[string, string] {
		return lo.T2(r.UserId, r.ItemId)
	})
	if err := writeJSON(filepath.Join(j.dir, ratingsFile), next); err != nil {
		return errors.Trace(err)
	}
	j.ratings = next
	return nil
}

// upsert overwrites existing records in place and appends new ones. Callers
// pass a copy so a failed write leaves the loaded records untouched.
func upsert[T any, K comparable](records, batch []T, key func(T) K) []T {
	positions := make(map[K]int, len(records))
	for i, record := range records {
		positions[key(record)] = i
	}
	for _, record := range batch {
		if i, ok := positions[key(record)]; ok {
			records[i] = record
		} else {
			positions[key(record)] = len(records)
			records = append(records, record)
		}
	}
	return records
}
