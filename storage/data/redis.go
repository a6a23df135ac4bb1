// Copyright 2021 gorse Project Authors
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

	"github.com/gorse-io/recsys/base/json"
	"github.com/gorse-io/recsys/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

const (
	keyUsers       = "users"
	keyItems       = "items"
	keyRatings     = "ratings"
	keyUserOrder   = "user_order"
	keyItemOrder   = "item_order"
	keyRatingOrder = "rating_order"
	keySequence    = "sequence"
)

// Redis stores users, items and ratings in hashes. Sorted sets keep the
// insertion order of each hash.
type Redis struct {
	storage.TablePrefix
	client *redis.Client
}

// Init does nothing.
func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

// Close Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Purge() error {
	return r.client.Del(context.Background(),
		r.Key(keyUsers), r.Key(keyItems), r.Key(keyRatings),
		r.Key(keyUserOrder), r.Key(keyItemOrder), r.Key(keyRatingOrder), r.Key(keySequence),
	).Err()
}

// insert sets fields of a hash and appends new fields to its order.
func (r *Redis) insert(ctx context.Context, hash, order string, fields []string, values [][]byte) error {
	if len(fields) == 0 {
		return nil
	}
	base, err := r.client.IncrBy(ctx, r.Key(keySequence), int64(len(fields))).Result()
	if err != nil {
		return errors.Trace(err)
	}
	base -= int64(len(fields))
	pipeline := r.client.Pipeline()
	members := make([]redis.Z, len(fields))
	for i, field := range fields {
		pipeline.HSet(ctx, r.Key(hash), field, values[i])
		members[i] = redis.Z{Score: float64(base + int64(i)), Member: field}
	}
	pipeline.ZAddNX(ctx, r.Key(order), members...)
	_, err = pipeline.Exec(ctx)
	return errors.Trace(err)
}

// scan returns values of a hash in insertion order.
func (r *Redis) scan(ctx context.Context, hash, order string) ([]string, error) {
	fields, err := r.client.ZRange(ctx, r.Key(order), 0, -1).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.get(ctx, hash, fields)
}

func (r *Redis) get(ctx context.Context, hash string, fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	values, err := r.client.HMGet(ctx, r.Key(hash), fields...).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]string, 0, len(values))
	for _, value := range values {
		if s, ok := value.(string); ok {
			result = append(result, s)
		}
	}
	return result, nil
}

func decode[T any](values []string) ([]T, error) {
	result := make([]T, len(values))
	for i, value := range values {
		if err := json.Unmarshal([]byte(value), &result[i]); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return result, nil
}

func encode[T any](values []T) ([][]byte, error) {
	result := make([][]byte, len(values))
	for i, value := range values {
		var err error
		if result[i], err = json.Marshal(value); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return result, nil
}

func (r *Redis) BatchInsertUsers(ctx context.Context, batch []User) error {
	values, err := encode(batch)
	if err != nil {
		return errors.Trace(err)
	}
	fields := make([]string, len(batch))
	for i, user := range batch {
		fields[i] = user.UserId
	}
	return r.insert(ctx, keyUsers, keyUserOrder, fields, values)
}

func (r *Redis) BatchInsertItems(ctx context.Context, batch []Item) error {
	values, err := encode(batch)
	if err != nil {
		return errors.Trace(err)
	}
	fields := make([]string, len(batch))
	for i, item := range batch {
		fields[i] = item.ItemId
	}
	return r.insert(ctx, keyItems, keyItemOrder, fields, values)
}

func (r *Redis) BatchGetItems(ctx context.Context, itemIds []string) ([]Item, error) {
	values, err := r.get(ctx, keyItems, itemIds)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decode[Item](values)
}

func (r *Redis) GetUsers(ctx context.Context) ([]User, error) {
	values, err := r.scan(ctx, keyUsers, keyUserOrder)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decode[User](values)
}

func (r *Redis) GetItems(ctx context.Context) ([]Item, error) {
	values, err := r.scan(ctx, keyItems, keyItemOrder)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decode[Item](values)
}

func (r *Redis) GetRatings(ctx context.Context) ([]Rating, error) {
	values, err := r.scan(ctx, keyRatings, keyRatingOrder)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decode[Rating](values)
}

func (r *Redis) UpsertRating(ctx context.Context, rating Rating) error {
	if err := ValidateRating(rating); err != nil {
		return errors.Trace(err)
	}
	field, err := json.Marshal([]string{rating.UserId, rating.ItemId})
	if err != nil {
		return errors.Trace(err)
	}
	value, err := json.Marshal(rating)
	if err != nil {
		return errors.Trace(err)
	}
	return r.insert(ctx, keyRatings, keyRatingOrder, []string{string(field)}, [][]byte{value})
}
