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
	"strconv"
	"testing"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database Database
}

func (suite *baseTestSuite) SetupTest() {
	suite.NoError(suite.Database.Init())
	suite.NoError(suite.Database.Purge())
}

func (suite *baseTestSuite) TestPing() {
	suite.NoError(suite.Database.Ping())
}

func (suite *baseTestSuite) TestUsers() {
	ctx := context.Background()
	users := make([]User, 5)
	for i := range users {
		users[i] = User{UserId: strconv.Itoa(i), Name: "user " + strconv.Itoa(i)}
	}
	suite.NoError(suite.Database.BatchInsertUsers(ctx, users[:3]))
	suite.NoError(suite.Database.BatchInsertUsers(ctx, users[3:]))
	suite.NoError(suite.Database.BatchInsertUsers(ctx, nil))
	result, err := suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.Equal(users, result)

	// overwrite
	suite.NoError(suite.Database.BatchInsertUsers(ctx, []User{{UserId: "1", Name: "renamed"}}))
	result, err = suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.Len(result, 5)
	suite.Equal(User{UserId: "1", Name: "renamed"}, result[1])
}

func (suite *baseTestSuite) TestItems() {
	ctx := context.Background()
	items := SampleItems()[:9]
	suite.NoError(suite.Database.BatchInsertItems(ctx, items))
	result, err := suite.Database.GetItems(ctx)
	suite.NoError(err)
	suite.Equal(items, result)

	// batch get
	result, err = suite.Database.BatchGetItems(ctx, []string{"3", "1", "100"})
	suite.NoError(err)
	suite.ElementsMatch([]Item{items[0], items[2]}, result)
	result, err = suite.Database.BatchGetItems(ctx, nil)
	suite.NoError(err)
	suite.Empty(result)

	// overwrite
	item := items[4]
	item.Rating = 1.5
	suite.NoError(suite.Database.BatchInsertItems(ctx, []Item{item}))
	result, err = suite.Database.BatchGetItems(ctx, []string{item.ItemId})
	suite.NoError(err)
	suite.Equal([]Item{item}, result)
}

func (suite *baseTestSuite) TestUpsertRating() {
	ctx := context.Background()
	suite.NoError(suite.Database.UpsertRating(ctx, Rating{UserId: "1", ItemId: "1", Score: 4}))
	suite.NoError(suite.Database.UpsertRating(ctx, Rating{UserId: "1", ItemId: "2", Score: 3}))
	suite.NoError(suite.Database.UpsertRating(ctx, Rating{UserId: "2", ItemId: "1", Score: 5}))
	// the last write wins
	suite.NoError(suite.Database.UpsertRating(ctx, Rating{UserId: "1", ItemId: "1", Score: 2.5}))
	ratings, err := suite.Database.GetRatings(ctx)
	suite.NoError(err)
	suite.Equal([]Rating{
		{UserId: "1", ItemId: "1", Score: 2.5},
		{UserId: "1", ItemId: "2", Score: 3},
		{UserId: "2", ItemId: "1", Score: 5},
	}, ratings)

	// malformed ratings never reach the store
	for _, rating := range []Rating{
		{UserId: "1", ItemId: "1", Score: 0},
		{UserId: "1", ItemId: "1", Score: -1},
		{UserId: "1", ItemId: "1", Score: 5.5},
		{UserId: "", ItemId: "1", Score: 3},
	} {
		err = suite.Database.UpsertRating(ctx, rating)
		suite.True(errors.Is(err, errors.NotValid), rating)
	}
	ratings, err = suite.Database.GetRatings(ctx)
	suite.NoError(err)
	suite.Len(ratings, 3)
}

func (suite *baseTestSuite) TestSample() {
	ctx := context.Background()
	suite.NoError(suite.Database.BatchInsertUsers(ctx, SampleUsers()))
	suite.NoError(suite.Database.BatchInsertItems(ctx, SampleItems()))
	for _, rating := range SampleRatings() {
		suite.NoError(suite.Database.UpsertRating(ctx, rating))
	}
	users, err := suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.ElementsMatch(SampleUsers(), users)
	items, err := suite.Database.GetItems(ctx)
	suite.NoError(err)
	suite.ElementsMatch(SampleItems(), items)
	ratings, err := suite.Database.GetRatings(ctx)
	suite.NoError(err)
	suite.ElementsMatch(SampleRatings(), ratings)

	suite.NoError(suite.Database.Purge())
	users, err = suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.Empty(users)
	ratings, err = suite.Database.GetRatings(ctx)
	suite.NoError(err)
	suite.Empty(ratings)
}

func TestValidateRating(t *testing.T) {
	assert.NoError(t, ValidateRating(Rating{UserId: "1", ItemId: "1", Score: 5}))
	assert.NoError(t, ValidateRating(Rating{UserId: "1", ItemId: "1", Score: 0.5}))
	assert.True(t, errors.Is(ValidateRating(Rating{UserId: "1", ItemId: "", Score: 1}), errors.NotValid))
	assert.True(t, errors.Is(ValidateRating(Rating{UserId: "1", ItemId: "1", Score: 0}), errors.NotValid))
}

func TestSampleData(t *testing.T) {
	assert.Len(t, SampleUsers(), 8)
	assert.Len(t, SampleItems(), 12)
	assert.Len(t, SampleRatings(), 24)
	userIds := lo.Map(SampleUsers(), func(u User, _ int) string { return u.UserId })
	itemIds := lo.Map(SampleItems(), func(i Item, _ int) string { return i.ItemId })
	for _, rating := range SampleRatings() {
		assert.Contains(t, userIds, rating.UserId)
		assert.Contains(t, itemIds, rating.ItemId)
		assert.NoError(t, ValidateRating(rating))
	}
}

func TestFakeData(t *testing.T) {
	users, items, ratings := FakeData(20, 30, 0.3, 0)
	assert.Len(t, users, 20)
	assert.Len(t, items, 30)
	assert.NotEmpty(t, ratings)
	assert.Less(t, len(ratings), 20*30)
	for _, rating := range ratings {
		assert.NoError(t, ValidateRating(rating))
	}
	// deterministic
	_, _, again := FakeData(20, 30, 0.3, 0)
	assert.Equal(t, ratings, again)
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("mongodb://localhost:27017", "")
	assert.True(t, errors.Is(err, errors.NotSupported))
}
