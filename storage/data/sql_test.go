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
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/recsys/storage"
	"github.com/stretchr/testify/suite"
)

type SQLiteTestSuite struct {
	baseTestSuite
}

func (suite *SQLiteTestSuite) SetupSuite() {
	var err error
	path := filepath.Join(suite.T().TempDir(), "sqlite.db")
	suite.Database, err = Open(storage.SQLitePrefix+path, "recsys_")
	suite.NoError(err)
}

func (suite *SQLiteTestSuite) TearDownSuite() {
	suite.NoError(suite.Database.Close())
}

// SQL stores return records in primary key order, which compares ids as strings.
func (suite *SQLiteTestSuite) TestKeyOrder() {
	ctx := context.Background()
	suite.NoError(suite.Database.BatchInsertUsers(ctx, []User{{UserId: "2"}, {UserId: "10"}, {UserId: "1"}}))
	suite.NoError(suite.Database.BatchInsertItems(ctx, []Item{{ItemId: "2"}, {ItemId: "10"}}))
	suite.NoError(suite.Database.UpsertRating(ctx, Rating{UserId: "2", ItemId: "2", Score: 1}))
	suite.NoError(suite.Database.UpsertRating(ctx, Rating{UserId: "10", ItemId: "2", Score: 2}))
	suite.NoError(suite.Database.UpsertRating(ctx, Rating{UserId: "2", ItemId: "10", Score: 3}))
	users, err := suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.Equal([]User{{UserId: "1"}, {UserId: "10"}, {UserId: "2"}}, users)
	items, err := suite.Database.GetItems(ctx)
	suite.NoError(err)
	suite.Equal([]Item{{ItemId: "10"}, {ItemId: "2"}}, items)
	ratings, err := suite.Database.GetRatings(ctx)
	suite.NoError(err)
	suite.Equal([]Rating{
		{UserId: "10", ItemId: "2", Score: 2},
		{UserId: "2", ItemId: "10", Score: 3},
		{UserId: "2", ItemId: "2", Score: 1},
	}, ratings)
}

func TestSQLite(t *testing.T) {
	suite.Run(t, new(SQLiteTestSuite))
}

type MySQLTestSuite struct {
	baseTestSuite
}

func (suite *MySQLTestSuite) SetupSuite() {
	dsn := os.Getenv("MYSQL_URI")
	if dsn == "" {
		suite.T().Skip("MYSQL_URI is not set")
	}
	var err error
	suite.Database, err = Open(dsn, "")
	suite.NoError(err)
}

func (suite *MySQLTestSuite) TearDownSuite() {
	if suite.Database != nil {
		suite.NoError(suite.Database.Close())
	}
}

func TestMySQL(t *testing.T) {
	suite.Run(t, new(MySQLTestSuite))
}

type PostgresTestSuite struct {
	baseTestSuite
}

func (suite *PostgresTestSuite) SetupSuite() {
	dsn := os.Getenv("POSTGRES_URI")
	if dsn == "" {
		suite.T().Skip("POSTGRES_URI is not set")
	}
	var err error
	suite.Database, err = Open(dsn, "")
	suite.NoError(err)
}

func (suite *PostgresTestSuite) TearDownSuite() {
	if suite.Database != nil {
		suite.NoError(suite.Database.Close())
	}
}

func TestPostgres(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}
