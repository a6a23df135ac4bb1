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

package storage

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"moul.io/zapgorm2"
)

func TestAppendURLParams(t *testing.T) {
	// test windows path
	url, err := AppendURLParams(`c:\\sqlite.db`, []lo.Tuple2[string, string]{{"a", "b"}})
	assert.NoError(t, err)
	assert.Equal(t, `c:\\sqlite.db?a=b`, url)
	// test no scheme
	url, err = AppendURLParams(`sqlite.db`, []lo.Tuple2[string, string]{{"a", "b"}})
	assert.NoError(t, err)
	assert.Equal(t, `sqlite.db?a=b`, url)
}

func TestAppendMySQLParams(t *testing.T) {
	dsn, err := AppendMySQLParams("root:password@tcp(localhost:3306)/recsys?foo=bar", map[string]string{
		"foo":      "baz",
		"sql_mode": "ANSI",
	})
	assert.NoError(t, err)
	assert.Contains(t, dsn, "foo=bar")
	assert.NotContains(t, dsn, "foo=baz")
	assert.Contains(t, dsn, "sql_mode=ANSI")
}

func TestTablePrefix(t *testing.T) {
	prefix := TablePrefix("recsys_")
	assert.Equal(t, "recsys_users", prefix.UsersTable())
	assert.Equal(t, "recsys_items", prefix.ItemsTable())
	assert.Equal(t, "recsys_ratings", prefix.RatingsTable())
	assert.Equal(t, "recsys_user_order", prefix.Key("user_order"))
}

func TestNewGORMConfig(t *testing.T) {
	cfg := NewGORMConfig("recsys_")
	assert.True(t, cfg.SkipDefaultTransaction)
	assert.IsType(t, zapgorm2.Logger{}, cfg.Logger)
	assert.Equal(t, "recsys_users", cfg.NamingStrategy.TableName("SQLUser"))
	assert.Equal(t, "recsys_ratings", cfg.NamingStrategy.TableName("SQLRating"))
}
