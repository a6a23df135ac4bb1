// Copyright 2023 gorse Project Authors
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
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	_ "modernc.org/sqlite"
)

func TestNewOptions(t *testing.T) {
	opt := NewOptions()
	assert.Equal(t, "READ-UNCOMMITTED", opt.IsolationLevel)
	assert.Zero(t, opt.MaxOpenConns)

	opt = NewOptions(
		WithIsolationLevel("READ-COMMITTED"),
		WithMaxOpenConns(8),
		WithMaxIdleConns(4),
		WithConnMaxLifetime(time.Minute))
	assert.Equal(t, Options{
		IsolationLevel:  "READ-COMMITTED",
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Minute,
	}, opt)
}

func TestApplySQLPool(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	assert.NoError(t, err)
	defer db.Close()
	ApplySQLPool(db, NewOptions(WithMaxOpenConns(3)))
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)
}
