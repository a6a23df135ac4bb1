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
	"fmt"
	"strings"

	"github.com/XSAM/otelsql"
	"github.com/go-playground/validator/v10"
	"github.com/gorse-io/recsys/base/log"
	"github.com/gorse-io/recsys/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	ErrNoDatabase = errors.NotAssignedf("database")
)

// User stores meta data about user.
type User struct {
	UserId string `validate:"required"`
	Name   string
}

// Item stores meta data about item.
type Item struct {
	ItemId      string `validate:"required"`
	Name        string
	Category    string
	Description string
	Rating      float64
	ImageURL    string
}

// Rating is the explicit score given to an item by a user.
type Rating struct {
	UserId string  `validate:"required"`
	ItemId string  `validate:"required"`
	Score  float64 `validate:"gt=0,lte=5"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRating checks that a rating has both ids and a score in (0, 5].
func ValidateRating(rating Rating) error {
	if err := validate.Struct(rating); err != nil {
		return errors.NewNotValid(err, "rating")
	}
	return nil
}

type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	BatchInsertUsers(ctx context.Context, users []User) error
	BatchInsertItems(ctx context.Context, items []Item) error
	// BatchGetItems returns existing items in no particular order.
	BatchGetItems(ctx context.Context, itemIds []string) ([]Item, error)
	GetUsers(ctx context.Context) ([]User, error)
	GetItems(ctx context.Context) ([]Item, error)
	GetRatings(ctx context.Context) ([]Rating, error)
	// UpsertRating inserts a rating or overwrites the score of an existing one.
	UpsertRating(ctx context.Context, rating Rating) error
}

// Open a connection to a database.
func Open(path, tablePrefix string, opts ...storage.Option) (Database, error) {
	database, err := open(path, tablePrefix, storage.NewOptions(opts...))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &metricsDatabase{Database: database}, nil
}

func open(path, tablePrefix string, opt storage.Options) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		// append parameters
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"sql_mode":              "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			"parseTime":             "true",
			"transaction_isolation": fmt.Sprintf("'%s'", opt.IsolationLevel),
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLDatabase)
		database.driver = MySQL
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(attribute.String("db.system", "mysql")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		storage.ApplySQLPool(database.client, opt)
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		storage.ApplySQLPool(database.client, opt)
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		// append parameters
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("sqlite", name,
			otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		// sqlite allows a single writer
		database.client.SetMaxOpenConns(1)
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.RedisPrefix) || strings.HasPrefix(path, storage.RedissPrefix) {
		opt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := new(Redis)
		database.client = redis.NewClient(opt)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if err = redisotel.InstrumentTracing(database.client, redisotel.WithAttributes(attribute.String("db.system", "redis"))); err != nil {
			log.Logger().Error("failed to add tracing for redis", zap.Error(err))
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.JSONPrefix) {
		database := new(JSON)
		database.dir = path[len(storage.JSONPrefix):]
		return database, nil
	}
	return nil, errors.NotSupportedf("data store %s", log.RedactDBURL(path))
}
