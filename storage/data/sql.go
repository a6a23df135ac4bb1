// Copyright 2020 gorse Project Authors
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
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorse-io/recsys/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

type SQLUser struct {
	UserId string `gorm:"column:user_id;type:varchar(256);primaryKey"`
	Name   string `gorm:"column:name;type:varchar(256)"`
}

type SQLItem struct {
	ItemId      string  `gorm:"column:item_id;type:varchar(256);primaryKey"`
	Name        string  `gorm:"column:name;type:varchar(256)"`
	Category    string  `gorm:"column:category;type:varchar(256)"`
	Description string  `gorm:"column:description;type:text"`
	Rating      float64 `gorm:"column:rating"`
	ImageURL    string  `gorm:"column:image_url;type:text"`
}

type SQLRating struct {
	UserId string  `gorm:"column:user_id;type:varchar(256);primaryKey"`
	ItemId string  `gorm:"column:item_id;type:varchar(256);primaryKey"`
	Score  float64 `gorm:"column:score"`
}

// SQLDatabase stores users, items and ratings in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init tables.
func (d *SQLDatabase) Init() error {
	db := d.gormDB
	if d.driver == MySQL {
		db = db.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := db.AutoMigrate(SQLUser{}, SQLItem{}, SQLRating{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

func (d *SQLDatabase) Purge() error {
	for _, table := range []string{d.UsersTable(), d.ItemsTable(), d.RatingsTable()} {
		if err := d.gormDB.Exec("DELETE FROM " + table).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	rows := make([]SQLUser, len(users))
	for i, user := range users {
		rows[i] = SQLUser(user)
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]SQLItem, len(items))
	for i, item := range items {
		rows[i] = SQLItem(item)
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "category", "description", "rating", "image_url"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchGetItems(ctx context.Context, itemIds []string) ([]Item, error) {
	if len(itemIds) == 0 {
		return nil, nil
	}
	var rows []SQLItem
	if err := d.gormDB.WithContext(ctx).Where("item_id IN ?", itemIds).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = Item(row)
	}
	return items, nil
}

func (d *SQLDatabase) GetUsers(ctx context.Context) ([]User, error) {
	var rows []SQLUser
	if err := d.gormDB.WithContext(ctx).Order("user_id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	users := make([]User, len(rows))
	for i, row := range rows {
		users[i] = User(row)
	}
	return users, nil
}

func (d *SQLDatabase) GetItems(ctx context.Context) ([]Item, error) {
	var rows []SQLItem
	if err := d.gormDB.WithContext(ctx).Order("item_id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = Item(row)
	}
	return items, nil
}

func (d *SQLDatabase) GetRatings(ctx context.Context) ([]Rating, error) {
	var rows []SQLRating
	if err := d.gormDB.WithContext(ctx).Order("user_id, item_id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	ratings := make([]Rating, len(rows))
	for i, row := range rows {
		ratings[i] = Rating(row)
	}
	return ratings, nil
}

func (d *SQLDatabase) UpsertRating(ctx context.Context, rating Rating) error {
	if err := ValidateRating(rating); err != nil {
		return errors.Trace(err)
	}
	row := SQLRating(rating)
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score"}),
	}).Create(&row).Error
	return errors.Trace(err)
}
