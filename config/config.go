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

package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const (
	ModelNeighbors = "neighbors"
	ModelLatent    = "latent"
)

// Config is the configuration for the recommender.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Master    MasterConfig    `mapstructure:"master"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// DatabaseConfig is the configuration for the rating store.
type DatabaseConfig struct {
	DataStore   string      `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix string      `mapstructure:"table_prefix"`
	MySQL       MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig is the configuration for SQL connection pools. The isolation
// level applies to MySQL only.
type MySQLConfig struct {
	IsolationLevel  string        `mapstructure:"isolation_level" validate:"oneof=READ-UNCOMMITTED READ-COMMITTED REPEATABLE-READ SERIALIZABLE"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// ServerConfig is the configuration for the REST server.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port" validate:"gte=0,lte=65535"`
	DefaultN       int      `mapstructure:"default_n" validate:"gt=0,ltefield=MaxN"`
	MaxN           int      `mapstructure:"max_n" validate:"gt=0,lte=20"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimit      int      `mapstructure:"rate_limit" validate:"gte=0"`
}

// RecommendConfig is the configuration for model building and serving.
type RecommendConfig struct {
	DefaultModel string `mapstructure:"default_model" validate:"oneof=neighbors latent"`
	MaxRank      int    `mapstructure:"max_rank" validate:"gt=0"`
	FallbackSize int    `mapstructure:"fallback_size" validate:"gte=0"`
	BuildJobs    int    `mapstructure:"build_jobs" validate:"gt=0"`
}

// MasterConfig is the configuration for the model builder.
type MasterConfig struct {
	CachePath      string `mapstructure:"cache_path"`
	RebuildOnStart bool   `mapstructure:"rebuild_on_start"`
	SeedOnStart    bool   `mapstructure:"seed_on_start"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore: "sqlite://recsys.db",
			MySQL: MySQLConfig{
				IsolationLevel: "READ-UNCOMMITTED",
			},
		},
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8000,
			DefaultN: 8,
			MaxN:     20,
			AllowedOrigins: []string{
				"http://localhost:8080",
				"http://localhost:3000",
				"http://127.0.0.1:8080",
			},
		},
		Recommend: RecommendConfig{
			DefaultModel: ModelNeighbors,
			MaxRank:      10,
			FallbackSize: 20,
			BuildJobs:    runtime.NumCPU(),
		},
		Tracing: TracingConfig{
			Exporter: "otlp",
			Sampler:  "always",
			Ratio:    1,
		},
		Master: MasterConfig{
			CachePath:   "recsys.cache",
			SeedOnStart: true,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	viper.SetDefault("database.mysql.isolation_level", defaultConfig.Database.MySQL.IsolationLevel)
	viper.SetDefault("database.mysql.max_open_conns", defaultConfig.Database.MySQL.MaxOpenConns)
	viper.SetDefault("database.mysql.max_idle_conns", defaultConfig.Database.MySQL.MaxIdleConns)
	viper.SetDefault("database.mysql.conn_max_lifetime", defaultConfig.Database.MySQL.ConnMaxLifetime)
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	viper.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	viper.SetDefault("server.max_n", defaultConfig.Server.MaxN)
	viper.SetDefault("server.allowed_origins", defaultConfig.Server.AllowedOrigins)
	viper.SetDefault("server.rate_limit", defaultConfig.Server.RateLimit)
	// [recommend]
	viper.SetDefault("recommend.default_model", defaultConfig.Recommend.DefaultModel)
	viper.SetDefault("recommend.max_rank", defaultConfig.Recommend.MaxRank)
	viper.SetDefault("recommend.fallback_size", defaultConfig.Recommend.FallbackSize)
	viper.SetDefault("recommend.build_jobs", defaultConfig.Recommend.BuildJobs)
	// [master]
	viper.SetDefault("master.cache_path", defaultConfig.Master.CachePath)
	viper.SetDefault("master.rebuild_on_start", defaultConfig.Master.RebuildOnStart)
	viper.SetDefault("master.seed_on_start", defaultConfig.Master.SeedOnStart)
	// [tracing]
	viper.SetDefault("tracing.enable_tracing", defaultConfig.Tracing.EnableTracing)
	viper.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	viper.SetDefault("tracing.collector_endpoint", defaultConfig.Tracing.CollectorEndpoint)
	viper.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	viper.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type environmentVariable struct {
	key string
	env string
}

func bindEnv() {
	for _, v := range []environmentVariable{
		{"database.data_store", "RECSYS_DATA_STORE"},
		{"database.table_prefix", "RECSYS_TABLE_PREFIX"},
		{"server.host", "RECSYS_SERVER_HOST"},
		{"server.port", "RECSYS_SERVER_PORT"},
		{"server.allowed_origins", "RECSYS_ALLOWED_ORIGINS"},
		{"recommend.default_model", "RECSYS_DEFAULT_MODEL"},
		{"recommend.build_jobs", "RECSYS_BUILD_JOBS"},
		{"master.cache_path", "RECSYS_CACHE_PATH"},
	} {
		if err := viper.BindEnv(v.key, v.env); err != nil {
			panic(err)
		}
	}
}

// LoadConfig loads configuration from a TOML file. Missing keys take default
// values and RECSYS_* environment variables take precedence over the file.
// An empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	setDefault()
	bindEnv()
	viper.SetEnvPrefix("recsys")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if path != "" {
		viper.SetConfigFile(path)
		viper.SetConfigType("toml")
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
