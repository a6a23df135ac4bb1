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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorse-io/recsys/base/log"
	"github.com/gorse-io/recsys/cmd/version"
	"github.com/gorse-io/recsys/config"
	"github.com/gorse-io/recsys/logics"
	"github.com/gorse-io/recsys/master"
	"github.com/gorse-io/recsys/storage/data"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "recsys",
	Short: "Collaborative filtering recommender for users, items and ratings.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server and build models on request.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		m := master.NewMaster(conf)
		// stop master
		go func() {
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt)
			<-sigint
			if err := m.Shutdown(); err != nil {
				log.Logger().Error("failed to shutdown", zap.Error(err))
			}
			log.Logger().Info("stop recsys successfully")
			os.Exit(0)
		}()
		m.Serve()
	},
}

var seedCommand = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample dataset or synthetic data into the data store.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		m := master.NewMaster(conf)
		if err := m.Open(cmd.Context()); err != nil {
			log.Logger().Fatal("failed to connect data store", zap.Error(err))
		}
		defer m.DataClient.Close()
		users, items, ratings := data.SampleUsers(), data.SampleItems(), data.SampleRatings()
		if numUsers, _ := cmd.Flags().GetInt("fake"); numUsers > 0 {
			numItems, _ := cmd.Flags().GetInt("fake-items")
			density, _ := cmd.Flags().GetFloat64("density")
			seed, _ := cmd.Flags().GetInt64("seed")
			users, items, ratings = data.FakeData(numUsers, numItems, density, seed)
		}
		if err := seed(cmd.Context(), m.DataClient, users, items, ratings); err != nil {
			log.Logger().Fatal("failed to seed data store", zap.Error(err))
		}
		log.Logger().Info("seed data store",
			zap.Int("n_users", len(users)),
			zap.Int("n_items", len(items)),
			zap.Int("n_ratings", len(ratings)))
	},
}

var buildCommand = &cobra.Command{
	Use:   "build",
	Short: "Build models from the data store and write the snapshot file.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		m := master.NewMaster(conf)
		if err := m.Open(cmd.Context()); err != nil {
			log.Logger().Fatal("failed to connect data store", zap.Error(err))
		}
		defer m.DataClient.Close()
		bar := progressbar.Default(-1, "building model")
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					_ = bar.Add(1)
				}
			}
		}()
		snapshot, _, err := m.Rebuild(cmd.Context())
		close(done)
		_ = bar.Finish()
		if err != nil {
			log.Logger().Fatal("failed to build model", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Version", "Users", "Items", "Skipped", "Latent rank", "Snapshot")
		latentRank := 0
		if snapshot.Latent != nil {
			latentRank = snapshot.Latent.Rank()
		}
		_ = table.Append([]string{
			strconv.FormatInt(snapshot.Version, 10),
			strconv.Itoa(int(snapshot.Neighbors.UserIndex.Len())),
			strconv.Itoa(int(snapshot.Neighbors.ItemIndex.Len())),
			strconv.Itoa(snapshot.Skipped),
			strconv.Itoa(latentRank),
			conf.Master.CachePath,
		})
		_ = table.Render()
	},
}

var recommendCommand = &cobra.Command{
	Use:   "recommend <user-id>",
	Short: "Print recommendation for a user.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		conf.Master.SeedOnStart = false
		m := master.NewMaster(conf)
		if err := m.Open(cmd.Context()); err != nil {
			log.Logger().Fatal("failed to connect data store", zap.Error(err))
		}
		defer m.DataClient.Close()
		if err := m.Prepare(cmd.Context()); err != nil {
			log.Logger().Fatal("failed to prepare model", zap.Error(err))
		}
		n, _ := cmd.Flags().GetInt("count")
		model, _ := cmd.Flags().GetString("model")
		recommender := logics.NewRecommender(*conf, m.Cache, m.DataClient)
		result, err := recommender.Recommend(cmd.Context(), args[0], n, model)
		if err != nil {
			log.Logger().Fatal("failed to recommend", zap.Error(err))
		}
		if result.Fallback {
			fmt.Println("No prediction for this user, random items are shown.")
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Item", "Name", "Category", "Rating")
		for i, item := range result.Items {
			_ = table.Append([]string{
				strconv.Itoa(i + 1),
				item.ItemId,
				item.Name,
				item.Category,
				strconv.FormatFloat(item.Rating, 'f', 1, 64),
			})
		}
		_ = table.Render()
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.Flags().BoolP("version", "v", false, "recsys version")
	seedCommand.Flags().Int("fake", 0, "number of synthetic users (the sample dataset is used if zero)")
	seedCommand.Flags().Int("fake-items", 100, "number of synthetic items")
	seedCommand.Flags().Float64("density", 0.05, "probability that a synthetic user rates an item")
	seedCommand.Flags().Int64("seed", 0, "random seed of synthetic data")
	recommendCommand.Flags().IntP("count", "n", 0, "number of recommended items")
	recommendCommand.Flags().StringP("model", "m", "", "model used for recommendation (neighbors or latent)")
	rootCommand.AddCommand(serveCommand, seedCommand, buildCommand, recommendCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Flags().GetString("config")
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err),
			zap.String("config", configPath))
	}
	log.Logger().Info("load config", zap.String("config", configPath),
		zap.String("database", log.RedactDBURL(conf.Database.DataStore)))
	return conf
}

func seed(ctx context.Context, dataClient data.Database, users []data.User, items []data.Item, ratings []data.Rating) error {
	if err := master.Seed(ctx, dataClient, users, items, nil); err != nil {
		return errors.Trace(err)
	}
	bar := progressbar.Default(int64(len(ratings)), "inserting ratings")
	for _, rating := range ratings {
		if err := dataClient.UpsertRating(ctx, rating); err != nil {
			return errors.Trace(err)
		}
		_ = bar.Add(1)
	}
	return nil
}
