package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/redis"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the data directory and configured services",
	Long: `Check verifies that the data directory is writable and that every enabled
collaborator (Postgres, Redis, Kafka) answers. It exits non-zero only when a
required check fails; unreachable collaborators are skipped during a build.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		report := preflight(cfg).Run(ctx)
		printReport(cmd.OutOrStdout(), report)
		if report.Status == health.StatusDown {
			return fmt.Errorf("preflight failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func preflight(cfg *config.Config) *health.Checker {
	c := health.NewChecker()
	c.Register("data_dir", health.WritableDir(cfg.Build.DataDir))
	c.RegisterOptional("final_index", health.FileReadable(filepath.Join(cfg.Build.DataDir, scheduler.FinalName)))
	if cfg.Postgres.Enabled {
		c.RegisterOptional("postgres", func(ctx context.Context) error {
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			return db.Close()
		})
	}
	if cfg.Redis.Enabled {
		c.RegisterOptional("redis", func(ctx context.Context) error {
			client, err := pkgredis.NewClient(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			return client.Close()
		})
	}
	if cfg.Kafka.Enabled {
		c.RegisterOptional("kafka", func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		})
	}
	return c
}
