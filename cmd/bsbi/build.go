package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/manifest"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/config"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/redis"
)

var (
	buildSource     string
	buildFromKafka  bool
	buildChunkSize  int
	buildBufferSize int
	buildKeep       bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the final index from a document source",
	Long: `Build reads a JSON array of documents (or replays a Kafka partition with
--kafka), indexes it chunk by chunk and merges the partial indexes into
<dataDir>/final.idx.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyBuildFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %v", bsbierrors.ErrInvalidInput, err)
		}
		if buildSource == "" && !buildFromKafka {
			return fmt.Errorf("%w: one of --source or --kafka is required", bsbierrors.ErrInvalidInput)
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return runBuild(ctx, cmd, cfg)
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildSource, "source", "s", "", "JSON document collection to index")
	buildCmd.Flags().BoolVar(&buildFromKafka, "kafka", false, "replay the configured Kafka topic partition instead of a file")
	buildCmd.Flags().IntVar(&buildChunkSize, "chunk-size", 0, "documents per chunk (overrides config)")
	buildCmd.Flags().IntVarP(&buildBufferSize, "buffer", "k", 0, "merge window size in entries (overrides config)")
	buildCmd.Flags().BoolVar(&buildKeep, "keep-generations", false, "keep chunk and intermediate generation artifacts")

	rootCmd.AddCommand(buildCmd)
}

func applyBuildFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("chunk-size") {
		cfg.Build.ChunkSize = buildChunkSize
	}
	if cmd.Flags().Changed("buffer") {
		cfg.Build.MergeBufferSize = buildBufferSize
	}
	if buildKeep {
		cfg.Build.KeepGenerations = true
	}
}

func runBuild(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Build.DataDir, 0755); err != nil {
		return bsbierrors.Persistence(err, "creating data directory")
	}
	tokenize, err := tokenizer.New(cfg.Tokenizer.Stemmer)
	if err != nil {
		return fmt.Errorf("%w: %v", bsbierrors.ErrInvalidInput, err)
	}

	checker := health.NewChecker()
	checker.Register("data_dir", health.WritableDir(cfg.Build.DataDir))

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, checker.ReadyHandler())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	store, err := manifest.Open(filepath.Join(cfg.Build.DataDir, "manifest.db"))
	if err != nil {
		return bsbierrors.Persistence(err, "opening build manifest")
	}
	defer store.Close()

	hooks := pipeline.Hooks{Manifest: store}
	closers := connectHooks(ctx, cfg, &hooks, checker)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	src, name, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	p, err := pipeline.New(pipeline.OptionsFromConfig(cfg.Build, tokenize), m, hooks)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx, src, name)
	if err != nil {
		return err
	}
	printBuildSummary(cmd.OutOrStdout(), res)
	return nil
}

func openSource(ctx context.Context, cfg *config.Config) (source.Source, string, error) {
	if buildFromKafka {
		src, err := source.NewKafkaSource(ctx, cfg.Kafka.Brokers, cfg.Source.Topic, cfg.Source.Partition)
		if err != nil {
			return nil, "", bsbierrors.New(err, bsbierrors.StageSource, "opening kafka source")
		}
		return src, fmt.Sprintf("kafka://%s/%d", cfg.Source.Topic, cfg.Source.Partition), nil
	}
	src, err := source.OpenJSONFile(buildSource)
	if err != nil {
		return nil, "", bsbierrors.New(err, bsbierrors.StageSource, "")
	}
	return src, buildSource, nil
}

// connectHooks attaches the optional collaborators enabled in cfg. A
// collaborator that cannot be reached is skipped with a warning.
func connectHooks(ctx context.Context, cfg *config.Config, hooks *pipeline.Hooks, checker *health.Checker) []func() {
	var closers []func()

	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("build registry disabled", "error", err)
		} else {
			reg := registry.New(db)
			if err := reg.Init(ctx); err != nil {
				slog.Warn("build registry disabled", "error", err)
				db.Close()
			} else {
				hooks.Registry = reg
				checker.RegisterOptional("postgres", db.Ping)
				closers = append(closers, func() { db.Close() })
			}
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.IndexComplete)
		hooks.Notifier = producer
		checker.RegisterOptional("kafka", func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		})
		closers = append(closers, func() { producer.Close() })
	}

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("posting cache invalidation disabled", "error", err)
		} else {
			hooks.Invalidator = lookup.NewCache(client, cfg.Redis.CacheTTL)
			checker.RegisterOptional("redis", client.Ping)
			closers = append(closers, func() { client.Close() })
		}
	}

	return closers
}
