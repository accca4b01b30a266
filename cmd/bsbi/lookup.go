package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/scheduler"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/redis"
)

var (
	lookupIndex string
	lookupRaw   bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup term...",
	Short: "Print the posting lists of terms",
	Long: `Lookup normalises each term with the configured tokenizer and prints the
document IDs that contain it. With Redis enabled, answers are cached per index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := lookupIndex
		if path == "" {
			path = filepath.Join(cfg.Build.DataDir, scheduler.FinalName)
		}

		var tokenize tokenizer.TokenizeFunc
		if !lookupRaw {
			if tokenize, err = tokenizer.New(cfg.Tokenizer.Stemmer); err != nil {
				return fmt.Errorf("%w: %v", bsbierrors.ErrInvalidInput, err)
			}
		}

		ctx := cmd.Context()
		var cache *lookup.Cache
		if cfg.Redis.Enabled {
			client, err := pkgredis.NewClient(ctx, cfg.Redis)
			if err != nil {
				slog.Warn("posting cache disabled", "error", err)
			} else {
				defer client.Close()
				cache = lookup.NewCache(client, cfg.Redis.CacheTTL)
			}
		}

		svc, err := lookup.Open(path, tokenize, cache)
		if err != nil {
			return err
		}
		defer svc.Close()

		hits, err := svc.Lookup(ctx, args...)
		if err != nil {
			return err
		}
		printHits(cmd.OutOrStdout(), hits)
		return nil
	},
}

func init() {
	lookupCmd.Flags().StringVarP(&lookupIndex, "index", "i", "", "index file (default <dataDir>/final.idx)")
	lookupCmd.Flags().BoolVar(&lookupRaw, "raw", false, "look terms up verbatim, without tokenizing")

	rootCmd.AddCommand(lookupCmd)
}
