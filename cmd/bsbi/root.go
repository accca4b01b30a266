package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/config"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bsbi",
	Short: "Block sort-based inverted index builder",
	Long: `bsbi builds an inverted index over a document collection that does not fit
in memory. Documents are cut into fixed-size chunks, each chunk is indexed on
its own, and the partial indexes are merged pairwise with bounded buffers until
one final index remains.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("BSBI_CONFIG"), "path to config file")
}

// loadConfig reads the config file and installs the logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bsbierrors.ErrInvalidInput, err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(bsbierrors.ExitCode(err))
	}
}
