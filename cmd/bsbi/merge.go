package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/merge"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
)

var (
	mergeOut    string
	mergeBuffer int
)

var mergeCmd = &cobra.Command{
	Use:   "merge a.idx b.idx -o out.idx",
	Short: "Merge two partial indexes",
	Long: `Merge runs one external two-way merge. Both inputs must be sorted partial
indexes; the output must not exist yet.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if mergeOut == "" {
			return fmt.Errorf("%w: --out is required", bsbierrors.ErrInvalidInput)
		}
		k := cfg.Build.MergeBufferSize
		if cmd.Flags().Changed("buffer") {
			k = mergeBuffer
		}
		m, err := merge.New(k)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		stats, err := m.Merge(ctx, args[0], args[1], mergeOut)
		if err != nil {
			return err
		}
		printMergeSummary(cmd.OutOrStdout(), mergeOut, stats)
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", "", "output index file")
	mergeCmd.Flags().IntVarP(&mergeBuffer, "buffer", "k", 0, "merge window size in entries (overrides config)")

	rootCmd.AddCommand(mergeCmd)
}
