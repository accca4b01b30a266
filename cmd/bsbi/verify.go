package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/scheduler"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [index...]",
	Short: "Check index files for corruption",
	Long: `Verify checks the checksum, term order and posting order of each index file.
Without arguments it verifies <dataDir>/final.idx.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			args = []string{filepath.Join(cfg.Build.DataDir, scheduler.FinalName)}
		}
		w := cmd.OutOrStdout()
		var firstErr error
		for _, path := range args {
			terms, postings, err := verifyFile(path)
			if err != nil {
				fmt.Fprintf(w, "%s %s: %v\n", errorStyle.Render("FAIL"), path, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			fmt.Fprintf(w, "%s %s %s\n", successStyle.Render("OK"), path,
				dimStyle.Render(fmt.Sprintf("(%d terms, %d postings)", terms, postings)))
		}
		return firstErr
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyFile(path string) (int, uint64, error) {
	r, err := segment.OpenReader(path)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()
	if err := r.Verify(); err != nil {
		return 0, 0, err
	}
	return r.Len(), r.PostingCount(), nil
}
