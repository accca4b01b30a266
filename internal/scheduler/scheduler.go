// Package scheduler drives pairwise merge rounds over a generation of
// partial indexes until a single final index remains.
//
// Generation p is merged into generation p+1 by pairing indexes left to
// right by position. An unpaired last index is carried forward unchanged.
// Starting from N generation-0 indexes this takes ceil(log2 N) rounds.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/merge"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/metrics"
)

// FinalName is the file name of the final index under the data root.
const FinalName = "final" + segment.Extension

// Options configures a Scheduler. Generations live under Root; the final
// index is placed at FinalPath, or Root/final.idx when FinalPath is empty.
type Options struct {
	Root            string
	FinalPath       string
	BufferSize      int
	Workers         int
	KeepGenerations bool
}

// Generation records the artifacts a completed round produced.
type Generation struct {
	Number  int
	Parts   []string
	Merges  int
	Carried bool
	Elapsed time.Duration
}

// Result describes a completed schedule.
type Result struct {
	FinalPath   string
	Rounds      int
	Terms       int
	Postings    uint64
	Generations []Generation
}

// Scheduler runs merge rounds over artifacts under a data root.
type Scheduler struct {
	opts    Options
	merger  *merge.Merger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(opts Options, m *metrics.Metrics) (*Scheduler, error) {
	merger, err := merge.New(opts.BufferSize)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.FinalPath == "" {
		opts.FinalPath = filepath.Join(opts.Root, FinalName)
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Scheduler{
		opts:    opts,
		merger:  merger,
		metrics: m,
		logger:  logger.WithComponent("merge-scheduler"),
	}, nil
}

// Rounds returns the number of merge rounds needed to reduce n indexes to one.
func Rounds(n int) int {
	r := 0
	for n > 1 {
		n = (n + 1) / 2
		r++
	}
	return r
}

// Run merges gen0 down to one index and places it at the final path. An
// empty gen0 yields an empty final index. On failure the outputs of the
// failing round are removed and earlier generations are left in place.
func (s *Scheduler) Run(ctx context.Context, gen0 []string) (Result, error) {
	finalPath := s.opts.FinalPath
	if len(gen0) == 0 {
		return s.writeEmpty(finalPath)
	}

	var res Result
	current := gen0
	for gen := 0; len(current) > 1; gen++ {
		g, err := s.round(ctx, gen, current)
		if err != nil {
			return Result{}, err
		}
		if !s.opts.KeepGenerations {
			s.discard(gen, current)
		}
		res.Generations = append(res.Generations, g)
		res.Rounds++
		current = g.Parts
	}

	if err := place(current[0], finalPath); err != nil {
		return Result{}, bsbierrors.New(err, bsbierrors.StageMerge, "placing final index").InGeneration(res.Rounds)
	}
	if !s.opts.KeepGenerations {
		s.discard(res.Rounds, current)
	}
	if err := s.describe(finalPath, &res); err != nil {
		return Result{}, err
	}
	s.logger.Info("merge schedule complete",
		"rounds", res.Rounds,
		"terms", res.Terms,
		"final", finalPath,
	)
	return res, nil
}

func (s *Scheduler) writeEmpty(finalPath string) (Result, error) {
	staged := filepath.Join(s.opts.Root, "empty"+segment.Extension)
	os.Remove(staged)
	if err := segment.WriteEntries(staged, nil); err != nil {
		return Result{}, bsbierrors.New(err, bsbierrors.StageMerge, "writing empty final index").InGeneration(0)
	}
	defer os.Remove(staged)
	if err := place(staged, finalPath); err != nil {
		return Result{}, bsbierrors.New(err, bsbierrors.StageMerge, "placing final index").InGeneration(0)
	}
	s.metrics.FinalIndexTerms.Set(0)
	s.logger.Info("no partial indexes, wrote empty final index", "final", finalPath)
	return Result{FinalPath: finalPath}, nil
}

// round merges generation gen into gen+1.
func (s *Scheduler) round(ctx context.Context, gen int, inputs []string) (Generation, error) {
	next := gen + 1
	start := time.Now()
	if err := os.MkdirAll(segment.GenerationDir(s.opts.Root, next), 0755); err != nil {
		return Generation{}, bsbierrors.New(bsbierrors.Persistence(err, "creating generation directory"), bsbierrors.StageMerge, "").InGeneration(next)
	}

	pairs := len(inputs) / 2
	outputs := make([]string, (len(inputs)+1)/2)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := 0; i < pairs; i++ {
		g.Go(func() error {
			out := segment.PartPath(s.opts.Root, next, i)
			mergeStart := time.Now()
			stats, err := s.merger.Merge(gctx, inputs[2*i], inputs[2*i+1], out)
			s.metrics.MergeDuration.Observe(time.Since(mergeStart).Seconds())
			if err != nil {
				s.metrics.MergesTotal.WithLabelValues("failed").Inc()
				return bsbierrors.Newf(err, bsbierrors.StageMerge, "pair %d", i).InGeneration(next)
			}
			s.metrics.MergesTotal.WithLabelValues("ok").Inc()
			s.metrics.MergeWindowRefills.Add(float64(stats.Refills))
			outputs[i] = out
			return nil
		})
	}
	err := g.Wait()

	carried := len(inputs)%2 == 1
	if err == nil && carried {
		out := segment.PartPath(s.opts.Root, next, pairs)
		if cerr := place(inputs[len(inputs)-1], out); cerr != nil {
			err = bsbierrors.Newf(cerr, bsbierrors.StageMerge, "carrying index %d forward", len(inputs)-1).InGeneration(next)
		} else {
			outputs[pairs] = out
			s.metrics.CarriedForwardTotal.Inc()
		}
	}

	if err != nil {
		for _, p := range outputs {
			if p != "" {
				os.Remove(p)
			}
		}
		os.Remove(segment.GenerationDir(s.opts.Root, next))
		s.logger.Error("merge round failed", "generation", next, "error", err)
		return Generation{}, err
	}

	s.metrics.MergeRoundsTotal.Inc()
	elapsed := time.Since(start)
	s.logger.Info("merge round complete",
		"generation", next,
		"inputs", len(inputs),
		"outputs", len(outputs),
		"carried", carried,
		"elapsed", elapsed,
	)
	return Generation{
		Number:  next,
		Parts:   outputs,
		Merges:  pairs,
		Carried: carried,
		Elapsed: elapsed,
	}, nil
}

// discard removes the artifacts of a consumed generation. The directory is
// only removed once it is empty.
func (s *Scheduler) discard(gen int, parts []string) {
	for _, p := range parts {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove consumed partial index", "path", p, "error", err)
		}
	}
	os.Remove(segment.GenerationDir(s.opts.Root, gen))
}

func (s *Scheduler) describe(finalPath string, res *Result) error {
	r, err := segment.OpenReader(finalPath)
	if err != nil {
		return bsbierrors.New(err, bsbierrors.StageMerge, "opening final index").InGeneration(res.Rounds)
	}
	defer r.Close()
	res.FinalPath = finalPath
	res.Terms = r.Len()
	res.Postings = r.PostingCount()
	s.metrics.FinalIndexTerms.Set(float64(res.Terms))
	return nil
}

// place makes the artifact at src also appear at dst, replacing dst if it
// exists. A hard link is used when possible, otherwise the bytes are copied.
func place(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return bsbierrors.Persistence(err, "creating directory for %s", dst)
	}
	tmp := dst + ".tmp"
	os.Remove(tmp)
	if err := os.Link(src, tmp); err != nil {
		if err := copyFile(src, tmp); err != nil {
			os.Remove(tmp)
			return err
		}
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return bsbierrors.Persistence(err, "renaming %s", dst)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return bsbierrors.Persistence(err, "opening %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return bsbierrors.Persistence(err, "creating %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return bsbierrors.Persistence(err, "copying %s", src)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return bsbierrors.Persistence(err, "syncing %s", dst)
	}
	if err := out.Close(); err != nil {
		return bsbierrors.Persistence(err, "closing %s", dst)
	}
	return nil
}
