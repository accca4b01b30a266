// Package pipeline runs a complete index build: the document source is cut
// into chunks, every chunk is indexed into a generation-0 partial index,
// and the merge scheduler reduces those to the final index.
//
// Each build works in its own directory under DataDir/work so a failed
// build never disturbs the final index of an earlier one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/manifest"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/config"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/tracing"
)

// Options are the build tunables.
type Options struct {
	DataDir         string
	ChunkSize       int
	BufferSize      int
	IndexWorkers    int
	MergeWorkers    int
	KeepGenerations bool
	Tokenize        tokenizer.TokenizeFunc
}

// OptionsFromConfig maps the build section of the configuration.
func OptionsFromConfig(cfg config.BuildConfig, tokenize tokenizer.TokenizeFunc) Options {
	return Options{
		DataDir:         cfg.DataDir,
		ChunkSize:       cfg.ChunkSize,
		BufferSize:      cfg.MergeBufferSize,
		IndexWorkers:    cfg.IndexWorkers,
		MergeWorkers:    cfg.MergeWorkers,
		KeepGenerations: cfg.KeepGenerations,
		Tokenize:        tokenize,
	}
}

// Registry records build outcomes in a shared store.
type Registry interface {
	Started(ctx context.Context, b manifest.Build) error
	Finished(ctx context.Context, b manifest.Build) error
}

// Notifier announces completed builds. *kafka.Producer satisfies it.
type Notifier interface {
	Publish(ctx context.Context, key string, value any) error
}

// Invalidator drops caches derived from the previous final index.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Hooks are the optional collaborators of a build. Failures inside a hook
// are logged and never fail the build.
type Hooks struct {
	Manifest    *manifest.Store
	Registry    Registry
	Notifier    Notifier
	Invalidator Invalidator
}

// Completion is the event published after a successful build.
type Completion struct {
	BuildID    string    `json:"build_id"`
	FinalPath  string    `json:"final_path"`
	Documents  int       `json:"documents"`
	Chunks     int       `json:"chunks"`
	Rounds     int       `json:"rounds"`
	Terms      int       `json:"terms"`
	Postings   uint64    `json:"postings"`
	FinishedAt time.Time `json:"finished_at"`
}

// Result summarises a successful build.
type Result struct {
	BuildID   string
	Documents int
	Chunks    int
	Rounds    int
	Terms     int
	Postings  uint64
	FinalPath string
	Elapsed   time.Duration
}

type Pipeline struct {
	opts    Options
	metrics *metrics.Metrics
	hooks   Hooks
	now     func() time.Time
}

func New(opts Options, m *metrics.Metrics, hooks Hooks) (*Pipeline, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory is required", bsbierrors.ErrInvalidInput)
	}
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", bsbierrors.ErrInvalidInput, opts.ChunkSize)
	}
	if opts.BufferSize <= 0 {
		return nil, fmt.Errorf("%w: merge buffer size must be positive, got %d", bsbierrors.ErrInvalidInput, opts.BufferSize)
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Pipeline{opts: opts, metrics: m, hooks: hooks, now: time.Now}, nil
}

// FinalPath is where successful builds place the final index.
func (p *Pipeline) FinalPath() string {
	return filepath.Join(p.opts.DataDir, scheduler.FinalName)
}

// Run builds the final index from src. sourceName is recorded with the
// build. The returned error is a *errors.StageError naming the failing
// stage, chunk and generation whenever one applies.
func (p *Pipeline) Run(ctx context.Context, src source.Source, sourceName string) (Result, error) {
	started := p.now()
	build := manifest.Build{
		ID:               manifest.NewBuildID(started),
		Status:           manifest.StatusRunning,
		Source:           sourceName,
		ChunkSize:        p.opts.ChunkSize,
		BufferSize:       p.opts.BufferSize,
		StartedAt:        started,
		FailedChunk:      -1,
		FailedGeneration: -1,
	}
	ctx = logger.WithBuildID(ctx, build.ID)
	log := logger.FromContext(ctx).With("component", "pipeline")
	ctx, root := tracing.StartRoot(ctx, "build", build.ID)
	defer root.Log(log)

	workDir := filepath.Join(p.opts.DataDir, "work", build.ID)
	log.Info("build started",
		"source", sourceName,
		"chunk_size", p.opts.ChunkSize,
		"merge_buffer", p.opts.BufferSize,
		"work_dir", workDir,
	)
	p.saveBuild(log, build)
	if p.hooks.Registry != nil {
		if err := p.hooks.Registry.Started(ctx, build); err != nil {
			log.Warn("build registry unavailable", "error", err)
		}
	}

	res, err := p.run(ctx, workDir, src, &build)
	root.End(err)
	build.FinishedAt = p.now()
	if err != nil {
		p.fail(ctx, log, build, err)
		return Result{}, err
	}

	res.BuildID = build.ID
	res.Elapsed = build.FinishedAt.Sub(started)
	p.metrics.BuildDurationSeconds.Observe(res.Elapsed.Seconds())
	build.Status = manifest.StatusSucceeded
	p.saveBuild(log, build)
	p.announce(ctx, log, build)
	if !p.opts.KeepGenerations {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("failed to remove work directory", "path", workDir, "error", err)
		}
	}
	log.Info("build complete",
		"documents", res.Documents,
		"chunks", res.Chunks,
		"rounds", res.Rounds,
		"terms", res.Terms,
		"final", res.FinalPath,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, workDir string, src source.Source, build *manifest.Build) (Result, error) {
	builder, err := chunk.NewBuilder(filepath.Join(workDir, "chunks"), p.opts.ChunkSize, p.metrics)
	if err != nil {
		return Result{}, err
	}
	sched, err := scheduler.New(scheduler.Options{
		Root:            workDir,
		FinalPath:       p.FinalPath(),
		BufferSize:      p.opts.BufferSize,
		Workers:         p.opts.MergeWorkers,
		KeepGenerations: p.opts.KeepGenerations,
	}, p.metrics)
	if err != nil {
		return Result{}, err
	}
	engine := indexer.NewEngine(workDir, p.opts.Tokenize, p.opts.IndexWorkers, p.metrics)

	chunkCtx, span := tracing.Start(ctx, "chunk")
	chunks, err := builder.Build(chunkCtx, src)
	if span.End(err) != nil {
		return Result{}, err
	}
	span.SetAttr("chunks", len(chunks))
	span.SetAttr("documents", builder.Documents())
	build.Documents = builder.Documents()
	build.Chunks = len(chunks)
	if p.hooks.Manifest != nil {
		if err := p.hooks.Manifest.SaveChunks(build.ID, chunks); err != nil {
			logger.FromContext(ctx).Warn("failed to record chunks in manifest", "error", err)
		}
	}

	indexCtx, span := tracing.Start(ctx, "index")
	parts, err := engine.IndexAll(indexCtx, chunks)
	if span.End(err) != nil {
		return Result{}, err
	}
	span.SetAttr("partial_indexes", len(parts))
	p.saveGeneration(ctx, build.ID, manifest.Generation{Number: 0, Parts: parts})

	mergeCtx, span := tracing.Start(ctx, "merge")
	sres, err := sched.Run(mergeCtx, parts)
	if span.End(err) != nil {
		return Result{}, err
	}
	span.SetAttr("rounds", sres.Rounds)
	span.SetAttr("terms", sres.Terms)
	for _, g := range sres.Generations {
		p.saveGeneration(ctx, build.ID, manifest.Generation{
			Number:  g.Number,
			Parts:   g.Parts,
			Merges:  g.Merges,
			Carried: g.Carried,
		})
	}

	build.Rounds = sres.Rounds
	build.Terms = sres.Terms
	build.Postings = sres.Postings
	build.FinalPath = sres.FinalPath
	return Result{
		Documents: build.Documents,
		Chunks:    build.Chunks,
		Rounds:    sres.Rounds,
		Terms:     sres.Terms,
		Postings:  sres.Postings,
		FinalPath: sres.FinalPath,
	}, nil
}

func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, build manifest.Build, err error) {
	build.Status = manifest.StatusFailed
	build.Error = err.Error()
	var stageErr *bsbierrors.StageError
	if errors.As(err, &stageErr) {
		build.FailedStage = string(stageErr.Stage)
		build.FailedChunk = stageErr.Chunk
		build.FailedGeneration = stageErr.Generation
	}
	p.saveBuild(log, build)
	if p.hooks.Registry != nil {
		if rerr := p.hooks.Registry.Finished(ctx, build); rerr != nil {
			log.Warn("failed to record build failure in registry", "error", rerr)
		}
	}
	log.Error("build failed",
		"stage", build.FailedStage,
		"chunk", build.FailedChunk,
		"generation", build.FailedGeneration,
		"error", err,
	)
}

// announce runs the post-build hooks of a successful build.
func (p *Pipeline) announce(ctx context.Context, log *slog.Logger, build manifest.Build) {
	if p.hooks.Registry != nil {
		if err := p.hooks.Registry.Finished(ctx, build); err != nil {
			log.Warn("failed to record build in registry", "error", err)
		}
	}
	if p.hooks.Invalidator != nil {
		if err := p.hooks.Invalidator.Invalidate(ctx); err != nil {
			log.Warn("failed to invalidate posting cache", "error", err)
		}
	}
	if p.hooks.Notifier != nil {
		event := Completion{
			BuildID:    build.ID,
			FinalPath:  build.FinalPath,
			Documents:  build.Documents,
			Chunks:     build.Chunks,
			Rounds:     build.Rounds,
			Terms:      build.Terms,
			Postings:   build.Postings,
			FinishedAt: build.FinishedAt,
		}
		if err := p.hooks.Notifier.Publish(ctx, build.ID, event); err != nil {
			log.Warn("failed to publish build completion", "error", err)
		}
	}
}

func (p *Pipeline) saveBuild(log *slog.Logger, build manifest.Build) {
	if p.hooks.Manifest == nil {
		return
	}
	if err := p.hooks.Manifest.SaveBuild(build); err != nil {
		log.Warn("failed to record build in manifest", "status", build.Status, "error", err)
	}
}

func (p *Pipeline) saveGeneration(ctx context.Context, buildID string, g manifest.Generation) {
	if p.hooks.Manifest == nil {
		return
	}
	if err := p.hooks.Manifest.SaveGeneration(buildID, g); err != nil {
		logger.FromContext(ctx).Warn("failed to record generation in manifest", "generation", g.Number, "error", err)
	}
}
