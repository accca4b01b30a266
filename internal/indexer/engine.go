// Package indexer turns chunk artifacts into generation-0 partial indexes.
// Each chunk is indexed in isolation, so memory is bounded by one chunk's
// vocabulary and chunks can be indexed in parallel.
package indexer

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/tokenizer"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/metrics"
)

// Engine indexes chunks into partial indexes under a data root.
type Engine struct {
	root     string
	tokenize tokenizer.TokenizeFunc
	workers  int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewEngine(root string, tokenize tokenizer.TokenizeFunc, workers int, m *metrics.Metrics) *Engine {
	if tokenize == nil {
		tokenize = tokenizer.Tokenize
	}
	if workers <= 0 {
		workers = 1
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Engine{
		root:     root,
		tokenize: tokenize,
		workers:  workers,
		metrics:  m,
		logger:   logger.WithComponent("chunk-indexer"),
	}
}

// IndexChunk indexes the chunk at chunkPath into generation-0 position pos
// and returns the artifact path.
func (e *Engine) IndexChunk(ctx context.Context, chunkPath string, pos int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := chunk.Read(chunkPath)
	if err != nil {
		return "", err
	}
	mi := index.NewMemoryIndex()
	for _, doc := range c.Documents {
		mi.AddDocument(doc.ID, e.tokenize(doc.Text()))
	}
	out := segment.PartPath(e.root, 0, pos)
	if err := segment.WriteEntries(out, mi.Snapshot()); err != nil {
		return "", err
	}
	e.logger.Debug("chunk indexed",
		"chunk", pos,
		"documents", mi.DocCount(),
		"terms", mi.Terms(),
		"postings", mi.PostingCount(),
	)
	return out, nil
}

// IndexAll indexes every chunk and returns generation 0 in chunk order,
// regardless of which worker finishes first. On failure no generation-0
// artifact of this call survives.
func (e *Engine) IndexAll(ctx context.Context, chunkPaths []string) ([]string, error) {
	if err := os.MkdirAll(segment.GenerationDir(e.root, 0), 0755); err != nil {
		return nil, bsbierrors.New(bsbierrors.Persistence(err, "creating generation 0 directory"), bsbierrors.StageIndex, "").InGeneration(0)
	}
	parts := make([]string, len(chunkPaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range chunkPaths {
		g.Go(func() error {
			out, err := e.IndexChunk(gctx, p, i)
			if err != nil {
				e.metrics.PartialIndexesTotal.WithLabelValues("failed").Inc()
				return bsbierrors.New(err, bsbierrors.StageIndex, "").InChunk(i).InGeneration(0)
			}
			e.metrics.PartialIndexesTotal.WithLabelValues("ok").Inc()
			parts[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, p := range parts {
			if p != "" {
				os.Remove(p)
			}
		}
		return nil, err
	}
	e.logger.Info("chunks indexed", "partial_indexes", len(parts), "workers", e.workers)
	return parts, nil
}
