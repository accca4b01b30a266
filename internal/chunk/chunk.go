// Package chunk groups a document stream into fixed-size chunks and
// persists each one as an immutable, self-contained artifact.
package chunk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/source"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/metrics"
)

const FormatVersion = 1

// Chunk is an ordered group of documents identified by its position in the
// input stream.
type Chunk struct {
	Version   int               `json:"version"`
	Ordinal   int               `json:"ordinal"`
	Documents []source.Document `json:"documents"`
}

// Path returns where chunk ordinal lives under dir.
func Path(dir string, ordinal int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk_%06d.json", ordinal))
}

// Builder pulls documents from a Source and writes one chunk file per
// ChunkSize documents.
type Builder struct {
	dir       string
	chunkSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
	docs      int
}

func NewBuilder(dir string, chunkSize int, m *metrics.Metrics) (*Builder, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", bsbierrors.ErrInvalidInput, chunkSize)
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Builder{
		dir:       dir,
		chunkSize: chunkSize,
		metrics:   m,
		logger:    logger.WithComponent("chunk-builder"),
	}, nil
}

// Build drains src into chunk files and returns their paths in ordinal
// order; len(paths) is the chunk count. A malformed source invalidates the
// whole run, so every chunk already written by this call is removed. A write
// failure discards only the chunk in progress.
func (b *Builder) Build(ctx context.Context, src source.Source) ([]string, error) {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return nil, bsbierrors.New(bsbierrors.Persistence(err, "creating chunk directory"), bsbierrors.StageChunk, "")
	}
	var paths []string
	b.docs = 0
	for ordinal := 0; ; ordinal++ {
		batch, err := b.pull(ctx, src)
		if err != nil {
			b.discard(paths)
			return nil, bsbierrors.New(err, bsbierrors.StageSource, "").InChunk(ordinal)
		}
		if len(batch) == 0 {
			break
		}
		path := Path(b.dir, ordinal)
		if err := write(path, Chunk{Version: FormatVersion, Ordinal: ordinal, Documents: batch}); err != nil {
			b.metrics.ChunksWrittenTotal.WithLabelValues("failed").Inc()
			return paths, bsbierrors.New(err, bsbierrors.StageChunk, "").InChunk(ordinal)
		}
		b.metrics.ChunksWrittenTotal.WithLabelValues("ok").Inc()
		paths = append(paths, path)
		b.docs += len(batch)
		b.logger.Debug("chunk written", "ordinal", ordinal, "documents", len(batch))
		if len(batch) < b.chunkSize {
			break
		}
	}
	b.logger.Info("chunking complete", "chunks", len(paths), "documents", b.docs, "chunk_size", b.chunkSize)
	return paths, nil
}

// Documents is the number of documents chunked by the last Build.
func (b *Builder) Documents() int {
	return b.docs
}

// pull reads up to chunkSize documents. A short batch means the source is
// exhausted.
func (b *Builder) pull(ctx context.Context, src source.Source) ([]source.Document, error) {
	batch := make([]source.Document, 0, b.chunkSize)
	for len(batch) < b.chunkSize {
		doc, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		b.metrics.DocumentsReadTotal.Inc()
		batch = append(batch, doc)
	}
	return batch, nil
}

func (b *Builder) discard(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			b.logger.Error("failed to remove chunk", "path", p, "error", err)
		}
	}
}

// write persists c at path through a temp file; nothing is left behind on
// failure and an existing chunk is never replaced.
func write(path string, c Chunk) error {
	if _, err := os.Stat(path); err == nil {
		return bsbierrors.Persistence(os.ErrExist, "chunk %s already exists", path)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return bsbierrors.Persistence(err, "creating temp chunk file")
	}
	bw := bufio.NewWriter(f)
	err = json.NewEncoder(bw).Encode(c)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		os.Remove(tmpPath)
		return bsbierrors.Persistence(err, "writing chunk %d", c.Ordinal)
	}
	return nil
}

// Read loads a chunk artifact in full.
func Read(path string) (Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("opening chunk: %w", err)
	}
	defer f.Close()
	var c Chunk
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&c); err != nil {
		return Chunk{}, bsbierrors.Parse("chunk %s: %v", path, err)
	}
	if c.Version != FormatVersion {
		return Chunk{}, bsbierrors.Parse("chunk %s: unsupported version %d", path, c.Version)
	}
	return c, nil
}
