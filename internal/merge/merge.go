// Package merge implements the external two-way merge of sorted partial
// indexes. Each input is read through a window of at most k entries, so
// memory is bounded by the window size, never by the size of an input.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/segment"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/logger"
)

// Stats describes one completed merge.
type Stats struct {
	TermsA   int
	TermsB   int
	TermsOut int
	Shared   int
	Refills  int
}

// window is a bounded view over one input. offset is the on-disk position of
// the next unconsumed entry and only moves by entries actually consumed.
type window struct {
	r       *segment.Reader
	k       int
	offset  int
	buf     []index.TermEntry
	pos     int
	last    string
	hasLast bool
	refills int
}

func newWindow(r *segment.Reader, k int) *window {
	return &window{r: r, k: k}
}

// peek returns the smallest unconsumed entry, refilling from disk when the
// buffer is drained. nil means the input is exhausted.
func (w *window) peek() (*index.TermEntry, error) {
	if w.pos >= len(w.buf) {
		if err := w.fill(); err != nil {
			return nil, err
		}
		if len(w.buf) == 0 {
			return nil, nil
		}
	}
	return &w.buf[w.pos], nil
}

func (w *window) fill() error {
	entries, err := w.r.ReadRange(w.offset, w.k)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if w.hasLast && e.Term <= w.last {
			return bsbierrors.Corrupt("%s: term %q at entry %d is not after %q",
				w.r.Path(), e.Term, w.offset+i, w.last)
		}
		if err := e.Postings.Validate(); err != nil {
			return bsbierrors.Corrupt("%s: term %q: %v", w.r.Path(), e.Term, err)
		}
		w.last = e.Term
		w.hasLast = true
	}
	w.buf = entries
	w.pos = 0
	if len(entries) > 0 {
		w.refills++
	}
	return nil
}

func (w *window) advance() {
	w.pos++
	w.offset++
}

// Merger merges pairs of partial indexes with a fixed window size.
type Merger struct {
	k      int
	logger *slog.Logger
}

func New(bufferSize int) (*Merger, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("%w: merge buffer size must be positive, got %d", bsbierrors.ErrInvalidInput, bufferSize)
	}
	return &Merger{
		k:      bufferSize,
		logger: logger.WithComponent("external-merger"),
	}, nil
}

// Merge writes the term-wise union of the indexes at aPath and bPath to
// outPath. Terms present in both get the ascending union of their posting
// lists. Inputs are only read. On any error outPath does not exist.
func (m *Merger) Merge(ctx context.Context, aPath, bPath, outPath string) (Stats, error) {
	a, err := segment.OpenReader(aPath)
	if err != nil {
		return Stats{}, err
	}
	defer a.Close()
	b, err := segment.OpenReader(bPath)
	if err != nil {
		return Stats{}, err
	}
	defer b.Close()

	w, err := segment.Create(outPath)
	if err != nil {
		return Stats{}, err
	}
	stats, err := m.merge(ctx, newWindow(a, m.k), newWindow(b, m.k), w)
	if err != nil {
		w.Abort()
		return Stats{}, err
	}
	if err := w.Commit(); err != nil {
		return Stats{}, err
	}
	stats.TermsA = a.Len()
	stats.TermsB = b.Len()
	m.logger.Debug("merge complete",
		"a", aPath,
		"b", bPath,
		"out", outPath,
		"terms_out", stats.TermsOut,
		"shared_terms", stats.Shared,
		"refills", stats.Refills,
	)
	return stats, nil
}

func (m *Merger) merge(ctx context.Context, wa, wb *window, out *segment.Writer) (Stats, error) {
	var stats Stats
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		ea, err := wa.peek()
		if err != nil {
			return stats, err
		}
		eb, err := wb.peek()
		if err != nil {
			return stats, err
		}

		var next index.TermEntry
		switch {
		case ea == nil && eb == nil:
			stats.Refills = wa.refills + wb.refills
			return stats, nil
		case eb == nil || (ea != nil && ea.Term < eb.Term):
			next = *ea
			wa.advance()
		case ea == nil || eb.Term < ea.Term:
			next = *eb
			wb.advance()
		default:
			next = index.TermEntry{Term: ea.Term, Postings: index.Union(ea.Postings, eb.Postings)}
			wa.advance()
			wb.advance()
			stats.Shared++
		}
		if err := out.Append(next); err != nil {
			return stats, err
		}
		stats.TermsOut++
	}
}
