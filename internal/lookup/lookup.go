// Package lookup answers term queries against a final index, optionally
// through a Redis-backed posting cache.
package lookup

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/tokenizer"
)

// Hit is the answer for one query term.
type Hit struct {
	Query    string
	Term     string
	Found    bool
	Postings index.PostingList
}

// Service resolves terms against one open index.
type Service struct {
	reader      *segment.Reader
	fingerprint string
	tokenize    tokenizer.TokenizeFunc
	cache       *Cache
}

// Open opens the index at path. tokenize normalises query terms the way
// documents were normalised at build time; nil looks terms up verbatim.
// cache may be nil.
func Open(path string, tokenize tokenizer.TokenizeFunc, cache *Cache) (*Service, error) {
	r, err := segment.OpenReader(path)
	if err != nil {
		return nil, err
	}
	h := r.Header()
	return &Service{
		reader:      r,
		fingerprint: fmt.Sprintf("%08x-%d", h.Checksum, h.TermCount),
		tokenize:    tokenize,
		cache:       cache,
	}, nil
}

// Lookup resolves each query. A query that normalises to several terms
// yields one hit per term, in order. A query that normalises to nothing,
// such as a stop word, is reported as a single not-found hit.
func (s *Service) Lookup(ctx context.Context, queries ...string) ([]Hit, error) {
	hits := make([]Hit, 0, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		terms := []string{q}
		if s.tokenize != nil {
			terms = s.tokenize(q)
			if len(terms) == 0 {
				hits = append(hits, Hit{Query: q})
				continue
			}
		}
		for _, term := range terms {
			postings, found, err := s.term(ctx, term)
			if err != nil {
				return nil, err
			}
			hits = append(hits, Hit{Query: q, Term: term, Found: found, Postings: postings})
		}
	}
	return hits, nil
}

func (s *Service) term(ctx context.Context, term string) (index.PostingList, bool, error) {
	if s.cache == nil {
		return s.reader.Lookup(term)
	}
	return s.cache.GetOrLoad(ctx, s.fingerprint, term, func() (index.PostingList, bool, error) {
		return s.reader.Lookup(term)
	})
}

func (s *Service) Terms() int {
	return s.reader.Len()
}

func (s *Service) Close() error {
	return s.reader.Close()
}
