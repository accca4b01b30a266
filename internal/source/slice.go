package source

import (
	"context"
	"io"
)

// SliceSource serves documents already in memory. Used by tests and by
// callers that index small collections programmatically.
type SliceSource struct {
	docs []Document
	pos  int
}

func NewSliceSource(docs []Document) *SliceSource {
	return &SliceSource{docs: docs}
}

func (s *SliceSource) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if s.pos >= len(s.docs) {
		return Document{}, io.EOF
	}
	doc := s.docs[s.pos]
	s.pos++
	return doc, nil
}

func (s *SliceSource) Close() error {
	return nil
}
