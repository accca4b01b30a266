package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
)

// JSONSource streams a top-level JSON array of document objects. Only the
// current document is held in memory.
type JSONSource struct {
	dec     *json.Decoder
	closer  io.Closer
	started bool
	done    bool
	count   int
}

// NewJSONSource reads documents from r.
func NewJSONSource(r io.Reader) *JSONSource {
	return &JSONSource{dec: json.NewDecoder(r)}
}

// OpenJSONFile streams documents from the file at path.
func OpenJSONFile(path string) (*JSONSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document source: %w", err)
	}
	s := NewJSONSource(bufio.NewReaderSize(f, 256*1024))
	s.closer = f
	return s, nil
}

func (s *JSONSource) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if s.done {
		return Document{}, io.EOF
	}
	if !s.started {
		tok, err := s.dec.Token()
		if errors.Is(err, io.EOF) {
			return Document{}, bsbierrors.Parse("empty input, expected a JSON array")
		}
		if err != nil {
			return Document{}, bsbierrors.Parse("reading array start: %v", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return Document{}, bsbierrors.Parse("expected a JSON array, found %v", tok)
		}
		s.started = true
	}
	if !s.dec.More() {
		if err := s.finish(); err != nil {
			return Document{}, err
		}
		return Document{}, io.EOF
	}
	var doc Document
	if err := s.dec.Decode(&doc); err != nil {
		return Document{}, bsbierrors.Parse("document %d: %v", s.count, err)
	}
	s.count++
	return doc, nil
}

// finish consumes the closing bracket and rejects anything after it.
func (s *JSONSource) finish() error {
	s.done = true
	tok, err := s.dec.Token()
	if err != nil {
		return bsbierrors.Parse("after document %d: %v", s.count, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != ']' {
		return bsbierrors.Parse("after document %d: unexpected %v", s.count, tok)
	}
	if _, err := s.dec.Token(); !errors.Is(err, io.EOF) {
		return bsbierrors.Parse("trailing data after document array")
	}
	return nil
}

// Count is the number of documents returned so far.
func (s *JSONSource) Count() int {
	return s.count
}

func (s *JSONSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
