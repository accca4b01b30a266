// Package source streams documents out of a serialized collection one at a
// time, so memory stays constant in the size of the collection.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document is one record of the collection. ID is unique across the
// collection; Title and Body together are the text that gets tokenized.
type Document struct {
	ID    uint64 `json:"id"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

// Text is the tokenizable content of the document.
func (d Document) Text() string {
	if d.Title == "" {
		return d.Body
	}
	return d.Title + " " + d.Body
}

// Source yields documents in collection order. Next returns io.EOF once the
// collection is exhausted and a ParseError if it is malformed. A Source is
// forward-only and cannot be restarted.
type Source interface {
	Next(ctx context.Context) (Document, error)
	Close() error
}

// wireDocument accepts both the native shape {"id","title","body"} and the
// raw corpus shape {"Index","Abstract"}, where Index may be a quoted integer.
type wireDocument struct {
	ID       json.RawMessage `json:"id"`
	Index    json.RawMessage `json:"Index"`
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Abstract string          `json:"Abstract"`
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return err
	}
	raw := w.ID
	if raw == nil {
		raw = w.Index
	}
	if raw == nil {
		return fmt.Errorf("document has no id")
	}
	id, err := parseID(raw)
	if err != nil {
		return err
	}
	d.ID = id
	d.Title = w.Title
	d.Body = w.Body
	if d.Body == "" {
		d.Body = w.Abstract
	}
	return nil
}

func parseID(raw json.RawMessage) (uint64, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("document id %s: %w", text, err)
		}
		text = strings.TrimSpace(s)
	}
	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("document id %s is not a non-negative integer", string(raw))
	}
	return id, nil
}
