// Package index holds the in-memory side of chunk indexing: posting lists
// and the per-chunk term map that is flushed as a sorted partial index.
package index

import (
	"slices"
)

// MemoryIndex maps term -> set of doc IDs for a single chunk. It is not safe
// for concurrent use; each chunk gets its own.
type MemoryIndex struct {
	index    map[string]map[uint64]struct{}
	docCount int
	postings int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[uint64]struct{}),
	}
}

// AddDocument records docID under every term. Repeated terms collapse.
func (m *MemoryIndex) AddDocument(docID uint64, terms []string) {
	for _, term := range terms {
		docs, exists := m.index[term]
		if !exists {
			docs = make(map[uint64]struct{})
			m.index[term] = docs
		}
		if _, seen := docs[docID]; !seen {
			docs[docID] = struct{}{}
			m.postings++
		}
	}
	m.docCount++
}

// Snapshot returns every entry, terms ascending and postings ascending. The
// order depends only on the content, never on map iteration.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: sortedPostings(docs),
		})
	}
	slices.SortStableFunc(entries, func(a, b TermEntry) int {
		switch {
		case a.Term < b.Term:
			return -1
		case a.Term > b.Term:
			return 1
		}
		return 0
	})
	return entries
}

func (m *MemoryIndex) Terms() int {
	return len(m.index)
}

func (m *MemoryIndex) DocCount() int {
	return m.docCount
}

// PostingCount is the number of (term, doc) pairs held.
func (m *MemoryIndex) PostingCount() int {
	return m.postings
}

func sortedPostings(docs map[uint64]struct{}) PostingList {
	postings := make(PostingList, 0, len(docs))
	for id := range docs {
		postings = append(postings, id)
	}
	slices.Sort(postings)
	return postings
}
