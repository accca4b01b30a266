package lookup

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/tokenizer"
)

type memoryBackend struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string]string)}
}

func (m *memoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memoryBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func writeIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "final"+segment.Extension)
	err := segment.WriteEntries(path, []index.TermEntry{
		{Term: "award", Postings: index.PostingList{3, 7, 9}},
		{Term: "budget", Postings: index.PostingList{1}},
		{Term: "thesis", Postings: index.PostingList{2, 4}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLookupWithoutCache(t *testing.T) {
	svc, err := Open(writeIndex(t), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	hits, err := svc.Lookup(context.Background(), "award", "missing")
	if err != nil {
		t.Fatal(err)
	}
	if !hits[0].Found || !hits[0].Postings.Equal(index.PostingList{3, 7, 9}) {
		t.Errorf("award hit = %+v", hits[0])
	}
	if hits[1].Found {
		t.Errorf("missing hit = %+v", hits[1])
	}
	if svc.Terms() != 3 {
		t.Errorf("Terms = %d", svc.Terms())
	}
}

func TestLookupNormalisesQueries(t *testing.T) {
	svc, err := Open(writeIndex(t), tokenizer.Whitespace, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()
	hits, err := svc.Lookup(context.Background(), "  thesis ", "   ")
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Term != "thesis" || !hits[0].Found {
		t.Errorf("hit = %+v", hits[0])
	}
	if hits[1].Found || hits[1].Term != "" {
		t.Errorf("blank query hit = %+v", hits[1])
	}
}

func TestLookupReturnsHitPerQueryTerm(t *testing.T) {
	tokenize, err := tokenizer.New("none")
	if err != nil {
		t.Fatal(err)
	}
	svc, err := Open(writeIndex(t), tokenize, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	hits, err := svc.Lookup(context.Background(), "Thesis-Award", "budget")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3: %+v", len(hits), hits)
	}
	want := []struct {
		query, term string
		postings    index.PostingList
	}{
		{"Thesis-Award", "thesis", index.PostingList{2, 4}},
		{"Thesis-Award", "award", index.PostingList{3, 7, 9}},
		{"budget", "budget", index.PostingList{1}},
	}
	for i, w := range want {
		h := hits[i]
		if h.Query != w.query || h.Term != w.term || !h.Found || !h.Postings.Equal(w.postings) {
			t.Errorf("hit %d = %+v, want %s -> %s %v", i, h, w.query, w.term, w.postings)
		}
	}
}

func TestLookupOnEmptyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final"+segment.Extension)
	if err := segment.WriteEntries(path, nil); err != nil {
		t.Fatal(err)
	}
	svc, err := Open(path, nil, NewCache(newMemoryBackend(), time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	hits, err := svc.Lookup(context.Background(), "award", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Found || hits[1].Found {
		t.Errorf("hits on empty index = %+v", hits)
	}
	if svc.Terms() != 0 {
		t.Errorf("Terms = %d", svc.Terms())
	}
}

func TestLookupServesRepeatsFromCache(t *testing.T) {
	backend := newMemoryBackend()
	cache := NewCache(backend, time.Minute)
	svc, err := Open(writeIndex(t), nil, cache)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	for i := 0; i < 3; i++ {
		hits, err := svc.Lookup(context.Background(), "budget", "nope")
		if err != nil {
			t.Fatal(err)
		}
		if !hits[0].Found || !hits[0].Postings.Equal(index.PostingList{1}) || hits[1].Found {
			t.Fatalf("round %d hits = %+v", i, hits)
		}
	}
	hitsN, misses := cache.Stats()
	if misses != 2 || hitsN != 4 {
		t.Errorf("hits=%d misses=%d, want 4 and 2", hitsN, misses)
	}
	if backend.sets != 2 {
		t.Errorf("backend saw %d sets", backend.sets)
	}

	if err := cache.Invalidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(backend.data) != 0 {
		t.Errorf("%d keys survived invalidation", len(backend.data))
	}
}

func TestCacheLoadErrorIsReturned(t *testing.T) {
	cache := NewCache(newMemoryBackend(), time.Minute)
	boom := errors.New("boom")
	_, _, err := cache.GetOrLoad(context.Background(), "fp", "t", func() (index.PostingList, bool, error) {
		return nil, false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected load error, got %v", err)
	}
}
