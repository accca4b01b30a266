package manifest

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadBuild(t *testing.T) {
	s := openStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := Build{
		ID:        NewBuildID(started),
		Status:    StatusRunning,
		Source:    "docs.json",
		ChunkSize: 2000,
		StartedAt: started,
	}
	if err := s.SaveBuild(b); err != nil {
		t.Fatal(err)
	}

	b.Status = StatusSucceeded
	b.Terms = 42
	if err := s.SaveBuild(b); err != nil {
		t.Fatal(err)
	}

	got, err := s.Build(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusSucceeded || got.Terms != 42 || !got.StartedAt.Equal(started) {
		t.Errorf("loaded %+v", got)
	}
}

func TestBuildNotFound(t *testing.T) {
	s := openStore(t)
	if _, err := s.Build("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Latest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest on empty manifest: %v", err)
	}
}

func TestLatestFollowsStartOrder(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{time.Hour, 3 * time.Hour, 2 * time.Hour} {
		if err := s.SaveBuild(Build{ID: NewBuildID(base.Add(offset)), StartedAt: base.Add(offset)}); err != nil {
			t.Fatal(err)
		}
	}
	latest, err := s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if !latest.StartedAt.Equal(base.Add(3 * time.Hour)) {
		t.Errorf("latest started at %v", latest.StartedAt)
	}
}

func TestChunksAndGenerationsAreScopedToBuild(t *testing.T) {
	s := openStore(t)
	if err := s.SaveChunks("a", []string{"a0", "a1", "a2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveChunks("ab", []string{"ab0"}); err != nil {
		t.Fatal(err)
	}
	for n := 1; n <= 2; n++ {
		if err := s.SaveGeneration("a", Generation{Number: n, Parts: []string{"p"}, Merges: 3 - n}); err != nil {
			t.Fatal(err)
		}
	}

	chunks, err := s.Chunks("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 || chunks[0] != "a0" || chunks[2] != "a2" {
		t.Errorf("chunks = %v", chunks)
	}
	gens, err := s.Generations("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 2 || gens[0].Number != 1 || gens[1].Merges != 1 {
		t.Errorf("generations = %+v", gens)
	}
	if gens, _ := s.Generations("ab"); len(gens) != 0 {
		t.Errorf("build ab has generations %+v", gens)
	}
}

func TestSaveBuildRequiresID(t *testing.T) {
	if err := openStore(t).SaveBuild(Build{}); err == nil {
		t.Error("expected error for empty id")
	}
}
