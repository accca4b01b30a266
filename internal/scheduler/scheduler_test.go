package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/segment"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// seed writes n generation-0 partial indexes under root. Index i holds the
// term "common" and a term unique to it, both posting doc i.
func seed(t *testing.T, root string, n int) []string {
	t.Helper()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = segment.PartPath(root, 0, i)
		err := segment.WriteEntries(paths[i], []index.TermEntry{
			{Term: "common", Postings: index.PostingList{uint64(i)}},
			{Term: fmt.Sprintf("only%03d", i), Postings: index.PostingList{uint64(i)}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func newScheduler(t *testing.T, opts Options, m *metrics.Metrics) *Scheduler {
	t.Helper()
	s, err := New(opts, m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRounds(t *testing.T) {
	tests := map[int]int{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 16: 4, 17: 5, 1024: 10}
	for n, want := range tests {
		if got := Rounds(n); got != want {
			t.Errorf("Rounds(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestRunReducesToOneIndex(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			root := t.TempDir()
			gen0 := seed(t, root, n)
			m := metrics.Nop()
			res, err := newScheduler(t, Options{Root: root, BufferSize: 2, Workers: 3}, m).Run(context.Background(), gen0)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Rounds != Rounds(n) {
				t.Errorf("rounds = %d, want %d", res.Rounds, Rounds(n))
			}
			if res.FinalPath != filepath.Join(root, FinalName) {
				t.Errorf("final path = %s", res.FinalPath)
			}
			if res.Terms != n+1 {
				t.Errorf("terms = %d, want %d", res.Terms, n+1)
			}

			r, err := segment.OpenReader(res.FinalPath)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			if err := r.Verify(); err != nil {
				t.Fatalf("Verify: %v", err)
			}
			postings, ok, err := r.Lookup("common")
			if err != nil || !ok || len(postings) != n {
				t.Fatalf("common postings = %v ok=%v err=%v", postings, ok, err)
			}
			for i, doc := range postings {
				if doc != uint64(i) {
					t.Errorf("common postings %v are not 0..%d", postings, n-1)
					break
				}
			}
			if got := testutil.ToFloat64(m.MergeRoundsTotal); int(got) != res.Rounds {
				t.Errorf("rounds metric = %v", got)
			}
			if got := testutil.ToFloat64(m.MergesTotal.WithLabelValues("ok")); int(got) != n-1 {
				t.Errorf("merges metric = %v, want %d", got, n-1)
			}
		})
	}
}

func TestRunFiveIndexesCarriesForward(t *testing.T) {
	root := t.TempDir()
	gen0 := seed(t, root, 5)
	s := newScheduler(t, Options{Root: root, BufferSize: 4, KeepGenerations: true}, nil)
	res, err := s.Run(context.Background(), gen0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Rounds != 3 {
		t.Fatalf("rounds = %d, want 3", res.Rounds)
	}
	wantParts := []int{3, 2, 1}
	wantCarried := []bool{true, true, false}
	for i, g := range res.Generations {
		if g.Number != i+1 || len(g.Parts) != wantParts[i] || g.Carried != wantCarried[i] {
			t.Errorf("generation %d = %+v", i+1, g)
		}
	}

	// part_000004 is unpaired in generation 0 and again in generation 1, so
	// it reaches generation 2 unchanged.
	want, _ := os.ReadFile(gen0[4])
	for gen, pos := range map[int]int{1: 2, 2: 1} {
		got, _ := os.ReadFile(segment.PartPath(root, gen, pos))
		if string(want) != string(got) {
			t.Errorf("carried index in generation %d differs from its input", gen)
		}
	}
}

func TestRunDiscardsConsumedGenerations(t *testing.T) {
	root := t.TempDir()
	gen0 := seed(t, root, 4)
	res, err := newScheduler(t, Options{Root: root, BufferSize: 8}, nil).Run(context.Background(), gen0)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != FinalName {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("root contains %v after run, want only %s", names, FinalName)
	}
	if res.Rounds != 2 {
		t.Errorf("rounds = %d", res.Rounds)
	}
}

func TestRunEmptyWritesEmptyFinalIndex(t *testing.T) {
	root := t.TempDir()
	res, err := newScheduler(t, Options{Root: root, BufferSize: 1}, nil).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Rounds != 0 || res.Terms != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	r, err := segment.OpenReader(res.FinalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Len() != 0 {
		t.Errorf("final index has %d terms", r.Len())
	}
}

func TestRunEmptyReplacesPreviousFinalIndex(t *testing.T) {
	root := t.TempDir()
	final := filepath.Join(root, FinalName)
	if err := os.WriteFile(final, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newScheduler(t, Options{Root: root, BufferSize: 1}, nil).Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	r, err := segment.OpenReader(final)
	if err != nil {
		t.Fatalf("final index unreadable: %v", err)
	}
	r.Close()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("root holds %d entries, want only %s", len(entries), FinalName)
	}
}

func TestRunReplacesPreviousFinalIndex(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FinalName), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	gen0 := seed(t, root, 2)
	res, err := newScheduler(t, Options{Root: root, BufferSize: 1}, nil).Run(context.Background(), gen0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Terms != 3 {
		t.Errorf("terms = %d, want 3", res.Terms)
	}
}

func TestRunFailureKeepsInputGeneration(t *testing.T) {
	root := t.TempDir()
	gen0 := seed(t, root, 4)
	// Break the second pair of generation 0.
	if err := os.WriteFile(gen0[3], []byte("not an index"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newScheduler(t, Options{Root: root, BufferSize: 2, Workers: 2}, nil)
	_, err := s.Run(context.Background(), gen0)
	if !errors.Is(err, bsbierrors.ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex, got %v", err)
	}
	var stageErr *bsbierrors.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != bsbierrors.StageMerge || stageErr.Generation != 1 {
		t.Fatalf("unexpected stage error %v", err)
	}
	if _, err := os.Stat(segment.GenerationDir(root, 1)); !os.IsNotExist(err) {
		t.Error("outputs of the failed round survived")
	}
	for _, p := range gen0 {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("input %s removed after failure: %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, FinalName)); !os.IsNotExist(err) {
		t.Error("final index exists after failed run")
	}
}

func TestNewRejectsNonPositiveBuffer(t *testing.T) {
	if _, err := New(Options{Root: t.TempDir()}, nil); !errors.Is(err, bsbierrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
