package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestStageErrorUnwrapsToSentinel(t *testing.T) {
	err := New(Corrupt("term %q after %q", "a", "b"), StageMerge, "pair 2").InGeneration(3)
	wrapped := fmt.Errorf("running pipeline: %w", err)

	if !errors.Is(wrapped, ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex in chain, got %v", wrapped)
	}
	var stageErr *StageError
	if !errors.As(wrapped, &stageErr) {
		t.Fatal("expected StageError in chain")
	}
	if stageErr.Generation != 3 || stageErr.Chunk != -1 {
		t.Errorf("unexpected context: generation=%d chunk=%d", stageErr.Generation, stageErr.Chunk)
	}
	want := `merge stage generation 3: pair 2: corrupt partial index: term "a" after "b"`
	if err.Error() != want {
		t.Errorf("unexpected message:\ngot:  %q\nwant: %q", err.Error(), want)
	}
}

func TestPersistenceKeepsCause(t *testing.T) {
	err := Persistence(io.ErrShortWrite, "writing chunk %d", 4)
	if !errors.Is(err, ErrPersistence) {
		t.Error("expected ErrPersistence")
	}
	if !errors.Is(err, io.ErrShortWrite) {
		t.Error("expected cause to stay in the chain")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{Parse("bad"), 3},
		{Persistence(io.EOF, "x"), 4},
		{New(Corrupt("x"), StageMerge, ""), 5},
		{fmt.Errorf("%w: chunk size", ErrInvalidInput), 2},
		{io.EOF, 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
