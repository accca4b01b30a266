// Package errors defines the failure taxonomy of an index build. Every fatal
// failure unwraps to one of the sentinels below, and StageError records which
// stage, chunk, or merge generation produced it so that stage can be re-run.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrParse        = errors.New("malformed document source")
	ErrPersistence  = errors.New("artifact persistence failed")
	ErrCorruptIndex = errors.New("corrupt partial index")
	ErrInvalidInput = errors.New("invalid input")
)

// Stage names a pipeline stage.
type Stage string

const (
	StageSource Stage = "source"
	StageChunk  Stage = "chunk"
	StageIndex  Stage = "index"
	StageMerge  Stage = "merge"
)

// StageError wraps a sentinel with the stage that detected it. Chunk and
// Generation are -1 when they do not apply.
type StageError struct {
	Err        error
	Stage      Stage
	Chunk      int
	Generation int
	Message    string
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s stage", e.Stage)
	if e.Chunk >= 0 {
		msg += fmt.Sprintf(" chunk %d", e.Chunk)
	}
	if e.Generation >= 0 {
		msg += fmt.Sprintf(" generation %d", e.Generation)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// New returns a StageError with no chunk or generation context.
func New(err error, stage Stage, message string) *StageError {
	return &StageError{
		Err:        err,
		Stage:      stage,
		Chunk:      -1,
		Generation: -1,
		Message:    message,
	}
}

// Newf is New with a formatted message.
func Newf(err error, stage Stage, format string, args ...any) *StageError {
	return New(err, stage, fmt.Sprintf(format, args...))
}

// InChunk attaches a chunk ordinal.
func (e *StageError) InChunk(chunk int) *StageError {
	e.Chunk = chunk
	return e
}

// InGeneration attaches a merge generation.
func (e *StageError) InGeneration(generation int) *StageError {
	e.Generation = generation
	return e
}

// Parse wraps err as a ParseError.
func Parse(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// Persistence wraps cause as a PersistenceError.
func Persistence(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, fmt.Sprintf(format, args...), cause)
}

// Corrupt wraps err as a CorruptIndexError.
func Corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptIndex, fmt.Sprintf(format, args...))
}

// ExitCode maps a build failure to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput):
		return 2
	case errors.Is(err, ErrParse):
		return 3
	case errors.Is(err, ErrPersistence):
		return 4
	case errors.Is(err, ErrCorruptIndex):
		return 5
	default:
		return 1
	}
}
