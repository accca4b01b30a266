// Package manifest keeps a local ledger of index builds in a bbolt file:
// one record per build plus the chunk and merge-generation artifacts each
// build produced. A failed build can be inspected and its last good
// generation located without scanning the data directory.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketBuilds      = []byte("builds")
	bucketChunks      = []byte("chunks")
	bucketGenerations = []byte("generations")
)

// ErrNotFound is returned when a build ID has no record.
var ErrNotFound = errors.New("build not found")

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Build is the record of one pipeline run.
type Build struct {
	ID               string    `json:"id"`
	Status           Status    `json:"status"`
	Source           string    `json:"source"`
	ChunkSize        int       `json:"chunk_size"`
	BufferSize       int       `json:"buffer_size"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at,omitzero"`
	Documents        int       `json:"documents"`
	Chunks           int       `json:"chunks"`
	Rounds           int       `json:"rounds"`
	Terms            int       `json:"terms"`
	Postings         uint64    `json:"postings"`
	FinalPath        string    `json:"final_path,omitempty"`
	Error            string    `json:"error,omitempty"`
	FailedStage      string    `json:"failed_stage,omitempty"`
	FailedChunk      int       `json:"failed_chunk"`
	FailedGeneration int       `json:"failed_generation"`
}

// Generation lists the partial indexes one merge round produced.
type Generation struct {
	Number  int      `json:"number"`
	Parts   []string `json:"parts"`
	Merges  int      `json:"merges"`
	Carried bool     `json:"carried"`
}

// Store is a bbolt-backed build manifest.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBuilds, bucketChunks, bucketGenerations} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// NewBuildID returns an ID that sorts in start order.
func NewBuildID(t time.Time) string {
	return t.UTC().Format("20060102T150405.000000000Z")
}

// SaveBuild inserts or replaces the record for b.ID.
func (s *Store) SaveBuild(b Build) error {
	if b.ID == "" {
		return errors.New("build record without id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBuilds).Put([]byte(b.ID), data)
	})
}

func (s *Store) Build(id string) (Build, error) {
	var b Build
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBuilds).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &b)
	})
	return b, err
}

// Latest returns the most recently started build.
func (s *Store) Latest() (Build, error) {
	var b Build
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, data := tx.Bucket(bucketBuilds).Cursor().Last()
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &b)
	})
	return b, err
}

// SaveChunks records the chunk artifacts of a build in ordinal order.
func (s *Store) SaveChunks(buildID string, paths []string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for i, p := range paths {
			if err := b.Put(childKey(buildID, i), []byte(p)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Chunks(buildID string) ([]string, error) {
	var paths []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketChunks), buildID, func(v []byte) error {
			paths = append(paths, string(v))
			return nil
		})
	})
	return paths, err
}

// SaveGeneration records the parts of generation g of a build.
func (s *Store) SaveGeneration(buildID string, g Generation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketGenerations).Put(childKey(buildID, g.Number), data)
	})
}

// Generations returns every recorded generation of a build in order.
func (s *Store) Generations(buildID string) ([]Generation, error) {
	var gens []Generation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketGenerations), buildID, func(v []byte) error {
			var g Generation
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			gens = append(gens, g)
			return nil
		})
	})
	return gens, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func childKey(buildID string, n int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", buildID, n))
}

func scanPrefix(b *bbolt.Bucket, buildID string, fn func(v []byte) error) error {
	prefix := []byte(buildID + "/")
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
