// Package registry publishes build records to a shared PostgreSQL table so
// several hosts building indexes can see each other's runs.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/manifest"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/postgres"
)

// Schema is applied by Init.
const Schema = `CREATE TABLE IF NOT EXISTS index_builds (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    source      TEXT NOT NULL,
    chunk_size  INTEGER NOT NULL,
    buffer_size INTEGER NOT NULL,
    documents   INTEGER NOT NULL DEFAULT 0,
    chunks      INTEGER NOT NULL DEFAULT 0,
    rounds      INTEGER NOT NULL DEFAULT 0,
    terms       INTEGER NOT NULL DEFAULT 0,
    postings    BIGINT NOT NULL DEFAULT 0,
    final_path  TEXT,
    error       TEXT,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
)`

// Store records builds in the index_builds table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("build-registry"),
	}
}

// Init creates the index_builds table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	return s.db.EnsureSchema(ctx, Schema)
}

// Started inserts a running build. Re-registering the same ID is a no-op.
func (s *Store) Started(ctx context.Context, b manifest.Build) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO index_builds (id, status, source, chunk_size, buffer_size, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
			b.ID, string(b.Status), b.Source, b.ChunkSize, b.BufferSize, b.StartedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("registering build %s: %w", b.ID, err)
	}
	s.logger.Debug("build registered", "build_id", b.ID)
	return nil
}

// Finished stores the outcome of a build.
func (s *Store) Finished(ctx context.Context, b manifest.Build) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE index_builds
		SET status=$2, documents=$3, chunks=$4, rounds=$5, terms=$6, postings=$7,
		    final_path=$8, error=$9, finished_at=$10
		WHERE id=$1`,
			b.ID, string(b.Status), b.Documents, b.Chunks, b.Rounds, b.Terms, int64(b.Postings),
			nullableString(b.FinalPath), nullableString(b.Error), b.FinishedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("build %s was never registered", b.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("finishing build %s: %w", b.ID, err)
	}
	s.logger.Info("build outcome recorded", "build_id", b.ID, "status", b.Status)
	return nil
}

// Latest returns the most recent successful build, or nil if none exists.
func (s *Store) Latest(ctx context.Context) (*manifest.Build, error) {
	var (
		b         manifest.Build
		status    string
		finalPath sql.NullString
		finished  sql.NullTime
		postings  int64
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, status, source, chunk_size, buffer_size, documents, chunks, rounds, terms,
		        postings, final_path, started_at, finished_at
		FROM index_builds WHERE status=$1 ORDER BY started_at DESC LIMIT 1`,
		string(manifest.StatusSucceeded),
	).Scan(&b.ID, &status, &b.Source, &b.ChunkSize, &b.BufferSize, &b.Documents, &b.Chunks,
		&b.Rounds, &b.Terms, &postings, &finalPath, &b.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest build: %w", err)
	}
	b.Status = manifest.Status(status)
	b.Postings = uint64(postings)
	b.FinalPath = finalPath.String
	b.FinishedAt = finished.Time
	return &b, nil
}

// nullableString treats the empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
