package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/54b3r/notesai-go/internal/rag"
)

// PGVectorConfig holds connection parameters for a PostgreSQL database with
// the pgvector extension.
type PGVectorConfig struct {
	// DSN is the PostgreSQL connection string. Required.
	DSN string

	// Table is the entries table name (default: notesai_entries).
	Table string
}

// PGVectorIndex implements rag.VectorIndex on a pgvector table ordered by
// the cosine distance operator.
type PGVectorIndex struct {
	// pool is the pgx connection pool.
	pool *pgxpool.Pool

	// table is the sanitised, quoted table identifier.
	table string

	// mu serialises the dimension check with the insert; readers of dim
	// share it.
	mu sync.RWMutex

	// dim is the established dimension; 0 while the table is empty.
	dim int
}

// compile-time interface check
var _ rag.VectorIndex = (*PGVectorIndex)(nil)

// NewPGVectorIndex connects, enables the extension, and creates the table.
func NewPGVectorIndex(ctx context.Context, cfg *PGVectorConfig) (*PGVectorIndex, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector: %w: DSN is empty", rag.ErrConfiguration)
	}
	if cfg.Table == "" {
		cfg.Table = "notesai_entries"
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w: connect: %w", rag.ErrIndexUnavailable, err)
	}

	idx := &PGVectorIndex{pool: pool, table: pgx.Identifier{cfg.Table}.Sanitize()}
	if err := idx.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// initialize creates the schema and reads the established dimension.
func (s *PGVectorIndex) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: %w: create extension: %w", rag.ErrIndexUnavailable, err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			text      TEXT NOT NULL,
			source    TEXT NOT NULL,
			embedding vector NOT NULL
		)`, s.table)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("pgvector: %w: create table: %w", rag.ErrIndexUnavailable, err)
	}

	var dim int
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT vector_dims(embedding) FROM %s LIMIT 1", s.table)).Scan(&dim)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("pgvector: %w: read dimension: %w", rag.ErrIndexUnavailable, err)
	default:
		s.dim = dim
	}
	return nil
}

// Upsert inserts or replaces entry with ON CONFLICT.
func (s *PGVectorIndex) Upsert(ctx context.Context, entry rag.IndexEntry) error {
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("pgvector: %w: empty embedding for %s", rag.ErrDimensionMismatch, entry.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 && len(entry.Embedding) != s.dim {
		return fmt.Errorf("pgvector: %w: got %d, index has %d", rag.ErrDimensionMismatch, len(entry.Embedding), s.dim)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, text, source, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding`, s.table)

	_, err := s.pool.Exec(ctx, stmt,
		entry.ID,
		sanitizeText(entry.Text),
		sanitizeText(entry.Source),
		pgvector.NewVector(entry.Embedding),
	)
	if err != nil {
		return fmt.Errorf("pgvector: %w: upsert %s: %w", rag.ErrIndexUnavailable, entry.ID, err)
	}
	if s.dim == 0 {
		s.dim = len(entry.Embedding)
	}
	return nil
}

// Query orders entries by cosine distance; the score is 1 - distance.
func (s *PGVectorIndex) Query(ctx context.Context, embedding []float32, k int) ([]rag.SearchHit, error) {
	s.mu.RLock()
	dim := s.dim
	s.mu.RUnlock()

	if dim == 0 || k <= 0 {
		return []rag.SearchHit{}, nil
	}
	if len(embedding) != dim {
		return nil, fmt.Errorf("pgvector: %w: query has %d, index has %d", rag.ErrDimensionMismatch, len(embedding), dim)
	}

	query := fmt.Sprintf(`
		SELECT text, source, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w: query: %w", rag.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	hits := []rag.SearchHit{}
	for rows.Next() {
		var (
			h     rag.SearchHit
			score float64
		)
		if err := rows.Scan(&h.Text, &h.Source, &score); err != nil {
			return nil, fmt.Errorf("pgvector: %w: scan: %w", rag.ErrIndexUnavailable, err)
		}
		h.Score = float32(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: %w: rows: %w", rag.ErrIndexUnavailable, err)
	}
	return hits, nil
}

// Count returns the number of rows in the entries table.
func (s *PGVectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvector: %w: count: %w", rag.ErrIndexUnavailable, err)
	}
	return n, nil
}

// Prune deletes source's rows whose id is not in keep.
func (s *PGVectorIndex) Prune(ctx context.Context, source string, keep []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep == nil {
		keep = []string{}
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE source = $1 AND NOT (id = ANY($2))", s.table)
	if _, err := s.pool.Exec(ctx, stmt, sanitizeText(source), keep); err != nil {
		return fmt.Errorf("pgvector: %w: prune: %w", rag.ErrIndexUnavailable, err)
	}
	return nil
}

// Reset truncates the entries table.
func (s *PGVectorIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", s.table)); err != nil {
		return fmt.Errorf("pgvector: %w: truncate: %w", rag.ErrIndexUnavailable, err)
	}
	s.dim = 0
	return nil
}

// Ping checks database connectivity.
func (s *PGVectorIndex) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgvector: %w: ping: %w", rag.ErrIndexUnavailable, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PGVectorIndex) Close() error {
	s.pool.Close()
	return nil
}

// sanitizeText strips what PostgreSQL TEXT rejects: invalid UTF-8 and NUL.
func sanitizeText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}
