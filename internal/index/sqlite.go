// Package index provides the durable VectorIndex backends: an embedded
// SQLite store (the default), Qdrant, and PostgreSQL with pgvector.
package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/notesai-go/internal/rag"
)

// SQLiteIndex is a rag.VectorIndex persisted in a local SQLite file.
// Similarity search is a brute-force cosine scan, which is adequate for a
// single user's notebooks.
type SQLiteIndex struct {
	// db is the underlying database handle, limited to one connection.
	db *sql.DB

	// mu serialises writes and guards dim.
	mu sync.RWMutex

	// dim is the established embedding dimension; 0 until the first insert.
	dim int
}

// compile-time interface check
var _ rag.VectorIndex = (*SQLiteIndex)(nil)

// DefaultPath returns the default index location, ~/.notesai/index.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("index: could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".notesai", "index.db"), nil
}

// OpenSQLite opens (or creates) the index at path and runs the schema
// migration. Any failure is reported as rag.ErrIndexUnavailable.
func OpenSQLite(ctx context.Context, path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("index: %w: sqlite path is empty", rag.ErrConfiguration)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("index: %w: create %s: %w", rag.ErrIndexUnavailable, filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("index: %w: open %s: %w", rag.ErrIndexUnavailable, path, err)
	}
	// One connection serialises writers and keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := idx.loadDimension(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteIndex) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS entries (
    id        TEXT PRIMARY KEY,
    text      TEXT NOT NULL,
    source    TEXT NOT NULL,
    embedding BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("index: %w: migrate: %w", rag.ErrIndexUnavailable, err)
	}
	return nil
}

// loadDimension reads the persisted dimension, if any.
func (s *SQLiteIndex) loadDimension(ctx context.Context) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: %w: read dimension: %w", rag.ErrIndexUnavailable, err)
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return fmt.Errorf("index: %w: corrupt dimension %q", rag.ErrIndexUnavailable, raw)
	}
	s.dim = dim
	return nil
}

// Dimension returns the established dimension, or 0 for a fresh index.
func (s *SQLiteIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Upsert inserts or replaces entry. The first insert fixes the dimension.
func (s *SQLiteIndex) Upsert(ctx context.Context, entry rag.IndexEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("index: entry id must not be empty")
	}
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("index: %w: empty embedding for %s", rag.ErrDimensionMismatch, entry.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 && len(entry.Embedding) != s.dim {
		return fmt.Errorf("index: %w: got %d, index has %d", rag.ErrDimensionMismatch, len(entry.Embedding), s.dim)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: %w: begin: %w", rag.ErrIndexUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if s.dim == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO meta (key, value) VALUES ('dimension', ?)`,
			strconv.Itoa(len(entry.Embedding)),
		); err != nil {
			return fmt.Errorf("index: %w: set dimension: %w", rag.ErrIndexUnavailable, err)
		}
	}

	const q = `
INSERT INTO entries (id, text, source, embedding) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET text = excluded.text, source = excluded.source, embedding = excluded.embedding`
	if _, err := tx.ExecContext(ctx, q, entry.ID, entry.Text, entry.Source, encodeVector(entry.Embedding)); err != nil {
		return fmt.Errorf("index: %w: upsert %s: %w", rag.ErrIndexUnavailable, entry.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: %w: commit: %w", rag.ErrIndexUnavailable, err)
	}

	if s.dim == 0 {
		s.dim = len(entry.Embedding)
	}
	return nil
}

// scored pairs a hit with its id for deterministic tie-breaking.
type scored struct {
	id  string
	hit rag.SearchHit
}

// Query ranks every entry by cosine similarity to embedding.
func (s *SQLiteIndex) Query(ctx context.Context, embedding []float32, k int) ([]rag.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim == 0 || k <= 0 {
		return []rag.SearchHit{}, nil
	}
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("index: %w: query has %d, index has %d", rag.ErrDimensionMismatch, len(embedding), s.dim)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, text, source, embedding FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("index: %w: query: %w", rag.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var all []scored
	for rows.Next() {
		var (
			r    scored
			blob []byte
		)
		if err := rows.Scan(&r.id, &r.hit.Text, &r.hit.Source, &blob); err != nil {
			return nil, fmt.Errorf("index: %w: scan: %w", rag.ErrIndexUnavailable, err)
		}
		vec, err := decodeVector(blob, s.dim)
		if err != nil {
			return nil, fmt.Errorf("index: %w: entry %s: %w", rag.ErrIndexUnavailable, r.id, err)
		}
		r.hit.Score = Cosine(embedding, vec)
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: %w: rows: %w", rag.ErrIndexUnavailable, err)
	}

	slices.SortFunc(all, func(a, b scored) int {
		switch {
		case a.hit.Score > b.hit.Score:
			return -1
		case a.hit.Score < b.hit.Score:
			return 1
		}
		if a.id < b.id {
			return -1
		}
		if a.id > b.id {
			return 1
		}
		return 0
	})

	if len(all) > k {
		all = all[:k]
	}
	hits := make([]rag.SearchHit, len(all))
	for i, r := range all {
		hits[i] = r.hit
	}
	return hits, nil
}

// Count returns the number of stored entries.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: %w: count: %w", rag.ErrIndexUnavailable, err)
	}
	return n, nil
}

// Prune deletes source's entries that are not listed in keep.
func (s *SQLiteIndex) Prune(ctx context.Context, source string, keep []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: %w: prune: %w", rag.ErrIndexUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM entries WHERE source = ?`, source)
	if err != nil {
		return fmt.Errorf("index: %w: prune: %w", rag.ErrIndexUnavailable, err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("index: %w: prune scan: %w", rag.ErrIndexUnavailable, err)
		}
		if !slices.Contains(keep, id) {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("index: %w: prune rows: %w", rag.ErrIndexUnavailable, err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
			return fmt.Errorf("index: %w: prune %s: %w", rag.ErrIndexUnavailable, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: %w: prune commit: %w", rag.ErrIndexUnavailable, err)
	}
	return nil
}

// Reset drops every entry and the established dimension.
func (s *SQLiteIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries; DELETE FROM meta;`); err != nil {
		return fmt.Errorf("index: %w: reset: %w", rag.ErrIndexUnavailable, err)
	}
	s.dim = 0
	return nil
}

// Ping verifies the database file is still readable.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("index: %w: ping: %w", rag.ErrIndexUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector. a and b must have equal length.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != 4*dim {
		return nil, fmt.Errorf("embedding blob is %d bytes, want %d", len(b), 4*dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
