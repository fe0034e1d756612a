//go:build integration

package index

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/notesai-go/internal/rag"
)

// backendContract exercises the behaviour every VectorIndex must share.
func backendContract(t *testing.T, idx rag.VectorIndex) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, idx.Reset(ctx))

	hits, err := idx.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	entry := rag.IndexEntry{ID: "doc-0", Embedding: []float32{0.2, 0.7, 0.1}, Text: "The meeting is on Tuesday at 3pm.", Source: "Notebook: A, Section: B, Page: C"}
	require.NoError(t, idx.Upsert(ctx, entry))
	require.NoError(t, idx.Upsert(ctx, rag.IndexEntry{ID: "doc-1", Embedding: []float32{-0.9, 0.1, 0.3}, Text: "other", Source: "s"}))

	hits, err = idx.Query(ctx, entry.Embedding, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, entry.Text, hits[0].Text)
	assert.Equal(t, entry.Source, hits[0].Source)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)

	err = idx.Upsert(ctx, rag.IndexEntry{ID: "bad", Embedding: []float32{1, 2}, Text: "x", Source: "s"})
	require.ErrorIs(t, err, rag.ErrDimensionMismatch)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, idx.Upsert(ctx, rag.IndexEntry{ID: "doc-2", Embedding: []float32{0.1, 0.1, 0.9}, Text: "stale", Source: entry.Source}))
	require.NoError(t, idx.Prune(ctx, entry.Source, []string{entry.ID}))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, idx.Reset(ctx))
}

func TestQdrantIndex_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}
	idx, err := NewQdrantIndex(context.Background(), &QdrantConfig{
		Host:       host,
		Collection: fmt.Sprintf("notesai_it_%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	defer idx.Close()

	backendContract(t, idx)
	require.NoError(t, idx.Ping(context.Background()))
}

func TestPGVectorIndex_Integration(t *testing.T) {
	dsn := os.Getenv("PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_DSN not set")
	}
	idx, err := NewPGVectorIndex(context.Background(), &PGVectorConfig{
		DSN:   dsn,
		Table: fmt.Sprintf("notesai_it_%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	defer idx.Close()

	backendContract(t, idx)
	require.NoError(t, idx.Ping(context.Background()))
}
