// Package rag defines the data model and component interfaces for the
// retrieval-augmented answering pipeline: documents, chunks, index entries,
// the embedder and vector index contracts, and the query-side retriever.
// Concrete backends (SQLite, Qdrant, pgvector, Gemini, OpenAI, Ollama)
// satisfy these interfaces so the pipeline never depends on a specific one.
package rag

import (
	"context"
)

// Document is a unit of ingested notebook content.
type Document struct {
	// Content is the plain text of the page.
	Content string `json:"content"`

	// Source is the human-readable provenance label,
	// e.g. "Notebook: Work, Section: Meetings, Page: Weekly".
	Source string `json:"source"`
}

// Chunk is a bounded-length substring of a Document's content.
type Chunk struct {
	// Text is the chunk body.
	Text string

	// ParentSource is inherited from the owning Document.
	ParentSource string

	// Index is the position of the chunk within its parent.
	Index int
}

// IndexEntry is the persisted unit of a VectorIndex.
type IndexEntry struct {
	// ID uniquely identifies the entry across the index.
	ID string

	// Embedding is the dense vector for Text. Its length must match the
	// dimension established by the index's first insert.
	Embedding []float32

	// Text is the chunk text returned at query time.
	Text string

	// Source is the provenance label of the parent document.
	Source string
}

// SearchHit is a single ranked result from VectorIndex.Query.
type SearchHit struct {
	// Text is the stored chunk text.
	Text string

	// Source is the stored provenance label.
	Source string

	// Score is the cosine similarity to the query vector. Higher is closer.
	Score float32
}

// RetrievedDocument is the query-time projection of an IndexEntry.
type RetrievedDocument struct {
	// Content is the chunk text.
	Content string `json:"content"`

	// Source is the provenance label.
	Source string `json:"source"`

	// Score is the similarity score assigned during retrieval.
	Score float32 `json:"score"`
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex stores (vector, text, source) entries and answers
// nearest-neighbour queries. Concurrent Query calls must be safe; concurrent
// Upsert calls must not corrupt the index.
type VectorIndex interface {
	// Upsert inserts or replaces the entry keyed by entry.ID. It returns
	// ErrDimensionMismatch without mutating the index when the embedding
	// length differs from the established dimension.
	Upsert(ctx context.Context, entry IndexEntry) error

	// Query returns up to k entries ordered by descending cosine similarity.
	// An empty index yields an empty slice and a nil error.
	Query(ctx context.Context, embedding []float32, k int) ([]SearchHit, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Prune removes the entries whose Source equals source and whose ID is
	// not in keep. Entries of other sources are untouched.
	Prune(ctx context.Context, source string, keep []string) error

	// Reset drops every entry and forgets the established dimension.
	Reset(ctx context.Context) error

	// Close releases any resources held by the index.
	Close() error
}

// DocumentSource supplies the documents to ingest. Fetch failures are the
// source's concern; the pipeline only consumes the resulting list.
type DocumentSource interface {
	// FetchDocuments returns every document currently available.
	FetchDocuments(ctx context.Context) ([]Document, error)
}
