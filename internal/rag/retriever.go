package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Search result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultTopK is the number of documents returned when the caller passes 0.
const DefaultTopK = 5

// SearchResult is the outcome of one query. Progress is populated on every
// path, including failures.
type SearchResult struct {
	// Status is StatusSuccess or StatusError.
	Status string `json:"status"`

	// Documents holds up to k ranked documents. Empty on a successful query
	// against an empty index.
	Documents []RetrievedDocument `json:"documents"`

	// Progress is the narration of the steps taken.
	Progress []string `json:"progress"`

	// Message explains an error status.
	Message string `json:"message,omitempty"`

	// Err is the underlying error for an error status.
	Err error `json:"-"`
}

// RetrieverConfig holds the query-side settings.
type RetrieverConfig struct {
	// DefaultTopK is used when Search is called with k <= 0. Defaults to 5.
	DefaultTopK int

	// EmbedTimeout bounds the query embedding call. Defaults to 30s.
	EmbedTimeout time.Duration

	// QueryTimeout bounds the index query. Defaults to 10s.
	QueryTimeout time.Duration

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Retriever embeds a query once and searches the vector index with it.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the similarity search. nil means the index was never
	// initialised, which Search reports as an error.
	index VectorIndex

	// cfg holds the resolved configuration.
	cfg *RetrieverConfig
}

// NewRetriever constructs a Retriever. index may be nil when the backing
// store could not be opened; Search then fails fast.
func NewRetriever(embedder Embedder, index VectorIndex, cfg *RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg == nil {
		cfg = &RetrieverConfig{}
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retriever{embedder: embedder, index: index, cfg: cfg}, nil
}

// Initialized reports whether the retriever has an index handle.
func (r *Retriever) Initialized() bool {
	return r.index != nil
}

// Search embeds query and returns the top-k most similar documents.
// If k <= 0 the configured default is used.
func (r *Retriever) Search(ctx context.Context, query string, k int) *SearchResult {
	progress := NewProgressLog(nil)
	fail := func(msg string, err error) *SearchResult {
		r.cfg.Logger.Warn("rag: search failed", slog.String("reason", msg), slog.Any("error", err))
		return &SearchResult{
			Status:    StatusError,
			Documents: []RetrievedDocument{},
			Progress:  progress.Entries(),
			Message:   msg,
			Err:       err,
		}
	}

	if r.index == nil {
		return fail("Vector database not initialized", ErrIndexNotInitialized)
	}
	if k <= 0 {
		k = r.cfg.DefaultTopK
	}

	progress.Add("Generating query embedding")
	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		progress.Add("Search error: %v", err)
		return fail(err.Error(), err)
	}

	progress.Add("Searching collection for top %d results", k)
	queryCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()
	hits, err := r.index.Query(queryCtx, embedding, k)
	if err != nil {
		err = WrapTimeout(err)
		if !errors.Is(err, ErrDimensionMismatch) && !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrIndexUnavailable) {
			err = fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
		}
		progress.Add("Search error: %v", err)
		return fail(err.Error(), err)
	}

	docs := make([]RetrievedDocument, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, RetrievedDocument{Content: h.Text, Source: h.Source, Score: h.Score})
	}
	progress.Add("Found %d relevant documents", len(docs))

	r.cfg.Logger.Debug("rag: search complete",
		slog.Int("k", k),
		slog.Int("results", len(docs)),
	)

	return &SearchResult{
		Status:    StatusSuccess,
		Documents: docs,
		Progress:  progress.Entries(),
	}
}

// embedQuery makes exactly one embedding call for the query text.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()

	vectors, err := r.embedder.Embed(embedCtx, []string{query})
	if err != nil {
		err = WrapTimeout(err)
		if !errors.Is(err, ErrEmbedding) {
			err = fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned empty result for query", ErrEmbedding)
	}
	return vectors[0], nil
}
