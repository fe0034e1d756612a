// Package ingestion implements the notes ingestion pipeline. It splits each
// document into chunks, embeds each chunk and upserts the results into the
// vector index. A failing document is recorded and skipped; the batch always
// runs to completion. This pipeline is invoked by `notesai ingest` and the
// server's sync endpoint.
package ingestion

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/54b3r/notesai-go/internal/chunker"
	"github.com/54b3r/notesai-go/internal/rag"
)

// State is the overall outcome of an ingestion job.
type State string

const (
	// StateCompleted means every document was indexed.
	StateCompleted State = "completed"
	// StatePartialFailure means some documents were indexed and some failed.
	StatePartialFailure State = "partial_failure"
	// StateFailed means no document was indexed.
	StateFailed State = "failed"
)

// DocumentFailure records why one document was skipped.
type DocumentFailure struct {
	// Index is the 1-based position of the document in the batch.
	Index int `json:"index"`
	// Source is the document's provenance label.
	Source string `json:"source"`
	// Message is the failure message.
	Message string `json:"error"`

	err error
}

// Error implements error.
func (f DocumentFailure) Error() string {
	return fmt.Sprintf("document %d (%s): %s", f.Index, f.Source, f.Message)
}

// Unwrap returns the underlying error so callers can match error kinds.
func (f DocumentFailure) Unwrap() error { return f.err }

// Report summarises one ingestion job.
type Report struct {
	// Status is rag.StatusSuccess when at least one document was indexed.
	Status string `json:"status"`
	// Message is the human-readable summary.
	Message string `json:"message"`
	// State distinguishes complete from partial success.
	State State `json:"state"`
	// ProcessedCount is the number of documents fully indexed.
	ProcessedCount int `json:"processed_count"`
	// TotalCount is the number of documents supplied.
	TotalCount int `json:"total_count"`
	// FailedCount is the number of documents skipped.
	FailedCount int `json:"failed_count"`
	// Failures lists the skipped documents in batch order.
	Failures []DocumentFailure `json:"failures"`
	// Progress is the narration of the job.
	Progress []string `json:"progress"`
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Defaults to 100 when nil; an explicit 0 disables overlap. NewPipeline
	// replaces it with the resolved value.
	ChunkOverlap *int

	// Workers is the number of documents processed concurrently.
	// Defaults to 1.
	Workers int

	// EmbedTimeout bounds each embedding call. Defaults to 30s.
	EmbedTimeout time.Duration

	// IndexTimeout bounds each index upsert. Defaults to 10s.
	IndexTimeout time.Duration

	// Rebuild clears the index before ingesting.
	Rebuild bool

	// OnProgress, when set, receives every progress entry as it is recorded.
	OnProgress func(msg string)

	// OnDocument, when set, is called once per finished document,
	// successful or not.
	OnDocument func()

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline orchestrates the chunk → embed → upsert flow for a batch of
// documents.
type Pipeline struct {
	// embedder converts chunk text into dense vectors.
	embedder rag.Embedder

	// index persists the embedded chunks.
	index rag.VectorIndex

	// splitter cuts documents into chunks.
	splitter *chunker.Splitter

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, index rag.VectorIndex, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: %w", rag.ErrIndexNotInitialized)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	overlap := chunker.DefaultOverlap
	if cfg.ChunkOverlap != nil {
		overlap = *cfg.ChunkOverlap
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	splitter := chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(overlap))
	cfg.ChunkSize = splitter.ChunkSize()
	resolved := splitter.Overlap()
	cfg.ChunkOverlap = &resolved

	return &Pipeline{
		embedder: embedder,
		index:    index,
		splitter: splitter,
		cfg:      cfg,
	}, nil
}

// IngestFrom fetches the documents from src and ingests them. A fetch
// failure yields an error report without touching the index.
func (p *Pipeline) IngestFrom(ctx context.Context, src rag.DocumentSource) *Report {
	progress := rag.NewProgressLog(p.cfg.OnProgress)
	progress.Add("Fetching documents")

	docs, err := src.FetchDocuments(ctx)
	if err != nil {
		progress.Add("Error fetching documents: %v", err)
		p.cfg.Logger.Error("ingestion: fetch failed", slog.Any("error", err))
		return &Report{
			Status:   rag.StatusError,
			Message:  fmt.Sprintf("Error fetching documents: %v", err),
			State:    StateFailed,
			Failures: []DocumentFailure{},
			Progress: progress.Entries(),
		}
	}
	progress.Add("Fetched %d documents", len(docs))
	return p.ingest(ctx, docs, progress)
}

// Ingest chunks, embeds and indexes docs. Each document is processed
// independently; failures are recorded in the report and the batch
// continues. Status is success when at least one document was indexed.
func (p *Pipeline) Ingest(ctx context.Context, docs []rag.Document) *Report {
	return p.ingest(ctx, docs, rag.NewProgressLog(p.cfg.OnProgress))
}

func (p *Pipeline) ingest(ctx context.Context, docs []rag.Document, progress *rag.ProgressLog) *Report {
	if len(docs) == 0 {
		return &Report{
			Status:   rag.StatusError,
			Message:  "No documents provided",
			State:    StateFailed,
			Failures: []DocumentFailure{},
			Progress: progress.Entries(),
		}
	}

	if p.cfg.Rebuild {
		progress.Add("Clearing existing index")
		if err := p.index.Reset(ctx); err != nil {
			progress.Add("Error clearing index: %v", err)
			return &Report{
				Status:     rag.StatusError,
				Message:    fmt.Sprintf("Error clearing index: %v", err),
				State:      StateFailed,
				TotalCount: len(docs),
				Failures:   []DocumentFailure{},
				Progress:   progress.Entries(),
			}
		}
	}

	total := len(docs)
	progress.Add("Starting to process %d documents", total)
	start := time.Now()

	// occurrence numbers documents that share a source label, so each one
	// keeps its own chunk IDs.
	occurrence := make([]int, total)
	seen := make(map[string]int, total)
	for i, doc := range docs {
		occurrence[i] = seen[doc.Source]
		seen[doc.Source]++
	}

	failures := make([]*DocumentFailure, total)
	written := make([][]string, total)
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.Workers)

	for i, doc := range docs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, doc rag.Document) {
			defer wg.Done()
			defer func() { <-sem }()

			n := i + 1
			ids, err := p.processDocument(ctx, i, occurrence[i], doc, progress)
			written[i] = ids
			if err != nil {
				progress.Add("Error processing document %d: %v", n, err)
				p.cfg.Logger.Warn("ingestion: document failed",
					slog.Int("document", n),
					slog.String("source", doc.Source),
					slog.Any("error", err),
				)
				failures[i] = &DocumentFailure{Index: n, Source: doc.Source, Message: err.Error(), err: err}
			} else {
				progress.Add("Processed document %d/%d: %s", n, total, doc.Source)
			}
			if p.cfg.OnDocument != nil {
				p.cfg.OnDocument()
			}
		}(i, doc)
	}
	wg.Wait()

	if !p.cfg.Rebuild {
		p.prune(ctx, docs, written, failures, progress)
	}

	report := &Report{TotalCount: total, Failures: []DocumentFailure{}}
	for _, f := range failures {
		if f != nil {
			report.Failures = append(report.Failures, *f)
		}
	}
	report.FailedCount = len(report.Failures)
	report.ProcessedCount = total - report.FailedCount
	report.Message = fmt.Sprintf("Processed %d/%d documents successfully", report.ProcessedCount, total)

	switch {
	case report.FailedCount == 0:
		report.State = StateCompleted
	case report.ProcessedCount > 0:
		report.State = StatePartialFailure
	default:
		report.State = StateFailed
	}
	report.Status = rag.StatusError
	if report.ProcessedCount > 0 {
		report.Status = rag.StatusSuccess
	}
	report.Progress = progress.Entries()

	p.cfg.Logger.Info("ingestion: complete",
		slog.String("state", string(report.State)),
		slog.Int("processed", report.ProcessedCount),
		slog.Int("failed", report.FailedCount),
		slog.Int("total", total),
		slog.Duration("duration", time.Since(start)),
	)
	return report
}

// processDocument runs one document through chunk, embed and upsert and
// returns the IDs it wrote. idx is the 0-based batch position; occurrence
// counts earlier documents in the batch with the same source.
func (p *Pipeline) processDocument(ctx context.Context, idx, occurrence int, doc rag.Document, progress *rag.ProgressLog) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, rag.WrapTimeout(err)
	}

	chunks := p.splitter.Split(doc.Content)
	progress.Add("Document %d: Split into %d chunks", idx+1, len(chunks))
	if len(chunks) == 0 {
		return []string{}, nil
	}

	embeddings, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(chunks))
	for i, text := range chunks {
		entry := rag.IndexEntry{
			ID:        chunkID(doc.Source, occurrence, i),
			Embedding: embeddings[i],
			Text:      text,
			Source:    doc.Source,
		}
		if err := p.upsert(ctx, entry); err != nil {
			return ids, fmt.Errorf("chunk %d: %w", i, err)
		}
		ids = append(ids, entry.ID)
	}
	return ids, nil
}

// prune drops the entries left over from earlier runs for every source
// whose documents all indexed cleanly in this batch. A source with a
// failed document keeps its old entries until the next clean run.
func (p *Pipeline) prune(ctx context.Context, docs []rag.Document, written [][]string, failures []*DocumentFailure, progress *rag.ProgressLog) {
	keep := make(map[string][]string)
	var order []string
	failed := make(map[string]bool)
	for i, doc := range docs {
		if failures[i] != nil {
			failed[doc.Source] = true
			continue
		}
		if _, ok := keep[doc.Source]; !ok {
			order = append(order, doc.Source)
		}
		keep[doc.Source] = append(keep[doc.Source], written[i]...)
	}

	for _, source := range order {
		if failed[source] {
			continue
		}
		pruneCtx, cancel := context.WithTimeout(ctx, p.cfg.IndexTimeout)
		err := rag.WrapTimeout(p.index.Prune(pruneCtx, source, keep[source]))
		cancel()
		if err != nil {
			progress.Add("Error removing stale chunks for %s: %v", source, err)
			p.cfg.Logger.Warn("ingestion: prune failed",
				slog.String("source", source),
				slog.Any("error", err),
			)
		}
	}
}

// embed embeds all chunks of one document in a single bounded call.
func (p *Pipeline) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()

	embeddings, err := p.embedder.Embed(embedCtx, chunks)
	if err != nil {
		err = rag.WrapTimeout(err)
		if !errors.Is(err, rag.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", rag.ErrEmbedding, err)
		}
		return nil, err
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", rag.ErrEmbedding, len(embeddings), len(chunks))
	}
	return embeddings, nil
}

// upsert writes one entry under the index timeout.
func (p *Pipeline) upsert(ctx context.Context, entry rag.IndexEntry) error {
	indexCtx, cancel := context.WithTimeout(ctx, p.cfg.IndexTimeout)
	defer cancel()
	return rag.WrapTimeout(p.index.Upsert(indexCtx, entry))
}

// chunkID derives a stable ID from the source label, the document's
// occurrence among same-source documents and the chunk position. The
// document's place in the batch does not affect it.
func chunkID(source string, occurrence, chunkIndex int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d#%d", source, occurrence, chunkIndex)))
	return fmt.Sprintf("%x", h[:16])
}
