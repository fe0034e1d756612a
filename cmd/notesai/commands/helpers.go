package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/notesai-go/internal/answer"
	"github.com/54b3r/notesai-go/internal/assistant"
	"github.com/54b3r/notesai-go/internal/config"
	"github.com/54b3r/notesai-go/internal/embedder"
	"github.com/54b3r/notesai-go/internal/index"
	"github.com/54b3r/notesai-go/internal/ingestion"
	"github.com/54b3r/notesai-go/internal/onenote"
	"github.com/54b3r/notesai-go/internal/provider"
	"github.com/54b3r/notesai-go/internal/rag"
)

// openIndex opens the configured vector index. A failure is logged and
// yields a nil index so the assistant can report the data as not loaded.
// The returned function closes the handle.
func openIndex(ctx context.Context, log *slog.Logger) (rag.VectorIndex, func()) {
	cfg, err := index.ConfigFromEnv()
	if err == nil {
		cfg.Logger = log
		var idx rag.VectorIndex
		idx, err = index.Open(ctx, cfg)
		if err == nil {
			return idx, func() { closeIndex(idx, log) }
		}
	}
	log.Warn("index unavailable", slog.Any("error", err))
	return nil, func() {}
}

// closeIndex releases backends that hold a connection or file handle.
func closeIndex(idx rag.VectorIndex, log *slog.Logger) {
	c, ok := idx.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("index close failed", slog.Any("error", err))
	}
}

// unconfiguredEmbedder stands in when the embedding backend cannot be built
// so the assistant's credential check can still report the cause.
type unconfiguredEmbedder struct{ err error }

func (u unconfiguredEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, u.err
}

// buildEmbedder returns the configured embedder. Configuration errors are
// deferred to the first call when lenient is set.
func buildEmbedder(ctx context.Context, log *slog.Logger, lenient bool) (rag.Embedder, error) {
	emb, err := embedder.NewFromEnv(ctx, log)
	if err == nil {
		log.Info("embedder initialised", slog.String("backend", embedder.Backend()))
		return emb, nil
	}
	if lenient && errors.Is(err, rag.ErrConfiguration) {
		return unconfiguredEmbedder{err: err}, nil
	}
	return nil, err
}

// buildAssistant composes retriever, synthesizer and assistant over idx.
func buildAssistant(ctx context.Context, log *slog.Logger, idx rag.VectorIndex, onProgress func(string)) (*assistant.Assistant, error) {
	emb, err := buildEmbedder(ctx, log, true)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(emb, idx, &rag.RetrieverConfig{
		DefaultTopK: getEnvInt("RAG_TOP_K", rag.DefaultTopK),
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	var synth *answer.Synthesizer
	chatModel, err := provider.NewFromEnv(ctx)
	switch {
	case err != nil && errors.Is(err, rag.ErrConfiguration):
		// Reported per request by the credential check.
		log.Warn("model provider not configured", slog.Any("error", err))
		synth = answer.New(&answer.Config{Logger: log})
	case err != nil:
		return nil, err
	default:
		synth = answer.New(&answer.Config{Model: chatModel, Logger: log})
	}

	return assistant.New(&assistant.Config{
		Retriever:   retriever,
		Synthesizer: synth,
		Credentials: func() error { return config.RequireCredentials(log) },
		OnProgress:  onProgress,
		Logger:      log,
	})
}

// buildPipeline constructs the ingestion pipeline over idx.
func buildPipeline(ctx context.Context, log *slog.Logger, idx rag.VectorIndex, cfg *ingestion.Config) (*ingestion.Pipeline, error) {
	emb, err := buildEmbedder(ctx, log, false)
	if err != nil {
		return nil, err
	}
	cfg.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	if n, ok := lookupEnvInt("CHUNK_OVERLAP"); ok {
		cfg.ChunkOverlap = &n
	}
	if cfg.Workers == 0 {
		cfg.Workers = getEnvInt("INGEST_WORKERS", 1)
	}
	cfg.Logger = log
	return ingestion.NewPipeline(emb, idx, cfg)
}

// buildSource returns the file source when path is set and the OneNote
// Graph client otherwise.
func buildSource(ctx context.Context, log *slog.Logger, path string) (rag.DocumentSource, error) {
	if path != "" {
		return ingestion.FileSource{Path: path}, nil
	}
	return onenote.New(ctx, &onenote.Config{
		AccessToken: os.Getenv("MS_ACCESS_TOKEN"),
		BaseURL:     os.Getenv("GRAPH_BASE_URL"),
		Logger:      log,
	})
}

// getEnvInt returns the named environment variable parsed as an int, or
// fallback if unset or unparseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// lookupEnvInt reports the named environment variable parsed as an int and
// whether it was set to a valid integer. Unlike getEnvInt it keeps an
// explicit 0.
func lookupEnvInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// getEnvFloat returns the named environment variable parsed as a float64,
// or fallback if unset or unparseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvList splits a comma-separated environment variable.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
