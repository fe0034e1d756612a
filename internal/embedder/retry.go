package embedder

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/54b3r/notesai-go/internal/rag"
)

// RetryConfig tunes the Retrying wrapper.
type RetryConfig struct {
	// MaxRetries caps the number of retries after the first attempt.
	MaxRetries uint64
	// InitialInterval is the first backoff delay (default 500ms).
	InitialInterval time.Duration
	// MaxInterval caps a single backoff delay (default 10s).
	MaxInterval time.Duration
	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Retrying wraps an Embedder with exponential backoff on rate-limit and
// server errors. Any other failure, including timeouts, is returned at once.
type Retrying struct {
	next rag.Embedder
	cfg  *RetryConfig
}

// NewRetrying wraps next. A zero MaxRetries returns next unchanged.
func NewRetrying(next rag.Embedder, cfg *RetryConfig) rag.Embedder {
	if cfg == nil || cfg.MaxRetries == 0 {
		return next
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retrying{next: next, cfg: cfg}
}

// Embed calls the wrapped embedder, retrying transient failures.
func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	attempt := 0

	operation := func() error {
		attempt++
		vectors, err := r.next.Embed(ctx, texts)
		if err == nil {
			out = vectors
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		r.cfg.Logger.Warn("embedder: transient failure, retrying",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx))
	return out, err
}

// isRetryable reports whether err is an HTTP 429 or 5xx from any backend.
func isRetryable(err error) bool {
	if errors.Is(err, rag.ErrTimeout) {
		return false
	}
	code := 0

	var statusErr *StatusError
	var openaiErr *openai.Error
	var genaiErr genai.APIError
	switch {
	case errors.As(err, &statusErr):
		code = statusErr.Code
	case errors.As(err, &openaiErr):
		code = openaiErr.StatusCode
	case errors.As(err, &genaiErr):
		code = genaiErr.Code
	}
	return code == http.StatusTooManyRequests || code >= 500
}
