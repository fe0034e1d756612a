package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/notesai-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Ollama
// ---------------------------------------------------------------------------

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, got)
}

func TestOllamaEmbedder_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err := e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmbedding)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaEmbedder_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	_, err := e.Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, rag.ErrTimeout)
	assert.ErrorIs(t, err, rag.ErrEmbedding)
}

func TestOllamaEmbedder_Batches(t *testing.T) {
	t.Parallel()

	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sizes = append(sizes, len(req.Input))

		resp := ollamaEmbedResponse{}
		for _, in := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(len(in))})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "m", BatchSize: 2})
	got, err := e.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, got)
}

// ---------------------------------------------------------------------------
// OpenAI
// ---------------------------------------------------------------------------

func TestOpenAIEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose; the embedder must honour index.
		_, _ = io.WriteString(w, `{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0.5, 0.25}}, got)
}

func TestOpenAIEmbedder_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error": {"message": "slow down", "type": "rate_limit"}}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
	_, err := e.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmbedding)
	assert.True(t, isRetryable(err))
}

// ---------------------------------------------------------------------------
// Retrying
// ---------------------------------------------------------------------------

// flakyEmbedder fails with err for the first n calls.
type flakyEmbedder struct {
	n     int32
	err   error
	calls atomic.Int32
}

func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) <= f.n {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestRetrying_RetriesTransient(t *testing.T) {
	t.Parallel()

	inner := &flakyEmbedder{n: 2, err: embedErr("test", &StatusError{Code: 429, Message: "busy"})}
	e := NewRetrying(inner, &RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	got, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetrying_PermanentFailure(t *testing.T) {
	t.Parallel()

	inner := &flakyEmbedder{n: 5, err: embedErr("test", &StatusError{Code: 401, Message: "bad key"})}
	e := NewRetrying(inner, &RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond})

	_, err := e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmbedding)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetrying_GivesUp(t *testing.T) {
	t.Parallel()

	inner := &flakyEmbedder{n: 10, err: &StatusError{Code: 503, Message: "down"}}
	e := NewRetrying(inner, &RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	_, err := e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestNewRetrying_ZeroIsPassthrough(t *testing.T) {
	t.Parallel()
	inner := &flakyEmbedder{}
	assert.Same(t, rag.Embedder(inner), NewRetrying(inner, &RetryConfig{}))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, isRetryable(&StatusError{Code: 500}))
	assert.True(t, isRetryable(&StatusError{Code: 429}))
	assert.False(t, isRetryable(&StatusError{Code: 400}))
	assert.False(t, isRetryable(errors.New("boom")))
	assert.False(t, isRetryable(rag.WrapTimeout(context.DeadlineExceeded)))
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

func TestBackend_Resolution(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "")
	assert.Equal(t, "gemini", Backend())

	t.Setenv("MODEL_PROVIDER", "ollama")
	assert.Equal(t, "ollama", Backend())

	t.Setenv("MODEL_PROVIDER", "ark")
	assert.Equal(t, "gemini", Backend())

	t.Setenv("EMBEDDING_PROVIDER", "openai")
	assert.Equal(t, "openai", Backend())
}

func TestNewFromEnv_MissingKey(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := NewFromEnv(context.Background(), slog.Default())
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestNewGeminiEmbedder_MissingKey(t *testing.T) {
	t.Parallel()
	_, err := NewGeminiEmbedder(context.Background(), &GeminiConfig{Model: "text-embedding-004"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}

func TestNewFromEnv_Ollama(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_RETRIES", "2")

	e, err := NewFromEnv(context.Background(), slog.Default())
	require.NoError(t, err)
	r, ok := e.(*Retrying)
	require.True(t, ok, "EMBEDDING_RETRIES should wrap the embedder")
	assert.IsType(t, &OllamaEmbedder{}, r.next)
}

func TestDefaultDimensions(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	assert.Equal(t, 768, DefaultDimensions("gemini"))
	assert.Equal(t, 768, DefaultDimensions("ollama"))
	assert.Equal(t, 1536, DefaultDimensions("openai"))

	t.Setenv("EMBEDDING_DIMENSIONS", "256")
	assert.Equal(t, 256, DefaultDimensions("openai"))
}

func TestValidateForRAG(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	assert.ErrorIs(t, ValidateForRAG(log), rag.ErrConfiguration)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.NoError(t, ValidateForRAG(log))

	t.Setenv("EMBEDDING_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_API_KEY", "k")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	t.Setenv("EMBEDDING_ENDPOINT", "")
	assert.ErrorIs(t, ValidateForRAG(log), rag.ErrConfiguration)
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()
	assert.True(t, looksLikeChatModel("gpt-4o"))
	assert.True(t, looksLikeChatModel("llama3:8b"))
	assert.False(t, looksLikeChatModel("text-embedding-004"))
	assert.False(t, looksLikeChatModel("nomic-embed-text"))
	assert.True(t, looksLikeChatModel("gemini-2.0-flash"))
	assert.False(t, looksLikeChatModel("gemini-embedding-001"))
	assert.False(t, looksLikeChatModel(""))
}
