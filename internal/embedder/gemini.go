package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/54b3r/notesai-go/internal/rag"
)

// GeminiEmbedder implements rag.Embedder with the Google Gen AI SDK.
type GeminiEmbedder struct {
	// client is the SDK client.
	client *genai.Client
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// taskType tunes the embedding for documents or queries.
	taskType string
	// dimensions is the requested output size (0 = model default).
	dimensions int32
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google API key (GOOGLE_API_KEY).
	APIKey string
	// Model is the embedding model name.
	Model string
	// TaskType is passed through to the API, e.g. "RETRIEVAL_DOCUMENT".
	TaskType string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// HTTPOptions overrides the SDK's endpoint (used by tests).
	HTTPOptions genai.HTTPOptions
}

// NewGeminiEmbedder constructs a GeminiEmbedder.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedder: %w: gemini requires GOOGLE_API_KEY", rag.ErrConfiguration)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: cfg.HTTPOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to create Gemini client: %w", err)
	}
	return &GeminiEmbedder{
		client:     client,
		model:      cfg.Model,
		taskType:   cfg.TaskType,
		dimensions: int32(cfg.Dimensions),
	}, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimensions > 0 {
		cfg.OutputDimensionality = &e.dimensions
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, embedErr("gemini", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, embedErr("gemini", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, embedErr("gemini", fmt.Errorf("embedding %d is empty", i))
		}
		out[i] = emb.Values
	}
	return out, nil
}
