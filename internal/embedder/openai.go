package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEmbedder implements rag.Embedder with the openai-go SDK. It also
// serves Azure OpenAI deployments. It is safe for concurrent use.
type OpenAIEmbedder struct {
	// client is the SDK client.
	client openai.Client
	// model is the embedding model or Azure deployment name.
	model string
	// dimensions is the requested vector length (0 = model default).
	dimensions int
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL overrides the API base. Empty uses https://api.openai.com/v1.
	// For Azure this is the resource endpoint.
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
	// Options are appended to the SDK request options (tests use this to
	// point at an httptest server).
	Options []option.RequestOption
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
// The SDK's own retries are disabled; see Retrying.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	switch {
	case cfg.Azure:
		endpoint := strings.TrimRight(cfg.BaseURL, "/")
		opts = append(opts,
			option.WithBaseURL(endpoint+"/openai/deployments/"+cfg.Model+"/"),
			option.WithHeader("api-key", cfg.APIKey),
			option.WithQuery("api-version", cfg.APIVersion),
		)
	default:
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
		}
	}
	opts = append(opts, cfg.Options...)

	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, embedErr("openai", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, embedErr("openai", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, embedErr("openai", fmt.Errorf("embedding index %d out of range", d.Index))
		}
		out[d.Index] = toFloat32(d.Embedding)
	}
	return out, nil
}

// toFloat32 converts the API's []float64 to the index's []float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
