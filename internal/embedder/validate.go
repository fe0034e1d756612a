package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/54b3r/notesai-go/internal/rag"
)

// requirement is one setting a backend needs: any of vars must be non-empty.
type requirement struct {
	what string
	vars []string
}

// backendRequirements lists, per backend, the settings that must be present
// before the first Embed call. Ollama runs locally and needs none.
var backendRequirements = map[string][]requirement{
	"gemini": {{"Google API key", []string{"EMBEDDING_API_KEY", "GOOGLE_API_KEY"}}},
	"openai": {{"OpenAI API key", []string{"EMBEDDING_API_KEY", "OPENAI_API_KEY"}}},
	"azure": {
		{"Azure API key", []string{"EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY"}},
		{"Azure endpoint", []string{"EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT"}},
	},
	"ollama": nil,
}

// chatModelMarkers are name fragments of generative models. A name that also
// contains "embed" is never treated as a chat model.
var chatModelMarkers = []string{
	"gpt-", "o1", "o3", "claude", "gemini-",
	"llama", "mistral", "mixtral", "phi-", "phi3",
	"command-r", "deepseek", "qwen", "solar", "vicuna", "falcon", "yi-",
}

// looksLikeChatModel reports whether model names a chat/completion model
// rather than an embedding model.
func looksLikeChatModel(model string) bool {
	m := strings.ToLower(model)
	if strings.Contains(m, "embed") {
		return false
	}
	for _, marker := range chatModelMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// ValidateForRAG checks the embedding configuration without calling the
// backend. Missing credentials and unknown backends are rag.ErrConfiguration;
// a chat model in EMBEDDING_MODEL only produces a warning.
func ValidateForRAG(log *slog.Logger) error {
	backend := Backend()

	reqs, known := backendRequirements[backend]
	if !known {
		return fmt.Errorf("embedder: %w: unknown backend %q", rag.ErrConfiguration, backend)
	}
	for _, r := range reqs {
		if !anySet(r.vars) {
			return fmt.Errorf("embedder: %w: %s backend has no %s, set %s",
				rag.ErrConfiguration, backend, r.what, strings.Join(r.vars, " or "))
		}
	}

	if os.Getenv("EMBEDDING_PROVIDER") == "" && os.Getenv("MODEL_PROVIDER") == backend && backend != "gemini" {
		log.Warn("embedder: EMBEDDING_PROVIDER not set, embedding with the chat backend",
			slog.String("backend", backend),
		)
	}
	if model := os.Getenv("EMBEDDING_MODEL"); looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model",
			slog.String("model", model),
			slog.String("hint", "use an embedding model such as text-embedding-004 or nomic-embed-text"),
		)
	}
	return nil
}

func anySet(vars []string) bool {
	for _, v := range vars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
