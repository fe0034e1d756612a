package embedder

import (
	"fmt"

	"github.com/54b3r/notesai-go/internal/rag"
)

// StatusError is a non-2xx HTTP response from an embedding backend.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// Message is the backend's error text, if any.
	Message string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// embedErr tags err as a rag.ErrEmbedding from the named backend, folding
// context deadlines into rag.ErrTimeout.
func embedErr(backend string, err error) error {
	return fmt.Errorf("%s embedder: %w: %w", backend, rag.ErrEmbedding, rag.WrapTimeout(err))
}
