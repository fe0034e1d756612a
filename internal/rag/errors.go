package rag

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Components wrap one of these so callers can branch with
// errors.Is instead of matching message text.
var (
	// ErrConfiguration means a required credential or location is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrIndexUnavailable means the index backing store is unreachable or corrupt.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrIndexNotInitialized means no index handle was ever opened.
	ErrIndexNotInitialized = errors.New("vector index not initialized")

	// ErrEmbedding means the embedding provider failed for a text.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensionMismatch means an embedding's length differs from the
	// index's established dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrSynthesis means the generative model call failed.
	ErrSynthesis = errors.New("answer synthesis failed")

	// ErrTimeout means a provider or index call exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// WrapTimeout returns err annotated with ErrTimeout when it was caused by a
// context deadline, and err unchanged otherwise.
func WrapTimeout(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// Kind returns the sentinel that err wraps, or nil when it wraps none.
func Kind(err error) error {
	for _, kind := range []error{
		ErrTimeout,
		ErrDimensionMismatch,
		ErrIndexNotInitialized,
		ErrIndexUnavailable,
		ErrEmbedding,
		ErrSynthesis,
		ErrConfiguration,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
