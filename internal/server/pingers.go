package server

import (
	"context"
	"fmt"

	"github.com/54b3r/notesai-go/internal/rag"
)

// IndexPinger checks the vector index for GET /api/ready. Backends that
// expose a native health call are pinged directly; others are checked with a
// row count.
type IndexPinger struct {
	// index is the handle to check. nil reports not initialised.
	index rag.VectorIndex
}

// NewIndexPinger constructs an IndexPinger. index may be nil.
func NewIndexPinger(index rag.VectorIndex) *IndexPinger {
	return &IndexPinger{index: index}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping reports whether the index is open and reachable.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if p.index == nil {
		return rag.ErrIndexNotInitialized
	}
	if pinger, ok := p.index.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	if _, err := p.index.Count(ctx); err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	return nil
}
