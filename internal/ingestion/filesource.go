package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/54b3r/notesai-go/internal/rag"
)

// FileSource reads documents from a JSON file holding an array of
// {"content": ..., "source": ...} objects. It is used for offline ingestion
// and for seeding an index without Microsoft Graph access.
type FileSource struct {
	// Path is the JSON file to read.
	Path string
}

// FetchDocuments implements rag.DocumentSource.
func (f FileSource) FetchDocuments(ctx context.Context) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", f.Path, err)
	}
	var docs []rag.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("ingestion: parse %s: %w", f.Path, err)
	}
	for i := range docs {
		if docs[i].Source == "" {
			docs[i].Source = f.Path
		}
	}
	return docs, nil
}
