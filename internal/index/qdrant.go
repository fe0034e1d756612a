package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/notesai-go/internal/rag"
)

// pointNamespace derives deterministic Qdrant point UUIDs from entry IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/notesai-go/index"))

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection name (default: notesai).
	Collection string

	// VectorSize pre-creates the collection with this dimension. When zero
	// the collection is created by the first insert.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements rag.VectorIndex backed by a Qdrant collection
// using cosine distance.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration.
	cfg *QdrantConfig

	// mu guards dim and collection creation.
	mu sync.RWMutex

	// dim is the collection's vector size; 0 until the collection exists.
	dim uint64
}

// compile-time interface check
var _ rag.VectorIndex = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant and loads the collection's dimension if
// the collection already exists.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "notesai"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: create client: %w", rag.ErrIndexUnavailable, err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.load(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// load reads the existing collection's vector size, or creates the
// collection up front when cfg.VectorSize is set.
func (s *QdrantIndex) load(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: %w: check collection: %w", rag.ErrIndexUnavailable, err)
	}
	if !exists {
		if s.cfg.VectorSize > 0 {
			return s.createCollection(ctx, s.cfg.VectorSize)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: %w: collection info: %w", rag.ErrIndexUnavailable, err)
	}
	s.dim = info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if s.cfg.VectorSize > 0 && s.dim != s.cfg.VectorSize {
		return fmt.Errorf("qdrant: %w: collection %q has size %d, configured %d",
			rag.ErrDimensionMismatch, s.cfg.Collection, s.dim, s.cfg.VectorSize)
	}
	return nil
}

// createCollection creates the collection with cosine distance.
func (s *QdrantIndex) createCollection(ctx context.Context, size uint64) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w: create collection %q: %w", rag.ErrIndexUnavailable, s.cfg.Collection, err)
	}
	s.dim = size
	return nil
}

// Upsert stores entry as a point whose UUID is derived from entry.ID.
func (s *QdrantIndex) Upsert(ctx context.Context, entry rag.IndexEntry) error {
	size := uint64(len(entry.Embedding))
	if size == 0 {
		return fmt.Errorf("qdrant: %w: empty embedding for %s", rag.ErrDimensionMismatch, entry.ID)
	}

	s.mu.Lock()
	if s.dim == 0 {
		if err := s.createCollection(ctx, size); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	dim := s.dim
	s.mu.Unlock()

	if size != dim {
		return fmt.Errorf("qdrant: %w: got %d, collection has %d", rag.ErrDimensionMismatch, size, dim)
	}

	label := rag.ParseSource(entry.Source)
	payload := map[string]any{
		"entry_id": entry.ID,
		"text":     entry.Text,
		"source":   entry.Source,
		"notebook": label.Notebook,
		"section":  label.Section,
		"page":     label.Page,
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(PointID(entry.ID)),
			Vectors: qdrant.NewVectors(entry.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w: upsert %s: %w", rag.ErrIndexUnavailable, entry.ID, err)
	}
	return nil
}

// Query performs a cosine similarity search and returns the top-k hits.
func (s *QdrantIndex) Query(ctx context.Context, embedding []float32, k int) ([]rag.SearchHit, error) {
	s.mu.RLock()
	dim := s.dim
	s.mu.RUnlock()

	if dim == 0 || k <= 0 {
		return []rag.SearchHit{}, nil
	}
	if uint64(len(embedding)) != dim {
		return nil, fmt.Errorf("qdrant: %w: query has %d, collection has %d", rag.ErrDimensionMismatch, len(embedding), dim)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: query: %w", rag.ErrIndexUnavailable, err)
	}

	hits := make([]rag.SearchHit, 0, len(results))
	for _, r := range results {
		hit := rag.SearchHit{Score: r.GetScore()}
		if p := r.GetPayload(); p != nil {
			hit.Text = p["text"].GetStringValue()
			hit.Source = p["source"].GetStringValue()
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	dim := s.dim
	s.mu.RUnlock()
	if dim == 0 {
		return 0, nil
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: %w: count: %w", rag.ErrIndexUnavailable, err)
	}
	return int(n), nil
}

// Prune deletes the points of source whose entry ID is not in keep.
func (s *QdrantIndex) Prune(ctx context.Context, source string, keep []string) error {
	s.mu.RLock()
	dim := s.dim
	s.mu.RUnlock()
	if dim == 0 {
		return nil
	}

	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("source", source)}}
	if len(keep) > 0 {
		ids := make([]*qdrant.PointId, len(keep))
		for i, id := range keep {
			ids[i] = qdrant.NewIDUUID(PointID(id))
		}
		filter.MustNot = []*qdrant.Condition{qdrant.NewHasID(ids...)}
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w: prune: %w", rag.ErrIndexUnavailable, err)
	}
	return nil
}

// Reset deletes the collection. The next insert recreates it.
func (s *QdrantIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: %w: delete collection: %w", rag.ErrIndexUnavailable, err)
	}
	s.dim = 0
	return nil
}

// Ping checks that the Qdrant server is reachable.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: %w: health check: %w", rag.ErrIndexUnavailable, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// PointID maps an entry ID onto the UUID Qdrant requires.
func PointID(entryID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(entryID)).String()
}
