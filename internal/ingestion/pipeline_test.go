package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/notesai-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeEmbedder returns a fixed-size vector per text and fails for any batch
// containing failOn.
type fakeEmbedder struct {
	failOn string
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return nil, errors.New("provider rejected input")
		}
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

// memIndex is an in-memory rag.VectorIndex.
type memIndex struct {
	mu       sync.Mutex
	entries  map[string]rag.IndexEntry
	resets   int
	resetErr error
	prunes   int
	pruneErr error
}

func newMemIndex() *memIndex { return &memIndex{entries: map[string]rag.IndexEntry{}} }

func (m *memIndex) Upsert(_ context.Context, e rag.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	return nil
}

func (m *memIndex) Query(context.Context, []float32, int) ([]rag.SearchHit, error) {
	return nil, nil
}

func (m *memIndex) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *memIndex) Prune(_ context.Context, source string, keep []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes++
	for id, e := range m.entries {
		if e.Source == source && !slices.Contains(keep, id) {
			delete(m.entries, id)
		}
	}
	return m.pruneErr
}

func (m *memIndex) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resets++
	m.entries = map[string]rag.IndexEntry{}
	return nil
}

func (m *memIndex) Close() error { return nil }

func (m *memIndex) sources() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, e := range m.entries {
		out[e.Source]++
	}
	return out
}

type staticSource struct {
	docs []rag.Document
	err  error
}

func (s staticSource) FetchDocuments(context.Context) ([]rag.Document, error) { return s.docs, s.err }

func threeDocs() []rag.Document {
	return []rag.Document{
		{Content: "The meeting is on Tuesday at 3pm.", Source: "Notebook: Work, Section: Meetings, Page: Weekly"},
		{Content: "POISON budget figures for Q3.", Source: "Notebook: Work, Section: Finance, Page: Q3"},
		{Content: "Buy milk and eggs.", Source: "Notebook: Home, Section: Lists, Page: Groceries"},
	}
}

func containsEntry(entries []string, substr string) bool {
	for _, e := range entries {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngest_AllSucceed(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	p, err := NewPipeline(&fakeEmbedder{}, idx, nil)
	require.NoError(t, err)

	docs := threeDocs()
	docs[1].Content = "Budget figures for Q3."
	r := p.Ingest(context.Background(), docs)

	assert.Equal(t, rag.StatusSuccess, r.Status)
	assert.Equal(t, StateCompleted, r.State)
	assert.Equal(t, 3, r.ProcessedCount)
	assert.Equal(t, 3, r.TotalCount)
	assert.Zero(t, r.FailedCount)
	assert.Empty(t, r.Failures)
	assert.Equal(t, "Processed 3/3 documents successfully", r.Message)
	assert.Equal(t, "Starting to process 3 documents", r.Progress[0])
	assert.Contains(t, r.Progress, "Document 1: Split into 1 chunks")
	assert.Contains(t, r.Progress, "Processed document 3/3: Notebook: Home, Section: Lists, Page: Groceries")

	n, _ := idx.Count(context.Background())
	assert.Equal(t, 3, n)
}

func TestIngest_PartialFailureContinues(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	p, err := NewPipeline(&fakeEmbedder{failOn: "POISON"}, idx, nil)
	require.NoError(t, err)

	r := p.Ingest(context.Background(), threeDocs())

	assert.Equal(t, rag.StatusSuccess, r.Status)
	assert.Equal(t, StatePartialFailure, r.State)
	assert.Equal(t, 2, r.ProcessedCount)
	assert.Equal(t, 1, r.FailedCount)
	assert.Equal(t, "Processed 2/3 documents successfully", r.Message)
	assert.True(t, containsEntry(r.Progress, "Error processing document 2:"), "progress: %v", r.Progress)

	require.Len(t, r.Failures, 1)
	assert.Equal(t, 2, r.Failures[0].Index)
	assert.ErrorIs(t, r.Failures[0], rag.ErrEmbedding)

	got := idx.sources()
	assert.Len(t, got, 2)
	assert.NotContains(t, got, "Notebook: Work, Section: Finance, Page: Q3")
}

func TestIngest_AllFail(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(&fakeEmbedder{failOn: "e"}, newMemIndex(), nil)
	require.NoError(t, err)

	r := p.Ingest(context.Background(), threeDocs())
	assert.Equal(t, rag.StatusError, r.Status)
	assert.Equal(t, StateFailed, r.State)
	assert.Zero(t, r.ProcessedCount)
	assert.Equal(t, 3, r.FailedCount)
	assert.Equal(t, "Processed 0/3 documents successfully", r.Message)
}

func TestIngest_NoDocuments(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	p, err := NewPipeline(emb, newMemIndex(), nil)
	require.NoError(t, err)

	r := p.Ingest(context.Background(), nil)
	assert.Equal(t, rag.StatusError, r.Status)
	assert.Equal(t, "No documents provided", r.Message)
	assert.Equal(t, StateFailed, r.State)
	assert.Zero(t, emb.calls.Load())
}

func TestIngest_ReingestReplaces(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	overlap := 5
	p, err := NewPipeline(&fakeEmbedder{}, idx, &Config{ChunkSize: 40, ChunkOverlap: &overlap})
	require.NoError(t, err)

	docs := []rag.Document{{
		Content: "First paragraph of the note.\n\nSecond paragraph of the note.\n\nThird one.",
		Source:  "Notebook: A, Section: B, Page: C",
	}}
	p.Ingest(context.Background(), docs)
	first, _ := idx.Count(context.Background())
	require.Greater(t, first, 1)

	p.Ingest(context.Background(), docs)
	second, _ := idx.Count(context.Background())
	assert.Equal(t, first, second)
}

func TestIngest_ReorderedBatchReplaces(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	p, err := NewPipeline(&fakeEmbedder{}, idx, nil)
	require.NoError(t, err)

	all := threeDocs()
	all[1].Content = "Budget figures for Q3."
	weekly, q3, groceries := all[0], all[1], all[2]

	r := p.Ingest(context.Background(), []rag.Document{weekly, q3})
	require.Equal(t, StateCompleted, r.State)

	// A new page at the front shifts every existing page's batch position.
	r = p.Ingest(context.Background(), []rag.Document{groceries, weekly, q3})
	require.Equal(t, StateCompleted, r.State)

	n, _ := idx.Count(context.Background())
	assert.Equal(t, 3, n)
	assert.Equal(t, map[string]int{weekly.Source: 1, q3.Source: 1, groceries.Source: 1}, idx.sources())
}

func TestIngest_ShrunkDocumentDropsStaleChunks(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	overlap := 0
	p, err := NewPipeline(&fakeEmbedder{}, idx, &Config{ChunkSize: 40, ChunkOverlap: &overlap})
	require.NoError(t, err)

	source := "Notebook: Work, Section: Meetings, Page: Weekly"
	long := rag.Document{
		Source:  source,
		Content: "First paragraph of the note.\n\nSecond paragraph of the note.\n\nThird paragraph of the note.",
	}
	p.Ingest(context.Background(), []rag.Document{long})
	require.Greater(t, idx.sources()[source], 1)

	short := rag.Document{Source: source, Content: "Only one line left."}
	r := p.Ingest(context.Background(), []rag.Document{short})
	require.Equal(t, StateCompleted, r.State)
	assert.Equal(t, 1, idx.sources()[source])

	// An emptied page keeps no chunks at all.
	p.Ingest(context.Background(), []rag.Document{{Source: source}, threeDocs()[2]})
	assert.NotContains(t, idx.sources(), source)
}

func TestIngest_FailedSourceKeepsOldChunks(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	p, err := NewPipeline(&fakeEmbedder{}, idx, nil)
	require.NoError(t, err)

	docs := threeDocs()
	docs[1].Content = "Budget figures for Q3."
	p.Ingest(context.Background(), docs)

	failing, err := NewPipeline(&fakeEmbedder{failOn: "POISON"}, idx, nil)
	require.NoError(t, err)
	r := failing.Ingest(context.Background(), threeDocs())

	assert.Equal(t, StatePartialFailure, r.State)
	assert.Equal(t, 1, idx.sources()[docs[1].Source])
	n, _ := idx.Count(context.Background())
	assert.Equal(t, 3, n)
}

func TestIngest_PruneFailureIsReported(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	idx.pruneErr = rag.ErrIndexUnavailable
	p, err := NewPipeline(&fakeEmbedder{}, idx, nil)
	require.NoError(t, err)

	r := p.Ingest(context.Background(), threeDocs()[:1])
	assert.Equal(t, StateCompleted, r.State)
	assert.Equal(t, 1, r.ProcessedCount)
	assert.True(t, containsEntry(r.Progress, "Error removing stale chunks for Notebook: Work"), "progress: %v", r.Progress)
}

func TestIngest_Rebuild(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	require.NoError(t, idx.Upsert(context.Background(), rag.IndexEntry{ID: "stale", Source: "old"}))

	p, err := NewPipeline(&fakeEmbedder{}, idx, &Config{Rebuild: true})
	require.NoError(t, err)
	r := p.Ingest(context.Background(), threeDocs()[:1])

	assert.Equal(t, StateCompleted, r.State)
	assert.Equal(t, 1, idx.resets)
	assert.Zero(t, idx.prunes)
	assert.NotContains(t, idx.sources(), "old")
	assert.Equal(t, "Clearing existing index", r.Progress[0])
}

func TestIngest_RebuildFailure(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	idx.resetErr = rag.ErrIndexUnavailable
	emb := &fakeEmbedder{}
	p, err := NewPipeline(emb, idx, &Config{Rebuild: true})
	require.NoError(t, err)

	r := p.Ingest(context.Background(), threeDocs())
	assert.Equal(t, rag.StatusError, r.Status)
	assert.Contains(t, r.Message, "Error clearing index")
	assert.Zero(t, emb.calls.Load())
}

func TestIngest_EmbedTimeout(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(&fakeEmbedder{delay: time.Second}, newMemIndex(), &Config{EmbedTimeout: 10 * time.Millisecond})
	require.NoError(t, err)

	r := p.Ingest(context.Background(), threeDocs()[:1])
	require.Len(t, r.Failures, 1)
	assert.ErrorIs(t, r.Failures[0], rag.ErrTimeout)
}

func TestIngest_ParallelWorkers(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	var observed atomic.Int32
	var finished atomic.Int32
	p, err := NewPipeline(&fakeEmbedder{failOn: "POISON"}, idx, &Config{
		Workers:    4,
		OnProgress: func(string) { observed.Add(1) },
		OnDocument: func() { finished.Add(1) },
	})
	require.NoError(t, err)

	var docs []rag.Document
	for i := 0; i < 20; i++ {
		d := threeDocs()[i%3]
		d.Source = d.Source + " " + string(rune('a'+i))
		docs = append(docs, d)
	}
	r := p.Ingest(context.Background(), docs)

	assert.Equal(t, 20, r.TotalCount)
	assert.Equal(t, 13, r.ProcessedCount)
	assert.Equal(t, 7, r.FailedCount)
	assert.Equal(t, int32(20), finished.Load())
	assert.Equal(t, int32(len(r.Progress)), observed.Load())

	// Failures are reported in batch order.
	for i := 1; i < len(r.Failures); i++ {
		assert.Less(t, r.Failures[i-1].Index, r.Failures[i].Index)
	}
}

func TestChunkID_Deterministic(t *testing.T) {
	t.Parallel()
	assert.Equal(t, chunkID("a", 0, 1), chunkID("a", 0, 1))
	assert.NotEqual(t, chunkID("a", 0, 1), chunkID("a", 0, 2))
	assert.NotEqual(t, chunkID("a", 0, 1), chunkID("b", 0, 1))
	// A second document with the same label gets its own IDs.
	assert.NotEqual(t, chunkID("a", 0, 1), chunkID("a", 1, 1))
	assert.Len(t, chunkID("a", 0, 0), 32)
}

func TestIngest_DuplicateSourcesKeepBoth(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	p, err := NewPipeline(&fakeEmbedder{}, idx, nil)
	require.NoError(t, err)

	docs := []rag.Document{
		{Source: "Notebook: A, Section: B, Page: Untitled", Content: "First untitled page."},
		{Source: "Notebook: A, Section: B, Page: Untitled", Content: "Second untitled page."},
	}
	p.Ingest(context.Background(), docs)
	p.Ingest(context.Background(), docs)
	assert.Equal(t, 2, idx.sources()[docs[0].Source])
}

func TestNewPipeline_ChunkOverlap(t *testing.T) {
	t.Parallel()
	zero, fifty := 0, 50
	tests := []struct {
		name    string
		overlap *int
		want    int
	}{
		{name: "unset uses default", overlap: nil, want: 100},
		{name: "explicit zero", overlap: &zero, want: 0},
		{name: "explicit value", overlap: &fifty, want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := NewPipeline(&fakeEmbedder{}, newMemIndex(), &Config{ChunkSize: 500, ChunkOverlap: tt.overlap})
			require.NoError(t, err)
			require.NotNil(t, p.cfg.ChunkOverlap)
			assert.Equal(t, tt.want, *p.cfg.ChunkOverlap)
			assert.Equal(t, tt.want, p.splitter.Overlap())
		})
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewPipeline(nil, newMemIndex(), nil)
	assert.Error(t, err)

	_, err = NewPipeline(&fakeEmbedder{}, nil, nil)
	assert.ErrorIs(t, err, rag.ErrIndexNotInitialized)
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

func TestIngestFrom(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	p, err := NewPipeline(&fakeEmbedder{}, idx, nil)
	require.NoError(t, err)

	r := p.IngestFrom(context.Background(), staticSource{docs: threeDocs()[:2]})
	assert.Equal(t, StateCompleted, r.State)
	assert.Equal(t, "Fetching documents", r.Progress[0])
	assert.Contains(t, r.Progress, "Fetched 2 documents")

	r = p.IngestFrom(context.Background(), staticSource{err: errors.New("graph: 401")})
	assert.Equal(t, rag.StatusError, r.Status)
	assert.Contains(t, r.Message, "graph: 401")
}

func TestFileSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "docs.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"content": "Tuesday 3pm", "source": "Notebook: A, Section: B, Page: C"},
		{"content": "no label"}
	]`), 0o600))

	docs, err := FileSource{Path: path}.FetchDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Notebook: A, Section: B, Page: C", docs[0].Source)
	assert.Equal(t, path, docs[1].Source)

	_, err = FileSource{Path: filepath.Join(dir, "missing.json")}.FetchDocuments(context.Background())
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"content":`), 0o600))
	_, err = FileSource{Path: bad}.FetchDocuments(context.Background())
	assert.Error(t, err)
}
