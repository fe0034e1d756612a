package assistant

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/notesai-go/internal/answer"
	"github.com/54b3r/notesai-go/internal/index"
	"github.com/54b3r/notesai-go/internal/ingestion"
	"github.com/54b3r/notesai-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// bowEmbedder hashes lower-cased words into a fixed-size bag-of-words
// vector, which gives deterministic lexical similarity.
type bowEmbedder struct {
	err error
}

const bowDims = 64

func (b bowEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, bowDims)
		for _, w := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%bowDims]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		if norm > 0 {
			n := float32(math.Sqrt(norm))
			for j := range v {
				v[j] /= n
			}
		}
		out[i] = v
	}
	return out, nil
}

// echoModel answers with the first context document line it was given.
type echoModel struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *echoModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	prompt := in[len(in)-1].Content
	line := strings.SplitN(strings.TrimPrefix(prompt, "CONTEXT:\n"), "\n", 2)[0]
	return schema.AssistantMessage(strings.TrimPrefix(line, "Document: "), nil), nil
}

func (e *echoModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func newSQLite(t *testing.T) rag.VectorIndex {
	t.Helper()
	idx, err := index.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func newAssistant(t *testing.T, emb rag.Embedder, idx rag.VectorIndex, m model.BaseChatModel, creds func() error) *Assistant {
	t.Helper()
	r, err := rag.NewRetriever(emb, idx, nil)
	require.NoError(t, err)
	var synth *answer.Synthesizer
	if m != nil {
		synth = answer.New(&answer.Config{Model: m})
	}
	a, err := New(&Config{Retriever: r, Synthesizer: synth, Credentials: creds})
	require.NoError(t, err)
	return a
}

func ingest(t *testing.T, emb rag.Embedder, idx rag.VectorIndex, docs ...rag.Document) {
	t.Helper()
	p, err := ingestion.NewPipeline(emb, idx, &ingestion.Config{ChunkSize: 1000})
	require.NoError(t, err)
	r := p.Ingest(context.Background(), docs)
	require.Equal(t, ingestion.StateCompleted, r.State, r.Progress)
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestAsk_EndToEnd(t *testing.T) {
	t.Parallel()
	emb := bowEmbedder{}
	idx := newSQLite(t)
	ingest(t, emb, idx,
		rag.Document{Content: "The meeting is on Tuesday at 3pm.", Source: "Notebook:A,Section:B,Page:C"},
		rag.Document{Content: "Buy milk and eggs.", Source: "Notebook:A,Section:Home,Page:Groceries"},
	)

	// Retrieval alone.
	r, err := rag.NewRetriever(emb, idx, nil)
	require.NoError(t, err)
	res := r.Search(context.Background(), "When is the meeting?", 1)
	require.Equal(t, rag.StatusSuccess, res.Status)
	require.Len(t, res.Documents, 1)
	assert.Contains(t, res.Documents[0].Content, "Tuesday")
	assert.Equal(t, "Notebook:A,Section:B,Page:C", res.Documents[0].Source)

	// Through the boundary.
	m := &echoModel{}
	a := newAssistant(t, emb, idx, m, nil)
	out := a.Ask(context.Background(), Request{Query: "When is the meeting?", TopK: 1})

	require.True(t, out.Success, out.Message)
	assert.Contains(t, out.Answer, "Tuesday at 3pm")
	assert.Contains(t, out.Answer, "Notebook:A,Section:B,Page:C")
	assert.Equal(t, []string{"Notebook:A,Section:B,Page:C"}, out.Sources)
	assert.Equal(t, string(answer.OutcomeGenerated), out.Outcome)
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, []string{
		"Verifying credentials and API keys",
		"Searching for notebook access",
		"Searching OneNote content for relevant information",
		"Generating query embedding",
		"Searching collection for top 1 results",
		"Found 1 relevant documents",
		"Processing information with AI",
		"Response generated successfully",
	}, out.Progress)
}

func TestAsk_EmptyIndexAnswersNoInformation(t *testing.T) {
	t.Parallel()
	m := &echoModel{}
	a := newAssistant(t, bowEmbedder{}, newSQLite(t), m, nil)

	out := a.Ask(context.Background(), Request{Query: "When is the meeting?"})
	assert.True(t, out.Success)
	assert.Equal(t, answer.NoInformationMessage, out.Answer)
	assert.Zero(t, m.calls)
	assert.Equal(t, "No matching content found in notebooks", out.Progress[len(out.Progress)-1])
}

// ---------------------------------------------------------------------------
// Failure branches
// ---------------------------------------------------------------------------

func TestAsk_EmptyQuestion(t *testing.T) {
	t.Parallel()
	a := newAssistant(t, bowEmbedder{}, newSQLite(t), nil, nil)

	out := a.Ask(context.Background(), Request{Query: "   "})
	assert.False(t, out.Success)
	assert.Equal(t, "No question provided", out.Message)
	assert.ErrorIs(t, out.Err, ErrEmptyQuestion)
	assert.Equal(t, []string{"Error: No question provided"}, out.Progress)
	assert.Empty(t, out.Answer)
}

func TestAsk_MissingCredentials(t *testing.T) {
	t.Parallel()
	creds := func() error { return errors.New("GOOGLE_API_KEY is not set") }
	a := newAssistant(t, bowEmbedder{}, newSQLite(t), nil, creds)

	out := a.Ask(context.Background(), Request{Query: "q"})
	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, rag.ErrConfiguration)
	assert.Contains(t, out.Message, "GOOGLE_API_KEY")
	assert.Equal(t, "Verifying credentials and API keys", out.Progress[0])
	assert.Len(t, out.Progress, 2)
}

func TestAsk_IndexNotLoaded(t *testing.T) {
	t.Parallel()
	a := newAssistant(t, bowEmbedder{}, nil, nil, nil)

	out := a.Ask(context.Background(), Request{Query: "q"})
	assert.False(t, out.Success)
	assert.Equal(t, "OneNote data not loaded or processed", out.Message)
	assert.ErrorIs(t, out.Err, rag.ErrIndexNotInitialized)
	assert.Equal(t, []string{
		"Verifying credentials and API keys",
		"Searching for notebook access",
		"Error: OneNote data not available",
	}, out.Progress)
}

func TestAsk_RetrievalError(t *testing.T) {
	t.Parallel()
	a := newAssistant(t, bowEmbedder{err: errors.New("quota exceeded")}, newSQLite(t), nil, nil)

	out := a.Ask(context.Background(), Request{Query: "q"})
	assert.False(t, out.Success)
	assert.True(t, strings.HasPrefix(out.Message, "Error processing your question: "))
	assert.ErrorIs(t, out.Err, rag.ErrEmbedding)
	assert.Contains(t, out.Progress, "Generating query embedding")
	assert.Equal(t, out.Message, out.Progress[len(out.Progress)-1])
}

func TestAsk_SynthesisFailureKeepsEvidence(t *testing.T) {
	t.Parallel()
	emb := bowEmbedder{}
	idx := newSQLite(t)
	ingest(t, emb, idx, rag.Document{Content: "The meeting is on Tuesday at 3pm.", Source: "Notebook:A,Section:B,Page:C"})

	a := newAssistant(t, emb, idx, &echoModel{err: errors.New("503 overloaded")}, nil)
	out := a.Ask(context.Background(), Request{Query: "When is the meeting?"})

	assert.True(t, out.Success)
	assert.ErrorIs(t, out.Err, rag.ErrSynthesis)
	assert.Equal(t, string(answer.OutcomeDegraded), out.Outcome)
	assert.Contains(t, out.Answer, "I encountered an error generating your answer")
	assert.Contains(t, out.Answer, "Tuesday at 3pm")
	assert.True(t, strings.HasPrefix(out.Progress[len(out.Progress)-1], "Answer generation failed:"))
}

func TestAsk_ExtractiveWithoutModel(t *testing.T) {
	t.Parallel()
	emb := bowEmbedder{}
	idx := newSQLite(t)
	ingest(t, emb, idx, rag.Document{Content: "The meeting is on Tuesday at 3pm.", Source: "Notebook:A,Section:B,Page:C"})

	a := newAssistant(t, emb, idx, nil, nil)
	out := a.Ask(context.Background(), Request{Query: "When is the meeting?"})
	assert.True(t, out.Success)
	assert.Equal(t, string(answer.OutcomeExtractive), out.Outcome)
	assert.Contains(t, out.Answer, "(Notebook:A,Section:B,Page:C)")
}

func TestAsk_ObserverSeesEveryStep(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var seen []string
	r, err := rag.NewRetriever(bowEmbedder{}, newSQLite(t), nil)
	require.NoError(t, err)
	a, err := New(&Config{Retriever: r, OnProgress: func(s string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}})
	require.NoError(t, err)

	out := a.Ask(context.Background(), Request{Query: "anything"})
	assert.Equal(t, out.Progress, seen)
}

func TestNew_RequiresRetriever(t *testing.T) {
	t.Parallel()
	_, err := New(&Config{})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}
