package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/54b3r/notesai-go/internal/rag"
	"github.com/54b3r/notesai-go/internal/version"
)

// fakePinger reports err from Ping and records whether the check context
// carried a deadline.
type fakePinger struct {
	name        string
	err         error
	hadDeadline bool
}

func (f *fakePinger) Name() string { return f.name }

func (f *fakePinger) Ping(ctx context.Context) error {
	_, f.hadDeadline = ctx.Deadline()
	return f.err
}

func getJSON(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("%s Content-Type: expected application/json, got %q", path, ct)
	}
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("%s: decode: %v", path, err)
	}
	return w
}

// ---------------------------------------------------------------------------
// GET /api/health
// ---------------------------------------------------------------------------

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServerWithRegistry(t, &fakeAsker{}, func(c *Config) {
		c.Pingers = []Pinger{&fakePinger{name: "index", err: errors.New("down")}}
	})

	var body healthResponse
	w := getJSON(t, s.Handler(), "/api/health", &body)

	// Liveness ignores dependency state.
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body.Status != "ok" || body.Version != version.Get().Version {
		t.Errorf("body = %+v", body)
	}
}

// ---------------------------------------------------------------------------
// GET /api/ready
// ---------------------------------------------------------------------------

func TestHandleReady(t *testing.T) {
	t.Parallel()

	refused := errors.New("connection refused")
	tests := []struct {
		name       string
		pingers    []*fakePinger
		wantStatus int
		wantReady  bool
		wantFailed []string
	}{
		{
			name:       "no pingers",
			wantStatus: http.StatusOK,
			wantReady:  true,
		},
		{
			name:       "all healthy",
			pingers:    []*fakePinger{{name: "embedder"}, {name: "index"}},
			wantStatus: http.StatusOK,
			wantReady:  true,
		},
		{
			name:       "index down",
			pingers:    []*fakePinger{{name: "embedder"}, {name: "index", err: refused}},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: []string{"index"},
		},
		{
			name:       "everything down",
			pingers:    []*fakePinger{{name: "embedder", err: refused}, {name: "index", err: refused}},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: []string{"embedder", "index"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer()
			for _, p := range tt.pingers {
				s.pingers = append(s.pingers, p)
			}

			var resp readyResponse
			w := getJSON(t, http.HandlerFunc(s.handleReady), "/api/ready", &resp)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if resp.Ready != tt.wantReady {
				t.Errorf("ready: expected %v, got %v", tt.wantReady, resp.Ready)
			}
			if resp.Checks == nil {
				t.Fatal("checks must encode as an array, got null")
			}
			if len(resp.Checks) != len(tt.pingers) {
				t.Fatalf("expected %d checks, got %d", len(tt.pingers), len(resp.Checks))
			}

			var failed []string
			for i, c := range resp.Checks {
				if c.Name != tt.pingers[i].name {
					t.Errorf("check %d: expected %q, got %q", i, tt.pingers[i].name, c.Name)
				}
				if !tt.pingers[i].hadDeadline {
					t.Errorf("check %q: check context had no deadline", c.Name)
				}
				if !c.OK {
					failed = append(failed, c.Name)
					if c.Error != refused.Error() {
						t.Errorf("check %q: error %q", c.Name, c.Error)
					}
				}
			}
			if len(failed) != len(tt.wantFailed) {
				t.Errorf("failed checks: expected %v, got %v", tt.wantFailed, failed)
			}
		})
	}
}

func TestHandleReady_CheckTimeout(t *testing.T) {
	t.Parallel()

	var left time.Duration
	s := newTestServer()
	s.pingers = []Pinger{pingFunc(func(ctx context.Context) error {
		dl, _ := ctx.Deadline()
		left = time.Until(dl)
		return nil
	})}

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if left <= 0 || left > checkTimeout {
		t.Errorf("check deadline: expected within %v, got %v", checkTimeout, left)
	}
}

// pingFunc adapts a function to Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
func (f pingFunc) Name() string                   { return "func" }

// ---------------------------------------------------------------------------
// IndexPinger
// ---------------------------------------------------------------------------

// countOnlyIndex is a rag.VectorIndex without a native Ping.
type countOnlyIndex struct {
	rag.VectorIndex
	err error
}

func (c *countOnlyIndex) Count(_ context.Context) (int, error) { return 3, c.err }

// pingIndex is a rag.VectorIndex with a native Ping.
type pingIndex struct {
	countOnlyIndex
	pingErr error
}

func (p *pingIndex) Ping(_ context.Context) error { return p.pingErr }

func TestIndexPinger(t *testing.T) {
	t.Parallel()

	down := errors.New("down")
	tests := []struct {
		name    string
		index   rag.VectorIndex
		wantErr error
	}{
		{name: "nil index", index: nil, wantErr: rag.ErrIndexNotInitialized},
		{name: "count ok", index: &countOnlyIndex{}},
		{name: "count fails", index: &countOnlyIndex{err: down}, wantErr: down},
		{name: "native ping preferred", index: &pingIndex{countOnlyIndex: countOnlyIndex{err: down}}},
		{name: "native ping fails", index: &pingIndex{pingErr: down}, wantErr: down},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewIndexPinger(tt.index).Ping(t.Context())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
