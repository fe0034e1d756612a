package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/notesai-go/internal/logging"
	"github.com/54b3r/notesai-go/internal/version"
)

// checkTimeout bounds each dependency check on GET /api/ready.
const checkTimeout = 5 * time.Second

// Pinger is implemented by any dependency that can report its own
// reachability. Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error

	// Name returns a short label used in readiness responses (e.g. "index").
	Name() string
}

// readyCheck holds the per-dependency result of a readiness check.
type readyCheck struct {
	// Name is the dependency label (e.g. "index").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency check succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency check results.
	Checks []readyCheck `json:"checks"`
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, healthResponse{
		Status:  "ok",
		Version: info.Version,
		Commit:  info.Commit,
	})
}

// handleReady handles GET /api/ready. It checks each registered Pinger and
// returns 200 when all dependencies are reachable, or 503 when any check fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Checks: []readyCheck{}}
	allOK := true

	for _, p := range s.pingers {
		checkCtx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := p.Ping(checkCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			allOK = false
			log.Warn("readiness check failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	resp.Ready = allOK

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}
