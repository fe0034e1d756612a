package server

import (
	"log/slog"
	"net/http"

	"github.com/54b3r/notesai-go/internal/logging"
	"github.com/54b3r/notesai-go/internal/rag"
)

// handleSync handles POST /api/sync: one fetch-and-ingest pass. Only one sync
// runs at a time; a concurrent request receives 409.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if !s.syncMu.TryLock() {
		writeError(w, log, http.StatusConflict, "Sync already in progress")
		return
	}
	defer s.syncMu.Unlock()

	report := s.cfg.Sync(logging.WithLogger(r.Context(), log))

	s.metrics.ingestDocumentsTotal.WithLabelValues("processed").Add(float64(report.ProcessedCount))
	s.metrics.ingestDocumentsTotal.WithLabelValues("failed").Add(float64(report.FailedCount))

	status := http.StatusOK
	if report.Status != rag.StatusSuccess {
		status = http.StatusBadGateway
	}

	log.Info("sync finished",
		slog.String("state", string(report.State)),
		slog.Int("processed", report.ProcessedCount),
		slog.Int("failed", report.FailedCount),
	)

	writeJSON(w, log, status, report)
}
