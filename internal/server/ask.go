package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/54b3r/notesai-go/internal/assistant"
	"github.com/54b3r/notesai-go/internal/logging"
	"github.com/54b3r/notesai-go/internal/rag"
)

// maxAskBody caps the /ask request body, history included.
const maxAskBody = 1 << 20

// handleAsk handles POST /ask. The question arrives either as the form field
// "query" or as a JSON askRequest. The response is always the JSON
// AnswerResult, including its progress trail on failures.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxAskBody)
	req, err := decodeAsk(r)
	if err != nil {
		log.Warn("ask: bad request", slog.Any("error", err))
		writeError(w, log, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	res := s.asker.Ask(logging.WithLogger(ctx, log), assistant.Request{
		Query:   req.Query,
		History: req.History,
		TopK:    req.TopK,
	})

	s.metrics.askTotal.WithLabelValues(res.Outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(res.Outcome).Observe(time.Since(start).Seconds())

	writeJSON(w, log, askStatus(res), res)
}

// decodeAsk reads a JSON body when the request says so and form values
// otherwise.
func decodeAsk(r *http.Request) (askRequest, error) {
	var req askRequest

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Query = r.FormValue("query")
	if v := r.FormValue("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return req, err
		}
		req.TopK = k
	}
	return req, nil
}

// askStatus maps an AnswerResult to its HTTP status code.
func askStatus(res assistant.AnswerResult) int {
	switch {
	case res.Success:
		return http.StatusOK
	case errors.Is(res.Err, assistant.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(res.Err, rag.ErrConfiguration), errors.Is(res.Err, rag.ErrIndexNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes an errorResponse with the given status.
func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, errorResponse{Message: msg, Progress: []string{}})
}
