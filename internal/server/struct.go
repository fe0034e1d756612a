package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/notesai-go/internal/answer"
	"github.com/54b3r/notesai-go/internal/assistant"
	"github.com/54b3r/notesai-go/internal/ingestion"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:8080).
	Addr string
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full retrieval and generation round trip.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one /ask request end to end. Defaults to 2 minutes.
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Sync runs one fetch-and-ingest pass for POST /api/sync. If nil the
	// route is not registered.
	Sync SyncFunc
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on /ask and
	// /api/sync (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /ask and /api/sync.
	// If empty, authentication is disabled.
	APIKey string
	// CORSOrigins lists the browser origins allowed to call the API.
	// "*" allows any origin. Empty disables CORS headers.
	CORSOrigins []string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// SyncFunc fetches documents from the configured source and ingests them.
type SyncFunc func(ctx context.Context) *ingestion.Report

// asker is the boundary /ask calls. *assistant.Assistant satisfies it; tests
// inject a fake.
type asker interface {
	Ask(ctx context.Context, req assistant.Request) assistant.AnswerResult
}

// Server exposes the assistant over HTTP.
type Server struct {
	// asker answers questions.
	asker asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// syncMu rejects a sync while another one is running.
	syncMu sync.Mutex
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /ask.
type askRequest struct {
	// Query is the question.
	Query string `json:"query"`
	// History holds earlier turns of the conversation, oldest first.
	History []answer.Turn `json:"history,omitempty"`
	// TopK overrides the number of passages retrieved.
	TopK int `json:"top_k,omitempty"`
}

// healthResponse is the JSON body for GET /api/health.
type healthResponse struct {
	// Status is always "ok".
	Status string `json:"status"`
	// Version is the build version.
	Version string `json:"version"`
	// Commit is the build commit.
	Commit string `json:"commit"`
}

// errorResponse is the body written when a request is rejected before it
// reaches the assistant. It matches the JSON shape of a failed answer.
type errorResponse struct {
	// Success is always false.
	Success bool `json:"success"`
	// Message is the human-readable reason.
	Message string `json:"message"`
	// Progress is always empty.
	Progress []string `json:"progress"`
}
