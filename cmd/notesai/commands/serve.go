package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/notesai-go/internal/ingestion"
	"github.com/54b3r/notesai-go/internal/logging"
	"github.com/54b3r/notesai-go/internal/rag"
	"github.com/54b3r/notesai-go/internal/server"
	"github.com/54b3r/notesai-go/internal/tracing"
)

// NewServeCmd constructs the `notesai serve` command, which starts the HTTP
// server.
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notesai HTTP server",
		Long: `Start the notesai HTTP server.

Routes:
  POST /ask        Answer a question (form field "query" or JSON body)
  POST /api/sync   Re-fetch OneNote pages and index them
  GET  /api/health Liveness
  GET  /api/ready  Index reachability
  GET  /metrics    Prometheus metrics

Set NOTESAI_API_KEY to require a Bearer token on /ask and /api/sync.

Examples:
  notesai serve
  notesai serve --addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			flush, _ := tracing.Setup(log)
			defer flush()

			idx, closeIdx := openIndex(ctx, log)
			defer closeIdx()

			a, err := buildAssistant(ctx, log, idx, nil)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(a, &server.Config{
				Addr:        addr,
				Logger:      log,
				Sync:        buildSync(ctx, log, idx),
				Pingers:     []server.Pinger{server.NewIndexPinger(idx)},
				RateLimit:   getEnvFloat("NOTESAI_RATE_LIMIT_RPS", 0),
				RateBurst:   getEnvInt("NOTESAI_RATE_LIMIT_BURST", 0),
				APIKey:      os.Getenv("NOTESAI_API_KEY"),
				CORSOrigins: getEnvList("NOTESAI_CORS_ORIGINS"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Address to listen on")

	return cmd
}

// buildSync wires POST /api/sync to the OneNote source. It returns nil, which
// leaves the route unregistered, when the source or pipeline cannot be built.
func buildSync(ctx context.Context, log *slog.Logger, idx rag.VectorIndex) server.SyncFunc {
	if os.Getenv("MS_ACCESS_TOKEN") == "" {
		log.Info("sync disabled", slog.String("reason", "MS_ACCESS_TOKEN not set"))
		return nil
	}
	src, err := buildSource(ctx, log, "")
	if err != nil {
		log.Warn("sync disabled", slog.Any("error", err))
		return nil
	}
	pipeline, err := buildPipeline(ctx, log, idx, &ingestion.Config{})
	if err != nil {
		log.Warn("sync disabled", slog.Any("error", err))
		return nil
	}
	return func(ctx context.Context) *ingestion.Report {
		return pipeline.IngestFrom(ctx, src)
	}
}
