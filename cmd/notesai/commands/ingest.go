package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/54b3r/notesai-go/internal/ingestion"
	"github.com/54b3r/notesai-go/internal/logging"
	"github.com/54b3r/notesai-go/internal/rag"
)

// NewIngestCmd constructs the `notesai ingest` command, which fetches pages
// and indexes them.
func NewIngestCmd() *cobra.Command {
	var file string
	var rebuild bool
	var workers int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch notebook pages and index them",
		Long: `Fetch every OneNote page through Microsoft Graph (or read documents from a
JSON file) and index them: each page is split into chunks, each chunk is
embedded and stored in the vector index.

A failing page is reported and skipped; the run continues with the rest.
The command exits non-zero only when no page could be indexed.

Environment:
  MS_ACCESS_TOKEN      Graph bearer token (required unless --file is set)
  INDEX_BACKEND        sqlite (default), qdrant or pgvector
  EMBEDDING_PROVIDER   gemini, openai, azure or ollama
  CHUNK_SIZE           Chunk length in characters (default: 1000)
  CHUNK_OVERLAP        Overlap between chunks (default: 100)

Examples:
  notesai ingest
  notesai ingest --rebuild --workers 4
  notesai ingest --file notes.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			stderr := cmd.ErrOrStderr()

			idx, closeIdx := openIndex(ctx, log)
			defer closeIdx()

			src, err := buildSource(ctx, log, file)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			color.New(color.FgCyan).Fprintln(stderr, "• Fetching documents")
			docs, err := src.FetchDocuments(ctx)
			if err != nil {
				return fmt.Errorf("ingest: error fetching documents: %w", err)
			}
			color.New(color.FgCyan).Fprintf(stderr, "• Fetched %d documents\n", len(docs))

			bar := progressbar.NewOptions(len(docs),
				progressbar.OptionSetWriter(stderr),
				progressbar.OptionSetDescription("Indexing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			pipeline, err := buildPipeline(ctx, log, idx, &ingestion.Config{
				Workers: workers,
				Rebuild: rebuild,
				OnProgress: func(msg string) {
					log.Debug(msg)
				},
				OnDocument: func() { _ = bar.Add(1) },
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			report := pipeline.Ingest(ctx, docs)
			_ = bar.Finish()

			log.Info("ingestion finished",
				slog.String("state", string(report.State)),
				slog.Int("processed", report.ProcessedCount),
				slog.Int("failed", report.FailedCount),
			)

			if asJSON {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}

			if report.Status != rag.StatusSuccess {
				return fmt.Errorf("ingest: %s", report.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read documents from a JSON file instead of OneNote")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Clear the index before ingesting")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Documents processed concurrently (default: INGEST_WORKERS or 1)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

// printReport writes a human-readable summary of report to w.
func printReport(w io.Writer, report *ingestion.Report) {
	ok := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow, color.Bold)
	fail := color.New(color.FgRed, color.Bold)

	switch report.State {
	case ingestion.StateCompleted:
		ok.Fprintln(w, report.Message)
	case ingestion.StatePartialFailure:
		warn.Fprintln(w, report.Message)
	default:
		fail.Fprintln(w, report.Message)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  ✗ document %d (%s): %s\n", f.Index, f.Source, f.Message)
	}
}
