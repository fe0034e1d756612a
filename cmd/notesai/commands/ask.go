package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/notesai-go/internal/assistant"
	"github.com/54b3r/notesai-go/internal/logging"
	"github.com/54b3r/notesai-go/internal/tracing"
)

// errAskFailed is returned after a failed AnswerResult has been printed, so
// the process exits non-zero without repeating the message.
var errAskFailed = errors.New("ask failed")

// NewAskCmd constructs the `notesai ask` command, which answers a single
// question from the indexed notes.
func NewAskCmd() *cobra.Command {
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your notes",
		Long: `Ask a natural language question. The most similar passages are
retrieved from the index and the configured model answers from them only.

Progress is printed to stderr as it happens; the answer goes to stdout.

Examples:
  notesai ask "When is the weekly sync?"
  notesai ask --top-k 8 "What did we decide about the budget?"
  notesai ask --json "Who owns the migration?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			flush, _ := tracing.Setup(log)
			defer flush()

			idx, closeIdx := openIndex(ctx, log)
			defer closeIdx()

			var onProgress func(string)
			if !asJSON {
				onProgress = progressPrinter(cmd.ErrOrStderr())
			}

			a, err := buildAssistant(ctx, log, idx, onProgress)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			res := a.Ask(ctx, assistant.Request{Query: strings.Join(args, " "), TopK: topK})

			if asJSON {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
					return err
				}
			} else {
				printAnswer(cmd.OutOrStdout(), res)
			}
			if !res.Success {
				return errAskFailed
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of passages to retrieve (default: RAG_TOP_K or 5)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}

// progressPrinter returns an observer that prints each progress entry,
// highlighting error entries.
func progressPrinter(w io.Writer) func(string) {
	step := color.New(color.FgCyan)
	fail := color.New(color.FgRed)
	return func(msg string) {
		if strings.HasPrefix(msg, "Error") || strings.Contains(msg, "failed") {
			fail.Fprintf(w, "✗ %s\n", msg)
			return
		}
		step.Fprintf(w, "• %s\n", msg)
	}
}

// printAnswer writes the answer, or the failure message, to w.
func printAnswer(w io.Writer, res assistant.AnswerResult) {
	if !res.Success {
		color.New(color.FgRed, color.Bold).Fprintf(w, "\n%s\n", res.Message)
		return
	}
	fmt.Fprintf(w, "\n%s\n", res.Answer)
}
