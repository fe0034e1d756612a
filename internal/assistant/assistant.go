// Package assistant is the request boundary of notesai: it takes one
// question, checks that the system is usable, retrieves matching notes and
// composes an answer. Every outcome, including failures, carries the
// progress trail of the steps taken.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/notesai-go/internal/answer"
	"github.com/54b3r/notesai-go/internal/rag"
)

// ErrEmptyQuestion is returned for a blank query.
var ErrEmptyQuestion = errors.New("no question provided")

// OutcomeError labels a failed request in metrics.
const OutcomeError = "error"

// Request is one question with optional prior turns.
type Request struct {
	// Query is the user's question.
	Query string `json:"query"`
	// History holds prior turns supplied explicitly by the caller.
	History []answer.Turn `json:"history,omitempty"`
	// TopK overrides the number of retrieved documents when > 0.
	TopK int `json:"top_k,omitempty"`
}

// AnswerResult is the outcome of Ask. A success carries Answer; a failure
// carries Message. Both carry the progress accumulated so far.
type AnswerResult struct {
	Success  bool     `json:"success"`
	Answer   string   `json:"answer,omitempty"`
	Message  string   `json:"message,omitempty"`
	Progress []string `json:"progress"`
	Sources  []string `json:"sources"`

	// Outcome is the answer outcome on success and OutcomeError on failure.
	Outcome string `json:"-"`
	// Err is the error behind a failure, or the synthesis error behind a
	// degraded answer.
	Err error `json:"-"`
}

// Config holds the assistant's collaborators.
type Config struct {
	// Retriever finds relevant notes. Required.
	Retriever *rag.Retriever

	// Synthesizer composes the answer. Defaults to an extractive synthesizer.
	Synthesizer *answer.Synthesizer

	// Credentials verifies provider credentials per request. Optional.
	Credentials func() error

	// TopK is the default number of documents to retrieve. Defaults to 5.
	TopK int

	// OnProgress, when set, receives every progress entry as it is recorded.
	OnProgress func(msg string)

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Assistant answers questions from the indexed notes. It is safe for
// concurrent use.
type Assistant struct {
	cfg *Config
}

// New constructs an Assistant.
func New(cfg *Config) (*Assistant, error) {
	if cfg == nil || cfg.Retriever == nil {
		return nil, fmt.Errorf("assistant: retriever must not be nil")
	}
	if cfg.Synthesizer == nil {
		cfg.Synthesizer = answer.New(nil)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{cfg: cfg}, nil
}

// Ask answers req.Query.
func (a *Assistant) Ask(ctx context.Context, req Request) AnswerResult {
	start := time.Now()
	progress := rag.NewProgressLog(a.cfg.OnProgress)

	fail := func(msg string, err error) AnswerResult {
		a.cfg.Logger.Warn("assistant: request failed",
			slog.String("message", msg),
			slog.Any("error", err),
			slog.Duration("duration", time.Since(start)),
		)
		return AnswerResult{
			Message:  msg,
			Progress: progress.Entries(),
			Sources:  []string{},
			Outcome:  OutcomeError,
			Err:      err,
		}
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		progress.Add("Error: No question provided")
		return fail("No question provided", ErrEmptyQuestion)
	}

	progress.Add("Verifying credentials and API keys")
	if a.cfg.Credentials != nil {
		if err := a.cfg.Credentials(); err != nil {
			if !errors.Is(err, rag.ErrConfiguration) {
				err = fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
			}
			progress.Add("Error: %v", err)
			return fail(err.Error(), err)
		}
	}

	progress.Add("Searching for notebook access")
	if !a.cfg.Retriever.Initialized() {
		progress.Add("Error: OneNote data not available")
		return fail("OneNote data not loaded or processed", rag.ErrIndexNotInitialized)
	}

	progress.Add("Searching OneNote content for relevant information")
	k := req.TopK
	if k <= 0 {
		k = a.cfg.TopK
	}
	res := a.cfg.Retriever.Search(ctx, query, k)
	progress.Append(res.Progress...)
	if res.Status != rag.StatusSuccess {
		msg := "Error processing your question: " + res.Message
		progress.Add(msg)
		return fail(msg, res.Err)
	}

	if len(res.Documents) == 0 {
		progress.Add("No matching content found in notebooks")
		a.cfg.Logger.Info("assistant: no matching notes", slog.Duration("duration", time.Since(start)))
		return AnswerResult{
			Success:  true,
			Answer:   answer.NoInformationMessage,
			Progress: progress.Entries(),
			Sources:  []string{},
			Outcome:  string(answer.OutcomeNoEvidence),
		}
	}

	progress.Add("Processing information with AI")
	out := a.cfg.Synthesizer.Synthesize(ctx, query, res.Documents, req.History)
	if out.Err != nil {
		progress.Add("Answer generation failed: %v", out.Err)
	} else {
		progress.Add("Response generated successfully")
	}

	a.cfg.Logger.Info("assistant: answered",
		slog.String("outcome", string(out.Outcome)),
		slog.Int("documents", len(res.Documents)),
		slog.Duration("duration", time.Since(start)),
	)

	return AnswerResult{
		Success:  true,
		Answer:   out.Text,
		Progress: progress.Entries(),
		Sources:  out.Sources,
		Outcome:  string(out.Outcome),
		Err:      out.Err,
	}
}
