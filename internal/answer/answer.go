// Package answer turns a question and the retrieved notes into a grounded
// answer. It calls a generative model once per question, falls back to an
// extractive answer when no model is configured, and never returns an error:
// generation failures become a readable answer that still carries the
// retrieved evidence.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/notesai-go/internal/budget"
	"github.com/54b3r/notesai-go/internal/rag"
)

// Outcome records how an answer was produced.
type Outcome string

const (
	// OutcomeGenerated means the model answered from the context.
	OutcomeGenerated Outcome = "generated"
	// OutcomeNoEvidence means nothing was retrieved and the model was not called.
	OutcomeNoEvidence Outcome = "no_evidence"
	// OutcomeExtractive means no model is configured; passages were quoted.
	OutcomeExtractive Outcome = "extractive"
	// OutcomeDegraded means generation failed; the error and passages were returned.
	OutcomeDegraded Outcome = "degraded"
)

// Turn is one prior exchange supplied explicitly by the caller.
type Turn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// Result is the full outcome of Synthesize.
type Result struct {
	// Text is the answer to show the user. Never empty.
	Text string
	// Outcome classifies how Text was produced.
	Outcome Outcome
	// Sources lists the distinct source labels that grounded the answer.
	Sources []string
	// Err is set for OutcomeDegraded and wraps rag.ErrSynthesis.
	Err error
}

// Config holds the synthesizer settings.
type Config struct {
	// Model is the generative model. nil selects extractive answers.
	Model model.BaseChatModel

	// MaxContextTokens is the prompt budget used to trim history and flag
	// oversized prompts. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// Timeout bounds the generation call. Defaults to 60s.
	Timeout time.Duration

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Synthesizer composes grounded answers.
type Synthesizer struct {
	cfg *Config
}

// New constructs a Synthesizer.
func New(cfg *Config) *Synthesizer {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Synthesizer{cfg: cfg}
}

// Answer returns the answer text for question grounded in docs.
func (s *Synthesizer) Answer(ctx context.Context, question string, docs []rag.RetrievedDocument) string {
	return s.Synthesize(ctx, question, docs, nil).Text
}

// Synthesize answers question from docs. history is optional prior turns,
// trimmed oldest-first to fit the prompt budget.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, docs []rag.RetrievedDocument, history []Turn) Result {
	if len(docs) == 0 {
		return Result{Text: NoInformationMessage, Outcome: OutcomeNoEvidence, Sources: []string{}}
	}
	sources := Sources(docs)

	if s.cfg.Model == nil {
		return Result{Text: extractive(docs), Outcome: OutcomeExtractive, Sources: sources}
	}

	msgs := s.messages(question, docs, history)

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	// Global handlers (e.g. Langfuse) observe the call.
	genCtx = callbacks.InitCallbacks(genCtx, &callbacks.RunInfo{
		Name:      "notesai.answer",
		Component: components.ComponentOfChatModel,
	})

	start := time.Now()
	reply, err := s.cfg.Model.Generate(genCtx, msgs)
	if err == nil && (reply == nil || strings.TrimSpace(reply.Content) == "") {
		err = fmt.Errorf("model returned an empty reply")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", rag.ErrSynthesis, rag.WrapTimeout(err))
		s.cfg.Logger.Error("answer: generation failed",
			slog.Any("error", err),
			slog.Int("documents", len(docs)),
		)
		return Result{
			Text:    errorPrefix + err.Error() + "\n\n" + extractive(docs),
			Outcome: OutcomeDegraded,
			Sources: sources,
			Err:     err,
		}
	}

	s.cfg.Logger.Info("answer: generated",
		slog.Int("documents", len(docs)),
		slog.Int("prompt_tokens_est", budget.EstimateMessages(msgs)),
		slog.Duration("duration", time.Since(start)),
	)

	return Result{
		Text:    withSources(reply.Content, docs),
		Outcome: OutcomeGenerated,
		Sources: sources,
	}
}

// messages assembles system prompt, trimmed history and grounded question.
func (s *Synthesizer) messages(question string, docs []rag.RetrievedDocument, history []Turn) []*schema.Message {
	fixed := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(buildUserPrompt(question, docs)),
	}

	if fixedTokens := budget.EstimateMessages(fixed); fixedTokens > s.cfg.MaxContextTokens {
		s.cfg.Logger.Warn("answer: grounded prompt exceeds context budget",
			slog.Int("estimated_tokens", fixedTokens),
			slog.Int("budget", s.cfg.MaxContextTokens),
		)
	}

	prior := make([]*schema.Message, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case "assistant":
			prior = append(prior, schema.AssistantMessage(t.Content, nil))
		case "user":
			prior = append(prior, schema.UserMessage(t.Content))
		}
	}
	prior = budget.TrimHistory(fixed, prior, s.cfg.MaxContextTokens)

	msgs := make([]*schema.Message, 0, len(prior)+2)
	msgs = append(msgs, fixed[0])
	msgs = append(msgs, prior...)
	msgs = append(msgs, fixed[1])
	return msgs
}
