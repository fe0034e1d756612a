// Package budget estimates prompt size for the answer synthesizer and trims
// caller-supplied conversation history to fit. Chat backends tokenize
// differently, so estimation uses a conservative heuristic of one token per
// four characters.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead approximates the per-message framing most chat APIs add.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget in tokens. Retrieved
	// notes (5 chunks of 1000 characters) plus instructions fit well inside it.
	DefaultMaxContextTokens = 8000
)

// Estimate returns a rough token count for s. Any non-empty string costs at
// least one token.
func Estimate(s string) int {
	chars := utf8.RuneCountInString(s)
	n := chars / charsPerToken
	if n == 0 && chars > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count of msgs,
// counting role, content and framing overhead for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed + history fits
// in maxTokens. fixed (system prompt, grounded question) is never trimmed.
// The returned history never starts with an assistant reply, so the model
// does not see an answer without its question.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 && fixedTokens+EstimateMessages(history) > maxTokens {
		history = history[1:]
	}
	for len(history) > 0 && history[0].Role == schema.Assistant {
		history = history[1:]
	}
	return history
}
