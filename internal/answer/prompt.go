package answer

import (
	"fmt"
	"strings"

	"github.com/54b3r/notesai-go/internal/rag"
)

// NoInformationMessage is returned, without calling the model, when no
// documents were retrieved. The model is told to use the same sentence when
// the context does not contain the answer.
const NoInformationMessage = "I couldn't find information about this in your notes."

// errorPrefix starts the answer returned when generation fails.
const errorPrefix = "I encountered an error generating your answer: "

// systemPrompt constrains the model to the supplied notes.
const systemPrompt = `You are an AI assistant that answers questions based on the user's OneNote content.
Answer the user's question using ONLY the provided context from their notes.
If the answer cannot be found in the context, say "` + NoInformationMessage + `"
Do not make up information that is not present in the context.
When you use a piece of context, mention its source (notebook, section and page).`

// buildContext renders every document with its source label.
func buildContext(docs []rag.RetrievedDocument) string {
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Document: %s\nSource: %s", d.Content, d.Source)
	}
	return b.String()
}

// buildUserPrompt lays out the grounding context and the question.
func buildUserPrompt(question string, docs []rag.RetrievedDocument) string {
	return fmt.Sprintf("CONTEXT:\n%s\n\nQUESTION:\n%s\n\nANSWER:", buildContext(docs), question)
}

// Sources returns the distinct source labels of docs in rank order.
func Sources(docs []rag.RetrievedDocument) []string {
	seen := make(map[string]bool, len(docs))
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Source == "" || seen[d.Source] {
			continue
		}
		seen[d.Source] = true
		out = append(out, d.Source)
	}
	return out
}

// withSources appends a "Sources:" footer listing each distinct label.
func withSources(text string, docs []rag.RetrievedDocument) string {
	sources := Sources(docs)
	if len(sources) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\nSources:")
	for _, s := range sources {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	return b.String()
}

// extractive composes an answer directly from the retrieved passages.
func extractive(docs []rag.RetrievedDocument) string {
	var b strings.Builder
	b.WriteString("Here is what I found in your notes:")
	for _, d := range docs {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(d.Content))
		if d.Source != "" {
			fmt.Fprintf(&b, "\n(%s)", d.Source)
		}
	}
	return b.String()
}
