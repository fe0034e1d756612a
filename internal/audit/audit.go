// Package audit writes one structured record per CLI invocation: the command,
// the config file and the notesai environment grouped by concern. Credentials
// (API keys, the Graph access token, database DSNs) appear as "set" or
// "unset" only.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// envVar is one environment variable included in the audit record.
type envVar struct {
	name   string
	secret bool
}

// envGroup is a named set of variables logged together as a slog group.
type envGroup struct {
	name string
	vars []envVar
}

// groups is the ordered audit layout.
var groups = []envGroup{
	{"model", []envVar{
		{"MODEL_PROVIDER", false},
		{"MODEL_NAME", false},
		{"MODEL_API_KEY", true},
		{"GOOGLE_API_KEY", true},
		{"GEMINI_MODEL", false},
		{"OPENAI_API_KEY", true},
		{"OPENAI_MODEL", false},
		{"AZURE_OPENAI_API_KEY", true},
		{"AZURE_OPENAI_ENDPOINT", false},
		{"AZURE_OPENAI_DEPLOYMENT", false},
		{"OLLAMA_HOST", false},
		{"OLLAMA_MODEL", false},
		{"ARK_API_KEY", true},
		{"ARK_MODEL", false},
	}},
	{"embedding", []envVar{
		{"EMBEDDING_PROVIDER", false},
		{"EMBEDDING_MODEL", false},
		{"EMBEDDING_API_KEY", true},
		{"EMBEDDING_RETRIES", false},
	}},
	{"index", []envVar{
		{"INDEX_BACKEND", false},
		{"VECTOR_DB_PATH", false},
		{"QDRANT_HOST", false},
		{"QDRANT_PORT", false},
		{"QDRANT_COLLECTION", false},
		{"QDRANT_API_KEY", true},
		{"PGVECTOR_DSN", true},
		{"PGVECTOR_TABLE", false},
	}},
	{"pipeline", []envVar{
		{"CHUNK_SIZE", false},
		{"CHUNK_OVERLAP", false},
		{"RAG_TOP_K", false},
		{"INGEST_WORKERS", false},
	}},
	{"source", []envVar{
		{"MS_ACCESS_TOKEN", true},
		{"GRAPH_BASE_URL", false},
	}},
	{"runtime", []envVar{
		{"NOTESAI_API_KEY", true},
		{"LOG_LEVEL", false},
		{"LOG_FORMAT", false},
		{"LANGFUSE_PUBLIC_KEY", true},
		{"LANGFUSE_SECRET_KEY", true},
	}},
}

// secrets indexes the secret variables of groups by name.
var secrets = func() map[string]bool {
	m := make(map[string]bool)
	for _, g := range groups {
		for _, v := range g.vars {
			if v.secret {
				m[v.name] = true
			}
		}
	}
	return m
}()

// LogCommandStart emits the audit record for a command that is about to run.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(groups)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", displayPath(configPath)),
	)
	for _, g := range groups {
		vals := make([]any, 0, len(g.vars))
		for _, v := range g.vars {
			vals = append(vals, slog.String(v.name, SanitiseKey(v.name, os.Getenv(v.name))))
		}
		attrs = append(attrs, slog.Group(g.name, vals...))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the loggable form of an environment value: presence
// only for secrets, the value itself otherwise, "unset" when empty.
func SanitiseKey(name, value string) string {
	switch {
	case value == "":
		return "unset"
	case secrets[name]:
		return "set"
	default:
		return value
	}
}

// displayPath shortens the home directory to "~". An empty path is "none".
func displayPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if rest, ok := strings.CutPrefix(p, home); ok {
			return "~" + rest
		}
	}
	return p
}
