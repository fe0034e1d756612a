// Package logging builds the process-wide [log/slog] logger and carries
// request-scoped loggers through context values ([WithLogger] /
// [FromContext]).
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
//
// String attributes whose key names a credential (api_key, *_token, secret,
// password, authorization) are redacted by every handler built here, so a
// Graph access token or model key never reaches the log stream.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Redacted replaces the value of a sensitive attribute.
const Redacted = "[REDACTED]"

// contextKey is an unexported type for context keys in this package.
type contextKey struct{}

// Options controls handler construction.
type Options struct {
	// Level is the minimum record level.
	Level slog.Level
	// Text selects the logfmt-style text handler instead of JSON.
	Text bool
}

// OptionsFromEnv reads LOG_LEVEL and LOG_FORMAT.
func OptionsFromEnv() Options {
	return Options{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
		Text:  strings.EqualFold(os.Getenv("LOG_FORMAT"), "text"),
	}
}

// New returns a logger writing to stderr, configured from the environment.
// stdout is reserved for answers and JSON output.
func New() *slog.Logger {
	return NewWriter(os.Stderr)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer) *slog.Logger {
	return NewWithOptions(w, OptionsFromEnv())
}

// NewWithOptions builds a logger from explicit options.
func NewWithOptions(w io.Writer, opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: opts.Level, ReplaceAttr: redact}
	if opts.Text {
		return slog.New(slog.NewTextHandler(w, ho))
	}
	return slog.New(slog.NewJSONHandler(w, ho))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the [*slog.Logger] stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// sensitiveKeys are matched as substrings of the lower-cased attribute key.
var sensitiveKeys = []string{"api_key", "apikey", "secret", "password", "authorization"}

// IsSensitive reports whether an attribute or variable name denotes a credential.
func IsSensitive(key string) bool {
	k := strings.ToLower(key)
	if k == "token" || strings.HasSuffix(k, "_token") {
		return true
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// redact is the handlers' ReplaceAttr hook. The audit log's "set"/"unset"
// presence markers pass through.
func redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString || !IsSensitive(a.Key) {
		return a
	}
	switch a.Value.String() {
	case "", "set", "unset":
		return a
	}
	return slog.String(a.Key, Redacted)
}

// parseLevel converts a string to a [slog.Level], defaulting to Info.
func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err == nil {
		return l
	}
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
