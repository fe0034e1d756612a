package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/54b3r/notesai-go/internal/rag"
)

// Supported index backends.
const (
	BackendSQLite   = "sqlite"
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
)

// Config selects and configures a VectorIndex backend.
type Config struct {
	// Backend is one of sqlite, qdrant, pgvector (default: sqlite).
	Backend string

	// Path is the SQLite file location (VECTOR_DB_PATH).
	Path string

	// Qdrant configures the qdrant backend.
	Qdrant QdrantConfig

	// PGVector configures the pgvector backend.
	PGVector PGVectorConfig

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv reads INDEX_BACKEND, VECTOR_DB_PATH, QDRANT_* and PGVECTOR_*.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		Backend: getEnvOrDefault("INDEX_BACKEND", BackendSQLite),
		Path:    os.Getenv("VECTOR_DB_PATH"),
		Qdrant: QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "notesai"),
			VectorSize: uint64(getEnvInt("QDRANT_VECTOR_SIZE", 0)),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		},
		PGVector: PGVectorConfig{
			DSN:   os.Getenv("PGVECTOR_DSN"),
			Table: os.Getenv("PGVECTOR_TABLE"),
		},
	}
	if cfg.Backend == BackendSQLite && cfg.Path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.Path = p
	}
	return cfg, nil
}

// Open constructs the configured backend. Missing required locations are
// rag.ErrConfiguration; connection failures are rag.ErrIndexUnavailable.
func Open(ctx context.Context, cfg *Config) (rag.VectorIndex, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch cfg.Backend {
	case "", BackendSQLite:
		idx, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		cfg.Logger.Info("index: opened sqlite index",
			slog.String("path", cfg.Path),
			slog.Int("dimension", idx.Dimension()),
		)
		return idx, nil

	case BackendQdrant:
		if cfg.Qdrant.Host == "" {
			return nil, fmt.Errorf("index: %w: qdrant backend requires QDRANT_HOST", rag.ErrConfiguration)
		}
		idx, err := NewQdrantIndex(ctx, &cfg.Qdrant)
		if err != nil {
			return nil, err
		}
		cfg.Logger.Info("index: connected to qdrant",
			slog.String("host", cfg.Qdrant.Host),
			slog.Int("port", cfg.Qdrant.Port),
			slog.String("collection", cfg.Qdrant.Collection),
		)
		return idx, nil

	case BackendPGVector:
		if cfg.PGVector.DSN == "" {
			return nil, fmt.Errorf("index: %w: pgvector backend requires PGVECTOR_DSN", rag.ErrConfiguration)
		}
		idx, err := NewPGVectorIndex(ctx, &cfg.PGVector)
		if err != nil {
			return nil, err
		}
		cfg.Logger.Info("index: connected to pgvector", slog.String("table", cfg.PGVector.Table))
		return idx, nil

	default:
		return nil, fmt.Errorf("index: %w: unknown backend %q (valid: sqlite, qdrant, pgvector)", rag.ErrConfiguration, cfg.Backend)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
