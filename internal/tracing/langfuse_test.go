package tracing

import (
	"log/slog"
	"testing"
)

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	flush, enabled := Setup(slog.Default())
	if enabled {
		t.Fatal("Setup() enabled tracing without keys")
	}
	if flush == nil {
		t.Fatal("Setup() returned nil flush")
	}
	flush()
}
