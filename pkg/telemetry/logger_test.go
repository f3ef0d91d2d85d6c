package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func jsonFileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkgsmith.log")
	logger, err := NewLogger(LoggingConfig{
		Level:  level,
		Format: "json",
		Output: path,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger, path
}

func readLogLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if raw == "" {
			continue
		}
		entry := map[string]interface{}{}
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			t.Fatalf("Failed to parse log line %q: %v", raw, err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	logger, path := jsonFileLogger(t, "info")

	zl := logger.Zerolog()
	zl.Info().Str("package", "ripgrep").Msg("Package installed")

	lines := readLogLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(lines))
	}
	if lines[0]["message"] != "Package installed" {
		t.Errorf("Expected message 'Package installed', got %v", lines[0]["message"])
	}
	if lines[0]["package"] != "ripgrep" {
		t.Errorf("Expected package field ripgrep, got %v", lines[0]["package"])
	}
	if lines[0]["level"] != "info" {
		t.Errorf("Expected level info, got %v", lines[0]["level"])
	}
	if _, ok := lines[0]["time"]; !ok {
		t.Error("Expected a timestamp field")
	}
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	logger, path := jsonFileLogger(t, "error")

	zl := logger.Zerolog()
	zl.Info().Msg("should be dropped")
	zl.Error().Msg("should be kept")

	lines := readLogLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("Expected only the error line, got %d lines", len(lines))
	}
	if lines[0]["message"] != "should be kept" {
		t.Errorf("Expected the error message, got %v", lines[0]["message"])
	}
}

func TestNewLogger_InvalidOutputPath(t *testing.T) {
	_, err := NewLogger(LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "/nonexistent/dir/pkgsmith.log",
	})
	if err == nil {
		t.Error("Expected error for unwritable output path")
	}
}

func TestLogger_NewComponentLogger(t *testing.T) {
	logger, path := jsonFileLogger(t, "info")

	zl := logger.NewComponentLogger("resolver").Zerolog()
	zl.Info().Msg("Resolved plan")

	lines := readLogLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(lines))
	}
	if lines[0]["component"] != "resolver" {
		t.Errorf("Expected component resolver, got %v", lines[0]["component"])
	}
}

func TestLogger_WithFieldAndWithFields(t *testing.T) {
	logger, path := jsonFileLogger(t, "info")

	zl := logger.WithField("operation", "cli.install").
		WithFields(map[string]interface{}{
			"trace_id": "abc123",
			"span_id":  "def456",
		}).
		Zerolog()
	zl.Info().Msg("Operation started")

	lines := readLogLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(lines))
	}
	if lines[0]["operation"] != "cli.install" {
		t.Errorf("Expected operation field, got %v", lines[0]["operation"])
	}
	if lines[0]["trace_id"] != "abc123" {
		t.Errorf("Expected trace_id field, got %v", lines[0]["trace_id"])
	}
	if lines[0]["span_id"] != "def456" {
		t.Errorf("Expected span_id field, got %v", lines[0]["span_id"])
	}
}

func TestLogger_ContextRoundTrip(t *testing.T) {
	logger, _ := jsonFileLogger(t, "info")

	ctx := logger.WithContext(context.Background())
	if got := FromContext(ctx); got != logger {
		t.Error("Expected the same logger back from the context")
	}
}

func TestFromContext_DefaultWithoutLogger(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected a default logger, got nil")
	}
	// The default logger must be usable without panicking.
	zl := logger.Zerolog()
	zl.Debug().Msg("default logger smoke test")
}
