package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestTelemetry(t *testing.T, tracing bool) *Telemetry {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ServiceVersion = "test"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = filepath.Join(t.TempDir(), "pkgsmith.log")
	cfg.Tracing.Enabled = tracing
	cfg.Tracing.Exporter = "none"

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}
	return tel
}

func TestNewTelemetry_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"

	if _, err := NewTelemetry(cfg); err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestTelemetry_ContextRoundTrip(t *testing.T) {
	tel := newTestTelemetry(t, false)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	if got := FromTelemetryContext(ctx); got != tel {
		t.Error("Expected the same telemetry instance back from the context")
	}
	// The logger travels with the telemetry instance.
	if got := FromContext(ctx); got != tel.Logger {
		t.Error("Expected the telemetry logger back from the context")
	}
}

func TestFromTelemetryContext_NilWithoutTelemetry(t *testing.T) {
	if got := FromTelemetryContext(context.Background()); got != nil {
		t.Errorf("Expected nil without telemetry in context, got %v", got)
	}
}

func TestStartOperation_WithoutTelemetry(t *testing.T) {
	ic := StartOperation(context.Background(), "cli.install")

	if ic.Ctx == nil {
		t.Fatal("Expected a context on the instrumented operation")
	}
	if ic.Logger == nil {
		t.Fatal("Expected a fallback logger")
	}
	if ic.Timer == nil {
		t.Fatal("Expected a timer")
	}
	if ic.Span != nil {
		t.Error("Expected no span without telemetry in context")
	}

	// End must be safe with and without an error even when no span exists.
	ic.End(nil)
	ic.End(errors.New("install failed"))
}

func TestStartOperation_WithTelemetry(t *testing.T) {
	tel := newTestTelemetry(t, true)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	ic := StartOperation(ctx, "cli.install",
		AttrPackageName.String("ripgrep"),
		AttrEnvironment.String("linux"),
	)

	if ic.Span == nil {
		t.Fatal("Expected a span when telemetry carries an enabled tracer")
	}
	if TraceID(ic.Ctx) == "" {
		t.Error("Expected the operation context to carry a trace ID")
	}
	if ic.Logger == nil {
		t.Fatal("Expected an operation-scoped logger")
	}
	if ic.Timer.Duration() < 0 {
		t.Error("Expected a non-negative elapsed duration")
	}

	ic.End(errors.New("install failed"))
}

func TestTelemetry_Shutdown(t *testing.T) {
	tel := newTestTelemetry(t, true)

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected clean shutdown, got: %v", err)
	}
}
