package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newRecordingTracer(t *testing.T) *Tracer {
	t.Helper()
	tracer, err := NewTracer(TracingConfig{
		Enabled:            true,
		Exporter:           "none",
		SamplingRate:       1.0,
		MaxExportBatchSize: 512,
		ExportTimeout:      time.Second,
	}, "pkgsmith", "test", "test")
	if err != nil {
		t.Fatalf("Failed to create tracer: %v", err)
	}
	return tracer
}

func TestNewTracer_DisabledIsUsable(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: false}, "pkgsmith", "test", "test")
	if err != nil {
		t.Fatalf("Failed to create disabled tracer: %v", err)
	}

	ctx, span := tracer.StartSpan(context.Background(), "operation.install")
	if span == nil {
		t.Fatal("Expected a span even when tracing is disabled")
	}
	span.End()

	if err := tracer.Shutdown(ctx); err != nil {
		t.Errorf("Expected clean shutdown, got: %v", err)
	}
}

func TestNewTracer_UnsupportedExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{
		Enabled:  true,
		Exporter: "jaeger",
	}, "pkgsmith", "test", "test")
	if err == nil {
		t.Error("Expected error for unsupported exporter")
	}
}

func TestTracer_StartSpan_RecordsTraceIDs(t *testing.T) {
	tracer := newRecordingTracer(t)
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.StartSpan(context.Background(), "operation.install",
		AttrOperationID.String("op-1"),
	)
	defer span.End()

	if TraceID(ctx) == "" {
		t.Error("Expected a trace ID inside a recording span")
	}
	if SpanID(ctx) == "" {
		t.Error("Expected a span ID inside a recording span")
	}
}

func TestTracer_SpanHelpers(t *testing.T) {
	tracer := newRecordingTracer(t)
	defer tracer.Shutdown(context.Background())

	ctx, opSpan := tracer.StartOperationSpan(context.Background(), "op-1", "ripgrep", "linux")
	if opSpan == nil {
		t.Fatal("Expected an operation span")
	}

	pkgCtx, pkgSpan := tracer.StartPackageSpan(ctx, "ripgrep")
	if pkgSpan == nil {
		t.Fatal("Expected a package span")
	}
	if TraceID(pkgCtx) != TraceID(ctx) {
		t.Error("Expected package span to share the operation trace")
	}

	cmdCtx, cmdSpan := tracer.StartCommandSpan(pkgCtx, "ripgrep", "check")
	if cmdSpan == nil {
		t.Fatal("Expected a command span")
	}
	if TraceID(cmdCtx) != TraceID(ctx) {
		t.Error("Expected command span to share the operation trace")
	}

	RecordError(cmdSpan, errors.New("check failed"))
	cmdSpan.End()
	RecordSuccess(pkgSpan)
	pkgSpan.End()
	RecordSuccess(opSpan)
	opSpan.End()
}

func TestRecordError_NilErrorIsNoop(t *testing.T) {
	tracer := newRecordingTracer(t)
	defer tracer.Shutdown(context.Background())

	_, span := tracer.StartSpan(context.Background(), "operation.install")
	defer span.End()

	RecordError(span, nil)
	RecordSuccess(span)
}

func TestTraceID_EmptyWithoutSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("Expected empty trace ID without a span, got %q", got)
	}
	if got := SpanID(context.Background()); got != "" {
		t.Errorf("Expected empty span ID without a span, got %q", got)
	}
}
