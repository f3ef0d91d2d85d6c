package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(MetricsConfig{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "pkgsmith",
	})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	return m
}

func TestNewMetrics_DisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create disabled metrics: %v", err)
	}

	// All recorders must be safe on the no-op instance.
	m.RecordOperationStarted("linux")
	m.RecordOperationCompleted("succeeded", time.Second)
	m.RecordCommand("check", "success", time.Millisecond)
	m.RecordPackageInstalled("linux")
	m.RecordPackageAlreadyInstalled("linux")
	m.RecordError("execution", "COMMAND_FAILED")

	if err := m.StartMetricsServer(); err != nil {
		t.Errorf("Expected disabled metrics server to be a no-op, got: %v", err)
	}
}

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordOperationStarted("linux")
	m.RecordOperationCompleted("succeeded", 2*time.Second)
	m.RecordCommand("install", "success", 150*time.Millisecond)
	m.RecordPackageInstalled("linux")
	m.RecordError("policy", "POLICY_DENIED")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics body: %v", err)
	}
	text := string(body)

	for _, metric := range []string{
		`pkgsmith_operations_started_total{environment="linux"} 1`,
		`pkgsmith_operations_completed_total{status="succeeded"} 1`,
		`pkgsmith_commands_executed_total{kind="install",status="success"} 1`,
		`pkgsmith_packages_installed_total{environment="linux"} 1`,
		`pkgsmith_errors_by_class_total{class="policy"} 1`,
		`pkgsmith_errors_by_code_total{code="POLICY_DENIED"} 1`,
	} {
		if !strings.Contains(text, metric) {
			t.Errorf("Expected metrics output to contain %q", metric)
		}
	}
}

func TestTimer_ObserveDuration(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
	})

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	if timer.Duration() <= 0 {
		t.Error("Expected a positive elapsed duration")
	}
	timer.ObserveDuration(hist)
}
