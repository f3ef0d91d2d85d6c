// Package telemetry provides observability instrumentation for pkgsmith:
// structured logging (zerolog), distributed tracing (OpenTelemetry), and
// Prometheus metrics.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Component loggers carry structured context through the system:
//
//	logger := tel.Logger.NewComponentLogger("orchestrator")
//	logger = logger.WithField("operation_id", opID)
//	logger.Zerolog().Info().Msg("install started")
//
// Traces cover each operation, package and command:
//
//	ctx, span := tel.Tracer.StartOperationSpan(ctx, opID, "ripgrep", "linux")
//	defer span.End()
//
// Key metrics exposed at the /metrics endpoint:
//
//   - pkgsmith_operations_started_total{environment}
//   - pkgsmith_operations_completed_total{status}
//   - pkgsmith_operation_duration_seconds{status}
//   - pkgsmith_commands_executed_total{kind,status}
//   - pkgsmith_command_duration_seconds{kind}
//   - pkgsmith_packages_installed_total{environment}
//   - pkgsmith_errors_by_class_total{class}
//   - pkgsmith_active_operations
//
// Tracing exporters: "stdout" (development), "otlp" (OTLP/gRPC collectors),
// "none" (generate but do not export). Never log credentials or tokens that
// may appear in install command output.
package telemetry
