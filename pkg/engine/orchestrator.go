package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkgsmith/pkgsmith/pkg/exec"
	"github.com/pkgsmith/pkgsmith/pkg/telemetry"
)

// Options configures an Orchestrator. Gate, History, Metrics and Tracer may
// all be nil; the orchestrator works without any of them.
type Options struct {
	// Logger is the base logger; a component child logger is derived.
	Logger zerolog.Logger

	// DefaultTimeout bounds each check and install command. Zero means no
	// per-command timeout.
	DefaultTimeout time.Duration

	// Gate, when set, vets the resolved plan before any command runs.
	Gate PolicyGate

	// History, when set, records operation summaries after completion.
	History HistoryRecorder

	// Metrics, when set, receives operation and command metrics.
	Metrics *telemetry.Metrics

	// Tracer, when set, receives operation and command spans.
	Tracer *telemetry.Tracer
}

// Orchestrator runs install operations: it resolves the dependency order,
// then processes each package sequentially, stopping at the first
// unrecoverable failure.
type Orchestrator struct {
	repo     Repository
	runner   exec.Runner
	resolver *Resolver
	opts     Options
	logger   zerolog.Logger
}

// NewOrchestrator creates an orchestrator over the given repository and
// command runner.
func NewOrchestrator(repo Repository, runner exec.Runner, opts Options) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		runner:   runner,
		resolver: NewResolver(repo, opts.Logger),
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Install installs root and its transitive dependencies in environment,
// publishing progress events to bus (which may be nil). It returns the
// operation summary; for aborted and canceled operations the summary's Err
// field carries the failure, mirrored in the returned error.
//
// Packages are processed strictly in resolved order, one at a time. A
// package whose check command exits zero is skipped. Any command failure,
// timeout, spawn error or cancellation aborts the operation; packages
// already installed stay installed.
func (o *Orchestrator) Install(ctx context.Context, root, environment string, bus *Bus) (*Summary, error) {
	opID := uuid.New()
	start := time.Now()

	summary := &Summary{
		OperationID: opID,
		RootPackage: root,
		Environment: environment,
		StartedAt:   start,
	}

	logger := o.logger.With().
		Str("operation_id", opID.String()).
		Str("root", root).
		Str("environment", environment).
		Logger()

	opCtx := ctx
	var opSpan trace.Span
	if o.opts.Tracer != nil {
		opCtx, opSpan = o.opts.Tracer.StartOperationSpan(ctx, opID.String(), root, environment)
		defer opSpan.End()
	}

	o.opts.Metrics.RecordOperationStarted(environment)

	finish := func(opErr *OperationError) (*Summary, error) {
		summary.Duration = time.Since(start)
		summary.Err = opErr

		switch {
		case opErr == nil:
			summary.Status = StatusCompleted
		case opErr.Code == ErrCodeCanceled:
			summary.Status = StatusCanceled
		default:
			summary.Status = StatusAborted
		}

		o.opts.Metrics.RecordOperationCompleted(string(summary.Status), summary.Duration)
		if opErr != nil {
			o.opts.Metrics.RecordError(string(opErr.Class), opErr.Code)
		}
		if opSpan != nil {
			opSpan.SetAttributes(attribute.String("operation.status", string(summary.Status)))
			if opErr != nil {
				telemetry.RecordError(opSpan, opErr)
			} else {
				telemetry.RecordSuccess(opSpan)
			}
		}

		o.publishTerminal(bus, opID, summary)
		o.recordHistory(opCtx, logger, summary)

		if opErr != nil {
			return summary, opErr
		}
		return summary, nil
	}

	logger.Info().Msg("install operation started")
	o.publish(bus, Event{OperationID: opID, Kind: EventResolving, Package: root})

	order, rerr := o.resolver.Resolve(root, environment)
	if rerr != nil {
		var opErr *OperationError
		if !errors.As(rerr, &opErr) {
			opErr = NewInternalError("resolution failed", rerr)
		}
		logger.Error().Err(opErr).Msg("dependency resolution failed")
		return finish(opErr)
	}

	names := make([]string, len(order))
	for i, p := range order {
		names[i] = p.Name
	}
	summary.Order = names
	o.publish(bus, Event{OperationID: opID, Kind: EventResolved, Package: root, Order: names})

	if gerr := o.checkPolicy(opCtx, bus, opID, order, environment); gerr != nil {
		logger.Error().Err(gerr).Msg("plan rejected by policy")
		return finish(gerr)
	}

	for _, pkg := range order {
		if cerr := opCtx.Err(); cerr != nil {
			return finish(NewExecutionError(ErrCodeCanceled, "operation canceled", cerr))
		}

		installed, perr := o.processPackage(opCtx, bus, opID, logger, pkg, environment)
		if perr != nil {
			logger.Error().Err(perr).Str("package", pkg.Name).Msg("package processing failed")
			summary.FailedPackage = pkg.Name
			return finish(perr)
		}
		if installed {
			summary.Installed++
			o.opts.Metrics.RecordPackageInstalled(environment)
		} else {
			summary.AlreadyInstalled++
			o.opts.Metrics.RecordPackageAlreadyInstalled(environment)
		}
	}

	logger.Info().
		Int("installed", summary.Installed).
		Int("already_installed", summary.AlreadyInstalled).
		Msg("install operation completed")
	return finish(nil)
}

// processPackage runs the check and, if needed, the install command for one
// package. It returns true when the install command ran and succeeded, and
// false when the check found the package already present.
func (o *Orchestrator) processPackage(ctx context.Context, bus *Bus, opID uuid.UUID, logger zerolog.Logger, pkg *Package, environment string) (bool, *OperationError) {
	spec := pkg.Environments[environment]

	pkgCtx := ctx
	if o.opts.Tracer != nil {
		var span trace.Span
		pkgCtx, span = o.opts.Tracer.StartPackageSpan(ctx, pkg.Name)
		span.SetAttributes(attribute.String("package.version", pkg.Version))
		defer span.End()
	}

	// Check phase. An empty check command means there is no way to detect
	// the package, so it is treated as not installed.
	if spec.Check != "" {
		o.publish(bus, Event{OperationID: opID, Kind: EventCheckStarted, Package: pkg.Name})

		result, err := o.runCommand(pkgCtx, bus, opID, pkg.Name, "check", spec.Check)
		if err != nil {
			return false, err
		}
		if result.Success() {
			logger.Debug().Str("package", pkg.Name).Msg("package already installed")
			o.publish(bus, Event{OperationID: opID, Kind: EventAlreadyInstalled, Package: pkg.Name})
			return false, nil
		}
		// Non-zero check exit is the normal "not installed" signal, not a
		// failure.
		logger.Debug().
			Str("package", pkg.Name).
			Int("exit_code", result.ExitCode).
			Msg("check reported package missing")
	}

	// Install phase.
	o.publish(bus, Event{OperationID: opID, Kind: EventInstallStarted, Package: pkg.Name})

	result, err := o.runCommand(pkgCtx, bus, opID, pkg.Name, "install", spec.Install)
	if err != nil {
		return false, err
	}
	if !result.Success() {
		opErr := NewExecutionError(ErrCodeCommandFailed,
			fmt.Sprintf("install command exited with status %d", result.ExitCode), nil).
			WithPackage(pkg.Name).
			WithCommand(spec.Install)
		opErr.ExitCode = result.ExitCode
		return false, opErr
	}

	logger.Info().
		Str("package", pkg.Name).
		Dur("duration", result.Duration).
		Msg("package installed")
	o.publish(bus, Event{OperationID: opID, Kind: EventInstallCompleted, Package: pkg.Name})
	return true, nil
}

// runCommand executes one check or install command, streaming output lines
// as events and translating execution failures into operation errors.
func (o *Orchestrator) runCommand(ctx context.Context, bus *Bus, opID uuid.UUID, pkgName, kind, command string) (*exec.Result, *OperationError) {
	cmdCtx := ctx
	if o.opts.Tracer != nil {
		sctx, span := o.opts.Tracer.StartCommandSpan(ctx, pkgName, kind)
		cmdCtx = sctx
		defer span.End()
	}

	onChunk := func(stream exec.Stream, text string) {
		o.publish(bus, Event{
			OperationID: opID,
			Kind:        EventOutputChunk,
			Package:     pkgName,
			Stream:      stream,
			Text:        text,
		})
	}

	timer := telemetry.NewTimer()
	result, err := o.runner.Run(cmdCtx, exec.Request{
		Command: command,
		Timeout: o.opts.DefaultTimeout,
	}, onChunk)
	duration := timer.Duration()

	if err != nil {
		o.opts.Metrics.RecordCommand(kind, "error", duration)
		return nil, translateExecError(err).WithPackage(pkgName).WithCommand(command)
	}

	status := "success"
	if !result.Success() {
		status = "nonzero"
	}
	o.opts.Metrics.RecordCommand(kind, status, duration)
	return result, nil
}

// checkPolicy evaluates the resolved plan against the policy gate, if one
// is configured. Warnings become events; a policy error aborts the plan.
func (o *Orchestrator) checkPolicy(ctx context.Context, bus *Bus, opID uuid.UUID, order []*Package, environment string) *OperationError {
	if o.opts.Gate == nil {
		return nil
	}

	steps := make([]PlanStep, len(order))
	for i, pkg := range order {
		spec := pkg.Environments[environment]
		steps[i] = PlanStep{
			Package:     pkg.Name,
			Version:     pkg.Version,
			Environment: environment,
			Check:       spec.Check,
			Install:     spec.Install,
		}
	}

	warnings, err := o.opts.Gate.CheckPlan(ctx, steps)
	for _, w := range warnings {
		o.publish(bus, Event{OperationID: opID, Kind: EventPolicyWarning, Text: w})
	}
	if err != nil {
		var opErr *OperationError
		if errors.As(err, &opErr) {
			return opErr
		}
		return NewPolicyError("plan rejected by policy", err)
	}
	return nil
}

// translateExecError maps a command execution failure onto the operation
// error taxonomy.
func translateExecError(err error) *OperationError {
	var execErr *exec.Error
	if !errors.As(err, &execErr) {
		return NewInternalError("command execution failed", err)
	}
	switch execErr.Kind {
	case exec.KindSpawn:
		return NewExecutionError(ErrCodeSpawnFailed, "failed to spawn command", err)
	case exec.KindTimeout:
		return NewExecutionError(ErrCodeTimeout,
			fmt.Sprintf("command timed out after %s", execErr.Timeout), err)
	case exec.KindCanceled:
		return NewExecutionError(ErrCodeCanceled, "command canceled", err)
	default:
		return NewExecutionError(ErrCodeCommandFailed, "command execution failed", err)
	}
}

// publish sends an event if a bus is attached.
func (o *Orchestrator) publish(bus *Bus, ev Event) {
	if bus == nil {
		return
	}
	bus.Publish(ev)
}

// publishTerminal emits the terminal event matching the summary status.
func (o *Orchestrator) publishTerminal(bus *Bus, opID uuid.UUID, summary *Summary) {
	if bus == nil {
		return
	}
	ev := Event{
		OperationID: opID,
		Package:     summary.FailedPackage,
		Err:         summary.Err,
		Summary:     summary,
	}
	switch summary.Status {
	case StatusCompleted:
		ev.Kind = EventOperationCompleted
	case StatusCanceled:
		ev.Kind = EventOperationCanceled
	default:
		ev.Kind = EventOperationFailed
	}
	bus.Publish(ev)
}

// recordHistory persists the summary; persistence failures are logged only.
func (o *Orchestrator) recordHistory(ctx context.Context, logger zerolog.Logger, summary *Summary) {
	if o.opts.History == nil {
		return
	}
	// A canceled operation is still recorded, hence the detached context.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.opts.History.RecordOperation(recCtx, summary); err != nil {
		logger.Warn().Err(err).Msg("failed to record operation history")
	}
}
