package commands

import (
	"context"
	"fmt"

	"github.com/pkgsmith/pkgsmith/pkg/config"
	"github.com/pkgsmith/pkgsmith/pkg/engine"
	"github.com/pkgsmith/pkgsmith/pkg/exec"
	"github.com/pkgsmith/pkgsmith/pkg/pkgfile"
	"github.com/pkgsmith/pkgsmith/pkg/policy"
	"github.com/pkgsmith/pkgsmith/pkg/stores"
	"github.com/pkgsmith/pkgsmith/pkg/telemetry"
	sshtransport "github.com/pkgsmith/pkgsmith/pkg/transports/ssh"
)

// app bundles the wired-up collaborators of one CLI invocation.
type app struct {
	cfg  *config.Config
	tel  *telemetry.Telemetry
	repo *pkgfile.DirRepository

	runner    exec.Runner
	sshClient *sshtransport.Client
	store     *stores.SQLiteStore
	gate      *policy.Engine
}

// setupApp loads the config and assembles the repository, runner, policy
// gate, history store and telemetry. Pass requireEnv=false for commands
// that only read package files.
func setupApp(ctx context.Context, requireEnv bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if requireEnv {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(appVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.Zerolog()

	repo, err := pkgfile.NewDirRepository(cfg.PackageDirectory, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, tel: tel, repo: repo}

	if name := cfg.ActiveRemote(); name != "" {
		remote, ok := cfg.Remotes[name]
		if !ok {
			return nil, fmt.Errorf("remote %q is not configured", name)
		}
		client, err := sshtransport.NewClient(sshtransport.FromRemote(remote), logger)
		if err != nil {
			return nil, fmt.Errorf("remote %q: %w", name, err)
		}
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("remote %q: %w", name, err)
		}
		a.sshClient = client
		a.runner = sshtransport.NewRunner(client, logger)
	} else {
		a.runner = exec.NewShellRunner(cfg.Shell, logger)
	}

	gate, err := policy.NewEngine(logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if len(cfg.PolicyPaths) > 0 {
		if err := gate.LoadPolicies(ctx, cfg.PolicyPaths); err != nil {
			a.Close(ctx)
			return nil, err
		}
		// Policies edited while an operation runs take effect on the next
		// plan evaluation.
		if err := gate.Watch(ctx, cfg.PolicyPaths); err != nil {
			logger.Warn().Err(err).Msg("Failed to watch policy paths")
		}
	}
	a.gate = gate

	if cfg.HistoryPath != "" {
		store := stores.NewSQLiteStore(stores.DefaultConfig(cfg.HistoryPath))
		if err := store.Init(ctx); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		a.store = store
	}

	if cfg.Metrics.Enabled {
		if err := tel.StartMetricsServer(); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	return a, nil
}

// orchestrator assembles the install engine from the app's collaborators.
func (a *app) orchestrator() *engine.Orchestrator {
	opts := engine.Options{
		Logger:         a.tel.Logger.Zerolog(),
		DefaultTimeout: a.cfg.CommandTimeout,
		Gate:           a.gate,
	}
	if a.store != nil {
		opts.History = stores.NewHistory(a.store)
	}
	if a.cfg.Metrics.Enabled {
		opts.Metrics = a.tel.Metrics
	}
	if a.cfg.Tracing.Enabled {
		opts.Tracer = a.tel.Tracer
	}
	return engine.NewOrchestrator(a.repo, a.runner, opts)
}

// Close releases the app's resources. Safe on a partially built app.
func (a *app) Close(ctx context.Context) {
	if a.gate != nil {
		_ = a.gate.StopWatching()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.sshClient != nil {
		_ = a.sshClient.Disconnect()
	}
	if a.repo != nil {
		a.repo.Close()
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(ctx)
	}
}
