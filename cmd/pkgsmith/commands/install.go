package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
	"github.com/pkgsmith/pkgsmith/pkg/stores"
	"github.com/pkgsmith/pkgsmith/pkg/telemetry"
)

func newInstallCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "install <package>...",
		Short: "Install packages and their dependencies",
		Long: `Install one or more packages, resolving dependencies first.

For each package in the resolved order:
  - The check command runs; a zero exit means the package is already
    installed and it is skipped.
  - Otherwise the install command runs.

The operation stops at the first failure. Packages installed before the
failure stay installed.`,
		Example: `  # Install a package and its dependencies
  pkgsmith install ripgrep

  # Install several packages
  pkgsmith install ripgrep fzf jq

  # Install for an explicit environment with a longer timeout
  pkgsmith install -e linux --timeout 5m neovim`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setupApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if timeout > 0 {
				a.cfg.CommandTimeout = timeout
			}

			ctx = a.tel.WithContext(ctx)
			cliLog := a.tel.Logger.NewComponentLogger("cli")
			orch := a.orchestrator()

			var failed bool
			for _, name := range args {
				ic := telemetry.StartOperation(ctx, "cli.install",
					telemetry.AttrPackageName.String(name),
					telemetry.AttrEnvironment.String(a.cfg.Environment),
				)

				bus := engine.NewBus(engine.DefaultBusCapacity)
				done := make(chan struct{})
				var captured []engine.Event
				go func() {
					defer close(done)
					events := bus.Events()
					if a.store != nil {
						events = teeEvents(events, &captured)
					}
					renderEvents(os.Stdout, events, jsonOutput)
				}()

				_, err := orch.Install(ic.Ctx, name, a.cfg.Environment, bus)
				bus.Close()
				<-done
				ic.End(err)
				zl := ic.Logger.Zerolog()
				zl.Debug().
					Str("package", name).
					Dur("duration", ic.Timer.Duration()).
					Msg("Install command finished")

				if a.store != nil {
					// Detached context so canceled operations still get
					// their event stream recorded.
					recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					if recErr := stores.NewHistory(a.store).RecordEvents(recCtx, captured); recErr != nil {
						zlw := cliLog.Zerolog()
						zlw.Warn().Err(recErr).Msg("Failed to record event history")
					}
					cancel()
				}

				if err != nil {
					failed = true
					if a.cfg.StopOnError {
						return fmt.Errorf("install %s: %w", name, err)
					}
				}
			}

			if failed {
				return fmt.Errorf("one or more installs failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-command timeout (overrides config)")

	return cmd
}
