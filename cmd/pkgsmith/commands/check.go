package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
	"github.com/pkgsmith/pkgsmith/pkg/exec"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <package>...",
		Short: "Check whether packages are already installed",
		Long: `Run the check command of each named package without installing anything.

A package with no check command for the active environment is reported as
not installed, since there is no way to detect it.`,
		Example: `  # Check a single package
  pkgsmith check ripgrep

  # Check several packages as JSON
  pkgsmith check --json ripgrep fzf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setupApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			type checkResult struct {
				Package   string `json:"package"`
				Installed bool   `json:"installed"`
				ExitCode  int    `json:"exit_code,omitempty"`
			}

			var results []checkResult
			for _, name := range args {
				pkg, ok := a.repo.Lookup(name)
				if !ok {
					return engine.NewResolutionError(engine.ErrCodePackageNotFound,
						fmt.Sprintf("package %q not found", name), nil)
				}
				spec, ok := pkg.Environments[a.cfg.Environment]
				if !ok {
					return engine.NewResolutionError(engine.ErrCodeEnvironmentNotFound,
						fmt.Sprintf("package %q is not configured for environment %q", name, a.cfg.Environment), nil)
				}

				res := checkResult{Package: name}
				if spec.Check != "" {
					result, err := a.runner.Run(ctx, exec.Request{
						Command: spec.Check,
						Timeout: a.cfg.CommandTimeout,
					}, nil)
					if err != nil {
						return fmt.Errorf("check %s: %w", name, err)
					}
					res.Installed = result.Success()
					res.ExitCode = result.ExitCode
				}
				results = append(results, res)
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(results)
			}
			for _, res := range results {
				status := "not installed"
				if res.Installed {
					status = "installed"
				}
				fmt.Printf("%-30s %s\n", res.Package, status)
			}
			return nil
		},
	}

	return cmd
}
