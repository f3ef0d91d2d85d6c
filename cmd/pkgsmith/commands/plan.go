package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <package>",
		Short: "Show the resolved install order without running anything",
		Long: `Resolve the dependency graph of a package and print the order its
packages would be processed in, dependencies first. No command runs.`,
		Example: `  # Show the plan for a package
  pkgsmith plan neovim

  # Plan as JSON, including the commands that would run
  pkgsmith plan --json neovim`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setupApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			resolver := engine.NewResolver(a.repo, a.tel.Logger.Zerolog())
			steps, err := resolver.Plan(args[0], a.cfg.Environment)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(steps)
			}

			fmt.Printf("Install order for %s (environment %s):\n", args[0], a.cfg.Environment)
			for i, step := range steps {
				fmt.Printf("%3d. %s (version %s)\n", i+1, step.Package, step.Version)
				if step.Check != "" {
					fmt.Printf("       check:   %s\n", step.Check)
				}
				fmt.Printf("       install: %s\n", step.Install)
			}
			return nil
		},
	}

	return cmd
}
