package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func newInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <package>",
		Short: "Show a package definition",
		Example: `  # Show a package
  pkgsmith info ripgrep

  # Show a package as JSON
  pkgsmith info --json ripgrep`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setupApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			pkg, ok := a.repo.Lookup(args[0])
			if !ok {
				return fmt.Errorf("package %q not found", args[0])
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(pkg)
			}

			fmt.Printf("Name:        %s\n", pkg.Name)
			fmt.Printf("Version:     %s\n", pkg.Version)
			if pkg.Homepage != "" {
				fmt.Printf("Homepage:    %s\n", pkg.Homepage)
			}
			if pkg.Description != "" {
				fmt.Printf("Description: %s\n", pkg.Description)
			}

			envs := pkg.EnvironmentNames()
			sort.Strings(envs)
			for _, env := range envs {
				spec := pkg.Environments[env]
				fmt.Printf("\nEnvironment %s:\n", env)
				if spec.Check != "" {
					fmt.Printf("  check:   %s\n", spec.Check)
				}
				fmt.Printf("  install: %s\n", spec.Install)
				if len(spec.Dependencies) > 0 {
					fmt.Printf("  depends: %v\n", spec.Dependencies)
				}
			}
			return nil
		},
	}

	return cmd
}
