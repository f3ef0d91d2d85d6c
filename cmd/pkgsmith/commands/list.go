package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available packages",
		Long: `List all valid package definitions in the package directory.

Files that failed to load are reported on stderr but never hide the rest
of the repository.`,
		Example: `  # List packages
  pkgsmith list

  # List packages as JSON
  pkgsmith list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setupApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			pkgs, invalid := a.repo.List()

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(struct {
					Packages interface{} `json:"packages"`
					Invalid  interface{} `json:"invalid,omitempty"`
				}{pkgs, invalid})
			}

			for _, pkg := range pkgs {
				envs := pkg.EnvironmentNames()
				sort.Strings(envs)
				desc := pkg.Description
				if desc == "" {
					desc = "-"
				}
				fmt.Printf("%-24s %-8s [%s]  %s\n", pkg.Name, pkg.Version, strings.Join(envs, ","), desc)
			}

			for _, inv := range invalid {
				fmt.Fprintf(os.Stderr, "warning: skipped %s: %s\n", inv.Path, inv.Reason)
			}
			return nil
		},
	}

	return cmd
}
