package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkgsmith/pkgsmith/pkg/pkgfile"
	"github.com/rs/zerolog"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate package definition files",
		Long: `Validate every package definition in a directory against the package
schema. Without an argument the configured package directory is used.

The command exits non-zero if any file is invalid.`,
		Example: `  # Validate the configured package directory
  pkgsmith validate

  # Validate another directory
  pkgsmith validate ./packages`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.PackageDirectory
			}

			repo, err := pkgfile.NewDirRepository(dir, zerolog.Nop())
			if err != nil {
				return err
			}
			defer repo.Close()

			pkgs, invalid := repo.List()

			if jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(struct {
					Valid   int                   `json:"valid"`
					Invalid []pkgfile.InvalidFile `json:"invalid,omitempty"`
				}{len(pkgs), invalid}); err != nil {
					return err
				}
			} else {
				fmt.Printf("%d valid package(s) in %s\n", len(pkgs), dir)
				for _, inv := range invalid {
					fmt.Printf("INVALID %s: %s\n", inv.Path, inv.Reason)
				}
			}

			if len(invalid) > 0 {
				return fmt.Errorf("%d invalid package file(s)", len(invalid))
			}
			return nil
		},
	}

	return cmd
}
