package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkgsmith/pkgsmith/pkg/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the application configuration",
	}

	cmd.AddCommand(newConfigValidateCommand())

	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Load the configuration file, apply environment-variable overrides, and
check the result: required fields, remote definitions, and value ranges.`,
		Example: `  # Validate the default config file
  pkgsmith config validate

  # Validate an explicit file
  pkgsmith config validate -c ./pkgsmith.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			path := configPath
			if path == "" {
				path = config.DefaultPath()
			}
			fmt.Printf("Config %s is valid (environment %s)\n", path, cfg.Environment)
			return nil
		},
	}
}
