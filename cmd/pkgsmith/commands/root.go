// Package commands implements the pkgsmith command-line interface.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkgsmith/pkgsmith/pkg/config"
)

var (
	// Global flags
	configPath  string
	environment string
	packageDir  string
	remoteName  string
	verbose     bool
	jsonOutput  bool

	// Version string shown by --version and attached to telemetry.
	appVersion = "dev"
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	appVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pkgsmith",
		Short: "pkgsmith - personal package install orchestrator",
		Long: `pkgsmith installs the tools you care about on any machine from a single
directory of package definitions.

Each package declares, per environment, a check command (is it already
installed?) and an install command, plus dependencies on other packages.
pkgsmith resolves the dependency graph, skips what is already present, and
installs the rest in order, streaming command output as it goes.

Features:
  - YAML or Starlark package definitions with schema validation
  - Deterministic dependency resolution with cycle diagnostics
  - Policy vetting of install plans via OPA/rego
  - Operation history in a local SQLite database
  - Remote installs over SSH`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&environment, "environment", "e", "", "environment to install for (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&packageDir, "package-dir", "d", "", "package definition directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&remoteName, "remote", "", "run commands on a configured remote host")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newInfoCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// loadConfig reads the configuration file and overlays command-line flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if environment != "" {
		cfg.Environment = environment
	}
	if packageDir != "" {
		cfg.PackageDirectory = packageDir
	}
	if remoteName != "" {
		cfg.Remote = remoteName
	}
	if verbose {
		cfg.Verbose = true
	}

	return cfg, nil
}
