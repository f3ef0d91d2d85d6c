package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pkgsmith/pkgsmith/pkg/telemetry"
)

// DefaultCommandTimeout bounds each check/install command when the config
// does not say otherwise.
const DefaultCommandTimeout = 60 * time.Second

// EnvPrefix is the prefix of environment variables that override file
// settings.
const EnvPrefix = "PKGSMITH_"

// Config is the pkgsmith application configuration.
type Config struct {
	// Environment is the active environment name (e.g. "macos", "linux").
	Environment string `yaml:"environment" validate:"required"`

	// PackageDirectory is where package definition files live.
	PackageDirectory string `yaml:"package_directory" validate:"required"`

	// CommandTimeout bounds each check and install command.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// Shell is the shell used to run commands; empty selects /bin/sh.
	Shell string `yaml:"shell,omitempty"`

	// StopOnError aborts multi-package requests at the first failure.
	StopOnError bool `yaml:"stop_on_error"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`

	// UseColors enables ANSI colors in console output.
	UseColors bool `yaml:"use_colors"`

	// HistoryPath is the sqlite database recording operation history.
	// Empty disables history.
	HistoryPath string `yaml:"history_path,omitempty"`

	// PolicyPaths lists rego policy files evaluated against each plan.
	PolicyPaths []string `yaml:"policy_paths,omitempty"`

	// Logging configures structured logging.
	Logging telemetry.LoggingConfig `yaml:"logging"`

	// Tracing configures distributed tracing.
	Tracing telemetry.TracingConfig `yaml:"tracing"`

	// Metrics configures the Prometheus endpoint.
	Metrics telemetry.MetricsConfig `yaml:"metrics"`

	// Remotes configures SSH targets, keyed by name.
	Remotes map[string]RemoteConfig `yaml:"remotes,omitempty" validate:"dive"`

	// Remote selects a remote from Remotes; empty means run locally.
	Remote string `yaml:"remote,omitempty"`

	// EnvironmentRemotes maps environment names to the remote their
	// commands run on. An explicit Remote takes precedence.
	EnvironmentRemotes map[string]string `yaml:"environment_remotes,omitempty"`
}

// RemoteConfig describes one SSH target commands can run on.
type RemoteConfig struct {
	// Host is the hostname or address.
	Host string `yaml:"host" validate:"required"`

	// Port is the SSH port; zero selects 22.
	Port int `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// User is the login user.
	User string `yaml:"user" validate:"required"`

	// KeyPath is the private key file; empty tries the SSH agent.
	KeyPath string `yaml:"key_path,omitempty"`

	// KnownHostsPath overrides the default known_hosts location.
	KnownHostsPath string `yaml:"known_hosts_path,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tel := telemetry.DefaultConfig()
	return &Config{
		Environment:      "",
		PackageDirectory: defaultPackageDirectory(),
		CommandTimeout:   DefaultCommandTimeout,
		StopOnError:      true,
		UseColors:        true,
		Logging:          tel.Logging,
		Tracing:          tel.Tracing,
		Metrics:          tel.Metrics,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pkgsmith", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "pkgsmith", "config.yaml")
}

func defaultPackageDirectory() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pkgsmith", "packages")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "packages"
	}
	return filepath.Join(home, ".config", "pkgsmith", "packages")
}

// Load reads the configuration from path, applies PKGSMITH_* environment
// overrides, and validates the result. A missing file is not an error; the
// defaults plus environment variables are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(strings.NewReader(string(content)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays PKGSMITH_* environment variables onto the config.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvPrefix + "ENVIRONMENT"); ok {
		c.Environment = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "PACKAGE_DIRECTORY"); ok {
		c.PackageDirectory = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "COMMAND_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sCOMMAND_TIMEOUT: %w", EnvPrefix, err)
		}
		c.CommandTimeout = d
	}
	if v, ok := os.LookupEnv(EnvPrefix + "SHELL"); ok {
		c.Shell = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "HISTORY_PATH"); ok {
		c.HistoryPath = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "REMOTE"); ok {
		c.Remote = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	for _, b := range []struct {
		name   string
		target *bool
	}{
		{"STOP_ON_ERROR", &c.StopOnError},
		{"VERBOSE", &c.Verbose},
		{"USE_COLORS", &c.UseColors},
	} {
		if v, ok := os.LookupEnv(EnvPrefix + b.name); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, b.name, err)
			}
			*b.target = parsed
		}
	}
	return nil
}

// Validate checks the configuration for use by a command that runs
// installs. Commands that only read package files may skip it.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("no environment configured (set environment in the config file or %sENVIRONMENT)", EnvPrefix)
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must not be negative")
	}
	if c.Remote != "" {
		if _, ok := c.Remotes[c.Remote]; !ok {
			return fmt.Errorf("remote %q is not defined in remotes", c.Remote)
		}
	}
	for env, name := range c.EnvironmentRemotes {
		if _, ok := c.Remotes[name]; !ok {
			return fmt.Errorf("environment_remotes.%s references undefined remote %q", env, name)
		}
	}

	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// ActiveRemote returns the name of the remote the active environment's
// commands run on, or "" for local execution.
func (c *Config) ActiveRemote() string {
	if c.Remote != "" {
		return c.Remote
	}
	return c.EnvironmentRemotes[c.Environment]
}

// TelemetryConfig assembles the telemetry configuration from the loaded
// settings.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	tel := telemetry.DefaultConfig()
	tel.ServiceVersion = version
	tel.Environment = c.Environment
	tel.Logging = c.Logging
	tel.Tracing = c.Tracing
	tel.Metrics = c.Metrics
	if c.Verbose && tel.Logging.Level == "info" {
		tel.Logging.Level = "debug"
	}
	tel.Logging.NoColor = !c.UseColors
	return tel
}
