// Package config loads the pkgsmith application configuration. Settings
// come from a YAML file (default ~/.config/pkgsmith/config.yaml), overlaid
// with PKGSMITH_* environment variables and finally command-line flags,
// highest precedence last.
package config
