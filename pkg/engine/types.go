package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Package is a package definition: a named unit with one environment spec
// per supported environment. Packages are immutable once loaded; the
// repository owns them for the duration of an operation.
type Package struct {
	// Name is the package identity, unique within a repository.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Version is the version of the package definition itself, not of the
	// underlying software it installs.
	Version string `yaml:"version" json:"version" validate:"required"`

	// Homepage is an optional project URL.
	Homepage string `yaml:"homepage,omitempty" json:"homepage,omitempty"`

	// Description is an optional human-readable summary.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Environments maps environment names to their command specs.
	Environments map[string]EnvironmentSpec `yaml:"environments" json:"environments" validate:"dive"`
}

// EnvironmentSpec holds the check/install commands and dependencies of a
// package for one environment.
type EnvironmentSpec struct {
	// Install is the shell command that installs the package.
	Install string `yaml:"install" json:"install" validate:"required"`

	// Check is the shell command whose zero exit status means the package
	// is already installed. An empty check means the package is always
	// treated as not installed.
	Check string `yaml:"check,omitempty" json:"check,omitempty"`

	// Dependencies lists package names that must be satisfied first, in
	// declared order. Duplicates are permitted in source data and are
	// deduplicated during resolution.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// HasEnvironment reports whether the package is configured for env.
func (p *Package) HasEnvironment(env string) bool {
	_, ok := p.Environments[env]
	return ok
}

// EnvironmentNames returns the environments this package supports.
func (p *Package) EnvironmentNames() []string {
	names := make([]string, 0, len(p.Environments))
	for name := range p.Environments {
		names = append(names, name)
	}
	return names
}

// Repository is the read-only package source consulted during resolution.
// Implementations must be safe for concurrent readers; the snapshot seen by
// one operation must not change while the operation runs.
type Repository interface {
	// Lookup returns the package with the given name, or false if absent.
	Lookup(name string) (*Package, bool)

	// Names returns all known package names.
	Names() []string
}

// OperationStatus is the terminal state of an install operation.
type OperationStatus string

const (
	// StatusCompleted means every package in the resolved order was
	// installed or already present.
	StatusCompleted OperationStatus = "completed"

	// StatusAborted means the operation stopped at the first unrecoverable
	// failure; packages later in the order were not attempted.
	StatusAborted OperationStatus = "aborted"

	// StatusCanceled means the caller canceled the operation.
	StatusCanceled OperationStatus = "canceled"
)

// Summary is the aggregate result of one top-level install operation.
type Summary struct {
	// OperationID correlates the summary with the operation's events.
	OperationID uuid.UUID `json:"operation_id"`

	// RootPackage is the package the caller asked to install.
	RootPackage string `json:"root_package"`

	// Environment is the active environment name.
	Environment string `json:"environment"`

	// Status is the terminal state of the operation.
	Status OperationStatus `json:"status"`

	// Order is the resolved execution order, dependencies first.
	Order []string `json:"order,omitempty"`

	// Installed counts packages whose install command ran and succeeded.
	Installed int `json:"installed"`

	// AlreadyInstalled counts packages whose check command succeeded.
	AlreadyInstalled int `json:"already_installed"`

	// FailedPackage names the package at which an aborted operation
	// stopped, if any.
	FailedPackage string `json:"failed_package,omitempty"`

	// Err is the error that aborted the operation, if any.
	Err *OperationError `json:"error,omitempty"`

	// StartedAt is when the operation began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total wall-clock time of the operation.
	Duration time.Duration `json:"duration"`
}

// PlanStep is one entry of a resolved install plan, as presented to policy
// evaluation before any command runs.
type PlanStep struct {
	// Package is the package name.
	Package string `json:"package"`

	// Version is the package definition version.
	Version string `json:"version"`

	// Environment is the active environment.
	Environment string `json:"environment"`

	// Check is the check command that will run for this step.
	Check string `json:"check,omitempty"`

	// Install is the install command that will run if the check fails.
	Install string `json:"install"`
}

// PolicyGate vets a resolved plan before execution. A returned error of
// class policy aborts the operation with zero side effects; warnings are
// surfaced as events but do not block.
type PolicyGate interface {
	CheckPlan(ctx context.Context, steps []PlanStep) (warnings []string, err error)
}

// HistoryRecorder persists operation outcomes. Recording failures are
// logged, never fatal to the operation itself.
type HistoryRecorder interface {
	RecordOperation(ctx context.Context, summary *Summary) error
}
