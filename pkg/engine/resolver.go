package engine

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// visitState tracks where a package sits in the depth-first traversal.
type visitState int

const (
	stateUnvisited visitState = iota
	stateInProgress
	stateDone
)

// Resolver computes the install order for a package and its transitive
// dependencies within one environment.
type Resolver struct {
	repo   Repository
	logger zerolog.Logger
}

// NewResolver creates a resolver over the given package repository.
func NewResolver(repo Repository, logger zerolog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the packages reachable from root in the given environment,
// dependencies before dependents, each package exactly once. Dependency
// order within a package is preserved, so the result is deterministic for a
// given repository snapshot.
//
// Resolution fails with PACKAGE_NOT_FOUND when a named package is absent
// from the repository, ENVIRONMENT_NOT_CONFIGURED when a package does not
// define the environment, and CYCLIC_DEPENDENCY when the dependency graph
// contains a cycle reachable from root.
func (r *Resolver) Resolve(root, environment string) ([]*Package, error) {
	if environment == "" {
		return nil, NewResolutionError(ErrCodeEnvironmentNotFound,
			"no environment selected", nil)
	}

	states := make(map[string]visitState)
	var order []*Package
	var path []string

	var visit func(name string) *OperationError
	visit = func(name string) *OperationError {
		switch states[name] {
		case stateDone:
			// Diamond dependency: already placed in the order.
			return nil
		case stateInProgress:
			return NewResolutionError(ErrCodeCyclicDependency,
				fmt.Sprintf("dependency cycle detected: %s", cyclePath(path, name)),
				nil).WithPackage(name)
		}

		pkg, ok := r.repo.Lookup(name)
		if !ok {
			return NewResolutionError(ErrCodePackageNotFound,
				fmt.Sprintf("package %q not found in repository", name),
				nil).WithPackage(name)
		}
		spec, ok := pkg.Environments[environment]
		if !ok {
			return NewResolutionError(ErrCodeEnvironmentNotFound,
				fmt.Sprintf("package %q does not support environment %q (supports: %s)",
					name, environment, strings.Join(pkg.EnvironmentNames(), ", ")),
				nil).WithPackage(name)
		}

		states[name] = stateInProgress
		path = append(path, name)
		for _, dep := range spec.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		states[name] = stateDone

		// Post-order: a package is appended only after all dependencies.
		order = append(order, pkg)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}

	names := make([]string, len(order))
	for i, p := range order {
		names[i] = p.Name
	}
	r.logger.Debug().
		Str("root", root).
		Str("environment", environment).
		Strs("order", names).
		Msg("dependency graph resolved")

	return order, nil
}

// Plan resolves root and projects the order into policy-facing plan steps.
func (r *Resolver) Plan(root, environment string) ([]PlanStep, error) {
	order, err := r.Resolve(root, environment)
	if err != nil {
		return nil, err
	}
	steps := make([]PlanStep, len(order))
	for i, pkg := range order {
		spec := pkg.Environments[environment]
		steps[i] = PlanStep{
			Package:     pkg.Name,
			Version:     pkg.Version,
			Environment: environment,
			Check:       spec.Check,
			Install:     spec.Install,
		}
	}
	return steps, nil
}

// cyclePath renders the traversal path from the root through to the second
// occurrence of the repeated package, e.g. "root -> a -> b -> a". Packages
// before the cycle stay in the diagnostic so the reader can see how the
// cycle was reached.
func cyclePath(path []string, repeated string) string {
	parts := append(append([]string{}, path...), repeated)
	return strings.Join(parts, " -> ")
}
