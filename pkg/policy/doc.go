// Package policy provides Open Policy Agent (OPA) integration for pkgsmith.
//
// This package vets resolved install plans with the Rego policy language
// before any command runs. It includes built-in safety policies and supports
// loading custom policies from files.
//
// # Architecture
//
// The policy system consists of three main components:
//
//  1. Engine - Compiles and evaluates Rego policies against plans
//  2. Loader - Loads policies from files and directories
//  3. Built-in Policies - Pre-defined safety policies
//
// # Usage
//
// Creating a policy engine and checking a plan:
//
//	logger := zerolog.New(os.Stderr)
//	gate, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	warnings, err := gate.CheckPlan(ctx, steps)
//	if err != nil {
//	    // plan rejected; no command has run
//	}
//
// Loading custom policies:
//
//	err = gate.LoadPolicies(ctx, []string{"/etc/pkgsmith/policies"})
//
// # Policy Input
//
// Policies receive the full install plan as input:
//
//	{
//	  "steps": [
//	    {"package": "build-tools", "version": "1", "environment": "macos",
//	     "check": "xcode-select -p", "install": "xcode-select --install"},
//	    {"package": "ripgrep", "version": "2", "environment": "macos",
//	     "check": "command -v rg", "install": "brew install ripgrep"}
//	  ],
//	  "context": {"root_package": "ripgrep", "environment": "macos", ...}
//	}
//
// # Custom Policies
//
// Custom policies define a deny set over input.steps:
//
//	package custom.policies.nobrew
//
//	import rego.v1
//
//	deny contains violation if {
//	    some step in input.steps
//	    contains(step.install, "brew ")
//	    violation := {
//	        "message": sprintf("%s uses homebrew", [step.package]),
//	        "severity": "warning",
//	        "package": step.package,
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Surfaced as events but don't block the plan
//   - error: Block the plan before any command runs
//   - critical: Block the plan; intended for never-override rules
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return gate.LoadPolicies(ctx, paths)
//	})
package policy
