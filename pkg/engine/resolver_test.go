package engine

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// mapRepository is an in-memory Repository for tests.
type mapRepository map[string]*Package

func (m mapRepository) Lookup(name string) (*Package, bool) {
	pkg, ok := m[name]
	return pkg, ok
}

func (m mapRepository) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

// testPkg builds a package with one "test" environment.
func testPkg(name string, deps ...string) *Package {
	return &Package{
		Name:    name,
		Version: "1.0.0",
		Environments: map[string]EnvironmentSpec{
			"test": {
				Install:      "install " + name,
				Check:        "check " + name,
				Dependencies: deps,
			},
		},
	}
}

func orderNames(order []*Package) []string {
	names := make([]string, len(order))
	for i, p := range order {
		names[i] = p.Name
	}
	return names
}

func TestResolver_Resolve_SinglePackage(t *testing.T) {
	repo := mapRepository{"alpha": testPkg("alpha")}
	resolver := NewResolver(repo, zerolog.Nop())

	order, err := resolver.Resolve("alpha", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(order) != 1 || order[0].Name != "alpha" {
		t.Errorf("Expected order [alpha], got %v", orderNames(order))
	}
}

func TestResolver_Resolve_LinearChain(t *testing.T) {
	repo := mapRepository{
		"app": testPkg("app", "lib"),
		"lib": testPkg("lib", "base"),
		"base": testPkg("base"),
	}
	resolver := NewResolver(repo, zerolog.Nop())

	order, err := resolver.Resolve("app", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := orderNames(order)
	want := []string{"base", "lib", "app"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestResolver_Resolve_DiamondDedup(t *testing.T) {
	// app depends on left and right, both of which depend on base.
	repo := mapRepository{
		"app":   testPkg("app", "left", "right"),
		"left":  testPkg("left", "base"),
		"right": testPkg("right", "base"),
		"base":  testPkg("base"),
	}
	resolver := NewResolver(repo, zerolog.Nop())

	order, err := resolver.Resolve("app", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := orderNames(order)
	if len(got) != 4 {
		t.Fatalf("Expected 4 packages (base appearing once), got %v", got)
	}

	pos := make(map[string]int, len(got))
	for i, name := range got {
		pos[name] = i
	}
	if pos["base"] > pos["left"] || pos["base"] > pos["right"] {
		t.Errorf("base must precede left and right, got %v", got)
	}
	if pos["left"] > pos["app"] || pos["right"] > pos["app"] {
		t.Errorf("left and right must precede app, got %v", got)
	}
}

func TestResolver_Resolve_DuplicateDependencies(t *testing.T) {
	repo := mapRepository{
		"app":  testPkg("app", "base", "base"),
		"base": testPkg("base"),
	}
	resolver := NewResolver(repo, zerolog.Nop())

	order, err := resolver.Resolve("app", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(order) != 2 {
		t.Errorf("Expected duplicate dependency deduplicated, got %v", orderNames(order))
	}
}

func TestResolver_Resolve_PackageNotFound(t *testing.T) {
	repo := mapRepository{"app": testPkg("app", "missing")}
	resolver := NewResolver(repo, zerolog.Nop())

	_, err := resolver.Resolve("app", "test")
	if err == nil {
		t.Fatal("Expected error for missing package")
	}
	if !HasCode(err, ErrCodePackageNotFound) {
		t.Errorf("Expected PACKAGE_NOT_FOUND, got: %v", err)
	}
	if !IsResolution(err) {
		t.Errorf("Expected resolution class error, got: %v", err)
	}
}

func TestResolver_Resolve_RootNotFound(t *testing.T) {
	resolver := NewResolver(mapRepository{}, zerolog.Nop())

	_, err := resolver.Resolve("ghost", "test")
	if !HasCode(err, ErrCodePackageNotFound) {
		t.Errorf("Expected PACKAGE_NOT_FOUND for missing root, got: %v", err)
	}
}

func TestResolver_Resolve_EnvironmentNotConfigured(t *testing.T) {
	repo := mapRepository{"alpha": testPkg("alpha")}
	resolver := NewResolver(repo, zerolog.Nop())

	_, err := resolver.Resolve("alpha", "production")
	if !HasCode(err, ErrCodeEnvironmentNotFound) {
		t.Errorf("Expected ENVIRONMENT_NOT_CONFIGURED, got: %v", err)
	}
}

func TestResolver_Resolve_EnvironmentNotConfiguredOnDependency(t *testing.T) {
	dep := testPkg("dep")
	dep.Environments = map[string]EnvironmentSpec{
		"other": {Install: "install dep"},
	}
	repo := mapRepository{
		"app": testPkg("app", "dep"),
		"dep": dep,
	}
	resolver := NewResolver(repo, zerolog.Nop())

	_, err := resolver.Resolve("app", "test")
	if !HasCode(err, ErrCodeEnvironmentNotFound) {
		t.Errorf("Expected ENVIRONMENT_NOT_CONFIGURED for dependency, got: %v", err)
	}
}

func TestResolver_Resolve_DirectCycle(t *testing.T) {
	repo := mapRepository{
		"a": testPkg("a", "b"),
		"b": testPkg("b", "a"),
	}
	resolver := NewResolver(repo, zerolog.Nop())

	_, err := resolver.Resolve("a", "test")
	if !HasCode(err, ErrCodeCyclicDependency) {
		t.Fatalf("Expected CYCLIC_DEPENDENCY, got: %v", err)
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("Expected cycle path 'a -> b -> a' in error, got: %v", err)
	}
}

func TestResolver_Resolve_SelfCycle(t *testing.T) {
	repo := mapRepository{"loop": testPkg("loop", "loop")}
	resolver := NewResolver(repo, zerolog.Nop())

	_, err := resolver.Resolve("loop", "test")
	if !HasCode(err, ErrCodeCyclicDependency) {
		t.Fatalf("Expected CYCLIC_DEPENDENCY, got: %v", err)
	}
	if !strings.Contains(err.Error(), "loop -> loop") {
		t.Errorf("Expected cycle path 'loop -> loop' in error, got: %v", err)
	}
}

func TestResolver_Resolve_IndirectCyclePath(t *testing.T) {
	// Root is outside the cycle; the reported path runs from the root to
	// the second occurrence of the repeated package.
	repo := mapRepository{
		"root": testPkg("root", "a"),
		"a":    testPkg("a", "b"),
		"b":    testPkg("b", "c"),
		"c":    testPkg("c", "a"),
	}
	resolver := NewResolver(repo, zerolog.Nop())

	_, err := resolver.Resolve("root", "test")
	if !HasCode(err, ErrCodeCyclicDependency) {
		t.Fatalf("Expected CYCLIC_DEPENDENCY, got: %v", err)
	}
	if !strings.Contains(err.Error(), "root -> a -> b -> c -> a") {
		t.Errorf("Expected cycle path 'root -> a -> b -> c -> a' in error, got: %v", err)
	}
}

func TestResolver_Resolve_EmptyEnvironment(t *testing.T) {
	resolver := NewResolver(mapRepository{"alpha": testPkg("alpha")}, zerolog.Nop())

	_, err := resolver.Resolve("alpha", "")
	if !HasCode(err, ErrCodeEnvironmentNotFound) {
		t.Errorf("Expected ENVIRONMENT_NOT_CONFIGURED for empty environment, got: %v", err)
	}
}

func TestResolver_Resolve_Deterministic(t *testing.T) {
	repo := mapRepository{
		"app": testPkg("app", "b", "a", "c"),
		"a":   testPkg("a"),
		"b":   testPkg("b"),
		"c":   testPkg("c"),
	}
	resolver := NewResolver(repo, zerolog.Nop())

	first, err := resolver.Resolve("app", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := resolver.Resolve("app", "test")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		for j := range first {
			if again[j].Name != first[j].Name {
				t.Fatalf("Expected deterministic order %v, got %v",
					orderNames(first), orderNames(again))
			}
		}
	}

	// Declared dependency order is preserved.
	got := orderNames(first)
	want := []string{"b", "a", "c", "app"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestResolver_Plan_ProjectsSteps(t *testing.T) {
	repo := mapRepository{
		"app":  testPkg("app", "base"),
		"base": testPkg("base"),
	}
	resolver := NewResolver(repo, zerolog.Nop())

	steps, err := resolver.Plan("app", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(steps))
	}
	if steps[0].Package != "base" || steps[1].Package != "app" {
		t.Errorf("Expected steps [base app], got [%s %s]", steps[0].Package, steps[1].Package)
	}
	if steps[1].Install != "install app" {
		t.Errorf("Expected install command 'install app', got %q", steps[1].Install)
	}
	if steps[0].Environment != "test" {
		t.Errorf("Expected environment 'test', got %q", steps[0].Environment)
	}
}
