package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

func planStep(pkg, install string) engine.PlanStep {
	return engine.PlanStep{
		Package:     pkg,
		Version:     "1",
		Environment: "linux",
		Check:       "command -v " + pkg,
		Install:     install,
	}
}

func TestEngine_CheckPlan_AllowsCleanPlan(t *testing.T) {
	e := newTestEngine(t)

	warnings, err := e.CheckPlan(context.Background(), []engine.PlanStep{
		planStep("ripgrep", "apt-get install -y ripgrep"),
		planStep("fzf", "apt-get install -y fzf"),
	})
	if err != nil {
		t.Fatalf("Expected clean plan to pass, got: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
}

func TestEngine_CheckPlan_BlocksDestructiveCommand(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CheckPlan(context.Background(), []engine.PlanStep{
		planStep("wipe", "rm -rf / --no-preserve-root"),
	})
	if err == nil {
		t.Fatal("Expected destructive command to be blocked")
	}
	if !engine.HasCode(err, engine.ErrCodePolicyDenied) {
		t.Errorf("Expected POLICY_DENIED, got: %v", err)
	}
	if !strings.Contains(err.Error(), "destructive-commands") {
		t.Errorf("Expected violation to name the policy, got: %v", err)
	}
}

func TestEngine_CheckPlan_BlocksDiskFormat(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CheckPlan(context.Background(), []engine.PlanStep{
		planStep("fs", "mkfs.ext4 /dev/sda1"),
	})
	if err == nil {
		t.Error("Expected mkfs command to be blocked")
	}
}

func TestEngine_CheckPlan_WarnsOnPipedScript(t *testing.T) {
	e := newTestEngine(t)

	warnings, err := e.CheckPlan(context.Background(), []engine.PlanStep{
		planStep("rustup", "curl --proto '=https' -sSf https://sh.rustup.rs | sh"),
	})
	if err != nil {
		t.Fatalf("Expected warning-level violation not to block, got: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], "remote-script-execution") {
		t.Errorf("Expected warning to name the policy, got %q", warnings[0])
	}
	if !strings.Contains(warnings[0], "rustup") {
		t.Errorf("Expected warning to name the package, got %q", warnings[0])
	}
}

func TestEngine_CheckPlan_DisabledPolicySkipped(t *testing.T) {
	e := newTestEngine(t)

	// privilege-escalation ships disabled.
	warnings, err := e.CheckPlan(context.Background(), []engine.PlanStep{
		planStep("htop", "sudo apt-get install -y htop"),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected disabled policy to stay silent, got %v", warnings)
	}

	if err := e.EnablePolicy("privilege-escalation"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	warnings, err = e.CheckPlan(context.Background(), []engine.PlanStep{
		planStep("htop", "sudo apt-get install -y htop"),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("Expected sudo warning after enabling, got %v", warnings)
	}
}

func TestEngine_DisablePolicy(t *testing.T) {
	e := newTestEngine(t)

	if err := e.DisablePolicy("destructive-commands"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	_, err := e.CheckPlan(context.Background(), []engine.PlanStep{
		planStep("wipe", "rm -rf / --no-preserve-root"),
	})
	if err != nil {
		t.Errorf("Expected disabled policy not to block, got: %v", err)
	}

	if err := e.DisablePolicy("no-such-policy"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestEngine_LoadPolicies_CustomRego(t *testing.T) {
	e := newTestEngine(t)

	dir := t.TempDir()
	regoPath := filepath.Join(dir, "no-homebrew.rego")
	content := `package custom.policies.nobrew

import rego.v1

deny contains violation if {
	some step in input.steps
	contains(step.install, "brew ")
	violation := {
		"message": sprintf("%s installs via homebrew", [step.package]),
		"severity": "error",
		"package": step.package,
	}
}
`
	if err := os.WriteFile(regoPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := e.LoadPolicies(context.Background(), []string{regoPath}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	_, err := e.CheckPlan(context.Background(), []engine.PlanStep{
		planStep("ripgrep", "brew install ripgrep"),
	})
	if err == nil {
		t.Fatal("Expected custom policy to block homebrew install")
	}
	if !strings.Contains(err.Error(), "no-homebrew") {
		t.Errorf("Expected custom policy name in error, got: %v", err)
	}
}

func TestEngine_LoadPolicies_InvalidRego(t *testing.T) {
	e := newTestEngine(t)

	dir := t.TempDir()
	regoPath := filepath.Join(dir, "broken.rego")
	if err := os.WriteFile(regoPath, []byte("this is not rego"), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := e.LoadPolicies(context.Background(), []string{regoPath}); err == nil {
		t.Error("Expected error compiling invalid rego")
	}
}

func TestEngine_ListPolicies_IncludesBuiltins(t *testing.T) {
	e := newTestEngine(t)

	policies := e.ListPolicies()
	if len(policies) != len(GetBuiltinPolicies()) {
		t.Errorf("Expected %d builtin policies, got %d", len(GetBuiltinPolicies()), len(policies))
	}

	if _, err := e.GetPolicy("destructive-commands"); err != nil {
		t.Errorf("Expected builtin policy to be loaded, got: %v", err)
	}
}

func TestEngine_EvaluatePlan_ViolationDetails(t *testing.T) {
	e := newTestEngine(t)

	input := &Input{
		Steps: []engine.PlanStep{
			planStep("wipe", "dd if=/dev/zero of=/dev/sda"),
		},
		Context: &Context{Environment: "linux", RootPackage: "wipe"},
	}

	result, err := e.EvaluatePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("Failed to evaluate plan: %v", err)
	}
	if result.Allowed {
		t.Error("Expected plan to be denied")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("Expected 1 violation, got %d", len(result.Violations))
	}

	v := result.Violations[0]
	if v.Policy != "destructive-commands" {
		t.Errorf("Expected policy destructive-commands, got %q", v.Policy)
	}
	if v.Package != "wipe" {
		t.Errorf("Expected package wipe, got %q", v.Package)
	}
	if v.Severity != SeverityCritical {
		t.Errorf("Expected critical severity, got %q", v.Severity)
	}
}

func TestEngine_Watch_PicksUpNewPolicy(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()

	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Watch(ctx, []string{dir}); err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}
	defer e.StopWatching()

	steps := []engine.PlanStep{planStep("chaos-tool", "brew install chaos-tool")}
	if _, err := e.CheckPlan(context.Background(), steps); err != nil {
		t.Fatalf("Expected plan allowed before the policy lands, got: %v", err)
	}

	path := filepath.Join(dir, "no-brew.rego")
	policy := `package custom.policies.nobrew

import rego.v1

deny contains msg if {
	some step in input.steps
	contains(step.install, "brew install")
	msg := sprintf("%s installs via brew", [step.package])
}
`
	if err := os.WriteFile(path, []byte(policy), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	// The watcher debounces reloads; poll until the new policy blocks the
	// plan or the deadline passes.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := e.CheckPlan(context.Background(), steps); err != nil {
			if !engine.HasCode(err, engine.ErrCodePolicyDenied) {
				t.Fatalf("Expected POLICY_DENIED after reload, got: %v", err)
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("Expected the watched policy to block the plan after reload")
}
