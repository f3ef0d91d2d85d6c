package pkgfile

import (
	"strings"
	"testing"
	"time"
)

func TestStarlarkLoader_LoadPackage_Basic(t *testing.T) {
	script := `
pkg = {
    "name": "fzf",
    "version": "1.0.0",
    "environments": {
        "linux": {
            "install": "apt-get install -y fzf",
            "check": "command -v fzf",
        },
    },
}
`
	pkg, err := NewStarlarkLoader(0).LoadPackage("fzf.star", script)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if pkg.Name != "fzf" {
		t.Errorf("Expected name fzf, got %q", pkg.Name)
	}
	if pkg.Environments["linux"].Install != "apt-get install -y fzf" {
		t.Errorf("Unexpected install command: %q", pkg.Environments["linux"].Install)
	}
}

func TestStarlarkLoader_LoadPackage_ProceduralDefinition(t *testing.T) {
	// The point of Starlark definitions: generating repetitive
	// environments programmatically.
	script := `
def env(manager, name):
    return {
        "install": "%s install -y %s" % (manager, name),
        "check": "command -v %s" % name,
    }

pkg = {
    "name": "jq",
    "version": "2.0.0",
    "environments": {
        "debian": env("apt-get", "jq"),
        "fedora": env("dnf", "jq"),
    },
}
`
	pkg, err := NewStarlarkLoader(0).LoadPackage("jq.star", script)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(pkg.Environments) != 2 {
		t.Fatalf("Expected 2 environments, got %d", len(pkg.Environments))
	}
	if pkg.Environments["fedora"].Install != "dnf install -y jq" {
		t.Errorf("Unexpected fedora install: %q", pkg.Environments["fedora"].Install)
	}
}

func TestStarlarkLoader_LoadPackage_MissingPkgGlobal(t *testing.T) {
	_, err := NewStarlarkLoader(0).LoadPackage("x.star", `other = 1`)
	if err == nil || !strings.Contains(err.Error(), "does not define a global `pkg`") {
		t.Errorf("Expected missing pkg error, got: %v", err)
	}
}

func TestStarlarkLoader_LoadPackage_SyntaxError(t *testing.T) {
	_, err := NewStarlarkLoader(0).LoadPackage("x.star", `pkg = {`)
	if err == nil {
		t.Fatal("Expected syntax error")
	}
}

func TestStarlarkLoader_LoadPackage_UnknownFieldRejected(t *testing.T) {
	script := `
pkg = {
    "name": "x",
    "version": "1.0.0",
    "color": "green",
    "environments": {},
}
`
	_, err := NewStarlarkLoader(0).LoadPackage("x.star", script)
	if err == nil {
		t.Fatal("Expected error for unknown field in pkg dict")
	}
}

func TestStarlarkLoader_LoadPackage_InfiniteLoopTimesOut(t *testing.T) {
	script := `
x = 0
for i in range(1000000000):
    x += i
pkg = {}
`
	start := time.Now()
	_, err := NewStarlarkLoader(200 * time.Millisecond).LoadPackage("loop.star", script)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Expected cancellation near the timeout, took %s", time.Since(start))
	}
}
