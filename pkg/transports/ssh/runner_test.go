package ssh

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pkgsmith/pkgsmith/pkg/exec"
)

func TestRunner_Run_NotConnected(t *testing.T) {
	cfg := DefaultConfig("build.internal", "ops")
	cfg.PrivateKeyPath = writeTestKey(t)

	client, err := NewClient(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	runner := NewRunner(client, zerolog.Nop())
	_, err = runner.Run(context.Background(), exec.Request{Command: "true"}, nil)
	if err == nil {
		t.Fatal("Expected error running on a disconnected client")
	}
	if !exec.IsSpawn(err) {
		t.Errorf("Expected spawn error, got: %v", err)
	}
}

func TestBuildCommand_Plain(t *testing.T) {
	got := buildCommand(exec.Request{Command: "apt-get install -y ripgrep"})
	if got != "apt-get install -y ripgrep" {
		t.Errorf("Expected command unchanged, got %q", got)
	}
}

func TestBuildCommand_WithDir(t *testing.T) {
	got := buildCommand(exec.Request{Command: "make install", Dir: "/opt/src"})
	if got != "cd '/opt/src' && make install" {
		t.Errorf("Expected cd prefix, got %q", got)
	}
}

func TestBuildCommand_WithEnv(t *testing.T) {
	got := buildCommand(exec.Request{
		Command: "make install",
		Env:     map[string]string{"CC": "clang", "ARCH": "arm64"},
	})
	// Env exports are emitted in sorted key order.
	want := "export ARCH='arm64'; export CC='clang'; make install"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestBuildCommand_EnvAndDir(t *testing.T) {
	got := buildCommand(exec.Request{
		Command: "make",
		Dir:     "/tmp/build",
		Env:     map[string]string{"V": "1"},
	})
	if !strings.HasPrefix(got, "export V='1'; cd '/tmp/build' && ") {
		t.Errorf("Expected exports before cd, got %q", got)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}

	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestClient_HealthCheck_NotConnected(t *testing.T) {
	cfg := DefaultConfig("build.internal", "ops")
	cfg.PrivateKeyPath = writeTestKey(t)

	client, err := NewClient(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if client.IsConnected() {
		t.Error("Expected new client to be disconnected")
	}
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("Expected health check to fail when disconnected")
	}
	// Disconnecting a never-connected client is a no-op.
	if err := client.Disconnect(); err != nil {
		t.Errorf("Expected nil from Disconnect, got: %v", err)
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig("", "")
	if _, err := NewClient(cfg, zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid config")
	}
}
