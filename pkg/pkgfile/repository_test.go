package pkgfile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRepo(t *testing.T, dir string) *DirRepository {
	t.Helper()
	repo, err := NewDirRepository(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	return repo
}

func TestDirRepository_Lookup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ripgrep.yaml", validYAML)

	repo := newTestRepo(t, dir)

	pkg, ok := repo.Lookup("ripgrep")
	if !ok {
		t.Fatal("Expected ripgrep to be found")
	}
	if pkg.Version != "1.0.0" {
		t.Errorf("Expected version 1.0.0, got %q", pkg.Version)
	}

	if _, ok := repo.Lookup("missing"); ok {
		t.Error("Expected missing package not to be found")
	}
}

func TestDirRepository_NamesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zsh", "bat", "fzf"} {
		writeFile(t, dir, name+".yaml", `name: `+name+`
version: "1.0.0"
environments:
  linux:
    install: apt-get install -y `+name+`
`)
	}

	repo := newTestRepo(t, dir)
	names := repo.Names()
	want := []string{"bat", "fzf", "zsh"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Expected sorted names %v, got %v", want, names)
		}
	}
}

func TestDirRepository_List_ReportsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ripgrep.yaml", validYAML)
	writeFile(t, dir, "broken.yaml", "name: [not a string\n")
	writeFile(t, dir, "notes.txt", "not a package file")

	repo := newTestRepo(t, dir)
	pkgs, invalid := repo.List()

	if len(pkgs) != 1 || pkgs[0].Name != "ripgrep" {
		t.Errorf("Expected only ripgrep to load, got %d packages", len(pkgs))
	}
	if len(invalid) != 1 || invalid[0].Path != "broken.yaml" {
		t.Errorf("Expected broken.yaml reported invalid, got %v", invalid)
	}
}

func TestDirRepository_InvalidFileDoesNotHideOthers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", `name: good
version: "1.0.0"
environments:
  linux:
    install: apt-get install -y good
`)
	writeFile(t, dir, "bad.yaml", `name: wrongname
version: "1.0.0"
environments:
  linux:
    install: apt-get install -y bad
`)

	repo := newTestRepo(t, dir)
	if _, ok := repo.Lookup("good"); !ok {
		t.Error("Expected good package despite invalid sibling")
	}
	if _, ok := repo.Lookup("wrongname"); ok {
		t.Error("Expected mismatched package to be rejected")
	}
}

func TestDirRepository_StarlarkAndYAMLTogether(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ripgrep.yaml", validYAML)
	writeFile(t, dir, "fzf.star", `
pkg = {
    "name": "fzf",
    "version": "1.0.0",
    "environments": {
        "linux": {"install": "apt-get install -y fzf"},
    },
}
`)

	repo := newTestRepo(t, dir)
	names := repo.Names()
	if len(names) != 2 {
		t.Fatalf("Expected 2 packages, got %v", names)
	}
	if _, ok := repo.Lookup("fzf"); !ok {
		t.Error("Expected starlark-defined package to load")
	}
}

func TestDirRepository_Reload_PicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	repo := newTestRepo(t, dir)

	if len(repo.Names()) != 0 {
		t.Fatalf("Expected empty repository, got %v", repo.Names())
	}

	writeFile(t, dir, "ripgrep.yaml", validYAML)
	if err := repo.Reload(); err != nil {
		t.Fatalf("Expected reload to succeed, got: %v", err)
	}
	if _, ok := repo.Lookup("ripgrep"); !ok {
		t.Error("Expected ripgrep after reload")
	}
}

func TestDirRepository_Watch_RescansOnChange(t *testing.T) {
	dir := t.TempDir()
	repo := newTestRepo(t, dir)
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := repo.Watch(ctx); err != nil {
		t.Fatalf("Expected watcher to start, got: %v", err)
	}

	if len(repo.Names()) != 0 {
		t.Fatalf("Expected empty repository, got %v", repo.Names())
	}

	writeFile(t, dir, "ripgrep.yaml", validYAML)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := repo.Lookup("ripgrep"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Expected watcher to pick up the new package file")
}

func TestNewDirRepository_MissingDirectory(t *testing.T) {
	if _, err := NewDirRepository("/nonexistent/packages", zerolog.Nop()); err == nil {
		t.Fatal("Expected error for missing directory")
	}
}
