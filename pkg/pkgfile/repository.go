package pkgfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
)

// InvalidFile records a package file that failed to load.
type InvalidFile struct {
	// Path is the file path relative to the repository directory.
	Path string `json:"path"`

	// Reason is the load or validation error.
	Reason string `json:"reason"`
}

// DirRepository serves package definitions from one flat directory. The
// directory is scanned once and cached; a watcher (optional) invalidates
// the cache when files change. Lookup and Names are safe for concurrent
// readers.
type DirRepository struct {
	dir    string
	loader *Loader
	logger zerolog.Logger

	mu       sync.RWMutex
	packages map[string]*engine.Package
	invalid  []InvalidFile
	loaded   bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewDirRepository creates a repository over dir. The directory must exist.
func NewDirRepository(dir string, logger zerolog.Logger) (*DirRepository, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("package directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("package directory %s is not a directory", dir)
	}

	return &DirRepository{
		dir:      dir,
		loader:   NewLoader(),
		logger:   logger.With().Str("component", "pkg-repository").Str("dir", dir).Logger(),
		packages: make(map[string]*engine.Package),
	}, nil
}

// Lookup returns the package with the given name, or false if absent or
// invalid.
func (r *DirRepository) Lookup(name string) (*engine.Package, bool) {
	r.ensureLoaded()
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkg, ok := r.packages[name]
	return pkg, ok
}

// Names returns all valid package names, sorted.
func (r *DirRepository) Names() []string {
	r.ensureLoaded()
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.packages))
	for name := range r.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all valid packages sorted by name, plus the files that
// failed to load.
func (r *DirRepository) List() ([]*engine.Package, []InvalidFile) {
	r.ensureLoaded()
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkgs := make([]*engine.Package, 0, len(r.packages))
	for _, pkg := range r.packages {
		pkgs = append(pkgs, pkg)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })

	invalid := append([]InvalidFile{}, r.invalid...)
	return pkgs, invalid
}

// Reload rescans the directory immediately.
func (r *DirRepository) Reload() error {
	return r.scan()
}

// ensureLoaded performs the initial lazy scan.
func (r *DirRepository) ensureLoaded() {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return
	}
	if err := r.scan(); err != nil {
		r.logger.Error().Err(err).Msg("failed to scan package directory")
	}
}

// scan reads every package file in the directory. Files that fail to load
// are recorded as invalid instead of aborting the scan; one broken
// definition must not hide the rest of the repository.
func (r *DirRepository) scan() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("failed to read package directory: %w", err)
	}

	packages := make(map[string]*engine.Package)
	var invalid []InvalidFile

	for _, entry := range entries {
		if entry.IsDir() || !IsPackageFile(entry.Name()) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		pkg, err := r.loader.Load(path)
		if err != nil {
			r.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping invalid package file")
			invalid = append(invalid, InvalidFile{Path: entry.Name(), Reason: err.Error()})
			continue
		}
		if _, dup := packages[pkg.Name]; dup {
			invalid = append(invalid, InvalidFile{
				Path:   entry.Name(),
				Reason: fmt.Sprintf("duplicate package name %q", pkg.Name),
			})
			continue
		}
		packages[pkg.Name] = pkg
	}

	r.mu.Lock()
	r.packages = packages
	r.invalid = invalid
	r.loaded = true
	r.mu.Unlock()

	r.logger.Debug().
		Int("packages", len(packages)).
		Int("invalid", len(invalid)).
		Msg("package directory scanned")
	return nil
}

// Watch starts a filesystem watcher that rescans the directory whenever a
// package file changes. It returns once the watcher is installed; the
// rescan loop runs until ctx is done or Close is called.
func (r *DirRepository) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	r.mu.Lock()
	r.watcher = watcher
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !IsPackageFile(event.Name) {
					continue
				}
				r.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("package file changed, rescanning")
				if err := r.scan(); err != nil {
					r.logger.Error().Err(err).Msg("rescan after change failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn().Err(err).Msg("package directory watcher error")
			}
		}
	}()

	return nil
}

// Close stops the watcher, if one is running.
func (r *DirRepository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
}

// Compile-time interface check.
var _ engine.Repository = (*DirRepository)(nil)
