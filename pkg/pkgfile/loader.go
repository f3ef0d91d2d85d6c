package pkgfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
)

// Supported package definition file extensions.
const (
	extYAML = ".yaml"
	extYML  = ".yml"
	extStar = ".star"
)

// Loader parses and validates single package definition files.
type Loader struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
	starlark  *StarlarkLoader
}

// NewLoader creates a loader with the built-in schema registry.
func NewLoader() *Loader {
	return &Loader{
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
		starlark:  NewStarlarkLoader(0),
	}
}

// Load parses the package definition at path. The format is chosen by file
// extension: .yaml/.yml for declarative definitions, .star for Starlark.
func (l *Loader) Load(path string) (*engine.Package, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case extYAML, extYML:
		return l.loadYAML(path)
	case extStar:
		return l.loadStarlark(path)
	default:
		return nil, fmt.Errorf("unsupported package file extension: %s", filepath.Base(path))
	}
}

// IsPackageFile reports whether path looks like a package definition file.
func IsPackageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case extYAML, extYML, extStar:
		return !strings.HasPrefix(filepath.Base(path), ".")
	}
	return false
}

func (l *Loader) loadYAML(path string) (*engine.Package, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package file: %w", err)
	}

	var pkg engine.Package
	dec := yaml.NewDecoder(strings.NewReader(string(content)))
	dec.KnownFields(true)
	if err := dec.Decode(&pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	if err := l.validate(&pkg, path); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (l *Loader) loadStarlark(path string) (*engine.Package, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package file: %w", err)
	}

	pkg, err := l.starlark.LoadPackage(filepath.Base(path), string(content))
	if err != nil {
		return nil, err
	}

	if err := l.validate(pkg, path); err != nil {
		return nil, err
	}
	return pkg, nil
}

// validate runs struct-tag validation and the CUE schema over a parsed
// package. The name must also match the file stem so a repository lookup
// by name finds the right file.
func (l *Loader) validate(pkg *engine.Package, path string) error {
	if err := l.validator.Struct(pkg); err != nil {
		return fmt.Errorf("package %s validation failed: %w", filepath.Base(path), err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if pkg.Name != stem {
		return fmt.Errorf("package name %q does not match file name %q", pkg.Name, stem)
	}

	if err := l.schemas.Validate("package", pkg); err != nil {
		return fmt.Errorf("package %s: %w", filepath.Base(path), err)
	}

	for env, spec := range pkg.Environments {
		if strings.TrimSpace(spec.Install) == "" {
			return fmt.Errorf("package %s: environment %s has an empty install command", pkg.Name, env)
		}
	}
	return nil
}
