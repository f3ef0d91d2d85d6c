// Package pkgfile loads package definitions from a directory. Definitions
// are written in YAML (one package per file) or Starlark (for definitions
// that need procedural logic), validated against a CUE schema plus struct
// tags, and served to the engine through the engine.Repository interface.
package pkgfile
