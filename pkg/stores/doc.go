// Package stores provides the persistence layer for pkgsmith. It includes
// SQLite-based storage with WAL mode, embedded schema migrations, and the
// operation history queried by `pkgsmith history`.
package stores
