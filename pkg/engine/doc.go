// Package engine contains the core install orchestration: dependency
// resolution over a package repository, sequential fail-fast execution of
// check and install commands, and an ordered event stream describing the
// progress of each operation.
//
// The engine is transport- and storage-agnostic. Commands run through an
// exec.Runner, packages come from a Repository, and the optional PolicyGate
// and HistoryRecorder collaborators are plugged in by the caller.
package engine
