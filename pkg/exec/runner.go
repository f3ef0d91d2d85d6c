// Package exec runs opaque shell commands and streams their output. It is
// deliberately package-manager-agnostic: a command is text handed to a
// shell, nothing more.
package exec

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stream identifies which output stream a chunk came from.
type Stream string

const (
	// StreamStdout is the subprocess standard output stream.
	StreamStdout Stream = "stdout"

	// StreamStderr is the subprocess standard error stream.
	StreamStderr Stream = "stderr"
)

// ChunkFunc receives one line of subprocess output. Within one stream,
// calls preserve the subprocess's write order exactly; ordering between the
// two streams is not guaranteed. The final line of a stream is delivered
// even without a trailing newline.
type ChunkFunc func(stream Stream, text string)

// Request describes one command invocation. A Request is consumed by a
// single Run call.
type Request struct {
	// Command is the command text, executed through a shell.
	Command string

	// Dir is the working directory; empty means the process default.
	Dir string

	// Env holds additional environment variables for the subprocess.
	Env map[string]string

	// Timeout limits the command's wall-clock runtime. Zero means no limit.
	Timeout time.Duration
}

// Result is the outcome of a command that was spawned and ran to exit.
// Timed-out and canceled commands yield an error instead.
type Result struct {
	// ExitCode is the subprocess exit status; -1 if it died on a signal.
	ExitCode int

	// Stdout holds the accumulated standard output lines.
	Stdout []string

	// Stderr holds the accumulated standard error lines.
	Stderr []string

	// Duration is the wall-clock runtime of the subprocess.
	Duration time.Duration
}

// Success reports whether the command exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes commands. Implementations must drain both output streams
// concurrently with waiting for process exit.
type Runner interface {
	// Run executes the request, invoking onChunk (which may be nil) once
	// per output line, and returns the result once the process has exited
	// and both streams are fully drained.
	Run(ctx context.Context, req Request, onChunk ChunkFunc) (*Result, error)
}

// ErrorKind classifies command execution failures.
type ErrorKind string

const (
	// KindSpawn means the command could not be launched at all.
	KindSpawn ErrorKind = "spawn"

	// KindTimeout means the request timeout elapsed before exit.
	KindTimeout ErrorKind = "timeout"

	// KindCanceled means the caller's context was canceled before exit.
	KindCanceled ErrorKind = "canceled"

	// KindIO means reading the subprocess output failed.
	KindIO ErrorKind = "io"
)

// Error is a classified command execution failure.
type Error struct {
	// Kind is the failure classification.
	Kind ErrorKind

	// Command is the command text of the failed request.
	Command string

	// Timeout is the configured timeout, set for KindTimeout errors.
	Timeout time.Duration

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("command timed out after %s: %s", e.Timeout, e.Command)
	case KindCanceled:
		return fmt.Sprintf("command canceled: %s", e.Command)
	case KindSpawn:
		return fmt.Sprintf("failed to spawn command %q: %v", e.Command, e.Err)
	default:
		return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a command timeout.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTimeout
}

// IsCanceled reports whether err is a command cancellation.
func IsCanceled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindCanceled
}

// IsSpawn reports whether err is a launch failure.
func IsSpawn(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindSpawn
}
