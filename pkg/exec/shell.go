package exec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultShell is used when no shell is configured.
const DefaultShell = "/bin/sh"

// DefaultGracePeriod is how long a signaled subprocess gets to exit before
// it is forcefully killed.
const DefaultGracePeriod = 2 * time.Second

// ShellRunner executes commands through a shell on the local host.
type ShellRunner struct {
	shell  string
	grace  time.Duration
	logger zerolog.Logger
}

// NewShellRunner creates a runner that executes commands via `shell -c`.
// An empty shell selects DefaultShell.
func NewShellRunner(shell string, logger zerolog.Logger) *ShellRunner {
	if shell == "" {
		shell = DefaultShell
	}
	return &ShellRunner{
		shell:  shell,
		grace:  DefaultGracePeriod,
		logger: logger.With().Str("component", "shell-runner").Logger(),
	}
}

// WithGracePeriod overrides the termination grace window.
func (r *ShellRunner) WithGracePeriod(d time.Duration) *ShellRunner {
	r.grace = d
	return r
}

// Run executes the request. Both output pipes are drained by concurrent
// readers; the exit status is awaited only after both report end-of-file,
// so a subprocess blocked on a full pipe buffer can never deadlock the
// runner.
func (r *ShellRunner) Run(ctx context.Context, req Request, onChunk ChunkFunc) (*Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := osexec.CommandContext(runCtx, r.shell, "-c", req.Command)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		env := os.Environ()
		for k, v := range req.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	// Graceful termination: SIGTERM on cancellation, SIGKILL once the
	// grace window elapses without an exit.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Kind: KindSpawn, Command: req.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &Error{Kind: KindSpawn, Command: req.Command, Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &Error{Kind: KindSpawn, Command: req.Command, Err: err}
	}

	r.logger.Debug().Str("command", req.Command).Msg("command started")

	// Once the timeout or cancellation fires the terminal outcome is
	// decided; output drained during the grace window is discarded.
	emit := onChunk
	if onChunk != nil {
		emit = func(stream Stream, text string) {
			if runCtx.Err() != nil {
				return
			}
			onChunk(stream, text)
		}
	}

	var (
		wg          sync.WaitGroup
		stdoutLines []string
		stderrLines []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stdoutLines = drainStream(stdout, StreamStdout, emit)
	}()
	go func() {
		defer wg.Done()
		stderrLines = drainStream(stderr, StreamStderr, emit)
	}()

	// Both readers must reach EOF before Wait closes the pipes.
	wg.Wait()
	waitErr := cmd.Wait()
	duration := time.Since(start)

	// A timeout or cancellation is a terminal outcome, not a result, even
	// when the shell technically exited with a status.
	if waitErr != nil && req.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		r.logger.Warn().Str("command", req.Command).Dur("timeout", req.Timeout).Msg("command timed out")
		return nil, &Error{Kind: KindTimeout, Command: req.Command, Timeout: req.Timeout, Err: runCtx.Err()}
	}
	if waitErr != nil && ctx.Err() != nil {
		r.logger.Debug().Str("command", req.Command).Msg("command canceled")
		return nil, &Error{Kind: KindCanceled, Command: req.Command, Err: ctx.Err()}
	}

	result := &Result{
		ExitCode: 0,
		Stdout:   stdoutLines,
		Stderr:   stderrLines,
		Duration: duration,
	}

	if waitErr != nil {
		exitErr, ok := waitErr.(*osexec.ExitError)
		if !ok {
			return nil, &Error{Kind: KindIO, Command: req.Command, Err: waitErr}
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug().
		Str("command", req.Command).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("command completed")

	return result, nil
}

// drainStream reads one pipe to end-of-file, splitting on newlines and
// invoking onChunk per line. A non-empty residual partial line at EOF is
// flushed as a final chunk; dropping an unterminated trailing line would
// lose output.
func drainStream(pipe io.Reader, stream Stream, onChunk ChunkFunc) []string {
	var lines []string
	br := bufio.NewReader(pipe)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			text := strings.TrimSuffix(line, "\n")
			text = strings.TrimSuffix(text, "\r")
			if err == nil || text != "" {
				lines = append(lines, text)
				if onChunk != nil {
					onChunk(stream, text)
				}
			}
		}
		if err != nil {
			return lines
		}
	}
}
