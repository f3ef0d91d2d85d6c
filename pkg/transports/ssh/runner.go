package ssh

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/pkgsmith/pkgsmith/pkg/exec"
)

// DefaultGracePeriod is how long a signaled remote command gets to exit
// before it is forcefully killed.
const DefaultGracePeriod = 2 * time.Second

// Runner executes commands on a remote host over SSH sessions. It satisfies
// exec.Runner so the install engine treats remote and local execution
// identically.
type Runner struct {
	client *Client
	grace  time.Duration
	logger zerolog.Logger
}

var _ exec.Runner = (*Runner)(nil)

// NewRunner creates a runner that executes each request in its own SSH
// session on the client's host.
func NewRunner(client *Client, logger zerolog.Logger) *Runner {
	return &Runner{
		client: client,
		grace:  DefaultGracePeriod,
		logger: logger.With().Str("component", "ssh-runner").Logger(),
	}
}

// WithGracePeriod overrides the termination grace window.
func (r *Runner) WithGracePeriod(d time.Duration) *Runner {
	r.grace = d
	return r
}

// Run executes the request remotely. Both output pipes are drained by
// concurrent readers before the session exit status is consumed, mirroring
// the local shell runner's deadlock guarantees.
func (r *Runner) Run(ctx context.Context, req exec.Request, onChunk exec.ChunkFunc) (*exec.Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	sshClient, err := r.client.getClient()
	if err != nil {
		return nil, &exec.Error{Kind: exec.KindSpawn, Command: req.Command, Err: err}
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &exec.Error{Kind: exec.KindSpawn, Command: req.Command, Err: fmt.Errorf("failed to create session: %w", err)}
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, &exec.Error{Kind: exec.KindSpawn, Command: req.Command, Err: err}
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, &exec.Error{Kind: exec.KindSpawn, Command: req.Command, Err: err}
	}

	start := time.Now()
	if err := session.Start(buildCommand(req)); err != nil {
		return nil, &exec.Error{Kind: exec.KindSpawn, Command: req.Command, Err: err}
	}

	r.logger.Debug().Str("command", req.Command).Msg("remote command started")

	// Once the timeout or cancellation fires the terminal outcome is
	// decided; output drained during the grace window is discarded.
	emit := onChunk
	if onChunk != nil {
		emit = func(stream exec.Stream, text string) {
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
		stdoutLines = drainStream(stdout, exec.StreamStdout, emit)
	}()
	go func() {
		defer wg.Done()
		stderrLines = drainStream(stderr, exec.StreamStderr, emit)
	}()

	waitCh := make(chan error, 1)
	go func() {
		wg.Wait()
		waitCh <- session.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-runCtx.Done():
		waitErr = r.terminate(session, waitCh)
	}
	duration := time.Since(start)

	// A timeout or cancellation is a terminal outcome, not a result.
	if runCtx.Err() != nil {
		if req.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			r.logger.Warn().Str("command", req.Command).Dur("timeout", req.Timeout).Msg("remote command timed out")
			return nil, &exec.Error{Kind: exec.KindTimeout, Command: req.Command, Timeout: req.Timeout, Err: runCtx.Err()}
		}
		r.logger.Debug().Str("command", req.Command).Msg("remote command canceled")
		return nil, &exec.Error{Kind: exec.KindCanceled, Command: req.Command, Err: ctx.Err()}
	}

	result := &exec.Result{
		ExitCode: 0,
		Stdout:   stdoutLines,
		Stderr:   stderrLines,
		Duration: duration,
	}

	if waitErr != nil {
		var exitErr *ssh.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, &exec.Error{Kind: exec.KindIO, Command: req.Command, Err: waitErr}
		}
		result.ExitCode = exitErr.ExitStatus()
	}

	r.logger.Debug().
		Str("command", req.Command).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("remote command completed")

	return result, nil
}

// terminate escalates SIGTERM to SIGKILL and finally closes the session so
// the pipe readers always reach end-of-file.
func (r *Runner) terminate(session *ssh.Session, waitCh <-chan error) error {
	_ = session.Signal(ssh.SIGTERM)
	select {
	case err := <-waitCh:
		return err
	case <-time.After(r.grace):
	}

	_ = session.Signal(ssh.SIGKILL)
	select {
	case err := <-waitCh:
		return err
	case <-time.After(r.grace):
	}

	// Some servers ignore session signals; closing the channel is the
	// last resort that unblocks Wait.
	_ = session.Close()
	return <-waitCh
}

// buildCommand assembles the remote command line from the request, applying
// environment variables and the working directory.
func buildCommand(req exec.Request) string {
	var sb strings.Builder

	if len(req.Env) > 0 {
		keys := make([]string, 0, len(req.Env))
		for k := range req.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("export ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(shellQuote(req.Env[k]))
			sb.WriteString("; ")
		}
	}

	if req.Dir != "" {
		sb.WriteString("cd ")
		sb.WriteString(shellQuote(req.Dir))
		sb.WriteString(" && ")
	}

	sb.WriteString(req.Command)
	return sb.String()
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// drainStream reads one pipe to end-of-file, splitting on newlines and
// invoking onChunk per line. A non-empty residual partial line at EOF is
// flushed as a final chunk.
func drainStream(pipe io.Reader, stream exec.Stream, onChunk exec.ChunkFunc) []string {
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
