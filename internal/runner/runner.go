// Package runner executes job steps through the host shell, either
// capturing their output or streaming it straight through.
//
// Commands are handed to the shell verbatim. The caller is responsible for
// trusting them; nothing is escaped or sandboxed here.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/google/uuid"
)

// pipeGrace bounds how long a finished step may keep its output pipes open
// through background children before they are closed.
const pipeGrace = time.Second

// Runner executes shell command strings one at a time.
type Runner struct {
	Shell     []string      // argv prefix, e.g. ["/bin/sh", "-c"]
	Dir       string        // working directory; empty means the current one
	Timeout   time.Duration // per command; zero means no limit
	MaxOutput int           // bytes kept by Capture

	Stdin  io.Reader // nil reads from the null device
	Stdout io.Writer // destination of streamed stdout
	Stderr io.Writer // destination of stderr in both modes
}

// Capture runs command and collects its stdout instead of forwarding it.
// Stderr is forwarded to r.Stderr and also kept in the result.
// A non-zero exit is reported through Result.ExitCode, not as an error.
func (r *Runner) Capture(ctx context.Context, command string) (*Result, error) {
	stdout := NewLimitedBuffer(r.MaxOutput)
	stderr := NewLimitedBuffer(r.MaxOutput)
	var errW io.Writer = stderr
	if r.Stderr != nil {
		errW = io.MultiWriter(r.Stderr, stderr)
	}

	res, err := r.run(ctx, command, stdout, errW)
	if err != nil {
		return nil, err
	}
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.Truncated = stdout.Truncated() || stderr.Truncated()
	return res, nil
}

// Stream runs command with its stdout and stderr connected directly to
// r.Stdout and r.Stderr. Nothing is captured.
func (r *Runner) Stream(ctx context.Context, command string) (*Result, error) {
	return r.run(ctx, command, r.Stdout, r.Stderr)
}

func (r *Runner) run(ctx context.Context, command string, stdout, stderr io.Writer) (*Result, error) {
	if len(r.Shell) == 0 {
		return nil, fmt.Errorf("no shell configured")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	argv := append(append([]string{}, r.Shell...), command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = pipeGrace

	res := &Result{
		StepID:  uuid.New().String(),
		Command: command,
	}

	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)

	if errors.Is(runErr, exec.ErrWaitDelay) {
		// The shell exited cleanly; a background child held the pipes.
		runErr = nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// Shell not found, context already done, or similar.
			return nil, fmt.Errorf("executing %s: %w", argv[0], runErr)
		}
		res.ExitCode = exitErr.ExitCode()
		res.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
	}
	return res, nil
}

// LimitedBuffer keeps up to a fixed number of bytes and silently
// discards the rest.
type LimitedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped bool
}

// NewLimitedBuffer returns a buffer that keeps at most limit bytes.
func NewLimitedBuffer(limit int) *LimitedBuffer {
	return &LimitedBuffer{limit: limit}
}

func (w *LimitedBuffer) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			w.dropped = true
		}
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Keep what fits but report everything consumed so the child
		// never sees a short write.
		w.buf.Write(p[:remaining])
		w.dropped = true
		return len(p), nil
	}
	return w.buf.Write(p)
}

// Bytes returns the kept bytes.
func (w *LimitedBuffer) Bytes() []byte { return w.buf.Bytes() }

// String returns the kept bytes as a string.
func (w *LimitedBuffer) String() string { return w.buf.String() }

// Truncated reports whether anything was discarded.
func (w *LimitedBuffer) Truncated() bool { return w.dropped }
