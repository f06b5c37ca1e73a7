// Package runner starts toolchain child processes with merged
// stdout/stderr and exposes a small handle for polling, waiting and
// termination.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	bmerrors "git.home.luguber.info/inful/buildmon/internal/errors"
)

// Handle is a live child process with its combined output stream.
type Handle struct {
	cmd    *exec.Cmd
	output io.ReadCloser

	mu       sync.Mutex
	exitCode int
	waitErr  error
	done     chan struct{}
}

// Start launches name with args in dir. Stdout and stderr are merged
// into one stream readable via Output. The returned handle is live, the
// caller must eventually call Wait.
func Start(ctx context.Context, dir, name string, args ...string) (*Handle, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	// Own process group, so Terminate can signal the child together
	// with everything it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, bmerrors.ProcessError("create output pipe", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, bmerrors.ProcessError("start "+name, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	return &Handle{
		cmd:      cmd,
		output:   pr,
		exitCode: -1,
		done:     make(chan struct{}),
	}, nil
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Output is the merged stdout/stderr stream. It reaches EOF when the
// child exits and closes its side of the pipe.
func (h *Handle) Output() io.Reader {
	return h.output
}

// Wait blocks until the child exits and returns its exit code. A
// non-zero exit is not an error; only spawn/IO level failures are.
// Must be called exactly once.
func (h *Handle) Wait() (int, error) {
	err := h.cmd.Wait()
	h.output.Close()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			err = nil
		} else {
			code = -1
		}
	}

	h.mu.Lock()
	h.exitCode = code
	h.waitErr = err
	h.mu.Unlock()
	close(h.done)
	return code, err
}

// Done is closed once Wait has observed the child's exit.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Running reports whether the child's exit has been observed yet.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the child's exit code once it has exited.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Terminate asks the child's process group to stop with SIGTERM and,
// if the child has not exited after the grace window, kills the group.
// Safe to call on an already exited child. Reports whether the kill
// was needed.
func (h *Handle) Terminate(grace time.Duration) bool {
	if !h.Running() {
		return false
	}
	h.signal(syscall.SIGTERM)

	select {
	case <-h.done:
		return false
	case <-time.After(grace):
		h.signal(syscall.SIGKILL)
		return true
	}
}

// signal targets the process group so compile jobs spawned by make die
// with their parent. Falls back to the direct child when the group is
// already gone.
func (h *Handle) signal(sig syscall.Signal) {
	if err := syscall.Kill(-h.cmd.Process.Pid, sig); err != nil {
		_ = h.cmd.Process.Signal(sig)
	}
}

// StepResult is the outcome of a bounded, blocking toolchain step.
type StepResult struct {
	Status     string        `json:"status"`
	ReturnCode int           `json:"return_code"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Output     []string      `json:"-"`
	Err        error         `json:"-"`
}

// RunStep runs a toolchain invocation to completion, collecting every
// output line, under a hard wall-clock timeout. On timeout the process
// is killed and the result carries a timeout error.
func RunStep(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) StepResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	handle, err := Start(ctx, dir, name, args...)
	if err != nil {
		return StepResult{
			Status:     "failed",
			ReturnCode: 1,
			Duration:   time.Since(start),
			DurationMS: time.Since(start).Milliseconds(),
			Err:        err,
		}
	}

	var lines []string
	scanner := bufio.NewScanner(handle.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	code, waitErr := handle.Wait()
	elapsed := time.Since(start)

	result := StepResult{
		ReturnCode: code,
		Duration:   elapsed,
		DurationMS: elapsed.Milliseconds(),
		Output:     lines,
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.Status = "failed"
		result.Err = bmerrors.TimeoutError(fmt.Sprintf("%s timed out after %s", name, timeout))
	case waitErr != nil:
		result.Status = "failed"
		result.Err = bmerrors.ProcessError("run "+name, waitErr)
	case code != 0:
		result.Status = "failed"
	default:
		result.Status = "success"
	}
	return result
}
