package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds command execution when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// waitDelay is how long a timed-out process gets after SIGTERM before it is
// killed outright.
const waitDelay = 10 * time.Second

// Executor runs validated, approved commands inside a workspace with a hard
// wall-clock timeout and optional container sandboxing.
type Executor struct {
	Workspace    string
	Timeout      time.Duration
	Sandbox      bool
	SandboxImage string
}

// Result captures one execution.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Snapshot string
	TimedOut bool
	Success  bool
	DryRun   bool
}

// Execute runs the command and returns its captured output. A best-effort
// git snapshot is taken first when the workspace is under version control;
// snapshot failure is silently skipped. On timeout the subprocess is
// terminated and the result reports the configured timeout as its duration.
func (e *Executor) Execute(ctx context.Context, cmdline string) (*Result, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	snapshot := e.snapshot()

	run := cmdline
	if e.Sandbox {
		run = e.sandboxWrap(cmdline)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", run)
	if e.Workspace != "" {
		cmd.Dir = e.Workspace
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return &Result{
			Command:  cmdline,
			Stderr:   fmt.Sprintf("command timed out after %s", timeout),
			ExitCode: -1,
			Duration: timeout,
			Snapshot: snapshot,
			TimedOut: true,
		}, nil
	}

	result := &Result{
		Command:  cmdline,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
		Snapshot: snapshot,
	}

	if err == nil {
		result.Success = true
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Non-zero exit: output and exit code still go back to the caller.
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return nil, fmt.Errorf("command: run %q: %w", cmdline, err)
}

// snapshot creates a uniquely-named git branch at the current HEAD, returning
// its name, or "" when the workspace is not a repository or the branch
// cannot be created.
func (e *Executor) snapshot() string {
	check := exec.Command("git", "rev-parse", "--git-dir")
	check.Dir = e.Workspace
	if err := check.Run(); err != nil {
		return ""
	}

	name := "snapshot-" + time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	branch := exec.Command("git", "branch", name)
	branch.Dir = e.Workspace
	if err := branch.Run(); err != nil {
		return ""
	}
	return name
}

// Rollback checks out a previously taken snapshot. Failures are reported,
// not thrown: the caller decides what a failed rollback means.
func (e *Executor) Rollback(snapshot string) error {
	if snapshot == "" {
		return fmt.Errorf("command: snapshot name is required")
	}
	checkout := exec.Command("git", "checkout", snapshot)
	checkout.Dir = e.Workspace
	out, err := checkout.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command: rollback to %q: %s", snapshot, strings.TrimSpace(string(out)))
	}
	return nil
}

// sandboxWrap rewrites the command to run inside an isolated container:
// no network, capped memory and CPU, workspace mounted read-only.
func (e *Executor) sandboxWrap(cmdline string) string {
	image := e.SandboxImage
	if image == "" {
		image = "python:3.11-slim"
	}
	return fmt.Sprintf(
		"docker run --rm -i --network=none --memory=512m --cpus=1 -v %q:/workspace:ro -w /workspace %s sh -c %s",
		e.Workspace, image, shellQuote(cmdline),
	)
}

// shellQuote single-quotes a string for sh, escaping embedded quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
