// Package executor runs pipeline commands inside an execution image.
//
// Key types:
//   - [Executor] is the interface the stage runner depends on
//   - [ShellExecutor] runs commands with the local shell in the workspace
//   - [DockerExecutor] runs each command in a throwaway container of the
//     stage's image with the workspace bind-mounted
//   - [MockExecutor] records commands and returns scripted exit codes
//
// Executors report the command's exit code. The returned error is reserved
// for failures to start the command or cancellation of the caller's context;
// a command that runs and exits non-zero is not an error at this layer.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"time"
)

// ExitTimeout is the exit code reported when a command exceeds its timeout.
const ExitTimeout = 124

// DefaultTimeout bounds a single command when neither the stage nor the
// configuration sets one.
const DefaultTimeout = time.Hour

// Command is a single script line to execute.
type Command struct {
	// Stage is the name of the stage the command belongs to.
	Stage string

	// ID identifies the command within a run, e.g. "<run>-<stage>-<n>".
	// Executors that start containers name them after it.
	ID string

	// Image is the execution image the command runs in.
	Image string

	// Script is the shell command line.
	Script string

	// Dir is the workspace directory on the host.
	Dir string

	// Env holds variables exported to the command.
	Env map[string]string

	// Timeout bounds the command. Zero means [DefaultTimeout].
	Timeout time.Duration
}

// Executor runs one command and reports its exit code.
type Executor interface {
	Run(ctx context.Context, cmd Command, out io.Writer) (int, error)
}

// envList renders env as sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func timeoutOf(cmd Command) time.Duration {
	if cmd.Timeout > 0 {
		return cmd.Timeout
	}
	return DefaultTimeout
}

// runProcess starts c, waits for it and translates the outcome into an exit
// code. parent is the caller's context; runCtx carries the command timeout.
func runProcess(parent, runCtx context.Context, c *exec.Cmd, timeout time.Duration, out io.Writer) (int, error) {
	c.Stdout = out
	c.Stderr = out
	// Bound the wait for grandchildren still holding the output pipe after
	// the shell is killed.
	c.WaitDelay = 2 * time.Second

	if err := c.Start(); err != nil {
		return -1, fmt.Errorf("failed to start command: %w", err)
	}
	err := c.Wait()

	if parent.Err() != nil {
		return -1, parent.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		fmt.Fprintf(out, "command timed out after %s\n", timeout)
		return ExitTimeout, nil
	}
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal.
			code = 1
		}
		return code, nil
	}
	return -1, fmt.Errorf("command failed: %w", err)
}
