package executor

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// ShellExecutor runs commands on the host with `<shell> -c`. The stage image
// is recorded in the environment but not enforced.
type ShellExecutor struct {
	// Shell is the shell binary. Defaults to "sh".
	Shell string
}

// NewShellExecutor creates a [ShellExecutor] using shell, or "sh" when empty.
func NewShellExecutor(shell string) *ShellExecutor {
	if shell == "" {
		shell = "sh"
	}
	return &ShellExecutor{Shell: shell}
}

// Run executes cmd.Script in cmd.Dir with the host environment plus cmd.Env.
func (e *ShellExecutor) Run(ctx context.Context, cmd Command, out io.Writer) (int, error) {
	timeout := timeoutOf(cmd)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, e.Shell, "-c", cmd.Script)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), envList(cmd.Env)...)

	return runProcess(ctx, runCtx, c, timeout, out)
}
