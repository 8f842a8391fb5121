package workflow

import (
	"context"
	"fmt"
	"io"
	"time"

	"piperun/internal/executor"
	"piperun/internal/logstore"
	"piperun/internal/output"
)

// Job describes one stage execution.
type Job struct {
	RunID    string
	Stage    string
	Image    string
	Dir      string
	Commands []string
	Env      map[string]string
	Timeout  time.Duration
}

// Result is the outcome of a stage's commands.
type Result struct {
	// Executed is the number of commands that ran, including a failing one.
	Executed int

	// FailedCommand is the first command that exited non-zero.
	FailedCommand string

	// ExitCode is the exit code of FailedCommand, zero on success.
	ExitCode int
}

// Failed reports whether a command exited non-zero.
func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// Runner executes stage commands in sequence.
type Runner struct {
	executor executor.Executor
	printer  *output.Printer
	logs     *logstore.Store
}

// NewRunner creates a Runner. logs may be nil to skip per-command logs.
func NewRunner(exec executor.Executor, printer *output.Printer, logs *logstore.Store) *Runner {
	return &Runner{
		executor: exec,
		printer:  printer,
		logs:     logs,
	}
}

// RunStage runs job's commands in order and stops at the first non-zero
// exit. The returned error is reserved for commands that could not be
// started and for cancellation.
func (r *Runner) RunStage(ctx context.Context, job Job) (Result, error) {
	var res Result
	for i, line := range job.Commands {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		r.printer.Command(line)
		code, err := r.runCommand(ctx, job, i, line)
		res.Executed++
		if err != nil {
			res.FailedCommand = line
			return res, err
		}
		if code != 0 {
			res.FailedCommand = line
			res.ExitCode = code
			return res, nil
		}
	}
	return res, nil
}

func (r *Runner) runCommand(ctx context.Context, job Job, index int, line string) (int, error) {
	var out io.Writer = r.printer.Writer()
	if r.logs != nil {
		logFile, _, err := r.logs.CommandLog(job.RunID, job.Stage, index, line)
		if err != nil {
			r.printer.Warn("cannot write command log: %v", err)
		} else {
			defer logFile.Close()
			out = io.MultiWriter(out, logFile)
		}
	}

	return r.executor.Run(ctx, executor.Command{
		Stage:   job.Stage,
		ID:      fmt.Sprintf("%s-%s-%d", job.RunID, job.Stage, index+1),
		Image:   job.Image,
		Script:  line,
		Dir:     job.Dir,
		Env:     job.Env,
		Timeout: job.Timeout,
	}, out)
}
