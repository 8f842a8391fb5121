package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"piperun/internal/pipeline"
)

// Exit codes for failures that do not carry a command exit code.
const (
	ExitGeneric  = 1
	ExitConfig   = 78
	ExitCanceled = 130
)

// CommandError reports a script line that exited non-zero.
type CommandError struct {
	Stage    string
	Command  string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("stage %s: command %q exited with status %d", e.Stage, e.Command, e.ExitCode)
}

// StageError wraps any other failure of a stage: a command that could not
// start, an artifact that could not be fetched or stored, or a failed
// stage hook.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitCode maps a pipeline error to the process exit code.
//
//   - nil: 0
//   - *CommandError: the command's exit code
//   - *pipeline.ConfigError: 78
//   - context cancellation: 130
//   - *artifact.MissingError and anything else: 1
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return cmdErr.ExitCode
	}
	var cfgErr *pipeline.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ExitCanceled
	}
	return ExitGeneric
}
