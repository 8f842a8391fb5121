package executor

import (
	"context"
	"io"
)

// MockExecutor implements [Executor] for tests.
//
// Commands are recorded in order. ExitCodes maps a script line to the exit
// code it returns (default 0). Output maps a script line to text written to
// the output. OnRun, when set, is invoked before the exit code is looked up
// so tests can create files the way a real command would.
type MockExecutor struct {
	ExitCodes map[string]int
	Output    map[string]string
	OnRun     func(cmd Command) error
	Err       error

	Commands []Command
}

// Run records cmd and returns the scripted result.
func (m *MockExecutor) Run(ctx context.Context, cmd Command, out io.Writer) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	m.Commands = append(m.Commands, cmd)
	if m.Err != nil {
		return -1, m.Err
	}
	if m.OnRun != nil {
		if err := m.OnRun(cmd); err != nil {
			return -1, err
		}
	}
	if text, ok := m.Output[cmd.Script]; ok {
		io.WriteString(out, text) //nolint:errcheck
	}
	return m.ExitCodes[cmd.Script], nil
}

// Scripts returns the recorded script lines in execution order.
func (m *MockExecutor) Scripts() []string {
	out := make([]string, len(m.Commands))
	for i, c := range m.Commands {
		out[i] = c.Script
	}
	return out
}
