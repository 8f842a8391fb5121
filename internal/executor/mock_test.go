package executor

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockExecutor(t *testing.T) {
	m := &MockExecutor{
		ExitCodes: map[string]int{"pytest": 1},
		Output:    map[string]string{"make": "built\n"},
	}
	var out bytes.Buffer

	code, err := m.Run(context.Background(), Command{Script: "make"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	code, err = m.Run(context.Background(), Command{Script: "pytest"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	assert.Equal(t, []string{"make", "pytest"}, m.Scripts())
	assert.Equal(t, "built\n", out.String())
}

func TestMockExecutor_OnRunError(t *testing.T) {
	m := &MockExecutor{OnRun: func(Command) error { return errors.New("no space left") }}

	_, err := m.Run(context.Background(), Command{Script: "make"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "no space left")
}
