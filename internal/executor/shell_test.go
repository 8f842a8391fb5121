package executor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellExecutor_Success(t *testing.T) {
	e := NewShellExecutor("")
	var out bytes.Buffer

	code, err := e.Run(context.Background(), Command{Script: "echo hello", Dir: t.TempDir()}, &out)

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello\n", out.String())
}

func TestShellExecutor_ExitCode(t *testing.T) {
	e := NewShellExecutor("sh")
	var out bytes.Buffer

	code, err := e.Run(context.Background(), Command{Script: "echo boom >&2; exit 3", Dir: t.TempDir()}, &out)

	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, out.String(), "boom")
}

func TestShellExecutor_DirAndEnv(t *testing.T) {
	dir := t.TempDir()
	e := NewShellExecutor("")
	var out bytes.Buffer

	code, err := e.Run(context.Background(), Command{
		Script: `printf "%s" "$CI_COMMIT_REF_NAME" > ref.txt`,
		Dir:    dir,
		Env:    map[string]string{"CI_COMMIT_REF_NAME": "master"},
	}, &out)

	require.NoError(t, err)
	require.Equal(t, 0, code)
	data, err := os.ReadFile(filepath.Join(dir, "ref.txt"))
	require.NoError(t, err)
	assert.Equal(t, "master", string(data))
}

func TestShellExecutor_Timeout(t *testing.T) {
	e := NewShellExecutor("")
	var out bytes.Buffer

	code, err := e.Run(context.Background(), Command{
		Script:  "sleep 5",
		Dir:     t.TempDir(),
		Timeout: 100 * time.Millisecond,
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, ExitTimeout, code)
	assert.Contains(t, out.String(), "timed out")
}

func TestShellExecutor_Canceled(t *testing.T) {
	e := NewShellExecutor("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, Command{Script: "echo never", Dir: t.TempDir()}, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShellExecutor_MissingShell(t *testing.T) {
	e := NewShellExecutor("/nonexistent/shell")

	_, err := e.Run(context.Background(), Command{Script: "true", Dir: t.TempDir()}, &bytes.Buffer{})
	assert.Error(t, err)
}
