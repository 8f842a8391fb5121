package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDockerExecutor_Args(t *testing.T) {
	e := NewDockerExecutor("")
	dir := t.TempDir()

	args, err := e.Args(Command{
		Stage:  "test",
		ID:     "20261019-150405-abcd1234-test-1",
		Image:  "python:3",
		Script: "pytest",
		Dir:    dir,
		Env:    map[string]string{"CI": "true", "CI_PROJECT_DIR": dir},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"run", "--rm",
		"--name", "piperun-20261019-150405-abcd1234-test-1",
		"-v", dir + ":/builds/project",
		"-w", "/builds/project",
		"-e", "CI=true",
		"-e", "CI_PROJECT_DIR=/builds/project",
		"python:3", "sh", "-c", "pytest",
	}, args)
	assert.Equal(t, "docker", e.Binary)
}

func TestDockerExecutor_RequiresImage(t *testing.T) {
	e := NewDockerExecutor("podman")

	_, err := e.Args(Command{Stage: "build", ID: "r-build-1", Script: "make", Dir: t.TempDir()})
	assert.ErrorContains(t, err, "no image")
}

func TestDockerExecutor_KillArgsMatchContainerName(t *testing.T) {
	e := NewDockerExecutor("")
	cmd := Command{Stage: "deploy", ID: "run 1/deploy-2", Image: "alpine", Script: "true", Dir: t.TempDir()}

	args, err := e.Args(cmd)
	require.NoError(t, err)

	name := ContainerName(cmd)
	assert.Equal(t, "piperun-run-1-deploy-2", name)
	assert.Contains(t, strings.Join(args, " "), "--name "+name)
	assert.Equal(t, []string{"rm", "-f", name}, e.KillArgs(cmd))
}

// fakeDocker writes a docker stand-in that sleeps on `run` and records the
// arguments of every other invocation.
func fakeDocker(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	calls := filepath.Join(dir, "calls")
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = run ]; then exec sleep 30; fi\n" +
		"echo \"$@\" >> " + calls + "\n"
	bin := filepath.Join(dir, "docker")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin, calls
}

func TestDockerExecutor_TimeoutRemovesContainer(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	bin, calls := fakeDocker(t)
	e := NewDockerExecutor(bin)
	cmd := Command{
		Stage:   "test",
		ID:      "run-test-1",
		Image:   "alpine",
		Script:  "sleep 30",
		Dir:     t.TempDir(),
		Timeout: 200 * time.Millisecond,
	}

	var out strings.Builder
	code, err := e.Run(context.Background(), cmd, &out)

	require.NoError(t, err)
	assert.Equal(t, ExitTimeout, code)
	data, err := os.ReadFile(calls)
	require.NoError(t, err)
	assert.Equal(t, "rm -f piperun-run-test-1\n", string(data))
}
