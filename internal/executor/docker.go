package executor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMountPath is where the workspace appears inside the container.
const DefaultMountPath = "/builds/project"

// killTimeout bounds the docker call that removes a canceled container.
const killTimeout = 10 * time.Second

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// DockerExecutor runs each command in a fresh container of the stage image.
// The workspace is bind-mounted so files persist between commands and
// stages.
type DockerExecutor struct {
	// Binary is the docker CLI. Defaults to "docker".
	Binary string

	// MountPath is the in-container workspace path.
	MountPath string

	// Shell is the shell used inside the image. Defaults to "sh".
	Shell string
}

// NewDockerExecutor creates a [DockerExecutor] with defaults applied.
func NewDockerExecutor(binary string) *DockerExecutor {
	if binary == "" {
		binary = "docker"
	}
	return &DockerExecutor{Binary: binary, MountPath: DefaultMountPath, Shell: "sh"}
}

// ContainerName returns the name of the container that runs cmd.
func ContainerName(cmd Command) string {
	id := strings.Trim(invalidNameChars.ReplaceAllString(cmd.ID, "-"), "-.")
	return "piperun-" + id
}

// Args returns the docker CLI arguments for cmd.
func (e *DockerExecutor) Args(cmd Command) ([]string, error) {
	if cmd.Image == "" {
		return nil, fmt.Errorf("stage %q: no image configured for docker executor", cmd.Stage)
	}
	if cmd.ID == "" {
		return nil, fmt.Errorf("stage %q: command has no id", cmd.Stage)
	}
	dir, err := filepath.Abs(cmd.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	env := make(map[string]string, len(cmd.Env)+1)
	for k, v := range cmd.Env {
		env[k] = v
	}
	// The project dir as seen by the command is the mount, not the host path.
	env["CI_PROJECT_DIR"] = e.MountPath

	args := []string{"run", "--rm", "--name", ContainerName(cmd), "-v", dir + ":" + e.MountPath, "-w", e.MountPath}
	for _, kv := range envList(env) {
		args = append(args, "-e", kv)
	}
	args = append(args, cmd.Image, e.Shell, "-c", cmd.Script)
	return args, nil
}

// KillArgs returns the docker CLI arguments that force-remove the container
// started for cmd.
func (e *DockerExecutor) KillArgs(cmd Command) []string {
	return []string{"rm", "-f", ContainerName(cmd)}
}

// Run executes cmd.Script inside cmd.Image. On timeout or cancellation the
// container is removed before the docker client is killed.
func (e *DockerExecutor) Run(ctx context.Context, cmd Command, out io.Writer) (int, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()[:8]
	}
	args, err := e.Args(cmd)
	if err != nil {
		return -1, err
	}

	timeout := timeoutOf(cmd)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, e.Binary, args...)
	c.Cancel = func() error {
		killCtx, stop := context.WithTimeout(context.Background(), killTimeout)
		defer stop()
		exec.CommandContext(killCtx, e.Binary, e.KillArgs(cmd)...).Run() //nolint:errcheck
		return c.Process.Kill()
	}
	return runProcess(ctx, runCtx, c, timeout, out)
}
