package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"piperun/internal/artifact"
	"piperun/internal/config"
	"piperun/internal/executor"
	"piperun/internal/output"
)

// testClock is the fixed time used by test apps.
var testClock = time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)

// testApp bundles an App wired with mocks and the buffer it prints to.
type testApp struct {
	*App
	Out     *bytes.Buffer
	Mock    *executor.MockExecutor
	Workdir string
}

// newTestApp creates an App rooted in a temporary workspace with a mock
// executor and an in-memory artifact store.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	workdir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Workdir = workdir
	cfg.Ref = "master"

	buf := &bytes.Buffer{}
	mock := &executor.MockExecutor{ExitCodes: map[string]int{}}

	return &testApp{
		App: &App{
			Config:   cfg,
			Printer:  output.NewPrinterWithWriter(buf),
			Executor: mock,
			Store:    artifact.NewMemoryStore(),
			Now:      func() time.Time { return testClock },
		},
		Out:     buf,
		Mock:    mock,
		Workdir: workdir,
	}
}

// execute runs the root command with args and returns its error.
func (a *testApp) execute(args ...string) error {
	rootCmd := NewRootCommand(a.App)
	rootCmd.SetOut(a.Out)
	rootCmd.SetErr(a.Out)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// writeFile creates a file below the workspace.
func (a *testApp) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(a.Workdir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// simulateDefaultPipeline makes the mock executor produce the files the
// built-in pipeline's commands would.
func (a *testApp) simulateDefaultPipeline(t *testing.T) {
	a.Mock.OnRun = func(cmd executor.Command) error {
		switch cmd.Script {
		case "python setup.py sdist":
			a.writeFile(t, "dist/simulator-1.0.tar.gz", "sdist")
		case "pytest --cov=mythendcs --cov-report=html":
			a.writeFile(t, "htmlcov/index.html", "<html>coverage</html>")
		case "mkdir -p public/coverage":
			return os.MkdirAll(filepath.Join(a.Workdir, "public", "coverage"), 0755)
		case "cp -r htmlcov/* public/coverage/":
			data, err := os.ReadFile(filepath.Join(a.Workdir, "htmlcov", "index.html"))
			if err != nil {
				return err
			}
			a.writeFile(t, "public/coverage/index.html", string(data))
		}
		return nil
	}
}
