package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piperun/internal/artifact"
	"piperun/internal/executor"
	"piperun/internal/output"
	"piperun/internal/pipeline"
	"piperun/internal/status"
	"piperun/internal/workflow"
)

const (
	cmdSdist   = "python setup.py sdist"
	cmdPytest  = "pytest --cov=mythendcs --cov-report=html"
	cmdMkdir   = "mkdir -p public/coverage"
	cmdCopyCov = "cp -r htmlcov/* public/coverage/"
)

// recordWriter keeps every saved record.
type recordWriter struct {
	records []*status.RunRecord
	err     error
}

func (w *recordWriter) Save(rec *status.RunRecord) error {
	w.records = append(w.records, rec)
	return w.err
}

func (w *recordWriter) last() *status.RunRecord {
	if len(w.records) == 0 {
		return nil
	}
	return w.records[len(w.records)-1]
}

type fixture struct {
	exec    *Executor
	mock    *executor.MockExecutor
	records *recordWriter
	out     *bytes.Buffer
	workdir string
}

// simulate makes the mock behave like the default pipeline's commands.
func simulate(workdir string) func(cmd executor.Command) error {
	write := func(rel, content string) error {
		p := filepath.Join(workdir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		return os.WriteFile(p, []byte(content), 0644)
	}
	return func(cmd executor.Command) error {
		switch cmd.Script {
		case cmdSdist:
			return write("dist/simulator-1.0.tar.gz", "sdist")
		case cmdPytest:
			return write("htmlcov/index.html", "<html>coverage</html>")
		case cmdMkdir:
			return os.MkdirAll(filepath.Join(workdir, "public", "coverage"), 0755)
		case cmdCopyCov:
			data, err := os.ReadFile(filepath.Join(workdir, "htmlcov", "index.html"))
			if err != nil {
				return err
			}
			return write("public/coverage/index.html", string(data))
		}
		return nil
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	workdir := t.TempDir()
	mock := &executor.MockExecutor{ExitCodes: map[string]int{}}
	mock.OnRun = simulate(workdir)

	collector, err := artifact.NewCollector(artifact.NewMemoryStore(), 16)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	printer := output.NewPrinterWithWriter(out)
	records := &recordWriter{}

	exec := NewExecutor(workflow.NewRunner(mock, printer, nil), collector, records)
	exec.SetReporter(printer)

	return &fixture{exec: exec, mock: mock, records: records, out: out, workdir: workdir}
}

func defaultPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Parse(pipeline.Default())
	require.NoError(t, err)
	return p
}

func (f *fixture) opts(ref string) Options {
	return Options{RunID: "run-1", Ref: ref, Workdir: f.workdir, PipelineFile: pipeline.DefaultFileName}
}

func TestExecute_MasterRunsEveryStage(t *testing.T) {
	f := newFixture(t)

	res, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("master"))
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, status.StatusSuccess, res.Status)
	assert.Equal(t, []string{
		cmdSdist,
		`pip install "$(ls dist/*.tar.gz)[simulator]"`,
		"pip install pytest pytest-cov",
		cmdPytest,
		cmdMkdir,
		cmdCopyCov,
	}, f.mock.Scripts())

	for _, name := range []string{"build", "test", "deploy"} {
		assert.Equal(t, status.StatusSuccess, res.Stage(name).Status, name)
	}

	data, err := os.ReadFile(filepath.Join(f.workdir, "public", "coverage", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>coverage</html>", string(data))

	require.NotNil(t, res.Stage("deploy").Artifacts)
	assert.Equal(t, []artifact.File{{Path: "public/coverage/index.html", Size: 21, Mode: 0644}}, res.Stage("deploy").Artifacts.Files)

	rec := f.records.last()
	require.NotNil(t, rec)
	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Equal(t, "master", rec.Ref)
	assert.Nil(t, rec.Failure)
	assert.Len(t, rec.Stages, 3)
}

func TestExecute_FeatureRefSkipsDeploy(t *testing.T) {
	f := newFixture(t)

	res, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("feature/x"))
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, status.StatusSuccess, res.Status)
	assert.Equal(t, status.StatusSkipped, res.Stage("deploy").Status)
	assert.Contains(t, res.Stage("deploy").Reason, "feature/x")
	assert.NotContains(t, f.mock.Scripts(), cmdMkdir)
	assert.NoDirExists(t, filepath.Join(f.workdir, "public"))
	assert.Contains(t, f.out.String(), "deploy skipped")
}

func TestExecute_FailingCommandStopsPipeline(t *testing.T) {
	f := newFixture(t)
	f.mock.ExitCodes[cmdPytest] = 1

	res, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("master"))
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "test", cmdErr.Stage)
	assert.Equal(t, cmdPytest, cmdErr.Command)
	assert.Equal(t, 1, cmdErr.ExitCode)

	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, status.StatusFailed, res.Status)
	assert.Equal(t, status.StatusSuccess, res.Stage("build").Status)
	assert.Equal(t, status.StatusFailed, res.Stage("test").Status)
	assert.Equal(t, status.StatusSkipped, res.Stage("deploy").Status)
	assert.Equal(t, ReasonPipelineFailed, res.Stage("deploy").Reason)
	assert.NotContains(t, f.mock.Scripts(), cmdMkdir)
	assert.NoDirExists(t, filepath.Join(f.workdir, "public"))

	rec := f.records.last()
	require.NotNil(t, rec.Failure)
	assert.Equal(t, "test", rec.Failure.Stage)
	assert.Equal(t, cmdPytest, rec.Failure.Command)
	assert.Equal(t, 1, rec.Failure.ExitCode)
}

func TestExecute_PropagatesCommandExitCode(t *testing.T) {
	f := newFixture(t)
	f.mock.ExitCodes[cmdSdist] = 3

	res, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("master"))
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, 3, ExitCode(err))
	assert.Equal(t, []string{cmdSdist}, f.mock.Scripts())
}

func TestExecute_ConfigErrorRunsNothing(t *testing.T) {
	f := newFixture(t)
	p := defaultPipeline(t)
	p.Stage("test").Dependencies = []string{"compile"}

	res, err := f.exec.Execute(context.Background(), p, f.opts("master"))
	require.Error(t, err)
	assert.Nil(t, res)

	var cfgErr *pipeline.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.Empty(t, f.mock.Commands)
	assert.Empty(t, f.records.records)
}

func TestExecute_MissingArtifactFailsStage(t *testing.T) {
	f := newFixture(t)
	f.mock.OnRun = nil

	res, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("master"))
	require.Error(t, err)

	var missing *artifact.MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "build", missing.Stage)
	assert.Equal(t, "dist/", missing.Path)

	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, status.StatusFailed, res.Stage("build").Status)
	assert.Equal(t, status.StatusSkipped, res.Stage("test").Status)
	assert.Equal(t, status.StatusSkipped, res.Stage("deploy").Status)
	assert.Equal(t, []string{cmdSdist}, f.mock.Scripts())
}

func TestExecute_FetchesDependencyArtifacts(t *testing.T) {
	f := newFixture(t)
	p, err := pipeline.Parse([]byte(`
build:
  script: [make]
  artifacts:
    paths: [out/]
test:
  script: [clean]
deploy:
  dependencies: [build]
  script: [ship]
`))
	require.NoError(t, err)

	var shipped string
	f.mock.OnRun = func(cmd executor.Command) error {
		target := filepath.Join(f.workdir, "out", "app.bin")
		switch cmd.Script {
		case "make":
			require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
			return os.WriteFile(target, []byte("binary"), 0644)
		case "clean":
			return os.RemoveAll(filepath.Join(f.workdir, "out"))
		case "ship":
			data, err := os.ReadFile(target)
			if err != nil {
				return err
			}
			shipped = string(data)
		}
		return nil
	}

	_, err = f.exec.Execute(context.Background(), p, f.opts("main"))
	require.NoError(t, err)
	assert.Equal(t, "binary", shipped)
}

func TestExecute_SkippedDependencyWarns(t *testing.T) {
	f := newFixture(t)
	p, err := pipeline.Parse([]byte(`
stages: [build, deploy, notify]
build:
  script: [make]
deploy:
  script: [ship]
  artifacts:
    paths: [release/]
  only: [master]
notify:
  dependencies: [deploy]
  script: [announce]
`))
	require.NoError(t, err)
	f.mock.OnRun = nil

	res, err := f.exec.Execute(context.Background(), p, f.opts("feature/x"))
	require.NoError(t, err)
	assert.Equal(t, status.StatusSuccess, res.Stage("notify").Status)
	assert.Equal(t, []string{"make", "announce"}, f.mock.Scripts())
	assert.Contains(t, f.out.String(), "dependency deploy was skipped")
}

func TestExecute_SelectedStages(t *testing.T) {
	f := newFixture(t)
	opts := f.opts("master")
	opts.Stages = []string{"build"}

	res, err := f.exec.Execute(context.Background(), defaultPipeline(t), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{cmdSdist}, f.mock.Scripts())
	assert.Equal(t, status.StatusSkipped, res.Stage("test").Status)
	assert.Equal(t, status.StatusSkipped, res.Stage("deploy").Status)
}

func TestExecute_JobEnvironment(t *testing.T) {
	f := newFixture(t)
	p := defaultPipeline(t)
	p.Variables = map[string]string{"PIP_CACHE_DIR": ".cache/pip", "CI_JOB_NAME": "overridden"}

	_, err := f.exec.Execute(context.Background(), p, f.opts("py3"))
	require.NoError(t, err)

	require.NotEmpty(t, f.mock.Commands)
	env := f.mock.Commands[0].Env
	assert.Equal(t, "true", env["CI"])
	assert.Equal(t, "py3", env["CI_COMMIT_REF_NAME"])
	assert.Equal(t, "run-1", env["CI_PIPELINE_ID"])
	assert.Equal(t, "build", env["CI_JOB_STAGE"])
	assert.Equal(t, "python:3", env["CI_JOB_IMAGE"])
	assert.Equal(t, ".cache/pip", env["PIP_CACHE_DIR"])
	assert.Equal(t, "overridden", env["CI_JOB_NAME"])
	assert.Equal(t, "python:3", f.mock.Commands[0].Image)
}

func TestExecute_ProgressCallbackCountsRunningStages(t *testing.T) {
	f := newFixture(t)

	type call struct {
		index, total int
		stage        string
	}
	var calls []call
	f.exec.SetProgressCallback(func(index, total int, s *pipeline.Stage) {
		calls = append(calls, call{index, total, s.Name})
	})

	_, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("feature/x"))
	require.NoError(t, err)
	assert.Equal(t, []call{{1, 2, "build"}, {2, 2, "test"}}, calls)
}

func TestExecute_StageHook(t *testing.T) {
	t.Run("runs after the stage succeeds", func(t *testing.T) {
		f := newFixture(t)
		var hooked []string
		f.exec.AddStageHook("deploy", func(ctx context.Context, s *pipeline.Stage, workdir string) error {
			hooked = append(hooked, s.Name)
			assert.FileExists(t, filepath.Join(workdir, "public", "coverage", "index.html"))
			return nil
		})

		_, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("master"))
		require.NoError(t, err)
		assert.Equal(t, []string{"deploy"}, hooked)
	})

	t.Run("error fails the stage", func(t *testing.T) {
		f := newFixture(t)
		f.exec.AddStageHook("deploy", func(context.Context, *pipeline.Stage, string) error {
			return errors.New("publish failed")
		})

		res, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("master"))
		require.Error(t, err)

		var stageErr *StageError
		require.True(t, errors.As(err, &stageErr))
		assert.Equal(t, "deploy", stageErr.Stage)
		assert.Equal(t, 1, res.ExitCode)
		assert.Equal(t, status.StatusFailed, res.Stage("deploy").Status)
	})

	t.Run("not run for skipped stage", func(t *testing.T) {
		f := newFixture(t)
		called := false
		f.exec.AddStageHook("deploy", func(context.Context, *pipeline.Stage, string) error {
			called = true
			return nil
		})

		_, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("feature/x"))
		require.NoError(t, err)
		assert.False(t, called)
	})
}

func TestExecute_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.exec.Execute(ctx, defaultPipeline(t), f.opts("master"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitCanceled, res.ExitCode)
	assert.Equal(t, status.StatusCanceled, res.Status)
	assert.Equal(t, status.StatusCanceled, res.Stage("deploy").Status)
	assert.Empty(t, f.mock.Commands)
}

func TestExecute_RecordSaveFailureOnlyWarns(t *testing.T) {
	f := newFixture(t)
	f.records.err = errors.New("disk full")

	res, err := f.exec.Execute(context.Background(), defaultPipeline(t), f.opts("master"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, f.out.String(), "cannot save run record: disk full")
}

func TestPlan(t *testing.T) {
	f := newFixture(t)

	plan, err := f.exec.Plan(defaultPipeline(t), f.opts("feature/x"))
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.False(t, plan[0].Skip)
	assert.False(t, plan[1].Skip)
	assert.True(t, plan[2].Skip)
	assert.Empty(t, f.mock.Commands)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "command failure", err: &CommandError{Stage: "test", Command: "pytest", ExitCode: 2}, want: 2},
		{name: "wrapped command failure", err: &StageError{Stage: "x", Err: &CommandError{ExitCode: 5}}, want: 5},
		{name: "config error", err: &pipeline.ConfigError{Problems: []string{"no stages"}}, want: ExitConfig},
		{name: "missing artifact", err: &artifact.MissingError{Stage: "test", Path: "htmlcov"}, want: ExitGeneric},
		{name: "canceled", err: context.Canceled, want: ExitCanceled},
		{name: "other", err: errors.New("boom"), want: ExitGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
