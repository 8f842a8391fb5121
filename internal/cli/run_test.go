package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piperun/internal/status"
)

const brokenPipeline = `
build:
  script: [make]
test:
  dependencies: [compile]
  script: [pytest]
`

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name            string
		args            []string
		failOn          string
		expectedScripts []string
		expectedCode    int
		expectPublished bool
		expectOutput    []string
	}{
		{
			name: "master runs every stage and publishes coverage",
			args: []string{"run", "--ref", "master"},
			expectedScripts: []string{
				"python setup.py sdist",
				`pip install "$(ls dist/*.tar.gz)[simulator]"`,
				"pip install pytest pytest-cov",
				"pytest --cov=mythendcs --cov-report=html",
				"mkdir -p public/coverage",
				"cp -r htmlcov/* public/coverage/",
			},
			expectPublished: true,
			expectOutput:    []string{"PIPELINE PASSED", "published 1 files"},
		},
		{
			name: "feature branch skips deploy",
			args: []string{"run", "--ref", "feature/x"},
			expectedScripts: []string{
				"python setup.py sdist",
				`pip install "$(ls dist/*.tar.gz)[simulator]"`,
				"pip install pytest pytest-cov",
				"pytest --cov=mythendcs --cov-report=html",
			},
			expectOutput: []string{"deploy skipped", "PIPELINE PASSED"},
		},
		{
			name:   "failing tests stop the pipeline",
			args:   []string{"run", "--ref", "master"},
			failOn: "pytest --cov=mythendcs --cov-report=html",
			expectedScripts: []string{
				"python setup.py sdist",
				`pip install "$(ls dist/*.tar.gz)[simulator]"`,
				"pip install pytest pytest-cov",
				"pytest --cov=mythendcs --cov-report=html",
			},
			expectedCode: 1,
			expectOutput: []string{"PIPELINE FAILED (exit 1)", "pytest --cov=mythendcs --cov-report=html → exit 1"},
		},
		{
			name:            "selected stage only",
			args:            []string{"run", "--ref", "master", "--stage", "build"},
			expectedScripts: []string{"python setup.py sdist"},
			expectOutput:    []string{"not selected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			app.simulateDefaultPipeline(t)
			if tt.failOn != "" {
				app.Mock.ExitCodes[tt.failOn] = 1
			}

			err := app.execute(tt.args...)

			if tt.expectedCode != 0 {
				require.Error(t, err)
				code, ok := IsExitError(err)
				assert.True(t, ok, "error should be an ExitError")
				assert.Equal(t, tt.expectedCode, code)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.expectedScripts, app.Mock.Scripts(), "commands should run in stage order")

			site := filepath.Join(app.Config.SitePath(), "coverage", "index.html")
			if tt.expectPublished {
				assert.FileExists(t, site)
			} else {
				assert.NoFileExists(t, site)
				assert.NoDirExists(t, filepath.Join(app.Workdir, "public"))
			}

			for _, want := range tt.expectOutput {
				assert.Contains(t, app.Out.String(), want)
			}
		})
	}
}

func TestRunCommand_RecordsRun(t *testing.T) {
	app := newTestApp(t)
	app.simulateDefaultPipeline(t)
	app.Mock.Output = map[string]string{"python setup.py sdist": "writing dist/simulator-1.0.tar.gz\n"}

	require.NoError(t, app.execute("run"))

	rec, err := status.NewReader(app.Config.StatePath()).Latest()
	require.NoError(t, err)
	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Equal(t, "master", rec.Ref)
	assert.Equal(t, builtinPipeline, rec.Pipeline)
	assert.True(t, rec.StartedAt.Equal(testClock))
	assert.Regexp(t, `^20261019-150405-[0-9a-f]{8}$`, rec.RunID)
	require.Len(t, rec.Stages, 3)
	assert.Equal(t, []string{"dist/simulator-1.0.tar.gz"}, rec.Stages[0].Artifacts)

	events, err := os.ReadFile(filepath.Join(status.RunDir(app.Config.StatePath(), rec.RunID), "events.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(events), `"msg":"pipeline finished"`)

	log, err := os.ReadFile(filepath.Join(status.RunDir(app.Config.StatePath(), rec.RunID), "logs", "build", "01.log"))
	require.NoError(t, err)
	assert.Equal(t, "$ python setup.py sdist\nwriting dist/simulator-1.0.tar.gz\n", string(log))
}

func TestRunCommand_UsesPipelineFile(t *testing.T) {
	app := newTestApp(t)
	app.writeFile(t, ".piperun.yml", `
build:
  script:
    - echo building
`)

	require.NoError(t, app.execute("run"))
	assert.Equal(t, []string{"echo building"}, app.Mock.Scripts())
}

func TestRunCommand_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(app *testApp)
		args  []string
	}{
		{
			name:  "unknown dependency",
			setup: func(app *testApp) { app.writeFile(t, ".piperun.yml", brokenPipeline) },
			args:  []string{"run"},
		},
		{
			name:  "missing explicit pipeline file",
			setup: func(app *testApp) {},
			args:  []string{"run", "-f", "missing.yml"},
		},
		{
			name:  "unknown executor",
			setup: func(app *testApp) {},
			args:  []string{"run", "--executor", "podman"},
		},
		{
			name:  "unknown selected stage",
			setup: func(app *testApp) {},
			args:  []string{"run", "--stage", "lint"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			tt.setup(app)

			err := app.execute(tt.args...)
			require.Error(t, err)
			code, ok := IsExitError(err)
			assert.True(t, ok)
			assert.Equal(t, 78, code)
			assert.Empty(t, app.Mock.Commands, "no stage may run")
			assert.NoDirExists(t, filepath.Join(app.Config.StatePath(), status.RunsDir))
		})
	}
}

func TestRunCommand_MissingArtifact(t *testing.T) {
	app := newTestApp(t)

	err := app.execute("run")
	require.Error(t, err)
	code, ok := IsExitError(err)
	assert.True(t, ok)
	assert.Equal(t, 1, code)
	assert.Equal(t, []string{"python setup.py sdist"}, app.Mock.Scripts())
	assert.Contains(t, app.Out.String(), `artifact path "dist/"`)
}

func TestRunCommand_DeployWithoutPublicDir(t *testing.T) {
	app := newTestApp(t)
	app.writeFile(t, ".piperun.yml", `
build:
  script:
    - make
deploy:
  script:
    - ./upload.sh
  only:
    - master
`)

	require.NoError(t, app.execute("run", "--ref", "master"))
	assert.Equal(t, []string{"make", "./upload.sh"}, app.Mock.Scripts())
	assert.Contains(t, app.Out.String(), "site not published")
	assert.NoDirExists(t, app.Config.SitePath())

	rec, err := status.NewReader(app.Config.StatePath()).Latest()
	require.NoError(t, err)
	assert.Equal(t, status.StatusSuccess, rec.Status)
}

func TestRunCommand_PagesDisabled(t *testing.T) {
	app := newTestApp(t)
	app.simulateDefaultPipeline(t)
	app.Config.Pages.Enabled = false

	require.NoError(t, app.execute("run"))
	assert.FileExists(t, filepath.Join(app.Workdir, "public", "coverage", "index.html"))
	assert.NoDirExists(t, app.Config.SitePath())
}
