package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"piperun/internal/artifact"
	"piperun/internal/config"
	"piperun/internal/executor"
	"piperun/internal/lifecycle"
	"piperun/internal/pipeline"
)

// builtinPipeline is recorded as the pipeline file of runs that used the
// embedded default.
const builtinPipeline = "(built-in)"

// runIDLayout prefixes run IDs so they sort chronologically.
const runIDLayout = "20060102-150405"

// newRunID returns an ID such as "20261019-150405-ab12cd34".
func (app *App) newRunID() string {
	return app.Now().UTC().Format(runIDLayout) + "-" + uuid.NewString()[:8]
}

// workdir returns the absolute workspace directory.
func (app *App) workdir() (string, error) {
	dir, err := filepath.Abs(app.Config.Workdir)
	if err != nil {
		return "", fmt.Errorf("resolve workdir: %w", err)
	}
	return dir, nil
}

// executor returns the injected executor or builds one from configuration.
func (app *App) executor() executor.Executor {
	if app.Executor != nil {
		return app.Executor
	}
	cfg := app.Config.Executor
	if cfg.Kind == config.ExecutorDocker {
		d := executor.NewDockerExecutor(cfg.DockerPath)
		if cfg.Shell != "" {
			d.Shell = cfg.Shell
		}
		return d
	}
	return executor.NewShellExecutor(cfg.Shell)
}

// artifactStore returns the injected store or builds the configured backend.
func (app *App) artifactStore() (artifact.Store, error) {
	if app.Store != nil {
		return app.Store, nil
	}
	cfg := app.Config.Artifacts
	if cfg.Backend == config.BackendS3 {
		store, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		return store, nil
	}
	return artifact.NewFSStore(app.Config.ArtifactsPath()), nil
}

func (app *App) collector() (*artifact.Collector, error) {
	store, err := app.artifactStore()
	if err != nil {
		return nil, err
	}
	c, err := artifact.NewCollector(store, app.Config.Artifacts.CacheSize)
	if err != nil {
		return nil, err
	}
	c.SetClock(app.Now)
	c.Exclude(app.Config.StatePath(), app.Config.ArtifactsPath(), app.Config.SitePath())
	return c, nil
}

// loadPipeline reads the configured pipeline file. When the file does not
// exist and no file was named explicitly, the built-in pipeline is used.
func (app *App) loadPipeline(explicit bool) (*pipeline.Pipeline, string, error) {
	path := app.Config.PipelinePath()
	p, err := pipeline.Load(path)
	if err == nil {
		return p, path, nil
	}
	var cfgErr *pipeline.ConfigError
	if errors.As(err, &cfgErr) {
		return nil, path, err
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		p, err := pipeline.Parse(pipeline.Default())
		return p, builtinPipeline, err
	}
	return nil, path, &pipeline.ConfigError{Problems: []string{err.Error()}}
}

// failure converts err into an [ExitError] after reporting it.
func (app *App) failure(err error) error {
	var cfgErr *pipeline.ConfigError
	if errors.As(err, &cfgErr) {
		app.Printer.Error("invalid pipeline")
		for _, problem := range cfgErr.Problems {
			app.Printer.Info("  - %s", problem)
		}
	} else {
		app.Printer.Error("%v", err)
	}
	return NewExitError(lifecycle.ExitCode(err))
}

// statePath returns the state directory, creating it.
func (app *App) statePath() (string, error) {
	dir := app.Config.StatePath()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

func truncate(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
