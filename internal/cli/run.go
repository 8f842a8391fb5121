package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"piperun/internal/lifecycle"
	"piperun/internal/logstore"
	"piperun/internal/output"
	"piperun/internal/pages"
	"piperun/internal/pipeline"
	"piperun/internal/router"
	"piperun/internal/status"
	"piperun/internal/workflow"
)

type runOptions struct {
	file     string
	ref      string
	executor string
	stages   []string
	verbose  bool
}

func newRunCommand(app *App) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline",
		Long: `Run every stage of the pipeline in order for the current ref:
  1. build  - package the project and keep dist/
  2. test   - install the package, run the tests, keep htmlcov/
  3. deploy - copy the coverage report to public/ (master and py3 only)

The pipeline stops at the first command that exits non-zero and piperun
exits with that command's code. A configuration problem exits with 78
before any stage runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyRunOptions(app, cmd, opts)
			return runPipeline(cmd.Context(), app, cmd.Flags().Changed("file"), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "pipeline file (default .piperun.yml, built-in pipeline when absent)")
	cmd.Flags().StringVar(&opts.ref, "ref", "", "ref to run for (default CI_COMMIT_REF_NAME or the current git branch)")
	cmd.Flags().StringVar(&opts.executor, "executor", "", "executor kind: shell or docker")
	cmd.Flags().StringSliceVarP(&opts.stages, "stage", "s", nil, "run only the named stages")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "include debug entries in the event log")
	return cmd
}

func applyRunOptions(app *App, cmd *cobra.Command, opts runOptions) {
	if cmd.Flags().Changed("file") {
		app.Config.PipelineFile = opts.file
	}
	if opts.ref != "" {
		app.Config.Ref = opts.ref
	}
	if opts.executor != "" {
		app.Config.Executor.Kind = opts.executor
	}
}

func runPipeline(ctx context.Context, app *App, explicitFile bool, opts runOptions) error {
	if err := app.Config.Validate(); err != nil {
		return app.failure(&pipeline.ConfigError{Problems: []string{err.Error()}})
	}

	p, pipelineFile, err := app.loadPipeline(explicitFile)
	if err != nil {
		return app.failure(err)
	}

	workdir, err := app.workdir()
	if err != nil {
		return app.failure(err)
	}
	ref, err := router.ResolveRef(ctx, app.Config.Ref, workdir)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(lifecycle.ExitConfig)
	}

	stateDir, err := app.statePath()
	if err != nil {
		return app.failure(err)
	}
	collector, err := app.collector()
	if err != nil {
		return app.failure(err)
	}

	runID := app.newRunID()
	logs := logstore.New(stateDir)
	runOpts := lifecycle.Options{
		RunID:        runID,
		Ref:          ref,
		Workdir:      workdir,
		PipelineFile: pipelineFile,
		Stages:       opts.stages,
	}

	exec := lifecycle.NewExecutor(
		workflow.NewRunner(app.executor(), app.Printer, logs),
		collector,
		status.NewWriter(stateDir),
	)
	exec.SetReporter(app.Printer)
	exec.SetClock(app.Now)
	exec.SetDefaultTimeout(app.Config.Executor.Timeout)

	// Reject configuration problems before anything is written for the run.
	if _, err := exec.Plan(p, runOpts); err != nil {
		return app.failure(err)
	}

	events, err := logs.OpenEvents(runID)
	if err != nil {
		app.Printer.Warn("cannot open event log: %v", err)
	} else {
		defer events.Close()
		exec.SetLogger(logstore.NewJSONLogger(events, opts.verbose))
	}

	if app.Config.Pages.Enabled {
		publisher := pages.NewPublisher(app.Config.Pages.Stage, app.Config.Pages.Dir, app.Config.SitePath())
		exec.AddStageHook(publisher.Stage, func(_ context.Context, _ *pipeline.Stage, workdir string) error {
			n, err := publisher.Publish(workdir)
			if errors.Is(err, pages.ErrNoSource) {
				app.Printer.Warn("%s: %v; site not published", publisher.Stage, err)
				return nil
			}
			if err != nil {
				return err
			}
			app.Printer.Success("published %d files to %s", n, publisher.SiteDir)
			return nil
		})
	}

	app.Printer.PipelineStart(runID, ref, p.Names())
	res, err := exec.Execute(ctx, p, runOpts)
	if res == nil {
		return app.failure(err)
	}

	app.Printer.Summary(runID, string(res.Status), res.ExitCode, res.Duration(), summaryLines(res, app.Config.Output.TruncateLength))
	if res.ExitCode != 0 {
		return NewExitError(res.ExitCode)
	}
	return nil
}

func summaryLines(res *lifecycle.Result, maxLen int) []output.StageLine {
	lines := make([]output.StageLine, 0, len(res.Stages))
	for _, s := range res.Stages {
		line := output.StageLine{
			Name:     s.Name,
			Phase:    s.Phase,
			Status:   string(s.Status),
			Duration: s.Duration,
			Detail:   s.Reason,
		}
		if s.Err != nil {
			line.Detail = truncate(failureDetail(s.Err), maxLen)
		}
		lines = append(lines, line)
	}
	return lines
}

func failureDetail(err error) string {
	var cmdErr *lifecycle.CommandError
	if errors.As(err, &cmdErr) {
		return fmt.Sprintf("%s → exit %d", cmdErr.Command, cmdErr.ExitCode)
	}
	return strings.TrimSpace(err.Error())
}
