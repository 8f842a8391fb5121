// Package lifecycle runs a pipeline from its first stage to its last.
//
// The lifecycle package provides [Executor], which walks the stage plan
// produced by the router, fetches the artifacts each stage depends on, runs
// its commands, and collects the artifacts it declares. Execution is
// fail-fast: the first command that exits non-zero ends the run and every
// later stage is marked skipped.
//
// Key concepts:
//   - The plan is determined by [router.Router] from the ref
//   - Each stage runs through a [StageRunner], artifacts move through an [ArtifactHandler]
//   - The run record is persisted via [RecordWriter] after every stage
//   - Progress is reported through a [Reporter]; the output package's Printer satisfies it
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"piperun/internal/artifact"
	"piperun/internal/logstore"
	"piperun/internal/pipeline"
	"piperun/internal/router"
	"piperun/internal/status"
	"piperun/internal/workflow"
)

// Skip reasons recorded for stages that never ran.
const (
	ReasonPipelineFailed   = "pipeline failed"
	ReasonPipelineCanceled = "pipeline canceled"
)

// StageRunner executes the commands of one stage.
//
// The [workflow.Runner] type implements this interface.
type StageRunner interface {
	RunStage(ctx context.Context, job workflow.Job) (workflow.Result, error)
}

// ArtifactHandler moves artifacts between stages.
//
// Collect stores the files a stage declared; it returns an
// [*artifact.MissingError] when a declared path matches nothing. Fetch
// restores a finished stage's artifacts into the workspace and returns
// [artifact.ErrNotFound] when that stage stored none. The [artifact.Collector]
// type implements this interface.
type ArtifactHandler interface {
	Collect(ctx context.Context, runID, stage, workdir string, decl *pipeline.Artifacts) (*artifact.Manifest, error)
	Fetch(ctx context.Context, runID, stage, workdir string) (*artifact.Manifest, error)
}

// RecordWriter persists the run record.
//
// The [status.Writer] type implements this interface.
type RecordWriter interface {
	Save(rec *status.RunRecord) error
}

// Reporter receives human-facing progress.
type Reporter interface {
	StageStart(index, total int, name, image string)
	StageSkipped(name, reason string)
	StageSucceeded(name string, d time.Duration)
	StageFailed(name string, err error)
	Warn(format string, args ...any)
}

// ProgressCallback is invoked before each stage begins execution.
//
// The callback receives stepIndex (1-based) and totalSteps counted over the
// stages that actually run.
type ProgressCallback func(stepIndex, totalSteps int, stage *pipeline.Stage)

// StageHook runs after a stage's commands succeeded and its artifacts were
// collected. A non-nil error fails the stage.
type StageHook func(ctx context.Context, stage *pipeline.Stage, workdir string) error

// Options describe one run.
type Options struct {
	RunID   string
	Ref     string
	Workdir string

	// PipelineFile is recorded in the run record.
	PipelineFile string

	// Stages restricts the run to the named stages. Empty runs all.
	Stages []string
}

// Executor orchestrates a pipeline run.
//
// Executor uses dependency injection for testability. Use [NewExecutor] to
// create an instance and [Executor.Execute] to run a pipeline.
type Executor struct {
	runner    StageRunner
	artifacts ArtifactHandler
	records   RecordWriter

	reporter         Reporter
	logger           logstore.Logger
	progressCallback ProgressCallback
	hooks            map[string][]StageHook
	defaultTimeout   time.Duration
	now              func() time.Time
}

// NewExecutor creates an Executor. records may be nil to skip persistence.
func NewExecutor(runner StageRunner, artifacts ArtifactHandler, records RecordWriter) *Executor {
	return &Executor{
		runner:    runner,
		artifacts: artifacts,
		records:   records,
		logger:    logstore.NopLogger{},
		hooks:     make(map[string][]StageHook),
		now:       time.Now,
	}
}

// SetReporter configures where stage progress is printed.
func (e *Executor) SetReporter(r Reporter) {
	e.reporter = r
}

// SetLogger configures the structured event log.
func (e *Executor) SetLogger(l logstore.Logger) {
	if l == nil {
		l = logstore.NopLogger{}
	}
	e.logger = l
}

// SetProgressCallback configures an optional callback invoked before each
// stage runs.
func (e *Executor) SetProgressCallback(cb ProgressCallback) {
	e.progressCallback = cb
}

// SetDefaultTimeout sets the per-command timeout for stages that declare
// none.
func (e *Executor) SetDefaultTimeout(d time.Duration) {
	e.defaultTimeout = d
}

// SetClock replaces the clock used for run and stage timestamps.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// AddStageHook registers a hook run after the named stage succeeds.
func (e *Executor) AddStageHook(stage string, hook StageHook) {
	e.hooks[stage] = append(e.hooks[stage], hook)
}

// Plan returns the stage plan for opts without executing anything.
func (e *Executor) Plan(p *pipeline.Pipeline, opts Options) ([]router.PlannedStage, error) {
	if err := pipeline.Validate(p); err != nil {
		return nil, err
	}
	r := router.NewRouter(opts.Ref)
	r.Select(opts.Stages...)
	return r.Plan(p)
}

// Execute runs p and returns the run result.
//
// The pipeline is validated before any stage runs; a configuration problem
// returns a *[pipeline.ConfigError] with nothing executed. Otherwise Execute
// always returns a non-nil [Result] whose Err and ExitCode describe the
// first failure, and the error return equals Result.Err.
func (e *Executor) Execute(ctx context.Context, p *pipeline.Pipeline, opts Options) (*Result, error) {
	plan, err := e.Plan(p, opts)
	if err != nil {
		return nil, err
	}

	workdir, err := filepath.Abs(opts.Workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}

	res := &Result{
		RunID:     opts.RunID,
		Ref:       opts.Ref,
		Status:    status.StatusRunning,
		StartedAt: e.now(),
		Stages:    make([]StageResult, len(plan)),
	}
	total := 0
	for i, entry := range plan {
		res.Stages[i] = StageResult{
			Name:   entry.Stage.Name,
			Phase:  entry.Stage.Phase,
			Image:  p.ImageFor(entry.Stage),
			Status: status.StatusPending,
		}
		if !entry.Skip {
			total++
		}
	}
	e.save(res, opts, workdir)
	e.logger.Info("pipeline started", map[string]any{"run_id": opts.RunID, "ref": opts.Ref, "stages": len(plan)})

	// Names of stages that were skipped, so dependents can warn instead of
	// failing.
	skipped := make(map[string]bool)
	step := 0

	for i, entry := range plan {
		sr := &res.Stages[i]
		stage := entry.Stage

		if res.Err != nil {
			sr.Status = status.StatusSkipped
			sr.Reason = ReasonPipelineFailed
			if errors.Is(res.Err, context.Canceled) {
				sr.Status = status.StatusCanceled
				sr.Reason = ReasonPipelineCanceled
			}
			continue
		}

		if entry.Skip {
			sr.Status = status.StatusSkipped
			sr.Reason = entry.Reason
			skipped[stage.Name] = true
			e.logger.Info("stage skipped", map[string]any{"stage": stage.Name, "reason": entry.Reason})
			if e.reporter != nil {
				e.reporter.StageSkipped(stage.Name, entry.Reason)
			}
			e.save(res, opts, workdir)
			continue
		}

		step++
		if e.progressCallback != nil {
			e.progressCallback(step, total, stage)
		}
		if e.reporter != nil {
			e.reporter.StageStart(step, total, stage.Name, sr.Image)
		}

		sr.Status = status.StatusRunning
		e.save(res, opts, workdir)

		start := e.now()
		manifest, stageErr := e.runStage(ctx, p, stage, opts, workdir, skipped)
		sr.Duration = e.now().Sub(start)
		sr.Artifacts = manifest

		if stageErr != nil {
			sr.Status = status.StatusFailed
			if errors.Is(stageErr, context.Canceled) {
				sr.Status = status.StatusCanceled
			}
			sr.Err = stageErr
			res.Err = stageErr
			e.logger.Error("stage failed", map[string]any{"stage": stage.Name, "error": stageErr.Error()})
			if e.reporter != nil {
				e.reporter.StageFailed(stage.Name, stageErr)
			}
		} else {
			sr.Status = status.StatusSuccess
			e.logger.Info("stage succeeded", map[string]any{"stage": stage.Name, "duration_ms": sr.Duration.Milliseconds()})
			if e.reporter != nil {
				e.reporter.StageSucceeded(stage.Name, sr.Duration)
			}
		}
		e.save(res, opts, workdir)
	}

	res.FinishedAt = e.now()
	res.ExitCode = ExitCode(res.Err)
	switch {
	case res.Err == nil:
		res.Status = status.StatusSuccess
	case errors.Is(res.Err, context.Canceled):
		res.Status = status.StatusCanceled
	default:
		res.Status = status.StatusFailed
	}
	e.save(res, opts, workdir)
	e.logger.Info("pipeline finished", map[string]any{"run_id": opts.RunID, "status": string(res.Status), "exit_code": res.ExitCode})

	return res, res.Err
}

// runStage fetches dependencies, runs the commands, collects artifacts and
// fires hooks for a single stage.
func (e *Executor) runStage(ctx context.Context, p *pipeline.Pipeline, stage *pipeline.Stage, opts Options, workdir string, skipped map[string]bool) (*artifact.Manifest, error) {
	for _, dep := range stage.Dependencies {
		if skipped[dep] {
			e.warn("stage %s: dependency %s was skipped, no artifacts fetched", stage.Name, dep)
			continue
		}
		m, err := e.artifacts.Fetch(ctx, opts.RunID, dep, workdir)
		if errors.Is(err, artifact.ErrNotFound) {
			e.logger.Debug("dependency has no artifacts", map[string]any{"stage": stage.Name, "dependency": dep})
			continue
		}
		if err != nil {
			return nil, &StageError{Stage: stage.Name, Err: fmt.Errorf("fetch artifacts of %s: %w", dep, err)}
		}
		e.logger.Info("artifacts fetched", map[string]any{"stage": stage.Name, "dependency": dep, "files": len(m.Files)})
	}

	timeout := stage.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	job := workflow.Job{
		RunID:    opts.RunID,
		Stage:    stage.Name,
		Image:    p.ImageFor(stage),
		Dir:      workdir,
		Commands: p.CommandsFor(stage),
		Env:      JobEnv(p, stage, opts.RunID, opts.Ref, workdir),
		Timeout:  timeout,
	}

	out, err := e.runner.RunStage(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &StageError{Stage: stage.Name, Err: err}
	}
	if out.Failed() {
		return nil, &CommandError{Stage: stage.Name, Command: out.FailedCommand, ExitCode: out.ExitCode}
	}

	manifest, err := e.artifacts.Collect(ctx, opts.RunID, stage.Name, workdir, stage.Artifacts)
	if err != nil {
		return nil, err
	}

	for _, hook := range e.hooks[stage.Name] {
		if err := hook(ctx, stage, workdir); err != nil {
			return manifest, &StageError{Stage: stage.Name, Err: err}
		}
	}
	return manifest, nil
}

func (e *Executor) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.logger.Warn(msg, nil)
	if e.reporter != nil {
		e.reporter.Warn("%s", msg)
	}
}

func (e *Executor) save(res *Result, opts Options, workdir string) {
	if e.records == nil {
		return
	}
	if err := e.records.Save(res.Record(opts.PipelineFile, workdir)); err != nil {
		e.warn("cannot save run record: %v", err)
	}
}
