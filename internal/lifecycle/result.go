package lifecycle

import (
	"errors"
	"time"

	"piperun/internal/artifact"
	"piperun/internal/status"
)

// StageResult is the outcome of one stage.
type StageResult struct {
	Name      string
	Phase     string
	Image     string
	Status    status.Status
	Reason    string
	Duration  time.Duration
	Artifacts *artifact.Manifest

	// Err is set for failed and canceled stages.
	Err error
}

// Result is the outcome of a pipeline run.
type Result struct {
	RunID      string
	Ref        string
	Status     status.Status
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []StageResult

	// Err is the error that ended the run, nil on success.
	Err error
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage returns the result of the named stage, or nil.
func (r *Result) Stage(name string) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// Record converts the result into a persisted run record.
func (r *Result) Record(pipelineFile, workdir string) *status.RunRecord {
	rec := &status.RunRecord{
		RunID:      r.RunID,
		Ref:        r.Ref,
		Pipeline:   pipelineFile,
		Workdir:    workdir,
		Status:     r.Status,
		ExitCode:   r.ExitCode,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Stages:     make([]status.StageRecord, 0, len(r.Stages)),
	}

	for _, s := range r.Stages {
		sr := status.StageRecord{
			Name:     s.Name,
			Phase:    s.Phase,
			Image:    s.Image,
			Status:   s.Status,
			Reason:   s.Reason,
			Duration: s.Duration,
		}
		if s.Artifacts != nil {
			for _, f := range s.Artifacts.Files {
				sr.Artifacts = append(sr.Artifacts, f.Path)
			}
		}
		rec.Stages = append(rec.Stages, sr)

		if s.Status == status.StatusFailed && rec.Failure == nil {
			rec.Failure = &status.Failure{
				Stage:    s.Name,
				ExitCode: r.ExitCode,
			}
			if s.Err != nil {
				rec.Failure.Message = s.Err.Error()
			}
			var cmdErr *CommandError
			if errors.As(s.Err, &cmdErr) {
				rec.Failure.Command = cmdErr.Command
			}
		}
	}
	if rec.Failure == nil && r.Err != nil && r.Status == status.StatusFailed {
		rec.Failure = &status.Failure{ExitCode: r.ExitCode, Message: r.Err.Error()}
	}
	return rec
}
