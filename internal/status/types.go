// Package status records the outcome of pipeline runs.
//
// Each run is persisted as YAML at <state-dir>/runs/<run-id>/status.yaml so
// a failed pipeline can be inspected after the fact: which stage failed,
// which command, with what exit code, and how long every stage took.
//
// Key types:
//   - [Status] is the state of a run or of a single stage
//   - [RunRecord] is the persisted summary of one run
//   - [Reader] and [Writer] load and save records
package status

import "time"

// Status represents the state of a run or stage.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
	StatusCanceled Status = "canceled"
)

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusSkipped, StatusCanceled:
		return true
	}
	return false
}

// IsFinal reports whether s can no longer change.
func (s Status) IsFinal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped || s == StatusCanceled
}

// RunRecord is the persisted summary of a pipeline run.
type RunRecord struct {
	RunID      string        `yaml:"run_id"`
	Ref        string        `yaml:"ref"`
	Pipeline   string        `yaml:"pipeline,omitempty"`
	Workdir    string        `yaml:"workdir,omitempty"`
	Status     Status        `yaml:"status"`
	ExitCode   int           `yaml:"exit_code"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at,omitempty"`
	Failure    *Failure      `yaml:"failure,omitempty"`
	Stages     []StageRecord `yaml:"stages"`
}

// Failure identifies where a run failed.
type Failure struct {
	Stage    string `yaml:"stage"`
	Command  string `yaml:"command,omitempty"`
	ExitCode int    `yaml:"exit_code"`
	Message  string `yaml:"message"`
}

// StageRecord is the outcome of one stage within a run.
type StageRecord struct {
	Name      string        `yaml:"name"`
	Phase     string        `yaml:"phase"`
	Image     string        `yaml:"image,omitempty"`
	Status    Status        `yaml:"status"`
	Reason    string        `yaml:"reason,omitempty"`
	Duration  time.Duration `yaml:"duration"`
	Artifacts []string      `yaml:"artifacts,omitempty"`
}

// Duration returns the wall time of the run, or zero while it is running.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
