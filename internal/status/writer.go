package status

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RunsDir is the directory under the state dir holding one directory per run.
const RunsDir = "runs"

// FileName is the name of the run record inside a run directory.
const FileName = "status.yaml"

// RunDir returns the directory of a run under stateDir.
func RunDir(stateDir, runID string) string {
	return filepath.Join(stateDir, RunsDir, runID)
}

// Writer writes run records to YAML files.
type Writer struct {
	stateDir string
}

// NewWriter creates a new Writer rooted at stateDir.
func NewWriter(stateDir string) *Writer {
	return &Writer{
		stateDir: stateDir,
	}
}

// Save writes rec to <state-dir>/runs/<run-id>/status.yaml, replacing any
// previous version of the record.
func (w *Writer) Save(rec *RunRecord) error {
	if rec == nil || rec.RunID == "" {
		return fmt.Errorf("run record requires a run id")
	}
	if !rec.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", rec.Status)
	}

	dir := RunDir(w.stateDir, rec.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	// Write atomically (write to temp, then rename)
	fullPath := filepath.Join(dir, FileName)
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write run record: %w", err)
	}

	return nil
}
