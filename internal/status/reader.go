package status

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrRunNotFound is returned when no record exists for a run id.
var ErrRunNotFound = errors.New("run not found")

// Reader reads run records from the state directory.
type Reader struct {
	stateDir string
}

// NewReader creates a new [Reader] rooted at stateDir.
func NewReader(stateDir string) *Reader {
	return &Reader{stateDir: stateDir}
}

// Get reads the record of a single run.
func (r *Reader) Get(runID string) (*RunRecord, error) {
	data, err := os.ReadFile(filepath.Join(RunDir(r.stateDir, runID), FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}

	var rec RunRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse run record %s: %w", runID, err)
	}
	return &rec, nil
}

// List returns every readable run record, newest first. Directories without
// a parseable record are skipped.
func (r *Reader) List() ([]*RunRecord, error) {
	entries, err := os.ReadDir(filepath.Join(r.stateDir, RunsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []*RunRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	records := make([]*RunRecord, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := r.Get(e.Name())
		if err != nil {
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

// Latest returns the most recent run record.
func (r *Reader) Latest() (*RunRecord, error) {
	records, err := r.List()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRunNotFound
	}
	return records[0], nil
}
