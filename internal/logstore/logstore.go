// Package logstore preserves the output of every pipeline command and a
// structured event log per run, so failures can be inspected after the
// terminal output is gone.
//
// Layout under the state directory:
//
//	runs/<run-id>/logs/<stage>/<NN>.log
//	runs/<run-id>/events.jsonl
package logstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	logsDir    = "logs"
	eventsFile = "events.jsonl"
)

// Store manages command logs on disk.
type Store struct {
	stateDir string
}

// New creates a Store rooted at stateDir.
func New(stateDir string) *Store {
	return &Store{stateDir: stateDir}
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.stateDir, "runs", runID)
}

// CommandLog creates the log file for the index-th command (0-based) of a
// stage. The first line records the command itself.
func (s *Store) CommandLog(runID, stage string, index int, command string) (io.WriteCloser, string, error) {
	dir := filepath.Join(s.runDir(runID), logsDir, sanitize(stage))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%02d.log", index+1))
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create command log: %w", err)
	}
	if _, err := fmt.Fprintf(f, "$ %s\n", command); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("write command log: %w", err)
	}
	return f, path, nil
}

// LogFile is a stored command log.
type LogFile struct {
	Stage string
	Path  string
}

// Logs returns the command logs of a run in stage and command order. When
// stage is non-empty only that stage's logs are returned.
func (s *Store) Logs(runID, stage string, order []string) ([]LogFile, error) {
	root := filepath.Join(s.runDir(runID), logsDir)
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}

	rank := make(map[string]int, len(order))
	for i, name := range order {
		rank[sanitize(name)] = i
	}
	stages := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && (stage == "" || e.Name() == sanitize(stage)) {
			stages = append(stages, e.Name())
		}
	}
	sort.SliceStable(stages, func(i, j int) bool {
		ri, iok := rank[stages[i]]
		rj, jok := rank[stages[j]]
		if iok && jok {
			return ri < rj
		}
		if iok != jok {
			return iok
		}
		return stages[i] < stages[j]
	})

	var out []LogFile
	for _, st := range stages {
		files, err := filepath.Glob(filepath.Join(root, st, "*.log"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, f := range files {
			out = append(out, LogFile{Stage: st, Path: f})
		}
	}
	return out, nil
}

// EventsPath returns the structured event log of a run.
func (s *Store) EventsPath(runID string) string {
	return filepath.Join(s.runDir(runID), eventsFile)
}

// OpenEvents opens the structured event log of a run for appending.
func (s *Store) OpenEvents(runID string) (*os.File, error) {
	if err := os.MkdirAll(s.runDir(runID), 0755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return os.OpenFile(s.EventsPath(runID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// sanitize keeps stage names safe for use as directory names.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 || b.String() == "." || b.String() == ".." {
		return "stage"
	}
	return b.String()
}
