package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FSStore keeps artifacts under a local directory, one subdirectory per run.
type FSStore struct {
	baseDir string
}

// NewFSStore creates an [FSStore] rooted at baseDir. The directory is
// created on first write.
func NewFSStore(baseDir string) *FSStore {
	return &FSStore{baseDir: baseDir}
}

func (s *FSStore) filePath(runID, path string) string {
	return filepath.Join(s.baseDir, runID, filepath.FromSlash(path))
}

func (s *FSStore) Put(_ context.Context, runID, path string, content []byte) error {
	runID, path, err := normalizeKey(runID, path)
	if err != nil {
		return err
	}
	full := s.filePath(runID, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (s *FSStore) Get(_ context.Context, runID, path string) ([]byte, error) {
	runID, path, err := normalizeKey(runID, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.filePath(runID, path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FSStore) List(_ context.Context, runID string) ([]string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	root := filepath.Join(s.baseDir, runID)
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *FSStore) Delete(_ context.Context, runID, path string) error {
	runID, path, err := normalizeKey(runID, path)
	if err != nil {
		return err
	}
	full := s.filePath(runID, path)
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	s.removeEmptyParents(filepath.Dir(full))
	return nil
}

// removeEmptyParents deletes now-empty directories up to the store root.
func (s *FSStore) removeEmptyParents(dir string) {
	root := filepath.Clean(s.baseDir)
	for dir != root && strings.HasPrefix(dir, root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (s *FSStore) Runs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
