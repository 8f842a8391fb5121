// Package artifact stores the files a stage declares and hands them to later
// stages.
//
// Artifacts are addressed by run ID and a slash-separated path. The
// [Collector] lays out each stage's artifacts as:
//
//	<run-id>/<stage>/manifest.json
//	<run-id>/<stage>/files/<workspace-relative path>
//
// Backends: [FSStore] (local directory), [MemoryStore] (tests) and
// [S3Store] (any S3-compatible endpoint through minio-go).
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store defines operations for persisting run artifacts.
type Store interface {
	Put(ctx context.Context, runID, path string, content []byte) error
	Get(ctx context.Context, runID, path string) ([]byte, error)
	// List returns the paths stored for a run, sorted.
	List(ctx context.Context, runID string) ([]string, error)
	Delete(ctx context.Context, runID, path string) error
	// Runs returns the run IDs that have stored artifacts, sorted.
	Runs(ctx context.Context) ([]string, error)
}

func normalizeKey(runID, path string) (string, string, error) {
	runID = strings.TrimSpace(runID)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if runID == "" {
		return "", "", fmt.Errorf("run_id is required")
	}
	if strings.ContainsAny(runID, "/\\") || runID == "." || runID == ".." {
		return "", "", fmt.Errorf("invalid run_id %q", runID)
	}
	if path == "" {
		return "", "", fmt.Errorf("path is required")
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return "", "", fmt.Errorf("invalid artifact path %q", path)
		}
	}
	return runID, path, nil
}

func objectKey(runID, path string) string {
	return runID + "/" + path
}
