package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"piperun/internal/pipeline"
)

const (
	manifestName = "manifest.json"
	filesDir     = "files"
)

// DefaultCacheSize is the number of stage manifests kept in memory.
const DefaultCacheSize = 256

// MissingError reports a declared artifact path that matched nothing after
// the stage ran.
type MissingError struct {
	Stage string
	Path  string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("stage %s: declared artifact path %q does not exist", e.Stage, e.Path)
}

// File is one stored artifact file.
type File struct {
	Path string      `json:"path"`
	Size int64       `json:"size"`
	Mode fs.FileMode `json:"mode"`
}

// Manifest describes the artifacts a stage produced in a run.
type Manifest struct {
	RunID     string     `json:"run_id"`
	Stage     string     `json:"stage"`
	Paths     []string   `json:"paths"`
	Files     []File     `json:"files"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the manifest's lifetime has passed at now.
func (m *Manifest) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// Size returns the total size of the stored files.
func (m *Manifest) Size() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// Collector uploads declared stage artifacts to a [Store] and restores them
// into a workspace for dependent stages.
type Collector struct {
	store   Store
	cache   *lru.Cache[string, *Manifest]
	now     func() time.Time
	exclude []string
}

// NewCollector creates a [Collector] over store with a manifest cache of
// cacheSize entries ([DefaultCacheSize] when <= 0).
func NewCollector(store Store, cacheSize int) (*Collector, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *Manifest](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create manifest cache: %w", err)
	}
	return &Collector{store: store, cache: cache, now: time.Now}, nil
}

// SetClock replaces the time source. Used by tests.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Exclude keeps the given host directories out of collected artifacts.
// Directories outside the workspace being collected are ignored.
func (c *Collector) Exclude(dirs ...string) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil {
			c.exclude = append(c.exclude, abs)
		}
	}
}

// excludedIn returns the workdir-relative, slash-separated forms of the
// excluded directories that lie inside workdir.
func (c *Collector) excludedIn(workdir string) []string {
	root, err := filepath.Abs(workdir)
	if err != nil {
		return nil
	}
	var out []string
	for _, dir := range c.exclude {
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func isExcluded(p string, excluded []string) bool {
	for _, dir := range excluded {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	return false
}

// Store returns the underlying artifact store.
func (c *Collector) Store() Store {
	return c.store
}

func cacheKey(runID, stage string) string {
	return runID + "/" + stage
}

// Collect expands every declared path in workdir and stores the matching
// files under the stage. A path that matches nothing yields a
// *[MissingError] and nothing is stored.
func (c *Collector) Collect(ctx context.Context, runID, stage, workdir string, decl *pipeline.Artifacts) (*Manifest, error) {
	if decl == nil {
		return nil, nil
	}

	fsys := os.DirFS(workdir)
	excluded := c.excludedIn(workdir)
	seen := make(map[string]fs.FileInfo)
	for _, declared := range decl.Paths {
		pattern := path.Clean(filepath.ToSlash(strings.TrimSpace(declared)))
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("stage %s: artifact path %q: %w", stage, declared, err)
		}
		kept := matches[:0]
		for _, match := range matches {
			if !isExcluded(match, excluded) {
				kept = append(kept, match)
			}
		}
		if len(kept) == 0 {
			return nil, &MissingError{Stage: stage, Path: declared}
		}
		for _, match := range kept {
			if err := addFiles(fsys, match, excluded, seen); err != nil {
				return nil, fmt.Errorf("stage %s: artifact path %q: %w", stage, declared, err)
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &Manifest{
		RunID:     runID,
		Stage:     stage,
		Paths:     append([]string(nil), decl.Paths...),
		Files:     make([]File, 0, len(names)),
		CreatedAt: c.now().UTC(),
	}
	if decl.ExpireIn > 0 {
		expires := m.CreatedAt.Add(decl.ExpireIn)
		m.ExpiresAt = &expires
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", name, err)
		}
		if err := c.store.Put(ctx, runID, path.Join(stage, filesDir, name), data); err != nil {
			return nil, fmt.Errorf("store artifact %s: %w", name, err)
		}
		info := seen[name]
		m.Files = append(m.Files, File{Path: name, Size: info.Size(), Mode: info.Mode().Perm()})
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := c.store.Put(ctx, runID, path.Join(stage, manifestName), raw); err != nil {
		return nil, fmt.Errorf("store manifest: %w", err)
	}
	c.cache.Add(cacheKey(runID, stage), m)
	return m, nil
}

// addFiles records match, or every regular file below it when it is a
// directory. Excluded directories are not descended into.
func addFiles(fsys fs.FS, match string, excluded []string, seen map[string]fs.FileInfo) error {
	return fs.WalkDir(fsys, match, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && isExcluded(p, excluded) {
			return fs.SkipDir
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		seen[p] = info
		return nil
	})
}

// Manifest returns the stored manifest for a stage of a run, or
// [ErrNotFound].
func (c *Collector) Manifest(ctx context.Context, runID, stage string) (*Manifest, error) {
	if m, ok := c.cache.Get(cacheKey(runID, stage)); ok {
		return m, nil
	}
	raw, err := c.store.Get(ctx, runID, path.Join(stage, manifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s/%s: %w", runID, stage, err)
	}
	c.cache.Add(cacheKey(runID, stage), &m)
	return &m, nil
}

// Manifests returns every stage manifest stored for a run, ordered by stage
// name.
func (c *Collector) Manifests(ctx context.Context, runID string) ([]*Manifest, error) {
	paths, err := c.store.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	var out []*Manifest
	for _, p := range paths {
		stage, rest, ok := strings.Cut(p, "/")
		if !ok || rest != manifestName {
			continue
		}
		m, err := c.Manifest(ctx, runID, stage)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Fetch restores a stage's artifact files into workdir, overwriting files
// with the same path. It returns [ErrNotFound] when the stage stored
// nothing in the run.
func (c *Collector) Fetch(ctx context.Context, runID, stage, workdir string) (*Manifest, error) {
	m, err := c.Manifest(ctx, runID, stage)
	if err != nil {
		return nil, err
	}
	for _, f := range m.Files {
		data, err := c.store.Get(ctx, runID, path.Join(stage, filesDir, f.Path))
		if err != nil {
			return nil, fmt.Errorf("fetch artifact %s from %s: %w", f.Path, stage, err)
		}
		dest := filepath.Join(workdir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, fmt.Errorf("fetch artifact %s: %w", f.Path, err)
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0644
		}
		if err := os.WriteFile(dest, data, mode); err != nil {
			return nil, fmt.Errorf("fetch artifact %s: %w", f.Path, err)
		}
	}
	return m, nil
}

// Remove deletes a stage's artifacts and manifest from a run.
func (c *Collector) Remove(ctx context.Context, runID, stage string) error {
	paths, err := c.store.List(ctx, runID)
	if err != nil {
		return err
	}
	prefix := stage + "/"
	for _, p := range paths {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if err := c.store.Delete(ctx, runID, p); err != nil {
			return fmt.Errorf("delete %s/%s: %w", runID, p, err)
		}
	}
	c.cache.Remove(cacheKey(runID, stage))
	return nil
}

// Prune removes every stage artifact set whose expiry has passed at now and
// returns the pruned manifests.
func (c *Collector) Prune(ctx context.Context, now time.Time) ([]*Manifest, error) {
	runs, err := c.store.Runs(ctx)
	if err != nil {
		return nil, err
	}
	var pruned []*Manifest
	for _, runID := range runs {
		manifests, err := c.Manifests(ctx, runID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return pruned, err
		}
		for _, m := range manifests {
			if !m.Expired(now) {
				continue
			}
			if err := c.Remove(ctx, runID, m.Stage); err != nil {
				return pruned, err
			}
			pruned = append(pruned, m)
		}
	}
	return pruned, nil
}
