// Package pages publishes the deploy stage's static site and serves it for
// preview.
//
// When the pages stage succeeds, [Publisher] copies the stage's public
// directory from the workspace into the site directory. The swap is done
// through a temporary sibling directory so readers never see a half-written
// site. [Server] serves the published site over HTTP.
package pages

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Defaults for the pages configuration.
const (
	DefaultStage     = "deploy"
	DefaultSourceDir = "public"
)

// ErrNoSource is returned by [Publisher.Publish] when the stage left no
// source directory in the workspace.
var ErrNoSource = errors.New("pages: nothing to publish")

// Publisher copies a stage's public directory to the site directory.
type Publisher struct {
	// Stage is the stage whose success triggers publishing.
	Stage string

	// SourceDir is the workspace-relative directory to publish.
	SourceDir string

	// SiteDir is where the published site lives.
	SiteDir string
}

// NewPublisher creates a Publisher with defaults for empty fields.
func NewPublisher(stage, sourceDir, siteDir string) *Publisher {
	if stage == "" {
		stage = DefaultStage
	}
	if sourceDir == "" {
		sourceDir = DefaultSourceDir
	}
	return &Publisher{Stage: stage, SourceDir: sourceDir, SiteDir: siteDir}
}

// Publish replaces the site with <workdir>/<SourceDir> and returns the
// number of files published.
func (p *Publisher) Publish(workdir string) (int, error) {
	src := filepath.Join(workdir, p.SourceDir)
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s does not exist", ErrNoSource, p.SourceDir)
	}
	if err != nil {
		return 0, fmt.Errorf("pages: %s: %w", p.SourceDir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("pages: %s is not a directory", p.SourceDir)
	}

	site := filepath.Clean(p.SiteDir)
	if err := os.MkdirAll(filepath.Dir(site), 0755); err != nil {
		return 0, fmt.Errorf("pages: %w", err)
	}

	tmp := site + ".tmp"
	old := site + ".old"
	os.RemoveAll(tmp)
	os.RemoveAll(old)

	count, err := copyTree(src, tmp)
	if err != nil {
		os.RemoveAll(tmp)
		return 0, fmt.Errorf("pages: copy site: %w", err)
	}

	if _, err := os.Stat(site); err == nil {
		if err := os.Rename(site, old); err != nil {
			os.RemoveAll(tmp)
			return 0, fmt.Errorf("pages: replace site: %w", err)
		}
	}
	if err := os.Rename(tmp, site); err != nil {
		// Put the previous site back.
		os.Rename(old, site)
		os.RemoveAll(tmp)
		return 0, fmt.Errorf("pages: replace site: %w", err)
	}
	os.RemoveAll(old)
	return count, nil
}

func copyTree(src, dst string) (int, error) {
	count := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0755)
		case d.Type().IsRegular():
			if err := copyFile(path, target); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
