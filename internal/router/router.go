// Package router decides which stages of a pipeline run for a ref.
//
// The router turns a validated [pipeline.Pipeline] into an ordered plan of
// [PlannedStage] values. A stage is skipped when its `only` filter does not
// match the ref, or when the caller selected a subset of stages and the
// stage is not part of it. Skipped stages count as success.
//
// The same plan drives both `piperun run` and the dry-run `piperun plan`.
package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"piperun/internal/pipeline"
)

// ErrNoRef is returned when no ref can be determined.
var ErrNoRef = errors.New("cannot determine the current ref; pass --ref")

// Skip reasons.
const (
	ReasonRefFilter   = "ref %q not in only filter [%s]"
	ReasonNotSelected = "not selected"
)

// PlannedStage is a single entry in the execution plan.
type PlannedStage struct {
	Stage *pipeline.Stage

	// Skip is true when the stage will not run.
	Skip bool

	// Reason explains a skip.
	Reason string
}

// Router plans stage execution for one ref.
type Router struct {
	ref      string
	selected map[string]bool
}

// NewRouter creates a [Router] for ref.
func NewRouter(ref string) *Router {
	return &Router{ref: ref}
}

// Ref returns the ref the router plans for.
func (r *Router) Ref() string {
	return r.ref
}

// Select restricts the plan to the named stages. Calling it with no names
// clears the selection.
func (r *Router) Select(names ...string) {
	if len(names) == 0 {
		r.selected = nil
		return
	}
	r.selected = make(map[string]bool, len(names))
	for _, n := range names {
		r.selected[n] = true
	}
}

// Plan returns one entry per stage of p in execution order.
func (r *Router) Plan(p *pipeline.Pipeline) ([]PlannedStage, error) {
	for name := range r.selected {
		if p.Stage(name) == nil {
			return nil, &pipeline.ConfigError{Problems: []string{fmt.Sprintf("selected stage %q does not exist", name)}}
		}
	}

	plan := make([]PlannedStage, 0, len(p.Stages))
	for _, s := range p.Stages {
		entry := PlannedStage{Stage: s}

		if r.selected != nil && !r.selected[s.Name] {
			entry.Skip = true
			entry.Reason = ReasonNotSelected
			plan = append(plan, entry)
			continue
		}

		runs, err := s.RunsOn(r.ref)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}
		if !runs {
			entry.Skip = true
			entry.Reason = fmt.Sprintf(ReasonRefFilter, r.ref, strings.Join(s.Only, ", "))
		}
		plan = append(plan, entry)
	}
	return plan, nil
}

// Plan is a convenience for NewRouter(ref).Plan(p).
func Plan(p *pipeline.Pipeline, ref string) ([]PlannedStage, error) {
	return NewRouter(ref).Plan(p)
}

// ResolveRef determines the ref a pipeline runs for.
//
// Resolution order:
//  1. explicit (from --ref or configuration)
//  2. CI_COMMIT_REF_NAME environment variable
//  3. `git rev-parse --abbrev-ref HEAD` in workdir
func ResolveRef(ctx context.Context, explicit, workdir string) (string, error) {
	if ref := strings.TrimSpace(explicit); ref != "" {
		return ref, nil
	}
	if ref := strings.TrimSpace(os.Getenv("CI_COMMIT_REF_NAME")); ref != "" {
		return ref, nil
	}

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = workdir
	out, err := cmd.Output()
	if err != nil {
		return "", ErrNoRef
	}
	ref := strings.TrimSpace(string(out))
	if ref == "" || ref == "HEAD" {
		// Detached HEAD has no branch name.
		return "", ErrNoRef
	}
	return ref, nil
}
