// Package pipeline defines the declarative stage table that piperun executes.
//
// A pipeline file is a YAML document in the GitLab CI dialect. Reserved
// top-level keys configure the pipeline itself; every other key declares a
// stage:
//
//	image: python:3
//	stages: [build, test, deploy]
//
//	build:
//	  script:
//	    - python setup.py sdist
//	  artifacts:
//	    paths: [dist/]
//	    expire_in: 1 week
//
// Key types:
//   - [Pipeline] is the parsed, ordered stage table
//   - [Stage] is a single named phase with its commands and declarations
//   - [Artifacts] describes the files a stage hands to later stages
//   - [ConfigError] collects every problem found while loading a pipeline
//
// Stages execute in declaration order grouped by the declared `stages`
// ordering. [Parse] and [Load] return pipelines that already passed
// [Validate].
package pipeline

import "time"

// DefaultPhases is the phase ordering used when a pipeline omits `stages`.
var DefaultPhases = []string{"build", "test", "deploy"}

// DefaultExpireIn is the artifact lifetime applied when a stage declares
// artifacts without `expire_in`.
const DefaultExpireIn = 30 * 24 * time.Hour

// Pipeline is an ordered sequence of stages plus pipeline-wide defaults.
type Pipeline struct {
	// Image is the default execution image for every stage.
	Image string

	// Phases is the declared `stages` ordering. Stages are grouped by the
	// position of their Phase in this list.
	Phases []string

	// Variables are exported to every command. Stage variables take
	// precedence.
	Variables map[string]string

	// BeforeScript runs before the script of any stage that does not
	// declare its own before_script.
	BeforeScript []string

	// Stages holds the stages in execution order.
	Stages []*Stage
}

// Stage is a named phase of the pipeline.
type Stage struct {
	// Name is the key the stage was declared under. Unique per pipeline.
	Name string

	// Phase is the entry of [Pipeline.Phases] the stage belongs to.
	// Defaults to Name.
	Phase string

	// Image overrides [Pipeline.Image] for this stage.
	Image string

	BeforeScript []string
	Script       []string

	// Artifacts is nil when the stage declares none.
	Artifacts *Artifacts

	// Dependencies names the stages whose artifacts are fetched before this
	// stage runs. nil means undeclared; an empty slice means fetch nothing.
	Dependencies []string

	// Only restricts the stage to matching refs. Entries are literal ref
	// names or /regex/ patterns. Empty means every ref.
	Only []string

	Variables map[string]string

	// Timeout bounds each command of the stage. Zero means the executor
	// default.
	Timeout time.Duration
}

// Artifacts is a stage's artifact declaration.
type Artifacts struct {
	// Paths are glob patterns relative to the workspace.
	Paths []string

	// ExpireIn is the artifact lifetime. Zero means never expire.
	ExpireIn time.Duration
}

// Stage returns the stage with the given name, or nil.
func (p *Pipeline) Stage(name string) *Stage {
	for _, s := range p.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name
	}
	return names
}

// ImageFor returns the execution image a stage runs in.
func (p *Pipeline) ImageFor(s *Stage) string {
	if s.Image != "" {
		return s.Image
	}
	return p.Image
}

// CommandsFor returns the before_script and script commands of a stage, in
// execution order, applying the pipeline-level before_script fallback.
func (p *Pipeline) CommandsFor(s *Stage) []string {
	before := s.BeforeScript
	if before == nil {
		before = p.BeforeScript
	}
	cmds := make([]string, 0, len(before)+len(s.Script))
	cmds = append(cmds, before...)
	cmds = append(cmds, s.Script...)
	return cmds
}

// VariablesFor merges pipeline and stage variables.
func (p *Pipeline) VariablesFor(s *Stage) map[string]string {
	vars := make(map[string]string, len(p.Variables)+len(s.Variables))
	for k, v := range p.Variables {
		vars[k] = v
	}
	for k, v := range s.Variables {
		vars[k] = v
	}
	return vars
}
