package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ConfigError reports a malformed pipeline. A pipeline with a ConfigError is
// rejected before any stage runs.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid pipeline: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid pipeline (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks the stage graph: phases exist, scripts are present,
// dependencies name stages that run earlier, ref filters compile and
// artifact paths stay inside the workspace. Every problem is collected into
// a single *[ConfigError].
func Validate(p *Pipeline) error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if p == nil || len(p.Stages) == 0 {
		return &ConfigError{Problems: []string{"pipeline declares no stages"}}
	}

	phases := make(map[string]bool, len(p.Phases))
	for _, name := range p.Phases {
		if phases[name] {
			addf("phase %q declared twice in stages", name)
		}
		phases[name] = true
	}

	position := make(map[string]int, len(p.Stages))
	for i, s := range p.Stages {
		if s.Name == "" {
			addf("stage at position %d has no name", i+1)
			continue
		}
		if strings.ContainsAny(s.Name, `/\`) {
			addf("stage %q: name must not contain path separators", s.Name)
		}
		if _, dup := position[s.Name]; dup {
			addf("stage %q declared twice", s.Name)
			continue
		}
		position[s.Name] = i
	}

	for i, s := range p.Stages {
		if !phases[s.Phase] {
			addf("stage %q: unknown stage %q (declared stages: %s)", s.Name, s.Phase, strings.Join(p.Phases, ", "))
		}
		if len(s.Script) == 0 {
			addf("stage %q: script is required", s.Name)
		}
		for _, cmd := range p.CommandsFor(s) {
			if strings.TrimSpace(cmd) == "" {
				addf("stage %q: empty command", s.Name)
				break
			}
		}

		for _, dep := range s.Dependencies {
			depPos, ok := position[dep]
			switch {
			case !ok:
				addf("stage %q: unknown dependency %q", s.Name, dep)
			case dep == s.Name:
				addf("stage %q: depends on itself", s.Name)
			case depPos > i:
				addf("stage %q: dependency %q runs later; dependencies must form an acyclic chain of earlier stages", s.Name, dep)
			}
		}

		for _, entry := range s.Only {
			if entry == "" {
				addf("stage %q: empty ref in only", s.Name)
				continue
			}
			if isPattern(entry) {
				if _, err := compilePattern(entry); err != nil {
					addf("stage %q: %v", s.Name, err)
				}
			}
		}

		if s.Artifacts != nil {
			if len(s.Artifacts.Paths) == 0 {
				addf("stage %q: artifacts declare no paths", s.Name)
			}
			for _, path := range s.Artifacts.Paths {
				if err := checkArtifactPath(path); err != nil {
					addf("stage %q: artifact path %q: %v", s.Name, path, err)
				}
			}
			if s.Artifacts.ExpireIn < 0 {
				addf("stage %q: negative expire_in", s.Name)
			}
		}

		if s.Timeout < 0 {
			addf("stage %q: negative timeout", s.Name)
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

func checkArtifactPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("must be relative to the workspace")
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("escapes the workspace")
	}
	return nil
}
