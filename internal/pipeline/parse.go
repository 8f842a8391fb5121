package pipeline

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// reservedKeys are top-level keys that configure the pipeline rather than
// declare a stage.
var reservedKeys = map[string]bool{
	"image":         true,
	"stages":        true,
	"variables":     true,
	"before_script": true,
	"default":       true,
}

// stringList decodes either a single scalar or a sequence of scalars.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = stringList{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a string", item.Line)
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

type rawArtifacts struct {
	Paths    stringList `yaml:"paths"`
	ExpireIn string     `yaml:"expire_in"`
}

type rawStage struct {
	Stage        string            `yaml:"stage"`
	Image        string            `yaml:"image"`
	BeforeScript *stringList       `yaml:"before_script"`
	Script       stringList        `yaml:"script"`
	Artifacts    *rawArtifacts     `yaml:"artifacts"`
	Dependencies *[]string         `yaml:"dependencies"`
	Only         stringList        `yaml:"only"`
	Variables    map[string]string `yaml:"variables"`
	Timeout      string            `yaml:"timeout"`
}

type rawDefault struct {
	Image        string      `yaml:"image"`
	BeforeScript *stringList `yaml:"before_script"`
}

// Load reads and parses the pipeline file at path.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return Parse(data)
}

// Parse parses pipeline YAML, checks it against the pipeline schema, and
// validates the resulting stage graph. Any problem is reported as a
// *[ConfigError].
func Parse(data []byte) (*Pipeline, error) {
	problems, err := CheckSchema(data)
	if err != nil {
		return nil, &ConfigError{Problems: []string{err.Error()}}
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("parse pipeline: %v", err)}}
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ConfigError{Problems: []string{"pipeline file must be a mapping"}}
	}

	p, problems := decode(doc.Content[0])
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// decode walks the root mapping in document order so stage declaration order
// survives into the execution order.
func decode(root *yaml.Node) (*Pipeline, []string) {
	p := &Pipeline{}
	var problems []string

	type declared struct {
		stage *Stage
		pos   int
	}
	var stages []declared

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]

		if reservedKeys[key] {
			if err := decodeReserved(p, key, value); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			}
			continue
		}
		if strings.HasPrefix(key, ".") {
			continue
		}

		var raw rawStage
		if err := value.Decode(&raw); err != nil {
			problems = append(problems, fmt.Sprintf("stage %q: %v", key, err))
			continue
		}
		s, errs := buildStage(key, raw)
		problems = append(problems, errs...)
		stages = append(stages, declared{stage: s, pos: len(stages)})
	}

	if p.Phases == nil {
		p.Phases = append([]string(nil), DefaultPhases...)
	}

	phaseIndex := make(map[string]int, len(p.Phases))
	for i, name := range p.Phases {
		phaseIndex[name] = i
	}
	rank := func(s *Stage) int {
		if idx, ok := phaseIndex[s.Phase]; ok {
			return idx
		}
		return len(p.Phases)
	}
	sort.SliceStable(stages, func(i, j int) bool {
		return rank(stages[i].stage) < rank(stages[j].stage)
	})

	p.Stages = make([]*Stage, len(stages))
	for i, d := range stages {
		p.Stages[i] = d.stage
	}
	return p, problems
}

func decodeReserved(p *Pipeline, key string, value *yaml.Node) error {
	switch key {
	case "image":
		return value.Decode(&p.Image)
	case "stages":
		var phases []string
		if err := value.Decode(&phases); err != nil {
			return err
		}
		p.Phases = phases
	case "variables":
		return value.Decode(&p.Variables)
	case "before_script":
		var l stringList
		if err := value.Decode(&l); err != nil {
			return err
		}
		p.BeforeScript = l
	case "default":
		var d rawDefault
		if err := value.Decode(&d); err != nil {
			return err
		}
		// Top-level keys win over `default:` regardless of document order.
		if p.Image == "" {
			p.Image = d.Image
		}
		if p.BeforeScript == nil && d.BeforeScript != nil {
			p.BeforeScript = *d.BeforeScript
		}
	}
	return nil
}

func buildStage(name string, raw rawStage) (*Stage, []string) {
	var problems []string

	s := &Stage{
		Name:      name,
		Phase:     raw.Stage,
		Image:     raw.Image,
		Script:    raw.Script,
		Only:      raw.Only,
		Variables: raw.Variables,
	}
	if s.Phase == "" {
		s.Phase = name
	}
	if raw.BeforeScript != nil {
		s.BeforeScript = append([]string{}, (*raw.BeforeScript)...)
	}
	if raw.Dependencies != nil {
		s.Dependencies = append([]string{}, (*raw.Dependencies)...)
	}
	if raw.Timeout != "" {
		d, err := ParseDuration(raw.Timeout)
		if err != nil {
			problems = append(problems, fmt.Sprintf("stage %q: timeout: %v", name, err))
		}
		s.Timeout = d
	}
	if raw.Artifacts != nil {
		a := &Artifacts{Paths: raw.Artifacts.Paths, ExpireIn: DefaultExpireIn}
		if raw.Artifacts.ExpireIn != "" {
			d, err := ParseExpireIn(raw.Artifacts.ExpireIn)
			if err != nil {
				problems = append(problems, fmt.Sprintf("stage %q: expire_in: %v", name, err))
			}
			a.ExpireIn = d
		}
		s.Artifacts = a
	}
	return s, problems
}

// ParseExpireIn parses an artifact lifetime. "never" yields zero.
func ParseExpireIn(s string) (time.Duration, error) {
	if strings.EqualFold(strings.TrimSpace(s), "never") {
		return 0, nil
	}
	return ParseDuration(s)
}
