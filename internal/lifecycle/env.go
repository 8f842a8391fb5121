package lifecycle

import (
	"piperun/internal/pipeline"
)

// JobEnv returns the environment a stage's commands run with: the
// predefined CI variables, overlaid by pipeline and stage variables.
func JobEnv(p *pipeline.Pipeline, stage *pipeline.Stage, runID, ref, workdir string) map[string]string {
	env := map[string]string{
		"CI":                 "true",
		"PIPERUN":            "true",
		"CI_COMMIT_REF_NAME": ref,
		"CI_PIPELINE_ID":     runID,
		"CI_JOB_NAME":        stage.Name,
		"CI_JOB_STAGE":       stage.Phase,
		"CI_PROJECT_DIR":     workdir,
	}
	if image := p.ImageFor(stage); image != "" {
		env["CI_JOB_IMAGE"] = image
	}
	for k, v := range p.VariablesFor(stage) {
		env[k] = v
	}
	return env
}
