package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piperun/internal/pipeline"
)

func defaultPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Parse(pipeline.Default())
	require.NoError(t, err)
	return p
}

func skipped(plan []PlannedStage) map[string]bool {
	out := make(map[string]bool, len(plan))
	for _, e := range plan {
		out[e.Stage.Name] = e.Skip
	}
	return out
}

func TestPlan_RefFilter(t *testing.T) {
	tests := []struct {
		ref        string
		deploySkip bool
	}{
		{ref: "master", deploySkip: false},
		{ref: "py3", deploySkip: false},
		{ref: "feature/x", deploySkip: true},
		{ref: "v1.0", deploySkip: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			plan, err := Plan(defaultPipeline(t), tt.ref)
			require.NoError(t, err)
			require.Len(t, plan, 3)

			assert.Equal(t, "build", plan[0].Stage.Name)
			assert.Equal(t, "test", plan[1].Stage.Name)
			assert.Equal(t, "deploy", plan[2].Stage.Name)
			assert.Equal(t, map[string]bool{"build": false, "test": false, "deploy": tt.deploySkip}, skipped(plan))
			if tt.deploySkip {
				assert.Contains(t, plan[2].Reason, tt.ref)
			}
		})
	}
}

func TestRouter_Select(t *testing.T) {
	r := NewRouter("master")
	r.Select("build", "deploy")

	plan, err := r.Plan(defaultPipeline(t))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"build": false, "test": true, "deploy": false}, skipped(plan))
	assert.Equal(t, ReasonNotSelected, plan[1].Reason)

	r.Select()
	plan, err = r.Plan(defaultPipeline(t))
	require.NoError(t, err)
	assert.False(t, plan[1].Skip)
}

func TestRouter_SelectUnknown(t *testing.T) {
	r := NewRouter("master")
	r.Select("lint")

	_, err := r.Plan(defaultPipeline(t))
	var cfgErr *pipeline.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestResolveRef(t *testing.T) {
	ref, err := ResolveRef(context.Background(), " py3 ", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "py3", ref)

	t.Setenv("CI_COMMIT_REF_NAME", "feature/x")
	ref, err = ResolveRef(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "feature/x", ref)
}

func TestResolveRef_NoGit(t *testing.T) {
	t.Setenv("CI_COMMIT_REF_NAME", "")
	t.Setenv("GIT_DIR", t.TempDir())

	_, err := ResolveRef(context.Background(), "", t.TempDir())
	assert.ErrorIs(t, err, ErrNoRef)
}
