package status

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusSkipped, StatusCanceled} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Status("done").IsValid())
	assert.False(t, StatusRunning.IsFinal())
	assert.True(t, StatusSkipped.IsFinal())
}

func TestWriterReader_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	rec := &RunRecord{
		RunID:      "run-1",
		Ref:        "feature/x",
		Status:     StatusFailed,
		ExitCode:   1,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Failure:    &Failure{Stage: "test", Command: "pytest", ExitCode: 1, Message: "exit status 1"},
		Stages: []StageRecord{
			{Name: "build", Phase: "build", Status: StatusSuccess, Duration: 30 * time.Second, Artifacts: []string{"dist/a.tar.gz"}},
			{Name: "test", Phase: "test", Status: StatusFailed, Duration: time.Minute},
			{Name: "deploy", Phase: "deploy", Status: StatusSkipped, Reason: "pipeline failed"},
		},
	}
	require.NoError(t, NewWriter(dir).Save(rec))
	assert.NoFileExists(t, filepath.Join(RunDir(dir, "run-1"), FileName+".tmp"))

	got, err := NewReader(dir).Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Failure, got.Failure)
	assert.Equal(t, rec.Stages, got.Stages)
	assert.Equal(t, 90*time.Second, got.Duration())
}

func TestWriter_RejectsInvalid(t *testing.T) {
	w := NewWriter(t.TempDir())
	assert.Error(t, w.Save(&RunRecord{RunID: "x", Status: "bogus"}))
	assert.Error(t, w.Save(&RunRecord{Status: StatusSuccess}))
}

func TestReader_ListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, w.Save(&RunRecord{RunID: id, Status: StatusSuccess, StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	// A stray directory without a record is ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, RunsDir, "junk"), 0755))

	r := NewReader(dir)
	records, err := r.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].RunID)
	assert.Equal(t, "a", records[2].RunID)

	latest, err := r.Latest()
	require.NoError(t, err)
	assert.Equal(t, "c", latest.RunID)
}

func TestReader_Missing(t *testing.T) {
	r := NewReader(t.TempDir())

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	records, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = r.Latest()
	assert.ErrorIs(t, err, ErrRunNotFound)
}
