package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/stagerunner/types"
)

func TestNewFileLoggerValidation(t *testing.T) {
	_, err := NewFileLogger("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseDir cannot be empty")
}

func TestStageLogWritesPerStageFile(t *testing.T) {
	base := t.TempDir()
	l, err := NewFileLogger(base)
	require.NoError(t, err)

	w, err := l.StageLog("run1", types.StageUnit)
	require.NoError(t, err)
	_, err = w.Write([]byte("collected 42 items\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, l.Complete("run1"))

	content, err := os.ReadFile(filepath.Join(base, "testrun-run1", "unit.log"))
	require.NoError(t, err)
	assert.Equal(t, "collected 42 items\n", string(content))
}

func TestStageLogStripsANSI(t *testing.T) {
	base := t.TempDir()
	l, err := NewFileLogger(base)
	require.NoError(t, err)

	w, err := l.StageLog("run1", types.StageStatic)
	require.NoError(t, err)
	n, err := w.Write([]byte("\x1b[32mPASSED\x1b[0m flake8\n"))
	require.NoError(t, err)
	assert.Equal(t, len("\x1b[32mPASSED\x1b[0m flake8\n"), n, "reported length must match input")
	require.NoError(t, w.Close())
	require.NoError(t, l.Complete("run1"))

	content, err := os.ReadFile(filepath.Join(base, "testrun-run1", "static.log"))
	require.NoError(t, err)
	assert.Equal(t, "PASSED flake8\n", string(content))
}

func TestCombinedLogCollectsAllStages(t *testing.T) {
	base := t.TempDir()
	l, err := NewFileLogger(base)
	require.NoError(t, err)

	for _, stage := range []types.StageID{types.StageStatic, types.StageUnit} {
		w, err := l.StageLog("run1", stage)
		require.NoError(t, err)
		_, err = w.Write([]byte(stage.Slug() + " output\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	require.NoError(t, l.Complete("run1"))

	content, err := os.ReadFile(filepath.Join(base, "testrun-run1", "all.log"))
	require.NoError(t, err)
	out := string(content)
	assert.Contains(t, out, "=== Static Checks ===")
	assert.Contains(t, out, "static output")
	assert.Contains(t, out, "=== Unit Tests ===")
	assert.Contains(t, out, "unit output")
}

func TestCompleteWithoutStagesIsANoOp(t *testing.T) {
	l, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, l.Complete("never-started"))
}

func TestRunsAreIsolated(t *testing.T) {
	base := t.TempDir()
	l, err := NewFileLogger(base)
	require.NoError(t, err)

	for _, runID := range []string{"run1", "run2"} {
		w, err := l.StageLog(runID, types.StageValidation)
		require.NoError(t, err)
		_, err = w.Write([]byte(runID + "\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		require.NoError(t, l.Complete(runID))
	}

	for _, runID := range []string{"run1", "run2"} {
		content, err := os.ReadFile(filepath.Join(base, "testrun-"+runID, "validation.log"))
		require.NoError(t, err)
		assert.Equal(t, runID+"\n", string(content))
	}
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c_d_e", safeFilename("a/b\\c:d e"))
}
