package report

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/stagerunner/types"
)

func sampleResult() *types.PipelineResult {
	result := &types.PipelineResult{
		RunID: "20260831-abcd",
		Stats: types.PipelineStats{StartTime: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)},
	}
	result.AddStage(&types.StageResult{ID: types.StageStatic, Name: "Static Checks", Status: types.StageStatusPass, Duration: 12 * time.Second})
	result.AddStage(&types.StageResult{ID: types.StageUnit, Name: "Unit Tests", Status: types.StageStatusFail,
		Error: errors.New("pytest exited with code 1"), Duration: 48 * time.Second})
	result.AddStage(&types.StageResult{ID: types.StageIntegration, Name: "Integration Tests", Status: types.StageStatusSkip})
	result.Finalize()
	return result
}

func sampleArtifacts(t *testing.T) (string, []types.ArtifactStatus) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unit-test-results.xml"), []byte("<testsuite/>"), 0644))

	specs := []types.ArtifactSpec{
		{Name: "unit results", Path: "unit-test-results.xml", Kind: types.ArtifactXML},
		{Name: "coverage", Path: "coverage.xml", Kind: types.ArtifactXML},
	}
	return dir, ScanArtifacts(dir, specs)
}

func TestScanArtifacts(t *testing.T) {
	_, statuses := sampleArtifacts(t)
	require.Len(t, statuses, 2)

	assert.True(t, statuses[0].Present)
	assert.Equal(t, int64(len("<testsuite/>")), statuses[0].Size)
	assert.Equal(t, "produced", statuses[0].StateText())

	assert.False(t, statuses[1].Present)
	assert.Equal(t, "pending", statuses[1].StateText())
}

func TestScanArtifactsIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "htmlcov"), 0755))
	statuses := ScanArtifacts(dir, []types.ArtifactSpec{{Name: "cov", Path: "htmlcov"}})
	assert.False(t, statuses[0].Present)
}

func TestTextSummarySink(t *testing.T) {
	reportsDir, artifacts := sampleArtifacts(t)
	data := Build(sampleResult(), artifacts)

	sink := NewTextSummarySink(reportsDir)
	require.NoError(t, sink.Generate(data))

	content, err := os.ReadFile(filepath.Join(reportsDir, "summary.log"))
	require.NoError(t, err)
	out := string(content)
	assert.Contains(t, out, "Pipeline run 20260831-abcd")
	assert.Contains(t, out, "Unit Tests")
	assert.Contains(t, out, "pytest exited with code 1")
	assert.Contains(t, out, "coverage.xml")
	assert.Contains(t, out, "pending")
}

func TestMarkdownSink(t *testing.T) {
	reportsDir, artifacts := sampleArtifacts(t)
	data := Build(sampleResult(), artifacts)

	sink := NewMarkdownSink(reportsDir)
	require.NoError(t, sink.Generate(data))

	content, err := os.ReadFile(filepath.Join(reportsDir, "summary.md"))
	require.NoError(t, err)
	out := string(content)
	assert.Contains(t, out, "# Test Pipeline Summary")
	assert.Contains(t, out, "| 2 | Unit Tests | ❌ fail |")
	assert.Contains(t, out, "`coverage.xml` | pending")
}

func TestHTMLSink(t *testing.T) {
	reportsDir, artifacts := sampleArtifacts(t)
	data := Build(sampleResult(), artifacts)

	sink := NewHTMLSink(reportsDir)
	require.NoError(t, sink.Generate(data))

	content, err := os.ReadFile(filepath.Join(reportsDir, "summary.html"))
	require.NoError(t, err)
	out := string(content)
	assert.Contains(t, out, "<title>Test Pipeline Summary — 20260831-abcd</title>")
	assert.Contains(t, out, "Unit Tests")
	assert.Contains(t, out, `class="fail"`)
}

type failingSink struct{ calls int }

func (f *failingSink) Generate(*ReportData) error {
	f.calls++
	return errors.New("disk full")
}

func TestAggregatorSwallowsSinkErrors(t *testing.T) {
	reportsDir, artifacts := sampleArtifacts(t)
	data := Build(sampleResult(), artifacts)

	bad := &failingSink{}
	agg := NewAggregator(slog.Default(), bad, NewTextSummarySink(reportsDir))
	assert.NoError(t, agg.Generate(data), "aggregator must never fail the run")
	assert.Equal(t, 1, bad.calls)

	// The healthy sink still ran.
	_, err := os.Stat(filepath.Join(reportsDir, "summary.log"))
	assert.NoError(t, err)
}

func TestTableFormatter(t *testing.T) {
	data := Build(sampleResult(), nil)
	out := NewTableFormatter("Shopfront Test Pipeline").Format(data)
	assert.Contains(t, out, "Shopfront Test Pipeline")
	assert.Contains(t, out, "Static Checks")
	assert.Contains(t, out, "fail")
	// Footer text may be case-transformed by the table style.
	assert.Contains(t, strings.ToLower(out), "1 passed, 1 failed, 1 skipped")
}
