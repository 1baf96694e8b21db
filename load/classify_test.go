package load

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/stagerunner/types"
)

func writeStats(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "locust-stats.csv"), []byte(content), 0644))
}

func TestParseStatsAggregatedRow(t *testing.T) {
	dir := t.TempDir()
	writeStats(t, dir, statsFixture)

	m, err := parseStats(filepath.Join(dir, "locust-stats.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1000, m.Requests)
	assert.Equal(t, 3, m.Failures)
	assert.InDelta(t, 126.4, m.AvgResponseMs, 0.01)
	assert.InDelta(t, 250, m.P95ResponseMs, 0.01)
	assert.InDelta(t, 61.3, m.RequestsPerS, 0.01)
}

func TestParseStatsMissingFile(t *testing.T) {
	_, err := parseStats(filepath.Join(t.TempDir(), "locust-stats.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open locust stats")
}

func TestParseStatsMissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeStats(t, dir, "Type,Name\n,Aggregated\n")
	_, err := parseStats(filepath.Join(dir, "locust-stats.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestParseStatsNoAggregatedRow(t *testing.T) {
	dir := t.TempDir()
	writeStats(t, dir, `Type,Name,Request Count,Failure Count,Average Response Time,Requests/s,95%
GET,/products/,10,0,100,5,200
`)
	_, err := parseStats(filepath.Join(dir, "locust-stats.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Aggregated row")
}

func TestClassifySkipsZeroTargets(t *testing.T) {
	d := newTestLoadDriver(t, &locustStubExecutor{}, types.LoadTargets{AvgResponseMs: 200})
	writeStats(t, d.cfg.ReportsDir, statsFixture)

	result, err := d.Classify(Profiles["baseline"])
	require.NoError(t, err)
	require.Len(t, result.Checks, 1)
	assert.Equal(t, "avg response (ms)", result.Checks[0].Name)
	assert.True(t, result.Passed)
}

func TestClassifyBoundaryIsInclusive(t *testing.T) {
	// Exactly-on-target measurements pass.
	d := newTestLoadDriver(t, &locustStubExecutor{}, types.LoadTargets{AvgResponseMs: 126.4})
	writeStats(t, d.cfg.ReportsDir, statsFixture)

	result, err := d.Classify(Profiles["baseline"])
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestFailureRatioZeroRequests(t *testing.T) {
	assert.Zero(t, Metrics{}.FailureRatio())
}

func TestResultString(t *testing.T) {
	d := newTestLoadDriver(t, &locustStubExecutor{}, types.LoadTargets{AvgResponseMs: 100})
	writeStats(t, d.cfg.ReportsDir, statsFixture)

	result, err := d.Classify(Profiles["baseline"])
	require.NoError(t, err)
	out := result.String()
	assert.Contains(t, out, "avg response (ms)")
	assert.Contains(t, out, "FAIL")
}
