// Package report aggregates the outcome of a pipeline run into the
// published summary artifacts and the console table.
//
// The aggregator is strictly read-only and best-effort: it stats expected
// artifacts, renders summaries, and records missing files as pending. It
// never fails the run; a pipeline verdict is owned by the runner alone.
package report

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopfront/stagerunner/types"
)

// ReportData is the structured input every sink renders from.
type ReportData struct {
	RunID     string
	Timestamp time.Time
	Duration  time.Duration
	Status    types.StageStatus
	Stats     types.PipelineStats
	Stages    []*types.StageResult
	Artifacts []types.ArtifactStatus
}

// Build assembles report data from a pipeline result and the artifact scan.
func Build(result *types.PipelineResult, artifacts []types.ArtifactStatus) *ReportData {
	return &ReportData{
		RunID:     result.RunID,
		Timestamp: result.Stats.StartTime,
		Duration:  result.Duration,
		Status:    result.Status,
		Stats:     result.Stats,
		Stages:    result.Stages,
		Artifacts: artifacts,
	}
}

// Sink renders report data into one output format.
type Sink interface {
	Generate(data *ReportData) error
}

// Aggregator fans report data out to its sinks. Sink errors are logged
// and swallowed so that a reporting problem can never mask the pipeline
// verdict.
type Aggregator struct {
	log   *slog.Logger
	sinks []Sink
}

// NewAggregator creates an aggregator over the given sinks.
func NewAggregator(log *slog.Logger, sinks ...Sink) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{log: log, sinks: sinks}
}

// Generate renders all sinks. It always returns nil.
func (a *Aggregator) Generate(data *ReportData) error {
	for _, sink := range a.sinks {
		if err := sink.Generate(data); err != nil {
			a.log.Warn("Report sink failed", "error", err)
		}
	}
	return nil
}

// ScanArtifacts checks the expected artifacts under reportsDir. Absent
// files are reported as pending, never as an error.
func ScanArtifacts(reportsDir string, specs []types.ArtifactSpec) []types.ArtifactStatus {
	statuses := make([]types.ArtifactStatus, 0, len(specs))
	for _, spec := range specs {
		status := types.ArtifactStatus{Spec: spec}
		if info, err := os.Stat(filepath.Join(reportsDir, spec.Path)); err == nil && !info.IsDir() {
			status.Present = true
			status.Size = info.Size()
		}
		statuses = append(statuses, status)
	}
	return statuses
}
