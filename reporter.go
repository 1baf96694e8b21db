package stagerunner

import (
	"github.com/shopfront/stagerunner/metrics"
	"github.com/shopfront/stagerunner/types"
)

// MetricsReporter is responsible for reporting metrics from pipeline results.
type MetricsReporter interface {
	ReportResults(runID string, result *types.PipelineResult)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the pipeline results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(runID string, result *types.PipelineResult) {
	for _, stage := range result.Stages {
		metrics.RecordStage(runID, stage.ID, stage.Status, stage.Duration)
	}
	metrics.RecordPipeline(
		runID,
		string(result.Status),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Duration,
	)
}
