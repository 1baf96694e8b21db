package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shopfront/stagerunner/types"
)

const (
	MetricsNamespace = "stagerunner"
)

var (
	validResults         = []types.StageStatus{types.StageStatusPass, types.StageStatusFail, types.StageStatusSkip}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	stageResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stage_results_total",
		Help:      "Count of stage results",
	}, []string{
		"run_id",
		"stage",
		"result",
	})

	stageDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
	}, []string{
		"run_id",
		"stage",
	})

	pipelineResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "pipeline_results",
		Help:      "Result of pipeline runs",
	}, []string{
		"run_id",
		"result",
	})

	pipelineStagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "pipeline_stages_total",
		Help:      "Total number of stages per run",
	}, []string{
		"run_id",
	})

	pipelineStagesPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "pipeline_stages_passed",
		Help:      "Number of passed stages per run",
	}, []string{
		"run_id",
	})

	pipelineStagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "pipeline_stages_failed",
		Help:      "Number of failed stages per run",
	}, []string{
		"run_id",
	})

	pipelineDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "pipeline_duration_seconds",
		Help:      "Duration of pipeline runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordStage records the outcome and duration of one pipeline stage.
func RecordStage(runID string, stage types.StageID, result types.StageStatus, duration time.Duration) {
	if !isValidResult(result) {
		return
	}
	stageResultsTotal.WithLabelValues(runID, stage.Slug(), string(result)).Inc()
	stageDuration.WithLabelValues(runID, stage.Slug()).Set(duration.Seconds())
}

// RecordPipeline records the aggregate outcome of a full run.
func RecordPipeline(runID string, result string, total int, passed int, failed int, duration time.Duration) {
	pipelineResults.WithLabelValues(runID, result).Set(1)
	pipelineStagesTotal.WithLabelValues(runID).Add(float64(total))
	pipelineStagesPassed.WithLabelValues(runID).Add(float64(passed))
	pipelineStagesFailed.WithLabelValues(runID).Add(float64(failed))
	pipelineDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.StageStatus) bool {
	return slices.Contains(validResults, result)
}
