package types

import (
	"fmt"
	"time"
)

// StageStatus represents the possible outcomes of a pipeline stage.
type StageStatus string

const (
	StageStatusPass StageStatus = "pass"
	StageStatusFail StageStatus = "fail"
	StageStatusSkip StageStatus = "skip"
)

// StageID identifies one of the five pipeline layers.
type StageID int

const (
	StageStatic      StageID = 1
	StageUnit        StageID = 2
	StageIntegration StageID = 3
	StageE2E         StageID = 4
	StageValidation  StageID = 5
)

// AllStageIDs lists the stages in their fixed execution order.
var AllStageIDs = []StageID{StageStatic, StageUnit, StageIntegration, StageE2E, StageValidation}

var stageSlugs = map[StageID]string{
	StageStatic:      "static",
	StageUnit:        "unit",
	StageIntegration: "integration",
	StageE2E:         "e2e",
	StageValidation:  "validation",
}

var stageNames = map[StageID]string{
	StageStatic:      "Static Checks",
	StageUnit:        "Unit Tests",
	StageIntegration: "Integration Tests",
	StageE2E:         "End-to-End Tests",
	StageValidation:  "Pipeline Validation",
}

// ParseStageID converts a layer selector into a StageID.
// Selectors outside 1-5 are rejected.
func ParseStageID(layer int) (StageID, error) {
	id := StageID(layer)
	if !id.IsValid() {
		return 0, fmt.Errorf("invalid layer %d: must be between 1 and 5", layer)
	}
	return id, nil
}

// IsValid reports whether the stage ID is one of the five known layers.
func (id StageID) IsValid() bool {
	_, ok := stageSlugs[id]
	return ok
}

// Slug returns the short machine-friendly name for the stage.
func (id StageID) Slug() string {
	if s, ok := stageSlugs[id]; ok {
		return s
	}
	return fmt.Sprintf("stage-%d", int(id))
}

// Name returns the human-readable name for the stage.
func (id StageID) Name() string {
	if n, ok := stageNames[id]; ok {
		return n
	}
	return fmt.Sprintf("Stage %d", int(id))
}

// StageResult captures the outcome of a single pipeline stage.
type StageResult struct {
	ID       StageID
	Name     string
	Status   StageStatus
	Error    error
	Duration time.Duration
	TimedOut bool

	// Stdout holds a snippet of the captured tool output for failing stages.
	Stdout string

	// Artifacts lists the artifact files this stage produced, relative to
	// the reports directory.
	Artifacts []string
}

// Failed reports whether the stage ended in failure.
func (r *StageResult) Failed() bool {
	return r.Status == StageStatusFail
}

// PipelineStats aggregates per-stage counts for a run.
type PipelineStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// PipelineResult captures the outcome of a full pipeline run.
type PipelineResult struct {
	RunID    string
	Status   StageStatus
	Stages   []*StageResult
	Stats    PipelineStats
	Duration time.Duration
}

// AddStage records a stage result and updates the aggregate stats.
func (r *PipelineResult) AddStage(stage *StageResult) {
	r.Stages = append(r.Stages, stage)
	r.Stats.Total++
	switch stage.Status {
	case StageStatusPass:
		r.Stats.Passed++
	case StageStatusFail:
		r.Stats.Failed++
	case StageStatusSkip:
		r.Stats.Skipped++
	}
}

// Finalize derives the overall status from the recorded stages.
// A run passes only when every stage passed; any failure wins over skips.
func (r *PipelineResult) Finalize() {
	r.Stats.EndTime = time.Now()
	if !r.Stats.StartTime.IsZero() {
		r.Duration = r.Stats.EndTime.Sub(r.Stats.StartTime)
	}
	switch {
	case r.Stats.Failed > 0:
		r.Status = StageStatusFail
	case r.Stats.Passed == 0:
		r.Status = StageStatusSkip
	default:
		r.Status = StageStatusPass
	}
}

// String returns a one-line summary of the run, suitable for CLI output
// and error messages.
func (r *PipelineResult) String() string {
	return fmt.Sprintf("Pipeline run %s: %s (%d passed, %d failed, %d skipped, %.1fs)",
		r.RunID, r.Status, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped, r.Duration.Seconds())
}
