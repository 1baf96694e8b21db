package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/shopfront/stagerunner/registry"
	"github.com/shopfront/stagerunner/types"
)

// serviceTeardownTimeout bounds the unconditional teardown so a wedged
// container runtime cannot hang the pipeline forever.
const serviceTeardownTimeout = 2 * time.Minute

// ServiceManager brings the containerized database and cache up before a
// stage that needs them and guarantees teardown afterward.
type ServiceManager interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
}

// LogSink receives per-stage tool output for persistence.
type LogSink interface {
	StageLog(runID string, stage types.StageID) (io.WriteCloser, error)
	Complete(runID string) error
}

// Config contains runner configuration.
type Config struct {
	Registry   *registry.Registry
	Executor   Executor
	Services   ServiceManager
	Logs       LogSink // optional
	Log        *slog.Logger
	WorkDir    string
	ReportsDir string
	RunE2E     bool
	Env        []string // explicit child environment for every tool invocation
}

// Runner sequences the pipeline stages in fixed order with fail-fast
// semantics: the first failing stage halts the run and every later stage
// is recorded as skipped.
type Runner struct {
	cfg    Config
	stages []Stage
}

// NewRunner creates a pipeline runner from the registry's stage set.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "test-reports"
	}

	var stages []Stage
	for _, sc := range cfg.Registry.Stages() {
		stages = append(stages, NewStage(sc))
	}
	for _, st := range stages {
		if st.RequiresServices && cfg.Services == nil {
			return nil, fmt.Errorf("stage %d requires services but no service manager is configured", int(st.ID))
		}
	}

	return &Runner{cfg: cfg, stages: stages}, nil
}

// RunAll executes every configured stage in order 1..5, halting at the
// first failure.
func (r *Runner) RunAll(ctx context.Context) (*types.PipelineResult, error) {
	runID := uuid.New().String()
	r.cfg.Log.Info("Starting pipeline run", "run_id", runID, "stages", len(r.stages))

	if err := os.MkdirAll(r.cfg.ReportsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	result := &types.PipelineResult{
		RunID: runID,
		Stats: types.PipelineStats{StartTime: time.Now()},
	}

	failed := false
	for _, st := range r.stages {
		if failed {
			r.cfg.Log.Warn("Skipping stage due to earlier failure", "stage", st.ID.Slug())
			result.AddStage(&types.StageResult{ID: st.ID, Name: st.Name, Status: types.StageStatusSkip})
			continue
		}

		stageResult := r.runStage(ctx, runID, st)
		result.AddStage(stageResult)
		if stageResult.Failed() {
			r.cfg.Log.Error("Stage failed, halting pipeline", "stage", st.ID.Slug(), "error", stageResult.Error)
			failed = true
		}
	}

	result.Finalize()
	r.complete(runID)
	r.cfg.Log.Info("Pipeline run completed", "run_id", runID, "status", result.Status)
	return result, nil
}

// RunStage executes a single selected stage's setup, commands and teardown.
func (r *Runner) RunStage(ctx context.Context, id types.StageID) (*types.PipelineResult, error) {
	if !id.IsValid() {
		return nil, fmt.Errorf("invalid layer %d: must be between 1 and 5", int(id))
	}

	var stage *Stage
	for i := range r.stages {
		if r.stages[i].ID == id {
			stage = &r.stages[i]
			break
		}
	}
	if stage == nil {
		return nil, fmt.Errorf("stage %d is not configured", int(id))
	}

	if err := os.MkdirAll(r.cfg.ReportsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	runID := uuid.New().String()
	r.cfg.Log.Info("Starting single-stage run", "run_id", runID, "stage", id.Slug())

	result := &types.PipelineResult{
		RunID: runID,
		Stats: types.PipelineStats{StartTime: time.Now()},
	}
	result.AddStage(r.runStage(ctx, runID, *stage))
	result.Finalize()
	r.complete(runID)
	return result, nil
}

func (r *Runner) complete(runID string) {
	if r.cfg.Logs == nil {
		return
	}
	if err := r.cfg.Logs.Complete(runID); err != nil {
		r.cfg.Log.Warn("Failed to finalize stage logs", "run_id", runID, "error", err)
	}
}

// runStage executes one stage. Service teardown runs on every exit path,
// including command failure and probe timeout.
func (r *Runner) runStage(ctx context.Context, runID string, st Stage) *types.StageResult {
	r.cfg.Log.Info("Running stage", "stage", st.ID.Slug(), "name", st.Name)

	result := &types.StageResult{ID: st.ID, Name: st.Name, Status: types.StageStatusPass}
	startTime := time.Now()
	defer func() {
		result.Duration = time.Since(startTime)
		result.Artifacts = r.collectArtifacts(st)
	}()

	var mirror io.WriteCloser
	if r.cfg.Logs != nil {
		var err error
		mirror, err = r.cfg.Logs.StageLog(runID, st.ID)
		if err != nil {
			r.cfg.Log.Warn("Failed to open stage log, continuing without it", "stage", st.ID.Slug(), "error", err)
			mirror = nil
		} else {
			defer func() { _ = mirror.Close() }()
		}
	}

	// Structure-validation mode only stats files, so the database and
	// cache are never brought up for it.
	if st.ID == types.StageE2E && !r.cfg.RunE2E {
		if err := r.validateE2EStructure(mirror); err != nil {
			result.Status = types.StageStatusFail
			result.Error = err
		}
		return result
	}

	if st.RequiresServices {
		if err := r.cfg.Services.Up(ctx); err != nil {
			result.Status = types.StageStatusFail
			result.Error = fmt.Errorf("failed to start services: %w", err)
			r.teardownServices(st)
			return result
		}
		defer r.teardownServices(st)
	}

	for _, cmd := range st.Commands {
		if err := r.runCommand(ctx, st, cmd, mirror, result); err != nil {
			result.Status = types.StageStatusFail
			result.Error = err
			return result
		}
	}

	return result
}

func (r *Runner) runCommand(ctx context.Context, st Stage, cmd registry.CommandConfig, mirror io.Writer, result *types.StageResult) error {
	if internal, name := isInternalCommand(cmd); internal {
		return r.runInternalCommand(name, mirror)
	}

	r.cfg.Log.Info("Running command", "stage", st.ID.Slug(), "command", cmd.Name, "program", cmd.Program)

	execResult, err := r.cfg.Executor.Run(ctx, ExecSpec{
		Name:    cmd.Name,
		Program: cmd.Program,
		Args:    cmd.Args,
		Dir:     r.cfg.WorkDir,
		Env:     r.cfg.Env,
		Timeout: st.Timeout,
		Mirror:  mirror,
	})
	if err != nil {
		return fmt.Errorf("command %s: %w", cmd.Name, err)
	}

	result.Stdout = execResult.Stdout
	if execResult.TimedOut {
		result.TimedOut = true
		return fmt.Errorf("command %s timed out after %s", cmd.Name, st.Timeout)
	}
	if !execResult.Ok() {
		if cmd.AllowFailure {
			r.cfg.Log.Warn("Command failed but is marked allow_failure, continuing",
				"stage", st.ID.Slug(), "command", cmd.Name, "exit_code", execResult.ExitCode)
			return nil
		}
		return fmt.Errorf("command %s failed with exit code %d", cmd.Name, execResult.ExitCode)
	}
	return nil
}

// teardownServices runs with its own timeout-bounded context so cleanup
// happens even when the stage's context is already cancelled.
func (r *Runner) teardownServices(st Stage) {
	ctx, cancel := context.WithTimeout(context.Background(), serviceTeardownTimeout)
	defer cancel()

	if err := r.cfg.Services.Down(ctx); err != nil {
		r.cfg.Log.Error("Failed to tear down services", "stage", st.ID.Slug(), "error", err)
	}
}

// collectArtifacts records which of the stage's expected artifacts exist
// on disk. Absence is not a stage failure; the report aggregator renders
// missing artifacts as pending.
func (r *Runner) collectArtifacts(st Stage) []string {
	var produced []string
	for _, spec := range st.Artifacts {
		path := filepath.Join(r.cfg.ReportsDir, filepath.FromSlash(spec.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			produced = append(produced, spec.Path)
		}
	}
	return produced
}
