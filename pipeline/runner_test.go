package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/stagerunner/registry"
	"github.com/shopfront/stagerunner/types"
)

// fakeExecutor returns canned exit codes per program name.
type fakeExecutor struct {
	mu        sync.Mutex
	exitCodes map[string]int
	errs      map[string]error
	calls     []string
}

func (f *fakeExecutor) Run(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, spec.Program)
	if err, ok := f.errs[spec.Program]; ok {
		return nil, err
	}
	return &ExecResult{ExitCode: f.exitCodes[spec.Program], Stdout: "output of " + spec.Program}, nil
}

// fakeServices records lifecycle calls and can fail startup.
type fakeServices struct {
	mu      sync.Mutex
	ups     int
	downs   int
	upErr   error
	running bool
}

func (f *fakeServices) Up(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ups++
	if f.upErr != nil {
		return f.upErr
	}
	f.running = true
	return nil
}

func (f *fakeServices) Down(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downs++
	f.running = false
	return nil
}

func testRegistry(t *testing.T, yamlContent string) *registry.Registry {
	t.Helper()
	cfg := registry.Config{}
	if yamlContent != "" {
		path := filepath.Join(t.TempDir(), "pipeline.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))
		cfg.ConfigFile = path
	}
	r, err := registry.NewRegistry(cfg)
	require.NoError(t, err)
	return r
}

const simpleStagesYAML = `
stages:
  - id: 1
    commands: [{name: lint, program: lint-tool}]
  - id: 2
    commands: [{name: unit, program: unit-tool}]
  - id: 3
    requires_services: true
    commands: [{name: integration, program: integration-tool}]
  - id: 4
    requires_services: true
    commands: [{name: e2e, program: e2e-tool}]
  - id: 5
    commands: [{name: check, program: check-tool}]
`

func newTestRunner(t *testing.T, exec Executor, svc ServiceManager, opts ...func(*Config)) *Runner {
	t.Helper()
	cfg := Config{
		Registry:   testRegistry(t, simpleStagesYAML),
		Executor:   exec,
		Services:   svc,
		WorkDir:    t.TempDir(),
		ReportsDir: filepath.Join(t.TempDir(), "reports"),
		RunE2E:     true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r
}

func TestRunnerRunAllHappyPath(t *testing.T) {
	exec := &fakeExecutor{exitCodes: map[string]int{}}
	svc := &fakeServices{}
	r := newTestRunner(t, exec, svc)

	result, err := r.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StageStatusPass, result.Status)
	assert.Equal(t, 5, result.Stats.Passed)
	assert.Equal(t, []string{"lint-tool", "unit-tool", "integration-tool", "e2e-tool", "check-tool"}, exec.calls)
	assert.NotEmpty(t, result.RunID)
}

func TestRunnerFailFastSkipsDependentStages(t *testing.T) {
	// Stage 2 fails; stages 3-5 must never execute.
	exec := &fakeExecutor{exitCodes: map[string]int{"unit-tool": 1}}
	svc := &fakeServices{}
	r := newTestRunner(t, exec, svc)

	result, err := r.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StageStatusFail, result.Status)
	require.Len(t, result.Stages, 5)
	assert.Equal(t, types.StageStatusPass, result.Stages[0].Status)
	assert.Equal(t, types.StageStatusFail, result.Stages[1].Status)
	for _, st := range result.Stages[2:] {
		assert.Equal(t, types.StageStatusSkip, st.Status)
	}
	assert.Equal(t, []string{"lint-tool", "unit-tool"}, exec.calls)
	// Services were never needed, so never started.
	assert.Equal(t, 0, svc.ups)
}

func TestRunnerTeardownRunsOnSuccessAndFailure(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		exec := &fakeExecutor{exitCodes: map[string]int{}}
		svc := &fakeServices{}
		r := newTestRunner(t, exec, svc)

		_, err := r.RunAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, svc.ups)   // stages 3 and 4
		assert.Equal(t, 2, svc.downs) // torn down after each
		assert.False(t, svc.running)
	})

	t.Run("command failure", func(t *testing.T) {
		exec := &fakeExecutor{exitCodes: map[string]int{"integration-tool": 2}}
		svc := &fakeServices{}
		r := newTestRunner(t, exec, svc)

		result, err := r.RunAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.StageStatusFail, result.Status)
		assert.Equal(t, 1, svc.ups)
		assert.Equal(t, 1, svc.downs)
		assert.False(t, svc.running)
	})

	t.Run("startup failure", func(t *testing.T) {
		exec := &fakeExecutor{exitCodes: map[string]int{}}
		svc := &fakeServices{upErr: fmt.Errorf("cache never became healthy")}
		r := newTestRunner(t, exec, svc)

		result, err := r.RunAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.StageStatusFail, result.Status)
		require.Len(t, result.Stages, 5)
		assert.Equal(t, types.StageStatusFail, result.Stages[2].Status)
		assert.ErrorContains(t, result.Stages[2].Error, "failed to start services")
		// Teardown still ran to clean up partial startup.
		assert.Equal(t, 1, svc.downs)
		assert.False(t, svc.running)
	})
}

func TestRunnerRunStageSingleSelection(t *testing.T) {
	exec := &fakeExecutor{exitCodes: map[string]int{}}
	svc := &fakeServices{}
	r := newTestRunner(t, exec, svc)

	result, err := r.RunStage(context.Background(), types.StageIntegration)
	require.NoError(t, err)

	assert.Equal(t, types.StageStatusPass, result.Status)
	require.Len(t, result.Stages, 1)
	assert.Equal(t, types.StageIntegration, result.Stages[0].ID)
	assert.Equal(t, []string{"integration-tool"}, exec.calls)
	assert.Equal(t, 1, svc.ups)
	assert.Equal(t, 1, svc.downs)
}

func TestRunnerRunStageInvalidSelector(t *testing.T) {
	exec := &fakeExecutor{exitCodes: map[string]int{}}
	r := newTestRunner(t, exec, &fakeServices{})

	for _, layer := range []int{0, 6, -1, 42} {
		_, err := r.RunStage(context.Background(), types.StageID(layer))
		require.Error(t, err, "layer %d", layer)
		assert.Contains(t, err.Error(), "invalid layer")
	}
	// No stage may have executed.
	assert.Empty(t, exec.calls)
}

func TestRunnerAllowFailureContinues(t *testing.T) {
	reg := testRegistry(t, `
stages:
  - id: 1
    commands:
      - {name: advisory, program: advisory-tool, allow_failure: true}
      - {name: strict, program: strict-tool}
`)
	exec := &fakeExecutor{exitCodes: map[string]int{"advisory-tool": 1}}
	r, err := NewRunner(Config{Registry: reg, Executor: exec, ReportsDir: t.TempDir()})
	require.NoError(t, err)

	result, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StageStatusPass, result.Status)
	assert.Equal(t, []string{"advisory-tool", "strict-tool"}, exec.calls)
}

func TestRunnerExecutorErrorFailsStage(t *testing.T) {
	exec := &fakeExecutor{
		exitCodes: map[string]int{},
		errs:      map[string]error{"lint-tool": fmt.Errorf("tool not installed")},
	}
	r := newTestRunner(t, exec, &fakeServices{})

	result, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StageStatusFail, result.Status)
	assert.ErrorContains(t, result.Stages[0].Error, "tool not installed")
}

func TestRunnerCollectsProducedArtifacts(t *testing.T) {
	reportsDir := t.TempDir()
	reg := testRegistry(t, `
stages:
  - id: 3
    requires_services: true
    commands: [{name: integration, program: integration-tool}]
    artifacts:
      - {name: results, path: integration-test-results.xml, kind: xml}
      - {name: never-made, path: missing.xml, kind: xml}
`)
	exec := &fakeExecutor{exitCodes: map[string]int{}}
	r, err := NewRunner(Config{Registry: reg, Executor: exec, Services: &fakeServices{}, ReportsDir: reportsDir})
	require.NoError(t, err)

	// Simulate the external tool producing its artifact.
	require.NoError(t, os.WriteFile(filepath.Join(reportsDir, "integration-test-results.xml"), []byte("<testsuite/>"), 0644))

	result, err := r.RunStage(context.Background(), types.StageIntegration)
	require.NoError(t, err)
	require.Len(t, result.Stages, 1)
	assert.Equal(t, []string{"integration-test-results.xml"}, result.Stages[0].Artifacts)
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry is required")

	_, err = NewRunner(Config{Registry: testRegistry(t, "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor is required")

	// Default stages 3 and 4 need services.
	_, err = NewRunner(Config{Registry: testRegistry(t, ""), Executor: &fakeExecutor{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires services")
}

func TestRunnerE2EStructureValidationMode(t *testing.T) {
	workDir := t.TempDir()
	reg := testRegistry(t, `
stages:
  - id: 4
    requires_services: true
    commands: [{name: e2e, program: e2e-tool}]
`)
	exec := &fakeExecutor{exitCodes: map[string]int{}}
	svc := &fakeServices{}
	r, err := NewRunner(Config{
		Registry:   reg,
		Executor:   exec,
		Services:   svc,
		WorkDir:    workDir,
		ReportsDir: t.TempDir(),
		RunE2E:     false,
	})
	require.NoError(t, err)

	t.Run("missing suite fails", func(t *testing.T) {
		result, err := r.RunStage(context.Background(), types.StageE2E)
		require.NoError(t, err)
		assert.Equal(t, types.StageStatusFail, result.Status)
		assert.ErrorContains(t, result.Stages[0].Error, "not found")
	})

	t.Run("valid structure passes without executing", func(t *testing.T) {
		e2eDir := filepath.Join(workDir, "tests", "e2e")
		require.NoError(t, os.MkdirAll(e2eDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(e2eDir, "test_order_management.py"), []byte("# scenarios"), 0644))

		result, err := r.RunStage(context.Background(), types.StageE2E)
		require.NoError(t, err)
		assert.Equal(t, types.StageStatusPass, result.Status)
		// The e2e tool itself must not have run.
		assert.NotContains(t, exec.calls, "e2e-tool")
	})

	// File checks need no database or cache; the probe budget must not be
	// spent in this mode.
	assert.Equal(t, 0, svc.ups)
	assert.Equal(t, 0, svc.downs)
}
