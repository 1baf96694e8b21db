package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/stagerunner/types"
)

func validationRunner(t *testing.T, workDir, reportsDir string, files ...string) *Runner {
	t.Helper()
	yamlContent := `
validation_files:
`
	for _, f := range files {
		yamlContent += "  - " + f + "\n"
	}
	yamlContent += `
stages:
  - id: 5
    commands: [{name: manifest-check, program: "internal:validate"}]
    artifacts:
      - {name: log, path: pipeline-validation.txt, kind: txt}
`
	reg := testRegistry(t, yamlContent)
	r, err := NewRunner(Config{
		Registry:   reg,
		Executor:   &fakeExecutor{exitCodes: map[string]int{}},
		WorkDir:    workDir,
		ReportsDir: reportsDir,
	})
	require.NoError(t, err)
	return r
}

func TestValidationStagePassesOnGoodManifests(t *testing.T) {
	workDir := t.TempDir()
	reportsDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(workDir, "docker-compose.test.yml"),
		[]byte("services:\n  db:\n    image: postgres:15\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "Dockerfile"),
		[]byte("FROM python:3.12\n"), 0644))

	r := validationRunner(t, workDir, reportsDir, "docker-compose.test.yml", "Dockerfile")

	result, err := r.RunStage(context.Background(), types.StageValidation)
	require.NoError(t, err)
	assert.Equal(t, types.StageStatusPass, result.Status)
	assert.Equal(t, []string{"pipeline-validation.txt"}, result.Stages[0].Artifacts)

	log, err := os.ReadFile(filepath.Join(reportsDir, "pipeline-validation.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "OK       docker-compose.test.yml")
	assert.Contains(t, string(log), "OK       Dockerfile")
}

func TestValidationStageFailsOnMissingManifest(t *testing.T) {
	r := validationRunner(t, t.TempDir(), t.TempDir(), "k8s/deployment.yaml")

	result, err := r.RunStage(context.Background(), types.StageValidation)
	require.NoError(t, err)
	assert.Equal(t, types.StageStatusFail, result.Status)
	assert.ErrorContains(t, result.Stages[0].Error, "k8s/deployment.yaml")
}

func TestValidationStageFailsOnBadYAMLSyntax(t *testing.T) {
	workDir := t.TempDir()
	reportsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "ci.yml"),
		[]byte("stages:\n  - [unclosed\n"), 0644))

	r := validationRunner(t, workDir, reportsDir, "ci.yml")

	result, err := r.RunStage(context.Background(), types.StageValidation)
	require.NoError(t, err)
	assert.Equal(t, types.StageStatusFail, result.Status)

	log, err := os.ReadFile(filepath.Join(reportsDir, "pipeline-validation.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "INVALID  ci.yml")
}

func TestValidationNonYAMLFilesCheckedForPresenceOnly(t *testing.T) {
	workDir := t.TempDir()
	// A Dockerfile with content that is not valid YAML must still pass.
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "Dockerfile"),
		[]byte("FROM python:3.12\nRUN pip install -r requirements.txt\n"), 0644))

	r := validationRunner(t, workDir, t.TempDir(), "Dockerfile")

	result, err := r.RunStage(context.Background(), types.StageValidation)
	require.NoError(t, err)
	assert.Equal(t, types.StageStatusPass, result.Status)
}
