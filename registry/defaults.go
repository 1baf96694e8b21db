package registry

import (
	"path/filepath"
	"time"

	"github.com/shopfront/stagerunner/types"
)

// Probe bounds for the containerized test services. The database gets a
// longer window because Postgres initializes its data directory on first
// boot; the cache is expected to come up quickly.
const (
	DefaultDatabaseTimeout = 60 * time.Second
	DefaultCacheTimeout    = 30 * time.Second
	DefaultPollInterval    = 2 * time.Second
)

// DefaultPipelineConfig returns the built-in pipeline definition for the
// storefront application: five sequential stages with their commands and
// expected artifacts. pipeline.yaml overrides any of it.
//
// reportsDir is where the default commands write their reports, so that
// overriding --reports-dir keeps the tools and the artifact scan looking
// at the same directory. Empty means the built-in test-reports.
func DefaultPipelineConfig(reportsDir string) *PipelineConfig {
	if reportsDir == "" {
		reportsDir = "test-reports"
	}
	report := func(name string) string { return filepath.Join(reportsDir, name) }
	return &PipelineConfig{
		ComposeFile:    "docker-compose.test.yml",
		SettingsModule: "settings.test",
		RequiredTools:  []string{"python", "pip", "docker"},
		AppBaseURL:     "http://localhost:8000",
		Stages: []StageConfig{
			{
				ID:   int(types.StageStatic),
				Name: types.StageStatic.Name(),
				Commands: []CommandConfig{
					{Name: "flake8", Program: "flake8", Args: []string{"."}},
					{Name: "black", Program: "black", Args: []string{"--check", "."}},
					{Name: "isort", Program: "isort", Args: []string{"--check-only", "."}},
				},
				Artifacts: []types.ArtifactSpec{
					{Name: "Static analysis log", Path: "static-analysis.txt", Kind: types.ArtifactText, Stage: types.StageStatic},
				},
			},
			{
				ID:   int(types.StageUnit),
				Name: types.StageUnit.Name(),
				Commands: []CommandConfig{
					{Name: "pytest-unit", Program: "pytest", Args: []string{
						"tests/unit",
						"--junitxml=" + report("unit-test-results.xml"),
						"--cov=apps",
						"--cov-report=xml:" + report("coverage.xml"),
						"--cov-report=html:" + report("htmlcov"),
					}},
				},
				Artifacts: []types.ArtifactSpec{
					{Name: "Unit test results", Path: "unit-test-results.xml", Kind: types.ArtifactXML, Stage: types.StageUnit},
					{Name: "Coverage report", Path: "coverage.xml", Kind: types.ArtifactXML, Stage: types.StageUnit},
					{Name: "Coverage HTML", Path: "htmlcov/index.html", Kind: types.ArtifactHTML, Stage: types.StageUnit},
				},
			},
			{
				ID:               int(types.StageIntegration),
				Name:             types.StageIntegration.Name(),
				RequiresServices: true,
				Commands: []CommandConfig{
					{Name: "pytest-integration", Program: "pytest", Args: []string{
						"tests/integration",
						"--junitxml=" + report("integration-test-results.xml"),
					}},
				},
				Artifacts: []types.ArtifactSpec{
					{Name: "Integration test results", Path: "integration-test-results.xml", Kind: types.ArtifactXML, Stage: types.StageIntegration},
				},
			},
			{
				ID:               int(types.StageE2E),
				Name:             types.StageE2E.Name(),
				RequiresServices: true,
				Commands: []CommandConfig{
					{Name: "pytest-e2e", Program: "pytest", Args: []string{
						"tests/e2e",
						"--junitxml=" + report("e2e-test-results.xml"),
					}},
				},
				Artifacts: []types.ArtifactSpec{
					{Name: "E2E test results", Path: "e2e-test-results.xml", Kind: types.ArtifactXML, Stage: types.StageE2E},
				},
			},
			{
				ID:   int(types.StageValidation),
				Name: types.StageValidation.Name(),
				Commands: []CommandConfig{
					// The validation stage is implemented in-process; this
					// command records the manifest set that was checked.
					{Name: "manifest-check", Program: "internal:validate"},
				},
				Artifacts: []types.ArtifactSpec{
					{Name: "Pipeline validation log", Path: "pipeline-validation.txt", Kind: types.ArtifactText, Stage: types.StageValidation},
				},
			},
		},
		Database: DatabaseConfig{
			Service:      "db",
			Host:         "localhost",
			Port:         5433,
			User:         "test_user",
			Password:     "test_password",
			Name:         "test_ecommerce",
			Timeout:      DefaultDatabaseTimeout,
			PollInterval: DefaultPollInterval,
		},
		Cache: CacheConfig{
			Service:      "redis",
			Host:         "localhost",
			Port:         6380,
			DB:           1,
			Timeout:      DefaultCacheTimeout,
			PollInterval: DefaultPollInterval,
		},
		LoadTargets: types.LoadTargets{
			AvgResponseMs:   200,
			P95ResponseMs:   500,
			MaxFailureRatio: 0.01,
			MinRequestsPerS: 50,
		},
		SecurityGates: map[string]types.SecurityGate{
			"bandit": {MaxCritical: 0, MaxHigh: 0, Blocking: true},
			"safety": {MaxCritical: 0, MaxHigh: 5, Blocking: true},
			"trivy":  {MaxCritical: 0, MaxHigh: 10, Blocking: true},
			"zap":    {MaxCritical: 0, MaxHigh: 5, Blocking: false},
		},
		ValidationFiles: []string{
			"docker-compose.test.yml",
			"Dockerfile",
			".github/workflows/ci.yml",
			"k8s/deployment.yaml",
			"k8s/service.yaml",
		},
	}
}
