// Package environment prepares the host for pipeline execution: it verifies
// the required external tools are present, installs the project's locked
// dependencies and builds the explicit child environment every stage runs
// with. Connection parameters travel in a Config value rather than mutated
// global environment state; the executor injects them into child processes.
package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shopfront/stagerunner/pipeline"
	"github.com/shopfront/stagerunner/registry"
)

// Config holds the resolved test environment: service connection
// parameters and the framework settings selector.
type Config struct {
	Database       registry.DatabaseConfig
	Cache          registry.CacheConfig
	SettingsModule string
	AppBaseURL     string
}

// NewConfig derives the environment from the pipeline configuration.
func NewConfig(pc *registry.PipelineConfig) *Config {
	return &Config{
		Database:       pc.Database,
		Cache:          pc.Cache,
		SettingsModule: pc.SettingsModule,
		AppBaseURL:     pc.AppBaseURL,
	}
}

// Env renders the child process environment for stage commands: the
// parent environment plus the test service parameters the application's
// test settings read.
func (c *Config) Env() []string {
	env := os.Environ()
	env = append(env,
		"TEST_DB_HOST="+c.Database.Host,
		fmt.Sprintf("TEST_DB_PORT=%d", c.Database.Port),
		"TEST_DB_USER="+c.Database.User,
		"TEST_DB_PASSWORD="+c.Database.Password,
		"TEST_DB_NAME="+c.Database.Name,
		"TEST_REDIS_URL="+c.Cache.URL(),
	)
	if c.SettingsModule != "" {
		env = append(env, "DJANGO_SETTINGS_MODULE="+c.SettingsModule)
	}
	return env
}

// Setup verifies tool availability and installs dependencies before any
// stage runs.
type Setup struct {
	log           *slog.Logger
	requiredTools []string
	workDir       string
	executor      pipeline.Executor

	// lookPath is a test hook; defaults to exec.LookPath.
	lookPath func(string) (string, error)
}

// NewSetup creates an environment setup helper.
func NewSetup(log *slog.Logger, executor pipeline.Executor, workDir string, requiredTools []string) *Setup {
	if log == nil {
		log = slog.Default()
	}
	return &Setup{
		log:           log,
		requiredTools: requiredTools,
		workDir:       workDir,
		executor:      executor,
		lookPath:      exec.LookPath,
	}
}

// CheckTools fails fast with a descriptive error when any required tool is
// absent from PATH. Success is informational only.
func (s *Setup) CheckTools() error {
	var missing []string
	for _, tool := range s.requiredTools {
		if _, err := s.lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tool(s) not found on PATH: %s", strings.Join(missing, ", "))
	}
	s.log.Info("All required tools present", "tools", strings.Join(s.requiredTools, ", "))
	return nil
}

// InstallDependencies installs the project's Python dependencies from the
// lock file for a reproducible stage environment. A plain requirements.txt
// is used when no lock file exists.
func (s *Setup) InstallDependencies(ctx context.Context, env []string) error {
	requirements := "requirements.lock"
	if _, err := os.Stat(filepath.Join(s.workDir, requirements)); err != nil {
		requirements = "requirements.txt"
	}

	s.log.Info("Installing project dependencies", "requirements", requirements)
	result, err := s.executor.Run(ctx, pipeline.ExecSpec{
		Name:    "pip-install",
		Program: "pip",
		Args:    []string{"install", "--quiet", "-r", requirements},
		Dir:     s.workDir,
		Env:     env,
	})
	if err != nil {
		return fmt.Errorf("failed to install dependencies: %w", err)
	}
	if !result.Ok() {
		return fmt.Errorf("dependency install failed with exit code %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}
