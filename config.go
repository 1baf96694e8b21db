package stagerunner

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/shopfront/stagerunner/flags"
)

// Config holds the application configuration
type Config struct {
	ConfigFile  string        // Path to pipeline.yaml
	WorkDir     string        // Project directory the stages run in
	ReportsDir  string        // Directory for stage artifacts and summaries
	LogDir      string        // Directory for per-run stage logs
	RunInterval time.Duration // Interval between pipeline runs
	RunOnce     bool          // Indicates if the service should exit after one run
	Layer       int           // Single layer selector; 0 runs the full sequence
	RunE2E      bool          // Execute end-to-end tests instead of structure validation
	Log         *slog.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *slog.Logger) (*Config, error) {
	if err := flags.CheckLayer(ctx); err != nil {
		return nil, err
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if err := flags.CheckDuration(runInterval); err != nil {
		return nil, err
	}
	runOnce := runInterval == 0

	workDir, err := filepath.Abs(ctx.String(flags.WorkDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for workdir: %w", err)
	}

	reportsDir := ctx.String(flags.ReportsDir.Name)
	if !filepath.IsAbs(reportsDir) {
		reportsDir = filepath.Join(workDir, reportsDir)
	}
	logDir := ctx.String(flags.LogDir.Name)
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(workDir, logDir)
	}

	return &Config{
		ConfigFile:  ctx.String(flags.ConfigFile.Name),
		WorkDir:     workDir,
		ReportsDir:  reportsDir,
		LogDir:      logDir,
		RunInterval: runInterval,
		RunOnce:     runOnce,
		Layer:       ctx.Int(flags.Layer.Name),
		RunE2E:      ctx.Bool(flags.RunE2E.Name),
		Log:         log,
	}, nil
}
