// Package stagerunner wires the test pipeline together: registry,
// environment, service lifecycle, stage runner, reporting and metrics. The
// exported App is the long-lived service driven by the CLI.
package stagerunner

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopfront/stagerunner/environment"
	"github.com/shopfront/stagerunner/exitcodes"
	"github.com/shopfront/stagerunner/logging"
	"github.com/shopfront/stagerunner/pipeline"
	"github.com/shopfront/stagerunner/registry"
	"github.com/shopfront/stagerunner/report"
	"github.com/shopfront/stagerunner/services"
	"github.com/shopfront/stagerunner/types"
)

// App runs the layered test pipeline, once or on an interval.
type App struct {
	config    *Config
	version   string
	registry  *registry.Registry
	runner    *pipeline.Runner
	setup     *environment.Setup
	env       []string
	scheduler Scheduler
	reporter  MetricsReporter
	result    *types.PipelineResult

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New assembles the application from its configuration.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating stagerunner with config",
		"configFile", config.ConfigFile,
		"workDir", config.WorkDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"layer", config.Layer)

	reg, err := registry.NewRegistry(registry.Config{
		Log:        config.Log,
		ConfigFile: config.ConfigFile,
		ReportsDir: config.ReportsDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	pc := reg.Pipeline()

	executor := pipeline.NewExecutor()
	envConfig := environment.NewConfig(pc)
	setup := environment.NewSetup(config.Log, executor, config.WorkDir, pc.RequiredTools)

	manager, err := services.NewManager(services.Config{
		Log:         config.Log,
		Executor:    executor,
		ComposeFile: pc.ComposeFile,
		WorkDir:     config.WorkDir,
		Probers: []services.Prober{
			services.NewPostgresProbe(pc.Database),
			services.NewRedisProbe(pc.Cache),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create service manager: %w", err)
	}

	fileLogger, err := logging.NewFileLogger(config.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}

	runner, err := pipeline.NewRunner(pipeline.Config{
		Registry:   reg,
		Executor:   executor,
		Services:   manager,
		Logs:       fileLogger,
		Log:        config.Log,
		WorkDir:    config.WorkDir,
		ReportsDir: config.ReportsDir,
		RunE2E:     config.RunE2E,
		Env:        envConfig.Env(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline runner: %w", err)
	}

	return &App{
		config:           config,
		version:          version,
		registry:         reg,
		runner:           runner,
		setup:            setup,
		env:              envConfig.Env(),
		scheduler:        NewDefaultScheduler(config.RunInterval, config.RunOnce, config.Log),
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the pipeline, once or periodically at the configured interval.
func (a *App) Start(ctx context.Context) error {
	// Panics are operational failures, not stage failures.
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	if a.config.RunOnce {
		a.config.Log.Info("Starting stagerunner in run-once mode")
	} else {
		a.config.Log.Info("Starting stagerunner in continuous mode", "interval", a.config.RunInterval)
	}

	// Missing tools abort before any stage runs.
	if err := a.setup.CheckTools(); err != nil {
		return NewRuntimeError(err)
	}
	if err := a.setup.InstallDependencies(ctx, a.env); err != nil {
		return NewRuntimeError(err)
	}

	a.scheduler.RegisterCallback(func() error { return a.runPipeline(ctx) })
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	if a.config.RunOnce {
		a.config.Log.Info("Pipeline completed, exiting (run-once mode)")

		if a.result != nil && a.result.Status == types.StageStatusFail {
			a.config.Log.Warn("Run-once pipeline completed with failures, returning exit code 1")
			return NewStageFailureError(a.result.String())
		}

		go func() {
			a.shutdownCallback(nil)
		}()
	}
	return nil
}

// runPipeline runs the configured layers and publishes the results.
func (a *App) runPipeline(ctx context.Context) error {
	var result *types.PipelineResult
	var err error
	if a.config.Layer > 0 {
		id, parseErr := types.ParseStageID(a.config.Layer)
		if parseErr != nil {
			return NewRuntimeError(parseErr)
		}
		result, err = a.runner.RunStage(ctx, id)
	} else {
		result, err = a.runner.RunAll(ctx)
	}
	if err != nil {
		// Runtime error, not a stage failure.
		a.config.Log.Error("Runtime error running pipeline", "error", err)
		return NewRuntimeError(err)
	}
	a.result = result

	a.printResultsTable(result)
	fmt.Println(result.String())

	artifacts := report.ScanArtifacts(a.config.ReportsDir, a.expectedArtifacts())
	data := report.Build(result, artifacts)
	aggregator := report.NewAggregator(a.config.Log,
		report.NewTextSummarySink(a.config.ReportsDir),
		report.NewMarkdownSink(a.config.ReportsDir),
		report.NewHTMLSink(a.config.ReportsDir),
	)
	_ = aggregator.Generate(data)

	a.reporter.ReportResults(result.RunID, result)
	a.config.Log.Info("Pipeline run completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

func (a *App) expectedArtifacts() []types.ArtifactSpec {
	var specs []types.ArtifactSpec
	for _, stage := range a.registry.Stages() {
		specs = append(specs, stage.Artifacts...)
	}
	return specs
}

func (a *App) printResultsTable(result *types.PipelineResult) {
	data := report.Build(result, nil)
	fmt.Print(report.NewTableFormatter("Test Pipeline Results").Format(data))
}

// Stop stops the stagerunner service.
func (a *App) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping stagerunner")

	if a.scheduler.Stopped() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	if err := a.scheduler.Stop(); err != nil {
		return err
	}

	a.config.Log.Info("stagerunner stopped successfully")
	return nil
}

// Stopped returns true if the stagerunner service is stopped.
func (a *App) Stopped() bool {
	return a.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.scheduler.WaitForShutdown(ctx)
}

// Result returns the most recent pipeline result.
func (a *App) Result() *types.PipelineResult {
	return a.result
}
