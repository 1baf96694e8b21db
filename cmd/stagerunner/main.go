package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	stagerunner "github.com/shopfront/stagerunner"
	"github.com/shopfront/stagerunner/exitcodes"
	"github.com/shopfront/stagerunner/flags"
	"github.com/shopfront/stagerunner/load"
	"github.com/shopfront/stagerunner/pipeline"
	"github.com/shopfront/stagerunner/registry"
	"github.com/shopfront/stagerunner/security"
	"github.com/shopfront/stagerunner/service"
)

var (
	Version   = "v0.3.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	app := newApp(log)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if stagerunner.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				// Stage failures and unspecified errors exit 1.
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.StageFailure))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := service.New(log)
	svc.Start(ctx)
	defer svc.Shutdown()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error("Application failed", "error", err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func newApp(log *slog.Logger) *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "stagerunner"
	app.Usage = "Layered test pipeline orchestrator"
	app.Description = "stagerunner drives the static, unit, integration, e2e and validation test layers, plus the security and load gates"
	app.Flags = flags.GlobalFlags
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Run the test pipeline (all layers, or one with --layer)",
			Flags:  flags.RunFlags,
			Action: runPipeline(log),
		},
		{
			Name:   "security",
			Usage:  "Run the security scanning phases",
			Flags:  flags.SecurityFlags,
			Action: runSecurity(log),
		},
		{
			Name:   "load",
			Usage:  "Run a load test profile against the application",
			Flags:  flags.LoadFlags,
			Action: runLoad(log),
		},
	}
	return app
}

func runPipeline(log *slog.Logger) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := stagerunner.NewConfig(ctx, log)
		if err != nil {
			return stagerunner.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
		}

		app, err := stagerunner.New(ctx.Context, cfg, Version, func(error) {})
		if err != nil {
			return stagerunner.NewRuntimeError(fmt.Errorf("failed to create stagerunner: %w", err))
		}

		if err := app.Start(ctx.Context); err != nil {
			return err
		}
		if cfg.RunOnce {
			return nil
		}

		// Continuous mode: run until interrupted.
		<-ctx.Context.Done()
		if err := app.Stop(context.Background()); err != nil {
			return stagerunner.NewRuntimeError(err)
		}
		return app.WaitForShutdown(context.Background())
	}
}

func runSecurity(log *slog.Logger) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		pc, workDir, reportsDir, err := loadRegistry(ctx, log)
		if err != nil {
			return err
		}

		driver, err := security.NewDriver(security.Config{
			Log:         log,
			Executor:    pipeline.NewExecutor(),
			WorkDir:     workDir,
			ReportsDir:  reportsDir,
			TargetURL:   pc.AppBaseURL,
			Gates:       pc.SecurityGates,
			SkipDynamic: ctx.Bool(flags.SkipDynamic.Name),
		})
		if err != nil {
			return stagerunner.NewRuntimeError(err)
		}

		var summary *security.Summary
		if phase := ctx.Int(flags.SecurityPhase.Name); phase > 0 {
			summary, err = driver.RunPhase(ctx.Context, phase)
		} else {
			summary, err = driver.RunAll(ctx.Context)
		}
		if err != nil {
			return stagerunner.NewRuntimeError(err)
		}

		fmt.Print(summary.String())
		if !summary.Passed {
			return stagerunner.NewStageFailureError("security gates exceeded")
		}
		return nil
	}
}

func runLoad(log *slog.Logger) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		pc, workDir, reportsDir, err := loadRegistry(ctx, log)
		if err != nil {
			return err
		}

		duration := ctx.Duration(flags.LoadDuration.Name)
		if err := flags.CheckDuration(duration); err != nil {
			return stagerunner.NewRuntimeError(err)
		}

		driver, err := load.NewDriver(load.Config{
			Log:        log,
			Executor:   pipeline.NewExecutor(),
			WorkDir:    workDir,
			ReportsDir: reportsDir,
			TargetURL:  pc.AppBaseURL,
			Targets:    pc.LoadTargets,
		})
		if err != nil {
			return stagerunner.NewRuntimeError(err)
		}

		result, err := driver.Run(ctx.Context, load.Options{
			Type:      ctx.String(flags.LoadType.Name),
			Users:     ctx.Int(flags.LoadUsers.Name),
			SpawnRate: ctx.Int(flags.LoadSpawnRate.Name),
			Duration:  duration,
			Monitor:   ctx.Bool(flags.LoadMonitor.Name),
			External:  ctx.String(flags.LoadExternal.Name),
		})
		if err != nil {
			return stagerunner.NewRuntimeError(err)
		}

		fmt.Print(result.String())
		if !result.Passed {
			return stagerunner.NewStageFailureError("load test thresholds exceeded")
		}
		return nil
	}
}

func loadRegistry(ctx *cli.Context, log *slog.Logger) (*registry.PipelineConfig, string, string, error) {
	workDir, err := filepath.Abs(ctx.String(flags.WorkDir.Name))
	if err != nil {
		return nil, "", "", stagerunner.NewRuntimeError(err)
	}
	reportsDir := ctx.String(flags.ReportsDir.Name)
	if !filepath.IsAbs(reportsDir) {
		reportsDir = filepath.Join(workDir, reportsDir)
	}

	reg, err := registry.NewRegistry(registry.Config{
		Log:        log,
		ConfigFile: ctx.String(flags.ConfigFile.Name),
		ReportsDir: reportsDir,
	})
	if err != nil {
		return nil, "", "", stagerunner.NewRuntimeError(fmt.Errorf("failed to create registry: %w", err))
	}
	return reg.Pipeline(), workDir, reportsDir, nil
}
