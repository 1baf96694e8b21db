package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "STAGERUNNER"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

// Global flags shared by every subcommand.
var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "pipeline.yaml",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to the pipeline configuration file",
	}
	ReportsDir = &cli.StringFlag{
		Name:    "reports-dir",
		Value:   "test-reports",
		EnvVars: prefixEnvVars("REPORTS_DIR"),
		Usage:   "Directory where stage artifacts and summary reports are written",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: prefixEnvVars("LOG_DIR"),
		Usage:   "Directory to store per-run stage logs",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: prefixEnvVars("WORKDIR"),
		Usage:   "Project directory the pipeline stages run in",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between pipeline runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
)

// Flags for the `run` subcommand.
var (
	Layer = &cli.IntFlag{
		Name:    "layer",
		Value:   0,
		EnvVars: prefixEnvVars("LAYER"),
		Usage:   "Run a single pipeline layer (1-5) instead of the full sequence",
	}
	RunE2E = &cli.BoolFlag{
		Name:    "run-e2e",
		Value:   false,
		EnvVars: prefixEnvVars("RUN_E2E"),
		Usage:   "Execute end-to-end tests locally instead of only validating their structure",
	}
)

// Flags for the `security` subcommand.
var (
	SecurityPhase = &cli.IntFlag{
		Name:    "phase",
		Value:   0,
		EnvVars: prefixEnvVars("SECURITY_PHASE"),
		Usage:   "Run a single security phase (1-5) instead of the full sequence",
	}
	SkipDynamic = &cli.BoolFlag{
		Name:    "skip-dynamic",
		Value:   false,
		EnvVars: prefixEnvVars("SKIP_DYNAMIC"),
		Usage:   "Skip the dynamic (ZAP) scanning phase",
	}
)

// Flags for the `load` subcommand.
var (
	LoadType = &cli.StringFlag{
		Name:    "type",
		Value:   "baseline",
		EnvVars: prefixEnvVars("LOAD_TYPE"),
		Usage:   "Load test profile to run (smoke, baseline, stress, spike)",
	}
	LoadUsers = &cli.IntFlag{
		Name:    "users",
		Value:   0,
		EnvVars: prefixEnvVars("LOAD_USERS"),
		Usage:   "Number of simulated users (overrides the profile default)",
	}
	LoadSpawnRate = &cli.IntFlag{
		Name:    "spawn-rate",
		Value:   0,
		EnvVars: prefixEnvVars("LOAD_SPAWN_RATE"),
		Usage:   "User spawn rate per second (overrides the profile default)",
	}
	LoadDuration = &cli.DurationFlag{
		Name:    "duration",
		Value:   0,
		EnvVars: prefixEnvVars("LOAD_DURATION"),
		Usage:   "Load test duration (overrides the profile default)",
	}
	LoadMonitor = &cli.BoolFlag{
		Name:    "monitor",
		Value:   false,
		EnvVars: prefixEnvVars("LOAD_MONITOR"),
		Usage:   "Sample container CPU/memory into system-metrics.csv during the run",
	}
	LoadExternal = &cli.StringFlag{
		Name:    "external",
		Value:   "",
		EnvVars: prefixEnvVars("LOAD_EXTERNAL"),
		Usage:   "Target an external host instead of the local compose environment",
	}
)

// GlobalFlags are registered on the app itself.
var GlobalFlags = []cli.Flag{
	ConfigFile,
	ReportsDir,
	LogDir,
	WorkDir,
	RunInterval,
}

// RunFlags are registered on the `run` subcommand.
var RunFlags = []cli.Flag{
	Layer,
	RunE2E,
}

// SecurityFlags are registered on the `security` subcommand.
var SecurityFlags = []cli.Flag{
	SecurityPhase,
	SkipDynamic,
}

// LoadFlags are registered on the `load` subcommand.
var LoadFlags = []cli.Flag{
	LoadType,
	LoadUsers,
	LoadSpawnRate,
	LoadDuration,
	LoadMonitor,
	LoadExternal,
}

// CheckLayer validates the layer selector before any stage executes.
func CheckLayer(ctx *cli.Context) error {
	layer := ctx.Int(Layer.Name)
	if layer == 0 {
		return nil // full pipeline
	}
	if layer < 1 || layer > 5 {
		return fmt.Errorf("invalid layer %d: must be between 1 and 5", layer)
	}
	return nil
}

// CheckDuration rejects negative durations up front so the load driver
// never starts a run it cannot bound.
func CheckDuration(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration %s: must not be negative", d)
	}
	return nil
}
