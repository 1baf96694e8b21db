// Package load drives the locust load generator with fixed traffic
// profiles and classifies the captured statistics against the configured
// performance targets.
//
// Like the security drivers, invocation and classification are separate:
// locust's exit code is tolerated (it exits non-zero whenever any request
// failed), and the verdict comes from parsing the stats CSV it wrote.
package load

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopfront/stagerunner/pipeline"
	"github.com/shopfront/stagerunner/types"
)

// Profile is a named traffic shape.
type Profile struct {
	Name      string
	Users     int
	SpawnRate int
	Duration  time.Duration
}

// Profiles are the supported traffic shapes, mildest first.
var Profiles = map[string]Profile{
	"smoke":    {Name: "smoke", Users: 10, SpawnRate: 2, Duration: time.Minute},
	"baseline": {Name: "baseline", Users: 50, SpawnRate: 5, Duration: 5 * time.Minute},
	"stress":   {Name: "stress", Users: 200, SpawnRate: 20, Duration: 10 * time.Minute},
	"spike":    {Name: "spike", Users: 500, SpawnRate: 50, Duration: 3 * time.Minute},
}

// Options are the per-run overrides taken from the command line. Zero
// values fall back to the selected profile.
type Options struct {
	Type      string
	Users     int
	SpawnRate int
	Duration  time.Duration
	Monitor   bool
	External  string // external target host; empty means the local app
}

// Config contains load driver configuration.
type Config struct {
	Log        *slog.Logger
	Executor   pipeline.Executor
	WorkDir    string
	ReportsDir string
	TargetURL  string
	Locustfile string
	Targets    types.LoadTargets
}

// Driver invokes locust and classifies its output.
type Driver struct {
	cfg     Config
	sampler *Sampler
}

// NewDriver creates a load test driver.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "test-reports"
	}
	if cfg.TargetURL == "" {
		cfg.TargetURL = "http://localhost:8000"
	}
	if cfg.Locustfile == "" {
		cfg.Locustfile = filepath.Join("tests", "load", "locustfile.py")
	}
	return &Driver{
		cfg:     cfg,
		sampler: NewSampler(cfg.Log, filepath.Join(cfg.ReportsDir, "system-metrics.csv")),
	}, nil
}

// resolve merges the command-line overrides over the selected profile.
func resolve(opts Options) (Profile, error) {
	name := opts.Type
	if name == "" {
		name = "baseline"
	}
	profile, ok := Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown load profile %q: must be one of smoke, baseline, stress, spike", name)
	}
	if opts.Users > 0 {
		profile.Users = opts.Users
	}
	if opts.SpawnRate > 0 {
		profile.SpawnRate = opts.SpawnRate
	}
	if opts.Duration > 0 {
		profile.Duration = opts.Duration
	}
	return profile, nil
}

// Run invokes the load generator with the resolved profile, optionally
// sampling system metrics alongside, then classifies the captured stats.
func (d *Driver) Run(ctx context.Context, opts Options) (*Result, error) {
	profile, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	target := d.cfg.TargetURL
	if opts.External != "" {
		target = opts.External
	}

	if err := os.MkdirAll(d.cfg.ReportsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	d.cfg.Log.Info("Starting load test",
		"profile", profile.Name,
		"users", profile.Users,
		"spawn_rate", profile.SpawnRate,
		"duration", profile.Duration,
		"target", target)

	csvPrefix := filepath.Join(d.cfg.ReportsDir, "locust")
	args := []string{
		"-f", d.cfg.Locustfile,
		"--headless",
		"--host", target,
		"--users", strconv.Itoa(profile.Users),
		"--spawn-rate", strconv.Itoa(profile.SpawnRate),
		"--run-time", formatRunTime(profile.Duration),
		"--csv", csvPrefix,
		"--html", filepath.Join(d.cfg.ReportsDir, "load-test-report.html"),
	}

	runCtx, stopSampling := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	var execResult *pipeline.ExecResult
	g.Go(func() error {
		defer stopSampling()
		var runErr error
		execResult, runErr = d.cfg.Executor.Run(gctx, pipeline.ExecSpec{
			Name:    "locust-" + profile.Name,
			Program: "locust",
			Args:    args,
			Dir:     d.cfg.WorkDir,
			Timeout: profile.Duration + 5*time.Minute,
		})
		return runErr
	})
	if opts.Monitor {
		g.Go(func() error {
			// Sampling errors are diagnostic only and must not fail the run.
			if err := d.sampler.Run(runCtx); err != nil {
				d.cfg.Log.Warn("System metrics sampling stopped", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		stopSampling()
		return nil, fmt.Errorf("failed to invoke locust: %w", err)
	}
	stopSampling()

	if execResult.ExitCode != 0 {
		// Locust exits non-zero when any request failed or a threshold
		// tripped; the verdict comes from the stats, not from this code.
		d.cfg.Log.Warn("Load generator exited non-zero, classifying captured stats",
			"exit_code", execResult.ExitCode)
	}

	d.normalizeArtifacts(csvPrefix)
	return d.Classify(profile)
}

// normalizeArtifacts renames locust's underscore-separated CSV outputs to
// the hyphenated names downstream CI steps expect.
func (d *Driver) normalizeArtifacts(csvPrefix string) {
	renames := map[string]string{
		csvPrefix + "_stats.csv":    filepath.Join(d.cfg.ReportsDir, "locust-stats.csv"),
		csvPrefix + "_failures.csv": filepath.Join(d.cfg.ReportsDir, "locust-failures.csv"),
	}
	for from, to := range renames {
		if err := os.Rename(from, to); err != nil && !os.IsNotExist(err) {
			d.cfg.Log.Warn("Could not rename locust artifact", "from", from, "error", err)
		}
	}
}

// formatRunTime renders a duration the way locust's --run-time expects,
// e.g. "5m" or "90s".
func formatRunTime(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
