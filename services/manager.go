// Package services manages the containerized database and cache the
// integration and end-to-end stages depend on. It brings them up through
// docker compose, gates readiness on each service's native probe with a
// bounded polling loop, and guarantees teardown on every exit path.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopfront/stagerunner/pipeline"
)

// State is the lifecycle state of the managed service set.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateInUse    State = "in_use"
	StateStopping State = "stopping"
)

// Prober is a service-specific readiness check.
type Prober interface {
	Name() string
	Probe(ctx context.Context) error
	Timeout() time.Duration
	PollInterval() time.Duration
}

// Config contains manager configuration.
type Config struct {
	Log         *slog.Logger
	Executor    pipeline.Executor
	ComposeFile string
	WorkDir     string
	Probers     []Prober

	// LogTail is how many log lines to capture per service when a probe
	// times out.
	LogTail int
}

// Manager owns the compose service set for the duration of a stage.
type Manager struct {
	cfg Config

	mu    sync.Mutex
	state State

	// sleep is a test hook for the polling loop.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ pipeline.ServiceManager = (*Manager)(nil)

// NewManager creates a service lifecycle manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.ComposeFile == "" {
		return nil, fmt.Errorf("compose file is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.LogTail <= 0 {
		cfg.LogTail = 100
	}
	return &Manager{
		cfg:   cfg,
		state: StateStopped,
		sleep: sleepCtx,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Up starts the service set and blocks until every readiness probe
// succeeds. On any failure (including probe timeout) the services are torn
// down before the error is returned, so a failed Up never leaks containers.
func (m *Manager) Up(ctx context.Context) error {
	m.setState(StateStarting)
	m.cfg.Log.Info("Starting test services", "compose_file", m.cfg.ComposeFile)

	if err := m.compose(ctx, "up", "-d"); err != nil {
		m.teardown()
		return fmt.Errorf("failed to start services: %w", err)
	}

	for _, p := range m.cfg.Probers {
		if err := m.waitReady(ctx, p); err != nil {
			m.captureLogs(p.Name())
			m.teardown()
			return err
		}
	}

	m.setState(StateReady)
	m.cfg.Log.Info("All test services ready")
	m.setState(StateInUse)
	return nil
}

// waitReady polls the probe at its fixed interval until it succeeds or its
// wall-clock timeout elapses. The service is never reported ready before a
// probe actually succeeds.
func (m *Manager) waitReady(ctx context.Context, p Prober) error {
	deadline := time.Now().Add(p.Timeout())
	m.cfg.Log.Info("Waiting for service", "service", p.Name(), "timeout", p.Timeout())

	var lastErr error
	for {
		probeCtx, cancel := context.WithTimeout(ctx, p.PollInterval())
		lastErr = p.Probe(probeCtx)
		cancel()
		if lastErr == nil {
			m.cfg.Log.Info("Service ready", "service", p.Name())
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("service %s not ready after %s: %w", p.Name(), p.Timeout(), lastErr)
		}
		if err := m.sleep(ctx, p.PollInterval()); err != nil {
			return fmt.Errorf("readiness wait for %s interrupted: %w", p.Name(), err)
		}
	}
}

// Down tears down the service set and its ephemeral volumes. It is
// idempotent and safe to call regardless of the current state.
func (m *Manager) Down(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	m.mu.Unlock()

	m.cfg.Log.Info("Stopping test services")
	err := m.compose(ctx, "down", "-v", "--remove-orphans")
	m.setState(StateStopped)
	if err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}
	return nil
}

// teardown is the internal unconditional cleanup used on failed startup.
func (m *Manager) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := m.Down(ctx); err != nil {
		m.cfg.Log.Error("Teardown after failed startup did not complete", "error", err)
	}
}

// captureLogs grabs the tail of a service's container logs for diagnostics
// before teardown destroys them.
func (m *Manager) captureLogs(service string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := m.cfg.Executor.Run(ctx, pipeline.ExecSpec{
		Name:    "compose-logs",
		Program: "docker",
		Args:    []string{"compose", "-f", m.cfg.ComposeFile, "logs", "--tail", fmt.Sprint(m.cfg.LogTail), service},
		Dir:     m.cfg.WorkDir,
	})
	if err != nil || !result.Ok() {
		m.cfg.Log.Warn("Could not capture service logs", "service", service, "error", err)
		return
	}
	m.cfg.Log.Error("Service failed readiness, captured logs", "service", service, "logs", result.Stdout)
}

func (m *Manager) compose(ctx context.Context, args ...string) error {
	fullArgs := append([]string{"compose", "-f", m.cfg.ComposeFile}, args...)
	result, err := m.cfg.Executor.Run(ctx, pipeline.ExecSpec{
		Name:    "compose-" + args[0],
		Program: "docker",
		Args:    fullArgs,
		Dir:     m.cfg.WorkDir,
	})
	if err != nil {
		return err
	}
	if !result.Ok() {
		return fmt.Errorf("docker compose %s failed with exit code %d: %s", args[0], result.ExitCode, result.Stderr)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
