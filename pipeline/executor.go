package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

var _ Executor = (*commandExecutor)(nil)

// Executor runs external tools on behalf of pipeline stages and drivers.
// It captures output, applies timeouts and reports exit codes without
// deciding pass/fail; that verdict belongs to the caller.
type Executor interface {
	Run(ctx context.Context, spec ExecSpec) (*ExecResult, error)
}

// ExecSpec describes one external tool invocation.
type ExecSpec struct {
	Name    string // label used in logs
	Program string
	Args    []string
	Dir     string
	Env     []string // child environment; nil inherits the parent's
	Timeout time.Duration

	// Mirror receives a copy of combined stdout/stderr as it is produced,
	// typically a per-stage log file.
	Mirror io.Writer
}

// ExecResult holds the outcome of one tool invocation. A non-zero exit
// code is not an error here; Run only errors when the process could not
// be started or cancelled cleanly.
type ExecResult struct {
	ExitCode int
	Stdout   string // tail of stdout only, kept clean for report parsing
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Ok reports whether the tool exited zero.
func (r *ExecResult) Ok() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// commandExecutor implements Executor on top of os/exec.
type commandExecutor struct {
	cmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())
}

// NewExecutor creates a command executor using os/exec directly.
func NewExecutor() Executor {
	return &commandExecutor{
		cmdBuilder: func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
			return exec.CommandContext(ctx, name, arg...), func() {}
		},
	}
}

// NewExecutorWithBuilder creates an executor with a custom command builder.
// Tests use this to substitute the spawned process.
func NewExecutorWithBuilder(builder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())) Executor {
	return &commandExecutor{cmdBuilder: builder}
}

func (e *commandExecutor) Run(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if spec.Program == "" {
		return nil, fmt.Errorf("program cannot be empty")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd, cleanup := e.cmdBuilder(runCtx, spec.Program, spec.Args...)
	defer cleanup()

	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if spec.Env != nil {
		cmd.Env = spec.Env
	}

	stdoutTail := newTailBuffer(defaultStdoutTailBytes)
	var stderrBuf bytes.Buffer

	// Stderr never bleeds into the stdout capture: callers persist Stdout
	// as machine-readable tool output, and warnings on stderr would
	// corrupt it. The mirror still sees both streams interleaved.
	stdout := io.Writer(stdoutTail)
	stderr := io.Writer(&stderrBuf)
	if spec.Mirror != nil {
		stdout = io.MultiWriter(stdoutTail, spec.Mirror)
		stderr = io.MultiWriter(&stderrBuf, spec.Mirror)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	startTime := time.Now()
	runErr := cmd.Run()
	duration := time.Since(startTime)

	result := &ExecResult{
		Stdout:   stdoutTail.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	if runErr != nil {
		exitErr := &exec.ExitError{}
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if result.TimedOut {
			result.ExitCode = -1
			return result, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", spec.Program, runErr)
	}

	return result, nil
}
