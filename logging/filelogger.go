// Package logging persists the raw output of each pipeline stage under a
// per-run directory so failures can be inspected after the containers and
// the console scrollback are gone.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/shopfront/stagerunner/pipeline"
	"github.com/shopfront/stagerunner/types"
)

// RunDirectoryPrefix is the standardized prefix for run directories.
const RunDirectoryPrefix = "testrun-"

// FileLogger writes per-stage log files under <baseDir>/testrun-<runID>/,
// plus a combined all.log. Tool output is ANSI-stripped before it lands on
// disk.
type FileLogger struct {
	baseDir string

	mu   sync.Mutex
	open map[string]*os.File // combined log per runID
}

var _ pipeline.LogSink = (*FileLogger)(nil)

// NewFileLogger creates a file logger rooted at baseDir.
func NewFileLogger(baseDir string) (*FileLogger, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", baseDir, err)
	}
	return &FileLogger{
		baseDir: baseDir,
		open:    map[string]*os.File{},
	}, nil
}

// RunDir returns the log directory for a run.
func (l *FileLogger) RunDir(runID string) string {
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID)
}

// StageLog opens the log file for one stage of a run. The returned writer
// strips ANSI escape sequences and also appends to the run's combined log.
func (l *FileLogger) StageLog(runID string, stage types.StageID) (io.WriteCloser, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	runDir := l.RunDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", runDir, err)
	}

	f, err := os.Create(filepath.Join(runDir, safeFilename(stage.Slug())+".log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stage log: %w", err)
	}

	combined, err := l.combinedLog(runID, runDir)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	header := fmt.Sprintf("=== %s ===\n", stage.Name())
	if _, err := combined.WriteString(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &stripWriter{stage: f, combined: combined}, nil
}

func (l *FileLogger) combinedLog(runID, runDir string) (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.open[runID]; ok {
		return f, nil
	}
	f, err := os.Create(filepath.Join(runDir, "all.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create combined log: %w", err)
	}
	l.open[runID] = f
	return f, nil
}

// Complete closes the run's combined log.
func (l *FileLogger) Complete(runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.open[runID]
	if !ok {
		return nil
	}
	delete(l.open, runID)
	return f.Close()
}

// stripWriter removes ANSI escape sequences and fans writes out to the
// stage file and the combined log. Closing it closes only the stage file;
// the combined log stays open for the rest of the run.
type stripWriter struct {
	stage    *os.File
	combined *os.File
	mu       sync.Mutex
}

func (w *stripWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	clean := stripansi.Strip(string(p))
	if _, err := w.stage.WriteString(clean); err != nil {
		return 0, err
	}
	if _, err := w.combined.WriteString(clean); err != nil {
		return 0, err
	}
	// Report the original length so callers using io.MultiWriter-style
	// accounting do not see short writes.
	return len(p), nil
}

func (w *stripWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage.Close()
}

// safeFilename replaces characters that are awkward in filenames.
func safeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		" ", "_",
	)
	return replacer.Replace(name)
}
