// Package registry loads and validates the pipeline configuration.
//
// The configuration file (pipeline.yaml) declares the five stages, the
// commands they run, the artifacts they are expected to produce, service
// connection parameters and the metric/target tables used by the report
// aggregator. Every field has a sensible default so the runner works on a
// plain checkout without a config file.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shopfront/stagerunner/types"
)

// Registry manages the pipeline configuration.
type Registry struct {
	config Config
	pc     *PipelineConfig
	mu     sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log        *slog.Logger
	ConfigFile string // optional; defaults apply when empty or missing

	// ReportsDir is threaded into the default stage commands so the tools
	// write where the artifact scan reads. Commands from pipeline.yaml are
	// taken verbatim and must reference the same directory themselves.
	ReportsDir string
}

// CommandConfig describes one external tool invocation within a stage.
type CommandConfig struct {
	Name    string   `yaml:"name"`
	Program string   `yaml:"program"`
	Args    []string `yaml:"args,omitempty"`

	// AllowFailure tolerates a non-zero exit from the tool; the verdict is
	// derived later from the captured output instead.
	AllowFailure bool `yaml:"allow_failure,omitempty"`
}

// StageConfig declares one pipeline stage.
type StageConfig struct {
	ID               int                  `yaml:"id"`
	Name             string               `yaml:"name,omitempty"`
	Commands         []CommandConfig      `yaml:"commands"`
	RequiresServices bool                 `yaml:"requires_services,omitempty"`
	Artifacts        []types.ArtifactSpec `yaml:"artifacts,omitempty"`
	Timeout          *time.Duration       `yaml:"timeout,omitempty"`
}

// DatabaseConfig holds the test database connection and probe parameters.
type DatabaseConfig struct {
	Service      string        `yaml:"service"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DSN returns the connection string used by the readiness probe.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// CacheConfig holds the test cache connection and probe parameters.
type CacheConfig struct {
	Service      string        `yaml:"service"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	DB           int           `yaml:"db"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// URL returns the redis URL used by the readiness probe.
func (c CacheConfig) URL() string {
	return fmt.Sprintf("redis://%s:%d/%d", c.Host, c.Port, c.DB)
}

// PipelineConfig is the root of pipeline.yaml.
type PipelineConfig struct {
	ComposeFile    string                        `yaml:"compose_file"`
	SettingsModule string                        `yaml:"settings_module"`
	RequiredTools  []string                      `yaml:"required_tools"`
	AppBaseURL     string                        `yaml:"app_base_url"`
	Stages         []StageConfig                 `yaml:"stages"`
	Database       DatabaseConfig                `yaml:"database"`
	Cache          CacheConfig                   `yaml:"cache"`
	LoadTargets    types.LoadTargets             `yaml:"load_targets"`
	SecurityGates  map[string]types.SecurityGate `yaml:"security_gates"`

	// ValidationFiles are checked for presence and YAML syntax by the
	// pipeline-validation stage. They are never executed.
	ValidationFiles []string `yaml:"validation_files"`
}

// NewRegistry creates a registry, merging pipeline.yaml over the built-in
// defaults when the file exists.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	r := &Registry{config: cfg}
	if err := r.load(cfg.ConfigFile); err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}
	cfg.Log.Debug("Registry loaded", "stages", len(r.pc.Stages), "configFile", cfg.ConfigFile)
	return r, nil
}

func (r *Registry) load(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc := DefaultPipelineConfig(r.config.ReportsDir)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to read config %s: %w", path, err)
			}
			r.config.Log.Info("No pipeline config found, using defaults", "path", path)
		} else {
			if err := yaml.Unmarshal(data, pc); err != nil {
				return fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := validate(pc); err != nil {
		return err
	}
	r.pc = pc
	return nil
}

// validate checks the merged configuration for contradictions before any
// stage runs.
func validate(pc *PipelineConfig) error {
	if len(pc.Stages) == 0 {
		return fmt.Errorf("no stages configured")
	}
	seen := make(map[int]bool)
	for _, st := range pc.Stages {
		if _, err := types.ParseStageID(st.ID); err != nil {
			return fmt.Errorf("stage %q: %w", st.Name, err)
		}
		if seen[st.ID] {
			return fmt.Errorf("duplicate stage id %d", st.ID)
		}
		seen[st.ID] = true
		if len(st.Commands) == 0 {
			return fmt.Errorf("stage %d has no commands", st.ID)
		}
		for _, c := range st.Commands {
			if c.Program == "" {
				return fmt.Errorf("stage %d command %q has no program", st.ID, c.Name)
			}
		}
	}
	if pc.Database.Timeout <= 0 || pc.Database.PollInterval <= 0 {
		return fmt.Errorf("database probe timeout and poll interval must be positive")
	}
	if pc.Cache.Timeout <= 0 || pc.Cache.PollInterval <= 0 {
		return fmt.Errorf("cache probe timeout and poll interval must be positive")
	}
	return nil
}

// Pipeline returns the full merged configuration.
func (r *Registry) Pipeline() *PipelineConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pc
}

// Stage returns the configuration for a single stage.
func (r *Registry) Stage(id types.StageID) (StageConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, st := range r.pc.Stages {
		if types.StageID(st.ID) == id {
			return st, nil
		}
	}
	return StageConfig{}, fmt.Errorf("stage %d is not configured", int(id))
}

// Stages returns all stage configurations in execution order (1..5).
func (r *Registry) Stages() []StageConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := make([]StageConfig, 0, len(r.pc.Stages))
	for _, id := range types.AllStageIDs {
		for _, st := range r.pc.Stages {
			if types.StageID(st.ID) == id {
				ordered = append(ordered, st)
			}
		}
	}
	return ordered
}
