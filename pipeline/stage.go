package pipeline

import (
	"time"

	"github.com/shopfront/stagerunner/registry"
	"github.com/shopfront/stagerunner/types"
)

// DefaultStageTimeout bounds each external command when the stage does not
// declare its own timeout.
const DefaultStageTimeout = 30 * time.Minute

// InternalCommandPrefix marks commands the runner executes in-process
// instead of spawning an external tool (e.g. "internal:validate").
const InternalCommandPrefix = "internal:"

// Stage is one resolved pipeline layer ready for execution.
type Stage struct {
	ID               types.StageID
	Name             string
	Commands         []registry.CommandConfig
	RequiresServices bool
	Artifacts        []types.ArtifactSpec
	Timeout          time.Duration
}

// NewStage resolves a registry stage configuration into an executable stage.
func NewStage(cfg registry.StageConfig) Stage {
	id := types.StageID(cfg.ID)
	name := cfg.Name
	if name == "" {
		name = id.Name()
	}
	timeout := DefaultStageTimeout
	if cfg.Timeout != nil {
		timeout = *cfg.Timeout
	}
	return Stage{
		ID:               id,
		Name:             name,
		Commands:         cfg.Commands,
		RequiresServices: cfg.RequiresServices,
		Artifacts:        cfg.Artifacts,
		Timeout:          timeout,
	}
}
