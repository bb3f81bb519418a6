package ports

import (
	"context"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

// ContainerRuntime creates per-run container lifecycles.
type ContainerRuntime interface {
	NewRun(spec execution.LanguageSpec, ws execution.Workspace, limits execution.RunLimits, args string) ContainerRun
}

// ContainerRun drives one isolated run environment through its lifecycle.
//
// Provision, Start and Execute must be called in order. Teardown is safe to
// call in any state and never fails.
type ContainerRun interface {
	Name() string
	State() execution.RunState
	Provision(ctx context.Context) error
	Start(ctx context.Context) error
	Execute(ctx context.Context) (execution.RunResult, error)
	Teardown(ctx context.Context)
}
