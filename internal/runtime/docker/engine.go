// Package docker implements the container lifecycle on top of the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

var _ ports.ContainerRuntime = (*Engine)(nil)

// stoppedStates are the container states the reaper may collect.
var stoppedStates = []string{"exited", "dead", "created"}

// Engine creates container runs and exposes the container inventory.
type Engine struct {
	cli    dockerClient
	cfg    Config
	images *imagePuller
	log    *zap.Logger
}

// New constructs an Engine connected to the Docker daemon described by the environment.
func New(cfg Config, log *zap.Logger) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runtime: create client: %w", err)
	}
	return newEngineWithClient(cli, cfg, log), nil
}

func newEngineWithClient(cli dockerClient, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cli:    cli,
		cfg:    cfg.withDefaults(),
		images: newImagePuller(cli),
		log:    log.Named("docker"),
	}
}

// NewRun prepares the lifecycle of one run. No engine call is made until Provision.
func (e *Engine) NewRun(spec execution.LanguageSpec, ws execution.Workspace, limits execution.RunLimits, args string) ports.ContainerRun {
	return &Run{
		engine: e,
		name:   namePrefix + uuid.NewString(),
		spec:   spec,
		ws:     ws,
		limits: limits.Normalize(),
		args:   args,
		state:  execution.RunStateProvisioning,
	}
}

// ListStopped lists containers in a stopped state. When managedOnly is set
// only containers carrying the engine label are returned.
func (e *Engine) ListStopped(ctx context.Context, managedOnly bool) ([]execution.ContainerInfo, error) {
	args := filters.NewArgs()
	for _, state := range stoppedStates {
		args.Add("status", state)
	}
	if managedOnly {
		args.Add("label", e.cfg.Label+"=true")
	}

	containers, err := e.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	infos := make([]execution.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		infos = append(infos, containerInfo(c))
	}
	return infos, nil
}

// Remove force-removes a container. A container that no longer exists is not an error.
func (e *Engine) Remove(ctx context.Context, id string) error {
	err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// Info reports the Docker daemon version.
func (e *Engine) Info(ctx context.Context) (execution.EngineInfo, error) {
	v, err := e.cli.ServerVersion(ctx)
	if err != nil {
		return execution.EngineInfo{}, fmt.Errorf("docker version: %w", err)
	}
	return execution.EngineInfo{
		Version:       v.Version,
		APIVersion:    v.APIVersion,
		OS:            v.Os,
		Arch:          v.Arch,
		KernelVersion: v.KernelVersion,
		GoVersion:     v.GoVersion,
		Experimental:  v.Experimental,
		ServerVersion: v.Platform.Name,
	}, nil
}

// Close releases the Docker client.
func (e *Engine) Close() error {
	if err := e.cli.Close(); err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	return nil
}

// removeStale force-removes a container left over under name, if any.
func (e *Engine) removeStale(ctx context.Context, name string) error {
	info, err := e.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("inspect %s: %w", name, err)
	}

	id := name
	if info.ContainerJSONBase != nil && info.ID != "" {
		id = info.ID
	}
	e.log.Warn("removing stale container with colliding name", zap.String("name", name), zap.String("id", id))
	return e.Remove(ctx, id)
}

func containerInfo(c types.Container) execution.ContainerInfo {
	name := c.ID
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return execution.ContainerInfo{
		ID:        c.ID,
		Name:      name,
		State:     c.State,
		CreatedAt: time.Unix(c.Created, 0),
	}
}
