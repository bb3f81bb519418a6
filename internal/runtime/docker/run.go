package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/errdefs"
	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/ports"
	runtimex "github.com/cuervolu/cortex-engine/internal/runtime"
)

const (
	teardownTimeout   = 30 * time.Second
	execInspectTries  = 5
	execInspectPeriod = 20 * time.Millisecond
)

var _ ports.ContainerRun = (*Run)(nil)

// Run is the lifecycle of one container:
// provisioning, started, executing, then succeeded, failed or timed out.
type Run struct {
	engine *Engine
	name   string
	spec   execution.LanguageSpec
	ws     execution.Workspace
	limits execution.RunLimits
	args   string

	mu    sync.Mutex
	id    string
	state execution.RunState
}

// Name returns the generated container name.
func (r *Run) Name() string {
	return r.name
}

// State returns the current lifecycle state.
func (r *Run) State() execution.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) setState(s execution.RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Run) containerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Provision creates the container with the workspace mounted and starts it
// idling, ready for exec.
func (r *Run) Provision(ctx context.Context) error {
	e := r.engine
	if err := e.removeStale(ctx, r.name); err != nil {
		return fmt.Errorf("%w: %w", execution.ErrContainerCreation, err)
	}

	if e.cfg.PullImages {
		if err := e.images.ensure(ctx, r.spec.Image); err != nil {
			return fmt.Errorf("%w: %w", execution.ErrContainerCreation, err)
		}
	}

	hostConfig := &container.HostConfig{
		Resources: hostResources(r.limits),
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: r.ws.CodeDir, Target: e.cfg.CodeMount},
			{Type: mount.TypeBind, Source: r.ws.StdinDir, Target: e.cfg.StdinMount},
		},
	}

	resp, err := e.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:      r.spec.Image,
			Cmd:        e.cfg.KeepAlive,
			WorkingDir: e.cfg.CodeMount,
			Labels: map[string]string{
				e.cfg.Label:               "true",
				e.cfg.Label + ".language": r.spec.Name,
			},
		},
		hostConfig,
		nil,
		nil,
		r.name,
	)
	if err != nil {
		return fmt.Errorf("%w: create container %s: %w", execution.ErrContainerCreation, r.name, err)
	}

	r.mu.Lock()
	r.id = resp.ID
	r.mu.Unlock()

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil && !errdefs.IsNotModified(err) {
		return fmt.Errorf("%w: start container %s: %w", execution.ErrContainerCreation, r.name, err)
	}

	e.log.Debug("container provisioned",
		zap.String("name", r.name),
		zap.String("id", resp.ID),
		zap.String("image", r.spec.Image),
	)
	return nil
}

// Start makes sure the container is running. Starting a container that is
// already running is a no-op.
func (r *Run) Start(ctx context.Context) error {
	id := r.containerID()
	if id == "" {
		return fmt.Errorf("%w: container %s was not provisioned", execution.ErrContainerStart, r.name)
	}

	e := r.engine
	info, err := e.cli.ContainerInspect(ctx, id)
	if err == nil && info.ContainerJSONBase != nil && info.State != nil && info.State.Running {
		e.log.Debug("container already running", zap.String("name", r.name))
		r.setState(execution.RunStateStarted)
		return nil
	}

	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		if !errdefs.IsNotModified(err) {
			return fmt.Errorf("%w: %s: %w", execution.ErrContainerStart, r.name, err)
		}
		e.log.Debug("container start not modified", zap.String("name", r.name))
	}

	r.setState(execution.RunStateStarted)
	return nil
}

// Execute runs the language command inside the started container and
// collects its output until it completes or the run timeout elapses.
func (r *Run) Execute(ctx context.Context) (execution.RunResult, error) {
	if state := r.State(); state != execution.RunStateStarted {
		return execution.RunResult{State: state}, fmt.Errorf("execute in state %s", state)
	}
	r.setState(execution.RunStateExecuting)

	e := r.engine
	id := r.containerID()
	cmd := runtimex.BuildCommand(r.spec, e.cfg.StdinMount, r.ws.CodeFile, r.ws.StdinFile, r.args)

	created, err := e.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", cmd},
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   e.cfg.CodeMount,
	})
	if err != nil {
		return r.fail(fmt.Errorf("create exec: %w", err))
	}

	attach, err := e.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return r.fail(fmt.Errorf("attach exec: %w", err))
	}
	defer attach.Close()

	start := time.Now()
	stream := newChunkStream(attach.Reader)
	defer stream.Close()

	waitCtx := ctx
	var cancel context.CancelFunc
	if r.limits.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, r.limits.Timeout)
	}
	var stdout, stderr bytes.Buffer
	err = collect(waitCtx, stream, &stdout, &stderr)
	if cancel != nil {
		cancel()
	}

	result := execution.RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			r.setState(execution.RunStateTimedOut)
			result.State = execution.RunStateTimedOut
			e.log.Info("execution timed out", zap.String("name", r.name), zap.Duration("timeout", r.limits.Timeout))
			return result, fmt.Errorf("%w: exceeded %s", execution.ErrExecutionTimeout, r.limits.Timeout)
		}
		r.setState(execution.RunStateFailed)
		result.State = execution.RunStateFailed
		return result, fmt.Errorf("read exec output: %w", err)
	}

	inspectCtx := ctx
	if inspectCtx.Err() != nil {
		inspectCtx = context.Background()
	}
	if code, ok := r.exitCode(inspectCtx, created.ID); ok {
		result.ExitCode = code
	}

	result.State = execution.RunStateFailed
	if result.ExitCode == 0 {
		result.State = execution.RunStateSucceeded
	}
	r.setState(result.State)
	return result, nil
}

// exitCode inspects the exec until it reports completion. ok is false when
// no exit code could be obtained.
func (r *Run) exitCode(ctx context.Context, execID string) (int, bool) {
	for attempt := 1; ; attempt++ {
		inspect, err := r.engine.cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			r.engine.log.Warn("inspect exec failed", zap.String("name", r.name), zap.Error(err))
			return 0, false
		}
		if !inspect.Running {
			return inspect.ExitCode, true
		}
		if attempt >= execInspectTries {
			return 0, false
		}
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(execInspectPeriod):
		}
	}
}

// Teardown removes the container. When removal fails the container is
// stopped so the reaper collects it later. Errors are only logged.
func (r *Run) Teardown(ctx context.Context) {
	id := r.containerID()
	if id == "" {
		return
	}

	if ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, teardownTimeout)
	defer cancel()

	e := r.engine
	if err := e.Remove(ctx, id); err != nil {
		e.log.Warn("failed to remove container", zap.String("name", r.name), zap.Error(err))
		if stopErr := e.cli.ContainerStop(ctx, id, container.StopOptions{}); stopErr != nil {
			e.log.Warn("failed to stop container", zap.String("name", r.name), zap.Error(stopErr))
		}
		return
	}
	e.log.Debug("container removed", zap.String("name", r.name))
}

func (r *Run) fail(err error) (execution.RunResult, error) {
	r.setState(execution.RunStateFailed)
	return execution.RunResult{State: execution.RunStateFailed, ExitCode: -1}, err
}

func collect(ctx context.Context, stream *ChunkStream, stdout, stderr io.Writer) error {
	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch chunk.Stream {
		case Stderr:
			_, _ = stderr.Write(chunk.Data)
		default:
			_, _ = stdout.Write(chunk.Data)
		}
	}
}
