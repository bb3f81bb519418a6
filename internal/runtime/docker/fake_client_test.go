package docker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeDockerClient struct {
	mu          sync.Mutex
	nextID      int
	imagePulls  []string
	pullErr     error
	createCalls []containerCreateCall
	createErr   error
	startCalls  []string
	startErrs   []error
	inspect     map[string]types.ContainerJSON
	execScripts map[string]execScript
	execCalls   []execCall
	execConns   []*fakeConn
	removeCalls []string
	removeErrs  map[string]error
	stopCalls   []string
	listed      []types.Container
	listOptions []container.ListOptions
	version     types.Version
	createHooks []func(string)
	closed      bool
}

type containerCreateCall struct {
	id         string
	name       string
	config     *container.Config
	hostConfig *container.HostConfig
}

type execCall struct {
	containerID string
	options     container.ExecOptions
}

// execScript describes how a fake exec behaves.
type execScript struct {
	stdout    string
	stderr    string
	exitCode  int
	block     bool
	running   bool
	createErr error
}

func newFakeDockerClient() *fakeDockerClient {
	return &fakeDockerClient{
		inspect:     make(map[string]types.ContainerJSON),
		execScripts: make(map[string]execScript),
		removeErrs:  make(map[string]error),
	}
}

func (f *fakeDockerClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDockerClient) ServerVersion(ctx context.Context) (types.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, nil
}

func (f *fakeDockerClient) ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imagePulls = append(f.imagePulls, ref)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(bytes.NewReader([]byte(`{"status":"done"}`))), nil
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	if f.createErr != nil {
		err := f.createErr
		f.mu.Unlock()
		return container.CreateResponse{}, err
	}
	id := fmt.Sprintf("container-%d", f.nextID)
	f.nextID++
	f.createCalls = append(f.createCalls, containerCreateCall{id: id, name: containerName, config: config, hostConfig: hostConfig})
	hook := popHook(&f.createHooks)
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}

	return container.CreateResponse{ID: id}, nil
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, containerID)
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		return err
	}
	return nil
}

func (f *fakeDockerClient) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.inspect[containerID]
	if !ok {
		return types.ContainerJSON{}, errdefs.NotFound(fmt.Errorf("no such container: %s", containerID))
	}
	return info, nil
}

func (f *fakeDockerClient) ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (types.IDResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execCalls = append(f.execCalls, execCall{containerID: containerID, options: options})
	if script := f.execScripts[containerID]; script.createErr != nil {
		return types.IDResponse{}, script.createErr
	}
	return types.IDResponse{ID: "exec-" + containerID}, nil
}

func (f *fakeDockerClient) ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error) {
	f.mu.Lock()
	script := f.execScripts[containerIDFromExec(execID)]
	f.mu.Unlock()

	if script.block {
		pr, pw := io.Pipe()
		conn := &fakeConn{onClose: func() { _ = pw.Close() }}
		f.mu.Lock()
		f.execConns = append(f.execConns, conn)
		f.mu.Unlock()
		return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(pr)}, nil
	}

	conn := &fakeConn{}
	f.mu.Lock()
	f.execConns = append(f.execConns, conn)
	f.mu.Unlock()
	return types.HijackedResponse{
		Conn:   conn,
		Reader: bufio.NewReader(bytes.NewReader(multiplex(script.stdout, script.stderr))),
	}, nil
}

func (f *fakeDockerClient) ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.execScripts[containerIDFromExec(execID)]
	return container.ExecInspect{ExecID: execID, Running: script.running, ExitCode: script.exitCode}, nil
}

func (f *fakeDockerClient) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOptions = append(f.listOptions, options)
	return append([]types.Container(nil), f.listed...), nil
}

func (f *fakeDockerClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.mu.Lock()
	f.stopCalls = append(f.stopCalls, containerID)
	f.mu.Unlock()
	return nil
}

func (f *fakeDockerClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, containerID)
	if err := f.removeErrs[containerID]; err != nil {
		return err
	}
	delete(f.inspect, containerID)
	return nil
}

func (f *fakeDockerClient) setExecScript(containerID string, script execScript) {
	f.mu.Lock()
	f.execScripts[containerID] = script
	f.mu.Unlock()
}

func (f *fakeDockerClient) setInspect(key string, info types.ContainerJSON) {
	f.mu.Lock()
	f.inspect[key] = info
	f.mu.Unlock()
}

func (f *fakeDockerClient) setRunning(containerID string, running bool) {
	f.setInspect(containerID, types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    containerID,
			State: &types.ContainerState{Running: running},
		},
	})
}

func (f *fakeDockerClient) onCreate(hook func(string)) {
	f.mu.Lock()
	f.createHooks = append(f.createHooks, hook)
	f.mu.Unlock()
}

func (f *fakeDockerClient) removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removeCalls...)
}

func containerIDFromExec(execID string) string {
	const prefix = "exec-"
	if len(execID) > len(prefix) {
		return execID[len(prefix):]
	}
	return execID
}

func multiplex(stdout, stderr string) []byte {
	var buf bytes.Buffer
	if stdout != "" {
		w := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
		_, _ = w.Write([]byte(stdout))
	}
	if stderr != "" {
		w := stdcopy.NewStdWriter(&buf, stdcopy.Stderr)
		_, _ = w.Write([]byte(stderr))
	}
	return buf.Bytes()
}

func popHook(hooks *[]func(string)) func(string) {
	if len(*hooks) == 0 {
		return nil
	}
	hook := (*hooks)[0]
	*hooks = (*hooks)[1:]
	return hook
}

var errFake = errors.New("fake failure")

type fakeConn struct {
	mu      sync.Mutex
	closed  bool
	onClose func()
}

func (c *fakeConn) Read([]byte) (int, error)    { return 0, io.EOF }
func (c *fakeConn) Write(p []byte) (int, error) { return len(p), nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && c.onClose != nil {
		c.onClose()
	}
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) LocalAddr() net.Addr              { return fakeAddr("local") }
func (c *fakeConn) RemoteAddr() net.Addr             { return fakeAddr("remote") }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return string(a) }
func (a fakeAddr) String() string  { return string(a) }
