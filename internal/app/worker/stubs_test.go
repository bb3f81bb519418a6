package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuervolu/cortex-engine/internal/catalog"
	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

type stubWorkspaces struct {
	mu          sync.Mutex
	provisioned []execution.Workspace
	released    [][]string
	err         error
	lastCode    []byte
	lastStdin   string
	inputs      map[string]string
}

func (w *stubWorkspaces) Provision(spec execution.LanguageSpec, code []byte, stdin string) (execution.Workspace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return execution.Workspace{}, w.err
	}
	w.lastCode = code
	w.lastStdin = stdin
	ws := execution.Workspace{
		Root:      fmt.Sprintf("/tmp/cortex-run-%d", len(w.provisioned)),
		CodeFile:  spec.CodeFileName(),
		StdinFile: "stdin.txt",
	}
	if w.inputs == nil {
		w.inputs = make(map[string]string)
	}
	w.inputs[ws.Root] = string(code) + "|" + stdin
	w.provisioned = append(w.provisioned, ws)
	return ws, nil
}

// input returns the code and stdin written to ws, joined by "|".
func (w *stubWorkspaces) input(ws execution.Workspace) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inputs[ws.Root]
}

func (w *stubWorkspaces) Release(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released = append(w.released, paths)
}

type stubRun struct {
	state        execution.RunState
	provisionErr error
	startErr     error
	result       execution.RunResult
	executeErr   error
	tornDown     bool
	block        bool
}

func (r *stubRun) Name() string              { return "cortex-test" }
func (r *stubRun) State() execution.RunState { return r.state }

func (r *stubRun) Provision(context.Context) error {
	r.state = execution.RunStateProvisioning
	return r.provisionErr
}

func (r *stubRun) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.state = execution.RunStateStarted
	return nil
}

func (r *stubRun) Execute(ctx context.Context) (execution.RunResult, error) {
	if r.block {
		<-ctx.Done()
		return execution.RunResult{State: execution.RunStateFailed}, ctx.Err()
	}
	r.state = r.result.State
	return r.result, r.executeErr
}

func (r *stubRun) Teardown(context.Context) { r.tornDown = true }

type stubRuntime struct {
	mu     sync.Mutex
	next   func() *stubRun
	runs   []*stubRun
	limits []execution.RunLimits
	args   []string
	// forWorkspace, when set, builds the run from its workspace.
	forWorkspace func(execution.Workspace) *stubRun
}

func (rt *stubRuntime) NewRun(_ execution.LanguageSpec, ws execution.Workspace, limits execution.RunLimits, args string) ports.ContainerRun {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	run := &stubRun{result: execution.RunResult{State: execution.RunStateSucceeded}}
	switch {
	case rt.forWorkspace != nil:
		run = rt.forWorkspace(ws)
	case rt.next != nil:
		run = rt.next()
	}
	rt.runs = append(rt.runs, run)
	rt.limits = append(rt.limits, limits)
	rt.args = append(rt.args, args)
	return run
}

type stubCache struct {
	mu       sync.Mutex
	outcomes map[string]execution.Outcome
	err      error
	// failures makes the next Set calls fail with errStub.
	failures int
	sets     int
}

func (c *stubCache) Get(_ context.Context, id string) (execution.Outcome, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outcomes[id]
	return o, ok, nil
}

func (c *stubCache) Set(_ context.Context, id string, o execution.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.err != nil {
		return c.err
	}
	if c.failures > 0 {
		c.failures--
		return errStub
	}
	if c.outcomes == nil {
		c.outcomes = make(map[string]execution.Outcome)
	}
	c.outcomes[id] = o
	return nil
}

func (c *stubCache) get(id string) (execution.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outcomes[id]
	return o, ok
}

type stubLedger struct {
	mu      sync.Mutex
	records []execution.Submission
	err     error
}

func (l *stubLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *stubLedger) Record(_ context.Context, s execution.Submission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, s)
	return l.err
}

type stubConsumer struct {
	mu         sync.Mutex
	deliveries chan ports.Delivery
	closed     bool
}

func newStubConsumer(deliveries chan ports.Delivery) *stubConsumer {
	return &stubConsumer{deliveries: deliveries}
}

func (c *stubConsumer) NextTask(ctx context.Context) (ports.Delivery, error) {
	select {
	case <-ctx.Done():
		return ports.Delivery{}, ctx.Err()
	case d := <-c.deliveries:
		return d, nil
	}
}

func (c *stubConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type harness struct {
	service    *Service
	runtime    *stubRuntime
	workspaces *stubWorkspaces
	cache      *stubCache
	ledger     *stubLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cat, err := catalog.NewMemory(catalog.Defaults()...)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	h := &harness{
		runtime:    &stubRuntime{},
		workspaces: &stubWorkspaces{},
		cache:      &stubCache{},
		ledger:     &stubLedger{},
	}
	svc, err := NewService(Config{
		Catalog:    cat,
		Runtime:    h.runtime,
		Workspaces: h.workspaces,
		Results:    h.cache,
		Ledger:     h.ledger,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	svc.backoff = time.Millisecond
	h.service = svc
	return h
}

var errStub = errors.New("stub failure")
