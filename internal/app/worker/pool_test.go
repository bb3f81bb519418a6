package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

func TestPoolProcessesDeliveriesAndDrains(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.runtime.forWorkspace = func(ws execution.Workspace) *stubRun {
		return &stubRun{result: execution.RunResult{
			State:  execution.RunStateSucceeded,
			Stdout: h.workspaces.input(ws),
		}}
	}
	deliveries := make(chan ports.Delivery, 4)

	var mu sync.Mutex
	var consumers []*stubConsumer
	factory := func() (ports.TaskConsumer, error) {
		mu.Lock()
		defer mu.Unlock()
		c := newStubConsumer(deliveries)
		consumers = append(consumers, c)
		return c, nil
	}

	pool, err := NewPool(h.service, factory, 2, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	tasks := map[string]struct{ code, stdin string }{
		"p1": {"print(input())", "one"},
		"p2": {"print(int(input()) * 2)", "21"},
		"p3": {"import sys; print(sys.stdin.read())", ""},
	}
	acked := make(chan string, 4)
	for id, in := range tasks {
		id := id
		task := pythonTask(id, in.code)
		task.Request.Stdin = in.stdin
		deliveries <- ports.Delivery{
			Task: task,
			Ack:  func(context.Context) error { acked <- id; return nil },
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-acked:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not drain")
	}

	if len(consumers) != 2 {
		t.Fatalf("expected one consumer per worker, got %d", len(consumers))
	}
	for _, c := range consumers {
		if !c.isClosed() {
			t.Fatalf("expected consumers to be closed")
		}
	}
	for id, in := range tasks {
		outcome, ok := h.cache.get(id)
		if !ok {
			t.Fatalf("expected outcome for %s", id)
		}
		if got, want := decoded(t, outcome.Stdout), in.code+"|"+in.stdin; got != want {
			t.Fatalf("task %s got outcome of another task: %q, want %q", id, got, want)
		}
	}
}

func TestPoolRunFailsWhenConsumerCannotBeCreated(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := 0
	var first *stubConsumer
	factory := func() (ports.TaskConsumer, error) {
		created++
		if created == 2 {
			return nil, errStub
		}
		first = newStubConsumer(make(chan ports.Delivery))
		return first, nil
	}

	pool, err := NewPool(h.service, factory, 3, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	err = pool.Run(context.Background())
	if !errors.Is(err, errStub) {
		t.Fatalf("expected factory error, got %v", err)
	}
	if !first.isClosed() {
		t.Fatalf("expected already created consumers to be closed")
	}
}

func TestNewPoolValidatesArguments(t *testing.T) {
	t.Parallel()

	if _, err := NewPool(nil, nil, 1, nil); err == nil {
		t.Fatalf("expected error for missing service")
	}
	h := newHarness(t)
	if _, err := NewPool(h.service, nil, 1, nil); err == nil {
		t.Fatalf("expected error for missing factory")
	}
}
