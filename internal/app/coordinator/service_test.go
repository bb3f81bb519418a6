package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cuervolu/cortex-engine/internal/catalog"
	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

type stubPublisher struct {
	mu    sync.Mutex
	tasks []execution.Task
	err   error
}

func (p *stubPublisher) PublishTask(_ context.Context, task execution.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

type stubCache struct {
	outcomes map[string]execution.Outcome
	err      error
}

func (c *stubCache) Get(_ context.Context, id string) (execution.Outcome, bool, error) {
	if c.err != nil {
		return execution.Outcome{}, false, c.err
	}
	o, ok := c.outcomes[id]
	return o, ok, nil
}

func (c *stubCache) Set(_ context.Context, id string, o execution.Outcome) error {
	if c.outcomes == nil {
		c.outcomes = make(map[string]execution.Outcome)
	}
	c.outcomes[id] = o
	return nil
}

func newTestService(t *testing.T, pub *stubPublisher, cache *stubCache) *Service {
	t.Helper()

	cat, err := catalog.NewMemory(catalog.Defaults()...)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	svc, err := NewService(Config{Catalog: cat, Publisher: pub, Results: cache})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestSubmitPublishesTaskWithFreshID(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{}
	svc := newTestService(t, pub, &stubCache{})

	req := execution.SubmissionRequest{Code: "cHJpbnQoMSk=", Language: "python"}
	first, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	second, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if first == "" || first == second {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", first, second)
	}
	if len(pub.tasks) != 2 {
		t.Fatalf("expected 2 published tasks, got %d", len(pub.tasks))
	}
	if pub.tasks[0].ID != first || pub.tasks[0].Request.Language != "python" {
		t.Fatalf("unexpected published task: %+v", pub.tasks[0])
	}
}

func TestSubmitRejectsUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{}
	cache := &stubCache{}
	svc := newTestService(t, pub, cache)

	_, err := svc.Submit(context.Background(), execution.SubmissionRequest{Code: "eA==", Language: "cobol"})
	if !errors.Is(err, execution.ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if got := err.Error(); got != "unsupported language: cobol" {
		t.Fatalf("unexpected message %q", got)
	}
	if len(pub.tasks) != 0 {
		t.Fatalf("expected nothing published, got %d tasks", len(pub.tasks))
	}
	if len(cache.outcomes) != 0 {
		t.Fatalf("expected cache untouched")
	}
}

func TestSubmitWrapsPublishError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	svc := newTestService(t, &stubPublisher{err: boom}, &stubCache{})

	_, err := svc.Submit(context.Background(), execution.SubmissionRequest{Code: "eA==", Language: "python"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestGetResult(t *testing.T) {
	t.Parallel()

	stdout := "aGk="
	cache := &stubCache{outcomes: map[string]execution.Outcome{
		"done": {Stdout: &stdout, StatusID: execution.StatusSuccess},
	}}
	svc := newTestService(t, &stubPublisher{}, cache)

	outcome, err := svc.GetResult(context.Background(), "done")
	if err != nil {
		t.Fatalf("GetResult returned error: %v", err)
	}
	if outcome.StatusID != execution.StatusSuccess || *outcome.Stdout != stdout {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	_, err = svc.GetResult(context.Background(), "pending")
	if !errors.Is(err, execution.ErrResultNotAvailable) {
		t.Fatalf("expected ErrResultNotAvailable, got %v", err)
	}
}

func TestGetResultPropagatesCacheError(t *testing.T) {
	t.Parallel()

	boom := errors.New("redis down")
	svc := newTestService(t, &stubPublisher{}, &stubCache{err: boom})

	_, err := svc.GetResult(context.Background(), "any")
	if !errors.Is(err, boom) {
		t.Fatalf("expected cache error, got %v", err)
	}
	if errors.Is(err, execution.ErrResultNotAvailable) {
		t.Fatalf("cache failures must not look like a pending result")
	}
}

func TestLanguages(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubPublisher{}, &stubCache{})
	specs, err := svc.Languages(context.Background())
	if err != nil {
		t.Fatalf("Languages returned error: %v", err)
	}
	if len(specs) != len(catalog.Defaults()) {
		t.Fatalf("expected %d languages, got %d", len(catalog.Defaults()), len(specs))
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(Config{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}
