// Package worker takes tasks off the queue and runs them in containers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/metrics"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

const (
	ledgerTimeout   = 5 * time.Second
	storeBackoff    = 100 * time.Millisecond
	maxStoreBackoff = 5 * time.Second
)

// Workspaces provisions and releases the host files of a run.
type Workspaces interface {
	Provision(spec execution.LanguageSpec, code []byte, stdin string) (execution.Workspace, error)
	Release(paths ...string)
}

// Config carries the dependencies of the worker service.
type Config struct {
	Catalog    ports.LanguageCatalog
	Runtime    ports.ContainerRuntime
	Workspaces Workspaces
	Results    ports.ResultCache
	// Ledger is optional.
	Ledger     ports.SubmissionLedger
	Metrics    *metrics.Recorder
	Logger     *zap.Logger
	MaxTimeout time.Duration
}

// Service runs one task end to end and stores its outcome.
type Service struct {
	catalog    ports.LanguageCatalog
	runtime    ports.ContainerRuntime
	workspaces Workspaces
	results    ports.ResultCache
	ledger     ports.SubmissionLedger
	metrics    *metrics.Recorder
	log        *zap.Logger
	maxTimeout time.Duration
	now        func() time.Time
	backoff    time.Duration
}

// NewService builds a worker service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("language catalog must be provided")
	}
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("container runtime must be provided")
	}
	if cfg.Workspaces == nil {
		return nil, fmt.Errorf("workspace manager must be provided")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result cache must be provided")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		catalog:    cfg.Catalog,
		runtime:    cfg.Runtime,
		workspaces: cfg.Workspaces,
		results:    cfg.Results,
		ledger:     cfg.Ledger,
		metrics:    cfg.Metrics,
		log:        log.Named("worker"),
		maxTimeout: cfg.MaxTimeout,
		now:        time.Now,
		backoff:    storeBackoff,
	}, nil
}

// Handle processes a delivery, caches its outcome and acknowledges it.
//
// Storing the outcome is retried until it succeeds; a later ack on the same
// partition commits past this delivery. When ctx is cancelled first the
// delivery is left unacknowledged and the error is retryable, and the caller
// must stop consuming so the task is redelivered to another group member.
func (s *Service) Handle(ctx context.Context, d ports.Delivery) error {
	var outcome execution.Outcome
	switch {
	case d.Err != nil && d.Task.ID == "":
		s.log.Warn("dropping undecodable message without task id", zap.Error(d.Err))
		return s.ack(ctx, d)
	case d.Err != nil:
		s.log.Warn("undecodable task", zap.String("task_id", d.Task.ID), zap.Error(d.Err))
		outcome = execution.ErrorOutcome(d.Err, d.Task.Request.ShouldEncodeOutput())
	default:
		outcome = s.Process(ctx, d.Task)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("task %s interrupted: %w", d.Task.ID, err)
		}
	}

	if err := s.store(ctx, d.Task.ID, outcome); err != nil {
		return err
	}
	return s.ack(ctx, d)
}

func (s *Service) store(ctx context.Context, taskID string, outcome execution.Outcome) error {
	delay := s.backoff
	for attempt := 1; ; attempt++ {
		err := s.results.Set(ctx, taskID, outcome)
		if err == nil {
			return nil
		}
		s.log.Warn("store outcome failed",
			zap.String("task_id", taskID),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("store outcome %s: %w", taskID, errors.Join(err, ctx.Err()))
		case <-time.After(delay):
		}
		delay = min(2*delay, maxStoreBackoff)
	}
}

func (s *Service) ack(ctx context.Context, d ports.Delivery) error {
	if d.Ack == nil {
		return nil
	}
	if err := d.Ack(ctx); err != nil {
		return fmt.Errorf("ack task %s: %w", d.Task.ID, err)
	}
	return nil
}

// Process runs the task and returns its client outcome. Every failure is
// folded into a failure outcome.
func (s *Service) Process(ctx context.Context, task execution.Task) execution.Outcome {
	encode := task.Request.ShouldEncodeOutput()
	log := s.log.With(zap.String("task_id", task.ID), zap.String("language", task.Request.Language))

	done := s.metrics.RunStarted()
	result, err := s.run(ctx, task, log)
	done()

	state := result.State
	var outcome execution.Outcome
	if err != nil {
		if state == "" || !state.Terminal() {
			state = execution.RunStateFailed
		}
		log.Warn("task failed", zap.Error(err), zap.String("state", string(state)))
		outcome = execution.ErrorOutcome(err, encode)
	} else {
		log.Info("task finished",
			zap.String("state", string(state)),
			zap.Int("exit_code", result.ExitCode),
			zap.Duration("duration", result.Duration),
		)
		outcome = result.Outcome(encode)
	}

	s.metrics.RunFinished(task.Request.Language, string(state), result.Duration)
	// An interrupted task is redelivered and recorded by the run that finishes it.
	if ctx.Err() == nil {
		s.record(ctx, task, outcome.StatusID, log)
	}
	return outcome
}

func (s *Service) run(ctx context.Context, task execution.Task, log *zap.Logger) (execution.RunResult, error) {
	req := task.Request

	spec, ok, err := s.catalog.ByName(ctx, req.Language)
	if err != nil {
		return execution.RunResult{}, fmt.Errorf("resolve language: %w", err)
	}
	if !ok {
		return execution.RunResult{}, fmt.Errorf("%w: %s", execution.ErrUnsupportedLanguage, req.Language)
	}

	code, err := req.DecodeCode()
	if err != nil {
		return execution.RunResult{}, err
	}

	ws, err := s.workspaces.Provision(spec, code, req.Stdin)
	if err != nil {
		return execution.RunResult{}, err
	}
	defer s.workspaces.Release(ws.Paths()...)

	limits := execution.LimitsFor(spec, req, s.maxTimeout)
	run := s.runtime.NewRun(spec, ws, limits, req.CommandLineArguments)
	defer run.Teardown(ctx)

	log.Debug("provisioning run", zap.String("container", run.Name()), zap.Duration("timeout", limits.Timeout))
	if err := run.Provision(ctx); err != nil {
		return execution.RunResult{State: run.State()}, err
	}
	if err := run.Start(ctx); err != nil {
		return execution.RunResult{State: run.State()}, err
	}
	return run.Execute(ctx)
}

func (s *Service) record(ctx context.Context, task execution.Task, status execution.Status, log *zap.Logger) {
	if s.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	if err := s.ledger.Record(ctx, execution.NewSubmission(task, status, s.now())); err != nil {
		log.Warn("failed to record submission", zap.Error(err))
	}
}

// IsRetryable reports whether Handle left the delivery unacknowledged
// because ctx was cancelled.
func IsRetryable(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
