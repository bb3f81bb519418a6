// Package coordinator accepts submissions and serves their results.
package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/metrics"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

// Service validates submissions, enqueues them and looks up outcomes.
type Service struct {
	catalog   ports.LanguageCatalog
	publisher ports.TaskPublisher
	results   ports.ResultCache
	metrics   *metrics.Recorder
	log       *zap.Logger
	newID     func() string
}

// Config carries the dependencies of the coordinator.
type Config struct {
	Catalog   ports.LanguageCatalog
	Publisher ports.TaskPublisher
	Results   ports.ResultCache
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// NewService builds a coordinator.
func NewService(cfg Config) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("language catalog must be provided")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("task publisher must be provided")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result cache must be provided")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		catalog:   cfg.Catalog,
		publisher: cfg.Publisher,
		results:   cfg.Results,
		metrics:   cfg.Metrics,
		log:       log.Named("coordinator"),
		newID:     uuid.NewString,
	}, nil
}

// Submit enqueues the request and returns its task id.
func (s *Service) Submit(ctx context.Context, req execution.SubmissionRequest) (string, error) {
	exists, err := s.catalog.Exists(ctx, req.Language)
	if err != nil {
		return "", fmt.Errorf("check language: %w", err)
	}
	if !exists {
		s.metrics.Submitted(req.Language, false)
		return "", fmt.Errorf("%w: %s", execution.ErrUnsupportedLanguage, req.Language)
	}

	task := execution.Task{ID: s.newID(), Request: req}
	if err := s.publisher.PublishTask(ctx, task); err != nil {
		return "", fmt.Errorf("publish task %s: %w", task.ID, err)
	}

	s.metrics.Submitted(req.Language, true)
	s.log.Info("task submitted", zap.String("task_id", task.ID), zap.String("language", req.Language))
	return task.ID, nil
}

// GetResult returns the cached outcome of a task.
func (s *Service) GetResult(ctx context.Context, taskID string) (execution.Outcome, error) {
	outcome, ok, err := s.results.Get(ctx, taskID)
	if err != nil {
		return execution.Outcome{}, fmt.Errorf("read result %s: %w", taskID, err)
	}
	if !ok {
		return execution.Outcome{}, execution.ErrResultNotAvailable
	}
	return outcome, nil
}

// Languages lists the supported languages.
func (s *Service) Languages(ctx context.Context) ([]execution.LanguageSpec, error) {
	specs, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	return specs, nil
}
