package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/ports"
)

const fetchBackoff = time.Second

// ConsumerFactory creates one queue consumer per worker goroutine.
type ConsumerFactory func() (ports.TaskConsumer, error)

// Pool runs a fixed number of workers, each draining its own consumer.
type Pool struct {
	service     *Service
	newConsumer ConsumerFactory
	concurrency int
	log         *zap.Logger
}

// NewPool builds a pool of concurrency workers.
func NewPool(service *Service, newConsumer ConsumerFactory, concurrency int, log *zap.Logger) (*Pool, error) {
	if service == nil {
		return nil, fmt.Errorf("worker service must be provided")
	}
	if newConsumer == nil {
		return nil, fmt.Errorf("consumer factory must be provided")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		service:     service,
		newConsumer: newConsumer,
		concurrency: concurrency,
		log:         log.Named("pool"),
	}, nil
}

// Run blocks until ctx is cancelled and every worker has drained.
func (p *Pool) Run(ctx context.Context) error {
	consumers := make([]ports.TaskConsumer, 0, p.concurrency)
	closeAll := func() error {
		var errs []error
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for i := 0; i < p.concurrency; i++ {
		consumer, err := p.newConsumer()
		if err != nil {
			return errors.Join(fmt.Errorf("create consumer %d: %w", i, err), closeAll())
		}
		consumers = append(consumers, consumer)
	}

	p.log.Info("worker pool started", zap.Int("workers", p.concurrency))

	var wg sync.WaitGroup
	for i, consumer := range consumers {
		wg.Add(1)
		go func(id int, consumer ports.TaskConsumer) {
			defer wg.Done()
			p.loop(ctx, id, consumer)
		}(i, consumer)
	}
	wg.Wait()

	p.log.Info("worker pool stopped")
	if err := closeAll(); err != nil {
		return fmt.Errorf("close consumers: %w", err)
	}
	return nil
}

func (p *Pool) loop(ctx context.Context, id int, consumer ports.TaskConsumer) {
	log := p.log.With(zap.Int("worker", id))
	for {
		delivery, err := consumer.NextTask(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("fetch task failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchBackoff):
			}
			continue
		}

		if err := p.service.Handle(ctx, delivery); err != nil {
			if IsRetryable(err) && ctx.Err() != nil {
				log.Info("task left for redelivery", zap.String("task_id", delivery.Task.ID))
				return
			}
			log.Error("handle task failed", zap.String("task_id", delivery.Task.ID), zap.Error(err))
		}
	}
}
