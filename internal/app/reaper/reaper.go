// Package reaper removes stopped run containers left behind by failed teardowns.
package reaper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/metrics"
)

const (
	defaultInterval = time.Hour
	defaultMaxAge   = 24 * time.Hour
)

// Inventory lists and removes stopped containers on the engine.
type Inventory interface {
	ListStopped(ctx context.Context, managedOnly bool) ([]execution.ContainerInfo, error)
	Remove(ctx context.Context, id string) error
}

// Config tunes the sweep.
type Config struct {
	Interval    time.Duration
	MaxAge      time.Duration
	OnlyManaged bool
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Inspected int
	Removed   int
	Failed    int
}

// Reaper periodically removes stopped containers older than MaxAge.
type Reaper struct {
	inventory Inventory
	cfg       Config
	metrics   *metrics.Recorder
	log       *zap.Logger
	now       func() time.Time
}

// New builds a reaper over inventory.
func New(inventory Inventory, cfg Config, rec *metrics.Recorder, log *zap.Logger) (*Reaper, error) {
	if inventory == nil {
		return nil, fmt.Errorf("container inventory must be provided")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{
		inventory: inventory,
		cfg:       cfg,
		metrics:   rec,
		log:       log.Named("reaper"),
		now:       time.Now,
	}, nil
}

// Run sweeps once immediately and then every Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.log.Info("reaper started", zap.Duration("interval", r.cfg.Interval), zap.Duration("max_age", r.cfg.MaxAge))
	r.sweep(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	if _, err := r.Sweep(ctx, r.now()); err != nil && ctx.Err() == nil {
		r.log.Error("sweep failed", zap.Error(err))
	}
}

// Sweep removes every stopped container strictly older than MaxAge at now.
// A failed removal is logged and counted; the sweep continues.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	containers, err := r.inventory.ListStopped(ctx, r.cfg.OnlyManaged)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list stopped containers: %w", err)
	}

	report := SweepReport{Inspected: len(containers)}
	for _, c := range containers {
		if c.Age(now) <= r.cfg.MaxAge {
			continue
		}
		if err := r.inventory.Remove(ctx, c.ID); err != nil {
			report.Failed++
			r.log.Warn("failed to remove container", zap.String("id", c.ID), zap.String("name", c.Name), zap.Error(err))
			continue
		}
		report.Removed++
		r.log.Debug("removed container", zap.String("id", c.ID), zap.String("name", c.Name), zap.String("state", c.State))
	}

	r.metrics.Reaped(report.Removed, report.Failed)
	if report.Removed > 0 || report.Failed > 0 {
		r.log.Info("sweep finished",
			zap.Int("inspected", report.Inspected),
			zap.Int("removed", report.Removed),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}
