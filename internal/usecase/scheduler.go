package usecase

import (
	"context"
	"log/slog"
	"time"

	"TenderWatch/internal/ports"
)

// Pacer applies the randomized pre-poll delay that keeps the access pattern
// irregular; force skips it.
type Pacer interface {
	Pace(ctx context.Context, minDelay, maxDelay time.Duration, force bool) error
}

// Scheduler wires the interval driver with the engine: each trigger paces,
// then runs the engine for the trigger's calendar day.
type Scheduler struct {
	driver    ports.Scheduler
	engine    *Engine
	pacer     Pacer
	pacingMin time.Duration
	pacingMax time.Duration
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, engine *Engine, pacer Pacer, pacingMin, pacingMax time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		driver:    driver,
		engine:    engine,
		pacer:     pacer,
		pacingMin: pacingMin,
		pacingMax: pacingMax,
		logger:    logger,
	}
}

// Start registers the paced engine run with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.engine == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if s.pacer != nil {
			if err := s.pacer.Pace(ctx, s.pacingMin, s.pacingMax, false); err != nil {
				s.logger.Info("pacing interrupted, skipping run", "error", err)
				return
			}
		}
		if _, err := s.engine.RunDay(ctx, trigger); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
