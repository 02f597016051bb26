// Package scheduler triggers one pipeline run per day at a configured
// wall-clock time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/clock"
)

// Job runs one cycle for the given date.
type Job func(ctx context.Context, date time.Time)

// Config controls the daily loop.
type Config struct {
	// DailyRunTime is "HH:MM" local time.
	DailyRunTime string
	// RunImmediately fires one run at startup before waiting for the
	// scheduled slot.
	RunImmediately bool
}

// Scheduler fires a Job once per day.
type Scheduler struct {
	cfg    Config
	hour   int
	minute int
	clk    clock.Clock
	logger *zap.Logger
}

// New parses the configured run time and builds a Scheduler.
func New(cfg Config, clk clock.Clock, logger *zap.Logger) (*Scheduler, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(cfg.DailyRunTime, "%d:%d", &hour, &minute); err != nil {
		return nil, fmt.Errorf("parse daily run time %q: %w", cfg.DailyRunTime, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("daily run time %q out of range", cfg.DailyRunTime)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, hour: hour, minute: minute, clk: clk, logger: logger}, nil
}

// Run blocks until ctx is done, firing job at the configured time each day.
// Runs never overlap: the next slot is computed after the job returns, so a
// cycle that overruns its slot simply delays the next one.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	if s.cfg.RunImmediately {
		now := s.clk.Now()
		s.logger.Info("immediate run", zap.String("date", now.Format("2006-01-02")))
		job(ctx, now)
	}
	for {
		now := s.clk.Now()
		next := s.nextRun(now)
		s.logger.Info("next scheduled run", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		runDate := s.clk.Now()
		s.logger.Info("scheduled run", zap.String("date", runDate.Format("2006-01-02")))
		job(ctx, runDate)
	}
}

// nextRun returns the first occurrence of the configured time strictly
// after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
