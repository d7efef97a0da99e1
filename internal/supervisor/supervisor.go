// Package supervisor keeps sweeps running: one immediately at startup, then one
// per scheduled tick until the context is cancelled.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/autodelete/internal/logger"
	"github.com/aatumaykin/autodelete/internal/retention"
	"github.com/aatumaykin/autodelete/internal/sweep"
)

// Sweeper runs one sweep. *sweep.Orchestrator implements it.
type Sweeper interface {
	Run(ctx context.Context, policy *retention.Policy) (*sweep.Result, error)
}

// Recorder is told when the next sweep is due. *metrics.Metrics implements it.
type Recorder interface {
	SetNextSweep(t time.Time)
}

// Config configures a Supervisor.
type Config struct {
	// Schedule is an optional cron expression. Empty means every Interval(policy.Minimum()).
	Schedule string
	Clock    clockwork.Clock
}

// Supervisor owns the sweep loop.
type Supervisor struct {
	sweeper  Sweeper
	policy   *retention.Policy
	schedule cron.Schedule
	describe string
	clock    clockwork.Clock
	logger   *logger.Logger
	recorder Recorder
}

// New builds a supervisor. log and recorder may be nil.
func New(sweeper Sweeper, policy *retention.Policy, cfg Config, log *logger.Logger, recorder Recorder) (*Supervisor, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Supervisor{
		sweeper:  sweeper,
		policy:   policy,
		clock:    cfg.Clock,
		logger:   log,
		recorder: recorder,
	}

	if cfg.Schedule != "" {
		schedule, err := ParseSchedule(cfg.Schedule)
		if err != nil {
			return nil, err
		}
		s.schedule, s.describe = schedule, cfg.Schedule
	} else {
		interval := Interval(policy.Minimum())
		s.schedule, s.describe = cron.Every(interval), "@every "+interval.String()
	}

	return s, nil
}

// Next returns when the sweep after one finishing at t is due.
func (s *Supervisor) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run sweeps until ctx is cancelled, returning nil on shutdown. A fatal sweep
// error stops the loop and is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started",
		logger.Field{Key: "channels", Value: s.policy.Len()},
		logger.Field{Key: "min_retention", Value: s.policy.Minimum().String()},
		logger.Field{Key: "schedule", Value: s.describe})

	for {
		res, err := s.sweeper.Run(ctx, s.policy)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		if ctx.Err() != nil || (res != nil && res.Cancelled) {
			s.logger.Info("supervisor stopped")
			return nil
		}

		now := s.clock.Now()
		next := s.schedule.Next(now)
		if s.recorder != nil {
			s.recorder.SetNextSweep(next)
		}
		s.logger.Debug("next sweep scheduled",
			logger.Field{Key: "at", Value: next.Format(time.RFC3339)})

		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return nil
		case <-s.clock.After(next.Sub(now)):
		}
	}
}
