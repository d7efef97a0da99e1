// Package sweep drives one retention pass over every configured channel:
// fetch a page, filter the expired messages, delete them, move on.
//
// Per channel the orchestrator moves through
//
//	Idle -> PerChannel -> Fetching -> Filtering -> Deleting -> (Fetching | next channel | Done)
//
// A failure in one channel is recorded in its ChannelResult and never stops the
// others. Only a rejected credential aborts the whole sweep.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aatumaykin/autodelete/internal/deletion"
	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/history"
	"github.com/aatumaykin/autodelete/internal/logger"
	"github.com/aatumaykin/autodelete/internal/retention"
	"github.com/aatumaykin/autodelete/internal/retry"
)

// ErrFatal wraps errors that make further sweeps pointless.
var ErrFatal = errors.New("fatal sweep error")

// State names a step of the per-channel state machine.
type State string

const (
	StateIdle       State = "idle"
	StatePerChannel State = "per_channel"
	StateFetching   State = "fetching"
	StateFiltering  State = "filtering"
	StateDeleting   State = "deleting"
	StateDone       State = "done"
)

// Deleter removes expired messages. *deletion.Executor implements it.
type Deleter interface {
	DeleteMany(ctx context.Context, channelID string, msgs []retention.Message) deletion.Report
}

// Recorder receives sweep events. *metrics.Metrics implements it.
type Recorder interface {
	ChannelFinished(channelID, outcome string, evaluated, deleted int)
	SweepFinished(status string, d time.Duration)
}

// Options configures an Orchestrator.
type Options struct {
	// Concurrency is how many channels are swept at once. 1 (the default) is sequential.
	Concurrency int
	// MaxRetries bounds attempts per page while Discord keeps answering 429.
	MaxRetries int
	// SeekCutoff starts each walk at the snowflake of now-retention, skipping
	// messages too young to delete.
	SeekCutoff bool
	Clock      clockwork.Clock
	// Limiter spaces history calls. Share the executor's limiter so fetches and
	// deletions draw from one budget. nil means no spacing.
	Limiter *rate.Limiter
}

// Orchestrator runs sweeps. It holds no state between runs.
type Orchestrator struct {
	fetcher  *history.Fetcher
	deleter  Deleter
	opts     Options
	logger   *logger.Logger
	recorder Recorder
}

// NewOrchestrator wires a fetcher and a deleter. log and recorder may be nil.
func NewOrchestrator(fetcher *history.Fetcher, deleter Deleter, opts Options, log *logger.Logger, recorder Recorder) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = deletion.DefaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{
		fetcher:  fetcher,
		deleter:  deleter,
		opts:     opts,
		logger:   log,
		recorder: recorder,
	}
}

// Run sweeps every channel in policy. Cancelling ctx stops the sweep at the next
// channel boundary; a channel already in progress is finished first. The error is
// non-nil only for fatal conditions and wraps ErrFatal.
func (o *Orchestrator) Run(ctx context.Context, policy *retention.Policy) (*Result, error) {
	res := &Result{ID: uuid.NewString(), StartedAt: o.opts.Clock.Now()}
	log := o.logger.With(logger.Field{Key: "sweep_id", Value: res.ID})

	channels := policy.Channels()
	log.Debug("sweep starting",
		logger.Field{Key: "state", Value: StateIdle},
		logger.Field{Key: "channels", Value: len(channels)},
		logger.Field{Key: "concurrency", Value: o.opts.Concurrency})

	// Work already started must not be interrupted by shutdown.
	work := context.WithoutCancel(ctx)

	results := make([]*ChannelResult, len(channels))
	var (
		mu       sync.Mutex
		fatalErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for i, channelID := range channels {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			cr := o.sweepChannel(work, log, policy, channelID)
			results[i] = &cr
			if cr.fatal {
				mu.Lock()
				if fatalErr == nil {
					fatalErr = cr.Err
				}
				mu.Unlock()
				return ErrFatal
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, cr := range results {
		if cr != nil {
			res.Channels = append(res.Channels, *cr)
		}
	}
	res.Cancelled = ctx.Err() != nil && len(res.Channels) < len(channels)
	res.FinishedAt = o.opts.Clock.Now()

	evaluated, deleted, failed := res.Totals()
	log.Debug("sweep finished", logger.Field{Key: "state", Value: StateDone})
	if o.recorder != nil {
		o.recorder.SweepFinished(res.Status(), res.Duration())
	}

	if fatalErr != nil {
		log.Error("sweep aborted", fatalErr,
			logger.Field{Key: "channels_done", Value: len(res.Channels)})
		return res, fmt.Errorf("%w: %w", ErrFatal, fatalErr)
	}

	log.Info("sweep completed",
		logger.Field{Key: "status", Value: res.Status()},
		logger.Field{Key: "channels", Value: len(res.Channels)},
		logger.Field{Key: "evaluated", Value: evaluated},
		logger.Field{Key: "deleted", Value: deleted},
		logger.Field{Key: "failed", Value: failed},
		logger.Field{Key: "duration_ms", Value: res.Duration().Milliseconds()})

	return res, nil
}

func (o *Orchestrator) sweepChannel(ctx context.Context, log *logger.Logger, policy *retention.Policy, channelID string) ChannelResult {
	start := o.opts.Clock.Now()
	cr := ChannelResult{ChannelID: channelID, Outcome: OutcomeSuccess}
	log = log.With(logger.Field{Key: "channel_id", Value: channelID})
	log.Debug("channel starting", logger.Field{Key: "state", Value: StatePerChannel})

	defer func() {
		cr.Duration = o.opts.Clock.Now().Sub(start)
		o.report(log, &cr)
	}()

	d, err := policy.DurationFor(channelID)
	if err != nil {
		cr.Outcome, cr.Err = OutcomeHardFailure, err
		return cr
	}
	cr.Retention = d

	now := o.opts.Clock.Now()
	before := ""
	if o.opts.SeekCutoff {
		before = discord.SnowflakeFromTime(now.Add(-d))
	}

	pager := o.fetcher.Fetch(channelID, before)
	fetchCfg := retry.Config{
		MaxAttempts: o.opts.MaxRetries,
		Clock:       o.opts.Clock,
		OnRateLimited: func(attempt int, wait time.Duration) {
			if r, ok := o.recorder.(deletion.Recorder); ok {
				r.RateLimited("get_messages")
			}
			log.Info("rate limited while fetching, waiting",
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "retry_after", Value: wait.String()})
		},
	}

	for {
		log.Debug("fetching page", logger.Field{Key: "state", Value: StateFetching})
		batch, err := retry.Do(ctx, fetchCfg, func(ctx context.Context) ([]retention.Message, error) {
			if o.opts.Limiter != nil {
				if err := o.opts.Limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			return pager.Next(ctx)
		})
		if errors.Is(err, history.Done) {
			break
		}
		if err != nil {
			cr.Outcome, cr.Err = OutcomeHardFailure, err
			cr.fatal = discord.Classify(err) == discord.KindUnauthorized
			cr.Pages = pager.Pages()
			return cr
		}

		log.Debug("filtering page",
			logger.Field{Key: "state", Value: StateFiltering},
			logger.Field{Key: "size", Value: len(batch)})
		cr.Evaluated += len(batch)
		expired := retention.Expired(batch, d, now, policy.DeletePinned())
		cr.Expired += len(expired)
		if len(expired) == 0 {
			continue
		}

		log.Debug("deleting messages",
			logger.Field{Key: "state", Value: StateDeleting},
			logger.Field{Key: "count", Value: len(expired)})
		rep := o.deleter.DeleteMany(ctx, channelID, expired)
		cr.Deleted += rep.Deleted
		cr.Missing += rep.Missing
		cr.Failed += rep.Failed
		if rep.Err != nil && cr.Err == nil {
			cr.Err = rep.Err
		}

		if rep.Fatal {
			cr.Outcome = OutcomeHardFailure
			cr.fatal = true
			cr.Pages = pager.Pages()
			return cr
		}
		if rep.Throttled {
			break
		}
	}

	cr.Pages = pager.Pages()
	if cr.Failed > 0 {
		cr.Outcome = OutcomePartialFailure
	}
	return cr
}

func (o *Orchestrator) report(log *logger.Logger, cr *ChannelResult) {
	if o.recorder != nil {
		o.recorder.ChannelFinished(cr.ChannelID, string(cr.Outcome), cr.Evaluated, cr.Deleted)
	}

	fields := []logger.Field{
		{Key: "outcome", Value: cr.Outcome},
		{Key: "retention", Value: cr.Retention.String()},
		{Key: "pages", Value: cr.Pages},
		{Key: "evaluated", Value: cr.Evaluated},
		{Key: "expired", Value: cr.Expired},
		{Key: "deleted", Value: cr.Deleted},
		{Key: "missing", Value: cr.Missing},
		{Key: "failed", Value: cr.Failed},
		{Key: "duration_ms", Value: cr.Duration.Milliseconds()},
	}

	switch cr.Outcome {
	case OutcomeSuccess:
		log.Info("channel swept", fields...)
	case OutcomePartialFailure:
		log.Warn("channel partially swept", append(fields, logger.Field{Key: "error", Value: errString(cr.Err)})...)
	default:
		log.Error("channel sweep failed", cr.Err, fields...)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
