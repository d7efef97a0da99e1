// Package deletion removes expired messages from a channel, preferring Discord's
// bulk-delete endpoint and falling back to one call per message where bulk delete
// is not allowed.
//
// Bulk delete limits (Discord REST v10):
//   - 2 to 100 message ids per request
//   - every message must be younger than 14 days
//
// All calls go through a shared rate.Limiter that keeps a minimum spacing between
// requests, and every call is retried on 429 after the wait Discord mandates.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/logger"
	"github.com/aatumaykin/autodelete/internal/retention"
	"github.com/aatumaykin/autodelete/internal/retry"
)

const (
	// BulkMaxAge is the oldest a message may be to go through bulk delete.
	BulkMaxAge = 14 * 24 * time.Hour
	// bulkMargin keeps messages close to the limit out of bulk requests, since the
	// age is checked again on Discord's side a little later.
	bulkMargin = time.Minute

	DefaultMinInterval = time.Second
	DefaultMaxAttempts = 5
)

// Recorder receives executor events. *metrics.Metrics implements it.
type Recorder interface {
	RateLimited(operation string)
	DeleteCall(operation string, err error)
}

// Options configures an Executor.
type Options struct {
	MinInterval time.Duration   // minimum spacing between calls; 0 disables spacing
	MaxAttempts int             // attempts per batch before giving up on 429s
	Clock       clockwork.Clock // clock for ages and rate-limit waits
	Limiter     *rate.Limiter   // optional shared limiter; built from MinInterval when nil
}

// Report is the outcome of one DeleteMany call.
type Report struct {
	Requested int
	Deleted   int
	Missing   int // already gone when we tried
	Failed    int // not deleted, including batches never attempted
	Err       error

	// Throttled is set when a batch stayed rate limited after every attempt. The
	// caller should stop working on this channel for the current sweep.
	Throttled bool
	// Fatal is set when the credential was rejected.
	Fatal bool
}

// Partial reports whether some messages could not be deleted.
func (r Report) Partial() bool {
	return r.Failed > 0
}

// Executor deletes messages for the sweep.
type Executor struct {
	client   discord.Client
	limiter  *rate.Limiter
	clock    clockwork.Clock
	attempts int
	logger   *logger.Logger
	recorder Recorder
}

// NewExecutor builds an executor. log and recorder may be nil.
func NewExecutor(client discord.Client, opts Options, log *logger.Logger, recorder Recorder) *Executor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Limiter == nil {
		opts.Limiter = NewLimiter(opts.MinInterval)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{
		client:   client,
		limiter:  opts.Limiter,
		clock:    opts.Clock,
		attempts: opts.MaxAttempts,
		logger:   log,
		recorder: recorder,
	}
}

// NewLimiter returns a limiter allowing one call per interval. A non-positive
// interval means no limit.
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// DeleteMany removes msgs from channelID. It never returns early on a single
// failed batch; only a rejected credential or exhausted rate-limit retries stop it.
func (e *Executor) DeleteMany(ctx context.Context, channelID string, msgs []retention.Message) Report {
	report := Report{Requested: len(msgs)}
	if len(msgs) == 0 {
		return report
	}

	now := e.clock.Now()
	young, old := lo.FilterReject(msgs, func(m retention.Message, _ int) bool {
		return m.Age(now) < BulkMaxAge-bulkMargin
	})

	var singles []retention.Message
	chunks := lo.Chunk(young, discord.MaxBulkDelete)
	for i, chunk := range chunks {
		if len(chunk) < discord.MinBulkDelete {
			singles = append(singles, chunk...)
			continue
		}

		ids := lo.Map(chunk, func(m retention.Message, _ int) string { return m.ID })
		err := e.call(ctx, "bulk_delete", func(ctx context.Context) error {
			return e.client.BulkDelete(ctx, channelID, ids)
		})

		switch discord.Classify(err) {
		case discord.KindNone:
			report.Deleted += len(chunk)
			e.logger.Debug("bulk deleted messages",
				logger.Field{Key: "channel_id", Value: channelID},
				logger.Field{Key: "count", Value: len(chunk)})
		case discord.KindBulkTooOld:
			singles = append(singles, chunk...)
		default:
			if e.stop(&report, err) {
				report.Failed += len(chunk) + countRest(chunks[i+1:]) + len(singles) + len(old)
				return report
			}
			report.Failed += len(chunk)
		}
	}

	singles = append(singles, old...)
	for i, m := range singles {
		err := e.call(ctx, "delete_message", func(ctx context.Context) error {
			return e.client.DeleteMessage(ctx, channelID, m.ID)
		})

		switch discord.Classify(err) {
		case discord.KindNone:
			report.Deleted++
		case discord.KindUnknownMessage:
			report.Missing++
		default:
			if e.stop(&report, err) {
				report.Failed += len(singles) - i
				return report
			}
			report.Failed++
		}
	}

	return report
}

// stop records err on report and tells whether the remaining work must be dropped.
func (e *Executor) stop(report *Report, err error) bool {
	if report.Err == nil {
		report.Err = err
	}

	switch {
	case discord.Classify(err) == discord.KindUnauthorized:
		report.Fatal = true
		return true
	case errors.Is(err, retry.ErrExhausted):
		report.Throttled = true
		return true
	case discord.Classify(err) == discord.KindCanceled:
		return true
	}

	e.logger.Warn("delete request failed", logger.Field{Key: "error", Value: err.Error()})
	return false
}

func (e *Executor) call(ctx context.Context, op string, fn func(context.Context) error) error {
	cfg := retry.Config{
		MaxAttempts: e.attempts,
		Clock:       e.clock,
		OnRateLimited: func(attempt int, wait time.Duration) {
			if e.recorder != nil {
				e.recorder.RateLimited(op)
			}
			e.logger.Info("rate limited, waiting",
				logger.Field{Key: "operation", Value: op},
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "retry_after", Value: wait.String()})
		},
	}

	err := retry.DoErr(ctx, cfg, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: waiting for limiter: %w", op, err)
		}
		return fn(ctx)
	})
	if e.recorder != nil {
		e.recorder.DeleteCall(op, err)
	}
	return err
}

func countRest(chunks [][]retention.Message) int {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	return n
}
