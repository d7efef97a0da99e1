package sweep

import (
	"time"
)

// Outcome is the terminal state of one channel in a sweep.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial-failure"
	OutcomeHardFailure    Outcome = "hard-failure"
)

// ChannelResult is what happened to one channel.
type ChannelResult struct {
	ChannelID string
	Retention time.Duration
	Pages     int
	Evaluated int // messages fetched and checked
	Expired   int // messages the filter selected
	Deleted   int
	Missing   int // already gone when deleted
	Failed    int
	Outcome   Outcome
	Err       error
	Duration  time.Duration

	fatal bool
}

// Result aggregates one sweep.
type Result struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Channels   []ChannelResult
	// Cancelled is set when shutdown was requested before every channel ran.
	Cancelled bool
}

// Succeeded reports whether every channel that ran succeeded and none was skipped.
func (r *Result) Succeeded() bool {
	if r.Cancelled {
		return false
	}
	for _, c := range r.Channels {
		if c.Outcome != OutcomeSuccess {
			return false
		}
	}
	return true
}

// Totals sums the per-channel counters.
func (r *Result) Totals() (evaluated, deleted, failed int) {
	for _, c := range r.Channels {
		evaluated += c.Evaluated
		deleted += c.Deleted
		failed += c.Failed
	}
	return evaluated, deleted, failed
}

// Count returns how many channels ended with outcome.
func (r *Result) Count(outcome Outcome) int {
	n := 0
	for _, c := range r.Channels {
		if c.Outcome == outcome {
			n++
		}
	}
	return n
}

// Status is a single word for logs and metrics.
func (r *Result) Status() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Succeeded():
		return "success"
	case r.Count(OutcomeHardFailure) == len(r.Channels):
		return "failed"
	default:
		return "partial"
	}
}

// Duration is the wall time of the sweep.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
