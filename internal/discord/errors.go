package discord

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized means the credential was rejected. Nothing else will work.
	ErrUnauthorized = errors.New("discord credential rejected")
	// ErrUnknownMessage means the message is already gone.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrBulkTooOld means a bulk delete contained a message older than two weeks.
	ErrBulkTooOld = errors.New("message too old for bulk delete")
	// ErrInvalidToken means the token is not even shaped like a bot token.
	ErrInvalidToken = errors.New("invalid bot token")
)

// RateLimitedError is returned when Discord answers 429.
type RateLimitedError struct {
	Operation  string
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Operation, e.RetryAfter)
}

// HistoryUnavailableError is returned when a channel's history cannot be read,
// either because it does not exist or because the bot lacks access.
type HistoryUnavailableError struct {
	ChannelID string
	Err       error
}

func (e *HistoryUnavailableError) Error() string {
	return fmt.Sprintf("history of channel %s unavailable: %v", e.ChannelID, e.Err)
}

func (e *HistoryUnavailableError) Unwrap() error {
	return e.Err
}

// ErrorKind tags an error so callers can switch over every case.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindRateLimited
	KindHistoryUnavailable
	KindUnauthorized
	KindUnknownMessage
	KindBulkTooOld
	KindCanceled
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRateLimited:
		return "rate_limited"
	case KindHistoryUnavailable:
		return "history_unavailable"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnknownMessage:
		return "unknown_message"
	case KindBulkTooOld:
		return "bulk_too_old"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// Classify returns the kind of err.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var rl *RateLimitedError
	var hu *HistoryUnavailableError
	switch {
	case errors.As(err, &rl):
		return KindRateLimited
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.As(err, &hu):
		return KindHistoryUnavailable
	case errors.Is(err, ErrUnknownMessage):
		return KindUnknownMessage
	case errors.Is(err, ErrBulkTooOld):
		return KindBulkTooOld
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}

// RetryAfter returns the mandated wait when err is a RateLimitedError.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
