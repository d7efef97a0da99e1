// Package retention holds the retention policy, the message model and the pure
// expiration rules that decide which messages a sweep may delete.
package retention

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/wasilibs/go-re2"
)

// DefaultRetention is returned by Minimum when no channel is configured.
const DefaultRetention = 50 * 7 * 24 * time.Hour

var (
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrInvalidDuration  = errors.New("invalid retention duration")
	ErrInvalidChannelID = errors.New("invalid channel id")
)

// Discord snowflakes are unsigned 64-bit integers rendered in decimal.
var channelIDPattern = re2.MustCompile(`^[0-9]{17,20}$`)

// ValidChannelID reports whether id looks like a Discord channel snowflake.
func ValidChannelID(id string) bool {
	return channelIDPattern.MatchString(id)
}

// Policy maps channels to their retention duration. It is immutable once built.
type Policy struct {
	channels     map[string]time.Duration
	order        []string
	deletePinned bool
}

// NewPolicy validates channels and returns a read-only policy.
func NewPolicy(channels map[string]time.Duration, deletePinned bool) (*Policy, error) {
	copied := make(map[string]time.Duration, len(channels))
	for id, d := range channels {
		if !ValidChannelID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChannelID, id)
		}
		if d < 0 {
			return nil, fmt.Errorf("%w: channel %s has negative retention %s", ErrInvalidDuration, id, d)
		}
		copied[id] = d
	}

	return &Policy{
		channels:     copied,
		order:        slices.Sorted(maps.Keys(copied)),
		deletePinned: deletePinned,
	}, nil
}

// Minimum returns the smallest configured retention, or DefaultRetention when the
// policy is empty.
func (p *Policy) Minimum() time.Duration {
	if len(p.channels) == 0 {
		return DefaultRetention
	}
	return slices.Min(slices.Collect(maps.Values(p.channels)))
}

// DurationFor returns the retention for channelID.
func (p *Policy) DurationFor(channelID string) (time.Duration, error) {
	d, ok := p.channels[channelID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}
	return d, nil
}

// Channels returns the configured channel IDs in ascending order.
func (p *Policy) Channels() []string {
	return slices.Clone(p.order)
}

func (p *Policy) DeletePinned() bool {
	return p.deletePinned
}

func (p *Policy) Len() int {
	return len(p.channels)
}
