package retention

import "time"

// Message is the part of a chat message the sweep cares about.
type Message struct {
	ID        string
	ChannelID string
	CreatedAt time.Time
	Pinned    bool
}

// Age is how old m is at now.
func (m Message) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}
