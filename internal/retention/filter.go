package retention

import "time"

// IsExpired reports whether m may be deleted under retention d at now.
// A zero retention makes every eligible message expire immediately.
func IsExpired(m Message, d time.Duration, now time.Time, deletePinned bool) bool {
	if m.Pinned && !deletePinned {
		return false
	}
	return m.Age(now) > d
}

// Expired returns the messages of batch that IsExpired accepts, in batch order.
func Expired(batch []Message, d time.Duration, now time.Time, deletePinned bool) []Message {
	var out []Message
	for _, m := range batch {
		if IsExpired(m, d, now, deletePinned) {
			out = append(out, m)
		}
	}
	return out
}
