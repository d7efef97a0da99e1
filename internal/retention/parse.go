package retention

import (
	"fmt"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
)

// ParseDuration parses a retention such as "7d", "1w2d" or "36h".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidDuration)
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDuration, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidDuration, s)
	}
	return d, nil
}

// ParseChannelRetention parses the CHANNEL_RETENTION format:
//
//	<channel_id>:<duration>[,<channel_id>:<duration>...]
//
// An empty string yields an empty map.
func ParseChannelRetention(s string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, raw, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q is not <channel_id>:<duration>", ErrInvalidDuration, entry)
		}
		id = strings.TrimSpace(id)
		if !ValidChannelID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChannelID, id)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("%w: channel %s listed twice", ErrInvalidChannelID, id)
		}

		d, err := ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", id, err)
		}
		out[id] = d
	}

	return out, nil
}
