package supervisor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval derives the pause between sweeps from the shortest retention: a tenth
// of it, truncated to whole seconds, never below one second. This bounds how long
// a message can outlive its retention only approximately.
func Interval(minRetention time.Duration) time.Duration {
	interval := (minRetention / 10).Truncate(time.Second)
	if interval < time.Second {
		return time.Second
	}
	return interval
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron expression such as "0 3 * * *" or "@every 10m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return schedule, nil
}
