package discord

import (
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

// discordEpochMs is 2015-01-01T00:00:00Z in Unix milliseconds.
const discordEpochMs = 1420070400000

// SnowflakeTime returns the creation time encoded in a snowflake.
func SnowflakeTime(id string) (time.Time, error) {
	return discordgo.SnowflakeTimestamp(id)
}

// SnowflakeFromTime returns the smallest snowflake that could have been created at t.
// Used as a pagination cursor it selects everything created before t.
func SnowflakeFromTime(t time.Time) string {
	ms := t.UnixMilli() - discordEpochMs
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatUint(uint64(ms)<<22, 10)
}
