package discord

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeRoundTrip(t *testing.T) {
	at := time.Date(2024, 1, 10, 12, 30, 0, 0, time.UTC)

	id := SnowflakeFromTime(at)
	got, err := SnowflakeTime(id)
	require.NoError(t, err)
	assert.True(t, got.Equal(at), "got %s want %s", got, at)
}

func TestSnowflakeFromTime_BeforeEpoch(t *testing.T) {
	assert.Equal(t, "0", SnowflakeFromTime(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSnowflakeFromTime_IsOrdered(t *testing.T) {
	a := SnowflakeFromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := SnowflakeFromTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	av, err := strconv.ParseUint(a, 10, 64)
	require.NoError(t, err)
	bv, err := strconv.ParseUint(b, 10, 64)
	require.NoError(t, err)
	assert.Less(t, av, bv)
}
