package deletion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/discord/discordtest"
	"github.com/aatumaykin/autodelete/internal/retention"
)

const channel = "100000000000000001"

var now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	mu          sync.Mutex
	rateLimited map[string]int
	calls       map[string]int
}

func newRecorder() *recorder {
	return &recorder{rateLimited: map[string]int{}, calls: map[string]int{}}
}

func (r *recorder) RateLimited(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimited[op]++
}

func (r *recorder) DeleteCall(op string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
}

func setup(t *testing.T) (*discordtest.Fake, clockwork.Clock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	return discordtest.New(clock.Now), clock
}

func seed(fake *discordtest.Fake, n int, age time.Duration) []retention.Message {
	for i := 0; i < n; i++ {
		fake.AddMessage(channel, now.Add(-age).Add(time.Duration(i)*time.Second), false)
	}
	return fake.Messages(channel)
}

func TestDeleteMany_Empty(t *testing.T) {
	fake, clock := setup(t)
	report := NewExecutor(fake, Options{Clock: clock}, nil, nil).DeleteMany(context.Background(), channel, nil)
	assert.Equal(t, Report{}, report)
	assert.Zero(t, fake.Calls(discordtest.OpBulkDelete)+fake.Calls(discordtest.OpDeleteMessage))
}

func TestDeleteMany_BulkChunking(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		wantBulk   int
		wantSingle int
	}{
		{name: "one message uses single delete", n: 1, wantBulk: 0, wantSingle: 1},
		{name: "two messages use bulk", n: 2, wantBulk: 1},
		{name: "exactly one full chunk", n: 100, wantBulk: 1},
		{name: "trailing single", n: 101, wantBulk: 1, wantSingle: 1},
		{name: "two chunks", n: 150, wantBulk: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, clock := setup(t)
			msgs := seed(fake, tt.n, 24*time.Hour)

			report := NewExecutor(fake, Options{Clock: clock}, nil, nil).DeleteMany(context.Background(), channel, msgs)

			assert.Equal(t, tt.n, report.Deleted)
			assert.False(t, report.Partial())
			assert.Equal(t, tt.wantBulk, fake.Calls(discordtest.OpBulkDelete))
			assert.Equal(t, tt.wantSingle, fake.Calls(discordtest.OpDeleteMessage))
			assert.Empty(t, fake.Messages(channel))
		})
	}
}

func TestDeleteMany_OldMessagesGoOneByOne(t *testing.T) {
	fake, clock := setup(t)
	old := seed(fake, 3, 30*24*time.Hour)
	young := []retention.Message{
		{ID: fake.AddMessage(channel, now.Add(-time.Hour), false), ChannelID: channel, CreatedAt: now.Add(-time.Hour)},
		{ID: fake.AddMessage(channel, now.Add(-time.Minute), false), ChannelID: channel, CreatedAt: now.Add(-time.Minute)},
	}

	report := NewExecutor(fake, Options{Clock: clock}, nil, nil).
		DeleteMany(context.Background(), channel, append(old, young...))

	assert.Equal(t, 5, report.Deleted)
	assert.Equal(t, 1, fake.Calls(discordtest.OpBulkDelete))
	assert.Equal(t, 3, fake.Calls(discordtest.OpDeleteMessage))
}

func TestDeleteMany_NearBulkLimitGoesOneByOne(t *testing.T) {
	fake, clock := setup(t)
	msgs := seed(fake, 2, BulkMaxAge-time.Second)

	report := NewExecutor(fake, Options{Clock: clock}, nil, nil).DeleteMany(context.Background(), channel, msgs)

	assert.Equal(t, 2, report.Deleted)
	assert.Zero(t, fake.Calls(discordtest.OpBulkDelete))
}

func TestDeleteMany_BulkTooOldFallsBack(t *testing.T) {
	fake, clock := setup(t)
	msgs := seed(fake, 4, time.Hour)
	fake.Inject(discordtest.OpBulkDelete, fmt.Errorf("bulk_delete: %w", discord.ErrBulkTooOld))

	report := NewExecutor(fake, Options{Clock: clock}, nil, nil).DeleteMany(context.Background(), channel, msgs)

	assert.Equal(t, 4, report.Deleted)
	assert.Nil(t, report.Err)
	assert.Equal(t, 4, fake.Calls(discordtest.OpDeleteMessage))
}

func TestDeleteMany_RetriesSameBatchAfterRateLimit(t *testing.T) {
	fake, clock := setup(t)
	msgs := seed(fake, 3, time.Hour)
	fake.Inject(discordtest.OpBulkDelete, &discord.RateLimitedError{Operation: "bulk_delete"})
	rec := newRecorder()

	report := NewExecutor(fake, Options{Clock: clock, MaxAttempts: 3}, nil, rec).
		DeleteMany(context.Background(), channel, msgs)

	assert.Equal(t, 3, report.Deleted)
	assert.Equal(t, 2, fake.Calls(discordtest.OpBulkDelete))
	assert.Equal(t, 1, rec.rateLimited["bulk_delete"])
	assert.Equal(t, 1, rec.calls["bulk_delete"])
}

func TestDeleteMany_WaitsRetryAfterBeforeRetrying(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	client := new(discord.MockClient)
	msgs := []retention.Message{
		{ID: "200000000000000001", CreatedAt: now.Add(-time.Hour)},
		{ID: "200000000000000002", CreatedAt: now.Add(-time.Hour)},
	}
	ids := []string{"200000000000000001", "200000000000000002"}
	client.On("BulkDelete", mock.Anything, channel, ids).
		Return(&discord.RateLimitedError{RetryAfter: 2 * time.Second}).Once()
	client.On("BulkDelete", mock.Anything, channel, ids).Return(nil).Once()

	done := make(chan Report, 1)
	go func() {
		done <- NewExecutor(client, Options{Clock: clock}, nil, nil).DeleteMany(context.Background(), channel, msgs)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	client.AssertNumberOfCalls(t, "BulkDelete", 1)
	clock.Advance(2 * time.Second)

	select {
	case report := <-done:
		assert.Equal(t, 2, report.Deleted)
	case <-ctx.Done():
		t.Fatal("executor did not retry")
	}
	client.AssertExpectations(t)
}

func TestDeleteMany_ExhaustedRateLimitIsPartialFailure(t *testing.T) {
	fake, clock := setup(t)
	msgs := seed(fake, 5, time.Hour)
	limited := &discord.RateLimitedError{Operation: "bulk_delete"}
	fake.Inject(discordtest.OpBulkDelete, limited, limited, limited)

	report := NewExecutor(fake, Options{Clock: clock, MaxAttempts: 3}, nil, nil).
		DeleteMany(context.Background(), channel, msgs)

	assert.True(t, report.Throttled)
	assert.True(t, report.Partial())
	assert.Equal(t, 5, report.Failed)
	assert.Zero(t, report.Deleted)
	assert.Equal(t, 3, fake.Calls(discordtest.OpBulkDelete))
	assert.Len(t, fake.Messages(channel), 5)
}

func TestDeleteMany_UnknownMessageIsMissing(t *testing.T) {
	fake, clock := setup(t)
	msgs := seed(fake, 1, 30*24*time.Hour)
	msgs = append(msgs, retention.Message{ID: "100000000000000777", CreatedAt: now.Add(-30 * 24 * time.Hour)})

	report := NewExecutor(fake, Options{Clock: clock}, nil, nil).DeleteMany(context.Background(), channel, msgs)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Missing)
	assert.False(t, report.Partial())
}

func TestDeleteMany_OtherErrorsContinue(t *testing.T) {
	fake, clock := setup(t)
	msgs := seed(fake, 3, 30*24*time.Hour)
	boom := errors.New("502 bad gateway")
	fake.Inject(discordtest.OpDeleteMessage, boom)

	report := NewExecutor(fake, Options{Clock: clock}, nil, nil).DeleteMany(context.Background(), channel, msgs)

	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Err, boom)
	assert.False(t, report.Fatal)
	assert.False(t, report.Throttled)
}

func TestDeleteMany_UnauthorizedStops(t *testing.T) {
	fake, clock := setup(t)
	msgs := seed(fake, 3, 30*24*time.Hour)
	fake.Inject(discordtest.OpDeleteMessage, fmt.Errorf("delete_message: %w", discord.ErrUnauthorized))

	report := NewExecutor(fake, Options{Clock: clock}, nil, nil).DeleteMany(context.Background(), channel, msgs)

	assert.True(t, report.Fatal)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 1, fake.Calls(discordtest.OpDeleteMessage))
}

func TestDeleteMany_SpacesCalls(t *testing.T) {
	fake, clock := setup(t)
	msgs := seed(fake, 3, 30*24*time.Hour)

	start := time.Now()
	report := NewExecutor(fake, Options{Clock: clock, MinInterval: 25 * time.Millisecond}, nil, nil).
		DeleteMany(context.Background(), channel, msgs)

	assert.Equal(t, 3, report.Deleted)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestNewLimiter(t *testing.T) {
	assert.True(t, NewLimiter(0).Allow())
	assert.True(t, NewLimiter(0).Allow())

	l := NewLimiter(time.Hour)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}
