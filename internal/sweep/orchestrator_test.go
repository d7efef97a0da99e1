package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/autodelete/internal/deletion"
	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/discord/discordtest"
	"github.com/aatumaykin/autodelete/internal/history"
	"github.com/aatumaykin/autodelete/internal/retention"
	"github.com/aatumaykin/autodelete/internal/retry"
)

const (
	general  = "100000000000000001"
	random   = "100000000000000002"
	missing  = "100000000000000003"
	week     = 7 * 24 * time.Hour
	recorded = "100000000000000004"
)

var now = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) ChannelFinished(channelID, outcome string, evaluated, deleted int) {
	m.Called(channelID, outcome, evaluated, deleted)
}

func (m *mockRecorder) SweepFinished(status string, d time.Duration) {
	m.Called(status, d)
}

type cancellingDeleter struct {
	Deleter
	cancel context.CancelFunc
}

func (c cancellingDeleter) DeleteMany(ctx context.Context, channelID string, msgs []retention.Message) deletion.Report {
	c.cancel()
	return c.Deleter.DeleteMany(ctx, channelID, msgs)
}

func newOrchestrator(fake *discordtest.Fake, clock clockwork.Clock, opts Options, rec Recorder) *Orchestrator {
	opts.Clock = clock
	fetcher := history.NewFetcher(fake, history.Options{}, nil)
	executor := deletion.NewExecutor(fake, deletion.Options{Clock: clock}, nil, nil)
	return NewOrchestrator(fetcher, executor, opts, nil, rec)
}

func setup(t *testing.T) (*discordtest.Fake, clockwork.Clock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	return discordtest.New(clock.Now), clock
}

func mustPolicy(t *testing.T, channels map[string]time.Duration, deletePinned bool) *retention.Policy {
	t.Helper()
	p, err := retention.NewPolicy(channels, deletePinned)
	require.NoError(t, err)
	return p
}

func TestRun_PinnedAndRecentSurvive(t *testing.T) {
	for _, seek := range []bool{true, false} {
		t.Run(map[bool]string{true: "seek cutoff", false: "full walk"}[seek], func(t *testing.T) {
			fake, clock := setup(t)
			old := fake.AddMessage(general, day(1), false)
			pinned := fake.AddMessage(general, day(2), true)
			recent := fake.AddMessage(general, day(9), false)

			o := newOrchestrator(fake, clock, Options{SeekCutoff: seek}, nil)
			res, err := o.Run(context.Background(), mustPolicy(t, map[string]time.Duration{general: week}, false))
			require.NoError(t, err)

			require.Len(t, res.Channels, 1)
			cr := res.Channels[0]
			assert.Equal(t, OutcomeSuccess, cr.Outcome)
			assert.Equal(t, 1, cr.Deleted)
			assert.Equal(t, 1, cr.Expired)
			if seek {
				assert.Equal(t, 2, cr.Evaluated)
			} else {
				assert.Equal(t, 3, cr.Evaluated)
			}
			assert.True(t, res.Succeeded())
			assert.NotEmpty(t, res.ID)

			var ids []string
			for _, m := range fake.Messages(general) {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, []string{pinned, recent}, ids)
			assert.NotContains(t, ids, old)
		})
	}
}

func TestRun_DeletePinned(t *testing.T) {
	fake, clock := setup(t)
	fake.AddMessage(general, day(1), false)
	fake.AddMessage(general, day(2), true)
	fake.AddMessage(general, day(9), false)

	o := newOrchestrator(fake, clock, Options{SeekCutoff: true}, nil)
	res, err := o.Run(context.Background(), mustPolicy(t, map[string]time.Duration{general: week}, true))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Channels[0].Deleted)
	assert.Len(t, fake.Messages(general), 1)
}

func TestRun_Idempotent(t *testing.T) {
	fake, clock := setup(t)
	for i := 0; i < 250; i++ {
		fake.AddMessage(general, day(1).Add(time.Duration(i)*time.Minute), false)
	}
	fake.AddMessage(general, day(9), false)
	policy := mustPolicy(t, map[string]time.Duration{general: week}, false)
	o := newOrchestrator(fake, clock, Options{}, nil)

	first, err := o.Run(context.Background(), policy)
	require.NoError(t, err)
	assert.Equal(t, 250, first.Channels[0].Deleted)

	second, err := o.Run(context.Background(), policy)
	require.NoError(t, err)
	assert.Zero(t, second.Channels[0].Deleted)
	assert.Equal(t, 1, second.Channels[0].Evaluated)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRun_EmptyPolicy(t *testing.T) {
	fake, clock := setup(t)
	o := newOrchestrator(fake, clock, Options{}, nil)

	res, err := o.Run(context.Background(), mustPolicy(t, nil, false))
	require.NoError(t, err)
	assert.Empty(t, res.Channels)
	assert.True(t, res.Succeeded())
	assert.Zero(t, fake.Calls(discordtest.OpGetMessages))
}

func TestRun_ChannelFailureIsIsolated(t *testing.T) {
	fake, clock := setup(t)
	fake.AddMessage(general, day(1), false)
	fake.AddMessage(random, day(1), false)

	policy := mustPolicy(t, map[string]time.Duration{general: week, random: week, missing: week}, false)
	o := newOrchestrator(fake, clock, Options{}, nil)

	res, err := o.Run(context.Background(), policy)
	require.NoError(t, err)
	require.Len(t, res.Channels, 3)

	byID := map[string]ChannelResult{}
	for _, c := range res.Channels {
		byID[c.ChannelID] = c
	}
	assert.Equal(t, OutcomeSuccess, byID[general].Outcome)
	assert.Equal(t, OutcomeSuccess, byID[random].Outcome)
	assert.Equal(t, OutcomeHardFailure, byID[missing].Outcome)
	assert.Equal(t, discord.KindHistoryUnavailable, discord.Classify(byID[missing].Err))

	assert.False(t, res.Succeeded())
	assert.Equal(t, "partial", res.Status())
	assert.Empty(t, fake.Messages(general))
	assert.Empty(t, fake.Messages(random))
}

func TestRun_PartialFailure(t *testing.T) {
	fake, clock := setup(t)
	fake.AddMessage(general, day(1), false)
	fake.Inject(discordtest.OpDeleteMessage, errors.New("internal server error"))

	o := newOrchestrator(fake, clock, Options{}, nil)
	res, err := o.Run(context.Background(), mustPolicy(t, map[string]time.Duration{general: week}, false))
	require.NoError(t, err)

	cr := res.Channels[0]
	assert.Equal(t, OutcomePartialFailure, cr.Outcome)
	assert.Equal(t, 1, cr.Failed)
	assert.Error(t, cr.Err)
	assert.Equal(t, 1, res.Count(OutcomePartialFailure))
}

func rateLimited(op string, n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = &discord.RateLimitedError{Operation: op}
	}
	return errs
}

func TestRun_FetchRateLimitExhaustedIsHardFailure(t *testing.T) {
	fake, clock := setup(t)
	fake.AddMessage(general, day(1), false)
	fake.AddMessage(random, day(1), false)
	fake.Inject(discordtest.OpGetMessages, rateLimited("get_messages", 3)...)

	o := newOrchestrator(fake, clock, Options{MaxRetries: 3}, nil)
	res, err := o.Run(context.Background(), mustPolicy(t, map[string]time.Duration{general: week, random: week}, false))
	require.NoError(t, err)
	require.Len(t, res.Channels, 2)

	assert.Equal(t, general, res.Channels[0].ChannelID)
	assert.Equal(t, OutcomeHardFailure, res.Channels[0].Outcome)
	assert.ErrorIs(t, res.Channels[0].Err, retry.ErrExhausted)
	assert.Equal(t, discord.KindRateLimited, discord.Classify(res.Channels[0].Err))
	assert.Len(t, fake.Messages(general), 1)

	assert.Equal(t, random, res.Channels[1].ChannelID)
	assert.Equal(t, OutcomeSuccess, res.Channels[1].Outcome)
	assert.Equal(t, 1, res.Channels[1].Deleted)
	assert.Empty(t, fake.Messages(random))
}

func TestRun_DeleteRateLimitExhaustedIsPartialFailure(t *testing.T) {
	fake, clock := setup(t)
	fake.AddMessage(general, day(1), false)
	fake.AddMessage(random, day(1), false)
	fake.Inject(discordtest.OpDeleteMessage, rateLimited("delete_message", deletion.DefaultMaxAttempts)...)

	o := newOrchestrator(fake, clock, Options{}, nil)
	res, err := o.Run(context.Background(), mustPolicy(t, map[string]time.Duration{general: week, random: week}, false))
	require.NoError(t, err)
	require.Len(t, res.Channels, 2)

	assert.Equal(t, general, res.Channels[0].ChannelID)
	assert.Equal(t, OutcomePartialFailure, res.Channels[0].Outcome)
	assert.Equal(t, 1, res.Channels[0].Failed)
	assert.Zero(t, res.Channels[0].Deleted)
	assert.ErrorIs(t, res.Channels[0].Err, retry.ErrExhausted)
	assert.Len(t, fake.Messages(general), 1)

	assert.Equal(t, random, res.Channels[1].ChannelID)
	assert.Equal(t, OutcomeSuccess, res.Channels[1].Outcome)
	assert.Equal(t, 1, res.Channels[1].Deleted)
	assert.Equal(t, deletion.DefaultMaxAttempts+1, fake.Calls(discordtest.OpDeleteMessage))
	assert.Equal(t, "partial", res.Status())
}

func TestRun_PageBudgetWithoutSeek(t *testing.T) {
	for _, seek := range []bool{false, true} {
		t.Run(map[bool]string{true: "seek cutoff", false: "full walk"}[seek], func(t *testing.T) {
			fake, clock := setup(t)
			old := fake.AddMessage(general, day(1), false)
			fake.AddMessage(general, day(9), false)
			fake.AddMessage(general, day(9).Add(time.Hour), false)

			fetcher := history.NewFetcher(fake, history.Options{PageSize: 2, MaxPages: 1}, nil)
			executor := deletion.NewExecutor(fake, deletion.Options{Clock: clock}, nil, nil)
			o := NewOrchestrator(fetcher, executor, Options{SeekCutoff: seek, Clock: clock}, nil, nil)

			res, err := o.Run(context.Background(), mustPolicy(t, map[string]time.Duration{general: week}, false))
			require.NoError(t, err)

			var ids []string
			for _, m := range fake.Messages(general) {
				ids = append(ids, m.ID)
			}
			if seek {
				assert.Equal(t, 1, res.Channels[0].Deleted)
				assert.NotContains(t, ids, old)
			} else {
				assert.Zero(t, res.Channels[0].Deleted, "the expired tail lies beyond the page budget")
				assert.Contains(t, ids, old)
			}
		})
	}
}

func TestRun_UnauthorizedIsFatal(t *testing.T) {
	fake, clock := setup(t)
	fake.AddMessage(general, day(1), false)
	fake.AddMessage(random, day(1), false)
	fake.Inject(discordtest.OpGetMessages, discord.ErrUnauthorized)

	o := newOrchestrator(fake, clock, Options{}, nil)
	res, err := o.Run(context.Background(), mustPolicy(t, map[string]time.Duration{general: week, random: week}, false))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, discord.ErrUnauthorized)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, OutcomeHardFailure, res.Channels[0].Outcome)
	assert.Len(t, fake.Messages(random), 1, "no channel runs after a fatal error")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	fake, clock := setup(t)
	fake.AddMessage(general, day(1), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(fake, clock, Options{}, nil)
	res, err := o.Run(ctx, mustPolicy(t, map[string]time.Duration{general: week}, false))
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Channels)
	assert.Equal(t, "cancelled", res.Status())
	assert.Len(t, fake.Messages(general), 1)
}

func TestRun_CancelFinishesCurrentChannel(t *testing.T) {
	fake, clock := setup(t)
	for i := 0; i < 150; i++ {
		fake.AddMessage(general, day(1).Add(time.Duration(i)*time.Minute), false)
	}
	fake.AddMessage(random, day(1), false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := history.NewFetcher(fake, history.Options{}, nil)
	executor := deletion.NewExecutor(fake, deletion.Options{Clock: clock}, nil, nil)
	o := NewOrchestrator(fetcher, cancellingDeleter{Deleter: executor, cancel: cancel}, Options{Clock: clock}, nil, nil)

	res, err := o.Run(ctx, mustPolicy(t, map[string]time.Duration{general: week, random: week}, false))
	require.NoError(t, err)

	require.Len(t, res.Channels, 1)
	assert.Equal(t, general, res.Channels[0].ChannelID)
	assert.Equal(t, 150, res.Channels[0].Deleted)
	assert.True(t, res.Cancelled)
	assert.Empty(t, fake.Messages(general))
	assert.Len(t, fake.Messages(random), 1)
}

func TestRun_Concurrent(t *testing.T) {
	fake, clock := setup(t)
	channels := map[string]time.Duration{}
	for i := 1; i <= 6; i++ {
		id := "20000000000000000" + string(rune('0'+i))
		channels[id] = week
		for j := 0; j < 3; j++ {
			fake.AddMessage(id, day(1).Add(time.Duration(j)*time.Hour), false)
		}
	}
	policy := mustPolicy(t, channels, false)

	o := newOrchestrator(fake, clock, Options{Concurrency: 3}, nil)
	res, err := o.Run(context.Background(), policy)
	require.NoError(t, err)

	require.Len(t, res.Channels, 6)
	for i, id := range policy.Channels() {
		assert.Equal(t, id, res.Channels[i].ChannelID)
		assert.Equal(t, 3, res.Channels[i].Deleted)
		assert.Empty(t, fake.Messages(id))
	}
	_, deleted, failed := res.Totals()
	assert.Equal(t, 18, deleted)
	assert.Zero(t, failed)
}

func TestRun_Recorder(t *testing.T) {
	fake, clock := setup(t)
	fake.AddMessage(recorded, day(1), false)
	fake.AddMessage(recorded, day(9), false)

	rec := &mockRecorder{}
	rec.On("ChannelFinished", recorded, "success", 2, 1).Once()
	rec.On("SweepFinished", "success", mock.AnythingOfType("time.Duration")).Once()

	o := newOrchestrator(fake, clock, Options{}, rec)
	_, err := o.Run(context.Background(), mustPolicy(t, map[string]time.Duration{recorded: week}, false))
	require.NoError(t, err)
	rec.AssertExpectations(t)
}
