// Package discordtest provides an in-memory Discord channel store that implements
// discord.Client with the real API's paging and bulk-delete rules.
package discordtest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/retention"
)

// Operation names accepted by Inject and Calls.
const (
	OpGetMessages   = "get_messages"
	OpBulkDelete    = "bulk_delete"
	OpDeleteMessage = "delete_message"
	OpValidate      = "validate"
)

// BulkMaxAge mirrors Discord's two week bulk-delete window.
const BulkMaxAge = 14 * 24 * time.Hour

// Fake is a concurrency-safe fake Discord.
type Fake struct {
	mu       sync.Mutex
	channels map[string]map[uint64]retention.Message
	injected map[string][]error
	calls    map[string]int
	cursors  []string
	seq      uint64
	now      func() time.Time
}

// New returns an empty fake. now drives the bulk-delete age check.
func New(now func() time.Time) *Fake {
	if now == nil {
		now = time.Now
	}
	return &Fake{
		channels: make(map[string]map[uint64]retention.Message),
		injected: make(map[string][]error),
		calls:    make(map[string]int),
		now:      now,
	}
}

// AddChannel registers an empty channel.
func (f *Fake) AddChannel(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		f.channels[channelID] = make(map[uint64]retention.Message)
	}
}

// AddMessage stores a message created at createdAt and returns its id.
func (f *Fake) AddMessage(channelID string, createdAt time.Time, pinned bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.channels[channelID]; !ok {
		f.channels[channelID] = make(map[uint64]retention.Message)
	}

	base, _ := strconv.ParseUint(discord.SnowflakeFromTime(createdAt), 10, 64)
	f.seq++
	id := base | (f.seq & 0x3FFFFF)

	msg := retention.Message{
		ID:        strconv.FormatUint(id, 10),
		ChannelID: channelID,
		CreatedAt: createdAt,
		Pinned:    pinned,
	}
	f.channels[channelID][id] = msg
	return msg.ID
}

// Inject queues errors returned, one per call, by the next calls to op.
func (f *Fake) Inject(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected[op] = append(f.injected[op], errs...)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Cursors returns every before value passed to ChannelMessages, in call order.
func (f *Fake) Cursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.cursors)
}

// Messages returns the remaining messages of channelID, oldest first.
func (f *Fake) Messages(channelID string) []retention.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(channelID)
}

func (f *Fake) sorted(channelID string) []retention.Message {
	out := make([]retention.Message, 0, len(f.channels[channelID]))
	for _, m := range f.channels[channelID] {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b retention.Message) int {
		return cmp.Compare(parseID(a.ID), parseID(b.ID))
	})
	return out
}

func (f *Fake) begin(op string) error {
	f.calls[op]++
	if q := f.injected[op]; len(q) > 0 {
		f.injected[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) ChannelMessages(ctx context.Context, channelID, before string, limit int) ([]retention.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cursors = append(f.cursors, before)
	if err := f.begin(OpGetMessages); err != nil {
		return nil, err
	}
	if _, ok := f.channels[channelID]; !ok {
		return nil, &discord.HistoryUnavailableError{ChannelID: channelID, Err: fmt.Errorf("unknown channel")}
	}

	all := f.sorted(channelID)
	slices.Reverse(all)

	var out []retention.Message
	for _, m := range all {
		if before != "" && parseID(m.ID) >= parseID(before) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) BulkDelete(ctx context.Context, channelID string, messageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(OpBulkDelete); err != nil {
		return err
	}
	if len(messageIDs) < discord.MinBulkDelete || len(messageIDs) > discord.MaxBulkDelete {
		return fmt.Errorf("bulk delete of %d messages outside 2..100", len(messageIDs))
	}

	msgs := f.channels[channelID]
	now := f.now()
	for _, id := range messageIDs {
		if m, ok := msgs[parseID(id)]; ok && now.Sub(m.CreatedAt) >= BulkMaxAge {
			return fmt.Errorf("bulk_delete: %w", discord.ErrBulkTooOld)
		}
	}
	for _, id := range messageIDs {
		delete(msgs, parseID(id))
	}
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(OpDeleteMessage); err != nil {
		return err
	}
	msgs := f.channels[channelID]
	if _, ok := msgs[parseID(messageID)]; !ok {
		return fmt.Errorf("delete_message: %w", discord.ErrUnknownMessage)
	}
	delete(msgs, parseID(messageID))
	return nil
}

func (f *Fake) ValidateCredential(ctx context.Context) (*discord.BotUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(OpValidate); err != nil {
		return nil, err
	}
	return &discord.BotUser{ID: "100000000000000999", Username: "autodelete", Bot: true}, nil
}

func parseID(id string) uint64 {
	v, _ := strconv.ParseUint(id, 10, 64)
	return v
}
