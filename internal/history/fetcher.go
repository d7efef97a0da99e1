// Package history pages through a channel's message history from the newest
// message backwards, one bounded batch at a time.
package history

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strconv"

	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/logger"
	"github.com/aatumaykin/autodelete/internal/retention"
)

// Done is returned by Pager.Next when the history is exhausted.
var Done = errors.New("no more history")

const (
	DefaultPageSize = discord.MaxPageSize
	DefaultMaxPages = 50
)

// Options bounds a single channel walk.
type Options struct {
	PageSize int // messages per request, clamped to 1..100
	MaxPages int // requests per walk, <= 0 means DefaultMaxPages
}

// Fetcher creates pagers over a Discord client.
type Fetcher struct {
	client discord.Client
	opts   Options
	logger *logger.Logger
}

// NewFetcher returns a Fetcher using client.
func NewFetcher(client discord.Client, opts Options, log *logger.Logger) *Fetcher {
	if opts.PageSize <= 0 || opts.PageSize > discord.MaxPageSize {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{client: client, opts: opts, logger: log}
}

// Options returns the effective options.
func (f *Fetcher) Options() Options {
	return f.opts
}

// Fetch starts a walk over channelID. before, when set, skips everything at or
// after that snowflake. No request is made until Next is called.
func (f *Fetcher) Fetch(channelID, before string) *Pager {
	return &Pager{
		fetcher:   f,
		channelID: channelID,
		cursor:    before,
		seen:      make(map[string]struct{}),
	}
}

// Pager is a lazy, finite sequence of batches for one channel.
type Pager struct {
	fetcher   *Fetcher
	channelID string
	cursor    string
	seen      map[string]struct{}
	pages     int
	done      bool
}

// Next returns the next batch ordered oldest first, or Done. A failed call leaves
// the cursor untouched so the same page can be requested again.
func (p *Pager) Next(ctx context.Context) ([]retention.Message, error) {
	if p.done {
		return nil, Done
	}
	if p.pages >= p.fetcher.opts.MaxPages {
		p.done = true
		p.fetcher.logger.Debug("page budget exhausted",
			logger.Field{Key: "channel_id", Value: p.channelID},
			logger.Field{Key: "pages", Value: p.pages})
		return nil, Done
	}

	batch, err := p.fetcher.client.ChannelMessages(ctx, p.channelID, p.cursor, p.fetcher.opts.PageSize)
	if err != nil {
		return nil, err
	}
	p.seen[p.cursor] = struct{}{}
	p.pages++

	if len(batch) == 0 {
		p.done = true
		return nil, Done
	}

	slices.SortFunc(batch, func(a, b retention.Message) int {
		return cmp.Compare(snowflake(a.ID), snowflake(b.ID))
	})

	next := batch[0].ID
	switch {
	case len(batch) < p.fetcher.opts.PageSize:
		p.done = true
	case p.isSeen(next):
		p.fetcher.logger.Warn("pagination cursor repeated, stopping channel walk",
			logger.Field{Key: "channel_id", Value: p.channelID},
			logger.Field{Key: "cursor", Value: next})
		p.done = true
	default:
		p.cursor = next
	}

	return batch, nil
}

// Pages returns how many requests succeeded so far.
func (p *Pager) Pages() int {
	return p.pages
}

func (p *Pager) isSeen(cursor string) bool {
	_, ok := p.seen[cursor]
	return ok
}

func snowflake(id string) uint64 {
	v, _ := strconv.ParseUint(id, 10, 64)
	return v
}
