// Package discord is the boundary to the Discord REST API. It exposes the four
// operations a retention sweep needs behind the Client interface and turns every
// failure into one of the tagged errors declared in errors.go.
package discord

import (
	"context"

	"github.com/aatumaykin/autodelete/internal/retention"
)

// Discord API limits.
const (
	// MaxPageSize is the largest page GET /channels/{id}/messages accepts.
	MaxPageSize = 100
	// MaxBulkDelete is the largest batch bulk-delete accepts.
	MaxBulkDelete = 100
	// MinBulkDelete is the smallest batch bulk-delete accepts.
	MinBulkDelete = 2
)

// BotUser identifies the account behind a credential.
type BotUser struct {
	ID       string
	Username string
	Bot      bool
}

// Client is the set of remote operations used by the sweep.
type Client interface {
	// ChannelMessages returns up to limit messages older than before, newest first
	// as Discord returns them. An empty before starts at the newest message.
	ChannelMessages(ctx context.Context, channelID, before string, limit int) ([]retention.Message, error)

	// BulkDelete removes 2..100 messages younger than two weeks in one call.
	BulkDelete(ctx context.Context, channelID string, messageIDs []string) error

	// DeleteMessage removes a single message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// ValidateCredential checks the token against the API and returns its owner.
	ValidateCredential(ctx context.Context) (*BotUser, error)
}
