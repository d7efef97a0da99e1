package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/aatumaykin/autodelete/internal/retention"
)

// Discord JSON error codes the sweep reacts to.
const (
	codeUnknownChannel     = 10003
	codeUnknownMessage     = 10008
	codeMissingAccess      = 50001
	codeMissingPermissions = 50013
	codeBulkTooOld         = 50034
)

const defaultRetryAfter = time.Second

// Session implements Client on top of a discordgo REST session.
type Session struct {
	s *discordgo.Session
}

// NewSession creates a REST-only session for a bot token. No gateway connection is
// opened. discordgo's own 429 retry loop is disabled so throttling reaches the
// caller as a RateLimitedError.
func NewSession(token string) (*Session, error) {
	s, err := discordgo.New(BotAuthorization(token))
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.ShouldRetryOnRateLimit = false
	s.UserAgent = "DiscordBot (https://github.com/aatumaykin/autodelete, 0.1)"
	return &Session{s: s}, nil
}

func (c *Session) ChannelMessages(ctx context.Context, channelID, before string, limit int) ([]retention.Message, error) {
	msgs, err := c.s.ChannelMessages(channelID, limit, before, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err, "get_messages", channelID, true)
	}

	out := make([]retention.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, convertMessage(m, channelID))
	}
	return out, nil
}

func (c *Session) BulkDelete(ctx context.Context, channelID string, messageIDs []string) error {
	if err := c.s.ChannelMessagesBulkDelete(channelID, messageIDs, discordgo.WithContext(ctx)); err != nil {
		return translate(err, "bulk_delete", channelID, false)
	}
	return nil
}

func (c *Session) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := c.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return translate(err, "delete_message", channelID, false)
	}
	return nil
}

func (c *Session) ValidateCredential(ctx context.Context) (*BotUser, error) {
	u, err := c.s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err, "get_current_user", "", false)
	}
	return &BotUser{ID: u.ID, Username: u.Username, Bot: u.Bot}, nil
}

func convertMessage(m *discordgo.Message, channelID string) retention.Message {
	created := m.Timestamp
	if created.IsZero() {
		if t, err := SnowflakeTime(m.ID); err == nil {
			created = t
		}
	}
	if m.ChannelID != "" {
		channelID = m.ChannelID
	}
	return retention.Message{
		ID:        m.ID,
		ChannelID: channelID,
		CreatedAt: created,
		Pinned:    m.Pinned,
	}
}

// translate maps discordgo errors onto the package's tagged errors. history marks
// errors from reading a channel, where access problems mean HistoryUnavailable.
func translate(err error, op, channelID string, history bool) error {
	var rlErr *discordgo.RateLimitError
	if errors.As(err, &rlErr) {
		retryAfter := defaultRetryAfter
		if rlErr.RateLimit != nil && rlErr.RateLimit.TooManyRequests != nil && rlErr.RateLimit.TooManyRequests.RetryAfter > 0 {
			retryAfter = rlErr.RateLimit.TooManyRequests.RetryAfter
		}
		return &RateLimitedError{Operation: op, RetryAfter: retryAfter}
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	status := 0
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
	}
	code := 0
	if restErr.Message != nil {
		code = restErr.Message.Code
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitedError{
			Operation:  op,
			RetryAfter: retryAfterHeader(restErr.Response),
			Global:     restErr.Response.Header.Get("X-RateLimit-Global") == "true",
		}
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case code == codeUnknownMessage:
		return fmt.Errorf("%s: %w", op, ErrUnknownMessage)
	case code == codeBulkTooOld:
		return fmt.Errorf("%s: %w", op, ErrBulkTooOld)
	case history && (status == http.StatusForbidden || status == http.StatusNotFound ||
		code == codeUnknownChannel || code == codeMissingAccess || code == codeMissingPermissions):
		return &HistoryUnavailableError{ChannelID: channelID, Err: err}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return defaultRetryAfter
	}
	secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs * float64(time.Second))
}
