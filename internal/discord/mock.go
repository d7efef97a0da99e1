package discord

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/aatumaykin/autodelete/internal/retention"
)

// MockClient is a testify/mock implementation of Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) ChannelMessages(ctx context.Context, channelID, before string, limit int) ([]retention.Message, error) {
	args := m.Called(ctx, channelID, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retention.Message), args.Error(1)
}

func (m *MockClient) BulkDelete(ctx context.Context, channelID string, messageIDs []string) error {
	args := m.Called(ctx, channelID, messageIDs)
	return args.Error(0)
}

func (m *MockClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	args := m.Called(ctx, channelID, messageID)
	return args.Error(0)
}

func (m *MockClient) ValidateCredential(ctx context.Context) (*BotUser, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BotUser), args.Error(1)
}
