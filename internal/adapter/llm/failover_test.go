package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightdesk/internal/domain"
)

func failing(name string, err error) *mockProvider {
	return &mockProvider{
		name: name,
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, err
		},
	}
}

func TestFailoverPrimarySucceeds(t *testing.T) {
	primary := &mockProvider{name: "primary"}
	fb := &mockProvider{name: "fallback"}
	f := NewFailoverProvider(primary, []domain.LLMProvider{fb}, slog.New(slog.DiscardHandler))

	resp, err := f.Chat(context.Background(), domain.ChatRequest{Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Message.Content)
	assert.Equal(t, int32(0), fb.calls.Load())
	assert.Equal(t, "primary", f.Name())
}

func TestFailoverUsesFallbackWithItsOwnModel(t *testing.T) {
	var gotModel string
	fb := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
			gotModel = req.Model
			return &domain.ChatResponse{Message: domain.Message{Content: "from fallback"}}, nil
		},
	}
	f := NewFailoverProvider(failing("primary", domain.ErrRateLimit), []domain.LLMProvider{fb}, slog.New(slog.DiscardHandler))

	resp, err := f.Chat(context.Background(), domain.ChatRequest{Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Message.Content)
	assert.Empty(t, gotModel)
}

func TestFailoverAllFail(t *testing.T) {
	f := NewFailoverProvider(
		failing("primary", domain.ErrRateLimit),
		[]domain.LLMProvider{failing("backup", domain.ErrAuthInvalid)},
		slog.New(slog.DiscardHandler),
	)

	_, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimit))
	assert.True(t, errors.Is(err, domain.ErrAuthInvalid))
	assert.Contains(t, err.Error(), "all providers failed")
	assert.Contains(t, err.Error(), "backup")
}

func TestFailoverStopsOnCancelledContext(t *testing.T) {
	fb := &mockProvider{name: "fallback"}
	f := NewFailoverProvider(
		&mockProvider{name: "primary", chatFunc: func(ctx context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, ctx.Err()
		}},
		[]domain.LLMProvider{fb},
		slog.New(slog.DiscardHandler),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Chat(ctx, domain.ChatRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), fb.calls.Load())
}
