package llm

import (
	"context"
	"sync/atomic"

	"flightdesk/internal/domain"
)

// mockProvider is a scriptable domain.LLMProvider.
type mockProvider struct {
	name     string
	calls    atomic.Int32
	chatFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.calls.Add(1)
	if m.chatFunc == nil {
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: m.name}}, nil
	}
	return m.chatFunc(ctx, req)
}
