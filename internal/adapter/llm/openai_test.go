package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightdesk/internal/domain"
	"flightdesk/internal/infra/config"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		Name       string `json:"name"`
		ToolCallID string `json:"tool_call_id"`
		ToolCalls  []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"messages"`
	Tools []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string          `json:"name"`
			Parameters json.RawMessage `json:"parameters"`
		} `json:"function"`
	} `json:"tools"`
}

func fakeOpenAI(t *testing.T, status int, body string, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if got != nil {
			data, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(data, got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server, model string) *OpenAIProvider {
	return NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai",
		BaseURL: srv.URL + "/v1",
		APIKey:  "sk-test",
		Model:   model,
	}, slog.New(slog.DiscardHandler))
}

func TestOpenAIChatText(t *testing.T) {
	var got capturedRequest
	srv := fakeOpenAI(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"model": "gpt-4-0613",
		"created": 1713571200,
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "BookingAgent"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 40, "completion_tokens": 2, "total_tokens": 42}
	}`, &got)

	p := newTestProvider(srv, "")
	assert.Equal(t, "gpt-4", p.Model())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "Pick the next speaker."},
			{Role: domain.RoleUser, Name: "TriageAgent", Content: "I want to book a flight."},
		},
		Temperature: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "BookingAgent", resp.Message.Content)
	assert.Equal(t, domain.RoleAssistant, resp.Message.Role)
	assert.Equal(t, 42, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1713571200), resp.CreatedAt.Unix())

	assert.Equal(t, "gpt-4", got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 0.0001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "TriageAgent", got.Messages[1].Name)
	assert.Empty(t, got.Tools)
}

func TestOpenAIChatToolRoundTrip(t *testing.T) {
	var got capturedRequest
	srv := fakeOpenAI(t, http.StatusOK, `{
		"id": "chatcmpl-2",
		"model": "gpt-4",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "", "tool_calls": [
			{"id": "call_b", "type": "function", "function": {"name": "save_booking", "arguments": "{\"booking_id\":\"01J\"}"}},
			{"id": "call_c", "type": "function", "function": {"name": "get_booking", "arguments": ""}}
		]}, "finish_reason": "tool_calls"}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
	}`, &got)

	call := domain.ToolCall{ID: "call_a", Name: "book_flight", Arguments: json.RawMessage(`{"origin":"New York"}`)}
	req := domain.ChatRequest{
		Model: "gpt-4o",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "book it"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{call}},
			domain.NewToolMessage(call, `{"booking_id":"01J"}`),
		},
		Tools: []domain.ToolSchema{
			{Name: "book_flight", Description: "Book", Parameters: json.RawMessage(`{"type":"object","properties":{"origin":{"type":"string"}}}`)},
			{Name: "get_booking", Description: "Get"},
		},
	}

	resp, err := newTestProvider(srv, "gpt-4").Chat(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, resp.Message.ToolCalls, 2)
	assert.Equal(t, "call_b", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "save_booking", resp.Message.ToolCalls[0].Name)
	assert.JSONEq(t, `{"booking_id":"01J"}`, string(resp.Message.ToolCalls[0].Arguments))
	assert.JSONEq(t, `{}`, string(resp.Message.ToolCalls[1].Arguments))

	assert.Equal(t, "gpt-4o", got.Model)
	require.Len(t, got.Messages, 3)
	require.Len(t, got.Messages[1].ToolCalls, 1)
	assert.Equal(t, "function", got.Messages[1].ToolCalls[0].Type)
	assert.Equal(t, "book_flight", got.Messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", got.Messages[2].Role)
	assert.Equal(t, "call_a", got.Messages[2].ToolCallID)
	assert.Empty(t, got.Messages[2].Name)

	require.Len(t, got.Tools, 2)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(got.Tools[1].Function.Parameters))
}

func TestOpenAIChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, domain.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthInvalid},
		{"too large", http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{"server", http.StatusBadGateway, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeOpenAI(t, tt.status, `{"error":{"message":"nope","type":"server_error"}}`, nil)
			_, err := newTestProvider(srv, "gpt-4").Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestOpenAIChatNoChoices(t *testing.T) {
	srv := fakeOpenAI(t, http.StatusOK, `{"id":"x","model":"gpt-4","choices":[]}`, nil)
	_, err := newTestProvider(srv, "gpt-4").Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderError))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "", sanitizeName(""))
	assert.Equal(t, "SeatSelectionAgent", sanitizeName("SeatSelectionAgent"))
	assert.Equal(t, "Seat_Agent_", sanitizeName("Seat Agent!"))
	assert.Len(t, sanitizeName(string(make([]byte, 100))), 64)
}
