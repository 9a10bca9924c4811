package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightdesk/internal/domain"
)

func callMsg(calls ...string) domain.Message {
	m := domain.Message{Role: domain.RoleAssistant}
	for _, id := range calls {
		m.ToolCalls = append(m.ToolCalls, domain.ToolCall{ID: id, Name: "tool_" + id})
	}
	return m
}

func resultMsg(id, content string) domain.Message {
	return domain.NewToolMessage(domain.ToolCall{ID: id, Name: "tool_" + id}, content)
}

// shape renders a transcript as role[:call-id] tokens for compact comparison.
func shape(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.Role == domain.RoleTool && m.Content == missingResultContent:
			out = append(out, "injected:"+m.ToolCallID())
		case m.Role == domain.RoleTool:
			out = append(out, "tool:"+m.ToolCallID())
		case len(m.ToolCalls) > 0:
			out = append(out, "calls")
		default:
			out = append(out, string(m.Role))
		}
	}
	return out
}

func TestRepairTranscript(t *testing.T) {
	seed := domain.Message{Role: domain.RoleUser, Name: "TriageAgent", Content: "book New York to London"}
	reply := domain.Message{Role: domain.RoleAssistant, Content: "Booking confirmed."}

	tests := []struct {
		name string
		in   []domain.Message
		want []string
	}{
		{
			name: "plain conversation untouched",
			in:   []domain.Message{seed, reply, {Role: domain.RoleUser, Content: "thanks"}},
			want: []string{"user", "assistant", "user"},
		},
		{
			name: "complete chain untouched",
			in:   []domain.Message{seed, callMsg("c1"), resultMsg("c1", "B1"), reply},
			want: []string{"user", "calls", "tool:c1", "assistant"},
		},
		{
			name: "missing result injected before next user turn",
			in:   []domain.Message{seed, callMsg("c1"), {Role: domain.RoleUser, Content: "and a seat?"}},
			want: []string{"user", "calls", "injected:c1", "user"},
		},
		{
			name: "orphan result dropped",
			in:   []domain.Message{seed, resultMsg("c9", "stray"), reply},
			want: []string{"user", "assistant"},
		},
		{
			name: "partial results filled in call order",
			in:   []domain.Message{seed, callMsg("c1", "c2", "c3"), resultMsg("c2", "b"), reply},
			want: []string{"user", "calls", "tool:c2", "injected:c1", "injected:c3", "assistant"},
		},
		{
			name: "results out of order are kept",
			in:   []domain.Message{callMsg("c1", "c2"), resultMsg("c2", "b"), resultMsg("c1", "a")},
			want: []string{"calls", "tool:c2", "tool:c1"},
		},
		{
			name: "dangling calls at the end",
			in:   []domain.Message{seed, callMsg("c1")},
			want: []string{"user", "calls", "injected:c1"},
		},
		{
			name: "second call batch closes the first",
			in:   []domain.Message{callMsg("c1"), callMsg("c2"), resultMsg("c2", "x")},
			want: []string{"calls", "injected:c1", "calls", "tool:c2"},
		},
		{
			name: "result for a closed batch is an orphan",
			in:   []domain.Message{callMsg("c1"), reply, resultMsg("c1", "late")},
			want: []string{"calls", "injected:c1", "assistant"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shape(RepairTranscript(tt.in)))
		})
	}
}

func TestRepairTranscriptEmpty(t *testing.T) {
	assert.Nil(t, RepairTranscript(nil))
	assert.Empty(t, RepairTranscript([]domain.Message{}))
}

func TestRepairTranscriptDoesNotMutateInput(t *testing.T) {
	in := []domain.Message{callMsg("c1", "c2"), resultMsg("c1", "a")}
	out := RepairTranscript(in)

	require.Len(t, in, 2)
	require.Len(t, out, 3)
	assert.Len(t, in[0].ToolCalls, 2)

	injected := out[2]
	assert.Equal(t, domain.RoleTool, injected.Role)
	assert.Equal(t, "tool_c2", injected.Name)
	assert.Equal(t, "c2", injected.ToolCallID())
}

func TestRepairTranscriptSkipsCallsWithoutID(t *testing.T) {
	in := []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{Name: "get_booking"}}},
		{Role: domain.RoleAssistant, Content: "ok"},
	}
	assert.Equal(t, []string{"calls", "assistant"}, shape(RepairTranscript(in)))
}
