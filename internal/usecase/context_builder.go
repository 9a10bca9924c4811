package usecase

import (
	"time"

	"flightdesk/internal/domain"
)

// ContextBuilder constructs the prompt message array for LLM calls.
type ContextBuilder struct {
	systemPrompt string
	maxMessages  int
	model        string
	temperature  float64
}

// NewContextBuilder creates a new context builder. maxMessages <= 0 keeps the
// whole history.
func NewContextBuilder(systemPrompt, model string, maxMessages int) *ContextBuilder {
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		model:        model,
		maxMessages:  maxMessages,
	}
}

// SetTemperature sets the sampling temperature sent with every request.
func (cb *ContextBuilder) SetTemperature(t float64) {
	cb.temperature = t
}

// SystemPrompt returns the prompt placed first in every request.
func (cb *ContextBuilder) SystemPrompt() string { return cb.systemPrompt }

// Build assembles: system prompt + conversation history.
func (cb *ContextBuilder) Build(history []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	messages := make([]domain.Message, 0, 1+len(history))
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   cb.systemPrompt,
		Timestamp: time.Now(),
	})

	// Repair broken tool chains, then truncate.
	hist := RepairTranscript(history)
	hist = cb.truncateHistory(hist)
	messages = append(messages, hist...)

	return domain.ChatRequest{
		Model:       cb.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: cb.temperature,
	}
}

// truncateHistory keeps the newest messages that fit in maxMessages without
// separating an assistant tool call from its results. The newest group is
// always kept, even when it alone exceeds the budget.
func (cb *ContextBuilder) truncateHistory(history []domain.Message) []domain.Message {
	if cb.maxMessages <= 0 || len(history) <= cb.maxMessages {
		return history
	}

	starts := groupStarts(history)
	cut := starts[len(starts)-1]
	for i := len(starts) - 2; i >= 0; i-- {
		if len(history)-starts[i] > cb.maxMessages {
			break
		}
		cut = starts[i]
	}

	kept := history[cut:]
	// The first message is the seed request every agent works from. It stays
	// in view whatever role it was rendered with; the initiator sees its own
	// seed as an assistant message.
	if cut > 0 {
		out := make([]domain.Message, 0, len(kept)+1)
		out = append(out, history[0])
		return append(out, kept...)
	}
	return kept
}

// groupStarts returns the index where each atomic group begins. An assistant
// message with tool calls and the tool results right after it form one
// group; every other message stands alone.
func groupStarts(msgs []domain.Message) []int {
	var starts []int
	for i := 0; i < len(msgs); i++ {
		starts = append(starts, i)
		if msgs[i].Role != domain.RoleAssistant || len(msgs[i].ToolCalls) == 0 {
			continue
		}
		for i+1 < len(msgs) && msgs[i+1].Role == domain.RoleTool {
			i++
		}
	}
	return starts
}
