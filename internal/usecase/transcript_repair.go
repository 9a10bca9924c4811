package usecase

import "flightdesk/internal/domain"

// missingResultContent is the tool result injected for a call that never
// received one.
const missingResultContent = "[error] tool call did not produce a result"

// RepairTranscript scans the message history and fixes broken tool chains:
//  1. If an Assistant message has ToolCalls but the next message is NOT a
//     matching ToolResult, inject an error ToolResult.
//  2. If a ToolResult appears without a preceding Assistant tool_call,
//     remove the orphan.
//
// Injected results follow the order of the original calls. Returns a new
// slice (does not modify the input).
func RepairTranscript(messages []domain.Message) []domain.Message {
	if len(messages) == 0 {
		return messages
	}

	result := make([]domain.Message, 0, len(messages))
	var pending []domain.ToolCall

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleAssistant:
			result = injectMissingResults(result, pending)
			pending = pending[:0]
			for _, tc := range msg.ToolCalls {
				if tc.ID != "" {
					pending = append(pending, tc)
				}
			}
			result = append(result, msg)

		case domain.RoleTool:
			idx := indexOfCall(pending, msg.ToolCallID())
			if idx < 0 {
				continue // orphan
			}
			pending = append(pending[:idx], pending[idx+1:]...)
			result = append(result, msg)

		default:
			result = injectMissingResults(result, pending)
			pending = pending[:0]
			result = append(result, msg)
		}
	}

	return injectMissingResults(result, pending)
}

func indexOfCall(calls []domain.ToolCall, id string) int {
	if id == "" {
		return -1
	}
	for i, c := range calls {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// injectMissingResults appends an error ToolResult for each pending call.
func injectMissingResults(msgs []domain.Message, pending []domain.ToolCall) []domain.Message {
	for _, tc := range pending {
		msgs = append(msgs, domain.NewToolMessage(tc, missingResultContent))
	}
	return msgs
}
