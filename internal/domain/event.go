package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventConversationStarted EventType = "conversation.started"
	EventConversationEnded   EventType = "conversation.ended"
	EventAgentsRegistered    EventType = "conversation.agents_registered"
	EventSpeakerSelected     EventType = "groupchat.speaker_selected"
	EventSpeakerFallback     EventType = "groupchat.speaker_fallback"
	EventTurnAppended        EventType = "groupchat.turn_appended"
	EventToolCallStarted     EventType = "tool.call.started"
	EventToolCallCompleted   EventType = "tool.call.completed"
	EventLLMCallStarted      EventType = "llm.call.started"
	EventLLMCallCompleted    EventType = "llm.call.completed"
	EventAgentError          EventType = "agent.error"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type           EventType       `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// SpeakerPayload is attached to speaker selection events.
type SpeakerPayload struct {
	Round    int    `json:"round"`
	Speaker  string `json:"speaker"`
	Proposed string `json:"proposed,omitempty"`
}

// ConversationEndedPayload is attached to EventConversationEnded.
type ConversationEndedPayload struct {
	Rounds int        `json:"rounds"`
	Reason StopReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

// ToolCallPayload is attached to tool call events.
type ToolCallPayload struct {
	Agent   string `json:"agent"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
}
