package domain

import (
	"context"
	"time"
)

// Turn is one round of a group conversation: the message a speaker
// contributed plus the private tool exchange that produced it.
type Turn struct {
	Round     int       `json:"round"`
	Speaker   string    `json:"speaker"`
	Message   Message   `json:"message"`
	ToolTrace []Message `json:"tool_trace,omitempty"`
}

// Reply is what a participant returns when asked to speak.
type Reply struct {
	Message   Message
	ToolTrace []Message
	Usage     Usage
}

// Candidate is a participant as presented to a speaker selector.
type Candidate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Selection is a speaker selector's decision. An empty Speaker with Stop
// unset means the selector produced no usable choice.
type Selection struct {
	Speaker string `json:"speaker,omitempty"`
	Stop    bool   `json:"stop,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// SpeakerSelector picks the next speaker from the conversation so far.
type SpeakerSelector interface {
	SelectSpeaker(ctx context.Context, history []Turn, candidates []Candidate) (Selection, error)
}

// StopReason records why a conversation ended.
type StopReason string

const (
	StopTerminated  StopReason = "terminated"
	StopManager     StopReason = "manager_stop"
	StopMaxRounds   StopReason = "max_rounds"
	StopAborted     StopReason = "aborted"
	StopInterrupted StopReason = "interrupted"
)

// ConversationResult is the outcome of one group conversation.
type ConversationResult struct {
	ConversationID string        `json:"conversation_id"`
	Turns          []Turn        `json:"turns"`
	Rounds         int           `json:"rounds"`
	MaxRounds      int           `json:"max_rounds"`
	Reason         StopReason    `json:"reason"`
	Usage          Usage         `json:"usage"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// Speakers returns the speaker of every turn in order.
func (r *ConversationResult) Speakers() []string {
	out := make([]string, len(r.Turns))
	for i, t := range r.Turns {
		out[i] = t.Speaker
	}
	return out
}

// FirstTurnBy returns the round of the first turn spoken by name, or 0.
func (r *ConversationResult) FirstTurnBy(name string) int {
	for _, t := range r.Turns {
		if t.Speaker == name {
			return t.Round
		}
	}
	return 0
}
