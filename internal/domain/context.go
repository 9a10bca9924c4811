package domain

import "context"

type ctxKey string

const (
	conversationCtxKey ctxKey = "conversation_id"
	agentCtxKey        ctxKey = "agent_name"
)

// ContextWithConversationID returns a new context carrying the conversation ID (ULID).
func ContextWithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationCtxKey, id)
}

// ConversationIDFromContext extracts the conversation ID from the context.
// Returns empty string if not set.
func ConversationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(conversationCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithAgentName returns a new context carrying the speaking agent's name.
func ContextWithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentCtxKey, name)
}

// AgentNameFromContext extracts the speaking agent's name, or "".
func AgentNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(agentCtxKey).(string); ok {
		return v
	}
	return ""
}
