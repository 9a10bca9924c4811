package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"flightdesk/internal/domain"
	"flightdesk/internal/infra/tracer"
	"flightdesk/internal/usecase/eventbus"
)

const defaultMaxIterations = 10

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	Spec           domain.AgentSpec
	LLM            domain.LLMProvider
	ContextBuilder *ContextBuilder // optional, built from Spec when nil
	Logger         *slog.Logger
	MaxIterations  int
	Bus            domain.EventBus // optional, nil = no events
}

// Agent is a group chat participant backed by an LLM. Within one turn it
// calls tools until the model produces a reply without tool calls.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = defaultMaxIterations
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.ContextBuilder == nil {
		deps.ContextBuilder = NewContextBuilder(deps.Spec.SystemPrompt, deps.Spec.Backend.Model, 0)
	}
	deps.Logger = deps.Logger.With("agent", deps.Spec.Name)
	return &Agent{deps: deps}
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.deps.Spec.Name }

// Description returns the one-line role summary shown to the manager.
func (a *Agent) Description() string { return a.deps.Spec.Description }

// Spec returns the descriptor the agent was built from.
func (a *Agent) Spec() domain.AgentSpec { return a.deps.Spec }

// Reply produces the agent's next message from the shared conversation.
// The tool exchange behind the message is returned in Reply.ToolTrace.
func (a *Agent) Reply(ctx context.Context, history []domain.Turn) (domain.Reply, error) {
	name := a.deps.Spec.Name
	ctx = domain.ContextWithAgentName(ctx, name)
	ctx, span := tracer.StartSpan(ctx, "agent.reply",
		trace.WithAttributes(tracer.StringAttr("agent.name", name)),
	)
	defer span.End()

	conversation := a.conversation(history)
	var schemas []domain.ToolSchema
	if a.deps.Spec.HasTools() {
		schemas = a.deps.Spec.Tools.Schemas()
	}

	var reply domain.Reply
	for i := 0; i < a.deps.MaxIterations; i++ {
		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		req := a.deps.ContextBuilder.Build(slices.Concat(conversation, reply.ToolTrace), schemas)

		eventbus.Emit(a.deps.Bus, ctx, domain.EventLLMCallStarted, map[string]string{"agent": name})
		resp, err := a.deps.LLM.Chat(ctx, req)
		if err != nil {
			eventbus.Emit(a.deps.Bus, ctx, domain.EventAgentError, map[string]string{
				"agent": name,
				"error": err.Error(),
			})
			tracer.RecordError(span, err)
			return reply, domain.NewDomainError("Agent.Reply", err, name)
		}
		eventbus.Emit(a.deps.Bus, ctx, domain.EventLLMCallCompleted, map[string]string{"agent": name})

		reply.Usage.Add(resp.Usage)
		msg := resp.Message
		msg.Role = domain.RoleAssistant
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}

		a.deps.Logger.Debug("llm response",
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 {
			msg.Name = name
			reply.Message = msg
			tracer.SetOK(span)
			return reply, nil
		}

		for j := range msg.ToolCalls {
			if msg.ToolCalls[j].ID == "" {
				msg.ToolCalls[j].ID = fmt.Sprintf("call_%d_%d", i, j)
			}
		}

		// Results are collected in call order.
		toolMsgs := make([]domain.Message, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for idx, call := range msg.ToolCalls {
			wg.Add(1)
			go func() {
				defer wg.Done()
				toolMsgs[idx] = a.executeTool(ctx, call)
			}()
		}
		wg.Wait()

		reply.ToolTrace = append(reply.ToolTrace, msg)
		reply.ToolTrace = append(reply.ToolTrace, toolMsgs...)
	}

	err := domain.NewDomainError("Agent.Reply", domain.ErrMaxIterations, name)
	eventbus.Emit(a.deps.Bus, ctx, domain.EventAgentError, map[string]string{
		"agent": name,
		"error": err.Error(),
	})
	tracer.RecordError(span, err)
	return reply, err
}

// conversation renders the shared history from this agent's point of view:
// its own turns (with their tool exchanges) as assistant messages, everyone
// else's as named user messages.
func (a *Agent) conversation(history []domain.Turn) []domain.Message {
	msgs := make([]domain.Message, 0, len(history))
	for _, t := range history {
		if t.Speaker == a.deps.Spec.Name {
			msgs = append(msgs, t.ToolTrace...)
			m := t.Message
			m.Role = domain.RoleAssistant
			m.ToolCalls = nil
			msgs = append(msgs, m)
			continue
		}
		msgs = append(msgs, domain.Message{
			Role:      domain.RoleUser,
			Name:      t.Speaker,
			Content:   t.Message.Content,
			Timestamp: t.Message.Timestamp,
		})
	}
	return msgs
}

// executeTool runs a single tool call and returns the result as a Message.
// Failures become error content for the model, never Go errors.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	if !a.deps.Spec.HasTools() {
		err := domain.NewDomainError("Agent.executeTool", domain.ErrToolNotFound,
			fmt.Sprintf("%s has no tools", a.deps.Spec.Name))
		tracer.RecordError(span, err)
		return domain.NewToolMessage(call, err.Error())
	}

	tool, err := a.deps.Spec.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.NewToolMessage(call, err.Error())
	}

	payload := domain.ToolCallPayload{Agent: a.deps.Spec.Name, Tool: call.Name}
	eventbus.Emit(a.deps.Bus, ctx, domain.EventToolCallStarted, payload)
	result, err := tool.Execute(ctx, call.Arguments)
	payload.Success = err == nil && result != nil && !result.IsError
	eventbus.Emit(a.deps.Bus, ctx, domain.EventToolCallCompleted, payload)

	switch {
	case err != nil:
		tracer.RecordError(span, err)
		a.deps.Logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return domain.NewToolMessage(call, fmt.Sprintf("%s: %v", domain.ErrToolFailure, err))
	case result == nil:
		return domain.NewToolMessage(call, "")
	case result.IsError:
		a.deps.Logger.Debug("tool returned error", "tool", call.Name, "retryable", result.IsRetryable)
		span.SetAttributes(tracer.StringAttr("tool.outcome", "error"))
	default:
		tracer.SetOK(span)
	}
	return domain.NewToolMessage(call, result.Content)
}
