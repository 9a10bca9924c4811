// Package groupchat runs a round-based conversation between named
// participants, with a selector choosing who speaks next.
package groupchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"flightdesk/internal/domain"
	"flightdesk/internal/infra/tracer"
	"flightdesk/internal/usecase/eventbus"
)

const (
	// DefaultMaxRounds caps a conversation when Config.MaxRounds is zero.
	DefaultMaxRounds = 8
	// DefaultTerminateKeyword ends a conversation when a message ends with it.
	DefaultTerminateKeyword = "TERMINATE"
)

// Participant is a named member of the conversation.
type Participant interface {
	Name() string
	Description() string
	Reply(ctx context.Context, history []domain.Turn) (domain.Reply, error)
}

// Config holds the conversation limits.
type Config struct {
	MaxRounds        int
	TerminateKeyword string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithEventBus publishes conversation events on bus.
func WithEventBus(bus domain.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// Manager drives the conversation loop.
type Manager struct {
	cfg          Config
	participants []Participant
	byName       map[string]Participant
	selector     domain.SpeakerSelector
	logger       *slog.Logger
	bus          domain.EventBus
}

// New registers participants in order. A nil selector means round-robin.
func New(cfg Config, participants []Participant, selector domain.SpeakerSelector, opts ...Option) (*Manager, error) {
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.MaxRounds < 0 {
		return nil, domain.NewSubSystemError("groupchat", "groupchat.New", domain.ErrInvalidInput,
			fmt.Sprintf("max rounds must be positive, got %d", cfg.MaxRounds))
	}
	if cfg.TerminateKeyword == "" {
		cfg.TerminateKeyword = DefaultTerminateKeyword
	}
	if len(participants) == 0 {
		return nil, domain.NewSubSystemError("groupchat", "groupchat.New", domain.ErrInvalidInput, "no participants")
	}

	byName := make(map[string]Participant, len(participants))
	for _, p := range participants {
		if _, exists := byName[p.Name()]; exists {
			return nil, domain.NewSubSystemError("groupchat", "groupchat.New", domain.ErrDuplicate, p.Name())
		}
		byName[p.Name()] = p
	}
	if selector == nil {
		selector = RoundRobinSelector{}
	}

	m := &Manager{
		cfg:          cfg,
		participants: participants,
		byName:       byName,
		selector:     selector,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Participants returns participant names in registration order.
func (m *Manager) Participants() []string {
	out := make([]string, len(m.participants))
	for i, p := range m.participants {
		out[i] = p.Name()
	}
	return out
}

// MaxRounds returns the round cap.
func (m *Manager) MaxRounds() int { return m.cfg.MaxRounds }

func (m *Manager) candidates() []domain.Candidate {
	out := make([]domain.Candidate, len(m.participants))
	for i, p := range m.participants {
		out[i] = domain.Candidate{Name: p.Name(), Description: p.Description()}
	}
	return out
}

// Run opens the conversation with initiator's seed as round 1 and lets the
// selector pick speakers until a stop condition. On a speaker failure the
// partial result is returned together with the error.
func (m *Manager) Run(ctx context.Context, initiator, seed string) (*domain.ConversationResult, error) {
	if _, ok := m.byName[initiator]; !ok {
		return nil, domain.NewSubSystemError("groupchat", "Manager.Run", domain.ErrNotFound,
			fmt.Sprintf("initiator %q", initiator))
	}

	state := NewState(m.cfg.MaxRounds)
	ctx = domain.ContextWithConversationID(ctx, state.ID())
	ctx, span := tracer.StartSpan(ctx, "groupchat.run",
		trace.WithAttributes(
			tracer.StringAttr("conversation.id", state.ID()),
			tracer.IntAttr("conversation.max_rounds", m.cfg.MaxRounds),
		),
	)
	defer span.End()

	logger := m.logger.With("conversation", state.ID())
	eventbus.Emit(m.bus, ctx, domain.EventConversationStarted, map[string]any{
		"initiator":  initiator,
		"max_rounds": m.cfg.MaxRounds,
	})
	eventbus.Emit(m.bus, ctx, domain.EventAgentsRegistered, map[string]any{
		"participants": m.Participants(),
	})
	logger.Info("conversation started", "initiator", initiator, "participants", m.Participants())

	var usage domain.Usage
	finish := func(reason domain.StopReason, err error) (*domain.ConversationResult, error) {
		res := state.Result(reason, usage)
		payload := domain.ConversationEndedPayload{Rounds: res.Rounds, Reason: reason}
		if err != nil {
			payload.Error = err.Error()
			tracer.RecordError(span, err)
		} else {
			tracer.SetOK(span)
		}
		eventbus.Emit(m.bus, ctx, domain.EventConversationEnded, payload)
		logger.Info("conversation ended",
			"rounds", res.Rounds,
			"reason", reason,
			"tokens", usage.TotalTokens,
			"duration", res.Duration)
		return res, err
	}

	seedTurn, _ := state.Append(initiator, domain.Reply{
		Message: domain.Message{Role: domain.RoleUser, Content: seed, Timestamp: time.Now()},
	})
	m.publishTurn(ctx, logger, seedTurn)

	for {
		last, _ := state.Last()
		if m.isTermination(last.Message) {
			return finish(domain.StopTerminated, nil)
		}
		if state.Full() {
			return finish(domain.StopMaxRounds, nil)
		}
		if err := ctx.Err(); err != nil {
			return finish(domain.StopInterrupted, err)
		}

		speaker, stop, err := m.selectSpeaker(ctx, logger, state, last.Speaker)
		if err != nil {
			return finish(m.failureReason(ctx), err)
		}
		if stop {
			return finish(domain.StopManager, nil)
		}

		reply, err := speaker.Reply(ctx, state.Turns())
		usage.Add(reply.Usage)
		if err != nil {
			logger.Error("speaker failed", "round", state.Round()+1, "agent", speaker.Name(), "error", err)
			return finish(m.failureReason(ctx),
				fmt.Errorf("%w: round %d %s: %w", domain.ErrConversationAborted, state.Round()+1, speaker.Name(), err))
		}

		turn, err := state.Append(speaker.Name(), reply)
		if err != nil {
			return finish(domain.StopAborted, err)
		}
		m.publishTurn(ctx, logger, turn)
	}
}

// selectSpeaker asks the selector for the next speaker. An unusable choice
// falls back to the participant registered after the last speaker.
func (m *Manager) selectSpeaker(ctx context.Context, logger *slog.Logger, state *State, lastSpeaker string) (Participant, bool, error) {
	ctx, span := tracer.StartSpan(ctx, "groupchat.select_speaker",
		trace.WithAttributes(tracer.IntAttr("round", state.Round()+1)),
	)
	defer span.End()

	sel, err := m.selector.SelectSpeaker(ctx, state.Turns(), m.candidates())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, false, domain.NewSubSystemError("groupchat", "Manager.selectSpeaker",
			fmt.Errorf("%w: %w", domain.ErrSpeakerSelectorFailed, err), fmt.Sprintf("round %d", state.Round()+1))
	}
	if sel.Stop {
		logger.Info("selector ended the conversation", "round", state.Round())
		tracer.SetOK(span)
		return nil, true, nil
	}

	round := state.Round() + 1
	p, ok := m.byName[sel.Speaker]
	if !ok {
		p = m.next(lastSpeaker)
		logger.Warn("invalid speaker selection, falling back",
			"round", round,
			"proposed", sel.Speaker,
			"raw", sel.Raw,
			"agent", p.Name())
		eventbus.Emit(m.bus, ctx, domain.EventSpeakerFallback, domain.SpeakerPayload{
			Round:    round,
			Speaker:  p.Name(),
			Proposed: sel.Speaker,
		})
	}

	span.SetAttributes(tracer.StringAttr("speaker", p.Name()))
	tracer.SetOK(span)
	eventbus.Emit(m.bus, ctx, domain.EventSpeakerSelected, domain.SpeakerPayload{Round: round, Speaker: p.Name()})
	logger.Debug("speaker selected", "round", round, "agent", p.Name())
	return p, false, nil
}

// next returns the participant registered after name, wrapping around.
func (m *Manager) next(name string) Participant {
	for i, p := range m.participants {
		if p.Name() == name {
			return m.participants[(i+1)%len(m.participants)]
		}
	}
	return m.participants[0]
}

func (m *Manager) isTermination(msg domain.Message) bool {
	return strings.HasSuffix(strings.TrimSpace(msg.Content), m.cfg.TerminateKeyword)
}

func (m *Manager) failureReason(ctx context.Context) domain.StopReason {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.StopInterrupted
	}
	return domain.StopAborted
}

func (m *Manager) publishTurn(ctx context.Context, logger *slog.Logger, turn domain.Turn) {
	eventbus.Emit(m.bus, ctx, domain.EventTurnAppended, domain.SpeakerPayload{Round: turn.Round, Speaker: turn.Speaker})
	logger.Info("turn",
		"round", turn.Round,
		"agent", turn.Speaker,
		"tool_calls", countToolCalls(turn.ToolTrace))
}

func countToolCalls(msgs []domain.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.ToolCalls)
	}
	return n
}
