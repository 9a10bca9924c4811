package groupchat

import (
	"time"

	"github.com/oklog/ulid/v2"

	"flightdesk/internal/domain"
)

// State is the append-only record of one conversation. Only the Manager
// mutates it.
type State struct {
	id        string
	turns     []domain.Turn
	maxRounds int
	startedAt time.Time
}

// NewState starts an empty conversation capped at maxRounds.
func NewState(maxRounds int) *State {
	return &State{
		id:        ulid.Make().String(),
		maxRounds: maxRounds,
		startedAt: time.Now(),
	}
}

// ID returns the conversation ID.
func (s *State) ID() string { return s.id }

// Round returns the number of turns appended so far.
func (s *State) Round() int { return len(s.turns) }

// MaxRounds returns the round cap.
func (s *State) MaxRounds() int { return s.maxRounds }

// Full reports whether the round cap has been reached.
func (s *State) Full() bool { return len(s.turns) >= s.maxRounds }

// Turns returns a copy of the history.
func (s *State) Turns() []domain.Turn {
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Last returns the most recent turn.
func (s *State) Last() (domain.Turn, bool) {
	if len(s.turns) == 0 {
		return domain.Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Append records speaker's reply as the next round.
func (s *State) Append(speaker string, reply domain.Reply) (domain.Turn, error) {
	if s.Full() {
		return domain.Turn{}, domain.NewSubSystemError("groupchat", "State.Append", domain.ErrLimitReached,
			"max rounds reached")
	}
	msg := reply.Message
	msg.Name = speaker
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	turn := domain.Turn{
		Round:     len(s.turns) + 1,
		Speaker:   speaker,
		Message:   msg,
		ToolTrace: reply.ToolTrace,
	}
	s.turns = append(s.turns, turn)
	return turn, nil
}

// Result snapshots the state as a ConversationResult.
func (s *State) Result(reason domain.StopReason, usage domain.Usage) *domain.ConversationResult {
	return &domain.ConversationResult{
		ConversationID: s.id,
		Turns:          s.Turns(),
		Rounds:         len(s.turns),
		MaxRounds:      s.maxRounds,
		Reason:         reason,
		Usage:          usage,
		StartedAt:      s.startedAt,
		Duration:       time.Since(s.startedAt),
	}
}
