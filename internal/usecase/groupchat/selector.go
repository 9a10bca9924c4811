package groupchat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"flightdesk/internal/domain"
)

// LLMSelector asks a manager model which role speaks next.
type LLMSelector struct {
	llm       domain.LLMProvider
	model     string
	terminate string
	logger    *slog.Logger
}

var _ domain.SpeakerSelector = (*LLMSelector)(nil)

// SelectorOption configures an LLMSelector.
type SelectorOption func(*LLMSelector)

// WithSelectorLogger sets the selector logger.
func WithSelectorLogger(logger *slog.Logger) SelectorOption {
	return func(s *LLMSelector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTerminateKeyword sets the word the model answers with to end the chat.
func WithTerminateKeyword(keyword string) SelectorOption {
	return func(s *LLMSelector) {
		if keyword != "" {
			s.terminate = keyword
		}
	}
}

// NewLLMSelector creates a selector backed by llm using model.
func NewLLMSelector(llm domain.LLMProvider, model string, opts ...SelectorOption) *LLMSelector {
	s := &LLMSelector{
		llm:       llm,
		model:     model,
		terminate: DefaultTerminateKeyword,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectSpeaker makes one model call and parses the answer.
func (s *LLMSelector) SelectSpeaker(ctx context.Context, history []domain.Turn, candidates []domain.Candidate) (domain.Selection, error) {
	req := domain.ChatRequest{
		Model:    s.model,
		Messages: s.prompt(history, candidates),
	}
	resp, err := s.llm.Chat(ctx, req)
	if err != nil {
		return domain.Selection{}, err
	}
	sel := ParseSelection(resp.Message.Content, candidates, s.terminate)
	s.logger.Debug("manager answered",
		"raw", sel.Raw,
		"speaker", sel.Speaker,
		"stop", sel.Stop,
		"tokens", resp.Usage.TotalTokens)
	return sel, nil
}

func (s *LLMSelector) prompt(history []domain.Turn, candidates []domain.Candidate) []domain.Message {
	names := make([]string, len(candidates))
	var roles strings.Builder
	for i, c := range candidates {
		names[i] = c.Name
		fmt.Fprintf(&roles, "%s: %s\n", c.Name, c.Description)
	}
	list := strings.Join(names, ", ")

	system := fmt.Sprintf("You are in a role play game. The following roles are available:\n%s\n"+
		"Read the following conversation. Then select the next role from [%s] to play. Only return the role.",
		roles.String(), list)

	var transcript strings.Builder
	for _, t := range history {
		fmt.Fprintf(&transcript, "%s: %s\n", t.Speaker, t.Message.Content)
	}

	instruction := fmt.Sprintf("Read the above conversation. Then select the next role from [%s] to play. "+
		"Only return the role. If every task is complete, return %s.", list, s.terminate)

	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: strings.TrimRight(transcript.String(), "\n")},
		{Role: domain.RoleUser, Content: instruction},
	}
}

// ParseSelection interprets a manager answer. An exact role name
// (case-insensitive) wins, then a single mentioned role. The terminate keyword
// on its own stops the conversation. Anything else yields an empty Selection.
func ParseSelection(raw string, candidates []domain.Candidate, terminate string) domain.Selection {
	sel := domain.Selection{Raw: raw}
	answer := strings.Trim(strings.TrimSpace(raw), "\"'`*.:[] ")
	if answer == "" {
		return sel
	}

	for _, c := range candidates {
		if strings.EqualFold(answer, c.Name) {
			sel.Speaker = c.Name
			return sel
		}
	}
	if terminate != "" && strings.EqualFold(answer, terminate) {
		sel.Stop = true
		return sel
	}

	var mentioned []string
	for _, c := range candidates {
		if mentions(answer, c.Name) {
			mentioned = append(mentioned, c.Name)
		}
	}
	if len(mentioned) == 1 {
		sel.Speaker = mentioned[0]
	}
	return sel
}

// mentions reports whether name appears in text as a whole word, ignoring case.
func mentions(text, name string) bool {
	if name == "" {
		return false
	}
	text, name = strings.ToLower(text), strings.ToLower(name)
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], name)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(name)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// RoundRobinSelector hands the turn to the candidate after the last speaker.
type RoundRobinSelector struct{}

// SelectSpeaker never fails and never stops the conversation.
func (RoundRobinSelector) SelectSpeaker(_ context.Context, history []domain.Turn, candidates []domain.Candidate) (domain.Selection, error) {
	if len(candidates) == 0 {
		return domain.Selection{}, nil
	}
	next := candidates[0].Name
	if len(history) > 0 {
		last := history[len(history)-1].Speaker
		for i, c := range candidates {
			if c.Name == last {
				next = candidates[(i+1)%len(candidates)].Name
				break
			}
		}
	}
	return domain.Selection{Speaker: next}, nil
}
