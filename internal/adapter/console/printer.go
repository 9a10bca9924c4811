// Package console renders a group conversation for the terminal.
//
// NO_COLOR is respected by lipgloss through its color profile detection.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"flightdesk/internal/domain"
)

var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

// Option configures a Printer.
type Option func(*Printer)

// WithWidth sets the wrap width for message bodies.
func WithWidth(w int) Option {
	return func(p *Printer) {
		if w > 0 {
			p.width = w
		}
	}
}

// WithMarkdown renders message bodies as markdown.
func WithMarkdown(on bool) Option {
	return func(p *Printer) { p.markdown = on }
}

// WithToolTrace prints each turn's tool calls under the message.
func WithToolTrace(on bool) Option {
	return func(p *Printer) { p.toolTrace = on }
}

// Printer writes turns and summaries to w. Safe for concurrent use.
type Printer struct {
	mu        sync.Mutex
	w         io.Writer
	width     int
	markdown  bool
	toolTrace bool
	md        *glamour.TermRenderer

	speaker lipgloss.Style
	round   lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	fail    lipgloss.Style
	header  lipgloss.Style
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, opts ...Option) *Printer {
	r := lipgloss.NewRenderer(w)
	p := &Printer{
		w:         w,
		width:     100,
		toolTrace: true,
		speaker:   r.NewStyle().Foreground(colorAccent).Bold(true),
		round:     r.NewStyle().Foreground(colorInfo),
		dim:       r.NewStyle().Foreground(colorMuted),
		ok:        r.NewStyle().Foreground(colorSuccess).Bold(true),
		fail:      r.NewStyle().Foreground(colorError).Bold(true),
		header:    r.NewStyle().Bold(true).Underline(true),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PrintTurn writes one turn: a header line, the message and its tool calls.
func (p *Printer) PrintTurn(turn domain.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "%s %s\n",
		p.round.Render(fmt.Sprintf("[%d]", turn.Round)),
		p.speaker.Render(turn.Speaker))
	if p.toolTrace {
		for _, line := range toolLines(turn.ToolTrace) {
			fmt.Fprintf(p.w, "  %s\n", p.dim.Render(line))
		}
	}
	fmt.Fprintln(p.w, p.body(turn.Message.Content))
}

// PrintResult writes the full transcript followed by a summary line.
func (p *Printer) PrintResult(res *domain.ConversationResult) {
	if res == nil {
		return
	}
	p.mu.Lock()
	fmt.Fprintln(p.w, p.header.Render("Conversation "+res.ConversationID))
	p.mu.Unlock()

	for _, t := range res.Turns {
		p.PrintTurn(t)
	}
	p.PrintSummary(res)
}

// PrintSummary writes rounds, stop reason and token usage.
func (p *Printer) PrintSummary(res *domain.ConversationResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := p.ok.Render("done")
	if res.Reason == domain.StopAborted || res.Reason == domain.StopInterrupted {
		status = p.fail.Render("stopped")
	}
	fmt.Fprintf(p.w, "%s %s\n", status, p.dim.Render(fmt.Sprintf(
		"rounds=%d/%d reason=%s tokens=%d duration=%s",
		res.Rounds, res.MaxRounds, res.Reason, res.Usage.TotalTokens, res.Duration.Round(time.Millisecond))))
}

// PrintError writes err in the error style.
func (p *Printer) PrintError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %v\n", p.fail.Render("error:"), err)
}

// Watch prints speaker choices and tool calls as they are published.
// The returned function stops watching.
func (p *Printer) Watch(bus domain.EventBus) func() {
	return bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		line := p.eventLine(e)
		if line == "" {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintln(p.w, line)
	})
}

func (p *Printer) eventLine(e domain.Event) string {
	switch e.Type {
	case domain.EventSpeakerSelected:
		var sp domain.SpeakerPayload
		if json.Unmarshal(e.Payload, &sp) != nil {
			return ""
		}
		return p.dim.Render(fmt.Sprintf("... round %d: %s is speaking", sp.Round, sp.Speaker))
	case domain.EventSpeakerFallback:
		var sp domain.SpeakerPayload
		if json.Unmarshal(e.Payload, &sp) != nil {
			return ""
		}
		return p.fail.Render(fmt.Sprintf("... manager chose %q, falling back to %s", sp.Proposed, sp.Speaker))
	case domain.EventToolCallCompleted:
		var tc domain.ToolCallPayload
		if json.Unmarshal(e.Payload, &tc) != nil {
			return ""
		}
		mark := p.ok.Render("ok")
		if !tc.Success {
			mark = p.fail.Render("failed")
		}
		return fmt.Sprintf("%s %s", p.dim.Render(fmt.Sprintf("... %s called %s", tc.Agent, tc.Tool)), mark)
	}
	return ""
}

func (p *Printer) body(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return p.dim.Render("  (empty)")
	}
	if p.markdown {
		if p.md == nil {
			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(p.width),
			)
			if err == nil {
				p.md = r
			}
		}
		if p.md != nil {
			if out, err := p.md.Render(content); err == nil {
				return strings.TrimRight(out, "\n")
			}
		}
	}
	return indent(lipgloss.NewStyle().Width(p.width).Render(content), "  ")
}

// toolLines summarizes the calls in a tool exchange, one line per call.
func toolLines(trace []domain.Message) []string {
	results := make(map[string]domain.Message)
	for _, m := range trace {
		if m.Role == domain.RoleTool {
			results[m.ToolCallID()] = m
		}
	}
	var lines []string
	for _, m := range trace {
		if m.Role != domain.RoleAssistant {
			continue
		}
		for _, c := range m.ToolCalls {
			args := strings.TrimSpace(string(c.Arguments))
			if args == "" {
				args = "{}"
			}
			line := fmt.Sprintf("-> %s %s", c.Name, args)
			if r, ok := results[c.ID]; ok {
				line += " => " + truncate(oneLine(r.Content), 120)
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}
