// Package travel assembles the flight booking conversation: three agents
// sharing one remote tool set, coordinated by a group chat manager.
package travel

import (
	"strings"

	"flightdesk/internal/domain"
)

// Agent names. Prompts refer to agents by these names.
const (
	TriageAgentName        = "TriageAgent"
	BookingAgentName       = "BookingAgent"
	SeatSelectionAgentName = "SeatSelectionAgent"
)

// DefaultModel is used when neither the agent nor the provider config names one.
const DefaultModel = "gpt-4"

const bookingPrompt = `
You are a flight booking agent.
Book flights from the origin, destination and date you are given.
Then save the booking details (origin, destination, date, booking id) with the tools.
Use book_flight to create a booking and save_booking to persist it.
`

const seatSelectionPrompt = `
You are a seat selection agent.
Look up the booking with the tools (get_booking).
Assign an aisle seat (select_seat) and persist the choice (save_seat).
`

const triagePrompt = `
You triage travel requests.
- Flight booking goes to BookingAgent.
- Seat selection goes to SeatSelectionAgent.
Guide the workflow until every task is done.
`

// NewBookingAgent describes the agent that books and saves flights.
func NewBookingAgent(tools domain.ToolExecutor, backend domain.Backend) domain.AgentSpec {
	return domain.AgentSpec{
		Name:         BookingAgentName,
		Description:  "Books flights from origin, destination and date, and saves the booking.",
		SystemPrompt: strings.TrimSpace(bookingPrompt),
		Backend:      backend,
		Tools:        tools,
		HumanInput:   domain.HumanInputNever,
	}
}

// NewSeatSelectionAgent describes the agent that assigns and saves seats.
func NewSeatSelectionAgent(tools domain.ToolExecutor, backend domain.Backend) domain.AgentSpec {
	return domain.AgentSpec{
		Name:         SeatSelectionAgentName,
		Description:  "Retrieves a booking, assigns an aisle seat and saves it.",
		SystemPrompt: strings.TrimSpace(seatSelectionPrompt),
		Backend:      backend,
		Tools:        tools,
		HumanInput:   domain.HumanInputNever,
	}
}

// NewTriageAgent describes the coordinating agent. It carries no tools and
// never waits for a human.
func NewTriageAgent(backend domain.Backend) domain.AgentSpec {
	return domain.AgentSpec{
		Name:         TriageAgentName,
		Description:  "Triages the travel request and delegates booking and seat selection.",
		SystemPrompt: strings.TrimSpace(triagePrompt),
		Backend:      backend,
		HumanInput:   domain.HumanInputNever,
	}
}

// Agents returns the three specs in registration order. The tool-bearing
// agents share tools by reference.
func Agents(tools domain.ToolExecutor, backend domain.Backend) []domain.AgentSpec {
	return []domain.AgentSpec{
		NewTriageAgent(backend),
		NewBookingAgent(tools, backend),
		NewSeatSelectionAgent(tools, backend),
	}
}
