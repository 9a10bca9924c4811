package mcpserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool names exposed by the travel server.
const (
	ToolBookFlight  = "book_flight"
	ToolSaveBooking = "save_booking"
	ToolGetBooking  = "get_booking"
	ToolSelectSeat  = "select_seat"
	ToolSaveSeat    = "save_seat"
)

// ServerName and ServerVersion identify the travel server during initialize.
const (
	ServerName    = "flightdesk-travel"
	ServerVersion = "1.0.0"
)

// NewTravelServer builds an MCP server whose tools operate on store.
func NewTravelServer(store *BookingStore, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	h := &travelHandlers{store: store, logger: logger}

	addValidatedTool(s, mcp.NewTool(ToolBookFlight,
		mcp.WithDescription("Book a flight between two cities on a date. Returns the held booking with its booking_id."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Departure city")),
		mcp.WithString("destination", mcp.Required(), mcp.Description("Arrival city")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Travel date, e.g. April 20")),
		mcp.WithString("passenger", mcp.Description("Passenger name")),
	), h.bookFlight)

	addValidatedTool(s, mcp.NewTool(ToolSaveBooking,
		mcp.WithDescription("Save (confirm) a held booking."),
		mcp.WithString("booking_id", mcp.Required(), mcp.Description("Booking ID returned by book_flight")),
	), h.saveBooking)

	addValidatedTool(s, mcp.NewTool(ToolGetBooking,
		mcp.WithDescription("Retrieve a booking. Without booking_id the most recent booking is returned."),
		mcp.WithString("booking_id", mcp.Description("Booking ID")),
	), h.getBooking)

	addValidatedTool(s, mcp.NewTool(ToolSelectSeat,
		mcp.WithDescription("Assign a seat on the booked flight matching a preference."),
		mcp.WithString("booking_id", mcp.Description("Booking ID, defaults to the most recent booking")),
		mcp.WithString("preference", mcp.Description("Seat preference"), mcp.Enum(SeatAisle, SeatWindow, SeatMiddle)),
	), h.selectSeat)

	addValidatedTool(s, mcp.NewTool(ToolSaveSeat,
		mcp.WithDescription("Persist the seat choice for a booking."),
		mcp.WithString("booking_id", mcp.Required(), mcp.Description("Booking ID")),
		mcp.WithString("seat", mcp.Description("Seat such as 14C, defaults to the selected seat")),
	), h.saveSeat)

	return s
}

type travelHandlers struct {
	store  *BookingStore
	logger *slog.Logger
}

func (h *travelHandlers) bookFlight(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := req.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	destination, err := req.RequireString("destination")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.result(ToolBookFlight)(h.store.Book(origin, destination, date, req.GetString("passenger", "")))
}

func (h *travelHandlers) saveBooking(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("booking_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.result(ToolSaveBooking)(h.store.Save(id))
}

func (h *travelHandlers) getBooking(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.result(ToolGetBooking)(h.store.Get(req.GetString("booking_id", "")))
}

func (h *travelHandlers) selectSeat(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.result(ToolSelectSeat)(h.store.SelectSeat(
		req.GetString("booking_id", ""),
		req.GetString("preference", SeatAisle),
	))
}

func (h *travelHandlers) saveSeat(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("booking_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.result(ToolSaveSeat)(h.store.SaveSeat(id, req.GetString("seat", "")))
}

// result turns a store outcome into a tool result. Store errors go back to
// the caller as error results so the model can read them.
func (h *travelHandlers) result(tool string) func(Booking, error) (*mcp.CallToolResult, error) {
	return func(b Booking, err error) (*mcp.CallToolResult, error) {
		if err != nil {
			h.logger.Debug("travel tool failed", "tool", tool, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		h.logger.Debug("travel tool succeeded", "tool", tool, "booking_id", b.ID)
		return mcp.NewToolResultJSON(b)
	}
}
