package mcpserver

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"flightdesk/internal/domain"
)

// Booking statuses.
const (
	StatusHeld      = "held"
	StatusConfirmed = "confirmed"
)

// Seat preferences accepted by SelectSeat.
const (
	SeatAisle  = "aisle"
	SeatWindow = "window"
	SeatMiddle = "middle"
)

// Six-abreast cabin: A and F by the window, C and D on the aisle.
var seatLetters = map[string][]byte{
	SeatWindow: {'A', 'F'},
	SeatMiddle: {'B', 'E'},
	SeatAisle:  {'C', 'D'},
}

const (
	firstEconomyRow = 10
	lastEconomyRow  = 39
)

// Booking is a flight reservation held by the demo provider.
type Booking struct {
	ID          string    `json:"booking_id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Date        string    `json:"date"`
	Passenger   string    `json:"passenger,omitempty"`
	Flight      string    `json:"flight"`
	Status      string    `json:"status"`
	Seat        string    `json:"seat,omitempty"`
	SeatSaved   bool      `json:"seat_saved"`
	CreatedAt   time.Time `json:"created_at"`
}

// BookingStore keeps bookings in memory for the lifetime of the process.
type BookingStore struct {
	mu       sync.Mutex
	bookings map[string]*Booking
	order    []string
	taken    map[string]string // flight/seat -> booking ID
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
}

// NewBookingStore creates an empty store.
func NewBookingStore() *BookingStore {
	now := time.Now()
	return &BookingStore{
		bookings: make(map[string]*Booking),
		taken:    make(map[string]string),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
		now:      time.Now,
	}
}

// Book holds a seatless reservation on the flight serving the route and date.
func (s *BookingStore) Book(origin, destination, date, passenger string) (Booking, error) {
	origin, destination, date = strings.TrimSpace(origin), strings.TrimSpace(destination), strings.TrimSpace(date)
	if origin == "" || destination == "" || date == "" {
		return Booking{}, domain.NewSubSystemError("booking", "BookingStore.Book", domain.ErrInvalidInput,
			"origin, destination and date are required")
	}
	if strings.EqualFold(origin, destination) {
		return Booking{}, domain.NewSubSystemError("booking", "BookingStore.Book", domain.ErrInvalidInput,
			"origin and destination must differ")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now()
	b := &Booking{
		ID:          ulid.MustNew(ulid.Timestamp(t), s.entropy).String(),
		Origin:      origin,
		Destination: destination,
		Date:        date,
		Passenger:   strings.TrimSpace(passenger),
		Flight:      flightNumber(origin, destination, date),
		Status:      StatusHeld,
		CreatedAt:   t,
	}
	s.bookings[b.ID] = b
	s.order = append(s.order, b.ID)
	return *b, nil
}

// Save confirms a held booking. Saving twice is a no-op.
func (s *BookingStore) Save(id string) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup("BookingStore.Save", id)
	if err != nil {
		return Booking{}, err
	}
	b.Status = StatusConfirmed
	return *b, nil
}

// Get returns the booking with id, or the most recent booking when id is empty.
func (s *BookingStore) Get(id string) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup("BookingStore.Get", id)
	if err != nil {
		return Booking{}, err
	}
	return *b, nil
}

// SelectSeat assigns the first free seat matching preference on the
// booking's flight. A previously selected, unsaved seat is released.
func (s *BookingStore) SelectSeat(id, preference string) (Booking, error) {
	preference = strings.ToLower(strings.TrimSpace(preference))
	if preference == "" {
		preference = SeatAisle
	}
	letters, ok := seatLetters[preference]
	if !ok {
		return Booking{}, domain.NewSubSystemError("booking", "BookingStore.SelectSeat", domain.ErrInvalidInput,
			fmt.Sprintf("unknown seat preference %q", preference))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup("BookingStore.SelectSeat", id)
	if err != nil {
		return Booking{}, err
	}
	if b.SeatSaved {
		return *b, nil
	}

	for row := firstEconomyRow; row <= lastEconomyRow; row++ {
		for _, l := range letters {
			seat := fmt.Sprintf("%d%c", row, l)
			key := b.Flight + "/" + seat
			if owner, used := s.taken[key]; used && owner != b.ID {
				continue
			}
			s.release(b)
			s.taken[key] = b.ID
			b.Seat = seat
			return *b, nil
		}
	}
	return Booking{}, domain.NewSubSystemError("booking", "BookingStore.SelectSeat", domain.ErrLimitReached,
		fmt.Sprintf("no %s seat left on %s", preference, b.Flight))
}

// SaveSeat persists the seat choice. An empty seat keeps the selected one;
// a different seat must be free.
func (s *BookingStore) SaveSeat(id, seat string) (Booking, error) {
	seat = strings.ToUpper(strings.TrimSpace(seat))

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup("BookingStore.SaveSeat", id)
	if err != nil {
		return Booking{}, err
	}
	if seat == "" {
		seat = b.Seat
	}
	if seat == "" {
		return Booking{}, domain.NewSubSystemError("booking", "BookingStore.SaveSeat", domain.ErrInvalidInput,
			"no seat selected for "+b.ID)
	}
	if !validSeat(seat) {
		return Booking{}, domain.NewSubSystemError("booking", "BookingStore.SaveSeat", domain.ErrInvalidInput,
			fmt.Sprintf("invalid seat %q", seat))
	}

	key := b.Flight + "/" + seat
	if owner, used := s.taken[key]; used && owner != b.ID {
		return Booking{}, domain.NewSubSystemError("booking", "BookingStore.SaveSeat", domain.ErrDuplicate,
			fmt.Sprintf("seat %s is taken on %s", seat, b.Flight))
	}
	if seat != b.Seat {
		s.release(b)
		s.taken[key] = b.ID
		b.Seat = seat
	}
	b.SeatSaved = true
	return *b, nil
}

// List returns all bookings in creation order.
func (s *BookingStore) List() []Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Booking, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.bookings[id])
	}
	return out
}

func (s *BookingStore) lookup(op, id string) (*Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		if len(s.order) == 0 {
			return nil, domain.NewSubSystemError("booking", op, domain.ErrNotFound, "no bookings yet")
		}
		id = s.order[len(s.order)-1]
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.NewSubSystemError("booking", op, domain.ErrNotFound, id)
	}
	return b, nil
}

func (s *BookingStore) release(b *Booking) {
	if b.Seat != "" {
		delete(s.taken, b.Flight+"/"+b.Seat)
		b.Seat = ""
	}
}

// flightNumber derives a stable flight number for a route and date.
func flightNumber(origin, destination, date string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(origin + "|" + destination + "|" + date)))
	return fmt.Sprintf("FD%d", 100+h.Sum32()%900)
}

func validSeat(seat string) bool {
	if len(seat) < 2 {
		return false
	}
	row, err := strconv.Atoi(seat[:len(seat)-1])
	if err != nil || row < firstEconomyRow || row > lastEconomyRow {
		return false
	}
	return strings.IndexByte("ABCDEF", seat[len(seat)-1]) >= 0
}
