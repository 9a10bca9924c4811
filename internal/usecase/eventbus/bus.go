// Package eventbus is the in-process publish/subscribe hub for conversation
// lifecycle events.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"flightdesk/internal/domain"
)

// DefaultQueueSize is the per-subscriber buffer used by New.
const DefaultQueueSize = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscriber owns one queue and one worker goroutine, so each handler sees
// events in publish order and a slow handler never blocks the conversation.
type subscriber struct {
	id     uint64
	filter domain.EventType // empty matches every event
	h      domain.EventHandler
	queue  chan delivery
}

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscriber
	nextID    atomic.Uint64
	queueSize int
	closed    bool
	dropped   atomic.Int64
	logger    *slog.Logger
	workers   sync.WaitGroup
}

var _ domain.EventBus = (*Bus)(nil)

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets how many undelivered events a subscriber may hold
// before further events to it are dropped.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Bus{
		subs:      make(map[uint64]*subscriber),
		queueSize: DefaultQueueSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish queues event for every matching subscriber without waiting for
// handlers to run. A subscriber whose queue is full misses the event.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.filter != "" && s.filter != event.Type {
			continue
		}
		select {
		case s.queue <- delivery{ctx: context.WithoutCancel(ctx), event: event}:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber queue full",
				"event", string(event.Type),
				"subscriber", s.id)
		}
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(filter domain.EventType, handler domain.EventHandler) func() {
	s := &subscriber{
		id:     b.nextID.Add(1),
		filter: filter,
		h:      handler,
		queue:  make(chan delivery, b.queueSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[s.id] = s
	b.workers.Add(1)
	b.mu.Unlock()

	go b.serve(s)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[s.id]; ok {
			delete(b.subs, s.id)
			close(s.queue)
		}
	}
}

func (b *Bus) serve(s *subscriber) {
	defer b.workers.Done()
	for d := range s.queue {
		b.invoke(s, d)
	}
}

func (b *Bus) invoke(s *subscriber, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"subscriber", s.id,
				"panic", r)
		}
	}()
	s.h(d.ctx, d.event)
}

// Dropped reports how many deliveries were skipped because a queue was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Close stops accepting events, lets every subscriber drain what it already
// holds and waits for the handlers to finish. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for id, s := range b.subs {
			delete(b.subs, id)
			close(s.queue)
		}
	}
	b.mu.Unlock()
	b.workers.Wait()
}

// Emit publishes an event of type t stamped with the conversation ID carried
// by ctx. A nil bus is a no-op, so callers need not guard optional buses.
func Emit(bus domain.EventBus, ctx context.Context, t domain.EventType, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:           t,
		Timestamp:      time.Now(),
		ConversationID: domain.ConversationIDFromContext(ctx),
		Payload:        raw,
	})
}

// LogEvents subscribes a handler that writes every event to logger at debug level.
func LogEvents(bus domain.EventBus, logger *slog.Logger) func() {
	return bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		logger.Debug("event",
			"type", string(e.Type),
			"conversation_id", e.ConversationID,
			"payload", string(e.Payload))
	})
}
