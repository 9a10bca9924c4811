package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightdesk/internal/domain"
)

func turnEvent(round int) domain.Event {
	payload, _ := json.Marshal(domain.SpeakerPayload{Round: round, Speaker: "BookingAgent"})
	return domain.Event{Type: domain.EventTurnAppended, Timestamp: time.Now(), Payload: payload}
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus := New(nil)

	var turns, all atomic.Int32
	bus.Subscribe(domain.EventTurnAppended, func(context.Context, domain.Event) { turns.Add(1) })
	bus.SubscribeAll(func(context.Context, domain.Event) { all.Add(1) })

	bus.Publish(context.Background(), turnEvent(1))
	bus.Publish(context.Background(), domain.Event{Type: domain.EventSpeakerSelected})
	bus.Close()

	assert.EqualValues(t, 1, turns.Load())
	assert.EqualValues(t, 2, all.Load())
}

func TestDeliveryKeepsPublishOrder(t *testing.T) {
	bus := New(nil)
	rec, _ := Record(bus)

	for round := 1; round <= 50; round++ {
		bus.Publish(context.Background(), turnEvent(round))
	}
	bus.Close()

	events := rec.Events()
	require.Len(t, events, 50)
	for i, e := range events {
		var p domain.SpeakerPayload
		require.NoError(t, json.Unmarshal(e.Payload, &p))
		assert.Equal(t, i+1, p.Round)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New(nil)

	var kept, removed atomic.Int32
	bus.Subscribe(domain.EventTurnAppended, func(context.Context, domain.Event) { kept.Add(1) })
	unsub := bus.Subscribe(domain.EventTurnAppended, func(context.Context, domain.Event) { removed.Add(1) })
	unsubAll := bus.SubscribeAll(func(context.Context, domain.Event) { removed.Add(1) })

	unsub()
	unsubAll()
	unsub()
	bus.Publish(context.Background(), turnEvent(1))
	bus.Close()

	assert.EqualValues(t, 1, kept.Load())
	assert.EqualValues(t, 0, removed.Load())
}

func TestConcurrentPublish(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.Subscribe(domain.EventToolCallCompleted, func(context.Context, domain.Event) { got.Add(1) })

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), domain.Event{Type: domain.EventToolCallCompleted})
		}()
	}
	wg.Wait()
	bus.Close()

	assert.EqualValues(t, 100, got.Load())
}

func TestPanickingHandlerKeepsReceiving(t *testing.T) {
	bus := New(nil)

	var calls atomic.Int32
	bus.Subscribe(domain.EventAgentError, func(context.Context, domain.Event) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentError})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentError})
	bus.Close()

	assert.EqualValues(t, 2, calls.Load())
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	bus := New(nil, WithQueueSize(1))

	release := make(chan struct{})
	started := make(chan struct{})
	var got atomic.Int32
	bus.SubscribeAll(func(context.Context, domain.Event) {
		if got.Add(1) == 1 {
			close(started)
			<-release
		}
	})

	bus.Publish(context.Background(), turnEvent(1))
	<-started
	bus.Publish(context.Background(), turnEvent(2))
	bus.Publish(context.Background(), turnEvent(3))
	close(release)
	bus.Close()

	assert.EqualValues(t, 2, got.Load())
	assert.EqualValues(t, 1, bus.Dropped())
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.Subscribe(domain.EventConversationEnded, func(context.Context, domain.Event) {
		time.Sleep(20 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventConversationEnded})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventConversationEnded})
	bus.Close()
	assert.EqualValues(t, 2, got.Load())

	bus.Publish(context.Background(), domain.Event{Type: domain.EventConversationEnded})
	late := bus.SubscribeAll(func(context.Context, domain.Event) { got.Add(1) })
	late()
	bus.Close()
	assert.EqualValues(t, 2, got.Load())
}

func TestHandlerContextOutlivesCancel(t *testing.T) {
	bus := New(nil)

	ctx, cancel := context.WithCancel(domain.ContextWithConversationID(context.Background(), "01J0CONV"))
	seen := make(chan error, 1)
	bus.SubscribeAll(func(ctx context.Context, _ domain.Event) {
		seen <- ctx.Err()
	})

	bus.Publish(ctx, domain.Event{Type: domain.EventConversationEnded})
	cancel()
	bus.Close()

	assert.NoError(t, <-seen)
}

func TestEmitStampsConversation(t *testing.T) {
	bus := New(nil)
	rec, unsub := Record(bus)
	defer unsub()

	ctx := domain.ContextWithConversationID(context.Background(), "01J0CONV")
	Emit(bus, ctx, domain.EventSpeakerSelected, domain.SpeakerPayload{Round: 2, Speaker: "BookingAgent"})
	Emit(nil, ctx, domain.EventSpeakerSelected, nil)
	bus.Close()

	events := rec.OfType(domain.EventSpeakerSelected)
	require.Len(t, events, 1)
	assert.Equal(t, "01J0CONV", events[0].ConversationID)

	var p domain.SpeakerPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &p))
	assert.Equal(t, domain.SpeakerPayload{Round: 2, Speaker: "BookingAgent"}, p)
}

func TestLogEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	bus := New(nil)
	LogEvents(bus, logger)
	Emit(bus, context.Background(), domain.EventConversationStarted, nil)
	bus.Close()

	assert.Contains(t, buf.String(), "type=conversation.started")
}
