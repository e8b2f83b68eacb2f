package eventbus

import (
	"context"
	"sync"

	"pkt.systems/deskpilot/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventSession carries a session state change.
	EventSession EventType = "session"
	// EventHistory carries a new interaction log entry.
	EventHistory EventType = "history"
)

// Event represents a live update emitted by the session controller.
type Event struct {
	Type    EventType
	Session schema.SessionEvent
	History schema.HistoryEvent
}

// Bus fanouts controller events to subscribers. It satisfies core.EventSink
// so it can be attached directly to the service.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
		if b.log != nil {
			b.log.Debug("eventbus unsubscribe")
		}
	}
}

// OnSessionEvent publishes a session state change.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	b.publish(Event{Type: EventSession, Session: event})
}

// OnHistoryEvent publishes an interaction log entry.
func (b *Bus) OnHistoryEvent(event schema.HistoryEvent) {
	b.publish(Event{Type: EventHistory, History: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "count", dropped)
	}
}
