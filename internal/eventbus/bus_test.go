package eventbus

import (
	"testing"
	"time"

	"pkt.systems/deskpilot/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.OnSessionEvent(schema.SessionEvent{Session: schema.SessionSnapshot{Phase: schema.PhaseActive}})
	select {
	case event := <-ch:
		if event.Type != EventSession || event.Session.Session.Phase != schema.PhaseActive {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}

	bus.OnHistoryEvent(schema.HistoryEvent{Entry: schema.HistoryEntry{Sequence: 1, Origin: schema.OriginSystem, Text: "Agent started successfully"}})
	select {
	case event := <-ch:
		if event.Type != EventHistory || event.History.Entry.Sequence != 1 {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	cancel()

	bus.OnSessionEvent(schema.SessionEvent{})
	if _, open := <-ch; open {
		t.Fatalf("expected closed channel after unsubscribe")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.OnSessionEvent(schema.SessionEvent{})
	bus.OnSessionEvent(schema.SessionEvent{})

	<-ch
	select {
	case <-ch:
		t.Fatalf("expected second event to be dropped")
	default:
	}
}
