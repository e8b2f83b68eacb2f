package core

import "pkt.systems/deskpilot/schema"

// EventSink receives session and history events from the core service.
type EventSink interface {
	OnSessionEvent(event schema.SessionEvent)
	OnHistoryEvent(event schema.HistoryEvent)
}
