package deskpilot

import (
	"pkt.systems/deskpilot/core"
	"pkt.systems/deskpilot/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnSessionEvent(event schema.SessionEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSessionEvent(event)
	}
}

func (f eventFanout) OnHistoryEvent(event schema.HistoryEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnHistoryEvent(event)
	}
}
