package core

import "pkt.systems/deskpilot/schema"

type historyLog struct {
	entries []schema.HistoryEntry
	nextSeq uint64
	max     int
}

func newHistoryLog(max int) *historyLog {
	if max <= 0 {
		max = schema.DefaultHistoryCapacity
	}
	return &historyLog{nextSeq: 1, max: max}
}

// Append records an entry, evicting the oldest when the log is full.
// Sequence numbers keep increasing; an evicted sequence is never reused.
func (h *historyLog) Append(origin schema.Origin, text string) schema.HistoryEntry {
	entry := schema.HistoryEntry{
		Sequence: h.nextSeq,
		Origin:   origin,
		Text:     text,
	}
	h.nextSeq++
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return entry
}

// Entries returns a copy of the log, oldest first.
func (h *historyLog) Entries() []schema.HistoryEntry {
	if h == nil {
		return nil
	}
	return append([]schema.HistoryEntry(nil), h.entries...)
}
