package schema

// SessionEvent notifies observers that session state changed.
type SessionEvent struct {
	Session SessionSnapshot
}

// HistoryEvent notifies observers that a history entry was appended.
type HistoryEvent struct {
	Entry HistoryEntry
}
