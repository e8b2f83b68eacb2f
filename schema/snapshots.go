package schema

// SessionSnapshot is a read-only view of session state for transports.
type SessionSnapshot struct {
	Phase          SessionPhase
	Message        string
	StreamURL      StreamURL
	Paused         bool
	InstanceKind   InstanceKind
	ConversationID ConversationID
	Version        uint64
}

// HistoryEntry is one immutable line of the interaction log.
type HistoryEntry struct {
	Sequence uint64
	Origin   Origin
	Text     string
}

// HistorySnapshot is an internally consistent copy of the interaction log,
// oldest entry first.
type HistorySnapshot struct {
	Entries []HistoryEntry
}
