package core

import "pkt.systems/deskpilot/schema"

// ContinuityRecord captures the metadata needed to resume a conversation
// thread after a controller restart.
type ContinuityRecord struct {
	ConversationID schema.ConversationID
	InstanceKind   schema.InstanceKind
	StreamURL      schema.StreamURL
}

// ContinuityStore persists continuity metadata across restarts.
type ContinuityStore interface {
	Load() (ContinuityRecord, bool, error)
	Save(record ContinuityRecord) error
	Clear() error
}
