package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"pkt.systems/deskpilot/core"
	"pkt.systems/deskpilot/schema"
	"pkt.systems/pslog"
)

const recordFile = "session.json"

type record struct {
	ConversationID schema.ConversationID `json:"conversation_id,omitempty"`
	InstanceKind   schema.InstanceKind   `json:"instance_kind,omitempty"`
	StreamURL      schema.StreamURL      `json:"stream_url,omitempty"`
	SavedAt        time.Time             `json:"saved_at"`
}

// Store persists session continuity metadata to disk.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads the continuity record from disk.
func (s *Store) Load() (core.ContinuityRecord, bool, error) {
	path := filepath.Join(s.dir, recordFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("continuity load miss")
			}
			return core.ContinuityRecord{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("continuity load failed", "err", err)
		}
		return core.ContinuityRecord{}, false, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		if s.log != nil {
			s.log.Warn("continuity load failed", "err", err)
		}
		return core.ContinuityRecord{}, false, err
	}
	if s.log != nil {
		s.log.Debug("continuity load ok", "conversation", rec.ConversationID)
	}
	return core.ContinuityRecord{
		ConversationID: rec.ConversationID,
		InstanceKind:   rec.InstanceKind,
		StreamURL:      rec.StreamURL,
	}, true, nil
}

// Save writes the continuity record to disk atomically.
func (s *Store) Save(value core.ContinuityRecord) error {
	path := filepath.Join(s.dir, recordFile)
	data, err := json.MarshalIndent(record{
		ConversationID: value.ConversationID,
		InstanceKind:   value.InstanceKind,
		StreamURL:      value.StreamURL,
		SavedAt:        time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		if s.log != nil {
			s.log.Warn("continuity save failed", "err", err)
		}
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "session-*.json")
	if err != nil {
		if s.log != nil {
			s.log.Warn("continuity save failed", "err", err)
		}
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("continuity save failed", "err", err)
		}
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("continuity save failed", "err", err)
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("continuity save failed", "err", err)
		}
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("continuity save failed", "err", err)
		}
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		if s.log != nil {
			s.log.Warn("continuity save failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("continuity save ok", "conversation", value.ConversationID)
	}
	return nil
}

// Clear removes the continuity record.
func (s *Store) Clear() error {
	path := filepath.Join(s.dir, recordFile)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("continuity clear failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Debug("continuity clear ok")
	}
	return nil
}
