// Package ledger is the single source of truth for "has this meeting
// already been delivered" and "which room receives it". The backing
// store is one JSON object rewritten wholesale on every mutation,
// which is acceptable at the expected cardinality (hundreds to low
// thousands of entries).
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Entry is the persisted mapping for one meeting.
type Entry struct {
	RoomID       string     `json:"room_id"`
	MeetingTopic string     `json:"meeting_topic,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Processed    bool       `json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// Ledger owns the mapping file. All mutations are serialized behind
// one mutex because each save rewrites the whole file; unsynchronized
// writers would race and lose updates.
type Ledger struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
	log     *slog.Logger
	now     func() time.Time
}

// Load opens the ledger at path. A missing file is a first run and an
// unreadable one degrades to an empty ledger with a logged warning.
// Reprocessing a meeting is the safe direction, losing one is not.
func Load(path string, log *slog.Logger) *Ledger {
	l := &Ledger{
		path:    path,
		entries: map[string]Entry{},
		log:     log,
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("ledger unreadable, starting empty", "path", path, "error", err)
		}
		return l
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		log.Warn("ledger corrupt, starting empty", "path", path, "error", err)
		l.entries = map[string]Entry{}
	}
	return l
}

// save rewrites the backing file through a temp file + rename. Caller
// must hold l.mu.
func (l *Ledger) save() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("rename tmp ledger: %w", err)
	}
	return nil
}

// AddMapping upserts the meeting-to-room mapping. Re-mapping implies
// reprocessing intent, so processed always resets to false.
func (l *Ledger) AddMapping(meetingID, roomID, topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[meetingID] = Entry{
		RoomID:       roomID,
		MeetingTopic: topic,
		CreatedAt:    l.now(),
		Processed:    false,
	}

	if err := l.save(); err != nil {
		l.log.Error("ledger save failed", "meeting_id", meetingID, "error", err)
		return err
	}
	return nil
}

// RemoveMapping deletes the mapping if present; no-op otherwise.
func (l *Ledger) RemoveMapping(meetingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[meetingID]; !ok {
		return nil
	}
	delete(l.entries, meetingID)

	if err := l.save(); err != nil {
		l.log.Error("ledger save failed", "meeting_id", meetingID, "error", err)
		return err
	}
	return nil
}

// GetRoomID returns the destination for a meeting, or "" when unmapped.
func (l *Ledger) GetRoomID(meetingID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[meetingID].RoomID
}

// MarkProcessed flags the meeting as delivered. A meeting without a
// mapping is left untouched. A dangling processed-only record would
// block future deliveries for a mapping that never existed.
func (l *Ledger) MarkProcessed(meetingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[meetingID]
	if !ok {
		return nil
	}

	now := l.now()
	entry.Processed = true
	entry.ProcessedAt = &now
	l.entries[meetingID] = entry

	if err := l.save(); err != nil {
		l.log.Error("ledger save failed", "meeting_id", meetingID, "error", err)
		return err
	}
	return nil
}

// IsProcessed reports whether a meeting was delivered. Unknown
// meetings are not processed.
func (l *Ledger) IsProcessed(meetingID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[meetingID].Processed
}

// All returns a snapshot of every entry.
func (l *Ledger) All() map[string]Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Entry, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}

// PendingMeetings lists mapped meetings not yet processed.
func (l *Ledger) PendingMeetings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pending []string
	for id, entry := range l.entries {
		if !entry.Processed {
			pending = append(pending, id)
		}
	}
	return pending
}
