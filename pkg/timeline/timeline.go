// Package timeline maintains a client's local view of one conversation:
// optimistic entries appended at send time, reconciled against the server's
// confirmed copies as they arrive.
package timeline

import (
	"sync"

	"duochat/pkg/models"
)

// Entry is one rendered message. Pending entries exist only locally until
// the server confirms them.
type Entry struct {
	Message models.Message
	// LocalID is the correlation token attached at send time; empty once
	// confirmed or for entries that originated remotely.
	LocalID string
	Pending bool
}

// Timeline is the ordered message list for a single conversation as one
// user sees it. Safe for concurrent use.
type Timeline struct {
	mu      sync.Mutex
	user    string
	entries []Entry
	seen    map[string]bool
}

// New returns an empty timeline owned by user.
func New(user string) *Timeline {
	return &Timeline{user: user, seen: make(map[string]bool)}
}

// AppendPending records an optimistic local entry awaiting confirmation.
func (t *Timeline) AppendPending(m models.Message, localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Message: m, LocalID: localID, Pending: true})
}

// Append records a confirmed message that originated remotely. Duplicate
// ids are ignored.
func (t *Timeline) Append(m models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m.ID != "" && t.seen[m.ID] {
		return false
	}
	t.markSeen(m.ID)
	t.entries = append(t.entries, Entry{Message: m})
	return true
}

// Confirm reconciles a server-confirmed copy of one of our own sends.
// Matching order: the correlation token, then the oldest pending entry with
// the same sender and text, then (when the confirmed sender is this user) a
// plain append. Duplicate confirmations by id are dropped.
func (t *Timeline) Confirm(m models.Message, localID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m.ID != "" && t.seen[m.ID] {
		return false
	}

	if localID != "" {
		for i := range t.entries {
			if t.entries[i].Pending && t.entries[i].LocalID == localID {
				t.confirmAt(i, m)
				return true
			}
		}
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Pending && e.Message.Sender == m.Sender && e.Message.Text == m.Text {
			t.confirmAt(i, m)
			return true
		}
	}
	if m.Sender == t.user {
		t.markSeen(m.ID)
		t.entries = append(t.entries, Entry{Message: m})
		return true
	}
	return false
}

func (t *Timeline) confirmAt(i int, m models.Message) {
	t.markSeen(m.ID)
	t.entries[i] = Entry{Message: m}
}

// ApplyDeletion replaces the identified message with its redacted form, the
// same transition the server applied.
func (t *Timeline) ApplyDeletion(msgID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].Message.ID == msgID {
			t.entries[i].Message.Redact()
			return true
		}
	}
	return false
}

// MarkRead adds id to the read set of every entry, mirroring a bulk server
// mark-read.
func (t *Timeline) MarkRead(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		t.entries[i].Message.MarkRead(id)
	}
}

// Entries returns a copy of the timeline in order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Pending reports how many entries still await confirmation.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.Pending {
			n++
		}
	}
	return n
}

func (t *Timeline) markSeen(id string) {
	if id != "" {
		t.seen[id] = true
	}
}
