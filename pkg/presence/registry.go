// Package presence tracks which users currently hold a live connection.
package presence

import (
	"sort"
	"sync"

	"duochat/pkg/logger"
	"duochat/pkg/metrics"
)

// Peer is a live connection that can receive pushed events. Deliver reports
// whether the event was accepted; a false return means the peer is gone or
// its buffer overflowed.
type Peer interface {
	Deliver(event string, payload any) bool
}

// Registry maps online user ids to their single active connection. A new
// connection for a user replaces the previous one.
type Registry struct {
	mu       sync.RWMutex
	peers    map[string]Peer
	onChange func(online []string)
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]Peer)}
}

// OnChange sets the callback invoked with the sorted online-user snapshot
// after every membership change. Set it before serving connections.
func (r *Registry) OnChange(fn func(online []string)) {
	r.onChange = fn
}

// Register binds userID to p, displacing any previous connection for the
// same user. The displaced peer is returned so the caller can close it.
func (r *Registry) Register(userID string, p Peer) Peer {
	r.mu.Lock()
	prev := r.peers[userID]
	r.peers[userID] = p
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if prev != nil {
		logger.Info("presence_replaced", "user", userID)
	} else {
		logger.Info("presence_online", "user", userID)
	}
	metrics.OnlineUsers.Set(float64(len(snapshot)))
	r.notify(snapshot)
	return prev
}

// Unregister removes the binding for userID, but only if it still points at
// p. A stale disconnect from a displaced connection must not knock the
// replacement offline.
func (r *Registry) Unregister(userID string, p Peer) {
	r.mu.Lock()
	cur, ok := r.peers[userID]
	if !ok || cur != p {
		r.mu.Unlock()
		return
	}
	delete(r.peers, userID)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	logger.Info("presence_offline", "user", userID)
	metrics.OnlineUsers.Set(float64(len(snapshot)))
	r.notify(snapshot)
}

// Lookup returns the active connection for userID, if any.
func (r *Registry) Lookup(userID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[userID]
	return p, ok
}

// Online reports whether userID has an active connection.
func (r *Registry) Online(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Snapshot returns the sorted list of online user ids.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []string {
	out := make([]string, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) notify(snapshot []string) {
	if r.onChange != nil {
		r.onChange(snapshot)
	}
}
