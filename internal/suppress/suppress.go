// Package suppress holds per-key boolean flags that stop redundant fetches
// for resources known to be absent or already handled. Two lifetimes exist:
// session-scoped (cleared when the process ends or the member logs out) and
// durable (survives restarts, for "don't show this again" dismissals).
package suppress

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mverhagen/memberhub/internal/store"
)

// AnnouncementKey returns the namespaced session flag key for an
// announcement slug.
func AnnouncementKey(slug string) string {
	return "announcement__" + slug + "__p"
}

// DurableKey returns the namespaced key used in the durable store. The
// prefix is distinct from session keys so the two schemes never collide.
func DurableKey(key string) string {
	return "memberhub__" + key
}

// Store is the flag interface shared by both lifetimes. Get reports
// (value, present); Set is best-effort and never fails the caller.
type Store interface {
	Get(key string) (bool, bool)
	Set(key string, value bool)
}

// SessionStore keeps flags in process memory: they survive view remounts
// but not a restart, and Reset clears them on logout.
type SessionStore struct {
	mu    sync.Mutex
	flags map[string]bool
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{flags: make(map[string]bool)}
}

// Get returns the flag value and whether it was ever set.
func (s *SessionStore) Get(key string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.flags[key]
	return v, ok
}

// Set records a flag for the rest of the session.
func (s *SessionStore) Set(key string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags[key] = value
}

// Reset drops every flag. Called when the member logs out.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags = make(map[string]bool)
}

// DurableStore adapts the local SQLite store to the flag interface.
// Storage failures are logged and otherwise swallowed: suppression writes
// are best-effort, never retried.
type DurableStore struct {
	store store.Store
	log   *zap.Logger
}

// NewDurableStore wraps the local store.
func NewDurableStore(s store.Store, log *zap.Logger) *DurableStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DurableStore{store: s, log: log}
}

// Get reads a durable flag; a read failure reports "not set".
func (d *DurableStore) Get(key string) (bool, bool) {
	v, present, err := d.store.GetFlag(context.Background(), DurableKey(key))
	if err != nil {
		d.log.Warn("reading durable flag failed",
			zap.String("key", key), zap.Error(err))
		return false, false
	}
	return v, present
}

// Set writes a durable flag, logging failures without surfacing them.
func (d *DurableStore) Set(key string, value bool) {
	if err := d.store.SetFlag(context.Background(), DurableKey(key), value); err != nil {
		d.log.Warn("writing durable flag failed",
			zap.String("key", key), zap.Error(err))
	}
}
