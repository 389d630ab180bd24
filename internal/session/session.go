// Package session tracks who (if anyone) is signed in. Presence is fetched
// through the shared resource cache under a single key, so every consumer
// (unread poller, announcement fetcher, soft-login dialog) observes the
// same session data and the same in-flight request.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mverhagen/memberhub/internal/cache"
	"github.com/mverhagen/memberhub/internal/model"
)

// CacheKey is the cache key under which the session is memoized.
const CacheKey cache.Key = "session"

// API fetches the session payload. *api.Client satisfies it.
type API interface {
	Session(ctx context.Context) (*model.Session, error)
}

// Presence answers "who is signed in right now". The boolean reports
// whether presence is known at all: (nil, false) means still loading,
// (nil, true) means a confirmed anonymous visitor.
type Presence interface {
	User() (*model.User, bool)
}

// Manager implements Presence on top of the shared cache and owns the
// logout protocol: session-scoped state registered through OnLogout is
// cleared when the member signs out.
type Manager struct {
	c   *cache.Cache
	sub *cache.Subscription

	mu    sync.Mutex
	hooks []func()
}

// NewManager subscribes to the session key with the automatic policy.
func NewManager(c *cache.Cache, api API) *Manager {
	sub := c.Subscribe(CacheKey, func(ctx context.Context) (interface{}, error) {
		session, err := api.Session(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}
		return session, nil
	}, cache.Options{
		Policy:          cache.PolicyAutomatic,
		RefreshInterval: 5 * time.Minute,
		DedupInterval:   10 * time.Second,
		FocusThrottle:   10 * time.Second,
	})

	return &Manager{c: c, sub: sub}
}

// User reports the signed-in member. A fetch error counts as known
// anonymous: the UI degrades to the signed-out state rather than blocking
// on presence forever.
func (m *Manager) User() (*model.User, bool) {
	snap := m.sub.Snapshot()
	if !snap.Loaded {
		if snap.Err != nil {
			return nil, true
		}
		return nil, false
	}

	if session, ok := snap.Data.(*model.Session); ok && !session.Anonymous() {
		return session.User, true
	}
	return nil, true
}

// Updates returns the session change notification channel.
func (m *Manager) Updates() <-chan struct{} {
	return m.sub.Updates()
}

// OnLogout registers a hook run when the member signs out. Used to clear
// session-scoped suppression flags and stored credentials.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Logout runs the registered hooks and rewrites the cached session to
// anonymous so every presence consumer observes the sign-out immediately.
func (m *Manager) Logout() {
	m.mu.Lock()
	hooks := make([]func(), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	m.c.Mutate(CacheKey, func(interface{}) interface{} {
		return &model.Session{}
	})
}
