// Package unread exposes the member's unread activity count, polled on an
// interval behind two gates: a startup grace period and a confirmed
// session. Until both gates open no counter request leaves the process.
package unread

import (
	"context"
	"sync"
	"time"

	"github.com/mverhagen/memberhub/internal/cache"
	"github.com/mverhagen/memberhub/internal/session"
)

// CacheKey is the cache key under which the count is memoized.
const CacheKey cache.Key = "activities/unread-count"

// Default timings. The dedup window and focus throttle collapse any two
// counter fetches closer than ten seconds into one.
const (
	DefaultGracePeriod     = 3 * time.Second
	DefaultRefreshInterval = 30 * time.Second
	DefaultDedupInterval   = 10 * time.Second
	DefaultFocusThrottle   = 10 * time.Second
)

// CountSource fetches the unread count. *api.Client satisfies it.
type CountSource interface {
	UnreadCount(ctx context.Context) (int, error)
}

// Config overrides the poller timings; zero values take the defaults.
type Config struct {
	GracePeriod     time.Duration
	RefreshInterval time.Duration
	DedupInterval   time.Duration
	FocusThrottle   time.Duration
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.DedupInterval <= 0 {
		c.DedupInterval = DefaultDedupInterval
	}
	if c.FocusThrottle <= 0 {
		c.FocusThrottle = DefaultFocusThrottle
	}
	return c
}

// Poller reports the unread count. Count always returns an int so callers
// can render a badge unconditionally: absent, loading, and error states
// all degrade to 0. There is no manual refresh; only the interval and
// focus triggers change the value.
type Poller struct {
	mu       sync.Mutex
	c        *cache.Cache
	src      CountSource
	presence session.Presence
	cfg      Config
	started  time.Time
	sub      *cache.Subscription
	updates  chan struct{}
}

// New creates the poller. The grace period starts counting immediately.
func New(c *cache.Cache, src CountSource, presence session.Presence, cfg Config) *Poller {
	return &Poller{
		c:        c,
		src:      src,
		presence: presence,
		cfg:      cfg.withDefaults(),
		started:  time.Now(),
		updates:  make(chan struct{}, 1),
	}
}

// Count returns the current unread count, or 0 while either gate is shut
// or the value is not known yet. Both gates are re-checked on every call;
// losing the session closes the counter subscription.
func (p *Poller) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.started) < p.cfg.GracePeriod {
		return 0
	}

	user, loaded := p.presence.User()
	if !loaded || user == nil {
		// A vanished session shuts the gate again: the subscription
		// closes and interval polling stops until the member is back.
		if p.sub != nil {
			p.sub.Close()
			p.sub = nil
		}
		return 0
	}

	if p.sub == nil {
		p.subscribeLocked()
	}

	if n, ok := p.sub.Snapshot().Data.(int); ok {
		return n
	}
	return 0
}

// Updates returns a coalescing channel signaled when the count changes.
// Nothing is delivered before both gates have opened and the first fetch
// completed.
func (p *Poller) Updates() <-chan struct{} {
	return p.updates
}

// Close releases the counter subscription, if one was ever opened.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sub != nil {
		p.sub.Close()
		p.sub = nil
	}
}

// subscribeLocked swaps the skip sentinel for the real counter key once
// both gates are open. Callers must hold p.mu.
func (p *Poller) subscribeLocked() {
	src := p.src
	p.sub = p.c.Subscribe(CacheKey, func(ctx context.Context) (interface{}, error) {
		n, err := src.UnreadCount(ctx)
		if err != nil {
			return nil, err
		}
		return n, nil
	}, cache.Options{
		Policy:          cache.PolicyAutomatic,
		RefreshInterval: p.cfg.RefreshInterval,
		DedupInterval:   p.cfg.DedupInterval,
		FocusThrottle:   p.cfg.FocusThrottle,
	})

	sub := p.sub
	go func() {
		for range sub.Updates() {
			select {
			case p.updates <- struct{}{}:
			default:
			}
		}
	}()
}
