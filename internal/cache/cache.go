// Package cache provides a process-wide keyed resource cache. Each key
// memoizes the latest fetched value; every consumer subscribed to a key
// observes the same data and the same in-flight request. It backs the
// activity feed, the unread counter, the session lookup, and announcement
// fetching.
package cache

import (
	"context"
	"sync"
	"time"
)

// Key identifies a cached resource. The zero value Skip is a sentinel
// meaning "do not fetch": subscriptions under Skip never issue a request
// and always observe an empty snapshot.
type Key string

// Skip is the do-not-fetch sentinel key.
const Skip Key = ""

// Fetcher loads the resource for a key. It runs in its own goroutine; the
// cache never issues more than one concurrent fetch per key.
type Fetcher func(ctx context.Context) (interface{}, error)

// Policy controls when a cached resource is revalidated.
type Policy int

const (
	// PolicyAutomatic revalidates on a fixed interval and on focus,
	// throttled by the dedup window.
	PolicyAutomatic Policy = iota

	// PolicyManual fetches on first subscribe and afterwards only on an
	// explicit Revalidate call.
	PolicyManual

	// PolicyImmutable fetches once and is never revalidated; the value
	// changes only through Mutate.
	PolicyImmutable
)

// Options configures the fetch behavior of a single key.
type Options struct {
	Policy Policy

	// RefreshInterval is the automatic revalidation cadence. Ignored
	// unless Policy is PolicyAutomatic.
	RefreshInterval time.Duration

	// DedupInterval is the window within which repeated revalidation
	// requests for the key collapse into one.
	DedupInterval time.Duration

	// FocusThrottle limits how often a focus event may trigger a
	// revalidation of this key.
	FocusThrottle time.Duration
}

// Snapshot is the observable state of a cached resource.
type Snapshot struct {
	// Data is the last known value, nil until the first fetch completes.
	Data interface{}

	// Err is the error of the most recent failed fetch. A failure never
	// clears previously loaded Data.
	Err error

	// IsValidating reports whether a fetch for the key is in flight.
	IsValidating bool

	// Loaded reports whether the key has ever produced a value.
	Loaded bool
}

// entry is the per-key cache state. All fields are guarded by Cache.mu.
type entry struct {
	key        Key
	fetcher    Fetcher
	opts       Options
	data       interface{}
	err        error
	loaded     bool
	validating bool
	lastDone   time.Time
	lastFocus  time.Time
	refs       int
	loopStop   chan struct{}
}

// Cache is the process-wide key-to-resource map. The zero value is not
// usable; create one with New.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	subs    map[Key][]chan struct{}
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[Key]*entry),
		subs:    make(map[Key][]chan struct{}),
	}
}

// Subscription observes one key. Updates delivers coalesced change
// notifications; Snapshot returns the current state. Closing the
// subscription stops notifications but keeps the memoized value for
// future subscribers.
type Subscription struct {
	c      *Cache
	key    Key
	ch     chan struct{}
	closed bool
	mu     sync.Mutex
}

// Subscribe registers interest in key. The first subscription for a key
// triggers the initial fetch; later subscribers share the memoized value
// and any in-flight request. The fetcher and options of the first
// subscriber win for the lifetime of the entry. Subscribing to Skip is
// legal and never fetches.
func (c *Cache) Subscribe(key Key, fetcher Fetcher, opts Options) *Subscription {
	sub := &Subscription{c: c, key: key, ch: make(chan struct{}, 1)}
	if key == Skip {
		return sub
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key, fetcher: fetcher, opts: opts}
		c.entries[key] = e
	} else if e.fetcher == nil {
		// Entry created by Mutate before any subscriber arrived.
		e.fetcher = fetcher
		e.opts = opts
	}

	e.refs++
	c.subs[key] = append(c.subs[key], sub.ch)

	if !e.loaded && !e.validating {
		c.startFetch(e, false)
	}

	if e.opts.Policy == PolicyAutomatic &&
		e.opts.RefreshInterval > 0 && e.loopStop == nil {
		stop := make(chan struct{})
		e.loopStop = stop
		go c.refreshLoop(key, e.opts.RefreshInterval, stop)
	}

	return sub
}

// Updates returns the notification channel. It receives at most one
// pending signal; repeated changes coalesce.
func (s *Subscription) Updates() <-chan struct{} {
	return s.ch
}

// Snapshot returns the current state of the subscribed key.
func (s *Subscription) Snapshot() Snapshot {
	if s.key == Skip {
		return Snapshot{}
	}
	return s.c.Peek(s.key)
}

// Key returns the key this subscription observes.
func (s *Subscription) Key() Key {
	return s.key
}

// Close unregisters the subscription. In-flight fetches are not aborted
// and the memoized value is retained.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.key == Skip {
		close(s.ch)
		return
	}

	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	chans := s.c.subs[s.key]
	for i, ch := range chans {
		if ch == s.ch {
			s.c.subs[s.key] = append(chans[:i], chans[i+1:]...)
			break
		}
	}

	// Safe to close once unregistered: notify holds the same lock, so no
	// sender can race the close.
	close(s.ch)

	if e, ok := s.c.entries[s.key]; ok {
		e.refs--
		if e.refs <= 0 && e.loopStop != nil {
			close(e.loopStop)
			e.loopStop = nil
		}
	}
}

// Peek returns the current snapshot for key without subscribing.
func (c *Cache) Peek(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{
		Data:         e.data,
		Err:          e.err,
		IsValidating: e.validating,
		Loaded:       e.loaded,
	}
}

// Revalidate requests a refetch of key. Requests inside the key's dedup
// window are dropped unless force is set. Immutable keys never refetch.
func (c *Cache) Revalidate(key Key, force bool) {
	if key == Skip {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.startFetch(e, force)
	}
}

// Mutate rewrites the cached value for key through fn without contacting
// the server. It creates the entry if absent, marks it loaded, clears any
// error, and notifies subscribers synchronously before returning.
func (c *Cache) Mutate(key Key, fn func(interface{}) interface{}) {
	if key == Skip {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key}
		c.entries[key] = e
	}

	e.data = fn(e.data)
	e.err = nil
	e.loaded = true
	c.notify(key)
}

// Focus signals that the application regained focus. Automatic entries
// with live subscribers revalidate, each throttled by its FocusThrottle.
func (c *Cache) Focus() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, e := range c.entries {
		if e.opts.Policy != PolicyAutomatic || e.refs <= 0 {
			continue
		}
		if e.opts.FocusThrottle > 0 &&
			now.Sub(e.lastFocus) < e.opts.FocusThrottle {
			continue
		}
		e.lastFocus = now
		c.startFetch(e, false)
	}
}

// startFetch begins a fetch for e unless one is in flight, the dedup
// window is still open, or the entry is immutable and already loaded.
// Callers must hold c.mu.
func (c *Cache) startFetch(e *entry, force bool) {
	if e.fetcher == nil || e.validating {
		return
	}
	if e.opts.Policy == PolicyImmutable && e.loaded {
		return
	}
	if !force && !e.lastDone.IsZero() &&
		time.Since(e.lastDone) < e.opts.DedupInterval {
		return
	}

	e.validating = true
	c.notify(e.key)

	fetcher := e.fetcher
	go func() {
		data, err := fetcher(context.Background())

		c.mu.Lock()
		defer c.mu.Unlock()

		if err != nil {
			e.err = err
		} else {
			e.data = data
			e.err = nil
			e.loaded = true
		}
		e.validating = false
		e.lastDone = time.Now()
		c.notify(e.key)
	}()
}

// refreshLoop drives interval revalidation for one automatic key until
// its last subscriber leaves.
func (c *Cache) refreshLoop(key Key, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Revalidate(key, false)
		}
	}
}

// notify wakes every subscriber of key without blocking; a subscriber
// that has not drained its previous signal keeps the single pending one.
// Callers must hold c.mu.
func (c *Cache) notify(key Key) {
	for _, ch := range c.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
