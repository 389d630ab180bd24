// Package announce fetches dismissible announcements by slug. A slug whose
// announcement the server reports gone is suppressed for the rest of the
// session so it is never asked for again; dismissal flips the cached
// status optimistically before the server confirms.
package announce

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mverhagen/memberhub/internal/api"
	"github.com/mverhagen/memberhub/internal/cache"
	"github.com/mverhagen/memberhub/internal/model"
	"github.com/mverhagen/memberhub/internal/session"
	"github.com/mverhagen/memberhub/internal/suppress"
)

// API is the slice of the platform client this package needs.
type API interface {
	AnnouncementBySlug(ctx context.Context, slug string) (*model.Announcement, error)
	MarkActivityInteracted(ctx context.Context, activityID string) error
}

// Fetcher creates per-slug handles sharing one cache, one presence source,
// and one session suppression store.
type Fetcher struct {
	c        *cache.Cache
	api      API
	presence session.Presence
	flags    suppress.Store
	log      *zap.Logger
}

// NewFetcher wires the fetcher. A nil logger is replaced with a no-op one.
func NewFetcher(
	c *cache.Cache,
	apiClient API,
	presence session.Presence,
	flags suppress.Store,
	log *zap.Logger,
) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{c: c, api: apiClient, presence: presence, flags: flags, log: log}
}

// Handle returns a handle for slug with miss-suppression enabled, the
// policy almost every caller wants.
func (f *Fetcher) Handle(slug string) *Handle {
	return f.HandleWithPolicy(slug, true)
}

// HandleWithPolicy returns a handle for slug. When suppressOnMiss is
// false a gone announcement is simply absent; no session flag is written.
func (f *Fetcher) HandleWithPolicy(slug string, suppressOnMiss bool) *Handle {
	return &Handle{
		f:              f,
		slug:           slug,
		suppressOnMiss: suppressOnMiss,
		updates:        make(chan struct{}, 1),
	}
}

// Handle observes one announcement slug.
type Handle struct {
	f              *Fetcher
	slug           string
	suppressOnMiss bool
	updates        chan struct{}

	mu  sync.Mutex
	sub *cache.Subscription
}

func (h *Handle) key() cache.Key {
	return cache.Key("announcement/" + h.slug)
}

// Get returns the announcement to show (or nil) and whether the answer is
// still loading. The state machine, in order:
//
//   - suppressed slug: nothing, never a fetch
//   - presence unknown: loading
//   - anonymous: nothing
//   - fetch gone: nothing, and the slug is suppressed for the session
//   - fetched but already interacted or empty: nothing
//   - otherwise: the announcement
func (h *Handle) Get() (*model.Announcement, bool) {
	if h.suppressOnMiss {
		if v, ok := h.f.flags.Get(suppress.AnnouncementKey(h.slug)); ok && v {
			return nil, false
		}
	}

	user, loaded := h.f.presence.User()
	if !loaded {
		return nil, true
	}
	if user == nil {
		return nil, false
	}

	snap := h.ensureSub().Snapshot()

	if snap.Err != nil {
		if api.IsNotFound(snap.Err) && h.suppressOnMiss {
			h.f.flags.Set(suppress.AnnouncementKey(h.slug), true)
		}
		return nil, false
	}

	if !snap.Loaded {
		return nil, snap.IsValidating
	}

	announcement, ok := snap.Data.(*model.Announcement)
	if !ok || !announcement.Showable() {
		return nil, false
	}
	return announcement, false
}

// Dismiss marks the announcement interacted. The cached status flips to
// INTERACTED synchronously; the server confirmation runs in the background
// and a failure is logged but not rolled back (the endpoint is idempotent
// and resurfacing a dismissed banner is worse than a lost confirmation).
// Without a known activity id this is a no-op: no request, no state change.
func (h *Handle) Dismiss() {
	snap := h.f.c.Peek(h.key())
	announcement, ok := snap.Data.(*model.Announcement)
	if !ok || announcement == nil || announcement.ActivityID == "" {
		return
	}
	if announcement.Status == model.AnnouncementStatusInteracted {
		return
	}

	activityID := announcement.ActivityID

	h.f.c.Mutate(h.key(), func(v interface{}) interface{} {
		current, ok := v.(*model.Announcement)
		if !ok || current == nil {
			return v
		}
		updated := *current
		updated.Status = model.AnnouncementStatusInteracted
		return &updated
	})

	slug := h.slug
	f := h.f
	go func() {
		if err := f.api.MarkActivityInteracted(context.Background(), activityID); err != nil {
			f.log.Warn("announcement dismissal confirmation failed",
				zap.String("slug", slug),
				zap.String("activity_id", activityID),
				zap.Error(err))
		}
	}()
}

// Updates returns a coalescing channel signaled when the slug's cache
// entry changes. It never opens the subscription itself: the fetch gates
// live in Get, and nothing is delivered before Get first passes them.
func (h *Handle) Updates() <-chan struct{} {
	return h.updates
}

// Close releases the cache subscription. The memoized announcement stays.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sub != nil {
		h.sub.Close()
		h.sub = nil
	}
}

// ensureSub opens the immutable-policy subscription on first use and pipes
// its notifications into the handle's channel. Only Get calls this, after
// the suppression and presence gates have passed; the announcement is
// fetched once and only Mutate changes it afterwards.
func (h *Handle) ensureSub() *cache.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sub == nil {
		slug := h.slug
		apiClient := h.f.api
		sub := h.f.c.Subscribe(h.key(), func(ctx context.Context) (interface{}, error) {
			announcement, err := apiClient.AnnouncementBySlug(ctx, slug)
			if err != nil {
				if api.IsNotFound(err) {
					return nil, err
				}
				return nil, fmt.Errorf("loading announcement %q: %w", slug, err)
			}
			return announcement, nil
		}, cache.Options{
			Policy: cache.PolicyImmutable,
		})
		h.sub = sub

		go func() {
			for range sub.Updates() {
				select {
				case h.updates <- struct{}{}:
				default:
				}
			}
		}()
	}
	return h.sub
}
