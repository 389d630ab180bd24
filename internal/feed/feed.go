// Package feed accumulates paginated activity fetches into a single
// deduplicated, order-preserving list with derived loading state.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mverhagen/memberhub/internal/cache"
	"github.com/mverhagen/memberhub/internal/model"
	"github.com/mverhagen/memberhub/internal/session"
)

// Source fetches one page of the activity feed. *api.Client satisfies it.
type Source interface {
	Activities(ctx context.Context, page, pageSize int) (*model.ActivityPage, error)
}

// State is the derived view of the accumulated feed. It is recomputed from
// the raw page set on every change; nothing in it is stored.
type State struct {
	// Activities is the flattened page set, deduplicated by id with the
	// first occurrence kept, in page order then server order.
	Activities []model.Activity

	// Err is the first outstanding page fetch error. An error never
	// removes already-accumulated activities.
	Err error

	// Count is the server-reported total from the most recently fetched
	// page, 0 before any page arrives.
	Count int

	// IsLoadingInitialData is true while the first page has neither data
	// nor an error.
	IsLoadingInitialData bool

	// IsLoadingMore is true during the initial load and while a
	// requested page slot has not been filled yet.
	IsLoadingMore bool

	// IsRefreshing is true while already-fetched pages revalidate in the
	// background (as opposed to a load-more fetch).
	IsRefreshing bool

	// IsReachingEnd reports that no further pages exist.
	IsReachingEnd bool

	// CanLoadMore reports whether LoadMore would do anything.
	CanLoadMore bool
}

// pageSnap is the per-page input to derive.
type pageSnap struct {
	page       *model.ActivityPage
	err        error
	validating bool
}

// Accumulator subscribes to a lazily extended sequence of activity pages
// through the cache and exposes the derived feed state. Pages use the
// manual policy: once fetched they are never refetched except through
// Refresh.
type Accumulator struct {
	mu        sync.Mutex
	c         *cache.Cache
	src       Source
	presence  session.Presence
	pageSize  int
	requested int
	subs      []*cache.Subscription
	gated     bool
	updates   chan struct{}
	closed    bool
}

// New creates an accumulator and requests page 0. Pages wait behind the
// session gate until presence reports a signed-in member; a nil presence
// disables the gate.
func New(c *cache.Cache, src Source, presence session.Presence, pageSize int) *Accumulator {
	if pageSize <= 0 {
		pageSize = 10
	}

	a := &Accumulator{
		c:        c,
		src:      src,
		presence: presence,
		pageSize: pageSize,
		updates:  make(chan struct{}, 1),
	}
	a.requested = 1
	a.subs = append(a.subs, a.subscribePage(0))
	return a
}

func (a *Accumulator) gateOpen() bool {
	if a.presence == nil {
		return true
	}
	user, loaded := a.presence.User()
	return loaded && user != nil
}

// resubscribeLocked swaps skip-key page slots for real subscriptions once
// a signed-in member is known. Callers must hold a.mu.
func (a *Accumulator) resubscribeLocked() {
	if !a.gated || a.closed || !a.gateOpen() {
		return
	}
	a.gated = false
	for i, sub := range a.subs {
		sub.Close()
		a.subs[i] = a.subscribePage(i)
	}
}

// pageKey is the cache key for one page slot. The size is part of the key
// so a config change does not alias stale pages.
func (a *Accumulator) pageKey(index int) cache.Key {
	return cache.Key(fmt.Sprintf("activities/page/%d?size=%d", index, a.pageSize))
}

// subscribePage opens the cache subscription for a page index and pipes
// its notifications into the accumulator's coalescing update channel.
func (a *Accumulator) subscribePage(index int) *cache.Subscription {
	key := a.pageKey(index)
	if !a.gateOpen() {
		a.gated = true
		key = cache.Skip
	}

	pageSize := a.pageSize
	src := a.src
	sub := a.c.Subscribe(key, func(ctx context.Context) (interface{}, error) {
		page, err := src.Activities(ctx, index, pageSize)
		if err != nil {
			return nil, err
		}
		return page, nil
	}, cache.Options{
		Policy:        cache.PolicyManual,
		DedupInterval: 2 * time.Second,
	})

	go func() {
		for range sub.Updates() {
			select {
			case a.updates <- struct{}{}:
			default:
			}
		}
	}()

	return sub
}

// Updates returns a coalescing channel signaled whenever any page changes.
func (a *Accumulator) Updates() <-chan struct{} {
	return a.updates
}

// State derives the current feed state from the page snapshots. The
// session gate is re-checked on every call.
func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resubscribeLocked()
	return a.stateLocked()
}

func (a *Accumulator) stateLocked() State {
	snaps := make([]pageSnap, len(a.subs))
	for i, sub := range a.subs {
		snap := sub.Snapshot()
		ps := pageSnap{err: snap.Err, validating: snap.IsValidating}
		if page, ok := snap.Data.(*model.ActivityPage); ok {
			ps.page = page
		}
		snaps[i] = ps
	}
	return derive(snaps, a.requested)
}

// LoadMore requests one additional page. It reports whether a new page was
// actually requested: once the end is reached (or while the feed cannot
// grow) it is a no-op.
func (a *Accumulator) LoadMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resubscribeLocked()
	if a.closed || !a.stateLocked().CanLoadMore {
		return false
	}

	index := a.requested
	a.requested++
	a.subs = append(a.subs, a.subscribePage(index))
	return true
}

// Refresh forces a revalidation of every requested page. Accumulated
// activities stay visible while the refetch is in flight.
func (a *Accumulator) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resubscribeLocked()
	for i := 0; i < a.requested; i++ {
		a.c.Revalidate(a.pageKey(i), true)
	}
}

// Close releases all page subscriptions. Memoized pages stay in the cache.
func (a *Accumulator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	for _, sub := range a.subs {
		sub.Close()
	}
}

// derive computes the feed state from page snapshots in index order. It is
// a pure function: same snapshots, same state, regardless of the order in
// which the underlying fetches completed.
func derive(pages []pageSnap, requested int) State {
	var st State

	seen := make(map[string]struct{})
	lastFetched := -1
	fetched := 0
	anyValidating := false

	for i, ps := range pages {
		if ps.validating {
			anyValidating = true
		}
		if ps.err != nil && st.Err == nil {
			st.Err = ps.err
		}
		if ps.page == nil {
			continue
		}

		fetched++
		lastFetched = i
		st.Count = ps.page.Count

		for _, activity := range ps.page.Results {
			if _, dup := seen[activity.ID]; dup {
				continue
			}
			seen[activity.ID] = struct{}{}
			st.Activities = append(st.Activities, activity)
		}
	}

	firstPageEmpty := len(pages) == 0 || pages[0].page == nil
	st.IsLoadingInitialData = firstPageEmpty && st.Err == nil

	lastSlotEmpty := requested > 0 &&
		(requested > len(pages) || pages[requested-1].page == nil)
	st.IsLoadingMore = st.IsLoadingInitialData ||
		(requested > fetched && lastSlotEmpty)

	st.IsRefreshing = anyValidating && fetched == requested

	shortLastPage := lastFetched >= 0 &&
		len(pages[lastFetched].page.Results) < pages[lastFetched].page.PageSize
	st.IsReachingEnd = st.Count == 0 ||
		len(st.Activities) == st.Count ||
		shortLastPage

	st.CanLoadMore = !st.IsReachingEnd && !st.IsLoadingMore
	return st
}
