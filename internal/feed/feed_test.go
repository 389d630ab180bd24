package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mverhagen/memberhub/internal/cache"
	"github.com/mverhagen/memberhub/internal/model"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func mkPage(count, pageSize int, ids ...string) *model.ActivityPage {
	page := &model.ActivityPage{Count: count, PageSize: pageSize}
	for _, id := range ids {
		page.Results = append(page.Results, model.Activity{
			ID:    id,
			Kind:  "group.post",
			Title: "activity " + id,
		})
	}
	return page
}

func snapOf(page *model.ActivityPage) pageSnap {
	return pageSnap{page: page}
}

func activityIDs(activities []model.Activity) []string {
	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestDeriveDeduplicatesKeepingFirstOccurrence(t *testing.T) {
	st := derive([]pageSnap{
		snapOf(mkPage(5, 3, "a", "b", "c")),
		snapOf(mkPage(5, 3, "c", "d")),
	}, 2)

	require.Equal(t, []string{"a", "b", "c", "d"}, activityIDs(st.Activities))
}

func TestDeriveEndOfFeed(t *testing.T) {
	t.Run("full first page with more remaining", func(t *testing.T) {
		st := derive([]pageSnap{
			snapOf(mkPage(25, 10, "1", "2", "3", "4", "5", "6", "7", "8", "9", "10")),
		}, 1)

		require.False(t, st.IsReachingEnd)
		require.True(t, st.CanLoadMore)
	})

	t.Run("short page signals the end even below the total", func(t *testing.T) {
		// Duplicates across pages can leave the deduplicated list shorter
		// than the server total; the short page is what ends the feed.
		st := derive([]pageSnap{
			snapOf(mkPage(25, 10, "1", "2", "3", "4", "5", "6", "7", "8", "9", "10")),
			snapOf(mkPage(25, 10, "10", "11", "12", "13", "14", "15")),
		}, 2)

		require.Len(t, st.Activities, 15)
		require.True(t, st.IsReachingEnd)
		require.False(t, st.CanLoadMore)
	})

	t.Run("reaching the reported total", func(t *testing.T) {
		st := derive([]pageSnap{
			snapOf(mkPage(4, 2, "a", "b")),
			snapOf(mkPage(4, 2, "c", "d")),
		}, 2)

		require.True(t, st.IsReachingEnd)
	})

	t.Run("empty feed", func(t *testing.T) {
		st := derive([]pageSnap{snapOf(mkPage(0, 10))}, 1)

		require.True(t, st.IsReachingEnd)
		require.Empty(t, st.Activities)
		require.False(t, st.CanLoadMore)
	})
}

func TestDeriveErrorKeepsAccumulatedActivities(t *testing.T) {
	boom := errors.New("boom")
	st := derive([]pageSnap{
		snapOf(mkPage(20, 2, "a", "b")),
		{err: boom},
	}, 2)

	require.ErrorIs(t, st.Err, boom)
	require.Equal(t, []string{"a", "b"}, activityIDs(st.Activities))
	require.False(t, st.IsLoadingInitialData)
}

func TestDeriveLoadingStates(t *testing.T) {
	t.Run("initial load", func(t *testing.T) {
		st := derive([]pageSnap{{validating: true}}, 1)

		require.True(t, st.IsLoadingInitialData)
		require.True(t, st.IsLoadingMore)
		require.False(t, st.IsRefreshing)
		require.False(t, st.CanLoadMore)
	})

	t.Run("loading an additional page", func(t *testing.T) {
		st := derive([]pageSnap{
			snapOf(mkPage(20, 2, "a", "b")),
			{validating: true},
		}, 2)

		require.False(t, st.IsLoadingInitialData)
		require.True(t, st.IsLoadingMore)
		require.False(t, st.IsRefreshing)
		require.False(t, st.CanLoadMore)
	})

	t.Run("refreshing already-fetched pages", func(t *testing.T) {
		st := derive([]pageSnap{
			{page: mkPage(20, 2, "a", "b"), validating: true},
		}, 1)

		require.False(t, st.IsLoadingMore)
		require.True(t, st.IsRefreshing)
	})
}

// fakeSource serves pages from a fixed map and counts fetches per page.
type fakeSource struct {
	mu      sync.Mutex
	pages   map[int]*model.ActivityPage
	fetches map[int]int
}

func newFakeSource(pages map[int]*model.ActivityPage) *fakeSource {
	return &fakeSource{pages: pages, fetches: make(map[int]int)}
}

func (f *fakeSource) Activities(_ context.Context, page, _ int) (*model.ActivityPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches[page]++
	p, ok := f.pages[page]
	if !ok {
		return nil, fmt.Errorf("no such page %d", page)
	}
	// Copy so callers cannot mutate the fixture.
	out := *p
	return &out, nil
}

func (f *fakeSource) fetchCount(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[page]
}

func TestAccumulatorLoadsAndExtends(t *testing.T) {
	src := newFakeSource(map[int]*model.ActivityPage{
		0: mkPage(4, 2, "a", "b"),
		1: mkPage(4, 2, "c", "d"),
	})

	acc := New(cache.New(), src, nil, 2)
	defer acc.Close()

	eventually(t, func() bool { return !acc.State().IsLoadingInitialData })
	require.Equal(t, []string{"a", "b"}, activityIDs(acc.State().Activities))
	require.True(t, acc.State().CanLoadMore)

	require.True(t, acc.LoadMore())
	eventually(t, func() bool { return len(acc.State().Activities) == 4 })

	st := acc.State()
	require.Equal(t, []string{"a", "b", "c", "d"}, activityIDs(st.Activities))
	require.True(t, st.IsReachingEnd)

	// At the end LoadMore is a no-op.
	require.False(t, acc.LoadMore())
	require.Equal(t, 1, src.fetchCount(0))
	require.Equal(t, 1, src.fetchCount(1))
}

type fakePresence struct {
	mu     sync.Mutex
	user   *model.User
	loaded bool
}

func (p *fakePresence) User() (*model.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user, p.loaded
}

func (p *fakePresence) set(user *model.User, loaded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = user
	p.loaded = loaded
}

func TestAccumulatorWaitsForSignedInMember(t *testing.T) {
	src := newFakeSource(map[int]*model.ActivityPage{
		0: mkPage(2, 2, "a", "b"),
	})
	presence := &fakePresence{loaded: true}

	acc := New(cache.New(), src, presence, 2)
	defer acc.Close()

	// A confirmed anonymous visitor gets no page fetch.
	time.Sleep(50 * time.Millisecond)
	require.True(t, acc.State().IsLoadingInitialData)
	require.Zero(t, src.fetchCount(0))

	presence.set(&model.User{ID: "u1"}, true)
	eventually(t, func() bool { return len(acc.State().Activities) == 2 })
	require.Equal(t, 1, src.fetchCount(0))
}

func TestAccumulatorRefreshRefetchesAllPages(t *testing.T) {
	src := newFakeSource(map[int]*model.ActivityPage{
		0: mkPage(4, 2, "a", "b"),
		1: mkPage(4, 2, "c", "d"),
	})

	acc := New(cache.New(), src, nil, 2)
	defer acc.Close()

	eventually(t, func() bool { return !acc.State().IsLoadingInitialData })
	require.True(t, acc.LoadMore())
	eventually(t, func() bool { return len(acc.State().Activities) == 4 })

	acc.Refresh()
	eventually(t, func() bool {
		return src.fetchCount(0) == 2 && src.fetchCount(1) == 2
	})

	// Activities never disappear across a refresh.
	require.Len(t, acc.State().Activities, 4)
}
