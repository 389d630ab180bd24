package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// eventually polls cond until it holds or the deadline passes.
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

func countingFetcher(calls *int64, value interface{}) Fetcher {
	return func(context.Context) (interface{}, error) {
		atomic.AddInt64(calls, 1)
		return value, nil
	}
}

func TestSkipKeyNeverFetches(t *testing.T) {
	c := New()
	var calls int64

	sub := c.Subscribe(Skip, countingFetcher(&calls, "never"), Options{})
	defer sub.Close()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, atomic.LoadInt64(&calls))

	snap := sub.Snapshot()
	require.False(t, snap.Loaded)
	require.Nil(t, snap.Data)
}

func TestSubscribersShareOneFetch(t *testing.T) {
	c := New()
	var calls int64
	release := make(chan struct{})

	fetcher := func(context.Context) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return 42, nil
	}

	first := c.Subscribe("shared", fetcher, Options{Policy: PolicyManual})
	defer first.Close()
	second := c.Subscribe("shared", countingFetcher(&calls, 0), Options{Policy: PolicyManual})
	defer second.Close()

	close(release)
	eventually(t, func() bool { return first.Snapshot().Loaded })

	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
	require.Equal(t, 42, first.Snapshot().Data)
	require.Equal(t, 42, second.Snapshot().Data)
}

func TestDedupWindowCollapsesRevalidation(t *testing.T) {
	c := New()
	var calls int64

	sub := c.Subscribe("deduped", countingFetcher(&calls, "v"), Options{
		Policy:        PolicyManual,
		DedupInterval: time.Minute,
	})
	defer sub.Close()

	eventually(t, func() bool { return sub.Snapshot().Loaded })
	require.Equal(t, int64(1), atomic.LoadInt64(&calls))

	c.Revalidate("deduped", false)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(1), atomic.LoadInt64(&calls))

	c.Revalidate("deduped", true)
	eventually(t, func() bool { return atomic.LoadInt64(&calls) == 2 })
}

func TestImmutableFetchesExactlyOnce(t *testing.T) {
	c := New()
	var calls int64

	sub := c.Subscribe("frozen", countingFetcher(&calls, "once"), Options{
		Policy: PolicyImmutable,
	})
	defer sub.Close()

	eventually(t, func() bool { return sub.Snapshot().Loaded })

	c.Revalidate("frozen", true)
	c.Focus()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestMutateIsSynchronous(t *testing.T) {
	c := New()

	c.Mutate("local", func(interface{}) interface{} { return "written" })

	snap := c.Peek("local")
	require.True(t, snap.Loaded)
	require.NoError(t, snap.Err)
	require.Equal(t, "written", snap.Data)
}

func TestMutateNotifiesSubscribers(t *testing.T) {
	c := New()
	var calls int64

	sub := c.Subscribe("watched", countingFetcher(&calls, 1), Options{Policy: PolicyManual})
	defer sub.Close()
	eventually(t, func() bool { return sub.Snapshot().Loaded })

	// Drain any pending signal from the initial load.
	select {
	case <-sub.Updates():
	default:
	}

	c.Mutate("watched", func(interface{}) interface{} { return 2 })

	select {
	case <-sub.Updates():
	default:
		t.Fatal("expected a pending notification after Mutate")
	}
	require.Equal(t, 2, sub.Snapshot().Data)
}

func TestFetchErrorKeepsPreviousData(t *testing.T) {
	c := New()
	var calls int64
	boom := errors.New("boom")

	fetcher := func(context.Context) (interface{}, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return "good", nil
		}
		return nil, boom
	}

	sub := c.Subscribe("flaky", fetcher, Options{Policy: PolicyManual})
	defer sub.Close()

	eventually(t, func() bool { return sub.Snapshot().Loaded })
	require.Equal(t, "good", sub.Snapshot().Data)

	c.Revalidate("flaky", true)
	eventually(t, func() bool { return sub.Snapshot().Err != nil })

	snap := sub.Snapshot()
	require.ErrorIs(t, snap.Err, boom)
	require.Equal(t, "good", snap.Data)
	require.True(t, snap.Loaded)
}

func TestCloseRetainsMemoizedValue(t *testing.T) {
	c := New()
	var calls int64

	sub := c.Subscribe("sticky", countingFetcher(&calls, "kept"), Options{Policy: PolicyManual})
	eventually(t, func() bool { return sub.Snapshot().Loaded })
	sub.Close()

	snap := c.Peek("sticky")
	require.True(t, snap.Loaded)
	require.Equal(t, "kept", snap.Data)

	// A fresh subscriber reuses the memoized value without refetching.
	again := c.Subscribe("sticky", countingFetcher(&calls, "other"), Options{Policy: PolicyManual})
	defer again.Close()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
	require.Equal(t, "kept", again.Snapshot().Data)
}

func TestFocusThrottle(t *testing.T) {
	c := New()
	var calls int64

	sub := c.Subscribe("focused", countingFetcher(&calls, "v"), Options{
		Policy:        PolicyAutomatic,
		FocusThrottle: time.Minute,
	})
	defer sub.Close()

	eventually(t, func() bool { return sub.Snapshot().Loaded })
	require.Equal(t, int64(1), atomic.LoadInt64(&calls))

	c.Focus()
	eventually(t, func() bool { return atomic.LoadInt64(&calls) == 2 })

	// Second focus inside the throttle window is ignored.
	c.Focus()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(2), atomic.LoadInt64(&calls))
}
