package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mverhagen/memberhub/internal/cache"
	"github.com/mverhagen/memberhub/internal/model"
)

type fakeAPI struct {
	mu      sync.Mutex
	session *model.Session
	err     error
	calls   int64
}

func (f *fakeAPI) Session(context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

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

func TestUserLoadingThenPresent(t *testing.T) {
	platform := &fakeAPI{session: &model.Session{User: &model.User{ID: "u1", Name: "Jo"}}}
	m := NewManager(cache.New(), platform)

	eventually(t, func() bool {
		_, known := m.User()
		return known
	})

	user, known := m.User()
	require.True(t, known)
	require.NotNil(t, user)
	require.Equal(t, "u1", user.ID)
}

func TestUserAnonymous(t *testing.T) {
	platform := &fakeAPI{session: &model.Session{}}
	m := NewManager(cache.New(), platform)

	eventually(t, func() bool {
		_, known := m.User()
		return known
	})

	user, known := m.User()
	require.True(t, known)
	require.Nil(t, user)
}

func TestFetchErrorDegradesToAnonymous(t *testing.T) {
	platform := &fakeAPI{err: errors.New("unreachable")}
	m := NewManager(cache.New(), platform)

	eventually(t, func() bool {
		_, known := m.User()
		return known
	})

	user, known := m.User()
	require.True(t, known)
	require.Nil(t, user)
}

func TestLogoutRunsHooksAndClearsPresence(t *testing.T) {
	platform := &fakeAPI{session: &model.Session{User: &model.User{ID: "u1"}}}
	m := NewManager(cache.New(), platform)

	eventually(t, func() bool {
		user, _ := m.User()
		return user != nil
	})

	var hookRuns int64
	m.OnLogout(func() { atomic.AddInt64(&hookRuns, 1) })
	m.OnLogout(func() { atomic.AddInt64(&hookRuns, 1) })

	m.Logout()

	require.Equal(t, int64(2), atomic.LoadInt64(&hookRuns))

	// Presence observes the sign-out immediately, no refetch needed.
	user, known := m.User()
	require.True(t, known)
	require.Nil(t, user)
}
