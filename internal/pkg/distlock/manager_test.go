package distlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingStore records Extend calls on top of a memory store.
type countingStore struct {
	*MemoryStore
	extends atomic.Int32
}

func (s *countingStore) Extend(ctx context.Context, id, instanceID string, expiresAt time.Time) error {
	s.extends.Add(1)
	return s.MemoryStore.Extend(ctx, id, instanceID, expiresAt)
}

func newTestManager(store Store, instance string, clock *fakeClock) *Manager {
	return NewManager(store, Options{InstanceID: instance, TTL: 2 * time.Minute, Now: clock.Now})
}

func TestAcquire_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	a := newTestManager(store, "worker-a", clock)
	b := newTestManager(store, "worker-b", clock)

	resA, err := a.Acquire(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, resA.Acquired)
	assert.Equal(t, "lock_camp-1", resA.LockID)

	resB, err := b.Acquire(ctx, "camp-1")
	require.NoError(t, err)
	assert.False(t, resB.Acquired)
	assert.Contains(t, resB.Message, "worker-a")

	// Different campaign is independent.
	resOther, err := b.Acquire(ctx, "camp-2")
	require.NoError(t, err)
	assert.True(t, resOther.Acquired)

	released, err := a.Release(ctx, resA.LockID)
	require.NoError(t, err)
	assert.True(t, released)

	resB, err = b.Acquire(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, resB.Acquired)
}

func TestAcquire_ConcurrentCallersOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := NewManager(store, Options{Now: clock.Now})
			res, err := m.Acquire(ctx, "camp-race")
			if err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			if res.Acquired {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestAcquire_ReclaimsExpiredLock(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	crashed := newTestManager(store, "crashed", clock)
	survivor := newTestManager(store, "survivor", clock)

	_, err := crashed.Acquire(ctx, "camp-1")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := survivor.Acquire(ctx, "camp-1")
	require.NoError(t, err)
	assert.False(t, res.Acquired, "live lock must not be reclaimed")

	clock.Advance(90 * time.Second)
	res, err = survivor.Acquire(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, res.Acquired)

	held, err := store.Get(ctx, "lock_camp-1")
	require.NoError(t, err)
	assert.Equal(t, "survivor", held.InstanceID)

	// The crashed holder can no longer release what it lost.
	released, err := crashed.Release(ctx, "lock_camp-1")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestRefresh_ExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	a := newTestManager(store, "a", clock)
	b := newTestManager(store, "b", clock)

	res, err := a.Acquire(ctx, "camp-1")
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	ok, err := a.Refresh(ctx, res.LockID)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(90 * time.Second)
	resB, err := b.Acquire(ctx, "camp-1")
	require.NoError(t, err)
	assert.False(t, resB.Acquired)

	ok, err = b.Refresh(ctx, res.LockID)
	require.NoError(t, err)
	assert.False(t, ok, "non-owner refresh must fail")
}

func TestCleanupStale_RemovesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	now := clock.Now()

	require.NoError(t, store.Create(ctx, &domain.Lock{ID: "lock_old", CampaignID: "old", InstanceID: "x", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Create(ctx, &domain.Lock{ID: "lock_live", CampaignID: "live", InstanceID: "y", ExpiresAt: now.Add(time.Minute)}))

	m := newTestManager(store, "janitor", clock)
	n, err := m.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "lock_old")
	assert.ErrorIs(t, err, ErrLockNotFound)
	_, err = store.Get(ctx, "lock_live")
	assert.NoError(t, err)
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, Options{InstanceID: "a"})

	boom := errors.New("boom")
	res, err := m.WithLock(ctx, "camp-1", func(context.Context) error { return boom })
	assert.True(t, res.Acquired)
	assert.ErrorIs(t, err, boom)

	_, err = store.Get(ctx, "lock_camp-1")
	assert.ErrorIs(t, err, ErrLockNotFound)
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, Options{InstanceID: "a"})

	assert.Panics(t, func() {
		_, _ = m.WithLock(ctx, "camp-1", func(context.Context) error { panic("kaboom") })
	})

	_, err := store.Get(ctx, "lock_camp-1")
	assert.ErrorIs(t, err, ErrLockNotFound)
}

func TestWithLock_HeldElsewhereSkipsFn(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	holder := NewManager(store, Options{InstanceID: "holder"})
	other := NewManager(store, Options{InstanceID: "other"})

	_, err := holder.Acquire(ctx, "camp-1")
	require.NoError(t, err)

	called := false
	res, err := other.WithLock(ctx, "camp-1", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.False(t, called)

	// Holder's lock is untouched.
	l, err := store.Get(ctx, "lock_camp-1")
	require.NoError(t, err)
	assert.Equal(t, "holder", l.InstanceID)
}

func TestWithLock_RefreshesWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	store := &countingStore{MemoryStore: NewMemoryStore()}
	m := NewManager(store, Options{InstanceID: "a", RefreshInterval: 5 * time.Millisecond})

	_, err := m.WithLock(ctx, "camp-1", func(context.Context) error {
		time.Sleep(60 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, store.extends.Load(), int32(2))
	_, err = store.Get(ctx, "lock_camp-1")
	assert.ErrorIs(t, err, ErrLockNotFound)
}

func TestWithLock_CancelledContextStillReleases(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := NewMemoryStore()
	m := NewManager(store, Options{InstanceID: "a"})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := m.WithLock(ctx, "camp-1", func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Get(context.Background(), "lock_camp-1")
	assert.ErrorIs(t, err, ErrLockNotFound)
}

// failingExtendStore fails every Extend with a backend error.
type failingExtendStore struct {
	*MemoryStore
}

func (s *failingExtendStore) Extend(context.Context, string, string, time.Time) error {
	return errors.New("connection reset")
}

func TestWithLock_TakeoverCancelsFn(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := NewMemoryStore()
	m := NewManager(store, Options{InstanceID: "a", TTL: 50 * time.Millisecond, RefreshInterval: 10 * time.Millisecond})

	var cause error
	_, err := m.WithLock(context.Background(), "camp-1", func(ctx context.Context) error {
		store.mu.Lock()
		l := store.locks["lock_camp-1"]
		l.InstanceID = "b"
		l.ExpiresAt = time.Now().Add(time.Minute)
		store.locks["lock_camp-1"] = l
		store.mu.Unlock()

		select {
		case <-ctx.Done():
			cause = context.Cause(ctx)
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	require.Error(t, err)
	assert.ErrorIs(t, cause, ErrLockLost)
	assert.ErrorIs(t, err, ErrLockLost)
	assert.True(t, apperrors.Is(err, apperrors.KindLock))
	assert.False(t, apperrors.IsRetryable(err))

	// The new holder's record is left alone.
	l, err := store.Get(context.Background(), "lock_camp-1")
	require.NoError(t, err)
	assert.Equal(t, "b", l.InstanceID)
}

func TestWithLock_RefreshFailingPastTTLCancelsFn(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &failingExtendStore{MemoryStore: NewMemoryStore()}
	m := NewManager(store, Options{InstanceID: "a", TTL: 30 * time.Millisecond, RefreshInterval: 5 * time.Millisecond})

	start := time.Now()
	_, err := m.WithLock(context.Background(), "camp-1", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	assert.ErrorIs(t, err, ErrLockLost)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithLock_TransientRefreshErrorKeepsRunning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &failingExtendStore{MemoryStore: NewMemoryStore()}
	m := NewManager(store, Options{InstanceID: "a", TTL: time.Minute, RefreshInterval: 5 * time.Millisecond})

	_, err := m.WithLock(context.Background(), "camp-1", func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		return ctx.Err()
	})
	require.NoError(t, err)
}
