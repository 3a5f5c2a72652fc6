package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/kvstore"
	"github.com/lalith-99/huddle/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errDown = errors.New("connection refused")

// downStore fails every call, like a Redis that is unreachable.
type downStore struct{}

func (downStore) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, errDown }
func (downStore) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (downStore) Delete(context.Context, ...string) error                  { return errDown }
func (downStore) DeleteByPrefix(context.Context, string) (int, error)      { return 0, errDown }
func (downStore) Ping(context.Context) error                               { return errDown }
func (downStore) Close() error                                             { return nil }

// countingStore counts Get calls on top of a MemoryStore.
type countingStore struct {
	*kvstore.MemoryStore
	gets atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	defer s.gets.Add(1)
	return s.MemoryStore.Get(ctx, key)
}

// frozenStore never advances time, so TTLs read back exactly as set.
func frozenStore() *kvstore.MemoryStore {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	return kvstore.NewMemoryStore(kvstore.WithClock(func() time.Time { return now }))
}

func newCoordinator(store kvstore.Store, opts ...Option) *Coordinator {
	return New(store, DefaultPolicy(), zap.NewNop(), opts...)
}

func TestReadThrough_MissThenHit(t *testing.T) {
	ctx := context.Background()
	store := frozenStore()
	c := newCoordinator(store)
	key := cachekey.ForUserProfile(uuid.New())

	calls := 0
	loader := func(context.Context) (models.UserProfile, error) {
		calls++
		return models.UserProfile{Username: "alice"}, nil
	}

	got, err := ReadThrough(ctx, c, key, loader)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, 1, calls)

	got, err = ReadThrough(ctx, c, key, loader)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, 1, calls, "a hit must not invoke the loader")

	assert.Equal(t, 300*time.Second, store.TTL(key))
}

func TestReadThrough_FamilyTTL(t *testing.T) {
	ctx := context.Background()
	store := frozenStore()
	c := New(store, DefaultPolicy().With(cachekey.ChannelMessages, 5*time.Second), zap.NewNop())
	key := cachekey.ForChannelMessages(uuid.New(), 1)

	_, err := ReadThrough(ctx, c, key, func(context.Context) ([]int, error) { return []int{1, 2}, nil })
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, store.TTL(key))
}

func TestReadThrough_LoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := frozenStore()
	c := newCoordinator(store)
	key := cachekey.ForUnreadCount(uuid.New())
	boom := errors.New("db down")

	_, err := ReadThrough(ctx, c, key, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.Len())
}

func TestReadThrough_StoreOutageDegradesToLoader(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(downStore{})
	key := cachekey.ForUserProfile(uuid.New())

	calls := 0
	for i := 0; i < 3; i++ {
		v, err := ReadThrough(ctx, c, key, func(context.Context) (string, error) {
			calls++
			return "fresh", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh", v)
	}
	assert.Equal(t, 3, calls, "every read recomputes while the store is down")

	// Invalidation against a dead store is silent.
	c.InvalidateProfile(ctx, uuid.New())
	c.InvalidateChannelMessages(ctx, uuid.New())
}

func TestReadThrough_CorruptEntryIsRecomputed(t *testing.T) {
	ctx := context.Background()
	store := frozenStore()
	c := newCoordinator(store)
	key := cachekey.ForUnreadCount(uuid.New())
	require.NoError(t, store.Set(ctx, key, []byte("{not json"), time.Minute))

	v, err := ReadThrough(ctx, c, key, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	raw, ok, _ := store.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "7", string(raw))
}

func TestSet_SurvivesCancelledRequest(t *testing.T) {
	store := frozenStore()
	c := newCoordinator(store)
	key := cachekey.ForUnreadCount(uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadThrough(ctx, c, key, func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)

	_, ok, _ := store.Get(context.Background(), key)
	assert.True(t, ok)
}

func TestInvalidate_AbsentKeyIsNoop(t *testing.T) {
	c := newCoordinator(frozenStore())
	assert.NotPanics(t, func() {
		c.Invalidate(context.Background(), cachekey.ForUserProfile(uuid.New()))
		c.Invalidate(context.Background())
	})
}

func TestInvalidateChannelMessages_OnlyThatChannel(t *testing.T) {
	ctx := context.Background()
	store := frozenStore()
	c := newCoordinator(store)
	ch, other := uuid.New(), uuid.New()

	for page := 1; page <= 3; page++ {
		c.SetJSON(ctx, cachekey.ForChannelMessages(ch, page), []string{"m"})
	}
	c.SetJSON(ctx, cachekey.ForChannelMessages(other, 1), []string{"m"})

	c.InvalidateChannelMessages(ctx, ch)

	for page := 1; page <= 3; page++ {
		_, ok := c.Get(ctx, cachekey.ForChannelMessages(ch, page))
		assert.False(t, ok, "page %d", page)
	}
	_, ok := c.Get(ctx, cachekey.ForChannelMessages(other, 1))
	assert.True(t, ok)
}

func TestSetOnlineStatus(t *testing.T) {
	ctx := context.Background()
	store := frozenStore()
	c := newCoordinator(store)
	u := uuid.New()
	c.SetJSON(ctx, cachekey.ForUserProfile(u), models.UserProfile{ID: u})

	st, ok := c.OnlineStatus(ctx, u)
	assert.False(t, ok)
	assert.Equal(t, models.StatusOffline, st.Status)

	ws, other := uuid.New(), uuid.New()
	c.SetJSON(ctx, cachekey.ForWorkspaceDetail(ws), models.WorkspaceDetail{})
	c.SetJSON(ctx, cachekey.ForWorkspaceDetail(other), models.WorkspaceDetail{})

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c.SetOnlineStatus(ctx, u, models.StatusBusy, now, ws)

	_, ok = c.Get(ctx, cachekey.ForUserProfile(u))
	assert.False(t, ok, "profile must be invalidated")
	_, ok = c.Get(ctx, cachekey.ForWorkspaceDetail(ws))
	assert.False(t, ok, "the detail embedding the member must be invalidated")
	_, ok = c.Get(ctx, cachekey.ForWorkspaceDetail(other))
	assert.True(t, ok)

	st, ok = c.OnlineStatus(ctx, u)
	require.True(t, ok)
	assert.Equal(t, models.StatusBusy, st.Status)
	assert.True(t, now.Equal(st.UpdatedAt))

	assert.Equal(t, 300*time.Second, store.TTL(cachekey.ForUserOnline(u)))
}

func TestInvalidateMembership_OnlyAffectedUsers(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(frozenStore())
	ws := uuid.New()
	affected, bystander := uuid.New(), uuid.New()

	for _, k := range []string{
		cachekey.ForChannelList(ws),
		cachekey.ForWorkspaceDetail(ws),
		cachekey.ForWorkspaceList(affected),
		cachekey.ForWorkspaceList(bystander),
	} {
		c.SetJSON(ctx, k, []int{})
	}

	c.InvalidateMembership(ctx, ws, affected)

	for _, k := range []string{cachekey.ForChannelList(ws), cachekey.ForWorkspaceDetail(ws), cachekey.ForWorkspaceList(affected)} {
		_, ok := c.Get(ctx, k)
		assert.False(t, ok, k)
	}
	_, ok := c.Get(ctx, cachekey.ForWorkspaceList(bystander))
	assert.True(t, ok)
}

func TestReadThrough_NoCoalescingRunsEveryLoader(t *testing.T) {
	const n = 8
	c := newCoordinator(frozenStore())
	key := cachekey.ForWorkspaceList(uuid.New())

	var entered sync.WaitGroup
	entered.Add(n)
	release := make(chan struct{})
	var loads atomic.Int32

	var done sync.WaitGroup
	for i := 0; i < n; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			_, _ = ReadThrough(context.Background(), c, key, func(context.Context) (int, error) {
				loads.Add(1)
				entered.Done()
				<-release
				return 1, nil
			})
		}()
	}
	entered.Wait()
	close(release)
	done.Wait()

	assert.Equal(t, int32(n), loads.Load())
}

func TestReadThrough_CoalescingCollapsesMisses(t *testing.T) {
	const n = 8
	store := &countingStore{MemoryStore: frozenStore()}
	c := newCoordinator(store, WithCoalescing(true))
	key := cachekey.ForWorkspaceList(uuid.New())

	release := make(chan struct{})
	var loads atomic.Int32

	var done sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			v, err := ReadThrough(context.Background(), c, key, func(context.Context) (int, error) {
				loads.Add(1)
				<-release
				return 42, nil
			})
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	require.Eventually(t, func() bool { return store.gets.Load() == n }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Less(t, loads.Load(), int32(n))
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestReadThrough_CoalescedCancelStaysWithCaller(t *testing.T) {
	store := &countingStore{MemoryStore: frozenStore()}
	c := newCoordinator(store, WithCoalescing(true))
	key := cachekey.ForWorkspaceList(uuid.New())

	release := make(chan struct{})
	var loads atomic.Int32
	loader := func(ctx context.Context) (int, error) {
		loads.Add(1)
		select {
		case <-release:
			return 42, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := ReadThrough(first, c, key, loader)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		v   int
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := ReadThrough(context.Background(), c, key, loader)
		second <- result{v, err}
	}()
	require.Eventually(t, func() bool { return store.gets.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 42, got.v)
	assert.Equal(t, int32(1), loads.Load())

	_, ok := c.Get(context.Background(), key)
	assert.True(t, ok, "the shared load still populates the cache")
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, DefaultPolicy().With(cachekey.UnreadCount, 0).Validate())
}
