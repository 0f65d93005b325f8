package snapshotcache

import (
	"context"
	"errors"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/internal/scrapers/dashboard"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockTime struct {
	mutex sync.Mutex
	now   time.Time
}

func (m *mockTime) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.now
}

func (m *mockTime) Advance(d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = m.now.Add(d)
}

// mockUpstream hands out a new snapshot per call, or fails while failing is set.
type mockUpstream struct {
	clock   *mockTime
	calls   atomic.Int64
	failing atomic.Bool
}

var errUpstreamDown = errors.New("upstream down")

func (m *mockUpstream) fetch(ctx context.Context) (*dashboard.Snapshot, error) {
	n := m.calls.Add(1)
	if m.failing.Load() {
		return nil, errUpstreamDown
	}
	growth := "12.4%"
	if n > 1 {
		growth = "13.0%"
	}
	return &dashboard.Snapshot{
		Source:         "https://example.com/dashboard",
		FetchedAt:      m.clock.Now(),
		AccountDetails: map[string]*string{"Growth": &growth},
	}, nil
}

func setup() (*Cache, *mockUpstream, *mockTime) {
	clock := &mockTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	upstream := &mockUpstream{clock: clock}
	cache := New(upstream.fetch, clock, telemetry.SlogAPI{}, Options{})
	return cache, upstream, clock
}

func TestColdCacheFetches(t *testing.T) {
	cache, upstream, _ := setup()
	require.Nil(t, cache.Peek())

	res, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.False(t, res.Stale)
	require.Equal(t, "12.4%", *res.Snapshot.AccountDetails["Growth"])
	require.Equal(t, int64(1), upstream.calls.Load())
	require.Same(t, res.Snapshot, cache.Peek())
}

func TestFreshSnapshotIsCached(t *testing.T) {
	cache, upstream, clock := setup()

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(DefaultTTL - time.Second)
	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.False(t, second.Stale)
	require.Same(t, first.Snapshot, second.Snapshot)
	require.Equal(t, int64(1), upstream.calls.Load())
}

func TestExpiredSnapshotIsRefetched(t *testing.T) {
	cache, upstream, clock := setup()

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(DefaultTTL)
	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.False(t, second.Cached)
	require.False(t, second.Stale)
	require.NotSame(t, first.Snapshot, second.Snapshot)
	require.Equal(t, "13.0%", *second.Snapshot.AccountDetails["Growth"])
	require.Equal(t, int64(2), upstream.calls.Load())

	// the old snapshot was replaced, not mutated
	require.Equal(t, "12.4%", *first.Snapshot.AccountDetails["Growth"])
}

func TestStaleFallback(t *testing.T) {
	cache, upstream, clock := setup()

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	upstream.failing.Store(true)
	clock.Advance(DefaultTTL + time.Hour)

	for i := 0; i < 3; i++ {
		res, err := cache.Get(context.Background())
		require.NoError(t, err)
		require.True(t, res.Stale)
		require.False(t, res.Cached)
		require.Same(t, first.Snapshot, res.Snapshot)
	}
	// every request past the ttl retries the upstream
	require.Equal(t, int64(4), upstream.calls.Load())

	upstream.failing.Store(false)
	res, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.False(t, res.Stale)
	require.NotSame(t, first.Snapshot, res.Snapshot)
}

func TestColdCacheFailure(t *testing.T) {
	cache, upstream, _ := setup()
	upstream.failing.Store(true)

	res, err := cache.Get(context.Background())
	require.ErrorIs(t, err, ErrNoSnapshot)
	require.ErrorIs(t, err, errUpstreamDown)
	require.Nil(t, res.Snapshot)
	require.Nil(t, cache.Peek())
}

func TestCustomTTL(t *testing.T) {
	clock := &mockTime{now: time.Unix(0, 0)}
	upstream := &mockUpstream{clock: clock}
	cache := New(upstream.fetch, clock, telemetry.SlogAPI{}, Options{TTL: time.Minute})

	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	res, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, int64(2), upstream.calls.Load())
}

func TestConcurrentRefreshIsShared(t *testing.T) {
	clock := &mockTime{now: time.Unix(0, 0)}
	release := make(chan struct{})
	var calls atomic.Int64

	cache := New(func(ctx context.Context) (*dashboard.Snapshot, error) {
		calls.Add(1)
		<-release
		return &dashboard.Snapshot{FetchedAt: clock.Now()}, nil
	}, clock, telemetry.SlogAPI{}, Options{})

	const callers = 16
	results := make([]Result, callers)
	errs := make([]error, callers)
	var started sync.WaitGroup
	var done sync.WaitGroup
	for i := 0; i < callers; i++ {
		started.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = cache.Get(context.Background())
		}(i)
	}
	started.Wait()
	// give every caller the chance to join the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Same(t, results[0].Snapshot, results[i].Snapshot)
	}
	require.Equal(t, int64(1), calls.Load())
}

func TestCallerCancellationDoesNotCancelFetch(t *testing.T) {
	clock := &mockTime{now: time.Unix(0, 0)}
	release := make(chan struct{})
	fetchCtxErr := make(chan error, 1)

	cache := New(func(ctx context.Context) (*dashboard.Snapshot, error) {
		<-release
		fetchCtxErr <- ctx.Err()
		return &dashboard.Snapshot{FetchedAt: clock.Now()}, nil
	}, clock, telemetry.SlogAPI{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.Get(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-fetchCtxErr)

	require.Eventually(t, func() bool {
		return cache.Peek() != nil
	}, time.Second, 5*time.Millisecond)
}

type recordingTel struct {
	telemetry.SlogAPI

	mutex  sync.Mutex
	counts map[string]int64
}

func (r *recordingTel) ReportCount(id string, count int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.counts[id] = count
}

func TestLookupCounts(t *testing.T) {
	clock := &mockTime{now: time.Unix(0, 0)}
	upstream := &mockUpstream{clock: clock}
	tel := &recordingTel{counts: map[string]int64{}}
	cache := New(upstream.fetch, clock, tel, Options{})

	for i := 0; i < 3; i++ {
		_, err := cache.Get(context.Background())
		require.NoError(t, err)
	}
	upstream.failing.Store(true)
	clock.Advance(DefaultTTL)
	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	require.Equal(t, map[string]int64{
		"snapshot_cache:cache.lookup-refreshed": 1,
		"snapshot_cache:cache.lookup-cached":    2,
		"snapshot_cache:cache.lookup-stale":     1,
	}, tel.counts)
}
