// Package snapshotcache holds the single most recent dashboard snapshot and decides
// when it has to be refetched.
package snapshotcache

import (
	"context"
	"errors"
	"fmt"
	"perfsnapshot-backend/internal/components/assert"
	"perfsnapshot-backend/internal/components/chrono"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/internal/scrapers/dashboard"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const (
	report_cache_refresh = "cache.refresh"
	report_cache_stale   = "cache.stale"
	report_cache_lookup  = "cache.lookup"
)

const DefaultTTL = 24 * time.Hour

// all callers share the one slot, so they share the one in-flight fetch too
const refreshKey = "snapshot"

var meter = otel.Meter("perfsnapshot.internal.snapshotcache")
var lookupCounter, _ = meter.Int64Counter(
	"snapshot_cache_lookups",
	metric.WithDescription("snapshot cache lookups by outcome"),
)

// ErrNoSnapshot is returned when a refresh fails and there is nothing cached to fall back to.
var ErrNoSnapshot = errors.New("no snapshot available")

// FetchFunc produces a brand new snapshot from the upstream.
type FetchFunc func(ctx context.Context) (*dashboard.Snapshot, error)

// Result is a snapshot along with how it was obtained.
type Result struct {
	Snapshot *dashboard.Snapshot
	// Cached is set when the snapshot was younger than the ttl and no fetch happened.
	Cached bool
	// Stale is set when a refresh failed and the previous snapshot was returned instead.
	Stale bool
}

// Cache is a single slot snapshot cache. A snapshot younger than the ttl is
// served as is, an older one is refreshed and kept as a fallback if the refresh fails.
type Cache struct {
	fetch FetchFunc
	ttl   time.Duration
	clock chrono.TimeAPI
	tel   telemetry.API

	mutex     sync.Mutex
	current   *dashboard.Snapshot
	fetchedAt time.Time
	lookups   map[string]int64

	group singleflight.Group
}

type Options struct {
	// TTL defaults to 24 hours.
	TTL time.Duration
}

func New(fetch FetchFunc, clock chrono.TimeAPI, tel telemetry.API, opts Options) *Cache {
	if fetch == nil {
		panic("expected fetch to be not nil")
	}
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		fetch: fetch,
		ttl:   ttl,
		clock: clock,
		tel:   telemetry.NewScopedAPI("snapshot_cache", tel),

		lookups: make(map[string]int64),
	}
}

// Peek returns the currently held snapshot without fetching, it is nil while the cache is empty.
func (c *Cache) Peek() *dashboard.Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.current
}

func (c *Cache) fresh() (*dashboard.Snapshot, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.current == nil {
		return nil, false
	}
	age := c.clock.Now().Sub(c.fetchedAt)
	return c.current, age < c.ttl
}

func (c *Cache) store(snapshot *dashboard.Snapshot, fetchedAt time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.current = snapshot
	c.fetchedAt = fetchedAt
}

func (c *Cache) record(ctx context.Context, outcome string) {
	lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	c.mutex.Lock()
	c.lookups[outcome]++
	count := c.lookups[outcome]
	c.mutex.Unlock()
	c.tel.ReportCount(fmt.Sprintf("%s-%s", report_cache_lookup, outcome), count)
}

// Get returns the cached snapshot if it is fresh, otherwise it refreshes it.
// Concurrent callers that find the snapshot expired share a single upstream fetch.
func (c *Cache) Get(ctx context.Context) (Result, error) {
	snapshot, fresh := c.fresh()
	if fresh {
		c.record(ctx, "cached")
		return Result{Snapshot: snapshot, Cached: true}, nil
	}
	if snapshot != nil {
		c.tel.ReportDebug("snapshot expired", snapshot.FetchedAt)
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		// the fetch is shared, so one caller going away must not cancel it for the rest
		refreshed, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if refreshed == nil {
			return nil, fmt.Errorf("fetch returned no snapshot")
		}
		c.store(refreshed, c.clock.Now())
		return refreshed, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return c.fallback(ctx, ctx.Err())
	}

	if res.Err != nil {
		c.tel.ReportWarning(report_cache_refresh, res.Err)
		return c.fallback(ctx, res.Err)
	}

	c.record(ctx, "refreshed")
	return Result{Snapshot: res.Val.(*dashboard.Snapshot)}, nil
}

func (c *Cache) fallback(ctx context.Context, cause error) (Result, error) {
	previous := c.Peek()
	if previous == nil {
		c.record(ctx, "failed")
		return Result{}, fmt.Errorf("%w: %w", ErrNoSnapshot, cause)
	}
	c.record(ctx, "stale")
	c.tel.ReportWarning(report_cache_stale, "serving stale snapshot", previous.FetchedAt)
	return Result{Snapshot: previous, Stale: true}, nil
}
