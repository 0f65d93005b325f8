package service

import (
	"context"
	"net/http"
	"perfsnapshot-backend/internal/components/assert"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/internal/snapshotcache"
)

const (
	report_live_performance_get    = "live-performance.get"
	report_live_performance_encode = "live-performance.encode"
	report_live_performance_stale  = "live-performance.stale"
)

// SnapshotCache is whatever hands out the current snapshot, in production this is
// *snapshotcache.Cache.
//
// note: fault injection point
type SnapshotCache interface {
	Get(ctx context.Context) (snapshotcache.Result, error)
}

// LivePerformanceService serves the most recent dashboard snapshot over http.
type LivePerformanceService struct {
	cache SnapshotCache
	tel   telemetry.API
}

// NewLivePerformanceService creates a LivePerformanceService reading from `cache`.
func NewLivePerformanceService(cache SnapshotCache, options ...Option) LivePerformanceService {
	assert.NotNil(cache, "snapshot cache")

	cfg := serviceConfig{}
	for _, opt := range options {
		opt(&cfg)
	}

	tel := telemetry.API(telemetry.SlogAPI{})
	if cfg.tel != nil {
		tel = cfg.tel
	}

	return LivePerformanceService{
		cache: cache,
		tel:   telemetry.NewScopedAPI("service", tel),
	}
}

type serviceConfig struct {
	tel telemetry.API
}

type Option func(cfg *serviceConfig)

func WithCustomTelemetryAPI(tel telemetry.API) Option {
	return func(cfg *serviceConfig) {
		cfg.tel = tel
	}
}

// Register mounts the service's routes on `mux`.
func (s LivePerformanceService) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/live-performance", s.handleLivePerformance)
	mux.HandleFunc("/healthz", handleHealth)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
