package service

import (
	"encoding/json"
	"net/http"
	"perfsnapshot-backend/internal/scrapers/dashboard"
	"perfsnapshot-backend/internal/snapshotcache"
	"time"
)

// javascript's Date.toISOString layout, which is what consumers of the endpoint parse
const isoTimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type ChartResponse struct {
	Growth []dashboard.Point `json:"growth"`
}

type MetaResponse struct {
	UpdatedAt *string `json:"updatedAt"`
}

// LivePerformanceResponse is the public json shape of a snapshot.
type LivePerformanceResponse struct {
	Source         string             `json:"source"`
	FetchedAt      string             `json:"fetchedAt"`
	AccountDetails map[string]*string `json:"accountDetails"`
	TradingStats   map[string]*string `json:"tradingStats"`
	AccountInfo    map[string]*string `json:"accountInfo"`
	Chart          ChartResponse      `json:"chart"`
	Meta           MetaResponse       `json:"meta"`
	Cached         bool               `json:"cached,omitempty"`
	Stale          bool               `json:"stale,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewLivePerformanceResponse flattens a cache result into the response shape.
func NewLivePerformanceResponse(result snapshotcache.Result) LivePerformanceResponse {
	snapshot := result.Snapshot

	growth := snapshot.GrowthSeries
	if growth == nil {
		growth = []dashboard.Point{}
	}

	return LivePerformanceResponse{
		Source:         snapshot.Source,
		FetchedAt:      snapshot.FetchedAt.UTC().Format(isoTimestampLayout),
		AccountDetails: metricsOrEmpty(snapshot.AccountDetails),
		TradingStats:   metricsOrEmpty(snapshot.TradingStats),
		AccountInfo:    metricsOrEmpty(snapshot.AccountInfo),
		Chart:          ChartResponse{Growth: growth},
		Meta:           MetaResponse{UpdatedAt: snapshot.UpdatedAt},
		Cached:         result.Cached,
		Stale:          result.Stale,
	}
}

func metricsOrEmpty(metrics map[string]*string) map[string]*string {
	if metrics == nil {
		return map[string]*string{}
	}
	return metrics
}

func (s LivePerformanceService) writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.tel.ReportWarning(report_live_performance_encode, err)
	}
}

func (s LivePerformanceService) handleLivePerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("allow", "GET, HEAD")
		s.writeJson(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	start := time.Now()
	result, err := s.cache.Get(r.Context())
	if err != nil {
		s.tel.ReportBroken(report_live_performance_get, err)
		s.writeJson(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to load live performance: " + err.Error(),
		})
		return
	}
	if result.Stale {
		s.tel.ReportWarning(report_live_performance_stale, result.Snapshot.FetchedAt)
	}
	s.tel.ReportDebug(
		"served live performance",
		"cached", result.Cached,
		"stale", result.Stale,
		"duration", time.Since(start).String(),
	)

	s.writeJson(w, http.StatusOK, NewLivePerformanceResponse(result))
}
