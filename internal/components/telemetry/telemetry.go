package telemetry

import (
	"fmt"
)

// API is what every component of the snapshot pipeline logs and counts through,
// so tests can swap in a recorder and assert on what was reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a failure an operator needs to act on, like the dashboard
	// being unreachable with nothing cached to fall back to.
	//
	// Ids are `<component>.<operation>` and each package keeps them as `report_...`
	// constants (`fetcher.fetch`, `cache.lookup`, `live-performance.get`). The package
	// name is never part of the id, it comes from wrapping the API in a ScopedAPI, so
	// the fetcher's breakage arrives as `dashboard_fetcher:fetcher.fetch` and a stale
	// response from the http service as `service:live-performance.stale`.
	//
	// Keep ids lowercase, with underscores inside scope names and dashes inside
	// operation names. Details like the upstream status code go in `params`, not the id.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something degraded but still served, ex. a stale snapshot
	// or a series that failed to decode. Ids follow ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug is dropped unless the binary runs with -v.
	ReportDebug(msg string, params ...any)

	// ReportCount records the running total of an event, ex.
	// `snapshot_cache:cache.lookup-cached`. Each call is a sample, not an increment.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id it reports with a namespace. When scopes are nested
// the namespace nearest the underlying API is printed first.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) qualify(id string) string {
	return s.namespace + ":" + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.qualify(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.qualify(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.qualify(id), count)
}
