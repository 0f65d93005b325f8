package main

import (
	"perfsnapshot-backend/internal/components/chrono"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/internal/scrapers/dashboard"
	"perfsnapshot-backend/internal/snapshotcache"
	"perfsnapshot-backend/lib/restyutil"
)

// InitSnapshotCache wires the fetch and parse pipeline behind a snapshot cache.
// `dump` may be nil.
func InitSnapshotCache(cfg ResolvedConfig, tel telemetry.API, dump restyutil.InstrumentOutput) (*snapshotcache.Cache, error) {
	fetcher, err := dashboard.NewFetcher(dashboard.FetcherOptions{
		Url:     cfg.UpstreamUrl,
		Timeout: cfg.UpstreamTimeout,
		Dump:    dump,
	}, tel)
	if err != nil {
		return nil, err
	}

	parser := dashboard.NewParser(
		dashboard.NewExtractor(tel),
		dashboard.NewSeriesExtractor(dashboard.SeriesOptions{
			Variable: cfg.SeriesVariable,
		}, tel),
	)
	clock := chrono.NewStandardTime()
	scraper := dashboard.NewScraper(fetcher, parser, clock, tel)

	return snapshotcache.New(scraper.Scrape, clock, tel, snapshotcache.Options{
		TTL: cfg.CacheTtl,
	}), nil
}
