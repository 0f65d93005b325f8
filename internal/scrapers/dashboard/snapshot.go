package dashboard

import (
	"context"
	"fmt"
	"perfsnapshot-backend/internal/components/assert"
	"perfsnapshot-backend/internal/components/chrono"
	"perfsnapshot-backend/internal/components/telemetry"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_scraper_parse = "scraper.parse"
)

var AccountDetailNames = []string{
	"Growth",
	"Absolute Gain",
	"Daily",
	"Monthly",
	"Drawdown",
	"Balance",
	"Equity",
	"Highest",
	"Profit",
	"Interest",
}

var TradingStatNames = []string{
	"Trades",
	"Won",
	"Lost",
	"Win %",
	"Loss %",
	"Lots",
	"Best Trade",
	"Worst Trade",
	"Commissions",
	"Swap",
}

var AccountInfoNames = []string{
	"Broker",
	"Broker Server",
	"Deposits",
	"Withdrawals",
	"Leverage",
	"Account Type",
}

// the upstream's own "last updated" label, tried in order
var UpdatedAtLabels = []string{
	"Updated",
	"Last Update",
}

// Snapshot is everything extracted from one successful fetch of the dashboard.
// It is never mutated after Parse returns it, a new fetch produces a new Snapshot.
type Snapshot struct {
	Source         string
	FetchedAt      time.Time
	AccountDetails map[string]*string
	TradingStats   map[string]*string
	AccountInfo    map[string]*string
	GrowthSeries   []Point
	UpdatedAt      *string
}

// Parser turns dashboard markup into a Snapshot.
type Parser struct {
	metrics Extractor
	series  SeriesExtractor
}

func NewParser(metrics Extractor, series SeriesExtractor) Parser {
	return Parser{metrics: metrics, series: series}
}

// Parse extracts a snapshot from `markup`. Missing metrics or a missing series
// only degrade their own field, the only error is markup that cannot be parsed at all.
func (p Parser) Parse(ctx context.Context, source string, fetchedAt time.Time, markup string) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Parser.Parse")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse dashboard markup: %w", err)
	}
	page := NewPage(doc)

	return &Snapshot{
		Source:         source,
		FetchedAt:      fetchedAt,
		AccountDetails: p.metrics.Resolve(ctx, page, AccountDetailNames),
		TradingStats:   p.metrics.Resolve(ctx, page, TradingStatNames),
		AccountInfo:    p.metrics.Resolve(ctx, page, AccountInfoNames),
		GrowthSeries:   p.series.Extract(ctx, markup),
		UpdatedAt:      p.metrics.First(page, UpdatedAtLabels...),
	}, nil
}

// Scraper runs the whole fetch and parse pipeline against the upstream.
type Scraper struct {
	fetcher Fetcher
	parser  Parser
	clock   chrono.TimeAPI
	tel     telemetry.API
}

func NewScraper(fetcher Fetcher, parser Parser, clock chrono.TimeAPI, tel telemetry.API) Scraper {
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")
	return Scraper{
		fetcher: fetcher,
		parser:  parser,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("dashboard_scraper", tel),
	}
}

// Source returns the upstream url being scraped.
func (s Scraper) Source() string {
	return s.fetcher.Url()
}

// Scrape fetches the upstream once and parses it into a new Snapshot.
func (s Scraper) Scrape(ctx context.Context) (*Snapshot, error) {
	markup, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	fetchedAt := s.clock.Now()

	snapshot, err := s.parser.Parse(ctx, s.fetcher.Url(), fetchedAt, markup)
	if err != nil {
		s.tel.ReportBroken(report_scraper_parse, err)
		return nil, err
	}
	return snapshot, nil
}
