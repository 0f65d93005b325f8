package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"perfsnapshot-backend/internal/components/assert"
	"perfsnapshot-backend/internal/components/telemetry"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/titanous/json5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_series_decode    = "series.decode"
	report_series_normalize = "series.normalize"
)

const (
	DefaultSeriesVariable = "growthData"
	DefaultDecodeTimeout  = 50 * time.Millisecond

	// literals larger than this are rejected without decoding
	maxLiteralSize = 4 << 20
	dateLayout     = "2006-01-02"
)

// Point is one day of the growth series.
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// LiteralDecoder turns an array literal into plain data, it must not execute anything.
type LiteralDecoder func(literal string) (any, error)

// DecodeJson5Literal decodes arrays, objects, strings, numbers, booleans and null.
// Any other expression (identifiers, calls, operators) is a syntax error.
func DecodeJson5Literal(literal string) (any, error) {
	var out any
	err := json5.Unmarshal([]byte(literal), &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type SeriesOptions struct {
	// Variable is the name of the script variable holding the series, defaults to "growthData".
	Variable string
	// Timeout bounds decoding of the literal, defaults to 50ms.
	Timeout time.Duration
	// Decoder defaults to DecodeJson5Literal.
	Decoder LiteralDecoder
}

// SeriesExtractor pulls the growth series out of an inline script assignment.
type SeriesExtractor struct {
	assignment *regexp.Regexp
	timeout    time.Duration
	decode     LiteralDecoder
	tel        telemetry.API
}

func NewSeriesExtractor(opts SeriesOptions, tel telemetry.API) SeriesExtractor {
	assert.NotNil(tel, "tel")

	variable := opts.Variable
	if variable == "" {
		variable = DefaultSeriesVariable
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultDecodeTimeout
	}
	decode := opts.Decoder
	if decode == nil {
		decode = DecodeJson5Literal
	}

	return SeriesExtractor{
		assignment: regexp.MustCompile(
			`(?s)(?:^|[^\w$])` + regexp.QuoteMeta(variable) + `\s*=\s*(\[.*?\])\s*;`,
		),
		timeout: timeout,
		decode:  decode,
		tel:     telemetry.NewScopedAPI("dashboard_series", tel),
	}
}

// Extract returns the normalized series found in `markup`. A missing assignment,
// a literal that fails to decode or a decode timeout all result in an empty series.
func (s SeriesExtractor) Extract(ctx context.Context, markup string) []Point {
	ctx, span := tracer.Start(ctx, "SeriesExtractor.Extract")
	defer span.End()

	groups := s.assignment.FindStringSubmatch(markup)
	if len(groups) < 2 {
		span.AddEvent("series assignment not found")
		return []Point{}
	}

	raw, err := s.decodeWithTimeout(ctx, groups[1])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode series literal")
		s.tel.ReportWarning(report_series_decode, err)
		return []Point{}
	}

	points, dropped := normalizeSeries(raw)
	if dropped > 0 {
		s.tel.ReportWarning(report_series_normalize, "dropped malformed points", dropped)
	}
	span.SetAttributes(
		attribute.Int("points", len(points)),
		attribute.Int("dropped", dropped),
	)
	return points
}

func (s SeriesExtractor) decodeWithTimeout(ctx context.Context, literal string) (any, error) {
	if len(literal) > maxLiteralSize {
		return nil, fmt.Errorf("series literal is too large (%d bytes)", len(literal))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	// buffered so the goroutine can always finish after a timeout
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("decoder panicked: %v", r)}
			}
		}()
		value, err := s.decode(literal)
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("decode series literal: %w", ctx.Err())
	}
}

var errNotAPair = errors.New("not a [date, value] pair")

// normalizeSeries flattens every series' data pairs, deduplicates them by date
// (last one wins) and sorts them by date.
func normalizeSeries(raw any) ([]Point, int) {
	seriesList, ok := raw.([]any)
	if !ok {
		return []Point{}, 0
	}

	dropped := 0
	byDate := map[string]float64{}
	for _, entry := range seriesList {
		series, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		data, ok := series["data"].([]any)
		if !ok {
			continue
		}
		for _, item := range data {
			point, err := normalizePair(item)
			if err != nil {
				dropped++
				continue
			}
			byDate[point.Date] = point.Value
		}
	}

	points := make([]Point, 0, len(byDate))
	for date, value := range byDate {
		points = append(points, Point{Date: date, Value: value})
	}
	// dates are zero padded YYYY-MM-DD, so lexical order is chronological order
	slices.SortFunc(points, func(a, b Point) int {
		return strings.Compare(a.Date, b.Date)
	})
	return points, dropped
}

func normalizePair(item any) (Point, error) {
	pair, ok := item.([]any)
	if !ok || len(pair) < 2 {
		return Point{}, errNotAPair
	}
	date, err := normalizeDate(pair[0])
	if err != nil {
		return Point{}, err
	}
	value, err := normalizeValue(pair[1])
	if err != nil {
		return Point{}, err
	}
	return Point{Date: date, Value: value}, nil
}

// single digit layout elements also accept zero padded input
var dateLayouts = []string{
	dateLayout,
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"1/2/2006",
	"2.1.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func normalizeDate(v any) (string, error) {
	switch value := v.(type) {
	case float64:
		return timestampToDate(value)
	case string:
		trimmed := strings.TrimSpace(value)
		for _, layout := range dateLayouts {
			t, err := time.Parse(layout, trimmed)
			if err == nil {
				return formatDate(t)
			}
		}
		// numeric strings are timestamps too
		d, err := decimal.NewFromString(trimmed)
		if err == nil {
			return timestampToDate(d.InexactFloat64())
		}
		return "", fmt.Errorf("unrecognized date %q", value)
	}
	return "", fmt.Errorf("unsupported date type %T", v)
}

// timestampToDate treats large magnitudes as unix milliseconds and small ones as unix seconds.
func timestampToDate(ts float64) (string, error) {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return "", fmt.Errorf("non-finite timestamp")
	}
	var t time.Time
	if math.Abs(ts) >= 1e11 {
		t = time.UnixMilli(int64(ts))
	} else {
		t = time.Unix(int64(ts), 0)
	}
	return formatDate(t)
}

func formatDate(t time.Time) (string, error) {
	t = t.UTC()
	if t.Year() < 0 || t.Year() > 9999 {
		return "", fmt.Errorf("date out of range: %d", t.Year())
	}
	return t.Format(dateLayout), nil
}

func normalizeValue(v any) (float64, error) {
	var out float64
	switch value := v.(type) {
	case float64:
		out = value
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(value), "%")
		d, err := decimal.NewFromString(strings.TrimSpace(trimmed))
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", value)
		}
		out = d.InexactFloat64()
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return out, nil
}
