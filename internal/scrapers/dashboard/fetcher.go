package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"perfsnapshot-backend/internal/components/assert"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/lib/restyutil"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_fetcher_fetch = "fetcher.fetch"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// UpstreamStatusError is returned when the upstream answers with a non-2xx status.
type UpstreamStatusError struct {
	Url    string
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream %s responded with status %d", e.Url, e.Status)
}

// TransportError is returned when the upstream could not be reached at all
// (dns, timeout, connection reset, ...).
type TransportError struct {
	Url string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %s", e.Url, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type FetcherOptions struct {
	// Url is the dashboard page to fetch.
	Url string
	// Timeout bounds a single fetch, defaults to 15 seconds.
	Timeout time.Duration
	// UserAgent defaults to a recent desktop chrome.
	UserAgent string
	// Dump receives every raw exchange with the upstream when set.
	Dump restyutil.InstrumentOutput
}

// Fetcher retrieves the raw markup of the dashboard page. It never retries.
type Fetcher struct {
	url  string
	http *resty.Client
	tel  telemetry.API
}

func NewFetcher(opts FetcherOptions, tel telemetry.API) (Fetcher, error) {
	assert.NotNil(tel, "tel")
	tel = telemetry.NewScopedAPI("dashboard_fetcher", tel)

	parsed, err := url.Parse(opts.Url)
	if err != nil {
		return Fetcher{}, fmt.Errorf("parse upstream url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Fetcher{}, fmt.Errorf("unsupported upstream url scheme %q", parsed.Scheme)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 15
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = browserUserAgent
	}

	httpClient := resty.New()
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetTimeout(timeout)
	httpClient.SetHeaders(map[string]string{
		"user-agent":      userAgent,
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"accept-language": "en-US,en;q=0.9",
		"cache-control":   "no-cache",
		"pragma":          "no-cache",
	})

	// 1 request max per second, the page only needs refreshing once per ttl
	rateLimiter := rate.NewLimiter(1, 1)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, tracer, opts.Dump)

	return Fetcher{
		url:  parsed.String(),
		http: httpClient,
		tel:  tel,
	}, nil
}

// Url returns the upstream url this fetcher reads from.
func (f Fetcher) Url() string {
	return f.url
}

// Fetch performs one GET against the upstream and returns the response body.
func (f Fetcher) Fetch(ctx context.Context) (string, error) {
	res, err := f.http.R().
		SetContext(ctx).
		Get(f.url)
	if err != nil {
		err = &TransportError{Url: f.url, Err: err}
		f.tel.ReportBroken(report_fetcher_fetch, err)
		return "", err
	}

	status := res.StatusCode()
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		err = &UpstreamStatusError{Url: f.url, Status: status}
		f.tel.ReportBroken(report_fetcher_fetch, err)
		return "", err
	}

	return string(res.Body()), nil
}
