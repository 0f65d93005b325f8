package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"perfsnapshot-backend/internal/components/telemetry"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFetcher(t testing.TB, url string) Fetcher {
	fetcher, err := NewFetcher(FetcherOptions{Url: url, Timeout: time.Second * 2}, telemetry.SlogAPI{})
	if err != nil {
		t.Fatal(err)
	}
	return fetcher
}

func TestFetchReturnsBody(t *testing.T) {
	received := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Clone()
		w.Header().Set("content-type", "text/html")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server.URL)
	body, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "<html><body>ok</body></html>", body)

	headers := <-received
	require.Contains(t, headers.Get("user-agent"), "Mozilla/5.0")
	require.Contains(t, headers.Get("accept"), "text/html")
	require.Equal(t, "no-cache", headers.Get("cache-control"))
	require.Equal(t, "no-cache", headers.Get("pragma"))
}

func TestFetchNon2xx(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusNotFound, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte("<html>maintenance</html>"))
		}))

		fetcher := newTestFetcher(t, server.URL)
		_, err := fetcher.Fetch(context.Background())
		server.Close()

		var statusErr *UpstreamStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.Status)
	}
}

func TestFetchTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	fetcher := newTestFetcher(t, url)
	_, err := fetcher.Fetch(context.Background())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, url, transportErr.Url)

	var statusErr *UpstreamStatusError
	require.False(t, errors.As(err, &statusErr))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	fetcher, err := NewFetcher(FetcherOptions{Url: server.URL, Timeout: 50 * time.Millisecond}, telemetry.SlogAPI{})
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestNewFetcherRejectsBadUrls(t *testing.T) {
	for _, url := range []string{"", "ftp://example.com/dashboard", "://broken"} {
		_, err := NewFetcher(FetcherOptions{Url: url}, telemetry.SlogAPI{})
		require.Error(t, err, url)
	}
}
