package fetch_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/leadfinder/internal/enrich/fetch"
	"github.com/shpitdev/leadfinder/pkg/pipeline/core"
	"github.com/shpitdev/leadfinder/pkg/pipeline/worker"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestFetch_SendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "Chrome/") {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept-Language") == "" || r.Header.Get("Accept") == "" {
			t.Errorf("missing Accept headers: %v", r.Header)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><h1>Acme Dental</h1></body></html>"))
	}))
	defer srv.Close()

	f := fetch.New(fetch.WithHTTPClient(srv.Client()))
	page, err := f.Fetch(context.Background(), srv.URL+"/about")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.StatusCode != http.StatusOK || !strings.Contains(page.HTML, "Acme Dental") {
		t.Fatalf("unexpected page: %#v", page)
	}
	if page.FinalURL != srv.URL+"/about" {
		t.Fatalf("FinalURL=%q", page.FinalURL)
	}
}

func TestFetch_HTTPErrorCarriesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := fetch.New(fetch.WithHTTPClient(srv.Client())).Fetch(context.Background(), srv.URL)
	var httpErr *fetch.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %T %v", err, err)
	}
	if got := httpErr.Status(); got != "404 Not Found" {
		t.Fatalf("Status()=%q", got)
	}
}

func TestFetch_UntrustedCertificateIsTLSError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		client *http.Client
	}{
		{name: "stdlib transport", client: &http.Client{Transport: &http.Transport{}}},
		{name: "chrome transport", client: &http.Client{Transport: fetch.NewChromeTransport()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fetch.New(fetch.WithHTTPClient(tt.client)).Fetch(context.Background(), srv.URL)
			var tlsErr *fetch.TLSError
			if !errors.As(err, &tlsErr) {
				t.Fatalf("expected TLSError, got %T %v", err, err)
			}
		})
	}
}

func TestFetch_DNSFailureIsFinalNetworkError(t *testing.T) {
	t.Parallel()

	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, &net.DNSError{Err: "no such host", Name: "notarealsite.invalidtld", IsNotFound: true}
	})}

	_, err := fetch.New(fetch.WithHTTPClient(client)).Fetch(context.Background(), "http://notarealsite.invalidtld")
	var netErr *fetch.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
	if worker.IsTransient(err) {
		t.Fatalf("DNS failure must not be retried: %v", err)
	}
	var tlsErr *fetch.TLSError
	if errors.As(err, &tlsErr) {
		t.Fatalf("DNS failure must not be a TLS error")
	}
}

func TestFetch_CapsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer srv.Close()

	page, err := fetch.New(fetch.WithHTTPClient(srv.Client()), fetch.WithMaxBodyBytes(64)).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.HTML) != 64 {
		t.Fatalf("expected 64 bytes, got %d", len(page.HTML))
	}
}

func TestFetch_TimesOut(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := fetch.New(fetch.WithHTTPClient(srv.Client()), fetch.WithTimeout(50*time.Millisecond))
	_, err := f.Fetch(context.Background(), srv.URL)
	var netErr *fetch.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError on timeout, got %T %v", err, err)
	}
	var limited *core.LimitedTransientError
	if !errors.As(err, &limited) || limited.MaxExtraRetries() != 1 {
		t.Fatalf("expected timeout to allow one retry, got %v", err)
	}
}

func TestHTTPError_StatusWithoutReason(t *testing.T) {
	t.Parallel()

	e := &fetch.HTTPError{StatusCode: 599}
	if got := e.Status(); got != "599" {
		t.Fatalf("Status()=%q", got)
	}
}
