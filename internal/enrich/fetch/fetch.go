// Package fetch retrieves business web pages the way a desktop browser would.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 2 << 20

	chromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var browserHeaders = map[string]string{
	"User-Agent":      chromeUserAgent,
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
}

// Page is a fetched HTML document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
}

// PageFetcher fetches one URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Fetcher is an HTTP PageFetcher. A Fetcher owns its client and cookie jar;
// give each worker its own.
type Fetcher struct {
	client       *http.Client
	timeout      time.Duration
	maxBodyBytes int64
	logger       *slog.Logger
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default Chrome-fingerprint client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:      DefaultTimeout,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewClient(f.timeout)
	}
	return f
}

// NewClient returns a client with a Chrome TLS fingerprint and its own cookie
// jar.
func NewClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{
		Timeout:   timeout,
		Transport: NewChromeTransport(),
		Jar:       jar,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, &NetworkError{URL: rawURL, Err: err}
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Page{}, err
		}
		return Page{}, classify(rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	f.logger.Debug("fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Page{}, &HTTPError{URL: rawURL, StatusCode: resp.StatusCode, Reason: reasonPhrase(resp)}
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		body = io.LimitReader(resp.Body, f.maxBodyBytes)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return Page{}, classify(rawURL, fmt.Errorf("read body: %w", err))
	}

	return Page{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		HTML:       string(b),
	}, nil
}

func reasonPhrase(resp *http.Response) string {
	// resp.Status is "404 Not Found"; servers may send a custom phrase.
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && strings.TrimSpace(reason) != "" {
		return strings.TrimSpace(reason)
	}
	return http.StatusText(resp.StatusCode)
}
