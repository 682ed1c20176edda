package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome for sites that build their
// staff pages with JavaScript.
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
}

// NewBrowserFetcher starts a Chrome allocator bound to parent. Close releases
// it. execPath may be empty to let chromedp locate Chrome.
func NewBrowserFetcher(parent context.Context, timeout time.Duration, execPath string) *BrowserFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(chromeUserAgent),
	)
	if strings.TrimSpace(execPath) != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(parent, opts...)
	return &BrowserFetcher{allocCtx: allocCtx, cancel: cancel, timeout: timeout}
}

func (b *BrowserFetcher) Close() {
	if b != nil && b.cancel != nil {
		b.cancel()
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(rawURL))
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, classifyBrowser(rawURL, err)
	}
	code := http.StatusOK
	var reason string
	if resp != nil {
		code, reason = int(resp.Status), resp.StatusText
	}
	if err := documentStatus(rawURL, code, reason); err != nil {
		return Page{}, err
	}

	var html, final string
	err = chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&final),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, classifyBrowser(rawURL, err)
	}
	if len(html) > DefaultMaxBodyBytes {
		html = html[:DefaultMaxBodyBytes]
	}
	return Page{URL: rawURL, FinalURL: final, StatusCode: code, HTML: html}, nil
}

// documentStatus maps the main document's response status onto HTTPError.
// HTTP/2 responses carry no reason phrase, so the standard text fills in.
func documentStatus(rawURL string, code int, reason string) error {
	if code >= 200 && code <= 299 {
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = http.StatusText(code)
	}
	return &HTTPError{URL: rawURL, StatusCode: code, Reason: strings.TrimSpace(reason)}
}

// classifyBrowser maps Chrome net error codes (net::ERR_CERT_*, net::ERR_SSL_*)
// onto the fetch error types.
func classifyBrowser(rawURL string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "ERR_CERT_") || strings.Contains(msg, "ERR_SSL_") {
		return &TLSError{URL: rawURL, Err: err}
	}
	return classify(rawURL, err)
}
