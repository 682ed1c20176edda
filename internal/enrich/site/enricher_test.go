package site_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shpitdev/leadfinder/internal/enrich"
	"github.com/shpitdev/leadfinder/internal/enrich/emailguess"
	"github.com/shpitdev/leadfinder/internal/enrich/fetch"
	"github.com/shpitdev/leadfinder/internal/enrich/site"
	"github.com/shpitdev/leadfinder/pkg/pipeline/core"
)

const (
	homeHTML  = `<html><body><a href="/about">About</a><a href="/our-team">Team</a><a href="/our-team">Team again</a><p>Call us today</p></body></html>`
	aboutHTML = `<html><body><p>We build widgets.</p></body></html>`
	teamHTML  = `<html><body><h2>Our Team</h2><h3>Jane Smith</h3><p>Owner</p><a href="mailto:info@acme.test">Email</a></body></html>`
)

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string][]error
	calls  []string
	panics bool
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.calls = append(f.calls, url)
	if errs := f.errs[url]; len(errs) > 0 {
		err := errs[0]
		f.errs[url] = errs[1:]
		return fetch.Page{}, err
	}
	html, ok := f.pages[url]
	if !ok {
		return fetch.Page{}, &fetch.HTTPError{URL: url, StatusCode: 404, Reason: "Not Found"}
	}
	return fetch.Page{URL: url, FinalURL: url, StatusCode: 200, HTML: html}, nil
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func acme() enrich.Business {
	return enrich.Business{Name: "Acme Widgets", Website: "acme.test"}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "", ok: false},
		{in: "  ", ok: false},
		{in: "nan", ok: false},
		{in: "NaN", ok: false},
		{in: " acme.com ", want: "http://acme.com", ok: true},
		{in: "https://acme.com/x", want: "https://acme.com/x", ok: true},
		{in: "HTTP://ACME.COM", want: "HTTP://ACME.COM", ok: true},
		{in: "notarealsite.invalidtld", want: "http://notarealsite.invalidtld", ok: true},
	}
	for _, tt := range tests {
		got, err := site.NormalizeURL(tt.in)
		if got != tt.want || (err == nil) != tt.ok {
			t.Fatalf("NormalizeURL(%q)=(%q,%v) want (%q,%v)", tt.in, got, err, tt.want, tt.ok)
		}
		if !tt.ok && !errors.Is(err, enrich.ErrInvalidURL) {
			t.Fatalf("NormalizeURL(%q) error %v, want ErrInvalidURL", tt.in, err)
		}
	}
}

func TestEnrich_InvalidURL(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	for _, website := range []string{"nan", ""} {
		res, err := site.New(f).Enrich(context.Background(), enrich.Business{Name: "Acme", Website: website})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != enrich.StatusInvalidURL || res.DirectContacts != enrich.NoDirectContact || res.BusinessEmail != "" {
			t.Fatalf("website %q: unexpected result %#v", website, res)
		}
	}
	if len(f.fetched()) != 0 {
		t.Fatalf("invalid URLs must not be fetched: %v", f.fetched())
	}
}

func TestEnrich_FirstSubpageWithContactsWins(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"http://acme.test":          homeHTML,
		"http://acme.test/about":    aboutHTML,
		"http://acme.test/our-team": teamHTML,
	}}
	res, err := site.New(f).Enrich(context.Background(), acme())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != enrich.StatusSuccess {
		t.Fatalf("status=%q", res.Status)
	}
	if res.DirectContacts != "Jane Smith – Owner" {
		t.Fatalf("DirectContacts=%q", res.DirectContacts)
	}
	if res.BusinessEmail != "info@acme.test" {
		t.Fatalf("BusinessEmail=%q", res.BusinessEmail)
	}
	if res.SourceURL != "http://acme.test/our-team" || res.Website != "http://acme.test" {
		t.Fatalf("unexpected urls: %#v", res)
	}
	want := []string{"http://acme.test", "http://acme.test/about", "http://acme.test/our-team"}
	if got := f.fetched(); !slices.Equal(got, want) {
		t.Fatalf("fetched %v want %v", got, want)
	}
}

func TestEnrich_StopsAtFirstMatch(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"http://acme.test":          homeHTML,
		"http://acme.test/about":    teamHTML,
		"http://acme.test/our-team": teamHTML,
	}}
	if _, err := site.New(f).Enrich(context.Background(), acme()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.fetched(); slices.Contains(got, "http://acme.test/our-team") {
		t.Fatalf("crawl continued past the winning page: %v", got)
	}
}

func TestEnrich_FallsBackToHomepage(t *testing.T) {
	t.Parallel()

	home := `<a href="/staff">Staff</a><h3>Robert Lee</h3><p>General Manager</p><p>info@acme.test</p>`
	f := &fakeFetcher{pages: map[string]string{"http://acme.test": home}}
	res, err := site.New(f).Enrich(context.Background(), acme())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != enrich.StatusSuccess {
		t.Fatalf("subpage 404 must not change status, got %q", res.Status)
	}
	if res.DirectContacts != "Robert Lee – General Manager" || res.SourceURL != "http://acme.test" {
		t.Fatalf("unexpected result %#v", res)
	}
	if res.BusinessEmail != "info@acme.test" {
		t.Fatalf("BusinessEmail=%q", res.BusinessEmail)
	}
}

func TestEnrich_VerifiesWebsiteAgainstBusinessName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		home string
		want bool
	}{
		{name: "name in title", home: `<title>ACME WIDGETS | Home</title><p>Welcome</p>`, want: true},
		{name: "other business", home: `<title>Parked domain</title>`, want: false},
	}
	for _, tt := range tests {
		f := &fakeFetcher{pages: map[string]string{"http://acme.test": tt.home}}
		res, err := site.New(f).Enrich(context.Background(), acme())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if res.WebsiteVerified != tt.want {
			t.Fatalf("%s: WebsiteVerified=%v want %v", tt.name, res.WebsiteVerified, tt.want)
		}
	}

	f := &fakeFetcher{}
	res, _ := site.New(f).Enrich(context.Background(), acme())
	if res.WebsiteVerified {
		t.Fatalf("failed homepage must not verify: %#v", res)
	}
	if site.NameOnPage("  ", "<p>anything</p>") {
		t.Fatal("blank name must not verify")
	}
}

func TestEnrich_GenericEmailWithoutContacts(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"http://acme.test": `<p>Questions? <a href="mailto:hello@acme.test">Write us</a></p>`,
	}}
	res, _ := site.New(f).Enrich(context.Background(), acme())
	if res.DirectContacts != enrich.NoDirectContact || res.BusinessEmail != "hello@acme.test" || res.Status != enrich.StatusSuccess {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestEnrich_HomepageFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status string
	}{
		{name: "tls", err: &fetch.TLSError{URL: "http://acme.test", Err: errors.New("x509: unknown authority")}, status: enrich.StatusSSLFailed},
		{name: "http", err: &fetch.HTTPError{URL: "http://acme.test", StatusCode: 403, Reason: "Forbidden"}, status: "403 Forbidden"},
		{name: "network", err: &fetch.NetworkError{URL: "http://acme.test", Err: errors.New("connection refused")}, status: enrich.StatusError},
		{name: "other", err: errors.New("weird"), status: enrich.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{errs: map[string][]error{"http://acme.test": {tt.err}}}
			res, err := site.New(f).Enrich(context.Background(), acme())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != tt.status || res.DirectContacts != enrich.NoDirectContact {
				t.Fatalf("unexpected result %#v", res)
			}
			if got := f.fetched(); len(got) != 1 {
				t.Fatalf("expected a single homepage fetch, got %v", got)
			}
		})
	}
}

func TestEnrich_RetriesHomepageTimeoutOnce(t *testing.T) {
	t.Parallel()

	timeout := &core.LimitedTransientError{Err: &fetch.NetworkError{Err: context.DeadlineExceeded}, ExtraRetries: 1}
	f := &fakeFetcher{
		pages: map[string]string{"http://acme.test": teamHTML},
		errs:  map[string][]error{"http://acme.test": {timeout}},
	}
	res, err := site.New(f, site.WithHomepageRetries(1, time.Millisecond)).Enrich(context.Background(), acme())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != enrich.StatusSuccess || len(f.fetched()) != 2 {
		t.Fatalf("status=%q fetched=%v", res.Status, f.fetched())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestEnrich_UnresolvableDomain(t *testing.T) {
	t.Parallel()

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, &net.DNSError{Err: "no such host", Name: r.URL.Hostname(), IsNotFound: true}
	})}
	e := site.New(fetch.New(fetch.WithHTTPClient(client)))

	res, err := e.Enrich(context.Background(), enrich.Business{Name: "Ghost", Website: "notarealsite.invalidtld"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Website != "http://notarealsite.invalidtld" {
		t.Fatalf("Website=%q", res.Website)
	}
	if res.Status != enrich.StatusError || res.DirectContacts != enrich.NoDirectContact {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestEnrich_Idempotent(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"http://acme.test":          homeHTML,
		"http://acme.test/about":    aboutHTML,
		"http://acme.test/our-team": teamHTML,
	}
	first, err := site.New(&fakeFetcher{pages: pages}).Enrich(context.Background(), acme())
	if err != nil {
		t.Fatal(err)
	}
	second, err := site.New(&fakeFetcher{pages: pages}).Enrich(context.Background(), acme())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%#v\n%#v", first, second)
	}
}

func TestEnrich_RecoversPanics(t *testing.T) {
	t.Parallel()

	res, err := site.New(&fakeFetcher{panics: true}).Enrich(context.Background(), acme())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != enrich.StatusError || res.DirectContacts != enrich.NoDirectContact {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestEnrich_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := site.New(&fakeFetcher{}).Enrich(ctx, acme()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeSuggester struct {
	s   enrich.Suggestion
	err error
	got string
}

func (f *fakeSuggester) Suggest(_ context.Context, _ enrich.Business, res enrich.Result) (enrich.Suggestion, error) {
	f.got = res.PageText
	return f.s, f.err
}

type mxAlways bool

func (m mxAlways) HasMX(context.Context, string) (bool, error) { return bool(m), nil }

func TestEnrich_Suggestion(t *testing.T) {
	t.Parallel()

	pages := map[string]string{"http://acme.test": teamHTML}
	guesser := emailguess.NewGuesser(mxAlways(true))

	tests := []struct {
		name         string
		suggester    *fakeSuggester
		wantEmail    string
		wantFallback bool
	}{
		{
			name:      "confident suggestion generates address",
			suggester: &fakeSuggester{s: enrich.Suggestion{Name: "Jane Smith", Title: "Owner", Confidence: 8}},
			wantEmail: "jane.smith@acme.test",
		},
		{
			name:         "low confidence falls back to scraped email",
			suggester:    &fakeSuggester{s: enrich.Suggestion{Name: "Jane Smith", Confidence: 4}},
			wantEmail:    "info@acme.test",
			wantFallback: true,
		},
		{
			name:         "suggester error falls back",
			suggester:    &fakeSuggester{err: errors.New("quota")},
			wantEmail:    "info@acme.test",
			wantFallback: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := site.New(&fakeFetcher{pages: pages}, site.WithSuggester(tt.suggester, guesser))
			res, err := e.Enrich(context.Background(), acme())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Suggestion == nil {
				t.Fatal("expected suggestion")
			}
			if res.Suggestion.LikelyEmail != tt.wantEmail || res.Suggestion.FallbackUsed != tt.wantFallback {
				t.Fatalf("unexpected suggestion %#v", res.Suggestion)
			}
			if tt.suggester.got == "" {
				t.Fatal("suggester did not receive page text")
			}
		})
	}
}
