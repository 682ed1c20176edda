// Package site crawls a business website and assembles its enrichment result.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shpitdev/leadfinder/internal/enrich"
	"github.com/shpitdev/leadfinder/internal/enrich/emailguess"
	"github.com/shpitdev/leadfinder/internal/enrich/extract"
	"github.com/shpitdev/leadfinder/internal/enrich/fetch"
	"github.com/shpitdev/leadfinder/internal/enrich/roles"
	"github.com/shpitdev/leadfinder/pkg/pipeline/redact"
	"github.com/shpitdev/leadfinder/pkg/pipeline/worker"
)

// MinSuggestionConfidence is the lowest model confidence for which a
// first.last address is generated.
const MinSuggestionConfidence = 5

const maxSuggestionText = 5000

type Enricher struct {
	fetcher   fetch.PageFetcher
	roles     *roles.Table
	suggester enrich.Suggester
	guesser   *emailguess.Guesser
	logger    *slog.Logger

	homepageRetries int
	retryBackoff    time.Duration
}

type Option func(*Enricher)

func WithRoles(t *roles.Table) Option {
	return func(e *Enricher) { e.roles = t }
}

// WithSuggester enables model contact suggestions. g may be nil to skip
// address generation.
func WithSuggester(s enrich.Suggester, g *emailguess.Guesser) Option {
	return func(e *Enricher) {
		e.suggester = s
		e.guesser = g
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHomepageRetries sets how often a timed-out homepage fetch is retried.
func WithHomepageRetries(n int, backoff time.Duration) Option {
	return func(e *Enricher) {
		e.homepageRetries = max(n, 0)
		e.retryBackoff = backoff
	}
}

// New returns an Enricher that fetches through f. f is used sequentially;
// concurrent callers each need their own Enricher.
func New(f fetch.PageFetcher, opts ...Option) *Enricher {
	e := &Enricher{
		fetcher:         f,
		roles:           roles.Builtin(),
		logger:          slog.Default(),
		homepageRetries: 1,
		retryBackoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ enrich.Enricher = (*Enricher)(nil)

// Enrich crawls the business homepage and its staff subpages. Per-business
// failures are reported through Result.Status; the error is non-nil only
// when ctx ends.
func (e *Enricher) Enrich(ctx context.Context, b enrich.Business) (res enrich.Result, err error) {
	log := e.logger.With("business", b.Name, "website", b.Website)
	defer func() {
		if r := recover(); r != nil {
			log.Error("enrichment panicked", "panic", fmt.Sprint(r))
			res = enrich.Result{Website: b.Website, Status: enrich.StatusError, DirectContacts: enrich.NoDirectContact}
			err = ctx.Err()
		}
	}()
	if err := ctx.Err(); err != nil {
		return enrich.Result{}, err
	}

	res, err = e.scrape(ctx, b, log)
	if err != nil {
		return enrich.Result{}, err
	}
	if e.suggester != nil {
		e.suggest(ctx, b, &res, log)
	}
	return res, ctx.Err()
}

func (e *Enricher) scrape(ctx context.Context, b enrich.Business, log *slog.Logger) (enrich.Result, error) {
	siteURL, err := NormalizeURL(b.Website)
	if errors.Is(err, enrich.ErrInvalidURL) {
		return enrich.Result{Website: b.Website, Status: enrich.StatusInvalidURL, DirectContacts: enrich.NoDirectContact}, nil
	}
	res := enrich.Result{Website: siteURL, DirectContacts: enrich.NoDirectContact}
	roleSet := e.roles.Select(b.Name, b.Category)

	var out outcome
	home, err := e.fetchHomepage(ctx, siteURL)
	if err != nil {
		if ctx.Err() != nil {
			return enrich.Result{}, ctx.Err()
		}
		var tlsErr *fetch.TLSError
		if errors.As(err, &tlsErr) {
			log.Info("homepage failed tls verification", "error", redact.Secrets(err.Error()))
			res.Status = enrich.StatusSSLFailed
			return res, nil
		}
		log.Info("homepage fetch failed", "error", redact.Secrets(err.Error()))
		out.record(err)
		home = fetch.Page{URL: siteURL}
	} else {
		out.ok = true
		res.WebsiteVerified = NameOnPage(b.Name, home.HTML)
	}

	homeURL := home.FinalURL
	if homeURL == "" {
		homeURL = siteURL
	}
	homeDoc, err := extract.Parse(homeURL, home.HTML)
	if err != nil {
		return enrich.Result{}, err
	}

	var winner *extract.Document
	var contacts []enrich.Candidate
	lastOK := homeDoc
	for _, link := range homeDoc.Subpages() {
		if err := ctx.Err(); err != nil {
			return enrich.Result{}, err
		}
		page, err := e.fetcher.Fetch(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return enrich.Result{}, ctx.Err()
			}
			log.Debug("subpage fetch failed", "url", link, "error", redact.Secrets(err.Error()))
			out.record(err)
			continue
		}
		out.ok = true
		doc, err := extract.Parse(link, page.HTML)
		if err != nil {
			continue
		}
		lastOK = doc
		if cs := extract.Contacts(doc, roleSet); len(cs) > 0 {
			winner, contacts = doc, cs
			break
		}
	}
	if winner == nil {
		if cs := extract.Contacts(homeDoc, roleSet); len(cs) > 0 {
			winner, contacts = homeDoc, cs
		}
	}

	emailDoc := lastOK
	if winner != nil {
		emailDoc = winner
		res.Contacts = contacts
		res.SourceURL = winner.URL
		res.DirectContacts = enrich.JoinContacts(contacts)
	}
	res.BusinessEmail = extract.BusinessEmail(emailDoc)
	if res.BusinessEmail == "" && emailDoc != homeDoc {
		res.BusinessEmail = extract.BusinessEmail(homeDoc)
	}
	res.PageText = emailDoc.Text()
	res.Status = out.status()

	log.Debug("scraped business",
		"status", res.Status,
		"contacts", len(res.Contacts),
		"source_url", res.SourceURL,
	)
	return res, nil
}

func (e *Enricher) fetchHomepage(ctx context.Context, siteURL string) (fetch.Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := e.fetcher.Fetch(ctx, siteURL)
		if err == nil || !worker.IsTransient(err) || attempt >= e.homepageRetries {
			return page, err
		}
		t := time.NewTimer(e.retryBackoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fetch.Page{}, ctx.Err()
		}
	}
}

// suggest asks the model for a contact and derives the likely address. The
// scraped address stands in whenever no guess survives.
func (e *Enricher) suggest(ctx context.Context, b enrich.Business, res *enrich.Result, log *slog.Logger) {
	var s enrich.Suggestion
	if strings.TrimSpace(res.PageText) != "" {
		in := *res
		in.PageText = truncateText(in.PageText, maxSuggestionText)
		got, err := e.suggester.Suggest(ctx, b, in)
		if err != nil {
			log.Warn("contact suggestion failed", "error", redact.Secrets(err.Error()))
		} else {
			s = got
		}
	}
	if e.guesser != nil && s.Confidence >= MinSuggestionConfidence && strings.TrimSpace(s.Name) != "" {
		s.LikelyEmail = e.guesser.Guess(ctx, s.Name, res.Website)
	}
	if s.LikelyEmail == "" {
		s.LikelyEmail = scrapedEmail(*res)
		s.FallbackUsed = true
	}
	res.Suggestion = &s
}

// NameOnPage reports whether the business name appears, case-insensitively,
// anywhere in the page source.
func NameOnPage(name, rawHTML string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(rawHTML), name)
}

// truncateText cuts s to at most n bytes without splitting a rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func scrapedEmail(res enrich.Result) string {
	if res.BusinessEmail != "" {
		return res.BusinessEmail
	}
	for _, c := range res.Contacts {
		if c.Email != "" {
			return c.Email
		}
	}
	return ""
}

// outcome tracks whether any fetch succeeded and the most specific failure.
type outcome struct {
	ok     bool
	rank   int
	failed string
}

func (o *outcome) record(err error) {
	rank, status := 1, enrich.StatusError
	var tlsErr *fetch.TLSError
	var httpErr *fetch.HTTPError
	var netErr *fetch.NetworkError
	switch {
	case errors.As(err, &tlsErr):
		rank, status = 4, enrich.StatusSSLFailed
	case errors.As(err, &httpErr):
		rank, status = 3, httpErr.Status()
	case errors.As(err, &netErr):
		rank = 2
	}
	if rank > o.rank {
		o.rank, o.failed = rank, status
	}
}

func (o outcome) status() string {
	if o.ok {
		return enrich.StatusSuccess
	}
	if o.failed == "" {
		return enrich.StatusError
	}
	return o.failed
}
