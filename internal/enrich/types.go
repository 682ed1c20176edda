package enrich

import (
	"context"
	"errors"
	"strings"
)

// Scrape status values. HTTP failures use "<code> <reason>" instead.
const (
	StatusSuccess    = "Success"
	StatusSSLFailed  = "SSL Verification Failed"
	StatusInvalidURL = "Invalid URL"
	StatusError      = "Error"
)

// NoDirectContact is written to DirectContacts when no candidate survives.
const NoDirectContact = "No direct contact found"

// ErrInvalidURL marks an empty or "nan" website cell.
var ErrInvalidURL = errors.New("invalid url")

// Business is one row of lead input.
type Business struct {
	Name     string
	Website  string
	Phone    string
	Address  string
	Category string
}

// Candidate sources.
const (
	SourceStructural = "structural"
	SourceImage      = "image"
	SourceLine       = "line"
)

// Candidate is a person-like record extracted from a page.
type Candidate struct {
	Name   string
	Role   string
	Email  string
	Phone  string
	Source string
}

// Suggestion is an optional model-produced contact guess for a business.
type Suggestion struct {
	Name       string
	Title      string
	Reason     string
	Confidence int
	// LikelyEmail is a generated first.last address or the scraped business
	// email when no guess could be made.
	LikelyEmail  string
	FallbackUsed bool
}

// Result is the enrichment outcome for one business.
type Result struct {
	BusinessEmail   string
	DirectContacts  string
	Website         string
	Status          string
	// WebsiteVerified is set when the business name appears in the homepage.
	WebsiteVerified bool

	// Contacts holds the winning page's candidates in extraction order.
	Contacts  []Candidate
	SourceURL string
	// PageText is the visible text of the winning page, kept for suggesters.
	PageText string

	Suggestion *Suggestion
}

// JoinContacts renders candidates as "Name – Role" pairs, or the
// NoDirectContact sentinel when there are none.
func JoinContacts(cs []Candidate) string {
	if len(cs) == 0 {
		return NoDirectContact
	}
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.Name+" – "+c.Role)
	}
	return strings.Join(parts, "; ")
}

// Enricher enriches a single business.
type Enricher interface {
	Enrich(ctx context.Context, b Business) (Result, error)
}

// Suggester proposes a contact for an already-scraped business.
type Suggester interface {
	Suggest(ctx context.Context, b Business, res Result) (Suggestion, error)
}
