// Package leads turns a business type and a list of states into a deduplicated
// list of businesses from the Places API.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shpitdev/leadfinder/internal/enrich"
	"github.com/shpitdev/leadfinder/internal/searchcache"
	"github.com/shpitdev/leadfinder/pkg/places"
	"golang.org/x/sync/errgroup"
)

// Lead is one business found by a search.
type Lead struct {
	Name     string
	Phone    string
	Website  string
	Address  string
	Category string
	City     string
	State    string
	PlaceID  string

	// Status is set by the archive: New or Already Harvested.
	Status string
}

// Business converts the lead into enrichment input.
func (l Lead) Business() enrich.Business {
	return enrich.Business{
		Name:     l.Name,
		Website:  l.Website,
		Phone:    l.Phone,
		Address:  l.Address,
		Category: l.Category,
	}
}

// PlacesAPI is the subset of *places.Client used by the finder.
type PlacesAPI interface {
	TextSearch(ctx context.Context, query string) ([]places.Place, error)
	Details(ctx context.Context, placeID string) (places.Details, error)
}

// Query describes one search run.
type Query struct {
	Term   string
	States []string
	Depth  int

	RequirePhone   bool
	RequireWebsite bool

	// Concurrency is the number of cities searched at once. <=1 is sequential.
	Concurrency int
}

type Finder struct {
	api    PlacesAPI
	cache  searchcache.Store
	logger *slog.Logger
}

type Option func(*Finder)

func WithCache(s searchcache.Store) Option {
	return func(f *Finder) { f.cache = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFinder(api PlacesAPI, opts ...Option) *Finder {
	f := &Finder{api: api, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ExpandTerms returns the term followed by common variants for broad
// categories, so a search for "dentist" also finds dental clinics.
func ExpandTerms(term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	out := []string{term}
	lower := strings.ToLower(term)
	switch {
	case strings.Contains(lower, "dentist"):
		out = append(out, "dental office", "dental clinic", "family dentist")
	case strings.Contains(lower, "school"):
		out = append(out, "elementary school", "middle school", "high school", "academy")
	}
	return dedupeFold(out)
}

type cityTask struct {
	state string
	city  string
}

// Search runs Text Search for every (state, city, term) and looks up details
// for each place. Results keep task order regardless of Concurrency.
func (f *Finder) Search(ctx context.Context, q Query) ([]Lead, error) {
	terms := ExpandTerms(q.Term)
	if len(terms) == 0 {
		return nil, fmt.Errorf("business type is required")
	}
	var tasks []cityTask
	for _, state := range q.States {
		state = strings.TrimSpace(state)
		if state == "" {
			continue
		}
		for _, city := range Cities(state, q.Depth) {
			tasks = append(tasks, cityTask{state: state, city: city})
		}
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("at least one state is required")
	}

	limit := q.Concurrency
	if limit < 1 {
		limit = 1
	}
	perTask := make([][]Lead, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, t := range tasks {
		g.Go(func() error {
			found, err := f.searchCity(gctx, t, terms, q.Term)
			perTask[i] = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Lead
	for _, ls := range perTask {
		all = append(all, ls...)
	}
	all = Dedupe(all)
	return Filter(all, q.RequirePhone, q.RequireWebsite), nil
}

func (f *Finder) searchCity(ctx context.Context, t cityTask, terms []string, category string) ([]Lead, error) {
	var out []Lead
	for _, term := range terms {
		key := searchcache.Key{Term: term, City: t.city, State: t.state}
		results, err := f.textSearch(ctx, key)
		if err != nil {
			return out, fmt.Errorf("search %q: %w", places.Query(term, t.city, t.state), err)
		}
		f.logger.Info("text search", "term", term, "city", t.city, "state", t.state, "results", len(results))

		for _, p := range results {
			lead := Lead{
				Name:     strings.TrimSpace(p.Name),
				Address:  strings.TrimSpace(p.FormattedAddress),
				Category: category,
				City:     t.city,
				State:    t.state,
				PlaceID:  p.PlaceID,
			}
			if p.PlaceID != "" {
				d, err := f.api.Details(ctx, p.PlaceID)
				switch {
				case err == nil:
					lead.Phone = d.Phone
					lead.Website = d.Website
				case ctx.Err() != nil:
					return out, ctx.Err()
				default:
					f.logger.Warn("place details failed", "place_id", p.PlaceID, "name", lead.Name, "error", err)
				}
			}
			out = append(out, lead)
		}
	}
	return out, nil
}

// textSearch consults the cache first. Cache failures degrade to a live search.
func (f *Finder) textSearch(ctx context.Context, key searchcache.Key) ([]places.Place, error) {
	if f.cache != nil {
		cached, ok, err := f.cache.Get(ctx, key)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			f.logger.Warn("search cache read failed", "term", key.Term, "city", key.City, "error", err)
		case ok:
			f.logger.Debug("search cache hit", "term", key.Term, "city", key.City, "state", key.State)
			return cached, nil
		}
	}

	results, err := f.api.TextSearch(ctx, places.Query(key.Term, key.City, key.State))
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		if err := f.cache.Put(ctx, key, results); err != nil {
			f.logger.Warn("search cache write failed", "term", key.Term, "city", key.City, "error", err)
		}
	}
	return results, nil
}

// Dedupe drops later leads with the same (name, phone, website).
func Dedupe(in []Lead) []Lead {
	seen := make(map[[3]string]struct{}, len(in))
	out := make([]Lead, 0, len(in))
	for _, l := range in {
		k := [3]string{l.Name, l.Phone, l.Website}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Filter keeps leads that carry the required fields.
func Filter(in []Lead, requirePhone, requireWebsite bool) []Lead {
	if !requirePhone && !requireWebsite {
		return in
	}
	out := make([]Lead, 0, len(in))
	for _, l := range in {
		if requirePhone && strings.TrimSpace(l.Phone) == "" {
			continue
		}
		if requireWebsite && strings.TrimSpace(l.Website) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func dedupeFold(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
